package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/walletledger/internal/models"
)

// Storage groups repositories sharing one connection or one db transaction
type Storage interface {
	User() UserRepo
	Wallet() WalletRepo
	Transaction() TransactionRepo
	Payment() PaymentRepo
	Withdrawal() WithdrawalRepo

	// Run fn in atomic unit. Commit if fn returns nil, rollback otherwise
	// Nested calls create savepoints
	InTx(ctx context.Context, fn func(Storage) error) error
}

// User repository interface
type UserRepo interface {
	// Insert the user or refresh username and role of the existing one
	// If username taken by another user has to return apperrors.ErrUserAlreadyExists
	Sync(ctx context.Context, user models.User) (models.User, error)

	// If user not found must return apperrors.ErrUserNotFound
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
}

// Wallet repository interface
type WalletRepo interface {
	// Return user wallet, create it if not exists yet
	// Must never create two wallets for one user even under concurrent calls
	GetOrCreate(ctx context.Context, userID uuid.UUID, currency string) (models.Wallet, error)

	// If wallet not found must return apperrors.ErrWalletNotFound
	// forUpdate locks the row till the end of the db transaction
	GetWallet(ctx context.Context, userID uuid.UUID, forUpdate bool) (models.Wallet, error)

	// Add signed amount to the balance
	// Must be called in the same db transaction as the ledger entry that justifies it
	ApplyDelta(ctx context.Context, walletID uuid.UUID, delta decimal.Decimal) (models.Wallet, error)
}

// Ledger entries repository interface
type TransactionRepo interface {
	// If the reference already has an entry must return apperrors.ErrReferenceTaken
	// If the utr number used must return apperrors.ErrUTRAlreadyUsed
	Create(ctx context.Context, t models.Transaction) (models.Transaction, error)

	// If not found must return apperrors.ErrTransactionNotFound
	GetByID(ctx context.Context, id uuid.UUID, forUpdate bool) (models.Transaction, error)
	GetByReference(ctx context.Context, referenceID uuid.UUID, forUpdate bool) (models.Transaction, error)

	// Persist status, verification fields and metadata of the entry
	Update(ctx context.Context, t models.Transaction) (models.Transaction, error)

	ListByUser(ctx context.Context, userID uuid.UUID, limit int, offset int) ([]models.Transaction, error)
	ListPendingVerification(ctx context.Context, limit int) ([]models.Transaction, error)

	// Report whether utr number attached or was attached (archived in metadata) to any entry
	// except the entry with exceptID
	UTRUsed(ctx context.Context, utr string, exceptID uuid.UUID) (bool, error)

	// Sum of signed amounts of completed balance-affecting entries of the wallet
	SumCompleted(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, error)
}

// Payment repository interface
type PaymentRepo interface {
	// If provider order id taken must return apperrors.ErrOrderIDTaken
	Create(ctx context.Context, p models.Payment) (models.Payment, error)

	// If not found must return apperrors.ErrPaymentNotFound
	GetByID(ctx context.Context, id uuid.UUID, forUpdate bool) (models.Payment, error)
	GetByOrderID(ctx context.Context, orderID string, forUpdate bool) (models.Payment, error)

	// Persist status, payment url and metadata
	Update(ctx context.Context, p models.Payment) (models.Payment, error)

	// Pending payments of the providers, oldest first
	ListPending(ctx context.Context, providers []string, limit int) ([]models.Payment, error)

	// Report whether the order id is used by a payment or embedded into metadata of any payment or entry
	OrderIDExists(ctx context.Context, orderID string) (bool, error)
}

// Withdrawal requests repository interface
type WithdrawalRepo interface {
	Create(ctx context.Context, w models.WithdrawalRequest) (models.WithdrawalRequest, error)

	// If not found must return apperrors.ErrWithdrawalNotFound
	GetByID(ctx context.Context, id uuid.UUID) (models.WithdrawalRequest, error)

	// Move request to the status only if its current status is one of 'from'
	// If the request is not in one of 'from' must return apperrors.ErrStateConflict
	Transition(ctx context.Context, id uuid.UUID, from []models.WithdrawalStatus, to WithdrawalUpdate) (models.WithdrawalRequest, error)

	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.WithdrawalRequest, error)
	ListByStatus(ctx context.Context, status models.WithdrawalStatus, limit int) ([]models.WithdrawalRequest, error)
}

// Fields written by a withdrawal status change
type WithdrawalUpdate struct {
	Status          models.WithdrawalStatus
	AdminNotes      *string
	RejectionReason *string
	ProcessedBy     *uuid.UUID
}

package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/walletledger/internal/handlers/render"
	"github.com/nkiryanov/walletledger/internal/handlers/userctx"
	"github.com/nkiryanov/walletledger/internal/logger"
)

func handleAdjustBalance(adjuster adjustService, l logger.Logger) http.HandlerFunc {
	type request struct {
		UserID string          `json:"userId" validate:"required,uuid"`
		Action string          `json:"action" validate:"required,oneof=add subtract set"`
		Amount decimal.Decimal `json:"amount"`
		Reason string          `json:"reason" validate:"required"`
	}
	type response struct {
		UserID          uuid.UUID            `json:"userId"`
		PreviousBalance decimal.Decimal      `json:"previousBalance"`
		NewBalance      decimal.Decimal      `json:"newBalance"`
		Transaction     *transactionResponse `json:"transaction,omitempty"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		admin, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}
		userID := uuid.MustParse(data.UserID)

		res, err := adjuster.Adjust(r.Context(), admin, userID, data.Action, data.Amount, data.Reason)
		if err != nil {
			renderError(w, err, l, "adjust balance")
			return
		}

		out := response{UserID: userID, PreviousBalance: res.PreviousBalance, NewBalance: res.NewBalance}
		if res.Entry != nil {
			entry := newTransactionResponse(*res.Entry)
			out.Transaction = &entry
		}
		render.JSON(w, out)
	}
}

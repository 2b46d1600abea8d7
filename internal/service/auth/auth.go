package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/nkiryanov/walletledger/internal/apperrors"
	"github.com/nkiryanov/walletledger/internal/models"
	"github.com/nkiryanov/walletledger/internal/repository"
)

const (
	defaultAccessHeaderName = "Authorization"
	defaultAccessAuthScheme = "Bearer"

	// Browsers can't set headers on websocket handshake
	accessQueryParam = "access_token"
)

type TokenParser interface {
	ParseAccess(access string) (models.User, error)
}

type Config struct {
	// Header and scheme to read access token from
	// If not set than default is used
	AccessHeaderName string
	AccessAuthScheme string
}

// Auth service verifies access tokens issued by the auth server
type AuthService struct {
	accessHeaderName string
	accessAuthScheme string

	tokens   TokenParser
	userRepo repository.UserRepo
}

func NewService(cfg Config, tokens TokenParser, userRepo repository.UserRepo) (*AuthService, error) {
	if tokens == nil || userRepo == nil {
		return nil, errors.New("token parser and user repo must not be nil")
	}

	if cfg.AccessHeaderName == "" {
		cfg.AccessHeaderName = defaultAccessHeaderName
	}
	if cfg.AccessAuthScheme == "" {
		cfg.AccessAuthScheme = defaultAccessAuthScheme
	}

	return &AuthService{
		accessHeaderName: cfg.AccessHeaderName,
		accessAuthScheme: cfg.AccessAuthScheme,
		tokens:           tokens,
		userRepo:         userRepo,
	}, nil
}

// Auth returns user the request is made by
// The user row is synced from token claims so wallets and admin checks see actual identity
func (s *AuthService) Auth(ctx context.Context, r *http.Request) (models.User, error) {
	access, err := s.readAccess(r)
	if err != nil {
		return models.User{}, err
	}

	user, err := s.tokens.ParseAccess(access)
	if err != nil {
		return models.User{}, err
	}

	// Usernames are unique; tokens without one get the id
	if user.Username == "" {
		user.Username = user.ID.String()
	}

	synced, err := s.userRepo.Sync(ctx, user)
	if err != nil {
		return models.User{}, fmt.Errorf("error while syncing user: %w", err)
	}

	return synced, nil
}

func (s *AuthService) readAccess(r *http.Request) (string, error) {
	header := r.Header.Get(s.accessHeaderName)
	if header == "" {
		if q := r.URL.Query().Get(accessQueryParam); q != "" {
			return q, nil
		}
		return "", apperrors.ErrTokenMissing
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, s.accessAuthScheme) || strings.TrimSpace(token) == "" {
		return "", apperrors.ErrTokenInvalid
	}

	return strings.TrimSpace(token), nil
}

package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/nkiryanov/walletledger/internal/handlers/render"
	"github.com/nkiryanov/walletledger/internal/handlers/userctx"
	"github.com/nkiryanov/walletledger/internal/models"
)

func handleUserMe() http.HandlerFunc {
	type response struct {
		ID       uuid.UUID   `json:"id"`
		Username string      `json:"username"`
		Role     models.Role `json:"role"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := userctx.FromContext(r.Context())
		render.JSON(w, response{ID: user.ID, Username: user.Username, Role: user.Role})
	}
}

func handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, map[string]string{"status": "ok"})
	}
}

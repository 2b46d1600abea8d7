package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nkiryanov/walletledger/internal/apperrors"
	"github.com/nkiryanov/walletledger/internal/handlers/render"
	"github.com/nkiryanov/walletledger/internal/handlers/userctx"
	"github.com/nkiryanov/walletledger/internal/logger"
	"github.com/nkiryanov/walletledger/internal/screenshot"
)

// Room for the form fields next to the image
const maxVerificationForm = screenshot.MaxSize + 64<<10

// handleSubmitVerification accepts multipart form with UTR and payment screenshot
func handleSubmitVerification(verifications verificationService, store screenshotStore, l logger.Logger) http.HandlerFunc {
	type form struct {
		TransactionID string `json:"transactionId" validate:"required,uuid"`
		UTRNumber     string `json:"utrNumber" validate:"required,utr"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxVerificationForm)
		if err := r.ParseMultipartForm(maxVerificationForm); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				render.FieldError(w, apperrors.NewFieldError("screenshot", "must not exceed 5MB"))
				return
			}
			render.ServiceError(w, "Expected multipart form", http.StatusBadRequest)
			return
		}
		defer r.MultipartForm.RemoveAll() // nolint:errcheck

		data := form{
			TransactionID: r.FormValue("transactionId"),
			UTRNumber:     r.FormValue("utrNumber"),
		}
		if err := render.Validate(w, data); err != nil {
			return
		}

		file, _, err := r.FormFile("screenshot")
		if err != nil {
			render.FieldError(w, apperrors.NewFieldError("screenshot", "is required"))
			return
		}
		defer file.Close() // nolint:errcheck

		image, err := screenshot.ReadLimited(file)
		if err != nil {
			render.ServiceError(w, "Failed to read screenshot", http.StatusBadRequest)
			return
		}
		if _, err := screenshot.Validate(image); err != nil {
			renderError(w, err, l, "validate screenshot")
			return
		}

		url, err := store.Save(r.Context(), user.ID, image)
		if err != nil {
			renderError(w, err, l, "store screenshot")
			return
		}

		entry, err := verifications.Submit(r.Context(), user, uuid.MustParse(data.TransactionID), data.UTRNumber, url)
		if err != nil {
			renderError(w, err, l, "submit verification")
			return
		}

		render.JSON(w, newTransactionResponse(entry))
	}
}

func handleListVerifications(verifications verificationService, l logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, ok := queryInt(r, "limit", 50)
		if !ok {
			render.ServiceError(w, "limit must be non-negative number", http.StatusBadRequest)
			return
		}

		entries, err := verifications.ListPending(r.Context(), limit)
		if err != nil {
			renderError(w, err, l, "list verifications")
			return
		}

		render.JSON(w, newTransactionsResponse(entries))
	}
}

func handleReviewVerification(verifications verificationService, l logger.Logger) http.HandlerFunc {
	type request struct {
		Action          string `json:"action" validate:"required,oneof=approve reject"`
		AdminNotes      string `json:"adminNotes"`
		RejectionReason string `json:"rejectionReason"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		admin, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "transactionId"))
		if err != nil {
			render.ServiceError(w, "Transaction not found", http.StatusNotFound)
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		entry, err := verifications.Review(r.Context(), admin, id, data.Action, data.AdminNotes, data.RejectionReason)
		if err != nil {
			renderError(w, err, l, "review verification")
			return
		}

		render.JSON(w, newTransactionResponse(entry))
	}
}

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"eatauthentically/internal/auth"
	"eatauthentically/internal/claim"
	"eatauthentically/internal/producer"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ClaimService interface {
	GetValidByToken(ctx context.Context, token string) (*claim.Invitation, error)
	Complete(ctx context.Context, token string, in claim.CompleteInput) (*auth.User, *claim.Invitation, error)
	Create(ctx context.Context, producerID uuid.UUID, recipientEmail string) (*claim.Invitation, error)
	ClaimURL(inv *claim.Invitation) string
}

type ProducerFinder interface {
	Get(ctx context.Context, id uuid.UUID) (*producer.Producer, error)
}

// ClaimHandler backs the public join-and-claim page.
type ClaimHandler struct {
	Claims    ClaimService
	Producers ProducerFinder
	JWT       *auth.JWT
	Validate  *validator.Validate
	Log       *zap.Logger
}

type claimInvitationDTO struct {
	ClaimInvitationID uuid.UUID `json:"claimInvitationId"`
	ProducerID        uuid.UUID `json:"producerId"`
	ProducerName      string    `json:"producerName"`
	ClaimerEmail      *string   `json:"claimerEmail"`
	ExpiresAt         time.Time `json:"expiresAt"`
}

func (h *ClaimHandler) Show(w http.ResponseWriter, r *http.Request) {
	inv, err := h.Claims.GetValidByToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.Log.Error("claim invitation lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, codeInternal, "server error")
		return
	}
	if inv == nil {
		writeError(w, http.StatusNotFound, codeNotFound, "claim link is invalid or has expired")
		return
	}

	p, err := h.Producers.Get(r.Context(), inv.ProducerID)
	if err != nil {
		if errors.Is(err, producer.ErrNotFound) {
			writeError(w, http.StatusNotFound, codeNotFound, "producer not found")
			return
		}
		h.Log.Error("producer lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, codeInternal, "server error")
		return
	}

	writeJSON(w, http.StatusOK, claimInvitationDTO{
		ClaimInvitationID: inv.ID,
		ProducerID:        p.ID,
		ProducerName:      p.Name,
		ClaimerEmail:      inv.ClaimerEmail,
		ExpiresAt:         inv.ExpiresAt,
	})
}

type joinAndClaimReq struct {
	Token    string `json:"token" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"max=200"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

func (h *ClaimHandler) JoinAndClaim(w http.ResponseWriter, r *http.Request) {
	var req joinAndClaimReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "bad json")
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}

	user, inv, err := h.Claims.Complete(r.Context(), req.Token, claim.CompleteInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
	})
	switch {
	case err == nil:
	case errors.Is(err, claim.ErrInvitationInvalid):
		writeError(w, http.StatusNotFound, codeNotFound, "claim link is invalid or has expired")
		return
	case errors.Is(err, claim.ErrEmailTaken), errors.Is(err, claim.ErrProducerClaimed):
		writeError(w, http.StatusConflict, codeConflict, err.Error())
		return
	case errors.Is(err, claim.ErrWeakPassword):
		writeError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	default:
		h.Log.Error("claim completion failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, codeInternal, "server error")
		return
	}

	token, err := h.JWT.Sign(user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeInternal, "server error")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"token":      token,
		"userId":     user.ID,
		"producerId": inv.ProducerID,
	})
}

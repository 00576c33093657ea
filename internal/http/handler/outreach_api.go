package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"eatauthentically/internal/producer"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OutreachAPIHandler serves /api/external/v1/outreach for partner tooling.
type OutreachAPIHandler struct {
	Claims    ClaimService
	Producers ProducerFinder
	Validate  *validator.Validate
	Log       *zap.Logger
}

type claimLinkReq struct {
	ProducerID     string `json:"producerId" validate:"required,uuid"`
	RecipientEmail string `json:"recipientEmail" validate:"required,email"`
}

type claimLinkResp struct {
	ClaimURL          string    `json:"claimUrl"`
	ClaimInvitationID uuid.UUID `json:"claimInvitationId"`
	ExpiresAt         time.Time `json:"expiresAt"`
}

func (h *OutreachAPIHandler) CreateClaimLink(w http.ResponseWriter, r *http.Request) {
	var req claimLinkReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "bad json")
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}
	producerID := uuid.MustParse(req.ProducerID)

	p, err := h.Producers.Get(r.Context(), producerID)
	if err != nil {
		if errors.Is(err, producer.ErrNotFound) {
			writeError(w, http.StatusNotFound, codeNotFound, "producer not found")
			return
		}
		h.Log.Error("producer lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, codeInternal, "server error")
		return
	}
	if p.Claimed() {
		writeError(w, http.StatusConflict, codeConflict, "producer already claimed")
		return
	}

	inv, err := h.Claims.Create(r.Context(), p.ID, req.RecipientEmail)
	if err != nil {
		h.Log.Error("create claim link failed", zap.String("producer_id", p.ID.String()), zap.Error(err))
		writeError(w, http.StatusInternalServerError, codeInternal, "server error")
		return
	}

	writeJSON(w, http.StatusCreated, claimLinkResp{
		ClaimURL:          h.Claims.ClaimURL(inv),
		ClaimInvitationID: inv.ID,
		ExpiresAt:         inv.ExpiresAt,
	})
}

package handler

import (
	"context"
	"net/http"

	"eatauthentically/internal/auth"
	"eatauthentically/internal/producer"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type OwnedProducers interface {
	ListOwned(ctx context.Context, userID uuid.UUID) ([]producer.Producer, error)
}

type MeHandler struct {
	Producers OwnedProducers
	Log       *zap.Logger
}

func (h *MeHandler) Me(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	owned, err := h.Producers.ListOwned(r.Context(), uid)
	if err != nil {
		h.Log.Error("list owned producers", zap.Error(err))
		writeError(w, http.StatusInternalServerError, codeInternal, "server error")
		return
	}
	ids := make([]uuid.UUID, 0, len(owned))
	for _, p := range owned {
		ids = append(ids, p.ID)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"userId":      uid,
		"producerIds": ids,
	})
}

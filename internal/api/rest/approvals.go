package rest

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/mux"

	"github.com/serenityjs/plugin-registry/internal/catalog"
	"github.com/serenityjs/plugin-registry/internal/models"
	"github.com/serenityjs/plugin-registry/internal/pkg/logger"
	"github.com/serenityjs/plugin-registry/internal/pkg/validate"
)

// Gateway applies reviewer decisions.
type Gateway interface {
	Decide(ctx context.Context, d models.ApprovalDecision) error
	EnrichApproved(ctx context.Context, id int64) error
}

type decisionRequest struct {
	Action models.DecisionAction `json:"action"`
}

// ApprovalHandler accepts decisions from webhook-driven reviewers. Enrichment
// of approved plugins continues after the response is written and is bound to
// the handler's base context, not to the request.
type ApprovalHandler struct {
	base    context.Context
	gateway Gateway
	token   string
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// NewApprovalHandler returns a handler whose background enrichments are
// cancelled when base is done.
func NewApprovalHandler(base context.Context, gateway Gateway, token string, log *slog.Logger) *ApprovalHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ApprovalHandler{base: base, gateway: gateway, token: token, logger: log}
}

// Decide handles POST /approvals/{id}
func (h *ApprovalHandler) Decide(w http.ResponseWriter, r *http.Request) {
	reqID := logger.FromContext(r.Context())
	if !h.authorized(r) {
		respondErrorWithCode(w, http.StatusUnauthorized, ErrCodeUnauthorized, "missing or invalid bearer token", reqID)
		return
	}

	id, ok := validate.PluginID(mux.Vars(r)["id"])
	if !ok {
		respondErrorWithCode(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid plugin id", reqID)
		return
	}
	var body decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondErrorWithCode(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body", reqID)
		return
	}
	if !body.Action.Valid() {
		respondErrorWithCode(w, http.StatusBadRequest, ErrCodeInvalidRequest,
			fmt.Sprintf("action must be %q or %q", models.DecisionApprove, models.DecisionReject), reqID)
		return
	}

	decision := models.ApprovalDecision{Action: body.Action, PluginID: id}
	if err := h.gateway.Decide(r.Context(), decision); err != nil {
		if errors.Is(err, catalog.ErrUnknownPlugin) {
			respondErrorWithCode(w, http.StatusNotFound, ErrCodeNotFound,
				fmt.Sprintf("Plugin with ID %d not found", id), reqID)
			return
		}
		h.logger.Error("approval decision failed", "request_id", reqID, "plugin_id", id, "error", err)
		respondErrorWithCode(w, http.StatusInternalServerError, ErrCodeInternalError, "failed to record decision", reqID)
		return
	}

	if decision.Approved() {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			if err := h.gateway.EnrichApproved(h.base, id); err != nil {
				h.logger.Warn("enrichment after approval failed", "plugin_id", id, "error", err)
			}
		}()
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": catalog.AckMessage(decision)})
}

// Wait blocks until background enrichments started by Decide have finished.
func (h *ApprovalHandler) Wait() {
	h.wg.Wait()
}

func (h *ApprovalHandler) authorized(r *http.Request) bool {
	if h.token == "" {
		return false
	}
	got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) == 1
}

package rest

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/serenityjs/plugin-registry/internal/models"
	"github.com/serenityjs/plugin-registry/internal/pkg/logger"
	"github.com/serenityjs/plugin-registry/internal/pkg/validate"
)

// PluginReader serves approved plugins from memory.
type PluginReader interface {
	GetFromCache(id int64) (models.Plugin, bool)
	GetAllFromCache() []models.Plugin
}

// Handler serves the read API.
type Handler struct {
	plugins PluginReader
	logger  *slog.Logger
}

func NewHandler(plugins PluginReader, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{plugins: plugins, logger: log}
}

// SetupRoutes registers the read API, health probes and metrics. The
// approvals endpoint is only registered when approvals is non-nil.
func SetupRoutes(router *mux.Router, h *Handler, health *HealthzHandler, approvals *ApprovalHandler) {
	router.HandleFunc("/plugins", h.ListPlugins).Methods(http.MethodGet)
	router.HandleFunc("/plugin/{id}", h.GetPlugin).Methods(http.MethodGet)

	router.HandleFunc("/healthz/live", health.Live).Methods(http.MethodGet)
	router.HandleFunc("/healthz/ready", health.Ready).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	if approvals != nil {
		router.HandleFunc("/approvals/{id}", approvals.Decide).Methods(http.MethodPost)
	}
}

// ListPlugins handles GET /plugins
func (h *Handler) ListPlugins(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.plugins.GetAllFromCache())
}

// GetPlugin handles GET /plugin/{id}
func (h *Handler) GetPlugin(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["id"]
	id, ok := validate.PluginID(raw)
	if !ok {
		respondErrorWithCode(w, http.StatusBadRequest, ErrCodeInvalidRequest,
			fmt.Sprintf("Invalid plugin ID %q", raw), logger.FromContext(r.Context()))
		return
	}
	plugin, ok := h.plugins.GetFromCache(id)
	if !ok {
		respondErrorWithCode(w, http.StatusNotFound, ErrCodeNotFound,
			fmt.Sprintf("Plugin with ID %d not found", id), logger.FromContext(r.Context()))
		return
	}
	respondJSON(w, http.StatusOK, plugin)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

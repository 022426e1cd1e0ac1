package rest

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/italolelis/media_archiver/internal/api"
	"github.com/italolelis/media_archiver/internal/download"
	"github.com/italolelis/media_archiver/internal/enrich"
	"github.com/italolelis/media_archiver/internal/logctx"
	"github.com/italolelis/media_archiver/internal/telemetry"
)

const maxBatchSize = 500

// Enricher is the enrichment pipeline the handler dispatches to.
type Enricher interface {
	Enrich(ctx context.Context, itemIDs []string) map[string]enrich.Result
}

// Downloader is the download pipeline the handler dispatches to.
type Downloader interface {
	FetchAll(ctx context.Context, tasks []download.Task) download.Results
	Stats() download.StatsSnapshot
	Reset()
	CleanupDatabase(ctx context.Context) (int, error)
}

// APIUsage exposes the request-layer accounting for the stats endpoint.
type APIUsage interface {
	Stats() api.UsageStats
}

type EnrichRequest struct {
	ItemIDs []string `json:"item_ids"`
}

type EnrichResponse struct {
	Results map[string]enrich.Result `json:"results"`
}

type DownloadRequest struct {
	Tasks []download.Task `json:"tasks"`
}

type DownloadResponse struct {
	Results download.Results `json:"results"`
}

type StatsResponse struct {
	Downloads download.StatsSnapshot `json:"downloads"`
	API       api.UsageStats         `json:"api"`
}

type CleanupResponse struct {
	Removed int `json:"removed"`
}

// ArchiveHandler exposes the pipelines over HTTP.
type ArchiveHandler struct {
	enricher   Enricher
	downloader Downloader
	usage      APIUsage
	telemetry  *telemetry.Telemetry
}

func NewArchiveHandler(enricher Enricher, downloader Downloader, usage APIUsage, t *telemetry.Telemetry) *ArchiveHandler {
	return &ArchiveHandler{
		enricher:   enricher,
		downloader: downloader,
		usage:      usage,
		telemetry:  t,
	}
}

func (h *ArchiveHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(telemetry.RequestID)

	r.Post("/api/enrich", h.HandleEnrich)
	r.Post("/api/downloads", h.HandleDownloads)
	r.Get("/api/stats", h.HandleStats)
	r.Post("/api/stats/reset", h.HandleStatsReset)
	r.Post("/api/cleanup", h.HandleCleanup)
	r.Get("/healthz", h.HandleHealth)

	if h.telemetry != nil {
		r.Get("/metrics", h.telemetry.Handler().ServeHTTP)
	}

	return r
}

// HandleEnrich runs the enrichment pipeline for a batch of item IDs.
func (h *ArchiveHandler) HandleEnrich(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	var req EnrichRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error("failed to decode request", "err", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)

		return
	}

	if len(req.ItemIDs) == 0 {
		http.Error(w, "item_ids must not be empty", http.StatusBadRequest)

		return
	}

	if len(req.ItemIDs) > maxBatchSize {
		http.Error(w, "batch too large", http.StatusBadRequest)

		return
	}

	results := h.enricher.Enrich(r.Context(), req.ItemIDs)

	writeJSON(w, r, http.StatusOK, EnrichResponse{Results: results})
}

// HandleDownloads runs the download pipeline for a batch of tasks.
func (h *ArchiveHandler) HandleDownloads(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	var req DownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error("failed to decode request", "err", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)

		return
	}

	if len(req.Tasks) == 0 {
		http.Error(w, "tasks must not be empty", http.StatusBadRequest)

		return
	}

	if len(req.Tasks) > maxBatchSize {
		http.Error(w, "batch too large", http.StatusBadRequest)

		return
	}

	for _, task := range req.Tasks {
		if task.ItemID == "" || task.SourceURL == "" {
			http.Error(w, "every task needs an item_id and url", http.StatusBadRequest)

			return
		}
	}

	results := h.downloader.FetchAll(r.Context(), req.Tasks)

	writeJSON(w, r, http.StatusOK, DownloadResponse{Results: results})
}

func (h *ArchiveHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, StatsResponse{
		Downloads: h.downloader.Stats(),
		API:       h.usage.Stats(),
	})
}

func (h *ArchiveHandler) HandleStatsReset(w http.ResponseWriter, r *http.Request) {
	h.downloader.Reset()
	w.WriteHeader(http.StatusNoContent)
}

func (h *ArchiveHandler) HandleCleanup(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	removed, err := h.downloader.CleanupDatabase(r.Context())
	if err != nil {
		logger.Error("cleanup failed", "err", err)
		http.Error(w, "cleanup failed", http.StatusInternalServerError)

		return
	}

	writeJSON(w, r, http.StatusOK, CleanupResponse{Removed: removed})
}

func (h *ArchiveHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok")) //nolint:errcheck
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logctx.LoggerFromContext(r.Context()).Error("failed to encode response", "err", err)
	}
}

package httptransport

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"frametruth/internal/audit"
	"frametruth/internal/file"
	id "frametruth/pkg/domain"
	dErrors "frametruth/pkg/domain-errors"
	"frametruth/pkg/platform/httputil"
	"frametruth/pkg/requestcontext"
)

// AuditHandler exposes the relational audit mirror and chain integrity
// operations. Everything here is administrator-only.
type AuditHandler struct {
	auditor *audit.Service
	gateway *file.Gateway
	logger  *slog.Logger
}

func NewAuditHandler(auditor *audit.Service, gateway *file.Gateway, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{auditor: auditor, gateway: gateway, logger: logger}
}

// Register mounts audit endpoints behind the admin gate.
func (h *AuditHandler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(RequireAdmin)
		r.Get("/audit/events", h.handleQuery)
		r.Get("/audit/channels/{channel}/verify", h.handleVerify)
		r.Post("/audit/channels/{channel}/export", h.handleExport)
		r.Get("/admin/stats", h.handleStats)
	})
}

// handleQuery filters the relational mirror. The chain files are not
// queryable over HTTP; they are verified and exported whole.
func (h *AuditHandler) handleQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter, ok := filterFromQuery(w, r)
	if !ok {
		return
	}
	entries, err := h.auditor.QueryAccess(ctx, filter)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, "", fromEntries(entries))
}

func (h *AuditHandler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	channel := chi.URLParam(r, "channel")
	if !validChannel(channel) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "unknown audit channel"))
		return
	}

	result, err := h.auditor.VerifyChannel(ctx, channel)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "chain verification run",
		"request_id", requestcontext.RequestID(ctx),
		"channel", channel,
		"valid", result.Valid,
		"records", result.TotalRecords,
	)
	httputil.WriteData(w, http.StatusOK, "", result)
}

func (h *AuditHandler) handleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	channel := chi.URLParam(r, "channel")
	if !validChannel(channel) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "unknown audit channel"))
		return
	}

	req, ok := httputil.DecodeJSON[exportRequest](w, r)
	if !ok {
		return
	}
	if req.DestinationPath == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "destination_path is required"))
		return
	}

	result, err := h.auditor.ExportChannel(ctx, channel, req.DestinationPath)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "chain exported",
		"request_id", requestcontext.RequestID(ctx),
		"channel", channel,
		"destination", req.DestinationPath,
		"valid", result.Valid,
	)
	httputil.WriteData(w, http.StatusOK, "channel exported", result)
}

func (h *AuditHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.gateway.Statistics(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, "", statsResponse{
		TotalFiles: stats.TotalFiles,
		TotalBytes: stats.TotalBytes,
	})
}

func validChannel(channel string) bool {
	return channel == audit.ChannelAccess || channel == audit.ChannelSecurity
}

func filterFromQuery(w http.ResponseWriter, r *http.Request) (audit.Filter, bool) {
	var filter audit.Filter
	q := r.URL.Query()

	if raw := q.Get("actor_id"); raw != "" {
		actorID, err := id.ParseUserID(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid actor_id"))
			return filter, false
		}
		filter.ActorID = &actorID
	}
	if raw := q.Get("file_id"); raw != "" {
		fileID, err := id.ParseFileID(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid file_id"))
			return filter, false
		}
		filter.FileID = &fileID
	}
	filter.Action = q.Get("action")

	if raw := q.Get("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "from must be RFC 3339"))
			return filter, false
		}
		filter.From = &from
	}
	if raw := q.Get("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "to must be RFC 3339"))
			return filter, false
		}
		filter.To = &to
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "limit must be a non-negative integer"))
			return filter, false
		}
		filter.Limit = limit
	}
	return filter, true
}

package httptransport

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"frametruth/internal/acl"
	"frametruth/internal/file"
	id "frametruth/pkg/domain"
	dErrors "frametruth/pkg/domain-errors"
	"frametruth/pkg/platform/httputil"
	"frametruth/pkg/requestcontext"
)

// maxUploadBytes bounds in-memory multipart buffering; larger bodies spill
// to temp files.
const maxUploadBytes = 32 << 20

// FileHandler wires evidence file endpoints to the gateway.
type FileHandler struct {
	gateway *file.Gateway
	logger  *slog.Logger
}

func NewFileHandler(gateway *file.Gateway, logger *slog.Logger) *FileHandler {
	return &FileHandler{gateway: gateway, logger: logger}
}

// Register mounts file endpoints. All of them require an authenticated actor.
func (h *FileHandler) Register(r chi.Router) {
	r.Post("/files", h.handleUpload)
	r.Get("/files", h.handleList)
	r.Get("/files/{fileID}", h.handleView)
	r.Get("/files/{fileID}/download", h.handleDownload)
	r.Delete("/files/{fileID}", h.handleDelete)
	r.Post("/files/{fileID}/share", h.handleShare)
	r.Delete("/files/{fileID}/share/{granteeID}", h.handleRevoke)
	r.Get("/files/{fileID}/grants", h.handleGrants)
}

func (h *FileHandler) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "multipart form expected"))
		return
	}
	part, header, err := r.FormFile("file")
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "file part is required"))
		return
	}
	defer part.Close()

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	uploaded, err := h.gateway.Upload(ctx, requestcontext.ActorID(ctx), header.Filename, mimeType, part)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "file uploaded",
		"request_id", requestcontext.RequestID(ctx),
		"file_id", uploaded.ID.String(),
		"size", uploaded.Size,
	)
	httputil.WriteData(w, http.StatusCreated, "file uploaded", fromFile(uploaded))
}

func (h *FileHandler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	listing, err := h.gateway.List(ctx, requestcontext.ActorID(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, "", listingResponse{
		Owned:  fromFiles(listing.Owned),
		Shared: fromFiles(listing.Shared),
	})
}

func (h *FileHandler) handleView(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	fileID, ok := fileIDFromURL(w, r)
	if !ok {
		return
	}
	viewed, detections, err := h.gateway.View(ctx, requestcontext.ActorID(ctx), fileID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, "", fileDetailResponse{
		fileResponse: fromFile(viewed),
		Detections:   fromDetections(detections),
	})
}

func (h *FileHandler) handleDownload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	fileID, ok := fileIDFromURL(w, r)
	if !ok {
		return
	}
	meta, content, err := h.gateway.Download(ctx, requestcontext.ActorID(ctx), fileID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	defer content.Close()

	w.Header().Set("Content-Type", meta.MimeType)
	w.Header().Set("Content-Length", fmt.Sprintf("%d", meta.Size))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", meta.Filename))
	if _, err := io.Copy(w, content); err != nil {
		// Headers are gone; nothing left to do but note the broken stream.
		h.logger.WarnContext(ctx, "download stream interrupted",
			"request_id", requestcontext.RequestID(ctx),
			"file_id", meta.ID.String(),
			"error", err,
		)
	}
}

func (h *FileHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	fileID, ok := fileIDFromURL(w, r)
	if !ok {
		return
	}
	if err := h.gateway.Delete(ctx, requestcontext.ActorID(ctx), fileID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, "file deleted", nil)
}

func (h *FileHandler) handleShare(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	fileID, ok := fileIDFromURL(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeJSON[shareRequest](w, r)
	if !ok {
		return
	}
	granteeID, err := id.ParseUserID(req.GranteeID)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid grantee id"))
		return
	}
	level, err := acl.ParseLevel(req.Level)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	err = h.gateway.Share(ctx, requestcontext.ActorID(ctx), fileID, granteeID, level, req.ExpiresAt)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, "access granted", nil)
}

// handleRevoke removes a grantee's access. Without a level query parameter
// every level they hold is revoked.
func (h *FileHandler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	fileID, ok := fileIDFromURL(w, r)
	if !ok {
		return
	}
	granteeID, err := id.ParseUserID(chi.URLParam(r, "granteeID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid grantee id"))
		return
	}

	var level *acl.Level
	if raw := r.URL.Query().Get("level"); raw != "" {
		parsed, err := acl.ParseLevel(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		level = &parsed
	}

	err = h.gateway.RevokeAccess(ctx, requestcontext.ActorID(ctx), fileID, granteeID, level)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, "access revoked", nil)
}

func (h *FileHandler) handleGrants(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	fileID, ok := fileIDFromURL(w, r)
	if !ok {
		return
	}
	grants, err := h.gateway.Grants(ctx, requestcontext.ActorID(ctx), fileID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, "", fromGrants(grants))
}

func fileIDFromURL(w http.ResponseWriter, r *http.Request) (id.FileID, bool) {
	fileID, err := id.ParseFileID(chi.URLParam(r, "fileID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid file id"))
		return id.FileID{}, false
	}
	return fileID, true
}

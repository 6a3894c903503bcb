package file

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"frametruth/internal/acl"
	"frametruth/internal/audit"
	"frametruth/internal/detection"
	"frametruth/internal/platform/metrics"
	"frametruth/internal/storage"
	id "frametruth/pkg/domain"
	dErrors "frametruth/pkg/domain-errors"
	"frametruth/pkg/platform/sentinel"
	txcontext "frametruth/pkg/platform/tx"
	"frametruth/pkg/requestcontext"
)

// Store persists file metadata. Pure I/O.
type Store interface {
	Create(ctx context.Context, f File) error
	ByID(ctx context.Context, fileID id.FileID) (File, error)
	Owner(ctx context.Context, fileID id.FileID) (id.UserID, error)
	ListByOwner(ctx context.Context, ownerID id.UserID) ([]File, error)
	ListByIDs(ctx context.Context, fileIDs []id.FileID) ([]File, error)
	// Delete removes the metadata row, joining a caller transaction when
	// one rides in ctx.
	Delete(ctx context.Context, fileID id.FileID) error
	Stats(ctx context.Context) (Stats, error)
}

// Gateway orchestrates every file operation: consult the access controller
// first, mutate state, then record the outcome through the audit service.
// No step loops back.
//
// Audit failure semantics: a chain write failure fails the whole operation
// even when the state mutation already committed, because an unaudited
// state change is unacceptable here. Denied attempts are recorded on the
// security chain on a best-effort basis; the caller gets the same denial
// either way.
type Gateway struct {
	files      Store
	blobs      storage.BlobStore
	access     *acl.Service
	auditor    *audit.Service
	detections *detection.Service
	db         *sql.DB
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
}

type Option func(*Gateway)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) { g.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// WithDetections enables forgery scoring on upload.
func WithDetections(d *detection.Service) Option {
	return func(g *Gateway) { g.detections = d }
}

// WithDB enables the transactional delete cascade. Without it, deletes
// fall back to sequential removal (in-memory stores).
func WithDB(db *sql.DB) Option {
	return func(g *Gateway) { g.db = db }
}

func NewGateway(files Store, blobs storage.BlobStore, access *acl.Service, auditor *audit.Service, opts ...Option) (*Gateway, error) {
	if files == nil {
		return nil, errors.New("file store is required")
	}
	if blobs == nil {
		return nil, errors.New("blob store is required")
	}
	if access == nil {
		return nil, errors.New("access controller is required")
	}
	if auditor == nil {
		return nil, errors.New("audit service is required")
	}
	g := &Gateway{
		files:   files,
		blobs:   blobs,
		access:  access,
		auditor: auditor,
		tracer:  otel.Tracer("frametruth/internal/file"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Upload stores content, creates the metadata record, and scores the file
// when a detector is wired. The detector is best-effort; a model outage
// never loses evidence.
func (g *Gateway) Upload(ctx context.Context, actorID id.UserID, filename, mimeType string, content io.Reader) (File, error) {
	ctx, span := g.tracer.Start(ctx, "file.Upload")
	defer span.End()

	if actorID.IsNil() {
		return File{}, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if filename == "" {
		return File{}, dErrors.New(dErrors.CodeInvalidInput, "filename is required")
	}

	blob, err := g.blobs.Store(ctx, content)
	if err != nil {
		return File{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "store content failed")
	}

	f := File{
		ID:         id.NewFileID(),
		OwnerID:    actorID,
		Filename:   filename,
		StorageRef: blob.Ref,
		Size:       blob.Size,
		MimeType:   mimeType,
		SHA256:     blob.SHA256,
		CreatedAt:  requestcontext.Now(ctx),
	}
	span.SetAttributes(attribute.String("file.id", f.ID.String()))

	if err := g.files.Create(ctx, f); err != nil {
		if removeErr := g.blobs.Remove(ctx, blob.Ref); removeErr != nil && g.logger != nil {
			g.logger.WarnContext(ctx, "orphaned blob after failed create", "ref", blob.Ref, "error", removeErr)
		}
		return File{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "create file record failed")
	}

	g.analyze(ctx, f)

	if _, err := g.auditor.Record(ctx, audit.Event{
		Type:    audit.TypeFileAccess,
		ActorID: actorID,
		FileID:  &f.ID,
		Action:  "UPLOAD",
		Metadata: map[string]string{
			"filename": filename,
			"sha256":   blob.SHA256,
			"size":     fmt.Sprintf("%d", blob.Size),
		},
	}); err != nil {
		return File{}, err
	}

	if g.metrics != nil {
		g.metrics.FilesUploaded.Inc()
	}
	return f, nil
}

// analyze scores freshly uploaded content. Failures are logged, never
// surfaced: the detector is an external collaborator, not a gatekeeper.
func (g *Gateway) analyze(ctx context.Context, f File) {
	if g.detections == nil {
		return
	}
	rc, err := g.blobs.Open(ctx, f.StorageRef)
	if err != nil {
		if g.logger != nil {
			g.logger.WarnContext(ctx, "reopen blob for analysis failed", "file_id", f.ID.String(), "error", err)
		}
		return
	}
	defer rc.Close()
	if _, err := g.detections.Analyze(ctx, f.ID, rc, f.MimeType); err != nil && g.logger != nil {
		g.logger.WarnContext(ctx, "content analysis failed", "file_id", f.ID.String(), "error", err)
	}
}

// View returns the metadata and detections for a file the actor can read.
func (g *Gateway) View(ctx context.Context, actorID id.UserID, fileID id.FileID) (File, []detection.Detection, error) {
	ctx, span := g.tracer.Start(ctx, "file.View",
		trace.WithAttributes(attribute.String("file.id", fileID.String())))
	defer span.End()

	if err := g.authorize(ctx, actorID, fileID, acl.LevelRead, "VIEW"); err != nil {
		return File{}, nil, err
	}
	f, err := g.files.ByID(ctx, fileID)
	if err != nil {
		return File{}, nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "load file failed")
	}

	var detections []detection.Detection
	if g.detections != nil {
		if detections, err = g.detections.ListForFile(ctx, fileID); err != nil {
			return File{}, nil, err
		}
	}

	if _, err := g.auditor.Record(ctx, audit.Event{
		Type:    audit.TypeFileAccess,
		ActorID: actorID,
		FileID:  &fileID,
		Action:  "VIEW",
	}); err != nil {
		return File{}, nil, err
	}
	return f, detections, nil
}

// Download returns the content stream. The audit record is written before
// the first content byte leaves the process.
func (g *Gateway) Download(ctx context.Context, actorID id.UserID, fileID id.FileID) (File, io.ReadCloser, error) {
	ctx, span := g.tracer.Start(ctx, "file.Download",
		trace.WithAttributes(attribute.String("file.id", fileID.String())))
	defer span.End()

	if err := g.authorize(ctx, actorID, fileID, acl.LevelRead, "DOWNLOAD"); err != nil {
		return File{}, nil, err
	}
	f, err := g.files.ByID(ctx, fileID)
	if err != nil {
		return File{}, nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "load file failed")
	}
	rc, err := g.blobs.Open(ctx, f.StorageRef)
	if err != nil {
		return File{}, nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "open content failed")
	}

	if _, err := g.auditor.Record(ctx, audit.Event{
		Type:    audit.TypeFileAccess,
		ActorID: actorID,
		FileID:  &fileID,
		Action:  "DOWNLOAD",
	}); err != nil {
		rc.Close()
		return File{}, nil, err
	}
	return f, rc, nil
}

// Share grants another user access. Authorization (granter must hold
// admin) lives in the access controller.
func (g *Gateway) Share(ctx context.Context, actorID id.UserID, fileID id.FileID, granteeID id.UserID, level acl.Level, expiresAt *time.Time) error {
	ctx, span := g.tracer.Start(ctx, "file.Share",
		trace.WithAttributes(attribute.String("file.id", fileID.String())))
	defer span.End()

	if err := g.access.Grant(ctx, actorID, fileID, granteeID, level, expiresAt); err != nil {
		switch {
		case dErrors.HasCode(err, dErrors.CodeForbidden):
			g.recordDenied(ctx, actorID, fileID, "SHARE", "insufficient_permissions")
		case dErrors.HasCode(err, dErrors.CodeNotFound):
			g.recordDenied(ctx, actorID, fileID, "SHARE", "resource_not_found")
		}
		return err
	}

	_, err := g.auditor.Record(ctx, audit.Event{
		Type:    audit.TypeUserAction,
		ActorID: actorID,
		FileID:  &fileID,
		Action:  "SHARE",
		Metadata: map[string]string{
			"grantee": granteeID.String(),
			"level":   level.String(),
		},
	})
	return err
}

// RevokeAccess removes one grant, or every grant the grantee holds on the
// file when level is nil.
func (g *Gateway) RevokeAccess(ctx context.Context, actorID id.UserID, fileID id.FileID, granteeID id.UserID, level *acl.Level) error {
	ctx, span := g.tracer.Start(ctx, "file.RevokeAccess",
		trace.WithAttributes(attribute.String("file.id", fileID.String())))
	defer span.End()

	metadata := map[string]string{"grantee": granteeID.String()}
	var err error
	if level != nil {
		metadata["level"] = level.String()
		err = g.access.Revoke(ctx, actorID, fileID, granteeID, *level)
	} else {
		metadata["level"] = "all"
		_, err = g.access.RevokeAll(ctx, actorID, fileID, granteeID)
	}
	if err != nil {
		switch {
		case dErrors.HasCode(err, dErrors.CodeForbidden):
			g.recordDenied(ctx, actorID, fileID, "REVOKE", "insufficient_permissions")
		case dErrors.HasCode(err, dErrors.CodeNotFound):
			// Not found can also mean an absent grant on a real file; only
			// a probe against a missing file belongs on the security chain.
			if _, lookupErr := g.files.Owner(ctx, fileID); errors.Is(lookupErr, sentinel.ErrNotFound) {
				g.recordDenied(ctx, actorID, fileID, "REVOKE", "resource_not_found")
			}
		}
		return err
	}

	_, err = g.auditor.Record(ctx, audit.Event{
		Type:     audit.TypeUserAction,
		ActorID:  actorID,
		FileID:   &fileID,
		Action:   "REVOKE",
		Metadata: metadata,
	})
	return err
}

// Delete removes the file record, its grants and its detections in one
// transaction, then the blob. The blob removal is best-effort; an orphaned
// blob is unreachable garbage, not a correctness problem.
func (g *Gateway) Delete(ctx context.Context, actorID id.UserID, fileID id.FileID) error {
	ctx, span := g.tracer.Start(ctx, "file.Delete",
		trace.WithAttributes(attribute.String("file.id", fileID.String())))
	defer span.End()

	if err := g.authorize(ctx, actorID, fileID, acl.LevelAdmin, "DELETE"); err != nil {
		return err
	}
	f, err := g.files.ByID(ctx, fileID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "load file failed")
	}

	err = g.runInTx(ctx, func(ctx context.Context) error {
		if _, err := g.access.RemoveAllForFile(ctx, fileID); err != nil {
			return fmt.Errorf("remove grants: %w", err)
		}
		if g.detections != nil {
			if _, err := g.detections.RemoveForFile(ctx, fileID); err != nil {
				return fmt.Errorf("remove detections: %w", err)
			}
		}
		if err := g.files.Delete(ctx, fileID); err != nil {
			return fmt.Errorf("remove file record: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "file does not exist")
		}
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "delete file failed")
	}

	if err := g.blobs.Remove(ctx, f.StorageRef); err != nil && g.logger != nil {
		g.logger.WarnContext(ctx, "orphaned blob after delete", "ref", f.StorageRef, "error", err)
	}

	_, err = g.auditor.Record(ctx, audit.Event{
		Type:    audit.TypeFileAccess,
		ActorID: actorID,
		FileID:  &fileID,
		Action:  "DELETE",
		Metadata: map[string]string{
			"filename": f.Filename,
		},
	})
	return err
}

// Listing groups the files visible to one user.
type Listing struct {
	Owned  []File
	Shared []File
}

// List returns the actor's own files and those currently shared with them.
func (g *Gateway) List(ctx context.Context, actorID id.UserID) (Listing, error) {
	ctx, span := g.tracer.Start(ctx, "file.List")
	defer span.End()

	owned, err := g.files.ListByOwner(ctx, actorID)
	if err != nil {
		return Listing{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "list files failed")
	}

	grants, err := g.access.ActiveForUser(ctx, actorID)
	if err != nil {
		return Listing{}, err
	}
	seen := make(map[id.FileID]struct{}, len(grants))
	fileIDs := make([]id.FileID, 0, len(grants))
	for _, grant := range grants {
		if _, dup := seen[grant.FileID]; dup {
			continue
		}
		seen[grant.FileID] = struct{}{}
		fileIDs = append(fileIDs, grant.FileID)
	}
	shared, err := g.files.ListByIDs(ctx, fileIDs)
	if err != nil {
		return Listing{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "list shared files failed")
	}
	return Listing{Owned: owned, Shared: shared}, nil
}

// Grants lists who holds access to a file. Owner or admin only.
func (g *Gateway) Grants(ctx context.Context, actorID id.UserID, fileID id.FileID) ([]acl.Grant, error) {
	if err := g.authorize(ctx, actorID, fileID, acl.LevelAdmin, "LIST_GRANTS"); err != nil {
		return nil, err
	}
	return g.access.ListForFile(ctx, fileID)
}

// Statistics summarizes the corpus for the admin dashboard.
func (g *Gateway) Statistics(ctx context.Context) (Stats, error) {
	stats, err := g.files.Stats(ctx)
	if err != nil {
		return Stats{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "file stats failed")
	}
	return stats, nil
}

// authorize runs the access check and maps both "no such file" and
// "insufficient permissions" to one uniform denial on the wire, so a
// caller cannot enumerate resources by probing. The audit record keeps
// the two cases distinct.
func (g *Gateway) authorize(ctx context.Context, actorID id.UserID, fileID id.FileID, level acl.Level, operation string) error {
	allowed, err := g.access.CanAccess(ctx, actorID, fileID, level)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			g.recordDenied(ctx, actorID, fileID, operation, "resource_not_found")
			return dErrors.New(dErrors.CodeForbidden, "access denied")
		}
		return err
	}
	if !allowed {
		g.recordDenied(ctx, actorID, fileID, operation, "insufficient_permissions")
		return dErrors.New(dErrors.CodeForbidden, "access denied")
	}
	return nil
}

// recordDenied chains the denied attempt as a security event. Best-effort:
// the caller returns the denial regardless, and a chain outage must not
// convert a denial into an internal error.
func (g *Gateway) recordDenied(ctx context.Context, actorID id.UserID, fileID id.FileID, operation, reason string) {
	_, err := g.auditor.Record(ctx, audit.Event{
		Type:    audit.TypeSecurityEvent,
		ActorID: actorID,
		FileID:  &fileID,
		Action:  "ACCESS_DENIED",
		Metadata: map[string]string{
			"operation": operation,
			"reason":    reason,
		},
	})
	if err != nil && g.logger != nil {
		g.logger.ErrorContext(ctx, "failed to record denied access", "error", err)
	}
}

// runInTx wraps fn in a database transaction carried through ctx. Without
// a database handle (in-memory stores) fn runs directly.
func (g *Gateway) runInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if g.db == nil {
		return fn(ctx)
	}
	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && g.logger != nil {
			g.logger.ErrorContext(ctx, "rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

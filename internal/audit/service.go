package audit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"frametruth/internal/audit/chain"
	"frametruth/internal/platform/metrics"
	dErrors "frametruth/pkg/domain-errors"
	"frametruth/pkg/requestcontext"
)

// EventStore is the relational mirror of audit events. Its availability is
// not load-bearing: a failed write is absorbed and reported, never fatal.
type EventStore interface {
	Record(ctx context.Context, e Entry) error
	Query(ctx context.Context, f Filter) ([]Entry, error)
	Purge(ctx context.Context, olderThan time.Time) (int, error)
}

// ChainLog is the tamper-evident sink. A failed append here fails the
// calling operation: an unaudited state change is unacceptable.
type ChainLog interface {
	Append(ctx context.Context, channel string, e chain.Entry) (string, error)
	Verify(ctx context.Context, channel string) (chain.Result, error)
	Export(ctx context.Context, channel, destPath string) (chain.Result, error)
}

// OpsPublisher mirrors chained records to an external stream (Kafka) for
// dashboards. Strictly best-effort.
type OpsPublisher interface {
	Publish(ctx context.Context, key string, value []byte)
}

// Service fans each event out to the relational mirror and the hash chain.
//
// Write order and guarantees: the relational write goes first, then the
// chain append. If the mirror fails the chain still gets the event plus a
// SYSTEM_EVENT describing the mirror failure, so the two sinks may drift by
// exactly the rows the mirror dropped; the chain never drifts behind the
// mirror because a chain failure aborts the operation before the caller
// treats it as complete.
type Service struct {
	events  EventStore
	chain   ChainLog
	ops     OpsPublisher
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithOpsPublisher attaches the optional streaming mirror.
func WithOpsPublisher(p OpsPublisher) Option {
	return func(s *Service) { s.ops = p }
}

func New(events EventStore, chainLog ChainLog, opts ...Option) (*Service, error) {
	if events == nil {
		return nil, errors.New("event store is required")
	}
	if chainLog == nil {
		return nil, errors.New("chain log is required")
	}
	svc := &Service{events: events, chain: chainLog}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Record writes the event to both sinks and returns the chain record hash
// as a receipt. The error, when non-nil, always means the chain write did
// not happen; callers must treat their operation as failed.
func (s *Service) Record(ctx context.Context, ev Event) (string, error) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = requestcontext.Now(ctx)
	}
	if ev.IPAddress == "" {
		ev.IPAddress = requestcontext.ClientIP(ctx)
	}
	if ev.UserAgent == "" {
		ev.UserAgent = requestcontext.UserAgent(ctx)
	}

	if err := s.events.Record(ctx, ev.entry()); err != nil {
		s.relationalFailure(ctx, ev, err)
	}

	channel := ChannelFor(ev.Type)
	receipt, err := s.chain.Append(ctx, channel, ev.chainEntry(ctx))
	if err != nil {
		if s.metrics != nil {
			s.metrics.ChainAppendFailures.Inc()
		}
		if s.logger != nil {
			s.logger.ErrorContext(ctx, "CRITICAL: audit chain append failed",
				"channel", channel,
				"action", ev.Action,
				"error", err,
			)
		}
		if dErrors.HasCode(err, dErrors.CodeTimeout) {
			return "", err
		}
		return "", dErrors.Wrap(err, dErrors.CodeAuditChain, "audit chain append failed")
	}

	if s.ops != nil {
		if payload, err := marshalOps(ev, receipt); err == nil {
			s.ops.Publish(ctx, receipt, payload)
		}
	}
	return receipt, nil
}

// relationalFailure absorbs a mirror write failure: counted, logged, and
// recorded on the security chain as a SYSTEM_EVENT on a best-effort basis.
func (s *Service) relationalFailure(ctx context.Context, ev Event, cause error) {
	if s.metrics != nil {
		s.metrics.RelationalLogFailures.Inc()
	}
	if s.logger != nil {
		s.logger.WarnContext(ctx, "relational audit mirror write failed",
			"action", ev.Action,
			"error", cause,
		)
	}
	_, err := s.chain.Append(ctx, ChannelSecurity, chain.Entry{
		Type:   string(TypeSystemEvent),
		Action: "RELATIONAL_WRITE_FAILURE",
		Metadata: map[string]string{
			"failed_action": ev.Action,
			"error":         cause.Error(),
		},
		Timestamp: ev.OccurredAt,
	})
	if err != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "failed to chain-record a mirror failure", "error", err)
	}
}

// VerifyChannel runs an integrity walk over one chain channel.
func (s *Service) VerifyChannel(ctx context.Context, channel string) (chain.Result, error) {
	return s.chain.Verify(ctx, channel)
}

// ExportChannel snapshots a channel with its verification trailer.
func (s *Service) ExportChannel(ctx context.Context, channel, destPath string) (chain.Result, error) {
	return s.chain.Export(ctx, channel, destPath)
}

// QueryAccess returns mirror rows matching the filter, newest first.
func (s *Service) QueryAccess(ctx context.Context, f Filter) ([]Entry, error) {
	entries, err := s.events.Query(ctx, f)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "query audit mirror failed")
	}
	return entries, nil
}

// PurgeMirror deletes mirror rows older than the retention cutoff. The
// chain files are never pruned; rewriting them would break verifiability
// of every later record.
func (s *Service) PurgeMirror(ctx context.Context, olderThan time.Time) (int, error) {
	n, err := s.events.Purge(ctx, olderThan)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeUnavailable, "purge audit mirror failed")
	}
	if s.metrics != nil {
		s.metrics.SweepPurgedEvents.Add(float64(n))
	}
	if n > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "audit mirror purged", "count", n, "older_than", olderThan)
	}
	return n, nil
}

// marshalOps is the streaming mirror payload: the chained fields plus the
// receipt, keyed by receipt so consumers can dedupe.
func marshalOps(ev Event, receipt string) ([]byte, error) {
	actor := ""
	if !ev.ActorID.IsNil() {
		actor = ev.ActorID.String()
	}
	resource := ""
	if ev.FileID != nil {
		resource = ev.FileID.String()
	}
	return json.Marshal(struct {
		Timestamp  string `json:"timestamp"`
		Type       string `json:"event_type"`
		Actor      string `json:"actor,omitempty"`
		Resource   string `json:"resource,omitempty"`
		Action     string `json:"action"`
		RecordHash string `json:"record_hash"`
	}{
		Timestamp:  ev.OccurredAt.UTC().Format(time.RFC3339Nano),
		Type:       string(ev.Type),
		Actor:      actor,
		Resource:   resource,
		Action:     ev.Action,
		RecordHash: receipt,
	})
}

func (e Event) entry() Entry {
	return Entry{
		ActorID:    e.ActorID,
		FileID:     e.FileID,
		Action:     e.Action,
		IPAddress:  e.IPAddress,
		UserAgent:  e.UserAgent,
		Metadata:   e.Metadata,
		OccurredAt: e.OccurredAt,
	}
}

// chainEntry maps the event onto the chain record, folding transport
// context into metadata so the chained record is self-contained.
func (e Event) chainEntry(ctx context.Context) chain.Entry {
	metadata := make(map[string]string, len(e.Metadata)+3)
	for k, v := range e.Metadata {
		metadata[k] = v
	}
	if e.IPAddress != "" {
		metadata["ip_address"] = e.IPAddress
	}
	if e.UserAgent != "" {
		metadata["user_agent"] = e.UserAgent
	}
	if reqID := requestcontext.RequestID(ctx); reqID != "" {
		metadata["request_id"] = reqID
	}
	if len(metadata) == 0 {
		metadata = nil
	}

	entry := chain.Entry{
		Type:      string(e.Type),
		Action:    e.Action,
		Metadata:  metadata,
		Timestamp: e.OccurredAt,
	}
	if !e.ActorID.IsNil() {
		entry.Actor = e.ActorID.String()
	}
	if e.FileID != nil {
		entry.Resource = e.FileID.String()
	}
	return entry
}

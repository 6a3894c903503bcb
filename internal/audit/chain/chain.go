// Package chain implements the tamper-evident audit log: one append-only
// file per channel, each line a self-contained JSON record whose hash binds
// the record content and the previous record's hash. Any retroactive edit,
// deletion, reordering or duplication of a historical record is detectable
// by Verify without trusting the live process.
package chain

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"frametruth/internal/platform/metrics"
	dErrors "frametruth/pkg/domain-errors"
)

// genesisHash is the prev_hash of a channel's first record.
const genesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// initAction marks the record written when a channel file is created. It
// anchors the chain; Verify treats it like any other record.
const initAction = "CHANNEL_INIT"

// maxLineBytes bounds a single record line during verification scans.
const maxLineBytes = 1 << 20

// defaultLockWait bounds how long an append waits for the channel writer
// lock before failing as retryable.
const defaultLockWait = 5 * time.Second

// Entry is the caller-supplied content of one chain record. The chain adds
// the timestamp default, prev_hash and record_hash.
type Entry struct {
	Type      string
	Actor     string
	Resource  string
	Action    string
	Metadata  map[string]string
	Timestamp time.Time
}

// record is the on-disk line format. Field order here fixes the canonical
// serialization; encoding/json additionally sorts metadata keys, so the
// hashed bytes are deterministic.
type record struct {
	Timestamp  string            `json:"timestamp"`
	Type       string            `json:"event_type"`
	Actor      string            `json:"actor,omitempty"`
	Resource   string            `json:"resource,omitempty"`
	Action     string            `json:"action"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	PrevHash   string            `json:"prev_hash"`
	RecordHash string            `json:"record_hash"`
}

// hashRegion is the record minus record_hash: exactly the bytes the digest
// covers. prev_hash is inside the region, which is what links the chain.
type hashRegion struct {
	Timestamp string            `json:"timestamp"`
	Type      string            `json:"event_type"`
	Actor     string            `json:"actor,omitempty"`
	Resource  string            `json:"resource,omitempty"`
	Action    string            `json:"action"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	PrevHash  string            `json:"prev_hash"`
}

func (r record) computeHash() (string, error) {
	region := hashRegion{
		Timestamp: r.Timestamp,
		Type:      r.Type,
		Actor:     r.Actor,
		Resource:  r.Resource,
		Action:    r.Action,
		Metadata:  r.Metadata,
		PrevHash:  r.PrevHash,
	}
	b, err := json.Marshal(region)
	if err != nil {
		return "", fmt.Errorf("marshal hash region: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Issue is one positioned verification failure. Position is the 1-based
// line number in the channel file.
type Issue struct {
	Position int    `json:"position"`
	Reason   string `json:"reason"`
}

// Result reports a channel verification. Empty distinguishes "nothing to
// falsify" from "valid with records"; TotalRecords counts event records,
// the channel init record excluded.
type Result struct {
	Channel      string  `json:"channel"`
	Valid        bool    `json:"valid"`
	Empty        bool    `json:"empty"`
	TotalRecords int     `json:"total_records"`
	Issues       []Issue `json:"issues,omitempty"`
}

type channelState struct {
	writer   chan struct{}
	lastHash string
	loaded   bool
}

// Log is the per-channel hash chain writer and verifier. Appends to a
// channel are serialized through a single writer slot with a bounded wait;
// two writers computing prev_hash from the same tail would fork the chain.
type Log struct {
	dir      string
	lockWait time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics

	mu       sync.Mutex
	channels map[string]*channelState
}

type Option func(*Log)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Log) { l.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Log) { l.metrics = m }
}

// WithLockWait bounds the wait for the per-channel writer lock.
func WithLockWait(d time.Duration) Option {
	return func(l *Log) { l.lockWait = d }
}

// New creates a chain log rooted at dir, creating the directory if needed.
func New(dir string, opts ...Option) (*Log, error) {
	if dir == "" {
		return nil, errors.New("chain log directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create chain log directory: %w", err)
	}
	l := &Log{
		dir:      dir,
		lockWait: defaultLockWait,
		channels: make(map[string]*channelState),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

func (l *Log) path(channel string) string {
	return filepath.Join(l.dir, channel+".log")
}

func (l *Log) state(channel string) *channelState {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.channels[channel]
	if !ok {
		st = &channelState{writer: make(chan struct{}, 1)}
		l.channels[channel] = st
	}
	return st
}

// acquire takes the channel's writer slot, waiting at most lockWait.
// Timeout surfaces as a retryable error, never a deadlock.
func (l *Log) acquire(ctx context.Context, st *channelState) error {
	timer := time.NewTimer(l.lockWait)
	defer timer.Stop()
	select {
	case st.writer <- struct{}{}:
		return nil
	case <-timer.C:
		return dErrors.New(dErrors.CodeTimeout, "audit channel writer busy")
	case <-ctx.Done():
		return dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "audit channel lock wait canceled")
	}
}

func (l *Log) release(st *channelState) {
	<-st.writer
}

// Append writes one record to the channel and returns its record_hash as a
// receipt. The first append to a fresh channel also writes the channel init
// record. An error here means the event is NOT durably recorded.
func (l *Log) Append(ctx context.Context, channel string, e Entry) (string, error) {
	if channel == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "channel name is required")
	}
	st := l.state(channel)
	if err := l.acquire(ctx, st); err != nil {
		return "", err
	}
	defer l.release(st)

	if !st.loaded {
		if err := l.loadTail(channel, st); err != nil {
			return "", dErrors.Wrap(err, dErrors.CodeAuditChain, "recover chain tail")
		}
	}

	f, err := os.OpenFile(l.path(channel), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeAuditChain, "open chain file")
	}
	defer f.Close()

	if st.lastHash == "" {
		initHash, err := writeRecord(f, record{
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			Type:      "SYSTEM_EVENT",
			Action:    initAction,
			PrevHash:  genesisHash,
		})
		if err != nil {
			return "", dErrors.Wrap(err, dErrors.CodeAuditChain, "write channel init record")
		}
		st.lastHash = initHash
	}

	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	hash, err := writeRecord(f, record{
		Timestamp: ts.UTC().Format(time.RFC3339Nano),
		Type:      e.Type,
		Actor:     e.Actor,
		Resource:  e.Resource,
		Action:    e.Action,
		Metadata:  e.Metadata,
		PrevHash:  st.lastHash,
	})
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeAuditChain, "append chain record")
	}
	if err := f.Sync(); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeAuditChain, "sync chain file")
	}
	st.lastHash = hash
	l.metrics.ChainAppend(channel)
	return hash, nil
}

// writeRecord finalizes the record hash and appends it as one line.
func writeRecord(w io.Writer, r record) (string, error) {
	hash, err := r.computeHash()
	if err != nil {
		return "", err
	}
	r.RecordHash = hash
	line, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}
	if _, err := w.Write(append(line, '\n')); err != nil {
		return "", fmt.Errorf("write record: %w", err)
	}
	return hash, nil
}

// loadTail recovers the last record hash of an existing channel file so a
// restarted process continues the chain instead of forking it.
func (l *Log) loadTail(channel string, st *channelState) error {
	f, err := os.Open(l.path(channel))
	if err != nil {
		if os.IsNotExist(err) {
			st.loaded = true
			return nil
		}
		return fmt.Errorf("open chain file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	var last string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var r record
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			return fmt.Errorf("chain file has an unparseable tail record: %w", err)
		}
		last = r.RecordHash
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan chain file: %w", err)
	}
	st.lastHash = last
	st.loaded = true
	return nil
}

// Verify walks every record of a channel in file order and checks both the
// stored record_hash against a recomputation and the prev_hash linkage to
// the preceding record. Failures are collected per position rather than
// stopping at the first, so one corruption point cannot mask earlier ones;
// the chain is still considered compromised from the first issue onward.
func (l *Log) Verify(ctx context.Context, channel string) (Result, error) {
	res := Result{Channel: channel}
	f, err := os.Open(l.path(channel))
	if err != nil {
		if os.IsNotExist(err) {
			res.Valid = true
			res.Empty = true
			return res, nil
		}
		return res, dErrors.Wrap(err, dErrors.CodeAuditChain, "open chain file")
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	var (
		position int
		prevHash string
	)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return res, dErrors.Wrap(err, dErrors.CodeTimeout, "verification canceled")
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		position++

		var r record
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			res.Issues = append(res.Issues, Issue{position, "record is not valid JSON"})
			prevHash = ""
			continue
		}

		recomputed, err := r.computeHash()
		if err != nil {
			res.Issues = append(res.Issues, Issue{position, "record hash not computable"})
		} else if recomputed != r.RecordHash {
			res.Issues = append(res.Issues, Issue{position, "record content does not match its stored hash"})
		}

		if position == 1 {
			if r.PrevHash != genesisHash {
				res.Issues = append(res.Issues, Issue{position, "first record does not anchor to the genesis hash"})
			}
		} else if r.PrevHash != prevHash {
			res.Issues = append(res.Issues, Issue{position, "prev_hash does not match the preceding record"})
		}
		prevHash = r.RecordHash

		if !(position == 1 && r.Action == initAction) {
			res.TotalRecords++
		}
	}
	if err := scanner.Err(); err != nil {
		return res, dErrors.Wrap(err, dErrors.CodeAuditChain, "scan chain file")
	}

	res.Valid = len(res.Issues) == 0
	res.Empty = position == 0
	return res, nil
}

// Export copies the channel file to destPath and appends a trailer line
// stating the verification outcome at export time, so a third party can
// audit the snapshot without access to the live system. The channel writer
// lock is held for the duration to keep the snapshot consistent.
func (l *Log) Export(ctx context.Context, channel, destPath string) (Result, error) {
	st := l.state(channel)
	if err := l.acquire(ctx, st); err != nil {
		return Result{}, err
	}
	defer l.release(st)

	res, err := l.Verify(ctx, channel)
	if err != nil {
		return res, err
	}

	contents, err := os.ReadFile(l.path(channel))
	if err != nil && !os.IsNotExist(err) {
		return res, dErrors.Wrap(err, dErrors.CodeAuditChain, "read chain file")
	}

	trailer := struct {
		Trailer    bool   `json:"trailer"`
		ExportedAt string `json:"exported_at"`
		Result
	}{
		Trailer:    true,
		ExportedAt: time.Now().UTC().Format(time.RFC3339Nano),
		Result:     res,
	}
	line, err := json.Marshal(trailer)
	if err != nil {
		return res, dErrors.Wrap(err, dErrors.CodeAuditChain, "marshal export trailer")
	}

	out, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return res, dErrors.Wrap(err, dErrors.CodeAuditChain, "create export file")
	}
	defer out.Close()
	if _, err := out.Write(contents); err != nil {
		return res, dErrors.Wrap(err, dErrors.CodeAuditChain, "write export file")
	}
	if _, err := out.Write(append(line, '\n')); err != nil {
		return res, dErrors.Wrap(err, dErrors.CodeAuditChain, "write export trailer")
	}
	if err := out.Sync(); err != nil {
		return res, dErrors.Wrap(err, dErrors.CodeAuditChain, "sync export file")
	}

	if l.logger != nil {
		l.logger.InfoContext(ctx, "audit channel exported",
			"channel", channel,
			"dest", destPath,
			"valid", res.Valid,
			"total_records", res.TotalRecords,
		)
	}
	return res, nil
}

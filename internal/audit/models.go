package audit

import (
	"time"

	id "frametruth/pkg/domain"
)

// EventType classifies an audit event. The type decides which hash chain
// channel the event lands on.
type EventType string

const (
	TypeFileAccess    EventType = "FILE_ACCESS"
	TypeUserAction    EventType = "USER_ACTION"
	TypeSecurityEvent EventType = "SECURITY_EVENT"
	TypeSystemEvent   EventType = "SYSTEM_EVENT"
)

// Channel names. Each channel is an independent hash chain; records never
// cross channels.
const (
	ChannelAccess   = "access"
	ChannelSecurity = "security"
)

// ChannelFor routes an event type to its chain channel. File and user
// activity share the access chain; security and system events (including
// the subsystem's own failure reports) go to the security chain.
func ChannelFor(t EventType) string {
	switch t {
	case TypeSecurityEvent, TypeSystemEvent:
		return ChannelSecurity
	default:
		return ChannelAccess
	}
}

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Type       EventType
	ActorID    id.UserID
	FileID     *id.FileID
	Action     string
	IPAddress  string
	UserAgent  string
	Metadata   map[string]string
	OccurredAt time.Time
}

// Entry is one row of the relational mirror. The mirror serves dashboards
// and filtered queries; the hash chain remains the tamper-evidence source
// of truth.
type Entry struct {
	ID         int64
	ActorID    id.UserID
	FileID     *id.FileID
	Action     string
	IPAddress  string
	UserAgent  string
	Metadata   map[string]string
	OccurredAt time.Time
}

// Filter narrows a relational query. Nil or zero fields match everything;
// results are newest-first and capped by Limit.
type Filter struct {
	ActorID *id.UserID
	FileID  *id.FileID
	Action  string
	From    *time.Time
	To      *time.Time
	Limit   int
}

package acl

import (
	"time"

	id "frametruth/pkg/domain"
	dErrors "frametruth/pkg/domain-errors"
)

// Level is a permission level on a file. Levels form a total order
// read < write < admin: holding a higher level implies all lower capabilities.
type Level string

const (
	LevelRead  Level = "read"
	LevelWrite Level = "write"
	LevelAdmin Level = "admin"
)

var levelRank = map[Level]int{
	LevelRead:  1,
	LevelWrite: 2,
	LevelAdmin: 3,
}

// ParseLevel constructs a Level from external input.
func ParseLevel(s string) (Level, error) {
	l := Level(s)
	if _, ok := levelRank[l]; !ok {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid permission level")
	}
	return l, nil
}

// Satisfies reports whether holding l grants the capability required.
func (l Level) Satisfies(required Level) bool {
	return levelRank[l] >= levelRank[required]
}

func (l Level) String() string { return string(l) }

// Grant is one row of the permission table. At most one row exists per
// (file, grantee, level); re-granting refreshes GrantedBy/GrantedAt/ExpiresAt.
type Grant struct {
	FileID    id.FileID
	GranteeID id.UserID
	Level     Level
	GrantedBy id.UserID
	GrantedAt time.Time
	// ExpiresAt nil means the grant never expires.
	ExpiresAt *time.Time
}

// Active reports whether the grant is usable at the given instant. Expiry is
// always re-checked at evaluation time; the maintenance sweep is advisory
// cleanup only.
func (g Grant) Active(now time.Time) bool {
	return g.ExpiresAt == nil || g.ExpiresAt.After(now)
}

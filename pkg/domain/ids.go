// Package domain holds shared value types used across services.
//
// IDs are distinct named types over uuid.UUID so the compiler rejects passing
// a user ID where a file ID is expected. Construct them from external input
// via the Parse helpers, which enforce format and reject nil UUIDs.
package domain

import (
	"fmt"

	"github.com/google/uuid"

	dErrors "frametruth/pkg/domain-errors"
)

type (
	// UserID identifies an actor (uploader, grantee, administrator).
	UserID uuid.UUID

	// FileID identifies an evidence file. Ownership is fixed at creation.
	FileID uuid.UUID

	// SessionID identifies an authenticated session.
	SessionID uuid.UUID
)

// parseUUID validates external input as a non-nil UUID.
func parseUUID(kind, s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("%s id cannot be empty", kind))
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("invalid %s id format", kind))
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("%s id cannot be nil", kind))
	}
	return u, nil
}

// ParseUserID constructs a UserID from external input.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID("user", s)
	return UserID(u), err
}

// ParseFileID constructs a FileID from external input.
func ParseFileID(s string) (FileID, error) {
	u, err := parseUUID("file", s)
	return FileID(u), err
}

// ParseSessionID constructs a SessionID from external input.
func ParseSessionID(s string) (SessionID, error) {
	u, err := parseUUID("session", s)
	return SessionID(u), err
}

func (id UserID) String() string    { return uuid.UUID(id).String() }
func (id FileID) String() string    { return uuid.UUID(id).String() }
func (id SessionID) String() string { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id FileID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id SessionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// Text marshaling keeps IDs as canonical UUID strings in JSON payloads
// and cache entries.

func (id UserID) MarshalText() ([]byte, error)    { return []byte(id.String()), nil }
func (id FileID) MarshalText() ([]byte, error)    { return []byte(id.String()), nil }
func (id SessionID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *UserID) UnmarshalText(text []byte) error {
	u, err := uuid.ParseBytes(text)
	if err != nil {
		return fmt.Errorf("parse user id: %w", err)
	}
	*id = UserID(u)
	return nil
}

func (id *FileID) UnmarshalText(text []byte) error {
	u, err := uuid.ParseBytes(text)
	if err != nil {
		return fmt.Errorf("parse file id: %w", err)
	}
	*id = FileID(u)
	return nil
}

func (id *SessionID) UnmarshalText(text []byte) error {
	u, err := uuid.ParseBytes(text)
	if err != nil {
		return fmt.Errorf("parse session id: %w", err)
	}
	*id = SessionID(u)
	return nil
}

// NewUserID returns a fresh random UserID.
func NewUserID() UserID { return UserID(uuid.New()) }

// NewFileID returns a fresh random FileID.
func NewFileID() FileID { return FileID(uuid.New()) }

// NewSessionID returns a fresh random SessionID.
func NewSessionID() SessionID { return SessionID(uuid.New()) }

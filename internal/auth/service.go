package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"frametruth/internal/audit"
	"frametruth/internal/token"
	id "frametruth/pkg/domain"
	dErrors "frametruth/pkg/domain-errors"
	"frametruth/pkg/platform/sentinel"
	"frametruth/pkg/requestcontext"
)

const (
	minPasswordLength = 8
	defaultSessionTTL = 12 * time.Hour
)

// UserStore persists accounts. Pure I/O; sentinel.ErrConflict on a
// duplicate username, sentinel.ErrNotFound on an absent user.
type UserStore interface {
	Create(ctx context.Context, user User) error
	ByUsername(ctx context.Context, username string) (User, error)
	ByID(ctx context.Context, userID id.UserID) (User, error)
	SetLastLogin(ctx context.Context, userID id.UserID, at time.Time) error
}

// SessionStore persists login sessions.
type SessionStore interface {
	Save(ctx context.Context, session Session) error
	Find(ctx context.Context, sessionID id.SessionID) (Session, error)
	Delete(ctx context.Context, sessionID id.SessionID) error
	// DeleteExpired removes sessions past their lifetime. Stores with
	// native TTL (Redis) may report zero.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// Recorder is the audit entry point. Login and logout are state changes,
// so their audit writes are fail-closed like any other mutation.
type Recorder interface {
	Record(ctx context.Context, ev audit.Event) (string, error)
}

// Service handles registration, credential login, and token
// authentication.
type Service struct {
	users      UserStore
	sessions   SessionStore
	tokens     *token.Service
	recorder   Recorder
	sessionTTL time.Duration
	logger     *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) { s.sessionTTL = ttl }
}

// WithRecorder attaches the audit service.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

func New(users UserStore, sessions SessionStore, tokens *token.Service, opts ...Option) (*Service, error) {
	if users == nil {
		return nil, errors.New("user store is required")
	}
	if sessions == nil {
		return nil, errors.New("session store is required")
	}
	if tokens == nil {
		return nil, errors.New("token service is required")
	}
	svc := &Service{
		users:      users,
		sessions:   sessions,
		tokens:     tokens,
		sessionTTL: defaultSessionTTL,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Register creates an account with a bcrypt-hashed password.
func (s *Service) Register(ctx context.Context, username, password string) (User, error) {
	if username == "" {
		return User{}, dErrors.New(dErrors.CodeInvalidInput, "username is required")
	}
	if len(password) < minPasswordLength {
		return User{}, dErrors.New(dErrors.CodeValidation, "password must be at least 8 characters")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, dErrors.Wrap(err, dErrors.CodeInternal, "hash password")
	}

	user := User{
		ID:           id.NewUserID(),
		Username:     username,
		PasswordHash: string(hashed),
		Role:         RoleUser,
		CreatedAt:    requestcontext.Now(ctx),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return User{}, dErrors.New(dErrors.CodeConflict, "username already taken")
		}
		return User{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "create user failed")
	}

	if s.recorder != nil {
		if _, err := s.recorder.Record(ctx, audit.Event{
			Type:    audit.TypeUserAction,
			ActorID: user.ID,
			Action:  "USER_REGISTERED",
		}); err != nil {
			return User{}, err
		}
	}
	return user, nil
}

// Login verifies credentials and opens a session, returning the session
// and a signed access token. Failed attempts land on the security chain;
// unknown username and wrong password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, username, password string) (Session, string, error) {
	now := requestcontext.Now(ctx)

	user, err := s.users.ByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.recordLoginFailure(ctx, username, "unknown_user")
			return Session{}, "", dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
		}
		return Session{}, "", dErrors.Wrap(err, dErrors.CodeUnavailable, "user lookup failed")
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		s.recordLoginFailure(ctx, username, "bad_password")
		return Session{}, "", dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
	}

	session := Session{
		ID:        id.NewSessionID(),
		UserID:    user.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.sessionTTL),
		ClientIP:  requestcontext.ClientIP(ctx),
		Device:    requestcontext.Device(ctx),
	}
	if err := s.sessions.Save(ctx, session); err != nil {
		return Session{}, "", dErrors.Wrap(err, dErrors.CodeUnavailable, "create session failed")
	}

	accessToken, err := s.tokens.Issue(user.ID, session.ID, now)
	if err != nil {
		return Session{}, "", dErrors.Wrap(err, dErrors.CodeInternal, "issue token failed")
	}

	if err := s.users.SetLastLogin(ctx, user.ID, now); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failed to update last login", "user_id", user.ID.String(), "error", err)
	}

	if s.recorder != nil {
		if _, err := s.recorder.Record(ctx, audit.Event{
			Type:    audit.TypeUserAction,
			ActorID: user.ID,
			Action:  "LOGIN",
			Metadata: map[string]string{
				"device": session.Device,
			},
		}); err != nil {
			return Session{}, "", err
		}
	}
	return session, accessToken, nil
}

// recordLoginFailure chains a SECURITY_EVENT. Best-effort: the caller is
// already returning unauthorized, and a chain outage must not turn a bad
// password into an internal error.
func (s *Service) recordLoginFailure(ctx context.Context, username, reason string) {
	if s.recorder == nil {
		return
	}
	_, err := s.recorder.Record(ctx, audit.Event{
		Type:   audit.TypeSecurityEvent,
		Action: "LOGIN_FAILED",
		Metadata: map[string]string{
			"username": username,
			"reason":   reason,
		},
	})
	if err != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "failed to record login failure", "error", err)
	}
}

// Authenticate resolves an access token to its user, rejecting tokens
// whose backing session is gone or expired.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (User, id.SessionID, error) {
	userID, sessionID, err := s.tokens.Validate(accessToken)
	if err != nil {
		return User{}, id.SessionID{}, err
	}

	session, err := s.sessions.Find(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return User{}, id.SessionID{}, dErrors.New(dErrors.CodeUnauthorized, "session expired or revoked")
		}
		return User{}, id.SessionID{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "session lookup failed")
	}
	if session.UserID != userID || session.Expired(requestcontext.Now(ctx)) {
		return User{}, id.SessionID{}, dErrors.New(dErrors.CodeUnauthorized, "session expired or revoked")
	}

	user, err := s.users.ByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return User{}, id.SessionID{}, dErrors.New(dErrors.CodeUnauthorized, "account no longer exists")
		}
		return User{}, id.SessionID{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "user lookup failed")
	}
	user.PasswordHash = ""
	return user, sessionID, nil
}

// Logout drops the session. Deleting an already-gone session succeeds.
func (s *Service) Logout(ctx context.Context, userID id.UserID, sessionID id.SessionID) error {
	if err := s.sessions.Delete(ctx, sessionID); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "delete session failed")
	}
	if s.recorder != nil {
		if _, err := s.recorder.Record(ctx, audit.Event{
			Type:    audit.TypeUserAction,
			ActorID: userID,
			Action:  "LOGOUT",
		}); err != nil {
			return err
		}
	}
	return nil
}

// SweepExpiredSessions removes dead sessions from stores without native
// TTL support.
func (s *Service) SweepExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	n, err := s.sessions.DeleteExpired(ctx, now)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeUnavailable, "session sweep failed")
	}
	return n, nil
}

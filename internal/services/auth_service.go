package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cardapio/internal/models"
	"cardapio/internal/validation"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// AuthEventType tells what happened to a session.
type AuthEventType string

const (
	SignedIn  AuthEventType = "SIGNED_IN"
	SignedOut AuthEventType = "SIGNED_OUT"
)

// AuthEvent is delivered to OnAuthStateChange listeners.
type AuthEvent struct {
	Type    AuthEventType
	Session *models.Session
}

type credentials struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

type signUpCredentials struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=6"`
}

// AuthService handles business logic for authentication and keeps the
// sessions it has issued.
type AuthService struct {
	provider AuthProvider
	verifier *TokenVerifier
	validate *validator.Validate
	log      *logrus.Entry
	now      func() time.Time

	mu        sync.RWMutex
	sessions  map[string]*models.Session
	revoked   map[string]time.Time
	listeners map[int]func(AuthEvent)
	nextID    int
}

// NewAuthService creates a new AuthService.
func NewAuthService(provider AuthProvider, verifier *TokenVerifier, log *logrus.Entry) *AuthService {
	return &AuthService{
		provider:  provider,
		verifier:  verifier,
		validate:  validation.New(),
		log:       log,
		now:       time.Now,
		sessions:  make(map[string]*models.Session),
		revoked:   make(map[string]time.Time),
		listeners: make(map[int]func(AuthEvent)),
	}
}

// SetClock replaces the clock used for session expiry.
func (s *AuthService) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// SignUp registers an account. When the provider issues a session right
// away it is stored and SignedIn is emitted; otherwise the session is nil.
func (s *AuthService) SignUp(ctx context.Context, email, password string) (models.SessionUser, *models.Session, error) {
	if err := s.validate.Struct(signUpCredentials{Email: email, Password: password}); err != nil {
		return models.SessionUser{}, nil, &ValidationError{Fields: validation.Messages(err)}
	}

	user, session, err := s.provider.SignUp(ctx, email, password)
	if err != nil {
		s.log.WithError(err).WithField("email", email).Warn("sign up failed")
		return models.SessionUser{}, nil, err
	}
	if session != nil {
		s.store(session)
	}
	return user, session, nil
}

// SignIn authenticates with email and password.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (*models.Session, error) {
	if err := s.validate.Struct(credentials{Email: email, Password: password}); err != nil {
		return nil, &ValidationError{Fields: validation.Messages(err)}
	}

	session, err := s.provider.SignIn(ctx, email, password)
	if err != nil {
		s.log.WithError(err).WithField("email", email).Info("sign in failed")
		return nil, err
	}
	s.store(session)
	return session, nil
}

// SignOut ends the session owning accessToken. The local session is
// dropped even when the provider could not be reached.
func (s *AuthService) SignOut(ctx context.Context, accessToken string) error {
	if err := s.provider.SignOut(ctx, accessToken); err != nil {
		s.log.WithError(err).Warn("provider sign out failed")
	}

	exp := s.clock().Add(24 * time.Hour)
	if claims, err := s.verifier.Verify(accessToken); err == nil && !claims.ExpiresAt.IsZero() {
		exp = claims.ExpiresAt
	}

	s.mu.Lock()
	s.revoked[accessToken] = exp
	s.mu.Unlock()

	s.drop(accessToken)
	return nil
}

// CurrentSession returns the live session for accessToken. It returns nil
// for an empty or signed-out token and an *AuthError for a token that is
// malformed or expired. A valid token issued before a restart is adopted.
func (s *AuthService) CurrentSession(_ context.Context, accessToken string) (*models.Session, error) {
	if accessToken == "" {
		return nil, nil
	}

	s.mu.RLock()
	_, revoked := s.revoked[accessToken]
	session := s.sessions[accessToken]
	s.mu.RUnlock()
	if revoked {
		return nil, nil
	}

	claims, err := s.verifier.Verify(accessToken)
	if err != nil {
		if errors.Is(err, ErrSessionExpired) {
			s.drop(accessToken)
		}
		return nil, &AuthError{Err: err}
	}

	if session != nil {
		if session.Expired(s.clock()) {
			s.drop(accessToken)
			return nil, &AuthError{Err: ErrSessionExpired}
		}
		return session, nil
	}

	session = &models.Session{
		AccessToken: accessToken,
		TokenType:   "bearer",
		ExpiresAt:   claims.ExpiresAt,
		User:        claims.User,
	}
	s.store(session)
	return session, nil
}

// Active reports whether accessToken belongs to a stored session that is
// neither expired nor signed out.
func (s *AuthService) Active(accessToken string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, revoked := s.revoked[accessToken]; revoked {
		return false
	}
	session, ok := s.sessions[accessToken]
	return ok && !session.Expired(s.now())
}

// SweepExpired ends every stored session past its expiry, emitting
// SignedOut for each, and returns how many were ended.
func (s *AuthService) SweepExpired() int {
	s.mu.Lock()
	now := s.now()
	var expired []string
	for token, session := range s.sessions {
		if session.Expired(now) {
			expired = append(expired, token)
		}
	}
	s.pruneRevokedLocked()
	s.mu.Unlock()

	for _, token := range expired {
		s.drop(token)
	}
	return len(expired)
}

// Schedule registers SweepExpired on c with spec, e.g. "@every 1m".
func (s *AuthService) Schedule(c *cron.Cron, spec string) (cron.EntryID, error) {
	id, err := c.AddFunc(spec, func() {
		if n := s.SweepExpired(); n > 0 {
			s.log.WithField("sessions", n).Info("expired sessions ended")
		}
	})
	if err != nil {
		return 0, fmt.Errorf("schedule session sweep %q: %w", spec, err)
	}
	return id, nil
}

// OnAuthStateChange registers fn for sign-in and sign-out events. Listeners
// run synchronously on the goroutine that changed the session.
func (s *AuthService) OnAuthStateChange(fn func(AuthEvent)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *AuthService) store(session *models.Session) {
	s.mu.Lock()
	s.sessions[session.AccessToken] = session
	s.pruneRevokedLocked()
	listeners := s.listenersLocked()
	s.mu.Unlock()

	s.log.WithField("user_id", session.User.ID).Info("signed in")
	emit(listeners, AuthEvent{Type: SignedIn, Session: session})
}

func (s *AuthService) drop(accessToken string) {
	s.mu.Lock()
	session, ok := s.sessions[accessToken]
	delete(s.sessions, accessToken)
	listeners := s.listenersLocked()
	s.mu.Unlock()

	if !ok {
		return
	}
	s.log.WithField("user_id", session.User.ID).Info("signed out")
	emit(listeners, AuthEvent{Type: SignedOut, Session: session})
}

func (s *AuthService) clock() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.now()
}

func (s *AuthService) pruneRevokedLocked() {
	now := s.now()
	for token, exp := range s.revoked {
		if now.After(exp) {
			delete(s.revoked, token)
		}
	}
}

func (s *AuthService) listenersLocked() []func(AuthEvent) {
	out := make([]func(AuthEvent), 0, len(s.listeners))
	for _, fn := range s.listeners {
		out = append(out, fn)
	}
	return out
}

func emit(listeners []func(AuthEvent), ev AuthEvent) {
	for _, fn := range listeners {
		fn(ev)
	}
}

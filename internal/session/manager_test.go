package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"cardapio/internal/models"
	"cardapio/internal/services"
	"cardapio/internal/session"
	"cardapio/pkg/logger"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuth struct {
	mu        sync.Mutex
	listeners map[int]func(services.AuthEvent)
	next      int
	ended     map[string]bool
}

func newFakeAuth() *fakeAuth {
	return &fakeAuth{
		listeners: make(map[int]func(services.AuthEvent)),
		ended:     make(map[string]bool),
	}
}

func (f *fakeAuth) Active(token string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.ended[token]
}

func (f *fakeAuth) end(token string) {
	f.mu.Lock()
	f.ended[token] = true
	f.mu.Unlock()
}

func (f *fakeAuth) OnAuthStateChange(fn func(services.AuthEvent)) func() {
	f.mu.Lock()
	id := f.next
	f.next++
	f.listeners[id] = fn
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		delete(f.listeners, id)
		f.mu.Unlock()
	}
}

func (f *fakeAuth) emit(ev services.AuthEvent) {
	f.mu.Lock()
	var fns []func(services.AuthEvent)
	for _, fn := range f.listeners {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func newSession() *models.Session {
	return &models.Session{
		AccessToken: gofakeit.UUID(),
		TokenType:   "bearer",
		ExpiresAt:   time.Now().Add(time.Hour),
		User:        models.SessionUser{ID: gofakeit.UUID(), Email: gofakeit.Email()},
	}
}

func newManager(auth *fakeAuth) *session.Manager {
	return session.NewManager(auth, logger.NewDiscard().Component("session"))
}

func TestManager_SignInCreatesEmptyCart(t *testing.T) {
	auth := newFakeAuth()
	m := newManager(auth)
	s := newSession()

	auth.emit(services.AuthEvent{Type: services.SignedIn, Session: s})

	e, ok := m.Lookup(s.AccessToken)
	require.True(t, ok)
	assert.Same(t, s, e.Session)
	assert.Zero(t, e.Cart.Len())
	assert.Equal(t, 1, m.Len())
}

func TestManager_SignOutDestroysCart(t *testing.T) {
	auth := newFakeAuth()
	m := newManager(auth)
	s := newSession()
	auth.emit(services.AuthEvent{Type: services.SignedIn, Session: s})

	e := m.Get(s)
	e.Cart.Add(models.MenuItem{ID: 1, Name: "Pastel", Price: decimal.RequireFromString("8.00")}, 2)

	auth.emit(services.AuthEvent{Type: services.SignedOut, Session: s})

	_, ok := m.Lookup(s.AccessToken)
	assert.False(t, ok)
	assert.Zero(t, e.Cart.Len())

	// Signing in again starts from an empty cart.
	again := m.Get(s)
	assert.NotSame(t, e, again)
	assert.Zero(t, again.Cart.Len())
}

func TestManager_GetIsStablePerToken(t *testing.T) {
	m := newManager(newFakeAuth())
	a, b := newSession(), newSession()

	ea := m.Get(a)
	assert.Same(t, ea, m.Get(a))
	assert.NotSame(t, ea, m.Get(b))
	assert.NotSame(t, ea.Cart, m.Get(b).Cart)
	assert.Equal(t, 2, m.Len())
}

func TestManager_ConcurrentGet(t *testing.T) {
	m := newManager(newFakeAuth())
	s := newSession()

	var wg sync.WaitGroup
	entries := make([]*session.Entry, 16)
	for i := range entries {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entries[i] = m.Get(s)
		}(i)
	}
	wg.Wait()

	for _, e := range entries {
		assert.Same(t, entries[0], e)
	}
}

func TestManager_Close(t *testing.T) {
	auth := newFakeAuth()
	m := newManager(auth)
	m.Close()

	auth.emit(services.AuthEvent{Type: services.SignedIn, Session: newSession()})
	assert.Zero(t, m.Len())
}

func TestManager_GetRefusesEndedSession(t *testing.T) {
	auth := newFakeAuth()
	m := newManager(auth)
	s := newSession()
	auth.end(s.AccessToken)

	assert.Nil(t, m.Get(s))
	assert.Zero(t, m.Len())
}

// shortLivedProvider issues sessions that expire ttl after the clock.
type shortLivedProvider struct {
	ttl time.Duration
	now func() time.Time
}

func (p shortLivedProvider) SignUp(context.Context, string, string) (models.SessionUser, *models.Session, error) {
	return models.SessionUser{}, nil, nil
}

func (p shortLivedProvider) SignIn(_ context.Context, email, _ string) (*models.Session, error) {
	return &models.Session{
		AccessToken: gofakeit.UUID(),
		TokenType:   "bearer",
		ExpiresAt:   p.now().Add(p.ttl),
		User:        models.SessionUser{ID: gofakeit.UUID(), Email: email},
	}, nil
}

func (p shortLivedProvider) SignOut(context.Context, string) error { return nil }

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newAuthService(clock *manualClock, ttl time.Duration) *services.AuthService {
	provider := shortLivedProvider{ttl: ttl, now: clock.Now}
	auth := services.NewAuthService(provider, services.NewTokenVerifier("session-test"), logger.NewDiscard().Component("auth"))
	auth.SetClock(clock.Now)
	return auth
}

func TestManager_ExpiredSessionsReleaseCarts(t *testing.T) {
	clock := &manualClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	auth := newAuthService(clock, time.Second)
	m := session.NewManager(auth, logger.NewDiscard().Component("session"))
	defer m.Close()

	item := models.MenuItem{ID: 7, Name: "Coxinha", Price: decimal.RequireFromString("6.50")}
	var entries []*session.Entry
	for i := 0; i < 20; i++ {
		s, err := auth.SignIn(context.Background(), gofakeit.Email(), "secret123")
		require.NoError(t, err)
		e, ok := m.Lookup(s.AccessToken)
		require.True(t, ok)
		e.Cart.Add(item, 1)
		entries = append(entries, e)
	}
	require.Equal(t, 20, m.Len())

	assert.Zero(t, auth.SweepExpired(), "nothing has expired yet")
	assert.Equal(t, 20, m.Len())

	clock.Advance(2 * time.Second)
	assert.Equal(t, 20, auth.SweepExpired())
	assert.Zero(t, m.Len())
	for _, e := range entries {
		assert.Zero(t, e.Cart.Len())
		assert.False(t, auth.Active(e.Session.AccessToken))
	}
}

func TestManager_SignOutBeforeGetLeavesNoEntry(t *testing.T) {
	clock := &manualClock{now: time.Now()}
	auth := newAuthService(clock, time.Hour)
	m := session.NewManager(auth, logger.NewDiscard().Component("session"))
	defer m.Close()

	s, err := auth.SignIn(context.Background(), gofakeit.Email(), "secret123")
	require.NoError(t, err)
	require.NoError(t, auth.SignOut(context.Background(), s.AccessToken))

	assert.Nil(t, m.Get(s))
	assert.Zero(t, m.Len())
}

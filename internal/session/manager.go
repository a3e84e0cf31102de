// Package session keeps the per-session state of signed-in customers.
//
// Every live session owns exactly one cart. The cart is created when the
// session signs in and destroyed when it signs out or expires, so carts
// never outlive the session that filled them.
package session

import (
	"sync"

	"cardapio/internal/cart"
	"cardapio/internal/models"
	"cardapio/internal/services"

	"github.com/sirupsen/logrus"
)

// AuthEvents is the part of services.AuthService the Manager listens to.
type AuthEvents interface {
	OnAuthStateChange(fn func(services.AuthEvent)) (unsubscribe func())
	// Active reports whether the token still belongs to a live session.
	Active(accessToken string) bool
}

// Entry is the state of one signed-in session.
type Entry struct {
	Session *models.Session
	Cart    *cart.Cart
}

// Manager maps access tokens to session entries.
type Manager struct {
	auth        AuthEvents
	log         *logrus.Entry
	unsubscribe func()

	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewManager creates a Manager that follows the sign-in and sign-out
// events of auth.
func NewManager(auth AuthEvents, log *logrus.Entry) *Manager {
	m := &Manager{
		auth:    auth,
		log:     log,
		entries: make(map[string]*Entry),
	}
	m.unsubscribe = auth.OnAuthStateChange(m.handle)
	return m
}

func (m *Manager) handle(ev services.AuthEvent) {
	if ev.Session == nil {
		return
	}
	switch ev.Type {
	case services.SignedIn:
		m.Get(ev.Session)
	case services.SignedOut:
		m.drop(ev.Session.AccessToken)
	}
}

// Get returns the entry of s, creating it with an empty cart when the
// session is not known yet. It returns nil when s has already ended, so a
// sign-out racing with a request cannot leave an entry behind.
func (m *Manager) Get(s *models.Session) *Entry {
	m.mu.RLock()
	e, ok := m.entries[s.AccessToken]
	m.mu.RUnlock()
	if ok {
		return e
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[s.AccessToken]; ok {
		return e
	}
	// Checked under m.mu: a SignedOut for this token waits for the lock
	// and then removes the entry.
	if !m.auth.Active(s.AccessToken) {
		return nil
	}
	e = &Entry{Session: s, Cart: cart.New()}
	m.entries[s.AccessToken] = e
	m.log.WithField("user_id", s.User.ID).Debug("session opened")
	return e
}

// Lookup returns the entry for accessToken without creating one.
func (m *Manager) Lookup(accessToken string) (*Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[accessToken]
	return e, ok
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Close stops following auth events.
func (m *Manager) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

func (m *Manager) drop(accessToken string) {
	m.mu.Lock()
	e, ok := m.entries[accessToken]
	delete(m.entries, accessToken)
	m.mu.Unlock()

	if ok {
		e.Cart.Clear()
		m.log.WithField("user_id", e.Session.User.ID).Debug("session closed")
	}
}

package middleware_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"cardapio/internal/middleware"
	"cardapio/internal/models"
	"cardapio/internal/services"
	"cardapio/internal/session"
	"cardapio/pkg/logger"
	"cardapio/pkg/supabase"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource map[string]*models.Session

func (s stubSource) CurrentSession(_ context.Context, token string) (*models.Session, error) {
	if token == "expired" {
		return nil, &services.AuthError{Err: services.ErrSessionExpired}
	}
	return s[token], nil
}

// endedTokens reports every token it holds as no longer active.
type endedTokens map[string]bool

func (endedTokens) OnAuthStateChange(func(services.AuthEvent)) func() { return func() {} }

func (e endedTokens) Active(token string) bool { return !e[token] }

func newApp(src stubSource, ended endedTokens) (*fiber.App, *session.Manager) {
	log := logger.NewDiscard().Component("test")
	sessions := session.NewManager(ended, log)

	app := fiber.New()
	app.Get("/me", middleware.SessionRequired(src, sessions, log), func(c *fiber.Ctx) error {
		e := middleware.Session(c)
		token, _ := supabase.AccessToken(c.UserContext())
		return c.JSON(fiber.Map{"user_id": e.Session.User.ID, "token": token})
	})
	return app, sessions
}

func TestSessionRequired(t *testing.T) {
	live := &models.Session{AccessToken: "good", User: models.SessionUser{ID: "u1"}}
	// "racing" is still returned by the source but signed out before the
	// entry is created.
	racing := &models.Session{AccessToken: "racing", User: models.SessionUser{ID: "u2"}}
	app, sessions := newApp(stubSource{"good": live, "racing": racing}, endedTokens{"racing": true})

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantMsg    string
	}{
		{name: "missing header", wantStatus: http.StatusUnauthorized, wantMsg: "Authorization header is required"},
		{name: "wrong scheme", header: "Basic abc", wantStatus: http.StatusUnauthorized, wantMsg: "Authorization header format must be 'Bearer <token>'"},
		{name: "empty token", header: "Bearer ", wantStatus: http.StatusUnauthorized, wantMsg: "Authorization header format must be 'Bearer <token>'"},
		{name: "expired", header: "Bearer expired", wantStatus: http.StatusUnauthorized, wantMsg: "Invalid or expired token"},
		{name: "signed out", header: "Bearer gone", wantStatus: http.StatusUnauthorized, wantMsg: "Session has ended"},
		{name: "signed out while resolving", header: "Bearer racing", wantStatus: http.StatusUnauthorized, wantMsg: "Session has ended"},
		{name: "live session", header: "Bearer good", wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, body["message"])
				return
			}
			assert.Equal(t, "u1", body["user_id"])
			assert.Equal(t, "good", body["token"])
		})
	}

	_, ok := sessions.Lookup("good")
	assert.True(t, ok)
	_, ok = sessions.Lookup("racing")
	assert.False(t, ok)
	assert.Equal(t, 1, sessions.Len())
}

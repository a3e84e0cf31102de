package services_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"cardapio/internal/models"
	"cardapio/internal/repositories"
	"cardapio/internal/services"
	"cardapio/pkg/supabase"

	"github.com/dgrijalva/jwt-go"
	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testJWTSecret = "test_jwt_secret"

// MockUserRepository is a mock implementation of repositories.UserRepository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) error {
	args := m.Called(user)
	return args.Error(0)
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

type eventLog struct {
	mu     sync.Mutex
	events []services.AuthEvent
}

func (l *eventLog) add(ev services.AuthEvent) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) types() []services.AuthEventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]services.AuthEventType, 0, len(l.events))
	for _, ev := range l.events {
		out = append(out, ev.Type)
	}
	return out
}

func newLocalAuth(repo *MockUserRepository, ttl time.Duration) (*services.AuthService, *eventLog) {
	provider := services.NewLocalAuthProvider(repo, services.NewTokenIssuer(testJWTSecret, ttl))
	svc := services.NewAuthService(provider, services.NewTokenVerifier(testJWTSecret), testLog())
	events := &eventLog{}
	svc.OnAuthStateChange(events.add)
	return svc, events
}

func storedUser(t *testing.T, email, password string) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return &models.User{ID: "3f1c9a52-6d0e-4c41-9a7b-0c3d2b8e4f10", Email: email, PasswordHash: string(hash)}
}

func TestAuthService_SignUp(t *testing.T) {
	mockRepo := new(MockUserRepository)
	svc, events := newLocalAuth(mockRepo, time.Hour)

	mockRepo.On("Create", mock.AnythingOfType("*models.User")).Run(func(args mock.Arguments) {
		u := args.Get(0).(*models.User)
		u.ID = "new-user-id"
	}).Return(nil).Once()

	user, session, err := svc.SignUp(context.Background(), "ana@example.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, "new-user-id", user.ID)
	require.NotNil(t, session)
	assert.Equal(t, user, session.User)
	assert.Equal(t, []services.AuthEventType{services.SignedIn}, events.types())

	created := mockRepo.Calls[0].Arguments.Get(0).(*models.User)
	assert.NotEqual(t, "secret123", created.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(created.PasswordHash), []byte("secret123")))
	mockRepo.AssertExpectations(t)
}

func TestAuthService_SignUpRejectsInput(t *testing.T) {
	tests := []struct {
		name      string
		email     string
		password  string
		wantField string
	}{
		{name: "bad email", email: "not-an-email", password: "secret123", wantField: "email"},
		{name: "short password", email: "ana@example.com", password: "12345", wantField: "password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(MockUserRepository)
			svc, _ := newLocalAuth(mockRepo, time.Hour)

			_, _, err := svc.SignUp(context.Background(), tt.email, tt.password)

			var verr *services.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tt.wantField)
			mockRepo.AssertNotCalled(t, "Create", mock.Anything)
		})
	}
}

func TestAuthService_SignUpDuplicateEmail(t *testing.T) {
	mockRepo := new(MockUserRepository)
	svc, events := newLocalAuth(mockRepo, time.Hour)
	mockRepo.On("Create", mock.AnythingOfType("*models.User")).Return(repositories.ErrDuplicateEmail).Once()

	_, session, err := svc.SignUp(context.Background(), "ana@example.com", "secret123")

	assert.ErrorIs(t, err, services.ErrEmailTaken)
	assert.Nil(t, session)
	assert.Empty(t, events.types())
}

func TestAuthService_SignIn(t *testing.T) {
	mockRepo := new(MockUserRepository)
	svc, events := newLocalAuth(mockRepo, time.Hour)
	user := storedUser(t, "ana@example.com", "secret123")
	mockRepo.On("GetByEmail", "ana@example.com").Return(user, nil)

	session, err := svc.SignIn(context.Background(), "ana@example.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, user.ID, session.User.ID)
	assert.Equal(t, "bearer", session.TokenType)
	assert.WithinDuration(t, time.Now().Add(time.Hour), session.ExpiresAt, 5*time.Second)

	token, err := jwt.Parse(session.AccessToken, func(token *jwt.Token) (interface{}, error) {
		return []byte(testJWTSecret), nil
	})
	require.NoError(t, err)
	claims := token.Claims.(jwt.MapClaims)
	assert.Equal(t, user.ID, claims["sub"])
	assert.Equal(t, "authenticated", claims["role"])

	current, err := svc.CurrentSession(context.Background(), session.AccessToken)
	require.NoError(t, err)
	assert.Same(t, session, current)
	assert.Equal(t, []services.AuthEventType{services.SignedIn}, events.types())
}

func TestAuthService_SignInInvalidCredentials(t *testing.T) {
	mockRepo := new(MockUserRepository)
	svc, events := newLocalAuth(mockRepo, time.Hour)
	mockRepo.On("GetByEmail", "ana@example.com").Return(storedUser(t, "ana@example.com", "secret123"), nil)
	mockRepo.On("GetByEmail", "nobody@example.com").Return(nil, repositories.ErrNotFound)

	for _, email := range []string{"ana@example.com", "nobody@example.com"} {
		session, err := svc.SignIn(context.Background(), email, "wrong-password")

		assert.Nil(t, session)
		var aerr *services.AuthError
		require.ErrorAs(t, err, &aerr, email)
		assert.ErrorIs(t, err, services.ErrInvalidCredentials)
	}
	assert.Empty(t, events.types())
}

func TestAuthService_SignOut(t *testing.T) {
	mockRepo := new(MockUserRepository)
	svc, events := newLocalAuth(mockRepo, time.Hour)
	mockRepo.On("GetByEmail", "ana@example.com").Return(storedUser(t, "ana@example.com", "secret123"), nil)

	session, err := svc.SignIn(context.Background(), "ana@example.com", "secret123")
	require.NoError(t, err)

	require.NoError(t, svc.SignOut(context.Background(), session.AccessToken))

	current, err := svc.CurrentSession(context.Background(), session.AccessToken)
	assert.NoError(t, err)
	assert.Nil(t, current, "a signed-out token must not be adopted again")
	assert.Equal(t, []services.AuthEventType{services.SignedIn, services.SignedOut}, events.types())

	again, err := svc.SignIn(context.Background(), "ana@example.com", "secret123")
	require.NoError(t, err)
	assert.NotEqual(t, session.AccessToken, again.AccessToken)
}

func TestAuthService_CurrentSession(t *testing.T) {
	t.Run("empty token", func(t *testing.T) {
		svc, _ := newLocalAuth(new(MockUserRepository), time.Hour)
		session, err := svc.CurrentSession(context.Background(), "")
		assert.NoError(t, err)
		assert.Nil(t, session)
	})

	t.Run("malformed token", func(t *testing.T) {
		svc, _ := newLocalAuth(new(MockUserRepository), time.Hour)
		_, err := svc.CurrentSession(context.Background(), "not.a.jwt")
		var aerr *services.AuthError
		require.ErrorAs(t, err, &aerr)
		assert.ErrorIs(t, err, services.ErrInvalidToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		svc, _ := newLocalAuth(new(MockUserRepository), time.Hour)
		foreign, err := services.NewTokenIssuer("other-secret", time.Hour).Issue(models.SessionUser{ID: "u1"})
		require.NoError(t, err)
		_, err = svc.CurrentSession(context.Background(), foreign.AccessToken)
		assert.ErrorIs(t, err, services.ErrInvalidToken)
	})

	t.Run("expired session is dropped", func(t *testing.T) {
		mockRepo := new(MockUserRepository)
		svc, events := newLocalAuth(mockRepo, -time.Minute)
		mockRepo.On("GetByEmail", "ana@example.com").Return(storedUser(t, "ana@example.com", "secret123"), nil)

		session, err := svc.SignIn(context.Background(), "ana@example.com", "secret123")
		require.NoError(t, err)

		_, err = svc.CurrentSession(context.Background(), session.AccessToken)
		var aerr *services.AuthError
		require.ErrorAs(t, err, &aerr)
		assert.ErrorIs(t, err, services.ErrSessionExpired)
		assert.Equal(t, []services.AuthEventType{services.SignedIn, services.SignedOut}, events.types())
	})

	t.Run("valid token from a previous process is adopted", func(t *testing.T) {
		issued, err := services.NewTokenIssuer(testJWTSecret, time.Hour).Issue(models.SessionUser{ID: "u1", Email: "ana@example.com"})
		require.NoError(t, err)

		svc, events := newLocalAuth(new(MockUserRepository), time.Hour)
		session, err := svc.CurrentSession(context.Background(), issued.AccessToken)
		require.NoError(t, err)
		require.NotNil(t, session)
		assert.Equal(t, "u1", session.User.ID)
		assert.Equal(t, "ana@example.com", session.User.Email)
		assert.Equal(t, issued.ExpiresAt.Unix(), session.ExpiresAt.Unix())
		assert.Equal(t, []services.AuthEventType{services.SignedIn}, events.types())
	})
}

func TestAuthService_SweepExpired(t *testing.T) {
	mockRepo := new(MockUserRepository)
	svc, events := newLocalAuth(mockRepo, time.Hour)
	mockRepo.On("GetByEmail", "ana@example.com").Return(storedUser(t, "ana@example.com", "secret123"), nil)

	session, err := svc.SignIn(context.Background(), "ana@example.com", "secret123")
	require.NoError(t, err)
	assert.True(t, svc.Active(session.AccessToken))
	assert.Zero(t, svc.SweepExpired())

	later := time.Now().Add(2 * time.Hour)
	svc.SetClock(func() time.Time { return later })

	assert.Equal(t, 1, svc.SweepExpired())
	assert.False(t, svc.Active(session.AccessToken))
	assert.Equal(t, []services.AuthEventType{services.SignedIn, services.SignedOut}, events.types())
	assert.Zero(t, svc.SweepExpired(), "a swept session is ended once")
}

func TestAuthService_Schedule(t *testing.T) {
	svc, _ := newLocalAuth(new(MockUserRepository), time.Hour)
	c := cron.New()

	_, err := svc.Schedule(c, "@every 1m")
	require.NoError(t, err)
	assert.Len(t, c.Entries(), 1)

	_, err = svc.Schedule(c, "not a schedule")
	assert.Error(t, err)
}

func TestAuthService_Unsubscribe(t *testing.T) {
	mockRepo := new(MockUserRepository)
	provider := services.NewLocalAuthProvider(mockRepo, services.NewTokenIssuer(testJWTSecret, time.Hour))
	svc := services.NewAuthService(provider, services.NewTokenVerifier(testJWTSecret), testLog())
	mockRepo.On("GetByEmail", "ana@example.com").Return(storedUser(t, "ana@example.com", "secret123"), nil)

	events := &eventLog{}
	unsubscribe := svc.OnAuthStateChange(events.add)
	unsubscribe()

	_, err := svc.SignIn(context.Background(), "ana@example.com", "secret123")
	require.NoError(t, err)
	assert.Empty(t, events.types())
}

func TestTokenVerifier_MissingSubject(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)

	_, err = services.NewTokenVerifier(testJWTSecret).Verify(signed)
	assert.ErrorIs(t, err, services.ErrInvalidToken)
}

func newSupabaseAuth(t *testing.T, handler http.HandlerFunc) *services.AuthService {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := supabase.New(supabase.Config{URL: srv.URL, APIKey: "anon-key"})
	require.NoError(t, err)
	return services.NewAuthService(services.NewSupabaseAuthProvider(client), services.NewTokenVerifier(testJWTSecret), testLog())
}

func TestSupabaseAuthProvider_SignIn(t *testing.T) {
	issued, err := services.NewTokenIssuer(testJWTSecret, time.Hour).Issue(models.SessionUser{ID: "u1", Email: "ana@example.com"})
	require.NoError(t, err)

	svc := newSupabaseAuth(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/token", r.URL.Path)
		assert.Equal(t, "password", r.URL.Query().Get("grant_type"))
		assert.Equal(t, "anon-key", r.Header.Get("apikey"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"` + issued.AccessToken + `","token_type":"bearer","expires_in":3600,` +
			`"refresh_token":"r1","user":{"id":"u1","email":"ana@example.com"}}`))
	})

	session, err := svc.SignIn(context.Background(), "ana@example.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, "u1", session.User.ID)
	assert.Equal(t, "r1", session.RefreshToken)
	assert.WithinDuration(t, time.Now().Add(time.Hour), session.ExpiresAt, 5*time.Second)

	current, err := svc.CurrentSession(context.Background(), issued.AccessToken)
	require.NoError(t, err)
	assert.Same(t, session, current)
}

func TestSupabaseAuthProvider_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		call   func(*services.AuthService) error
		check  func(t *testing.T, err error)
	}{
		{
			name:   "bad credentials",
			status: http.StatusBadRequest,
			body:   `{"error":"invalid_grant","error_description":"Invalid login credentials"}`,
			call: func(s *services.AuthService) error {
				_, err := s.SignIn(context.Background(), "ana@example.com", "wrong")
				return err
			},
			check: func(t *testing.T, err error) {
				var aerr *services.AuthError
				assert.ErrorAs(t, err, &aerr)
				assert.ErrorIs(t, err, services.ErrInvalidCredentials)
			},
		},
		{
			name:   "already registered",
			status: http.StatusUnprocessableEntity,
			body:   `{"code":422,"error_code":"user_already_exists","msg":"User already registered"}`,
			call: func(s *services.AuthService) error {
				_, _, err := s.SignUp(context.Background(), "ana@example.com", "secret123")
				return err
			},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, services.ErrEmailTaken)
			},
		},
		{
			name:   "weak password",
			status: http.StatusUnprocessableEntity,
			body:   `{"code":422,"error_code":"weak_password","msg":"Password should contain a digit"}`,
			call: func(s *services.AuthService) error {
				_, _, err := s.SignUp(context.Background(), "ana@example.com", "secretpw")
				return err
			},
			check: func(t *testing.T, err error) {
				var verr *services.ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, "Password should contain a digit", verr.Fields["password"])
			},
		},
		{
			name:   "provider down",
			status: http.StatusServiceUnavailable,
			body:   `upstream unavailable`,
			call: func(s *services.AuthService) error {
				_, err := s.SignIn(context.Background(), "ana@example.com", "secret123")
				return err
			},
			check: func(t *testing.T, err error) {
				var aerr *services.AuthError
				assert.False(t, errors.As(err, &aerr))
				var apiErr *supabase.APIError
				assert.ErrorAs(t, err, &apiErr)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newSupabaseAuth(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			err := tt.call(svc)
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestSupabaseAuthProvider_SignUpPendingConfirmation(t *testing.T) {
	svc := newSupabaseAuth(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/signup", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"u2","email":"bia@example.com","role":"authenticated"}`))
	})
	events := &eventLog{}
	svc.OnAuthStateChange(events.add)

	user, session, err := svc.SignUp(context.Background(), "bia@example.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, "u2", user.ID)
	assert.Nil(t, session)
	assert.Empty(t, events.types())
}

func TestSupabaseAuthProvider_SignOutFailureStillDropsSession(t *testing.T) {
	issued, err := services.NewTokenIssuer(testJWTSecret, time.Hour).Issue(models.SessionUser{ID: "u1"})
	require.NoError(t, err)

	svc := newSupabaseAuth(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer "+issued.AccessToken, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusBadGateway)
	})
	events := &eventLog{}
	svc.OnAuthStateChange(events.add)

	_, err = svc.CurrentSession(context.Background(), issued.AccessToken)
	require.NoError(t, err)

	assert.NoError(t, svc.SignOut(context.Background(), issued.AccessToken))
	current, err := svc.CurrentSession(context.Background(), issued.AccessToken)
	assert.NoError(t, err)
	assert.Nil(t, current)
	assert.Equal(t, []services.AuthEventType{services.SignedIn, services.SignedOut}, events.types())
}

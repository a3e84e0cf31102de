package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cardapio/internal/models"
	"cardapio/internal/repositories"
	"cardapio/pkg/supabase"

	"golang.org/x/crypto/bcrypt"
)

// AuthProvider is the identity backend behind AuthService.
type AuthProvider interface {
	// SignUp creates an account. The session is nil when the provider
	// requires email confirmation before the first sign-in.
	SignUp(ctx context.Context, email, password string) (models.SessionUser, *models.Session, error)
	SignIn(ctx context.Context, email, password string) (*models.Session, error)
	SignOut(ctx context.Context, accessToken string) error
}

// SupabaseAuthProvider signs users in through Supabase GoTrue.
type SupabaseAuthProvider struct {
	auth *supabase.AuthClient
	now  func() time.Time
}

// NewSupabaseAuthProvider creates a provider using client.
func NewSupabaseAuthProvider(client *supabase.Client) *SupabaseAuthProvider {
	return &SupabaseAuthProvider{auth: client.Auth(), now: time.Now}
}

func (p *SupabaseAuthProvider) SignUp(ctx context.Context, email, password string) (models.SessionUser, *models.Session, error) {
	resp, err := p.auth.SignUp(ctx, email, password)
	if err != nil {
		var apiErr *supabase.APIError
		if errors.As(err, &apiErr) {
			if apiErr.Code == "user_already_exists" || strings.Contains(strings.ToLower(apiErr.Message), "already registered") {
				return models.SessionUser{}, nil, ErrEmailTaken
			}
			if apiErr.StatusCode < http.StatusInternalServerError {
				return models.SessionUser{}, nil, &ValidationError{Fields: map[string]string{"password": apiErr.Message}}
			}
		}
		return models.SessionUser{}, nil, fmt.Errorf("sign up: %w", err)
	}
	if resp.User == nil {
		return models.SessionUser{}, nil, &DecodeError{Entity: "auth user", Err: errors.New("response has no user")}
	}

	user := models.SessionUser{ID: resp.User.ID, Email: resp.User.Email}
	if resp.AccessToken == "" {
		return user, nil, nil
	}
	return user, p.session(resp), nil
}

func (p *SupabaseAuthProvider) SignIn(ctx context.Context, email, password string) (*models.Session, error) {
	resp, err := p.auth.SignIn(ctx, email, password)
	if err != nil {
		var apiErr *supabase.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError {
			return nil, &AuthError{Err: fmt.Errorf("%w: %s", ErrInvalidCredentials, apiErr.Message)}
		}
		return nil, fmt.Errorf("sign in: %w", err)
	}
	if resp.AccessToken == "" || resp.User == nil {
		return nil, &DecodeError{Entity: "auth session", Err: errors.New("response has no access token")}
	}
	return p.session(resp), nil
}

func (p *SupabaseAuthProvider) SignOut(ctx context.Context, accessToken string) error {
	if err := p.auth.SignOut(ctx, accessToken); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

func (p *SupabaseAuthProvider) session(resp *supabase.AuthResponse) *models.Session {
	expiresAt := time.Unix(resp.ExpiresAt, 0)
	if resp.ExpiresAt == 0 {
		expiresAt = p.now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	return &models.Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenType:    resp.TokenType,
		ExpiresAt:    expiresAt,
		User:         models.SessionUser{ID: resp.User.ID, Email: resp.User.Email},
	}
}

// LocalAuthProvider keeps accounts in the SQL database with bcrypt hashes
// and issues its own HS256 tokens.
type LocalAuthProvider struct {
	users  repositories.UserRepository
	issuer *TokenIssuer
}

// NewLocalAuthProvider creates a provider storing users in users.
func NewLocalAuthProvider(users repositories.UserRepository, issuer *TokenIssuer) *LocalAuthProvider {
	return &LocalAuthProvider{users: users, issuer: issuer}
}

func (p *LocalAuthProvider) SignUp(ctx context.Context, email, password string) (models.SessionUser, *models.Session, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.SessionUser{}, nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{Email: email, PasswordHash: string(hashedPassword)}
	if err := p.users.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrDuplicateEmail) {
			return models.SessionUser{}, nil, ErrEmailTaken
		}
		return models.SessionUser{}, nil, fmt.Errorf("failed to register user: %w", err)
	}

	su := models.SessionUser{ID: user.ID, Email: user.Email}
	session, err := p.issuer.Issue(su)
	if err != nil {
		return models.SessionUser{}, nil, err
	}
	return su, session, nil
}

func (p *LocalAuthProvider) SignIn(ctx context.Context, email, password string) (*models.Session, error) {
	user, err := p.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			// Unknown email and wrong password look the same to the caller.
			return nil, &AuthError{Err: ErrInvalidCredentials}
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, &AuthError{Err: ErrInvalidCredentials}
	}

	return p.issuer.Issue(models.SessionUser{ID: user.ID, Email: user.Email})
}

// SignOut has nothing to revoke remotely; AuthService forgets the session.
func (p *LocalAuthProvider) SignOut(context.Context, string) error {
	return nil
}

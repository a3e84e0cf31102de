package services

import (
	"errors"
	"fmt"
	"time"

	"cardapio/internal/models"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
)

// TokenClaims are the access token claims shared by Supabase and the local
// provider.
type TokenClaims struct {
	User      models.SessionUser
	ExpiresAt time.Time
}

// TokenVerifier checks HS256 access tokens.
type TokenVerifier struct {
	secret []byte
}

// NewTokenVerifier creates a verifier for tokens signed with secret.
func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

// Verify parses tokenString and checks signature and expiry. Errors wrap
// ErrSessionExpired or ErrInvalidToken.
func (v *TokenVerifier) Verify(tokenString string) (*TokenClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		var verr *jwt.ValidationError
		if errors.As(err, &verr) && verr.Errors&jwt.ValidationErrorExpired != 0 {
			return nil, fmt.Errorf("%w: %v", ErrSessionExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, fmt.Errorf("%w: missing sub claim", ErrInvalidToken)
	}
	email, _ := claims["email"].(string)

	out := &TokenClaims{User: models.SessionUser{ID: sub, Email: email}}
	if exp, ok := claims["exp"].(float64); ok {
		out.ExpiresAt = time.Unix(int64(exp), 0)
	}
	return out, nil
}

// TokenIssuer signs access tokens for the local provider.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer creates an issuer whose tokens live for ttl.
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue returns a signed session for user.
func (i *TokenIssuer) Issue(user models.SessionUser) (*models.Session, error) {
	now := i.now()
	expiresAt := now.Add(i.ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   user.ID,
		"email": user.Email,
		"role":  "authenticated",
		"exp":   expiresAt.Unix(),
		"iat":   now.Unix(),
		"jti":   uuid.NewString(),
	})

	tokenString, err := token.SignedString(i.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return &models.Session{
		AccessToken: tokenString,
		TokenType:   "bearer",
		ExpiresAt:   time.Unix(expiresAt.Unix(), 0),
		User:        user,
	}, nil
}

package handlers

import (
	"cardapio/internal/middleware"
	"cardapio/internal/services"
	"cardapio/internal/validation"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// AuthHandler handles HTTP requests for authentication.
type AuthHandler struct {
	authService *services.AuthService
	validate    *validator.Validate
	log         *logrus.Entry
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *services.AuthService, log *logrus.Entry) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		validate:    validation.New(),
		log:         log,
	}
}

// RegisterRoutes registers the authentication routes. Logout and session
// lookup run behind requireSession.
func (h *AuthHandler) RegisterRoutes(router fiber.Router, requireSession fiber.Handler) {
	authRoutes := router.Group("/auth")
	authRoutes.Post("/register", h.HandleRegister)
	authRoutes.Post("/login", h.HandleLogin)
	authRoutes.Post("/logout", requireSession, h.HandleLogout)
	authRoutes.Get("/session", requireSession, h.HandleSession)
}

// RegisterRequest represents the request body for sign-up.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// LoginRequest represents the request body for login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// HandleRegister handles new user registration. When the provider asks for
// email confirmation first, the response carries no session.
func (h *AuthHandler) HandleRegister(c *fiber.Ctx) error {
	var req RegisterRequest
	if handled, err := parseBody(c, h.validate, &req); handled {
		return err
	}

	user, session, err := h.authService.SignUp(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return writeError(c, h.log, "Registration failed", err)
	}

	resp := fiber.Map{
		"message": "User registered successfully",
		"user":    user,
	}
	if session != nil {
		resp["session"] = session
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

// HandleLogin handles user login and returns the new session.
func (h *AuthHandler) HandleLogin(c *fiber.Ctx) error {
	var req LoginRequest
	if handled, err := parseBody(c, h.validate, &req); handled {
		return err
	}

	session, err := h.authService.SignIn(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return writeError(c, h.log, "Authentication failed", err)
	}

	return c.JSON(fiber.Map{
		"message": "Login successful",
		"token":   session.AccessToken,
		"session": session,
	})
}

// HandleLogout ends the caller's session and destroys its cart.
func (h *AuthHandler) HandleLogout(c *fiber.Ctx) error {
	entry := middleware.Session(c)
	if err := h.authService.SignOut(c.UserContext(), entry.Session.AccessToken); err != nil {
		return writeError(c, h.log, "Logout failed", err)
	}
	return c.JSON(fiber.Map{"message": "Logged out"})
}

// HandleSession returns the caller's session.
func (h *AuthHandler) HandleSession(c *fiber.Ctx) error {
	return c.JSON(middleware.Session(c).Session)
}

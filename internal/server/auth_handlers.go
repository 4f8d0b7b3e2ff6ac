package server

import (
	"time"

	"quill/internal/middleware"
	"quill/internal/models"
	"quill/internal/service"

	"github.com/gofiber/fiber/v2"
)

type signupRequest struct {
	Username string `json:"username" form:"username"`
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

type loginRequest struct {
	Login    string `json:"login" form:"login"`
	Password string `json:"password" form:"password"`
}

// Signup handles POST /api/auth/signup
// @Summary User signup
// @Description Register a new user account and start a session
// @Tags auth
// @Accept json,x-www-form-urlencoded
// @Produce json
// @Param request body object{username=string,email=string,password=string} true "Signup request"
// @Success 201 {object} object{token=string,user=models.User}
// @Failure 400 {object} models.ErrorResponse
// @Failure 429 {object} models.ErrorResponse
// @Router /auth/signup [post]
func (s *Server) Signup(c *fiber.Ctx) error {
	var req signupRequest
	if err := c.BodyParser(&req); err != nil {
		return s.respondError(c, models.NewValidationError("Invalid request body"))
	}

	res, err := s.profiles.Register(c.UserContext(), service.RegisterInput(req))
	if err != nil {
		return s.respondError(c, err)
	}
	return s.startSession(c, res, fiber.StatusCreated)
}

// Login handles POST /api/auth/login
// @Summary User login
// @Description Authenticate by username or email and start a session
// @Tags auth
// @Accept json,x-www-form-urlencoded
// @Produce json
// @Param request body object{login=string,password=string} true "Login credentials"
// @Success 200 {object} object{token=string,user=models.User}
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/login [post]
func (s *Server) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return s.respondError(c, models.NewValidationError("Invalid request body"))
	}

	res, err := s.profiles.Login(c.UserContext(), service.LoginInput(req))
	if err != nil {
		return s.respondError(c, err)
	}
	return s.startSession(c, res, fiber.StatusOK)
}

// Logout handles POST /api/auth/logout
// @Summary User logout
// @Description Clear the session cookie
// @Tags auth
// @Success 204
// @Router /auth/logout [post]
func (s *Server) Logout(c *fiber.Ctx) error {
	c.Cookie(&fiber.Cookie{
		Name:     middleware.TokenCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	if isHTMX(c) {
		c.Set("HX-Refresh", "true")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// startSession stores the token in the session cookie. htmx callers reload
// the page they are on; API callers receive the token in the body.
func (s *Server) startSession(c *fiber.Ctx, res *service.AuthResult, status int) error {
	c.Cookie(&fiber.Cookie{
		Name:     middleware.TokenCookie,
		Value:    res.Token,
		Path:     "/",
		Expires:  time.Now().Add(s.auth.TTL()),
		HTTPOnly: true,
		Secure:   s.config.IsProduction(),
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	if isHTMX(c) {
		c.Set("HX-Refresh", "true")
		return c.SendStatus(status)
	}
	return c.Status(status).JSON(fiber.Map{
		"token": res.Token,
		"user":  res.User,
	})
}

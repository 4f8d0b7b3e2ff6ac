package server

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"quill/internal/middleware"
	"quill/internal/models"
	"quill/internal/render"
	"quill/internal/visibility"

	"github.com/gofiber/fiber/v2"
)

const (
	viewerLocal     = "viewer"
	viewerUserLocal = "viewerUser"
)

// resolveViewer turns the authenticated user id into the viewer identity
// every visibility check runs against. A token for a deleted account is
// treated as anonymous.
func (s *Server) resolveViewer() fiber.Handler {
	return func(c *fiber.Ctx) error {
		viewer, user, err := s.profiles.Viewer(c.UserContext(), middleware.UserID(c))
		if err != nil {
			if !models.IsCode(err, models.CodeNotFound) {
				return s.respondError(c, err)
			}
			viewer, user = visibility.Anonymous(), nil
		}
		c.Locals(viewerLocal, viewer)
		if user != nil {
			c.Locals(viewerUserLocal, user)
			c.SetUserContext(context.WithValue(c.UserContext(), middleware.UserIDKey, user.ID))
		}
		return c.Next()
	}
}

// requireViewer rejects anonymous callers of command routes.
func (s *Server) requireViewer(c *fiber.Ctx) error {
	if viewerOf(c).IsAnonymous() {
		return s.respondError(c, models.NewUnauthorizedError("Sign in to continue"))
	}
	return c.Next()
}

func viewerOf(c *fiber.Ctx) visibility.Viewer {
	if v, ok := c.Locals(viewerLocal).(visibility.Viewer); ok {
		return v
	}
	return visibility.Anonymous()
}

func viewerUserOf(c *fiber.Ctx) *models.User {
	u, _ := c.Locals(viewerUserLocal).(*models.User)
	return u
}

// isHTMX reports whether the request was issued by htmx and expects a fragment.
func isHTMX(c *fiber.Ctx) bool {
	return c.Get("HX-Request") == "true"
}

// wantsHTML reports whether errors should be answered with markup.
func wantsHTML(c *fiber.Ctx) bool {
	if strings.HasPrefix(c.Path(), "/api/") {
		return isHTMX(c)
	}
	return isHTMX(c) || strings.Contains(c.Get(fiber.HeaderAccept), fiber.MIMETextHTML)
}

// respondError maps err onto the status taxonomy. HTML callers get an inline
// message and htmx is told not to swap it over existing content.
func (s *Server) respondError(c *fiber.Ctx, err error) error {
	if models.ErrorCode(err) == models.CodeInternal {
		middleware.Logger.ErrorContext(c.UserContext(), "request error",
			slog.String("path", c.Path()), slog.String("error", err.Error()))
	}
	if !wantsHTML(c) {
		return models.RespondWithError(c, err)
	}
	if isHTMX(c) {
		c.Set("HX-Reswap", "none")
	}
	c.Type("html", "utf-8")
	return c.Status(models.HTTPStatus(err)).SendString(render.ErrorFragment(models.PublicMessage(err)))
}

// errorHandler answers errors returned by handlers and by fiber itself.
func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		if wantsHTML(c) {
			c.Type("html", "utf-8")
			return c.Status(fe.Code).SendString(render.ErrorFragment(fe.Message))
		}
		return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
	}
	return s.respondError(c, err)
}

// page renders a full page, or only its content block for htmx navigation.
func (s *Server) page(c *fiber.Ctx, name, title string, data any) error {
	c.Type("html", "utf-8")
	c.Vary("HX-Request")
	view := &render.View{
		Title:  title,
		Viewer: viewerUserOf(c),
		Now:    s.posts.Resolver().Now(),
		Data:   data,
	}
	if err := s.renderer.Page(c.Response().BodyWriter(), name, view, render.IsPartial(c)); err != nil {
		c.Response().ResetBody()
		return s.respondError(c, models.NewInternalError(err))
	}
	return nil
}

// fragment sends rendered markup with the given status.
func fragment(c *fiber.Ctx, status int, html string) error {
	c.Type("html", "utf-8")
	return c.Status(status).SendString(html)
}

// hxNavigate tells htmx to load location; plain clients get a redirect.
func hxNavigate(c *fiber.Ctx, location string) error {
	if isHTMX(c) {
		c.Set("HX-Redirect", location)
		return c.SendStatus(fiber.StatusOK)
	}
	return c.Redirect(location, fiber.StatusSeeOther)
}

// parseID extracts a route parameter as a positive id.
func parseID(c *fiber.Ctx, param string) (uint, error) {
	id, err := c.ParamsInt(param)
	if err != nil || id <= 0 {
		return 0, models.NewValidationError("Invalid " + param)
	}
	return uint(id), nil
}

func queryPage(c *fiber.Ctx) int {
	page := c.QueryInt("page", 1)
	if page < 1 {
		return 1
	}
	return page
}

// postVotes builds the vote widget of every listed post.
func postVotes(posts []*models.Post, canVote bool) map[uint]render.VoteView {
	votes := make(map[uint]render.VoteView, len(posts))
	for _, p := range posts {
		votes[p.ID] = render.PostVote(p, canVote)
	}
	return votes
}

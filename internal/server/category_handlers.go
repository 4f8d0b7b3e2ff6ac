package server

import (
	"quill/internal/render"

	"github.com/gofiber/fiber/v2"
)

// Categories handles GET /categories
// @Summary Category index
// @Description Categories with at least one live post
// @Tags categories
// @Produce html
// @Success 200 {string} string "HTML page"
// @Router /categories [get]
func (s *Server) Categories(c *fiber.Ctx) error {
	categories, err := s.categories.List(c.UserContext())
	if err != nil {
		return s.respondError(c, err)
	}
	return s.page(c, "categories", "Categories", &render.CategoryListPage{Categories: categories})
}

// ListCategoriesAPI handles GET /api/categories
// @Summary List categories
// @Description Categories with at least one live post and their live post counts, ordered by name
// @Tags categories
// @Produce json
// @Success 200 {array} models.Category
// @Failure 500 {object} models.ErrorResponse
// @Router /categories [get]
func (s *Server) ListCategoriesAPI(c *fiber.Ctx) error {
	categories, err := s.categories.List(c.UserContext())
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(categories)
}

package server

import (
	"strings"
	"time"

	"quill/internal/models"
	"quill/internal/publication"
	"quill/internal/render"
	"quill/internal/service"

	"github.com/gofiber/fiber/v2"
)

// scheduledInputLayout is what a datetime-local input submits.
const scheduledInputLayout = "2006-01-02T15:04"

type postRequest struct {
	Title       string `json:"title" form:"title"`
	Content     string `json:"content" form:"content"`
	Category    string `json:"category" form:"category"`
	Visibility  string `json:"visibility" form:"visibility"`
	ScheduledAt string `json:"scheduled_at" form:"scheduled_at"`
}

// input converts the request into service input. Times without a zone are
// read as UTC.
func (r postRequest) input() (service.PostInput, error) {
	in := service.PostInput{
		Title:        r.Title,
		Content:      r.Content,
		CategorySlug: strings.TrimSpace(r.Category),
		Visibility:   strings.TrimSpace(r.Visibility),
	}
	raw := strings.TrimSpace(r.ScheduledAt)
	if raw == "" {
		return in, nil
	}
	at, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		if at, err = time.ParseInLocation(scheduledInputLayout, raw, time.UTC); err != nil {
			return in, models.NewValidationError("scheduled_at must be a date and time")
		}
	}
	at = at.UTC()
	in.ScheduledAt = &at
	return in, nil
}

func (s *Server) parsePostRequest(c *fiber.Ctx) (service.PostInput, error) {
	var req postRequest
	if err := c.BodyParser(&req); err != nil {
		return service.PostInput{}, models.NewValidationError("Invalid request body")
	}
	return req.input()
}

// listing assembles a post list page. Authors get the compose form and the
// category choices it needs.
func (s *Server) listing(c *fiber.Ctx, heading, basePath string, page *service.PostPage, compose bool) (render.PostListPage, error) {
	canVote := !viewerOf(c).IsAnonymous()
	data := render.PostListPage{
		Heading:    heading,
		Posts:      page.Posts,
		Votes:      postVotes(page.Posts, canVote),
		Page:       page.Page,
		HasNext:    page.HasNext,
		BasePath:   basePath,
		Category:   page.Category,
		CanCompose: compose && canVote,
	}
	if data.CanCompose {
		categories, err := s.categories.All(c.UserContext())
		if err != nil {
			return data, err
		}
		data.Categories = categories
	}
	return data, nil
}

// Home handles GET /
// @Summary Latest posts
// @Description Newest posts the caller may read, drafts of their own included
// @Tags posts
// @Produce html
// @Param page query int false "Page number"
// @Success 200 {string} string "HTML page"
// @Router / [get]
func (s *Server) Home(c *fiber.Ctx) error {
	page, err := s.posts.ListVisiblePosts(c.UserContext(), viewerOf(c), service.ListFilter{Page: queryPage(c)})
	if err != nil {
		return s.respondError(c, err)
	}
	data, err := s.listing(c, "Latest posts", "/", page, true)
	if err != nil {
		return s.respondError(c, err)
	}
	return s.page(c, "posts", "Home", data)
}

// Feed handles GET /feed
// @Summary Following feed
// @Description Published posts by the authors the caller follows
// @Tags posts
// @Produce html
// @Param page query int false "Page number"
// @Success 200 {string} string "HTML page"
// @Failure 401 {string} string "Not signed in"
// @Router /feed [get]
func (s *Server) Feed(c *fiber.Ctx) error {
	page, err := s.posts.Feed(c.UserContext(), viewerOf(c), queryPage(c))
	if err != nil {
		return s.respondError(c, err)
	}
	data, err := s.listing(c, "Your feed", "/feed", page, false)
	if err != nil {
		return s.respondError(c, err)
	}
	return s.page(c, "posts", "Feed", data)
}

// CategoryPosts handles GET /categories/:slug
// @Summary Posts in a category
// @Tags categories
// @Produce html
// @Param slug path string true "Category slug"
// @Param page query int false "Page number"
// @Success 200 {string} string "HTML page"
// @Failure 404 {string} string "Unknown category"
// @Router /categories/{slug} [get]
func (s *Server) CategoryPosts(c *fiber.Ctx) error {
	slug := c.Params("slug")
	page, err := s.posts.ListVisiblePosts(c.UserContext(), viewerOf(c), service.ListFilter{CategorySlug: slug, Page: queryPage(c)})
	if err != nil {
		return s.respondError(c, err)
	}
	data, err := s.listing(c, page.Category.Name, "/categories/"+slug, page, false)
	if err != nil {
		return s.respondError(c, err)
	}
	return s.page(c, "posts", page.Category.Name, data)
}

// GetPost handles GET /posts/:slug
// @Summary Post detail
// @Description A post with its comment thread. Posts the caller cannot read are reported missing.
// @Tags posts
// @Produce html
// @Param slug path string true "Post slug"
// @Success 200 {string} string "HTML page"
// @Failure 404 {string} string "Not found"
// @Router /posts/{slug} [get]
func (s *Server) GetPost(c *fiber.Ctx) error {
	ctx := c.UserContext()
	viewer := viewerOf(c)

	post, err := s.posts.GetPost(ctx, c.Params("slug"), viewer)
	if err != nil {
		return s.respondError(c, err)
	}
	thread, err := s.comments.Thread(ctx, post, viewer)
	if err != nil {
		return s.respondError(c, err)
	}

	data := &render.PostDetailPage{
		Post:     post,
		Status:   publication.Classify(post, s.posts.Resolver().Now()),
		Vote:     render.PostVote(post, !viewer.IsAnonymous()),
		Thread:   thread,
		IsAuthor: !viewer.IsAnonymous() && post.AuthorID == viewer.UserID,
	}
	if data.IsAuthor {
		if data.Categories, err = s.categories.All(ctx); err != nil {
			return s.respondError(c, err)
		}
	}
	return s.page(c, "post", post.Title, data)
}

// CreatePost handles POST /posts
// @Summary Create post
// @Description Publish now, schedule, or save a private draft
// @Tags posts
// @Accept json,x-www-form-urlencoded
// @Produce json
// @Param request body object{title=string,content=string,category=string,visibility=string,scheduled_at=string} true "Post"
// @Success 201 {object} models.Post
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /posts [post]
func (s *Server) CreatePost(c *fiber.Ctx) error {
	in, err := s.parsePostRequest(c)
	if err != nil {
		return s.respondError(c, err)
	}
	post, err := s.posts.CreatePost(c.UserContext(), viewerOf(c), in)
	if err != nil {
		return s.respondError(c, err)
	}
	if isHTMX(c) {
		return hxNavigate(c, "/posts/"+post.Slug)
	}
	return c.Status(fiber.StatusCreated).JSON(post)
}

// UpdatePost handles PUT /posts/:slug
// @Summary Update post
// @Description Edit a post. Only its author may do so.
// @Tags posts
// @Accept json,x-www-form-urlencoded
// @Produce json
// @Param slug path string true "Post slug"
// @Param request body object{title=string,content=string,category=string,visibility=string,scheduled_at=string} true "Post"
// @Success 200 {object} models.Post
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /posts/{slug} [put]
func (s *Server) UpdatePost(c *fiber.Ctx) error {
	in, err := s.parsePostRequest(c)
	if err != nil {
		return s.respondError(c, err)
	}
	post, err := s.posts.UpdatePost(c.UserContext(), viewerOf(c), c.Params("slug"), in)
	if err != nil {
		return s.respondError(c, err)
	}
	if isHTMX(c) {
		return hxNavigate(c, "/posts/"+post.Slug)
	}
	return c.JSON(post)
}

// DeletePost handles DELETE /posts/:slug
// @Summary Delete post
// @Description Delete a post with its comments and votes. Only its author may do so.
// @Tags posts
// @Param slug path string true "Post slug"
// @Success 204
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /posts/{slug} [delete]
func (s *Server) DeletePost(c *fiber.Ctx) error {
	if err := s.posts.DeletePost(c.UserContext(), viewerOf(c), c.Params("slug")); err != nil {
		return s.respondError(c, err)
	}
	if isHTMX(c) {
		return hxNavigate(c, "/")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// VotePost handles POST /posts/:slug/vote
// @Summary Vote on a post
// @Description Toggle a like or dislike. Repeating a vote withdraws it.
// @Tags votes
// @Accept json,x-www-form-urlencoded
// @Produce json
// @Param slug path string true "Post slug"
// @Param request body object{vote_type=string} true "like or dislike"
// @Success 200 {object} service.VoteResult
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /posts/{slug}/vote [post]
func (s *Server) VotePost(c *fiber.Ctx) error {
	voteType, err := parseVoteType(c)
	if err != nil {
		return s.respondError(c, err)
	}
	slug := c.Params("slug")
	res, err := s.votes.CastPostVote(c.UserContext(), viewerOf(c), slug, voteType)
	if err != nil {
		return s.respondError(c, err)
	}
	return s.voteResponse(c, res, render.VoteView{
		Kind:     res.Target.Kind,
		ID:       res.Target.ID,
		URL:      "/posts/" + slug + "/vote",
		Likes:    res.Likes,
		Dislikes: res.Dislikes,
		Current:  res.Final,
		CanVote:  true,
	})
}

func parseVoteType(c *fiber.Ctx) (models.VoteType, error) {
	var req struct {
		VoteType string `json:"vote_type" form:"vote_type"`
	}
	if err := c.BodyParser(&req); err != nil {
		return 0, models.NewValidationError("Invalid request body")
	}
	return models.ParseVoteType(strings.TrimSpace(req.VoteType))
}

// voteResponse swaps the vote widget for htmx and returns the counts otherwise.
func (s *Server) voteResponse(c *fiber.Ctx, res *service.VoteResult, view render.VoteView) error {
	if !isHTMX(c) {
		return c.JSON(res)
	}
	html, err := s.renderer.VoteFragment(view)
	if err != nil {
		return s.respondError(c, models.NewInternalError(err))
	}
	return fragment(c, fiber.StatusOK, html)
}

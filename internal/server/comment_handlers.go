package server

import (
	"quill/internal/models"
	"quill/internal/render"
	"quill/internal/service"

	"github.com/gofiber/fiber/v2"
)

type commentRequest struct {
	Content  string `json:"content" form:"content"`
	ParentID uint   `json:"parent_id" form:"parent_id"`
}

// CreateComment handles POST /posts/:slug/comments
// @Summary Add comment
// @Description Add a top-level comment or, with parent_id, a reply. htmx callers receive the rendered comment.
// @Tags comments
// @Accept json,x-www-form-urlencoded
// @Produce json,html
// @Param slug path string true "Post slug"
// @Param request body object{content=string,parent_id=int} true "Comment"
// @Success 201 {object} models.Comment
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /posts/{slug}/comments [post]
func (s *Server) CreateComment(c *fiber.Ctx) error {
	var req commentRequest
	if err := c.BodyParser(&req); err != nil {
		return s.respondError(c, models.NewValidationError("Invalid request body"))
	}
	in := service.CommentInput{Content: req.Content}
	if req.ParentID != 0 {
		in.ParentID = &req.ParentID
	}

	res, err := s.comments.AddComment(c.UserContext(), viewerOf(c), c.Params("slug"), in)
	if err != nil {
		return s.respondError(c, err)
	}
	if isHTMX(c) {
		return fragment(c, fiber.StatusCreated, res.Fragment)
	}
	return c.Status(fiber.StatusCreated).JSON(res.Comment)
}

// UpdateComment handles PUT /comments/:id
// @Summary Edit comment
// @Tags comments
// @Accept json,x-www-form-urlencoded
// @Produce json,html
// @Param id path int true "Comment ID"
// @Param request body object{content=string} true "New content"
// @Success 200 {object} models.Comment
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /comments/{id} [put]
func (s *Server) UpdateComment(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return s.respondError(c, err)
	}
	var req commentRequest
	if err := c.BodyParser(&req); err != nil {
		return s.respondError(c, models.NewValidationError("Invalid request body"))
	}

	res, err := s.comments.EditComment(c.UserContext(), viewerOf(c), id, req.Content)
	if err != nil {
		return s.respondError(c, err)
	}
	if isHTMX(c) {
		return fragment(c, fiber.StatusOK, res.Fragment)
	}
	return c.JSON(res.Comment)
}

// DeleteComment handles DELETE /comments/:id
// @Summary Delete comment
// @Description Delete a comment together with all of its replies
// @Tags comments
// @Produce json,html
// @Param id path int true "Comment ID"
// @Success 200 {object} object{post_id=int,comment_id=int,no_comments_left=bool}
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /comments/{id} [delete]
func (s *Server) DeleteComment(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return s.respondError(c, err)
	}

	res, err := s.comments.DeleteComment(c.UserContext(), viewerOf(c), id)
	if err != nil {
		return s.respondError(c, err)
	}
	if isHTMX(c) {
		// an empty body swaps the comment out; the fragment only carries the
		// out-of-band empty state
		return fragment(c, fiber.StatusOK, res.Fragment)
	}
	return c.JSON(fiber.Map{
		"post_id":          res.PostID,
		"comment_id":       res.CommentID,
		"no_comments_left": res.NoCommentsLeft,
	})
}

// VoteComment handles POST /comments/:id/vote
// @Summary Vote on a comment
// @Description Toggle a like or dislike on a comment. Available behind the comment_votes flag.
// @Tags votes
// @Accept json,x-www-form-urlencoded
// @Produce json,html
// @Param id path int true "Comment ID"
// @Param request body object{vote_type=string} true "like or dislike"
// @Success 200 {object} service.VoteResult
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /comments/{id}/vote [post]
func (s *Server) VoteComment(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return s.respondError(c, err)
	}
	voteType, err := parseVoteType(c)
	if err != nil {
		return s.respondError(c, err)
	}

	res, err := s.votes.CastVote(c.UserContext(), viewerOf(c), models.CommentTarget(id), voteType)
	if err != nil {
		return s.respondError(c, err)
	}
	counts := models.VoteCounts{Likes: res.Likes, Dislikes: res.Dislikes}
	return s.voteResponse(c, res, render.CommentVote(id, counts, res.Final, true))
}

package server

import (
	"quill/internal/models"
	"quill/internal/render"
	"quill/internal/service"

	"github.com/gofiber/fiber/v2"
)

// profilePage builds the profile view model for username as seen by the caller.
func (s *Server) profilePage(c *fiber.Ctx, username string) (*render.ProfilePage, error) {
	viewer := viewerOf(c)
	view, err := s.profiles.GetProfile(c.UserContext(), username, viewer, queryPage(c))
	if err != nil {
		return nil, err
	}
	username = view.Profile.User.Username
	posts, err := s.listing(c, "Posts", "/users/"+username, view.Posts, false)
	if err != nil {
		return nil, err
	}
	return &render.ProfilePage{
		Profile: view.Profile,
		Follow: render.FollowView{
			Username:       username,
			Following:      view.Following,
			CanFollow:      !viewer.IsAnonymous() && !view.IsSelf,
			FollowersCount: view.Profile.FollowersCount,
		},
		IsSelf: view.IsSelf,
		Posts:  posts,
	}, nil
}

// Me handles GET /api/me
// @Summary Current user
// @Description The signed-in user and their profile
// @Tags users
// @Produce json
// @Success 200 {object} object{user=models.User,profile=models.Profile,features=map[string]bool}
// @Failure 401 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /me [get]
func (s *Server) Me(c *fiber.Ctx) error {
	user := viewerUserOf(c)
	if user == nil {
		return s.respondError(c, models.NewUnauthorizedError("Authentication required"))
	}
	profile, err := s.profiles.EnsureProfile(c.UserContext(), user.ID)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"user":     user,
		"profile":  profile,
		"features": s.flags.Snapshot(user.ID),
	})
}

// GetProfile handles GET /users/:username
// @Summary User profile
// @Description A profile with follow counts and the posts the caller may read
// @Tags users
// @Produce html
// @Param username path string true "Username"
// @Param page query int false "Page number"
// @Success 200 {string} string "HTML page"
// @Failure 404 {string} string "Unknown user"
// @Router /users/{username} [get]
func (s *Server) GetProfile(c *fiber.Ctx) error {
	data, err := s.profilePage(c, c.Params("username"))
	if err != nil {
		return s.respondError(c, err)
	}
	return s.page(c, "profile", data.Profile.User.Username, data)
}

// Followers handles GET /users/:username/followers
// @Summary Followers
// @Tags users
// @Produce html
// @Param username path string true "Username"
// @Param page query int false "Page number"
// @Success 200 {string} string "HTML page"
// @Failure 404 {string} string "Unknown user"
// @Router /users/{username}/followers [get]
func (s *Server) Followers(c *fiber.Ctx) error {
	list, err := s.profiles.Followers(c.UserContext(), c.Params("username"), queryPage(c))
	if err != nil {
		return s.respondError(c, err)
	}
	return s.profileList(c, list, "Followers", "followers")
}

// Following handles GET /users/:username/following
// @Summary Following
// @Tags users
// @Produce html
// @Param username path string true "Username"
// @Param page query int false "Page number"
// @Success 200 {string} string "HTML page"
// @Failure 404 {string} string "Unknown user"
// @Router /users/{username}/following [get]
func (s *Server) Following(c *fiber.Ctx) error {
	list, err := s.profiles.Following(c.UserContext(), c.Params("username"), queryPage(c))
	if err != nil {
		return s.respondError(c, err)
	}
	return s.profileList(c, list, "Following", "following")
}

func (s *Server) profileList(c *fiber.Ctx, list *service.ProfileList, heading, resource string) error {
	username := list.Profile.User.Username
	data := &render.ProfileListPage{
		Profile:  list.Profile,
		Heading:  heading,
		Profiles: list.Profiles,
		Page:     list.Page,
		HasNext:  list.HasNext,
		BasePath: "/users/" + username + "/" + resource,
	}
	return s.page(c, "profiles", username+" · "+heading, data)
}

// ToggleFollow handles POST /users/:username/follow
// @Summary Follow or unfollow
// @Description Follow the user when not following, unfollow otherwise
// @Tags users
// @Produce json,html
// @Param username path string true "Username"
// @Success 200 {object} service.FollowResult
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /users/{username}/follow [post]
func (s *Server) ToggleFollow(c *fiber.Ctx) error {
	username := c.Params("username")
	res, err := s.profiles.ToggleFollow(c.UserContext(), viewerOf(c), username)
	if err != nil {
		return s.respondError(c, err)
	}
	if !isHTMX(c) {
		return c.JSON(res)
	}
	html, err := s.renderer.FollowFragment(render.FollowView{
		Username:       username,
		Following:      res.Following,
		CanFollow:      true,
		FollowersCount: res.FollowersCount,
	})
	if err != nil {
		return s.respondError(c, models.NewInternalError(err))
	}
	return fragment(c, fiber.StatusOK, html)
}

// UpdateProfile handles PUT /profile
// @Summary Update bio
// @Tags users
// @Accept json,x-www-form-urlencoded
// @Produce json,html
// @Param request body object{bio=string} true "Bio"
// @Success 200 {object} models.Profile
// @Failure 400 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /profile [put]
func (s *Server) UpdateProfile(c *fiber.Ctx) error {
	var req struct {
		Bio string `json:"bio" form:"bio"`
	}
	if err := c.BodyParser(&req); err != nil {
		return s.respondError(c, models.NewValidationError("Invalid request body"))
	}
	profile, err := s.profiles.UpdateProfile(c.UserContext(), viewerOf(c).UserID, req.Bio)
	if err != nil {
		return s.respondError(c, err)
	}
	return s.profileHeader(c, profile)
}

// UploadAvatar handles POST /profile/avatar
// @Summary Upload avatar
// @Description Accepts PNG, JPEG, GIF or WebP and stores a square WebP
// @Tags users
// @Accept multipart/form-data
// @Produce json,html
// @Param avatar formData file true "Image"
// @Success 200 {object} models.Profile
// @Failure 400 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /profile/avatar [post]
func (s *Server) UploadAvatar(c *fiber.Ctx) error {
	header, err := c.FormFile("avatar")
	if err != nil {
		return s.respondError(c, models.NewValidationError("An image file is required"))
	}
	file, err := header.Open()
	if err != nil {
		return s.respondError(c, models.NewValidationError("Could not read upload"))
	}
	defer file.Close()

	profile, err := s.profiles.UpdateAvatar(c.UserContext(), viewerOf(c).UserID, file)
	if err != nil {
		return s.respondError(c, err)
	}
	return s.profileHeader(c, profile)
}

// profileHeader answers a profile edit with the refreshed header for htmx
// and the bare profile otherwise.
func (s *Server) profileHeader(c *fiber.Ctx, profile *models.Profile) error {
	if !isHTMX(c) {
		return c.JSON(profile)
	}
	user := viewerUserOf(c)
	if user == nil {
		return s.respondError(c, models.NewUnauthorizedError("Sign in to continue"))
	}
	data, err := s.profilePage(c, user.Username)
	if err != nil {
		return s.respondError(c, err)
	}
	html, err := s.renderer.ProfileHeaderFragment(data)
	if err != nil {
		return s.respondError(c, models.NewInternalError(err))
	}
	return fragment(c, fiber.StatusOK, html)
}

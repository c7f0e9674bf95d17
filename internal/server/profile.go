package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	profiledomain "github.com/lumera-ai/lumera/internal/profile/domain"
)

type updateProfileRequest struct {
	Name  *string `json:"name"`
	Phone *string `json:"phone"`
}

func (s *Server) updateProfile(c *gin.Context) {
	status := s.sessions.Status()
	if status.User == nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request body"))
		return
	}
	if req.Name == nil && req.Phone == nil {
		AbortWithError(c, newValidationError("request", "empty_patch", "nothing to update"))
		return
	}

	profile, err := s.profiles.Update(c.Request.Context(), status.User.IdentityID, profiledomain.UpdateRequest{
		Name:  req.Name,
		Phone: req.Phone,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.sessions.RefreshProfile()

	c.JSON(http.StatusOK, profileResponse(profile))
}

func profileResponse(p *profiledomain.UserProfile) gin.H {
	return gin.H{
		"id":        p.ID.String(),
		"email":     p.Email,
		"name":      p.Name,
		"phone":     p.Phone,
		"role":      p.Role,
		"plan":      p.Plan,
		"counters":  p.Counters,
		"is_active": p.IsActive,
	}
}

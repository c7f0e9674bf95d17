package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type sendCodeRequest struct {
	Email string `json:"email" binding:"required,email"`
}

func (s *Server) sendCode(c *gin.Context) {
	var req sendCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("email", "invalid_email", "a valid email is required"))
		return
	}

	if err := s.flow.SendCode(c.Request.Context(), req.Email); err != nil {
		s.obsMetrics.RecordCodeSend(c.Request.Context(), "error")
		AbortWithError(c, err)
		return
	}
	s.obsMetrics.RecordCodeSend(c.Request.Context(), "ok")

	c.JSON(http.StatusOK, gin.H{
		"step":            s.flow.State().Step,
		"code_expires_in": s.flow.CodeExpiresIn().Seconds(),
	})
}

type verifyCodeRequest struct {
	Code string `json:"code" binding:"required"`
}

func (s *Server) verifyCode(c *gin.Context) {
	var req verifyCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("code", "invalid_code", "a code is required"))
		return
	}

	res, err := s.flow.SubmitCode(c.Request.Context(), req.Code)
	if err != nil {
		s.obsMetrics.RecordVerification(c.Request.Context(), "error")
		AbortWithError(c, err)
		return
	}
	s.obsMetrics.RecordVerification(c.Request.Context(), "ok")

	route := "redirect"
	if res.FirstSignIn {
		route = "plan_selection"
	}
	s.obsMetrics.RecordSignIn(c.Request.Context(), route)

	c.JSON(http.StatusOK, gin.H{
		"first_sign_in": res.FirstSignIn,
		"step":          s.flow.State().Step,
	})
}

func (s *Server) resendCode(c *gin.Context) {
	if err := s.flow.Resend(c.Request.Context()); err != nil {
		s.obsMetrics.RecordCodeSend(c.Request.Context(), "error")
		AbortWithError(c, err)
		return
	}
	s.obsMetrics.RecordCodeSend(c.Request.Context(), "ok")

	c.JSON(http.StatusOK, gin.H{
		"step":            s.flow.State().Step,
		"code_expires_in": s.flow.CodeExpiresIn().Seconds(),
	})
}

func (s *Server) flowState(c *gin.Context) {
	state := s.flow.State()
	c.JSON(http.StatusOK, gin.H{
		"step":            state.Step,
		"email":           state.Email,
		"had_error":       state.HadError,
		"first_sign_in":   state.FirstSignIn,
		"code_expires_in": s.flow.CodeExpiresIn().Seconds(),
	})
}

func (s *Server) sessionStatus(c *gin.Context) {
	status := s.sessions.Status()
	resp := gin.H{
		"loading":          status.Loading,
		"redirect_allowed": s.sessions.RedirectAllowed(c.Request.Context()),
	}
	if status.User != nil {
		resp["user"] = profileResponse(status.User)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) signOut(c *gin.Context) {
	if err := s.sessions.SignOut(c.Request.Context()); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "signed_out"})
}

package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) balance(c *gin.Context) {
	status := s.sessions.Status()
	if status.User == nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	snap, err := s.entitlements.Balance(c.Request.Context(), status.User.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.obsMetrics.RecordBalanceCompute(c.Request.Context(), status.User.Plan)

	c.JSON(http.StatusOK, snap)
}

func (s *Server) plans(c *gin.Context) {
	pricing := s.pricing.Get()
	plans := make([]gin.H, 0, len(pricing.Plans))
	for _, p := range pricing.Plans {
		plans = append(plans, gin.H{
			"id":                    p.ID,
			"display_credits_total": p.DisplayCreditsTotal,
			"actual_credits_total":  p.ActualCreditsTotal,
			"price_monthly":         p.PriceMonthly,
			"kind":                  p.Kind,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"plans":                    plans,
		"image_credits":            pricing.ImageCredits,
		"video_credits_per_second": pricing.VideoCreditsPerSecond,
	})
}

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Stats godoc
// @ID          stats
// @Summary     Engagement summary
// @Description Page view totals for the main pages, chat totals, and the share of home page visitors who posted.
// @Tags        Stats
// @Produce     json
// @Success     200  {object}  services.Summary
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /stats [get]
func (h *Handlers) Stats(c *gin.Context) {
	sum, err := h.statsSvc.Summary(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, sum)
}

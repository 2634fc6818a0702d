// Visit counter HTTP handlers.
//
//   - GET /page-views        (per-page totals and raw hits)
//   - GET /unique-visitors   (distinct addresses per page)
//   - GET /client-info       (caller address and chat quota)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ClientInfoResponse describes the caller as the server sees it.
type ClientInfoResponse struct {
	IP        string `json:"ip" example:"203.0.113.7"`
	ChatCount int64  `json:"chatCount" example:"1"`
	Remaining int64  `json:"remaining" example:"2"`
}

// PageViews godoc
// @ID          pageViews
// @Summary     Page view counters
// @Description Returns the unique-visitor total and raw hit count for every tracked page.
// @Tags        Visits
// @Produce     json
// @Success     200  {array}   domain.PageView
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /page-views [get]
func (h *Handlers) PageViews(c *gin.Context) {
	rows, err := h.visitSvc.PageViews(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, rows)
}

// UniqueVisitors godoc
// @ID          uniqueVisitors
// @Summary     Unique visitors per page
// @Tags        Visits
// @Produce     json
// @Success     200  {array}   domain.PageVisitorCount
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /unique-visitors [get]
func (h *Handlers) UniqueVisitors(c *gin.Context) {
	rows, err := h.visitSvc.UniqueVisitors(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, rows)
}

// ClientInfo godoc
// @ID          clientInfo
// @Summary     Caller address and chat quota
// @Description Returns the client address used for rate limiting, how many messages it posted in the current window, and how many remain.
// @Tags        Visits
// @Produce     json
// @Success     200  {object}  handlers.ClientInfoResponse
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /client-info [get]
func (h *Handlers) ClientInfo(c *gin.Context) {
	ip := c.ClientIP()
	count, remaining, err := h.chatSvc.Quota(c.Request.Context(), ip)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, ClientInfoResponse{IP: ip, ChatCount: count, Remaining: remaining})
}

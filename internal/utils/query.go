// Package utils parses the query string of the chat list endpoint.
package utils

import (
	"net/url"
	"strconv"
	"strings"
)

// ListQuery is the view of the board a client asked for. Limit 0 means the
// server default.
type ListQuery struct {
	Limit int
	Desc  bool
}

// ParseListQuery reads limit and order. A limit that is missing, malformed
// or not positive becomes 0. Only order=desc (any case) flips the order.
func ParseListQuery(q url.Values) ListQuery {
	var lq ListQuery
	if n, err := strconv.Atoi(strings.TrimSpace(q.Get("limit"))); err == nil && n > 0 {
		lq.Limit = n
	}
	lq.Desc = strings.EqualFold(strings.TrimSpace(q.Get("order")), "desc")
	return lq
}

// Order returns "asc" or "desc".
func (lq ListQuery) Order() string {
	if lq.Desc {
		return "desc"
	}
	return "asc"
}

// String identifies the view, e.g. "desc:20". Cache validators include it so
// two views of the same board never share a tag.
func (lq ListQuery) String() string {
	return lq.Order() + ":" + strconv.Itoa(lq.Limit)
}

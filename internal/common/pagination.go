package common

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Pagination is the page block of list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	TotalItems int64 `json:"total_items"`
}

// Offset is the number of rows before the current page.
func (p Pagination) Offset() int { return (p.Page - 1) * p.PerPage }

// ParsePage reads ?page= and ?limit=. Missing or malformed values fall back to
// page 1 and defLimit; limit is capped at maxLimit.
func ParsePage(q url.Values, defLimit, maxLimit int) Pagination {
	p := Pagination{Page: AtoiDefault(q.Get("page"), 1), PerPage: AtoiDefault(q.Get("limit"), defLimit)}
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PerPage < 1 {
		p.PerPage = defLimit
	}
	if maxLimit > 0 && p.PerPage > maxLimit {
		p.PerPage = maxLimit
	}
	return p
}

// WritePage sends {"data": items, "pagination": p} and mirrors the total in X-Total-Count.
func WritePage(w http.ResponseWriter, items any, p Pagination) {
	w.Header().Set("X-Total-Count", strconv.FormatInt(p.TotalItems, 10))
	JSON(w, http.StatusOK, map[string]any{"data": items, "pagination": p})
}

// AtoiDefault parses value, returning def when it is empty or not an integer.
func AtoiDefault(value string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return def
	}
	return n
}

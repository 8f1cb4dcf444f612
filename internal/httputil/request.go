package httputil

import (
	"net/http"
	"strconv"
	"strings"
)

const AccountHeader = "X-Account-ID"

// AccountID is the account a request targets; empty selects the default.
func AccountID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(AccountHeader))
}

type Page struct {
	Limit  int
	Offset int
}

// PageFromQuery reads limit/offset, clamping limit to [1, max].
func PageFromQuery(r *http.Request, def, max int) Page {
	p := Page{Limit: def}
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		p.Limit = v
	}
	if p.Limit > max {
		p.Limit = max
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v > 0 {
		p.Offset = v
	}
	return p
}

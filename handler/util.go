package handler

import (
	"net/http"
	"strconv"
)

// parseIntQuery reads an integer query parameter, falling back to
// def on absence or malformed input.
func parseIntQuery(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

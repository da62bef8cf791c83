package dashboard

import (
	"fmt"
	"net/http"
)

// HTTPError represents a non-2xx response from the dashboard API.
type HTTPError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("dashboard: %s %s: HTTP %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// IsNotFound returns true for 404 responses.
func (e *HTTPError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsUnauthorized returns true for 401 and 403 responses.
func (e *HTTPError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// IsServerError returns true for 5xx responses.
func (e *HTTPError) IsServerError() bool {
	return e.StatusCode >= 500
}

package validation

import (
	"fmt"
	"net/http"
	"net/url"
)

// ValidateAction checks that a deferred request can be delivered later:
// a known method and a url that is either absolute http(s) or a rooted path
// relative to the configured server.
func ValidateAction(method, rawURL string) error {
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return fmt.Errorf("unsupported method %q", method)
	}

	if rawURL == "" {
		return fmt.Errorf("url cannot be empty")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}

	if u.IsAbs() {
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("unsupported url scheme %q", u.Scheme)
		}
		if u.Host == "" {
			return fmt.Errorf("url has no host")
		}
		return nil
	}
	if len(u.Path) == 0 || u.Path[0] != '/' {
		return fmt.Errorf("relative url must start with /")
	}
	return nil
}

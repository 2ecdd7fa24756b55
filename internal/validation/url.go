package validation

import (
	"fmt"
	"net/url"
	"strings"

	plerrors "github.com/conneroisu/plantctl/internal/errors"
)

// NormalizeHost validates a renderer server base URL and returns it with the
// query, fragment and trailing slash removed. Only http and https are
// accepted.
func NormalizeHost(rawURL string) (*url.URL, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, plerrors.NewValidationError(plerrors.ErrCodeInvalidHost, "host should be present, but empty host found")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, plerrors.NewValidationError(plerrors.ErrCodeInvalidHost,
			fmt.Sprintf("invalid host URL %q: %v", rawURL, err))
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, plerrors.NewValidationError(plerrors.ErrCodeInvalidHost,
			fmt.Sprintf("host's scheme should be http or https, but %q found", parsed.Scheme))
	}

	// Reject characters that have no business in a server address
	dangerous := []string{" ", "`", "\"", "'", "\\", "<", ">", "\n", "\r"}
	for _, char := range dangerous {
		if strings.Contains(rawURL, char) {
			return nil, plerrors.NewValidationError(plerrors.ErrCodeInvalidHost,
				fmt.Sprintf("host contains invalid character %q", char))
		}
	}

	if parsed.Host == "" {
		return nil, plerrors.NewValidationError(plerrors.ErrCodeInvalidHost, "host URL must have a valid hostname")
	}

	parsed.RawQuery = ""
	parsed.ForceQuery = false
	parsed.Fragment = ""
	parsed.RawFragment = ""
	parsed.Path = strings.TrimRight(parsed.Path, "/")
	parsed.RawPath = ""

	return parsed, nil
}

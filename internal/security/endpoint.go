package security

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidateBaseURL checks that a gateway base URL is usable by an outbound
// client: http or https, a host, and no query or fragment. Loopback hosts
// are allowed since the gateway is commonly local.
func ValidateBaseURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("invalid URL format")
	}

	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, fmt.Errorf("URL scheme must be http or https")
	}

	if u.Host == "" {
		return nil, fmt.Errorf("URL must have a host")
	}

	if u.User != nil {
		return nil, fmt.Errorf("URL must not carry credentials")
	}

	if u.RawQuery != "" || u.Fragment != "" {
		return nil, fmt.Errorf("URL must not have a query or fragment")
	}

	u.Path = strings.TrimRight(u.Path, "/")
	return u, nil
}

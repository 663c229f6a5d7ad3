package mastodon

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

var ErrInvalidDomain = errors.New("invalid instance domain")

// ParseOrigin turns user input such as "mastodon.social" or
// "https://example.org/" into a bare scheme://host[:port] origin.
func ParseOrigin(domain string) (*url.URL, error) {
	trimmed := strings.TrimSpace(domain)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidDomain)
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidDomain, domain, err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidDomain, u.Scheme)
	}
	if u.User != nil {
		return nil, fmt.Errorf("%w: credentials are not allowed in the domain", ErrInvalidDomain)
	}
	if u.Path != "" && u.Path != "/" {
		return nil, fmt.Errorf("%w: unexpected path %q", ErrInvalidDomain, u.Path)
	}
	if u.RawQuery != "" || u.Fragment != "" || u.Opaque != "" {
		return nil, fmt.Errorf("%w: query or fragment not allowed", ErrInvalidDomain)
	}
	host := strings.ToLower(u.Hostname())
	if !validHost(host) {
		return nil, fmt.Errorf("%w: bad host %q", ErrInvalidDomain, u.Hostname())
	}
	if port := u.Port(); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil || n < 1 || n > 65535 {
			return nil, fmt.Errorf("%w: bad port %q", ErrInvalidDomain, port)
		}
		host = net.JoinHostPort(host, port)
	} else if strings.HasSuffix(u.Host, ":") {
		return nil, fmt.Errorf("%w: empty port", ErrInvalidDomain)
	} else if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	return &url.URL{Scheme: u.Scheme, Host: host}, nil
}

func validHost(host string) bool {
	if host == "" || len(host) > 253 {
		return false
	}
	if ip := net.ParseIP(host); ip != nil {
		return true
	}
	for _, label := range strings.Split(host, ".") {
		if label == "" || len(label) > 63 {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for _, r := range label {
			switch {
			case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			default:
				return false
			}
		}
	}
	return true
}

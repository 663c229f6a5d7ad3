package auth

import (
	"fmt"
	"net"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// RejectionList holds instance domains the operator has disallowed.
// A domain also rejects its subdomains.
type RejectionList struct {
	domains map[string]struct{}
}

func NewRejectionList(domains ...string) *RejectionList {
	l := &RejectionList{domains: map[string]struct{}{}}
	for _, d := range domains {
		if d = normalizeHost(d); d != "" {
			l.domains[d] = struct{}{}
		}
	}
	return l
}

// LoadRejectionList reads a YAML sequence of domains.
func LoadRejectionList(path string) (*RejectionList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var domains []string
	if err := yaml.Unmarshal(data, &domains); err != nil {
		return nil, fmt.Errorf("parse rejection list %s: %w", path, err)
	}
	return NewRejectionList(domains...), nil
}

// Merge returns a list holding the domains of l and other.
func (l *RejectionList) Merge(other *RejectionList) *RejectionList {
	return NewRejectionList(append(l.Domains(), other.Domains()...)...)
}

func (l *RejectionList) Rejects(host string) bool {
	if l == nil || len(l.domains) == 0 {
		return false
	}
	host = normalizeHost(host)
	for host != "" {
		if _, ok := l.domains[host]; ok {
			return true
		}
		i := strings.IndexByte(host, '.')
		if i < 0 {
			break
		}
		host = host[i+1:]
	}
	return false
}

func (l *RejectionList) Len() int {
	if l == nil {
		return 0
	}
	return len(l.domains)
}

func (l *RejectionList) Domains() []string {
	if l == nil {
		return nil
	}
	out := make([]string, 0, len(l.domains))
	for d := range l.domains {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

func normalizeHost(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	if i := strings.Index(h, "://"); i >= 0 {
		h = h[i+3:]
	}
	if i := strings.IndexAny(h, "/?#"); i >= 0 {
		h = h[:i]
	}
	if host, _, err := net.SplitHostPort(h); err == nil {
		h = host
	}
	return strings.Trim(h, ".[]")
}

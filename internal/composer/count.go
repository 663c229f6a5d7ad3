package composer

import (
	"regexp"
	"strings"

	"github.com/rivo/uniseg"
	"mvdan.cc/xurls/v2"
)

// URLWeight is what every link costs, whatever its length. Mastodon counts
// links as a fixed-width placeholder.
const URLWeight = 23

// DefaultLimit is Mastodon's stock status length.
const DefaultLimit = 500

var (
	urlPattern     = xurls.Strict()
	mentionPattern = regexp.MustCompile(`@([A-Za-z0-9_]+(?:[.-]+[A-Za-z0-9_]+)*)@[A-Za-z0-9-]+(?:\.[A-Za-z0-9-]+)+`)
)

// Count returns the server-side length of mentions+content.
// URLs are looked for in content only.
func Count(mentions, content string) int {
	working := mentions + content
	urls := urlPattern.FindAllString(content, -1)
	for _, u := range urls {
		working = strings.Replace(working, u, "", 1)
	}
	working = mentionPattern.ReplaceAllString(working, "@$1")
	return uniseg.GraphemeClusterCount(working) + len(urls)*URLWeight
}

// Policy decides whether a draft may be published.
type Policy struct {
	Limit   int  `json:"limit"`
	Enforce bool `json:"enforce"`
}

func DefaultPolicy() Policy {
	return Policy{Limit: DefaultLimit, Enforce: true}
}

func (p Policy) Remaining(mentions, content string) int {
	return p.Limit - Count(mentions, content)
}

// Allows is false only when the limit is enforced and nothing remains.
func (p Policy) Allows(mentions, content string) bool {
	return !p.Enforce || p.Remaining(mentions, content) > 0
}

package discover

import "strings"

// DefaultBlockedHosts lists social and aggregator sites never worth visiting.
var DefaultBlockedHosts = []string{
	"*.facebook.com",
	"*.instagram.com",
	"*.twitter.com",
	"*.x.com",
	"*.youtube.com",
	"youtu.be",
	"*.tiktok.com",
	"*.linkedin.com",
	"*.pinterest.com",
	"*.yelp.com",
	"*.google.com",
	"*.apple.com",
}

// hostBlocklist stores exact hosts and suffix wildcards.
type hostBlocklist struct {
	exact    map[string]struct{}
	suffixes []string
}

func newHostBlocklist(patterns []string) *hostBlocklist {
	matcher := &hostBlocklist{
		exact: make(map[string]struct{}),
	}
	for _, raw := range patterns {
		value := strings.TrimSpace(strings.ToLower(raw))
		if value == "" {
			continue
		}
		switch {
		case strings.HasPrefix(value, "*."):
			matcher.addSuffix(strings.TrimPrefix(value, "*."))
		case strings.HasPrefix(value, "."):
			matcher.addSuffix(strings.TrimPrefix(value, "."))
		default:
			matcher.exact[value] = struct{}{}
		}
	}
	if len(matcher.exact) == 0 && len(matcher.suffixes) == 0 {
		return nil
	}
	return matcher
}

func (b *hostBlocklist) addSuffix(suffix string) {
	if suffix == "" {
		return
	}
	for _, existing := range b.suffixes {
		if existing == suffix {
			return
		}
	}
	b.suffixes = append(b.suffixes, suffix)
}

// IsBlocked reports whether host matches an exact entry or is equal to or a
// subdomain of a suffix entry.
func (b *hostBlocklist) IsBlocked(host string) bool {
	if b == nil {
		return false
	}
	host = strings.TrimSpace(strings.ToLower(host))
	if host == "" {
		return false
	}
	if _, exact := b.exact[host]; exact {
		return true
	}
	for _, suffix := range b.suffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}

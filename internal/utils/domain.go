package utils

import (
	"net"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// domain about

// ParseHost splits h into its registrable label and public suffix, e.g.
// news.bbc.co.uk gives "bbc" and "co.uk". A port is dropped; an IP literal,
// a single label or a bare public suffix is returned as domain with no
// suffix.
func ParseHost(h string) (domain, suffix string) {
	if h == "" {
		return
	}
	if host, _, err := net.SplitHostPort(h); err == nil {
		h = host
	}
	h = strings.TrimSuffix(strings.ToLower(h), ".")
	// 如果是ip直接返回
	if net.ParseIP(h) != nil || !strings.Contains(h, ".") {
		return h, ""
	}
	etld1, err := publicsuffix.EffectiveTLDPlusOne(h)
	if err != nil {
		return h, ""
	}
	suffix, _ = publicsuffix.PublicSuffix(h)
	return strings.TrimSuffix(etld1, "."+suffix), suffix
}

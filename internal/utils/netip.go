package utils

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ParseHostNoPort returns the host of "host:port", "[v6]:port" or a bare host.
func ParseHostNoPort(s string) string {
	if h, _, err := net.SplitHostPort(s); err == nil {
		return h
	}
	return s
}

// ClientIP returns the caller address. With trustProxy the left-most
// X-Forwarded-For entry wins, then X-Real-IP. The zero Addr means the
// address could not be parsed.
func ClientIP(r *http.Request, trustProxy bool) netip.Addr {
	if trustProxy {
		xff, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ",")
		for _, v := range []string{xff, r.Header.Get("X-Real-IP")} {
			if ip, ok := parseAddr(v); ok {
				return ip
			}
		}
	}
	ip, _ := parseAddr(r.RemoteAddr)
	return ip
}

func parseAddr(s string) (netip.Addr, bool) {
	s = strings.Trim(ParseHostNoPort(strings.TrimSpace(s)), "[]")
	ip, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, false
	}
	return ip.Unmap().WithZone(""), true
}

// IPMatcher matches addresses against prefixes. Bare addresses in the list
// become single-address prefixes; invalid entries are returned by
// NewIPMatcher.
type IPMatcher struct {
	prefixes []netip.Prefix
}

func NewIPMatcher(list []string) (*IPMatcher, []string) {
	m := &IPMatcher{}
	var invalid []string
	for _, raw := range list {
		s := strings.TrimSpace(raw)
		if s == "" {
			continue
		}
		if p, err := netip.ParsePrefix(s); err == nil {
			m.prefixes = append(m.prefixes, p.Masked())
			continue
		}
		if ip, ok := parseAddr(s); ok {
			m.prefixes = append(m.prefixes, netip.PrefixFrom(ip, ip.BitLen()))
			continue
		}
		invalid = append(invalid, s)
	}
	return m, invalid
}

func (m *IPMatcher) IsEmpty() bool { return len(m.prefixes) == 0 }

func (m *IPMatcher) Allow(ip netip.Addr) bool {
	if !ip.IsValid() {
		return false
	}
	for _, p := range m.prefixes {
		if p.Contains(ip) {
			return true
		}
	}
	return false
}

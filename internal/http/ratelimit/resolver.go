package ratelimit

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// Resolver derives the client address of a request. Forwarding headers are
// read only when the direct peer is a configured proxy; with no proxies
// configured they are ignored.
type Resolver struct {
	proxies []netip.Prefix
}

// NewResolver parses proxy entries given as CIDR ranges or single addresses.
// Entries that parse as neither are returned as invalid.
func NewResolver(proxies []string) (*Resolver, []string) {
	r := &Resolver{}
	var invalid []string
	for _, entry := range proxies {
		entry = strings.TrimSpace(entry)
		if prefix, err := netip.ParsePrefix(entry); err == nil {
			r.proxies = append(r.proxies, prefix.Masked())
			continue
		}
		if addr, err := netip.ParseAddr(entry); err == nil {
			addr = addr.Unmap()
			r.proxies = append(r.proxies, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		invalid = append(invalid, entry)
	}
	return r, invalid
}

func (r *Resolver) trusted(addr netip.Addr) bool {
	for _, p := range r.proxies {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIP returns the address requests from r should be accounted to.
// Behind trusted proxies it is the right-most X-Forwarded-For entry that is
// not itself a proxy, then X-Real-IP.
func (r *Resolver) ClientIP(req *http.Request) string {
	peer, ok := parseAddr(req.RemoteAddr)
	if !ok {
		return req.RemoteAddr
	}
	if !r.trusted(peer) {
		return peer.String()
	}

	if xff := req.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop, ok := parseAddr(strings.TrimSpace(hops[i]))
			if !ok {
				break
			}
			if !r.trusted(hop) {
				return hop.String()
			}
		}
	}
	if xri, ok := parseAddr(strings.TrimSpace(req.Header.Get("X-Real-IP"))); ok {
		return xri.String()
	}
	return peer.String()
}

func parseAddr(s string) (netip.Addr, bool) {
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

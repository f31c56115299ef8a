package httpx

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ProxyPolicy decides which forwarding headers are trusted.
//
// X-Forwarded-For and X-Forwarded-Proto are only honored when the direct
// peer falls inside TrustedProxies.
type ProxyPolicy struct {
	TrustedProxies []netip.Prefix
}

// ParseProxies parses CIDRs or bare addresses into prefixes.
func ParseProxies(values []string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, raw := range values {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !strings.Contains(raw, "/") {
			addr, err := netip.ParseAddr(raw)
			if err != nil {
				return nil, err
			}
			out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, prefix.Masked())
	}
	return out, nil
}

func (p ProxyPolicy) trusts(addr netip.Addr) bool {
	for _, prefix := range p.TrustedProxies {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIP returns the address of the client that made r. The first
// X-Forwarded-For hop is used only when the peer is a trusted proxy.
func (p ProxyPolicy) ClientIP(r *http.Request) netip.Addr {
	peer := remoteAddr(r)
	if !peer.IsValid() || !p.trusts(peer) {
		return peer
	}
	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded == "" {
		return peer
	}
	first, _, _ := strings.Cut(forwarded, ",")
	addr, err := netip.ParseAddr(strings.TrimSpace(first))
	if err != nil {
		return peer
	}
	return addr.Unmap()
}

// IsHTTPS reports whether r arrived over TLS, directly or through a
// trusted proxy.
func (p ProxyPolicy) IsHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	peer := remoteAddr(r)
	if peer.IsValid() && p.trusts(peer) {
		return strings.EqualFold(strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")), "https")
	}
	return false
}

func remoteAddr(r *http.Request) netip.Addr {
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		host = strings.TrimSpace(r.RemoteAddr)
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}
	}
	return addr.Unmap()
}

package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/labstack/echo/v4"
)

// TrustedProxies makes c.RealIP() honor X-Real-IP and X-Forwarded-For, but
// only when the peer address falls inside one of trustedCIDRs (the
// TRUSTED_PROXIES setting). Rate limits key on the resolved IP, so without
// this every client behind the load balancer would share one bucket.
func TrustedProxies(e *echo.Echo, trustedCIDRs []string) {
	e.IPExtractor = buildIPExtractor(trustedCIDRs)
}

// buildIPExtractor returns an Echo IPExtractor for the given proxy ranges.
// Invalid CIDRs are logged and skipped.
func buildIPExtractor(trustedCIDRs []string) echo.IPExtractor {
	var proxies []netip.Prefix
	for _, cidr := range trustedCIDRs {
		prefix, err := netip.ParsePrefix(strings.TrimSpace(cidr))
		if err != nil {
			slog.Warn("ignoring invalid trusted proxy CIDR", slog.String("cidr", cidr))
			continue
		}
		proxies = append(proxies, prefix.Masked())
	}

	trusted := func(ip string) bool {
		addr, err := netip.ParseAddr(ip)
		if err != nil {
			return false
		}
		addr = addr.Unmap()
		for _, p := range proxies {
			if p.Contains(addr) {
				return true
			}
		}
		return false
	}

	return func(req *http.Request) string {
		peer := peerIP(req.RemoteAddr)
		if !trusted(peer) {
			return peer
		}

		if realIP := strings.TrimSpace(req.Header.Get("X-Real-IP")); realIP != "" {
			return realIP
		}

		// Walk X-Forwarded-For from the right: the first hop our own proxies
		// didn't add is the client.
		if xff := req.Header.Get("X-Forwarded-For"); xff != "" {
			hops := strings.Split(xff, ",")
			for i := len(hops) - 1; i >= 0; i-- {
				hop := strings.TrimSpace(hops[i])
				if hop != "" && !trusted(hop) {
					return hop
				}
			}
			if first := strings.TrimSpace(hops[0]); first != "" {
				return first
			}
		}

		return peer
	}
}

// peerIP strips the port from a RemoteAddr.
func peerIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

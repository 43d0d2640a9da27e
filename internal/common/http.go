package common

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientIP returns the client address from r.RemoteAddr. Forwarding headers
// are not read here: when the service sits behind a trusted proxy the router
// installs chi's RealIP middleware, which rewrites RemoteAddr before this runs.
// Otherwise a caller could pick a fresh rate limit bucket per request.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	remote := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(remote); err == nil {
		remote = host
	}
	addr, err := netip.ParseAddr(remote)
	if err != nil {
		return remote
	}
	return addr.Unmap().String()
}

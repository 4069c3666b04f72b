package middleware

import (
	"net"
	"net/http"

	"worker-bridge-go/internal/host"
)

// ConnectingIP is an echo.IPExtractor that trusts only the peer address the
// ingress stamped on the request. Translated requests carry no RemoteAddr.
func ConnectingIP(r *http.Request) string {
	if ip := net.ParseIP(r.Header.Get(host.ConnectingIPHeader)); ip != nil {
		return ip.String()
	}
	h, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return h
}

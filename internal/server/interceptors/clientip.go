package interceptors

import (
	"context"
	"net"
	"net/http"
	"strings"

	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
)

// ClientIP returns the client IP stored by ClientIPHTTP, else from gRPC metadata
// (x-forwarded-for, x-real-ip) or peer, or "unknown".
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey).(string); ok && ip != "" {
		return ip
	}
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ip := forwardedIP(first(md.Get("x-forwarded-for")), first(md.Get("x-real-ip"))); ip != "" {
			return ip
		}
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return hostOnly(p.Addr.String())
	}
	return "unknown"
}

// ClientIPHTTP stores the request's client IP in its context for ClientIP.
func ClientIPHTTP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := forwardedIP(r.Header.Get("X-Forwarded-For"), r.Header.Get("X-Real-IP"))
		if ip == "" && r.RemoteAddr != "" {
			ip = hostOnly(r.RemoteAddr)
		}
		if ip != "" {
			r = r.WithContext(WithClientIP(r.Context(), ip))
		}
		next.ServeHTTP(w, r)
	})
}

func forwardedIP(forwardedFor, realIP string) string {
	if s := strings.TrimSpace(forwardedFor); s != "" {
		if i := strings.Index(s, ","); i > 0 {
			s = strings.TrimSpace(s[:i])
		}
		return s
	}
	return strings.TrimSpace(realIP)
}

func hostOnly(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func first(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

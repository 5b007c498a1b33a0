package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"healthpass/pkg/requestcontext"
)

// ClientMetadata summarizes the caller's device and address into the request
// context. The access log records the summary as the actor label, since
// responders scanning a credential are anonymous by design.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if label := actorLabel(r.UserAgent()); label != "" {
			ctx = requestcontext.WithUserAgent(ctx, label)
		}
		if ip := remoteIP(r); ip != "" {
			ctx = requestcontext.WithRemoteIP(ctx, ip)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// actorLabel condenses a raw User-Agent string to "Browser on OS". Raw agent
// strings are too noisy and too identifying to store verbatim.
func actorLabel(rawUA string) string {
	if rawUA == "" {
		return ""
	}
	ua := useragent.New(rawUA)
	browser, _ := ua.Browser()
	os := ua.OSInfo().Name

	switch {
	case browser != "" && os != "":
		label := browser + " on " + os
		if ua.Mobile() {
			label += " (mobile)"
		}
		return label
	case browser != "":
		return browser
	case os != "":
		return os
	default:
		return "unknown client"
	}
}

// remoteIP prefers the first X-Forwarded-For hop, falling back to the
// connection's remote address.
func remoteIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

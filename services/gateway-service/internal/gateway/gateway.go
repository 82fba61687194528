// Package gateway is the public edge: it verifies bearer tokens, rewrites the
// identity headers downstream services trust, and proxies to them.
package gateway

import (
	"errors"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/md-rashed-zaman/apptbook/libs/auth"
	"github.com/md-rashed-zaman/apptbook/libs/httpx"
)

// TokenVerifier is satisfied by *auth.Verifier.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

type Config struct {
	AuthURL         *url.URL
	BookingURL      *url.URL
	NotificationURL *url.URL
	Verifier        TokenVerifier
	Logger          *slog.Logger
	// Transport is used for upstream calls; nil means an otelhttp-wrapped default.
	Transport http.RoundTripper
}

// Routes registers the proxied API on mux.
func Routes(mux *http.ServeMux, cfg Config) error {
	if cfg.AuthURL == nil || cfg.BookingURL == nil || cfg.NotificationURL == nil {
		return errors.New("gateway: upstream urls are required")
	}
	if cfg.Verifier == nil {
		return errors.New("gateway: token verifier is required")
	}
	transport := cfg.Transport
	if transport == nil {
		transport = otelhttp.NewTransport(http.DefaultTransport)
	}

	accounts := newProxy(cfg.AuthURL, transport, cfg.Logger)
	booking := newProxy(cfg.BookingURL, transport, cfg.Logger)
	notifications := newProxy(cfg.NotificationURL, transport, cfg.Logger)

	// Booking decides per route whether an identity is needed; anonymous
	// catalog and availability reads pass through.
	// Register and login are anonymous; /auth/me reads the identity when a
	// token is sent.
	registerProxy(mux, "/api/v1/auth", authenticate(accounts, cfg.Verifier))
	registerProxy(mux, "/.well-known/jwks.json", authenticate(accounts, cfg.Verifier))
	registerProxy(mux, "/api/v1/users", requireAuth(accounts, cfg.Verifier))
	registerProxy(mux, "/api/v1/notifications", requireAuth(notifications, cfg.Verifier))
	registerProxy(mux, "/api/v1/", authenticate(booking, cfg.Verifier))
	return nil
}

func newProxy(target *url.URL, transport http.RoundTripper, logger *slog.Logger) *httputil.ReverseProxy {
	p := httputil.NewSingleHostReverseProxy(target)
	p.Transport = transport
	p.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		if logger != nil {
			logger.ErrorContext(r.Context(), "upstream request failed",
				"upstream", target.Host,
				"path", r.URL.Path,
				"request_id", httpx.RequestIDFromContext(r.Context()),
				"err", err,
			)
		}
		httpx.WriteError(w, http.StatusBadGateway, "BadGateway", "upstream unavailable")
	}
	return p
}

func registerProxy(mux *http.ServeMux, prefix string, handler http.Handler) {
	if !strings.HasSuffix(prefix, "/") {
		mux.Handle(prefix, handler)
		mux.Handle(prefix+"/", handler)
		return
	}
	mux.Handle(prefix, handler)
}

// authenticate verifies a bearer token when one is present. Without one the
// request continues anonymously, with any client-supplied identity removed.
func authenticate(next http.Handler, v TokenVerifier) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth.StripIdentityHeaders(r.Header)
		if strings.TrimSpace(r.Header.Get("Authorization")) == "" {
			next.ServeHTTP(w, r)
			return
		}
		if !verify(w, r, v) {
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requireAuth(next http.Handler, v TokenVerifier) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth.StripIdentityHeaders(r.Header)
		if !verify(w, r, v) {
			return
		}
		next.ServeHTTP(w, r)
	})
}

func verify(w http.ResponseWriter, r *http.Request, v TokenVerifier) bool {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") || strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")) == "" {
		httpx.WriteError(w, http.StatusUnauthorized, "Unauthenticated", "missing or invalid Authorization header")
		return false
	}
	claims, err := v.Verify(header)
	if err != nil {
		httpx.WriteError(w, http.StatusUnauthorized, "Unauthenticated", "invalid token")
		return false
	}
	auth.SetIdentityHeaders(r.Header, claims)
	r.Header.Del("Authorization")
	return true
}

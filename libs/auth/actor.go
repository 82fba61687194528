package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// Roles issued by the identity provider.
const (
	RoleCustomer      = "CUSTOMER"
	RoleBusinessOwner = "BUSINESS_OWNER"
	RoleStaff         = "STAFF"
)

// Identity headers set by the gateway after token verification. Downstream
// services trust them only because the gateway strips client-supplied copies.
const (
	HeaderUserID     = "X-User-Id"
	HeaderRole       = "X-Role"
	HeaderBusinessID = "X-Business-Id"
)

var ErrNoActor = errors.New("no authenticated actor")

// Actor is the authenticated caller of one request.
type Actor struct {
	UserID string
	Role   string
}

func (a Actor) Is(role string) bool { return a.Role == role }

type actorKey struct{}

func ContextWithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

func ActorFromContext(ctx context.Context) (Actor, error) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	if !ok || a.UserID == "" {
		return Actor{}, ErrNoActor
	}
	return a, nil
}

func ActorFromHeaders(h http.Header) (Actor, bool) {
	uid := strings.TrimSpace(h.Get(HeaderUserID))
	if uid == "" {
		return Actor{}, false
	}
	return Actor{UserID: uid, Role: strings.ToUpper(strings.TrimSpace(h.Get(HeaderRole)))}, true
}

// WithActorFromHeaders lifts gateway identity headers into the request context.
// Requests without identity pass through anonymous; handlers decide whether that is allowed.
func WithActorFromHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a, ok := ActorFromHeaders(r.Header); ok {
			r = r.WithContext(ContextWithActor(r.Context(), a))
		}
		next.ServeHTTP(w, r)
	})
}

// SetIdentityHeaders overwrites identity headers from verified claims.
func SetIdentityHeaders(h http.Header, c *Claims) {
	StripIdentityHeaders(h)
	h.Set(HeaderUserID, c.Subject)
	h.Set(HeaderRole, strings.ToUpper(c.Role))
	if c.BusinessID != "" {
		h.Set(HeaderBusinessID, c.BusinessID)
	}
}

func StripIdentityHeaders(h http.Header) {
	h.Del(HeaderUserID)
	h.Del(HeaderRole)
	h.Del(HeaderBusinessID)
}

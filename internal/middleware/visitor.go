package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/drstein77/storefront/internal/session"
)

type visitorKey struct{}

// cookieMaxAge keeps the cart around for a month of inactivity.
const cookieMaxAge = 30 * 24 * time.Hour

// Visitors is what the middleware needs from the session registry.
type Visitors interface {
	Resolve(id string) (*session.Visitor, bool)
}

// Visitor attaches the caller's visitor to the request context, issuing a
// session cookie on first contact.
func Visitor(visitors Visitors) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var id string
			if c, err := r.Cookie(session.CookieName); err == nil {
				id = c.Value
			}
			v, created := visitors.Resolve(id)
			if created {
				http.SetCookie(w, &http.Cookie{
					Name:     session.CookieName,
					Value:    v.ID,
					Path:     "/",
					MaxAge:   int(cookieMaxAge.Seconds()),
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
				})
			}
			next.ServeHTTP(w, r.WithContext(WithVisitor(r.Context(), v)))
		})
	}
}

func WithVisitor(ctx context.Context, v *session.Visitor) context.Context {
	return context.WithValue(ctx, visitorKey{}, v)
}

// VisitorFrom returns the visitor set by Visitor, or nil.
func VisitorFrom(ctx context.Context) *session.Visitor {
	v, _ := ctx.Value(visitorKey{}).(*session.Visitor)
	return v
}

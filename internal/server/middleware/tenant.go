package middleware

import (
	"net/http"

	"github.com/google/uuid"
)

// RequireTenant rejects requests without a non-nil tenant and user.
func RequireTenant() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tid, ok := TenantIDFromContext(r.Context())
			if !ok || tid == uuid.Nil {
				http.Error(w, `{"title":"Forbidden","status":403,"detail":"valid tenant required"}`, http.StatusForbidden)
				return
			}
			uid, ok := UserIDFromContext(r.Context())
			if !ok || uid == uuid.Nil {
				http.Error(w, `{"title":"Forbidden","status":403,"detail":"valid user required"}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/iota-uz/taskimport/pkg/composables"
)

// WithActor reads the authenticated user and team forwarded by the gateway.
// Requests without valid ids pass through anonymously; handlers decide whether that is allowed.
func WithActor(userHeader, teamHeader string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, userErr := uuid.Parse(strings.TrimSpace(r.Header.Get(userHeader)))
			teamID, teamErr := uuid.Parse(strings.TrimSpace(r.Header.Get(teamHeader)))
			if userErr != nil || teamErr != nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := composables.WithActor(r.Context(), composables.Actor{UserID: userID, TeamID: teamID})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

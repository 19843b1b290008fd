package middleware

import (
	"net/http"

	"github.com/larderapp/larder/internal/auth"
	"github.com/larderapp/larder/internal/store"
)

const SessionCookieName = "larder_session"

// RequireAuth validates the session cookie and populates AuthContext. A
// session without a selected household is still valid; handlers that need a
// household check for it themselves.
func RequireAuth(sessions *store.SessionStore, households *store.HouseholdStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				unauthorized(w)
				return
			}

			sess, err := sessions.GetByToken(cookie.Value)
			if err != nil || sess == nil {
				unauthorized(w)
				return
			}

			ac := auth.AuthContext{
				UserID:      sess.UserID,
				HouseholdID: sess.HouseholdID,
				SessionID:   sess.ID,
			}
			if sess.HouseholdID != 0 {
				member, err := households.GetMember(sess.HouseholdID, sess.UserID)
				if err != nil || member == nil {
					// Selected household no longer valid; keep the
					// session but drop the selection.
					ac.HouseholdID = 0
				} else {
					ac.Role = member.Role
				}
			}

			ctx := auth.WithAuth(r.Context(), ac)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"unauthorized"}`))
}

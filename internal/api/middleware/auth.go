package middleware

import (
	"net/http"
	"time"

	"github.com/devforge-dev/devforge/internal/api/response"
	"github.com/devforge-dev/devforge/internal/security"
	"github.com/google/uuid"
)

// SessionCookieName is the browser session cookie carrying the sealed user ID.
const SessionCookieName = "devforge_session"

const sessionTTL = 7 * 24 * time.Hour

// Auth authenticates requests by unsealing the session cookie. The cookie
// value is the user's UUID encrypted with the server's token key, so a
// forged cookie fails to open rather than impersonating anyone.
type Auth struct {
	box *security.Box
}

func NewAuth(box *security.Box) *Auth {
	return &Auth{box: box}
}

// IssueSession builds the session cookie for a freshly authenticated user.
func (a *Auth) IssueSession(userID uuid.UUID) (*http.Cookie, error) {
	sealed, err := a.box.Seal(userID.String())
	if err != nil {
		return nil, err
	}
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    sealed,
		Path:     "/",
		MaxAge:   int(sessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}, nil
}

// Authenticate rejects requests without a valid session cookie and stores
// the unsealed user ID in the request context.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookieName)
		if err != nil {
			response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required", nil)
			return
		}

		plain, err := a.box.Open(cookie.Value)
		if err != nil {
			response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid session", nil)
			return
		}

		userID, err := uuid.Parse(plain)
		if err != nil {
			response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid session", nil)
			return
		}

		next.ServeHTTP(w, r.WithContext(SetUserID(r.Context(), userID)))
	})
}

// Package handler contains the HTTP handlers for the DevForge API. Each
// handler is constructed from the narrow interfaces it needs, so tests can
// substitute in-memory fakes without standing up the full stack.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	mw "github.com/devforge-dev/devforge/internal/api/middleware"
	"github.com/devforge-dev/devforge/internal/api/response"
	"github.com/devforge-dev/devforge/internal/cache"
	"github.com/devforge-dev/devforge/internal/github"
	"github.com/devforge-dev/devforge/internal/queue"
	"github.com/devforge-dev/devforge/internal/security"
	"github.com/devforge-dev/devforge/internal/store"
	"github.com/devforge-dev/devforge/internal/tasks"
	"github.com/devforge-dev/devforge/pkg/models"
)

const oauthStateTTL = 10 * time.Minute

// Exchanger is the OAuth surface the auth handlers depend on.
type Exchanger interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (string, error)
}

// AccountFetcher resolves a plaintext access token to the GitHub account it
// belongs to. Split out so callback tests never hit the network.
type AccountFetcher func(ctx context.Context, token string) (*github.Account, error)

// NewLoginHandler returns the handler for GET /auth/github/login. It stores
// a one-time state nonce and redirects to GitHub's authorization page.
func NewLoginHandler(oauth Exchanger, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := uuid.NewString()
		if err := c.Set(r.Context(), cache.OAuthStateKey(state), []byte("1"), oauthStateTTL); err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Could not start the login flow", nil)
			return
		}
		http.Redirect(w, r, oauth.AuthCodeURL(state), http.StatusTemporaryRedirect)
	}
}

// NewCallbackHandler returns the handler for GET /auth/github/callback. On a
// valid state and code it exchanges the code for a token, seals the token,
// upserts the user, issues a session cookie and queues a background profile
// sync.
func NewCallbackHandler(oauth Exchanger, c cache.Cache, st store.Store, box *security.Box,
	auth *mw.Auth, fetch AccountFetcher, q queue.Queue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := r.URL.Query().Get("state")
		code := r.URL.Query().Get("code")
		if state == "" || code == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"state and code are required", nil)
			return
		}

		_, found, err := c.Get(r.Context(), cache.OAuthStateKey(state))
		if err != nil || !found {
			response.Error(w, http.StatusBadRequest, "INVALID_STATE",
				"Unknown or expired OAuth state", nil)
			return
		}
		// One-time use.
		_ = c.Delete(r.Context(), cache.OAuthStateKey(state))

		token, err := oauth.Exchange(r.Context(), code)
		if err != nil {
			response.Error(w, http.StatusBadGateway, "OAUTH_EXCHANGE_FAILED",
				"Could not exchange the authorization code", nil)
			return
		}

		account, err := fetch(r.Context(), token)
		if err != nil {
			response.Error(w, http.StatusBadGateway, "GITHUB_UNAVAILABLE",
				"Could not fetch the GitHub account", nil)
			return
		}

		sealed, err := box.Seal(token)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Could not protect the access token", nil)
			return
		}

		user, err := st.UpsertUser(r.Context(), &models.User{
			GitHubID:       account.GitHubID,
			GitHubUsername: account.Login,
			Email:          account.Email,
			AvatarURL:      account.AvatarURL,
			AccessToken:    &sealed,
		})
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Could not persist the user", nil)
			return
		}

		cookie, err := auth.IssueSession(user.ID)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Could not create a session", nil)
			return
		}
		http.SetCookie(w, cookie)

		// Sync runs in the background; login must not wait on the GitHub API.
		if _, err := q.Enqueue(r.Context(), tasks.TypeSyncUser, tasks.SyncUserPayload{UserID: user.ID}); err != nil {
			slog.Warn("queue initial sync failed", "user_id", user.ID, "error", err)
		}

		response.JSON(w, user)
	}
}

package api_test

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devforge-dev/devforge/internal/api"
	"github.com/devforge-dev/devforge/internal/api/handler"
	mw "github.com/devforge-dev/devforge/internal/api/middleware"
	"github.com/devforge-dev/devforge/internal/cache"
	"github.com/devforge-dev/devforge/internal/events"
	"github.com/devforge-dev/devforge/internal/github"
	"github.com/devforge-dev/devforge/internal/queue"
	"github.com/devforge-dev/devforge/internal/security"
	"github.com/devforge-dev/devforge/internal/store"
	"github.com/devforge-dev/devforge/internal/tasks"
	"github.com/devforge-dev/devforge/pkg/models"
)

type fakeOAuth struct {
	token string
	err   error
}

func (f *fakeOAuth) AuthCodeURL(state string) string {
	return "https://github.test/authorize?state=" + state
}

func (f *fakeOAuth) Exchange(_ context.Context, _ string) (string, error) {
	return f.token, f.err
}

type fixture struct {
	store  *store.MemoryStore
	cache  *cache.MemoryCache
	queue  *queue.MemoryQueue
	bus    *events.MemoryBus
	auth   *mw.Auth
	server *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st := store.NewMemoryStore()
	c := cache.NewMemoryCache()
	q := queue.NewMemoryQueue()
	bus := events.NewMemoryBus()

	q.Register(tasks.TypeSyncUser, func(_ context.Context, _ json.RawMessage) (any, error) {
		return nil, nil
	})
	q.Register(tasks.TypeGeneratePortfolio, func(_ context.Context, _ json.RawMessage) (any, error) {
		return nil, nil
	})

	box, err := security.NewBox(hex.EncodeToString([]byte("0123456789abcdef0123456789abcdef")))
	require.NoError(t, err)
	auth := mw.NewAuth(box)

	oauth := &fakeOAuth{token: "gho_testtoken"}
	fetch := func(_ context.Context, _ string) (*github.Account, error) {
		email := "octo@example.com"
		return &github.Account{GitHubID: 7, Login: "octocat", Email: &email}, nil
	}

	router := api.NewRouter(api.Dependencies{
		Auth:      auth,
		RateLimit: mw.NewRateLimit(c, 1000),

		HealthHandler:          handler.NewHealthHandler(st, c),
		LoginHandler:           handler.NewLoginHandler(oauth, c),
		CallbackHandler:        handler.NewCallbackHandler(oauth, c, st, box, auth, fetch, q),
		MeHandler:              handler.NewMeHandler(st),
		SyncHandler:            handler.NewSyncHandler(q),
		ListReposHandler:       handler.NewListReposHandler(st),
		CreatePortfolioHandler: handler.NewCreatePortfolioHandler(st),
		GetPortfolioHandler:    handler.NewGetPortfolioHandler(st),
		GenerateHandler:        handler.NewGenerateHandler(st, q),
		JobHandler:             handler.NewJobHandler(st),
		JobEventsHandler:       handler.NewJobEventsHandler(st, bus),
		PublicSiteHandler:      handler.NewPublicSiteHandler(st),
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &fixture{store: st, cache: c, queue: q, bus: bus, auth: auth, server: server}
}

// seedUser stores a user and returns their ID plus a valid session cookie.
func (f *fixture) seedUser(t *testing.T) (uuid.UUID, *http.Cookie) {
	t.Helper()
	user, err := f.store.UpsertUser(context.Background(), &models.User{
		GitHubID:       42,
		GitHubUsername: "hubber",
	})
	require.NoError(t, err)
	cookie, err := f.auth.IssueSession(user.ID)
	require.NoError(t, err)
	return user.ID, cookie
}

func (f *fixture) do(t *testing.T, method, path string, body string, cookie *http.Cookie) *http.Response {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(t, err)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func decodeData(t *testing.T, resp *http.Response, dest any) {
	t.Helper()
	defer resp.Body.Close()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, dest))
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/api/v1/health", "", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	f := newFixture(t)

	for _, path := range []string{"/api/v1/me", "/api/v1/repos"} {
		resp := f.do(t, http.MethodGet, path, "", nil)
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}

	resp := f.do(t, http.MethodGet, "/api/v1/me", "", &http.Cookie{Name: mw.SessionCookieName, Value: "forged"})
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLoginRedirectsWithState(t *testing.T) {
	f := newFixture(t)

	client := f.server.Client()
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}
	resp, err := client.Get(f.server.URL + "/auth/github/login")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
	location := resp.Header.Get("Location")
	assert.Contains(t, location, "https://github.test/authorize?state=")

	// The state in the redirect must be the one stored for the callback.
	state := strings.TrimPrefix(location, "https://github.test/authorize?state=")
	_, found, err := f.cache.Get(context.Background(), cache.OAuthStateKey(state))
	require.NoError(t, err)
	assert.True(t, found)
}

func TestCallbackCreatesUserAndSession(t *testing.T) {
	f := newFixture(t)

	state := "test-state"
	require.NoError(t, f.cache.Set(context.Background(), cache.OAuthStateKey(state), []byte("1"), time.Minute))

	resp := f.do(t, http.MethodGet, "/auth/github/callback?state="+state+"&code=abc", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var user models.User
	decodeData(t, resp, &user)
	assert.Equal(t, "octocat", user.GitHubUsername)

	var session *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == mw.SessionCookieName {
			session = c
		}
	}
	require.NotNil(t, session, "callback must set a session cookie")

	// The cookie authenticates follow-up requests.
	me := f.do(t, http.MethodGet, "/api/v1/me", "", session)
	defer me.Body.Close()
	assert.Equal(t, http.StatusOK, me.StatusCode)

	// The state nonce is single use.
	replay := f.do(t, http.MethodGet, "/auth/github/callback?state="+state+"&code=abc", "", nil)
	replay.Body.Close()
	assert.Equal(t, http.StatusBadRequest, replay.StatusCode)
}

func TestPortfolioLifecycle(t *testing.T) {
	f := newFixture(t)
	_, cookie := f.seedUser(t)

	resp := f.do(t, http.MethodPost, "/api/v1/portfolios",
		`{"subdomain":"hubber","template_id":"minimal"}`, cookie)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created models.Portfolio
	decodeData(t, resp, &created)
	assert.Equal(t, "hubber", created.Subdomain)

	dup := f.do(t, http.MethodPost, "/api/v1/portfolios", `{"subdomain":"hubber"}`, cookie)
	dup.Body.Close()
	assert.Equal(t, http.StatusConflict, dup.StatusCode)

	bad := f.do(t, http.MethodPost, "/api/v1/portfolios", `{"subdomain":"Not Valid!"}`, cookie)
	bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)

	get := f.do(t, http.MethodGet, "/api/v1/portfolios/hubber", "", nil)
	require.Equal(t, http.StatusOK, get.StatusCode)
	var fetched models.Portfolio
	decodeData(t, get, &fetched)
	assert.Equal(t, created.ID, fetched.ID)

	missing := f.do(t, http.MethodGet, "/api/v1/portfolios/nobody", "", nil)
	missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestGenerateQueuesJob(t *testing.T) {
	f := newFixture(t)
	userID, cookie := f.seedUser(t)

	p := &models.Portfolio{UserID: userID, Subdomain: "hubber", TemplateID: "minimal"}
	require.NoError(t, f.store.CreatePortfolio(context.Background(), p))

	resp := f.do(t, http.MethodPost, "/api/v1/generate",
		`{"portfolio_id":"`+p.ID.String()+`"}`, cookie)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var job models.GenerationJob
	decodeData(t, resp, &job)
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Equal(t, userID, job.UserID)
	assert.False(t, job.StartedAt.IsZero(), "jobs are stamped with a start time at creation")

	// The job row exists and is visible through the job endpoint.
	got := f.do(t, http.MethodGet, "/api/v1/jobs/"+job.ID.String(), "", cookie)
	require.Equal(t, http.StatusOK, got.StatusCode)
	var fetched models.GenerationJob
	decodeData(t, got, &fetched)
	assert.Equal(t, job.ID, fetched.ID)
}

func TestGenerateRejectsForeignPortfolio(t *testing.T) {
	f := newFixture(t)
	_, cookie := f.seedUser(t)

	other, err := f.store.UpsertUser(context.Background(), &models.User{GitHubID: 99, GitHubUsername: "other"})
	require.NoError(t, err)
	p := &models.Portfolio{UserID: other.ID, Subdomain: "other", TemplateID: "minimal"}
	require.NoError(t, f.store.CreatePortfolio(context.Background(), p))

	resp := f.do(t, http.MethodPost, "/api/v1/generate",
		`{"portfolio_id":"`+p.ID.String()+`"}`, cookie)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestJobVisibilityScopedToOwner(t *testing.T) {
	f := newFixture(t)
	userID, _ := f.seedUser(t)

	job := &models.GenerationJob{UserID: userID, PortfolioID: uuid.New(), Status: models.JobStatusPending}
	require.NoError(t, f.store.CreateJob(context.Background(), job))

	other, err := f.store.UpsertUser(context.Background(), &models.User{GitHubID: 99, GitHubUsername: "other"})
	require.NoError(t, err)
	otherCookie, err := f.auth.IssueSession(other.ID)
	require.NoError(t, err)

	resp := f.do(t, http.MethodGet, "/api/v1/jobs/"+job.ID.String(), "", otherCookie)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListReposPagination(t *testing.T) {
	f := newFixture(t)
	userID, cookie := f.seedUser(t)

	for i := 0; i < 5; i++ {
		_, err := f.store.UpsertRepository(context.Background(), &models.Repository{
			UserID:   userID,
			GitHubID: int64(100 + i),
			Name:     "repo",
			FullName: "hubber/repo",
			Stars:    i,
		})
		require.NoError(t, err)
	}

	resp := f.do(t, http.MethodGet, "/api/v1/repos?page=1&limit=2", "", cookie)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var envelope struct {
		Data []models.Repository `json:"data"`
		Meta struct {
			Page    int  `json:"page"`
			Limit   int  `json:"limit"`
			Total   int  `json:"total"`
			HasNext bool `json:"has_next"`
		} `json:"meta"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	assert.Len(t, envelope.Data, 2)
	assert.Equal(t, 5, envelope.Meta.Total)
	assert.True(t, envelope.Meta.HasNext)
	// Ordered by stars descending.
	assert.Equal(t, 4, envelope.Data[0].Stars)
}

func TestPublicSiteServesGeneratedHTML(t *testing.T) {
	f := newFixture(t)
	userID, _ := f.seedUser(t)

	p := &models.Portfolio{UserID: userID, Subdomain: "hubber", TemplateID: "minimal"}
	require.NoError(t, f.store.CreatePortfolio(context.Background(), p))

	// Unpublished portfolio is not served.
	resp := f.do(t, http.MethodGet, "/p/hubber", "", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	require.NoError(t, f.store.SetPortfolioGenerated(context.Background(), p.ID,
		"<html><body>hello</body></html>", time.Now()))

	resp = f.do(t, http.MethodGet, "/p/hubber", "", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	buf := make([]byte, 64)
	n, _ := resp.Body.Read(buf)
	assert.Contains(t, string(buf[:n]), "hello")

	stored, err := f.store.GetPortfolioBySubdomain(context.Background(), "hubber")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.ViewCount)
}

func TestJobEventsStream(t *testing.T) {
	f := newFixture(t)
	userID, cookie := f.seedUser(t)

	step := "Starting generation"
	job := &models.GenerationJob{
		UserID:      userID,
		PortfolioID: uuid.New(),
		Status:      models.JobStatusProcessing,
		Progress:    5,
		CurrentStep: &step,
	}
	require.NoError(t, f.store.CreateJob(context.Background(), job))

	req, err := http.NewRequest(http.MethodGet, f.server.URL+"/api/v1/jobs/"+job.ID.String()+"/events", nil)
	require.NoError(t, err)
	req.AddCookie(cookie)

	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	scanner := bufio.NewScanner(resp.Body)
	readEvent := func() models.GenerationEvent {
		t.Helper()
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var ev models.GenerationEvent
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
			return ev
		}
		t.Fatal("stream ended before an event arrived")
		return models.GenerationEvent{}
	}

	// Snapshot from the job row arrives first.
	snapshot := readEvent()
	assert.Equal(t, models.JobStatusProcessing, snapshot.Status)
	assert.Equal(t, 5, snapshot.Progress)

	// Live events are relayed until the terminal one.
	go func() {
		// Give the subscription time to settle before publishing.
		time.Sleep(50 * time.Millisecond)
		_ = f.bus.Publish(context.Background(), models.GenerationEvent{
			JobID: job.ID.String(), Status: models.JobStatusProcessing, Progress: 50, Step: "Generating AI descriptions",
		})
		_ = f.bus.Publish(context.Background(), models.GenerationEvent{
			JobID: job.ID.String(), Status: models.JobStatusCompleted, Progress: 100, Step: "Completed", URL: "/generated/hubber/index.html",
		})
	}()

	mid := readEvent()
	assert.Equal(t, 50, mid.Progress)

	final := readEvent()
	assert.Equal(t, models.JobStatusCompleted, final.Status)
	assert.Equal(t, 100, final.Progress)

	// The stream closes after the terminal event: draining it yields no
	// further data lines, only the frame's trailing blank line.
	for scanner.Scan() {
		assert.False(t, strings.HasPrefix(scanner.Text(), "data: "),
			"no events should follow the terminal one")
	}
}

func TestJobEventsTerminalSnapshotClosesImmediately(t *testing.T) {
	f := newFixture(t)
	userID, cookie := f.seedUser(t)

	msg := "boom"
	job := &models.GenerationJob{
		UserID:      userID,
		PortfolioID: uuid.New(),
		Status:      models.JobStatusFailed,
		Progress:    100,
		ErrorMsg:    &msg,
	}
	require.NoError(t, f.store.CreateJob(context.Background(), job))

	req, err := http.NewRequest(http.MethodGet, f.server.URL+"/api/v1/jobs/"+job.ID.String()+"/events", nil)
	require.NoError(t, err)
	req.AddCookie(cookie)

	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	var events []models.GenerationEvent
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			var ev models.GenerationEvent
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
			events = append(events, ev)
		}
	}
	require.Len(t, events, 1)
	assert.Equal(t, models.JobStatusFailed, events[0].Status)
	assert.Equal(t, "boom", events[0].Error)
}

func TestSyncQueuesTask(t *testing.T) {
	f := newFixture(t)
	_, cookie := f.seedUser(t)

	resp := f.do(t, http.MethodPost, "/api/v1/sync", "", cookie)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var body map[string]string
	decodeData(t, resp, &body)
	assert.NotEmpty(t, body["task_id"])
}

package google

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/teemow/mailsense/internal/auth"
)

func newTokenServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		assert.Equal(t, "good-code", r.PostForm.Get("code"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at","refresh_token":"rt","token_type":"Bearer","expires_in":3600}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, tokenURL string) (*Client, *FileTokenStore) {
	t.Helper()
	tokens, err := NewFileTokenStore(t.TempDir())
	require.NoError(t, err)

	c, err := NewClient(Config{
		ClientID:     "client",
		ClientSecret: "secret",
		BaseURL:      "http://localhost:8080/",
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://accounts.example.com/auth",
			TokenURL: tokenURL,
		},
	}, tokens, nil, nil)
	require.NoError(t, err)
	return c, tokens
}

func TestNewClient_Validation(t *testing.T) {
	tokens, err := NewFileTokenStore(t.TempDir())
	require.NoError(t, err)

	_, err = NewClient(Config{BaseURL: "http://x"}, tokens, nil, nil)
	assert.Error(t, err)
	_, err = NewClient(Config{ClientID: "a", ClientSecret: "b"}, tokens, nil, nil)
	assert.Error(t, err)
	_, err = NewClient(Config{ClientID: "a", ClientSecret: "b", BaseURL: "http://x"}, nil, nil, nil)
	assert.Error(t, err)
}

func TestBeginAuthorization(t *testing.T) {
	c, _ := newTestClient(t, "https://accounts.example.com/token")

	raw, err := c.BeginAuthorization(context.Background(), "u1", "flow-1")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "flow-1", q.Get("state"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "consent", q.Get("prompt"))
	assert.Equal(t, "http://localhost:8080/oauth/callback", q.Get("redirect_uri"))
	assert.Contains(t, q.Get("scope"), "gmail.readonly")

	_, err = c.BeginAuthorization(context.Background(), "u1", "")
	assert.Error(t, err)
}

func TestCheckAuthorizationStatus(t *testing.T) {
	c, tokens := newTestClient(t, "https://accounts.example.com/token")
	ctx := context.Background()

	ok, err := c.CheckAuthorizationStatus(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, tokens.Save("u1", &oauth2.Token{AccessToken: "expired", Expiry: time.Unix(1, 0)}))
	ok, err = c.CheckAuthorizationStatus(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok, "expired token without refresh token is unusable")

	require.NoError(t, tokens.Save("u1", &oauth2.Token{AccessToken: "expired", RefreshToken: "rt", Expiry: time.Unix(1, 0)}))
	ok, err = c.CheckAuthorizationStatus(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, c.SignOut("u1"))
	ok, err = c.CheckAuthorizationStatus(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)
}

type fakeFlows struct {
	mu        sync.Mutex
	users     map[string]string
	completed []auth.Completion
}

func (f *fakeFlows) FlowUser(flowID string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[flowID]
	return u, ok
}

func (f *fakeFlows) CompleteFlow(_ context.Context, flowID string, success bool, reason string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, auth.Completion{Success: success, FlowID: flowID, Reason: reason})
	return true
}

func callback(t *testing.T, h http.Handler, query string) *url.URL {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, CallbackPath+"?"+query, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	return loc
}

func TestCallbackHandler_Success(t *testing.T) {
	srv := newTokenServer(t, http.StatusOK)
	c, tokens := newTestClient(t, srv.URL)
	flows := &fakeFlows{users: map[string]string{"flow-1": "u1"}}

	loc := callback(t, c.CallbackHandler(flows), "state=flow-1&code=good-code")

	got, ok := auth.ParseCompletionURL(loc.String())
	require.True(t, ok)
	assert.Equal(t, auth.Completion{Success: true, FlowID: "flow-1"}, got)
	assert.Equal(t, "localhost:8080", loc.Host)

	require.Len(t, flows.completed, 1)
	assert.True(t, flows.completed[0].Success)

	tok, err := tokens.Load("u1")
	require.NoError(t, err)
	assert.Equal(t, "rt", tok.RefreshToken)
}

func TestCallbackHandler_Failures(t *testing.T) {
	tests := []struct {
		name         string
		tokenStatus  int
		query        string
		wantReason   string
		wantComplete bool
	}{
		{name: "unknown flow", tokenStatus: http.StatusOK, query: "state=stale&code=good-code", wantReason: ReasonUnknownFlow},
		{name: "user declined", tokenStatus: http.StatusOK, query: "state=flow-1&error=access_denied", wantReason: "access_denied", wantComplete: true},
		{name: "missing code", tokenStatus: http.StatusOK, query: "state=flow-1", wantReason: ReasonMissingCode, wantComplete: true},
		{name: "exchange fails", tokenStatus: http.StatusBadRequest, query: "state=flow-1&code=good-code", wantReason: ReasonExchangeFailed, wantComplete: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTokenServer(t, tt.tokenStatus)
			c, tokens := newTestClient(t, srv.URL)
			flows := &fakeFlows{users: map[string]string{"flow-1": "u1"}}

			loc := callback(t, c.CallbackHandler(flows), tt.query)
			got, ok := auth.ParseCompletionURL(loc.String())
			require.True(t, ok)
			assert.False(t, got.Success)
			assert.Equal(t, tt.wantReason, got.Reason)

			if tt.wantComplete {
				require.Len(t, flows.completed, 1)
				assert.False(t, flows.completed[0].Success)
			} else {
				assert.Empty(t, flows.completed)
			}

			_, err := tokens.Load("u1")
			assert.ErrorIs(t, err, ErrNoToken)
		})
	}
}

func TestTokenSource_SavesRefreshedToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"fresh","token_type":"Bearer","expires_in":3600}`))
	}))
	t.Cleanup(srv.Close)

	c, tokens := newTestClient(t, srv.URL)
	require.NoError(t, tokens.Save("u1", &oauth2.Token{AccessToken: "stale", RefreshToken: "rt", Expiry: time.Unix(1, 0)}))

	ts, err := c.TokenSource(context.Background(), "u1")
	require.NoError(t, err)
	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok.AccessToken)

	stored, err := tokens.Load("u1")
	require.NoError(t, err)
	assert.Equal(t, "fresh", stored.AccessToken)
	assert.Equal(t, "rt", stored.RefreshToken)

	hc, err := c.HTTPClient(context.Background(), "u1")
	require.NoError(t, err)
	assert.NotNil(t, hc)
}

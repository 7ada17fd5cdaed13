package auth_tools

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/mailsense/internal/auth"
	"github.com/teemow/mailsense/internal/broadcast"
	"github.com/teemow/mailsense/internal/browser"
	"github.com/teemow/mailsense/internal/flow"
	"github.com/teemow/mailsense/internal/genai"
	"github.com/teemow/mailsense/internal/gmail"
	"github.com/teemow/mailsense/internal/server"
	"github.com/teemow/mailsense/internal/session"
	"github.com/teemow/mailsense/internal/workflow"
)

const localUser = "local"

type pendingAuthorizer struct{}

func (pendingAuthorizer) BeginAuthorization(_ context.Context, _, flowID string) (string, error) {
	return "https://accounts.example.com/auth?state=" + flowID, nil
}

func (pendingAuthorizer) CheckAuthorizationStatus(context.Context, string) (bool, error) {
	return false, nil
}

type noMail struct{}

func (noMail) ForeachSent(context.Context, string, string, int64, func(gmail.SentEmail) error) error {
	return nil
}

type noModel struct{}

func (noModel) FilterVoice(context.Context, string) (string, error) { return "", nil }

func (noModel) Generate(context.Context, string, genai.GenerateRequest, session.Profile) (string, error) {
	return "", nil
}

func (noModel) Refine(context.Context, string, genai.RefineRequest, session.Profile) (string, error) {
	return "", nil
}

type noTokens struct{}

func (noTokens) SignOut(string) error { return nil }

func newServerContext(t *testing.T) (*server.ServerContext, *session.MemoryStore) {
	t.Helper()
	store := session.NewMemoryStore()
	bus := broadcast.NewChannel(nil, nil)
	tracker := flow.NewTracker(nil)
	orch := auth.New(store, bus, tracker, pendingAuthorizer{}, browser.NewClientOpener(),
		auth.WithPollInterval(5*time.Millisecond), auth.WithTimeout(time.Minute))
	wf := workflow.New(store, bus, workflow.NewArtifacts(t.TempDir()), noMail{}, noModel{}, noTokens{},
		workflow.WithFlows(orch))

	sc, err := server.NewServerContext(context.Background(), server.Services{
		Store:    store,
		Bus:      bus,
		Tracker:  tracker,
		Auth:     orch,
		Workflow: wf,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Shutdown() })
	return sc, store
}

func callRequest(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")
	return text.Text
}

func TestRegisterAuthTools(t *testing.T) {
	sc, _ := newServerContext(t)
	s := mcpserver.NewMCPServer("test", "0.0.0")

	assert.NoError(t, RegisterAuthTools(s, sc, localUser))
	assert.Error(t, RegisterAuthTools(s, sc, ""))
}

func TestStartAndComplete(t *testing.T) {
	ctx := context.Background()
	sc, store := newServerContext(t)

	result, err := handleStart(ctx, callRequest(nil), sc, localUser)
	require.NoError(t, err)
	require.False(t, result.IsError)

	var started auth.StartResult
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &started))
	assert.Equal(t, auth.StatusStarted, started.Status)
	assert.NotEmpty(t, started.FlowID)

	result, err = handleStart(ctx, callRequest(nil), sc, localUser)
	require.NoError(t, err)
	var again auth.StartResult
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &again))
	assert.Equal(t, auth.StatusInProgress, again.Status)

	completion := auth.CompletionURL("http://localhost:8080", auth.Completion{Success: true, FlowID: started.FlowID})
	result, err = handleNavigation(ctx, callRequest(map[string]interface{}{"url": completion}), sc, localUser)
	require.NoError(t, err)
	assert.JSONEq(t, `{"resolved": true}`, resultText(t, result))

	rec, err := store.Get(ctx, localUser)
	require.NoError(t, err)
	assert.True(t, rec.Authenticated)

	require.Eventually(t, func() bool {
		inProgress, _ := sc.Auth().InProgress(localUser)
		return !inProgress
	}, 2*time.Second, 5*time.Millisecond)
}

func TestNavigationRequiresURL(t *testing.T) {
	sc, _ := newServerContext(t)

	result, err := handleNavigation(context.Background(), callRequest(nil), sc, localUser)
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestCancelAndState(t *testing.T) {
	ctx := context.Background()
	sc, _ := newServerContext(t)
	args := map[string]interface{}{"userId": "other-user"}

	_, err := handleStart(ctx, callRequest(args), sc, localUser)
	require.NoError(t, err)

	result, err := handleCancel(ctx, callRequest(args), sc, localUser)
	require.NoError(t, err)
	assert.Equal(t, "Authorization cancelled", resultText(t, result))

	require.Eventually(t, func() bool {
		inProgress, _ := sc.Auth().InProgress("other-user")
		return !inProgress
	}, 2*time.Second, 5*time.Millisecond)

	result, err = handleState(ctx, callRequest(args), sc, localUser)
	require.NoError(t, err)
	var st auth.AuthState
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &st))
	assert.False(t, st.Authenticated)
	assert.False(t, st.InProgress)
	assert.Equal(t, auth.StateIdle, st.State)
}

func TestStateRejectsInvalidUser(t *testing.T) {
	sc, _ := newServerContext(t)

	result, err := handleState(context.Background(), callRequest(map[string]interface{}{"userId": "../etc"}), sc, localUser)
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestSignOutKeepsProgress(t *testing.T) {
	ctx := context.Background()
	sc, store := newServerContext(t)

	rec := session.NewRecord(localUser)
	rec.Authenticated = true
	rec.HistoryFetched = true
	require.NoError(t, store.Set(ctx, rec))

	result, err := handleSignOut(ctx, callRequest(nil), sc, localUser)
	require.NoError(t, err)
	require.False(t, result.IsError)

	got, err := store.Get(ctx, localUser)
	require.NoError(t, err)
	assert.False(t, got.Authenticated)
	assert.True(t, got.HistoryFetched)
}

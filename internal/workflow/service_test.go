package workflow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/mailsense/internal/broadcast"
	"github.com/teemow/mailsense/internal/genai"
	"github.com/teemow/mailsense/internal/gmail"
	"github.com/teemow/mailsense/internal/session"
)

const testUser = "user-1"

type fakeMail struct {
	emails []gmail.SentEmail
	err    error
	query  string
	max    int64
}

func (f *fakeMail) ForeachSent(_ context.Context, _ string, query string, maxResults int64, fn func(gmail.SentEmail) error) error {
	f.query = query
	f.max = maxResults
	for _, e := range f.emails {
		if err := fn(e); err != nil {
			return err
		}
	}
	return f.err
}

type fakeModel struct {
	mu        sync.Mutex
	filterErr error
	genErr    error
	examples  string
	profile   session.Profile
	chunks    int
}

// FilterVoice keeps records that mention "keep".
func (f *fakeModel) FilterVoice(_ context.Context, chunk string) (string, error) {
	f.mu.Lock()
	f.chunks++
	f.mu.Unlock()
	if f.filterErr != nil {
		return "", f.filterErr
	}
	var kept []string
	for _, rec := range gmail.SplitCorpus(chunk) {
		if strings.Contains(rec, "keep") {
			kept = append(kept, rec)
		}
	}
	return strings.Join(kept, "\n"), nil
}

func (f *fakeModel) Generate(_ context.Context, examples string, req genai.GenerateRequest, p session.Profile) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.examples = examples
	f.profile = p
	if f.genErr != nil {
		return "", f.genErr
	}
	return "generated: " + req.Prompt, nil
}

func (f *fakeModel) Refine(_ context.Context, examples string, req genai.RefineRequest, p session.Profile) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.examples = examples
	if f.genErr != nil {
		return "", f.genErr
	}
	return req.Text + " (" + req.Instruction + ")", nil
}

type fakeSignOut struct {
	users []string
}

func (f *fakeSignOut) SignOut(userID string) error {
	f.users = append(f.users, userID)
	return nil
}

type fakeFlows struct {
	live      bool
	cancelled []string
}

func (f *fakeFlows) InProgress(string) (bool, string) { return f.live, "" }

func (f *fakeFlows) Cancel(_ context.Context, userID string) error {
	f.cancelled = append(f.cancelled, userID)
	return nil
}

type harness struct {
	svc      *Service
	store    *session.MemoryStore
	mail     *fakeMail
	model    *fakeModel
	signOut  *fakeSignOut
	flows    *fakeFlows
	messages []broadcast.Message
	mu       sync.Mutex
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		store:   session.NewMemoryStore(),
		mail:    &fakeMail{},
		model:   &fakeModel{},
		signOut: &fakeSignOut{},
		flows:   &fakeFlows{},
	}
	bus := broadcast.NewChannel(nil, nil)
	bus.Subscribe(func(m broadcast.Message) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.messages = append(h.messages, m)
	})
	opts = append([]Option{WithFlows(h.flows)}, opts...)
	h.svc = New(h.store, bus, NewArtifacts(t.TempDir()), h.mail, h.model, h.signOut, opts...)
	return h
}

func (h *harness) seed(t *testing.T, mutate func(*session.Record)) {
	t.Helper()
	rec, err := h.store.Get(context.Background(), testUser)
	require.NoError(t, err)
	mutate(rec)
	require.NoError(t, h.store.Set(context.Background(), rec))
}

func (h *harness) record(t *testing.T) *session.Record {
	t.Helper()
	rec, err := h.store.Get(context.Background(), testUser)
	require.NoError(t, err)
	return rec
}

func (h *harness) messageCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}

func email(id, content string) gmail.SentEmail {
	return gmail.SentEmail{ID: id, Date: "Mon, 1 Jan 2018", To: "bob@example.com", Subject: "Hi", Content: content}
}

func TestFetchHistory_RequiresAuthorization(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.FetchHistory(context.Background(), testUser, HistoryRequest{})
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.True(t, IsPrecondition(err))
	assert.Empty(t, h.record(t).LastError)
}

func TestFetchHistory(t *testing.T) {
	h := newHarness(t)
	h.seed(t, func(r *session.Record) {
		r.Authenticated = true
		r.LastError = "old"
	})
	h.mail.emails = []gmail.SentEmail{email("1", "first"), email("2", "second")}

	res, err := h.svc.FetchHistory(context.Background(), testUser, HistoryRequest{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, "in:sent after:2014/01/01 before:2022/01/01", h.mail.query)
	assert.Equal(t, int64(DefaultMaxMessages), h.mail.max)

	rec := h.record(t)
	assert.True(t, rec.HistoryFetched)
	assert.Empty(t, rec.LastError)
	assert.Equal(t, 1, h.messageCount())

	corpus, err := h.svc.artifacts.Read(testUser, SentEmailsFile)
	require.NoError(t, err)
	assert.Len(t, gmail.SplitCorpus(corpus), 2)
}

func TestFetchHistory_Failures(t *testing.T) {
	t.Run("source error", func(t *testing.T) {
		h := newHarness(t)
		h.seed(t, func(r *session.Record) { r.Authenticated = true })
		h.mail.err = errors.New("quota exceeded")

		_, err := h.svc.FetchHistory(context.Background(), testUser, HistoryRequest{After: "2020/01/01"})
		require.Error(t, err)
		assert.Equal(t, "in:sent after:2020/01/01 before:2022/01/01", h.mail.query)

		rec := h.record(t)
		assert.False(t, rec.HistoryFetched)
		assert.Contains(t, rec.LastError, "quota exceeded")
		assert.Equal(t, session.ErrorKindExternal, rec.LastErrorKind)
		assert.Equal(t, 1, h.messageCount())
	})

	t.Run("empty range", func(t *testing.T) {
		h := newHarness(t)
		h.seed(t, func(r *session.Record) { r.Authenticated = true })

		_, err := h.svc.FetchHistory(context.Background(), testUser, HistoryRequest{})
		assert.ErrorIs(t, err, ErrNoMail)
		assert.Equal(t, session.ErrorKindWorkflow, h.record(t).LastErrorKind)
	})
}

func TestAnalyzeStyle(t *testing.T) {
	h := newHarness(t, WithChunkTokens(200), WithConcurrency(2))
	h.seed(t, func(r *session.Record) { r.Authenticated = true })
	h.mail.emails = []gmail.SentEmail{
		email("1", "keep this one"),
		email("2", "ok"),
		email("3", "keep me too"),
	}

	_, err := h.svc.AnalyzeStyle(context.Background(), testUser)
	assert.ErrorIs(t, err, ErrHistoryMissing)

	_, err = h.svc.FetchHistory(context.Background(), testUser, HistoryRequest{})
	require.NoError(t, err)

	res, err := h.svc.AnalyzeStyle(context.Background(), testUser)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Input)
	assert.Equal(t, 2, res.Kept)
	assert.Equal(t, 3, res.Chunks)

	rec := h.record(t)
	assert.True(t, rec.StyleAnalyzed)
	assert.True(t, rec.SetupComplete)
	assert.Equal(t, session.StepReady, rec.Step())
	assert.True(t, rec.ShowProfileReminder())

	voice, err := h.svc.artifacts.Read(testUser, VoiceEmailsFile)
	require.NoError(t, err)
	assert.Contains(t, voice, "keep this one")
	assert.NotContains(t, voice, "Your Content:\nok\n")
}

func TestAnalyzeStyle_Failures(t *testing.T) {
	t.Run("model error", func(t *testing.T) {
		h := newHarness(t)
		h.seed(t, func(r *session.Record) { r.Authenticated = true })
		h.mail.emails = []gmail.SentEmail{email("1", "keep")}
		_, err := h.svc.FetchHistory(context.Background(), testUser, HistoryRequest{})
		require.NoError(t, err)

		h.model.filterErr = errors.New("rate limited")
		_, err = h.svc.AnalyzeStyle(context.Background(), testUser)
		require.Error(t, err)

		rec := h.record(t)
		assert.False(t, rec.StyleAnalyzed)
		assert.Contains(t, rec.LastError, "rate limited")
	})

	t.Run("nothing kept", func(t *testing.T) {
		h := newHarness(t)
		h.seed(t, func(r *session.Record) { r.Authenticated = true })
		h.mail.emails = []gmail.SentEmail{email("1", "thanks")}
		_, err := h.svc.FetchHistory(context.Background(), testUser, HistoryRequest{})
		require.NoError(t, err)

		_, err = h.svc.AnalyzeStyle(context.Background(), testUser)
		assert.ErrorIs(t, err, ErrNoVoice)
	})
}

func setupComplete(t *testing.T, h *harness) {
	t.Helper()
	h.seed(t, func(r *session.Record) { r.Authenticated = true })
	h.mail.emails = []gmail.SentEmail{email("1", "keep going")}
	_, err := h.svc.FetchHistory(context.Background(), testUser, HistoryRequest{})
	require.NoError(t, err)
	_, err = h.svc.AnalyzeStyle(context.Background(), testUser)
	require.NoError(t, err)
}

func TestGenerate(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Generate(context.Background(), testUser, genai.GenerateRequest{})
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	h.seed(t, func(r *session.Record) { r.Authenticated = true; r.HistoryFetched = true })
	_, err = h.svc.Generate(context.Background(), testUser, genai.GenerateRequest{})
	assert.ErrorIs(t, err, ErrStyleMissing)

	setupComplete(t, h)
	_, err = h.svc.UpdateProfile(context.Background(), testUser, session.Profile{Name: " Ada "})
	require.NoError(t, err)

	out, err := h.svc.Generate(context.Background(), testUser, genai.GenerateRequest{Prompt: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "generated: hello", out)
	assert.Contains(t, h.model.examples, "keep going")
	assert.Equal(t, "Ada", h.model.profile.Name)
}

func TestGenerate_ErrorThenRecovery(t *testing.T) {
	h := newHarness(t)
	setupComplete(t, h)

	h.model.genErr = errors.New("model overloaded")
	_, err := h.svc.Refine(context.Background(), testUser, genai.RefineRequest{Text: "a", Instruction: "b"})
	require.Error(t, err)
	assert.Equal(t, "model overloaded", h.record(t).LastError)

	h.model.genErr = nil
	out, err := h.svc.Refine(context.Background(), testUser, genai.RefineRequest{Text: "a", Instruction: "b"})
	require.NoError(t, err)
	assert.Equal(t, "a (b)", out)
	assert.Empty(t, h.record(t).LastError)
}

func TestRefine_Validation(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Refine(context.Background(), testUser, genai.RefineRequest{Text: "x"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestProfile(t *testing.T) {
	h := newHarness(t)

	rec, err := h.svc.UpdateProfile(context.Background(), testUser, session.Profile{
		Name: "Ada", Role: "Engineer", ReminderDismissed: true,
	})
	require.NoError(t, err)
	assert.True(t, rec.Profile.ProfileComplete)
	assert.False(t, rec.Profile.ReminderDismissed)
	assert.Equal(t, "Engineer", rec.Profile.Role)

	rec, err = h.svc.DismissReminder(context.Background(), testUser)
	require.NoError(t, err)
	assert.True(t, rec.Profile.ReminderDismissed)
	assert.Equal(t, 2, h.messageCount())
}

func TestSignOut_KeepsProgress(t *testing.T) {
	h := newHarness(t)
	setupComplete(t, h)

	rec, err := h.svc.SignOut(context.Background(), testUser)
	require.NoError(t, err)
	assert.False(t, rec.Authenticated)
	assert.True(t, rec.HistoryFetched)
	assert.True(t, rec.StyleAnalyzed)
	assert.Equal(t, session.StepAuth, rec.Step())
	assert.Equal(t, []string{testUser}, h.signOut.users)
	assert.Equal(t, []string{testUser}, h.flows.cancelled)

	_, err = h.svc.Generate(context.Background(), testUser, genai.GenerateRequest{})
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestReset(t *testing.T) {
	h := newHarness(t)
	setupComplete(t, h)

	rec, err := h.svc.Reset(context.Background(), testUser)
	require.NoError(t, err)
	assert.NotEqual(t, testUser, rec.UserID)
	assert.False(t, rec.Authenticated)

	_, err = h.svc.artifacts.Read(testUser, SentEmailsFile)
	assert.ErrorIs(t, err, ErrNoArtifact)
	assert.Equal(t, []string{testUser}, h.signOut.users)

	_, err = h.svc.Reset(context.Background(), "../etc")
	assert.ErrorIs(t, err, session.ErrInvalidUserID)
}

func TestChangeHintCarriesFlowState(t *testing.T) {
	h := newHarness(t)
	h.flows.live = true

	_, err := h.svc.DismissReminder(context.Background(), testUser)
	require.NoError(t, err)

	h.mu.Lock()
	defer h.mu.Unlock()
	require.Len(t, h.messages, 1)
	assert.Equal(t, testUser, h.messages[0].UserID)
	assert.True(t, h.messages[0].AuthInProgress)
	assert.False(t, h.messages[0].Terminal())
}

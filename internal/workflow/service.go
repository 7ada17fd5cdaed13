package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/teemow/mailsense/internal/broadcast"
	"github.com/teemow/mailsense/internal/genai"
	"github.com/teemow/mailsense/internal/gmail"
	"github.com/teemow/mailsense/internal/logging"
	"github.com/teemow/mailsense/internal/session"
)

const (
	DefaultHistoryAfter  = "2014/01/01"
	DefaultHistoryBefore = "2022/01/01"
	DefaultMaxMessages   = 1000
	DefaultConcurrency   = 4
)

// Precondition failures. They are returned to the caller and never stored.
var (
	ErrNotAuthenticated = errors.New("not authorized with Google")
	ErrHistoryMissing   = errors.New("sent history has not been fetched")
	ErrStyleMissing     = errors.New("writing style has not been analyzed")
)

// ErrInvalidRequest is returned for malformed step input.
var ErrInvalidRequest = errors.New("invalid request")

// Outcome failures, stored as workflow errors.
var (
	ErrNoMail  = errors.New("no sent emails found in the selected range")
	ErrNoVoice = errors.New("no emails in the history carry a personal voice")
)

// IsPrecondition reports whether err is a step-order failure.
func IsPrecondition(err error) bool {
	return errors.Is(err, ErrNotAuthenticated) ||
		errors.Is(err, ErrHistoryMissing) ||
		errors.Is(err, ErrStyleMissing)
}

// MailSource lists a user's sent mail.
type MailSource interface {
	ForeachSent(ctx context.Context, userID, query string, maxResults int64, fn func(gmail.SentEmail) error) error
}

// StyleModel filters a corpus and writes in its style.
type StyleModel interface {
	FilterVoice(ctx context.Context, chunk string) (string, error)
	Generate(ctx context.Context, examples string, req genai.GenerateRequest, profile session.Profile) (string, error)
	Refine(ctx context.Context, examples string, req genai.RefineRequest, profile session.Profile) (string, error)
}

// SignOuter forgets a user's provider credentials.
type SignOuter interface {
	SignOut(userID string) error
}

// Flows exposes the live authorization flows.
type Flows interface {
	InProgress(userID string) (bool, string)
	Cancel(ctx context.Context, userID string) error
}

// HistoryRequest selects the sent mail to fetch. Dates use YYYY/MM/DD.
type HistoryRequest struct {
	After       string `json:"after,omitempty"`
	Before      string `json:"before,omitempty"`
	MaxMessages int64  `json:"maxMessages,omitempty"`
}

// HistoryResult reports a fetch.
type HistoryResult struct {
	Query string `json:"query"`
	Count int    `json:"count"`
}

// StyleResult reports a style analysis.
type StyleResult struct {
	Chunks int `json:"chunks"`
	Input  int `json:"input"`
	Kept   int `json:"kept"`
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithFlows lets the service report and cancel live authorization flows.
func WithFlows(f Flows) Option {
	return func(s *Service) {
		s.flows = f
	}
}

// WithTokenizer sets how chunk and example sizes are measured. The default
// counts runes.
func WithTokenizer(tok genai.Tokenizer) Option {
	return func(s *Service) {
		if tok != nil {
			s.tokenizer = tok
		}
	}
}

// WithChunkTokens sets the corpus chunk size for style analysis.
func WithChunkTokens(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.chunkTokens = n
		}
	}
}

// WithExampleTokens bounds the examples sent with generation requests.
func WithExampleTokens(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.exampleTokens = n
		}
	}
}

// WithConcurrency sets how many chunks are filtered at once.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// Service runs the workflow steps.
type Service struct {
	store     session.Store
	bus       broadcast.Bus
	artifacts *Artifacts
	mail      MailSource
	model     StyleModel
	signOut   SignOuter
	flows     Flows

	tokenizer     genai.Tokenizer
	chunkTokens   int
	exampleTokens int
	concurrency   int
	logger        *slog.Logger
}

// New creates a Service.
func New(store session.Store, bus broadcast.Bus, artifacts *Artifacts, mail MailSource, model StyleModel, signOut SignOuter, opts ...Option) *Service {
	s := &Service{
		store:         store,
		bus:           bus,
		artifacts:     artifacts,
		mail:          mail,
		model:         model,
		signOut:       signOut,
		tokenizer:     genai.RuneTokenizer{},
		chunkTokens:   genai.DefaultChunkTokens,
		exampleTokens: genai.DefaultExampleTokens,
		concurrency:   DefaultConcurrency,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.WithComponent(s.logger, "workflow")
	return s
}

// Session returns the record of userID, creating it when absent.
func (s *Service) Session(ctx context.Context, userID string) (*session.Record, error) {
	return s.store.Get(ctx, userID)
}

// FetchHistory downloads the user's sent mail into the history artifact.
func (s *Service) FetchHistory(ctx context.Context, userID string, req HistoryRequest) (HistoryResult, error) {
	rec, err := s.store.Get(ctx, userID)
	if err != nil {
		return HistoryResult{}, err
	}
	if !rec.Authenticated {
		return HistoryResult{}, ErrNotAuthenticated
	}

	after, before := req.After, req.Before
	if after == "" {
		after = DefaultHistoryAfter
	}
	if before == "" {
		before = DefaultHistoryBefore
	}
	maxMessages := req.MaxMessages
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	res := HistoryResult{Query: gmail.SentQuery(after, before)}

	logger := s.logger.With(logging.UserHash(userID), logging.Operation("fetch_history"))
	logger.Info("Fetching sent history", slog.String("query", res.Query))

	err = s.artifacts.Write(userID, SentEmailsFile, func(w io.Writer) error {
		return s.mail.ForeachSent(ctx, userID, res.Query, maxMessages, func(e gmail.SentEmail) error {
			if _, err := io.WriteString(w, e.Format()); err != nil {
				return err
			}
			res.Count++
			return nil
		})
	})
	if err != nil {
		logger.Warn("Failed to fetch sent history", logging.Err(err))
		return res, s.fail(ctx, userID, session.ErrorKindExternal, fmt.Errorf("fetch sent history: %w", err))
	}
	if res.Count == 0 {
		return res, s.fail(ctx, userID, session.ErrorKindWorkflow, ErrNoMail)
	}

	_, err = s.update(ctx, userID, func(rec *session.Record) {
		rec.HistoryFetched = true
		rec.ClearError()
	})
	if err != nil {
		return res, err
	}
	logger.Info("Sent history fetched", slog.Int("count", res.Count))
	return res, nil
}

// AnalyzeStyle filters the history down to emails in the author's own
// voice and marks setup complete.
func (s *Service) AnalyzeStyle(ctx context.Context, userID string) (StyleResult, error) {
	rec, err := s.store.Get(ctx, userID)
	if err != nil {
		return StyleResult{}, err
	}
	if !rec.Authenticated {
		return StyleResult{}, ErrNotAuthenticated
	}
	if !rec.HistoryFetched {
		return StyleResult{}, ErrHistoryMissing
	}

	corpus, err := s.artifacts.Read(userID, SentEmailsFile)
	if err != nil {
		if errors.Is(err, ErrNoArtifact) {
			return StyleResult{}, ErrHistoryMissing
		}
		return StyleResult{}, err
	}
	records := gmail.SplitCorpus(corpus)
	chunks := genai.ChunkRecords(s.tokenizer, records, s.chunkTokens)
	res := StyleResult{Chunks: len(chunks), Input: len(records)}

	logger := s.logger.With(logging.UserHash(userID), logging.Operation("analyze_style"))
	logger.Info("Analyzing writing style", slog.Int("records", len(records)), slog.Int("chunks", len(chunks)))

	filtered := make([]string, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, chunk := range chunks {
		g.Go(func() error {
			out, err := s.model.FilterVoice(gctx, chunk)
			if err != nil {
				return err
			}
			filtered[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Warn("Failed to analyze writing style", logging.Err(err))
		return res, s.fail(ctx, userID, session.ErrorKindExternal, fmt.Errorf("analyze writing style: %w", err))
	}

	var kept []string
	for _, out := range filtered {
		kept = append(kept, gmail.SplitCorpus(out)...)
	}
	res.Kept = len(kept)
	if res.Kept == 0 {
		return res, s.fail(ctx, userID, session.ErrorKindWorkflow, ErrNoVoice)
	}

	err = s.artifacts.Write(userID, VoiceEmailsFile, func(w io.Writer) error {
		_, err := io.WriteString(w, strings.Join(kept, "\n\n")+"\n")
		return err
	})
	if err != nil {
		return res, s.fail(ctx, userID, session.ErrorKindWorkflow, err)
	}

	_, err = s.update(ctx, userID, func(rec *session.Record) {
		rec.StyleAnalyzed = true
		rec.SetupComplete = true
		rec.ClearError()
	})
	if err != nil {
		return res, err
	}
	logger.Info("Writing style analyzed", slog.Int("kept", res.Kept))
	return res, nil
}

// examples loads the voice artifact for a user whose setup is complete.
func (s *Service) examples(ctx context.Context, userID string) (*session.Record, string, error) {
	rec, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, "", err
	}
	if !rec.Authenticated {
		return nil, "", ErrNotAuthenticated
	}
	if !rec.StyleAnalyzed {
		return nil, "", ErrStyleMissing
	}
	text, err := s.artifacts.Read(userID, VoiceEmailsFile)
	if err != nil {
		if errors.Is(err, ErrNoArtifact) {
			return nil, "", ErrStyleMissing
		}
		return nil, "", err
	}
	return rec, genai.TruncateExamples(s.tokenizer, text, s.exampleTokens), nil
}

// Generate writes new text in the user's style.
func (s *Service) Generate(ctx context.Context, userID string, req genai.GenerateRequest) (string, error) {
	rec, examples, err := s.examples(ctx, userID)
	if err != nil {
		return "", err
	}
	out, err := s.model.Generate(ctx, examples, req, rec.Profile)
	return s.settle(ctx, rec, out, err)
}

// Refine edits earlier output according to an instruction.
func (s *Service) Refine(ctx context.Context, userID string, req genai.RefineRequest) (string, error) {
	if strings.TrimSpace(req.Text) == "" || strings.TrimSpace(req.Instruction) == "" {
		return "", fmt.Errorf("%w: text and instruction are required", ErrInvalidRequest)
	}
	rec, examples, err := s.examples(ctx, userID)
	if err != nil {
		return "", err
	}
	out, err := s.model.Refine(ctx, examples, req, rec.Profile)
	return s.settle(ctx, rec, out, err)
}

// settle stores a model failure, or clears a stale error after success.
func (s *Service) settle(ctx context.Context, rec *session.Record, out string, err error) (string, error) {
	if err != nil {
		s.logger.Warn("Text generation failed", logging.UserHash(rec.UserID), logging.Err(err))
		return "", s.fail(ctx, rec.UserID, session.ErrorKindExternal, err)
	}
	if rec.LastError != "" {
		if _, err := s.update(ctx, rec.UserID, (*session.Record).ClearError); err != nil {
			s.logger.Warn("Failed to clear last error", logging.UserHash(rec.UserID), logging.Err(err))
		}
	}
	return out, nil
}

// UpdateProfile replaces the editable profile fields and marks the profile
// complete.
func (s *Service) UpdateProfile(ctx context.Context, userID string, p session.Profile) (*session.Record, error) {
	return s.update(ctx, userID, func(rec *session.Record) {
		rec.Profile.Name = strings.TrimSpace(p.Name)
		rec.Profile.Role = strings.TrimSpace(p.Role)
		rec.Profile.Organization = strings.TrimSpace(p.Organization)
		rec.Profile.Domain = strings.TrimSpace(p.Domain)
		rec.Profile.Context = strings.TrimSpace(p.Context)
		rec.Profile.ProfileComplete = true
	})
}

// DismissReminder hides the profile reminder.
func (s *Service) DismissReminder(ctx context.Context, userID string) (*session.Record, error) {
	return s.update(ctx, userID, func(rec *session.Record) {
		rec.Profile.ReminderDismissed = true
	})
}

// SignOut cancels any live flow, forgets the user's token and clears
// Authenticated. Workflow progress is kept.
func (s *Service) SignOut(ctx context.Context, userID string) (*session.Record, error) {
	if !session.ValidUserID(userID) {
		return nil, fmt.Errorf("sign out: %w", session.ErrInvalidUserID)
	}
	if s.flows != nil {
		if err := s.flows.Cancel(ctx, userID); err != nil {
			return nil, err
		}
	}
	if err := s.signOut.SignOut(userID); err != nil {
		return nil, fmt.Errorf("sign out: %w", err)
	}
	s.logger.Info("Signed out", logging.UserHash(userID))
	return s.update(ctx, userID, func(rec *session.Record) {
		rec.Authenticated = false
		rec.ClearError()
	})
}

// Reset discards everything known about userID and returns a fresh record
// under a new id.
func (s *Service) Reset(ctx context.Context, userID string) (*session.Record, error) {
	if !session.ValidUserID(userID) {
		return nil, fmt.Errorf("reset session: %w", session.ErrInvalidUserID)
	}
	if s.flows != nil {
		if err := s.flows.Cancel(ctx, userID); err != nil {
			return nil, err
		}
	}
	if err := s.signOut.SignOut(userID); err != nil {
		s.logger.Warn("Failed to remove token", logging.UserHash(userID), logging.Err(err))
	}
	if err := s.artifacts.Remove(userID); err != nil {
		s.logger.Warn("Failed to remove artifacts", logging.UserHash(userID), logging.Err(err))
	}
	rec, err := s.store.Reset(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Session reset", logging.UserHash(userID), slog.String("new_user_hash", logging.AnonymizeUser(rec.UserID)))
	return rec, nil
}

// update applies mutate to the stored record and publishes a change hint.
func (s *Service) update(ctx context.Context, userID string, mutate func(*session.Record)) (*session.Record, error) {
	rec, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	mutate(rec)
	if err := s.store.Set(ctx, rec); err != nil {
		return nil, err
	}
	s.publish(ctx, rec.UserID)
	return rec, nil
}

// fail stores err as the last error and returns it.
func (s *Service) fail(ctx context.Context, userID string, kind session.ErrorKind, err error) error {
	ctx = context.WithoutCancel(ctx)
	if _, uerr := s.update(ctx, userID, func(rec *session.Record) { rec.SetError(kind, err) }); uerr != nil {
		s.logger.Error("Failed to record workflow error", logging.UserHash(userID), logging.Err(uerr))
	}
	return err
}

func (s *Service) publish(ctx context.Context, userID string) {
	inProgress := false
	if s.flows != nil {
		inProgress, _ = s.flows.InProgress(userID)
	}
	s.bus.Publish(ctx, broadcast.Changed(userID, inProgress))
}

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/teemow/mailsense/internal/auth"
	"github.com/teemow/mailsense/internal/genai"
	"github.com/teemow/mailsense/internal/logging"
	"github.com/teemow/mailsense/internal/session"
	"github.com/teemow/mailsense/internal/view"
	"github.com/teemow/mailsense/internal/workflow"
)

const maxBodyBytes = 1 << 20

// errorResponse is the body of every failed API call.
type errorResponse struct {
	Error string            `json:"error"`
	Kind  session.ErrorKind `json:"kind,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string, kind session.ErrorKind) {
	writeJSON(w, status, errorResponse{Error: msg, Kind: kind})
}

// sessionResponse is the session as the API shows it.
type sessionResponse struct {
	View    view.View       `json:"view"`
	Profile session.Profile `json:"profile"`
}

type textResponse struct {
	Text string `json:"text"`
}

type navigationRequest struct {
	URL string `json:"url"`
}

type navigationResponse struct {
	Resolved bool `json:"resolved"`
}

// api serves the session and workflow endpoints.
type api struct {
	sc     *ServerContext
	secure bool
	logger *slog.Logger
}

func (a *api) routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/start", a.startAuth)
		r.Post("/auth/cancel", a.cancelAuth)
		r.Get("/auth/state", a.authState)
		r.Post("/auth/navigation", a.observeNavigation)

		r.Get("/session", a.getSession)
		r.Post("/session/reset", a.resetSession)
		r.Put("/session/profile", a.updateProfile)
		r.Post("/session/reminder/dismiss", a.dismissReminder)
		r.Post("/session/signout", a.signOut)

		r.Post("/history/fetch", a.fetchHistory)
		r.Post("/style/analyze", a.analyzeStyle)
		r.Post("/generate", a.generate)
		r.Post("/refine", a.refine)
	})
	r.Get(auth.CompletionPath, a.completionPage)
}

// fail maps err to a status code and writes it.
func (a *api) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		authErr    *auth.Error
		storageErr *session.StorageError
	)
	switch {
	case errors.Is(err, session.ErrInvalidUserID), errors.Is(err, workflow.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error(), "")
	case workflow.IsPrecondition(err):
		writeError(w, http.StatusConflict, err.Error(), session.ErrorKindWorkflow)
	case errors.Is(err, workflow.ErrNoMail), errors.Is(err, workflow.ErrNoVoice):
		writeError(w, http.StatusUnprocessableEntity, err.Error(), session.ErrorKindWorkflow)
	case errors.Is(err, auth.ErrShutdown):
		writeError(w, http.StatusServiceUnavailable, err.Error(), "")
	case errors.As(err, &storageErr):
		writeError(w, http.StatusServiceUnavailable, "session storage unavailable", session.ErrorKindStorage)
	case errors.As(err, &authErr):
		writeError(w, http.StatusBadGateway, err.Error(), authErr.Kind)
	default:
		a.logger.Warn("Request failed",
			slog.String("path", r.URL.Path),
			logging.UserHash(UserIDFromContext(r.Context())),
			logging.Err(err))
		writeError(w, http.StatusBadGateway, err.Error(), session.ErrorKindExternal)
	}
}

func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (a *api) badRequest(w http.ResponseWriter, err error) {
	writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), "")
}

func (a *api) respondSession(w http.ResponseWriter, rec *session.Record) {
	writeJSON(w, http.StatusOK, sessionResponse{
		View:    view.Render(rec, a.sc.Auth().Flow(rec.UserID)),
		Profile: rec.Profile,
	})
}

func (a *api) startAuth(w http.ResponseWriter, r *http.Request) {
	res, err := a.sc.Auth().Start(r.Context(), UserIDFromContext(r.Context()))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *api) cancelAuth(w http.ResponseWriter, r *http.Request) {
	if err := a.sc.Auth().Cancel(r.Context(), UserIDFromContext(r.Context())); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) authState(w http.ResponseWriter, r *http.Request) {
	st, err := a.sc.Auth().GetAuthState(r.Context(), UserIDFromContext(r.Context()))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *api) observeNavigation(w http.ResponseWriter, r *http.Request) {
	var req navigationRequest
	if err := decodeBody(r, &req); err != nil {
		a.badRequest(w, err)
		return
	}
	resolved := a.sc.Auth().ObserveNavigation(r.Context(), UserIDFromContext(r.Context()), req.URL)
	writeJSON(w, http.StatusOK, navigationResponse{Resolved: resolved})
}

func (a *api) getSession(w http.ResponseWriter, r *http.Request) {
	rec, err := a.sc.Store().Get(r.Context(), UserIDFromContext(r.Context()))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.respondSession(w, rec)
}

func (a *api) resetSession(w http.ResponseWriter, r *http.Request) {
	rec, err := a.sc.Workflow().Reset(r.Context(), UserIDFromContext(r.Context()))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	setUserCookie(w, rec.UserID, a.secure)
	a.respondSession(w, rec)
}

func (a *api) updateProfile(w http.ResponseWriter, r *http.Request) {
	var p session.Profile
	if err := decodeBody(r, &p); err != nil {
		a.badRequest(w, err)
		return
	}
	rec, err := a.sc.Workflow().UpdateProfile(r.Context(), UserIDFromContext(r.Context()), p)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.respondSession(w, rec)
}

func (a *api) dismissReminder(w http.ResponseWriter, r *http.Request) {
	rec, err := a.sc.Workflow().DismissReminder(r.Context(), UserIDFromContext(r.Context()))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.respondSession(w, rec)
}

func (a *api) signOut(w http.ResponseWriter, r *http.Request) {
	rec, err := a.sc.Workflow().SignOut(r.Context(), UserIDFromContext(r.Context()))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.respondSession(w, rec)
}

func (a *api) fetchHistory(w http.ResponseWriter, r *http.Request) {
	var req workflow.HistoryRequest
	if err := decodeBody(r, &req); err != nil {
		a.badRequest(w, err)
		return
	}
	res, err := a.sc.Workflow().FetchHistory(r.Context(), UserIDFromContext(r.Context()), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *api) analyzeStyle(w http.ResponseWriter, r *http.Request) {
	res, err := a.sc.Workflow().AnalyzeStyle(r.Context(), UserIDFromContext(r.Context()))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *api) generate(w http.ResponseWriter, r *http.Request) {
	var req genai.GenerateRequest
	if err := decodeBody(r, &req); err != nil {
		a.badRequest(w, err)
		return
	}
	text, err := a.sc.Workflow().Generate(r.Context(), UserIDFromContext(r.Context()), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, textResponse{Text: text})
}

func (a *api) refine(w http.ResponseWriter, r *http.Request) {
	var req genai.RefineRequest
	if err := decodeBody(r, &req); err != nil {
		a.badRequest(w, err)
		return
	}
	text, err := a.sc.Workflow().Refine(r.Context(), UserIDFromContext(r.Context()), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, textResponse{Text: text})
}

var completionTemplate = template.Must(template.New("complete").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>mailsense</title></head>
<body>
{{if .Success}}<p>Authorization complete. You can close this window.</p>
{{else}}<p>Authorization did not complete{{with .Reason}} ({{.}}){{end}}. You can close this window and try again.</p>
{{end}}</body></html>
`))

// completionPage is where the authorization surface lands. Loading it is
// itself a completion signal for the caller's live flow.
func (a *api) completionPage(w http.ResponseWriter, r *http.Request) {
	c, ok := auth.ParseCompletionURL(r.URL.String())
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid completion URL", "")
		return
	}
	a.sc.Auth().ObserveNavigation(r.Context(), UserIDFromContext(r.Context()), r.URL.String())

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := completionTemplate.Execute(w, c); err != nil {
		a.logger.Debug("Failed to render completion page", logging.Err(err))
	}
}

package app

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"careguardian/internal/alert"
	"careguardian/internal/apperr"
	"careguardian/internal/chat"
	"careguardian/internal/contacts"
	"careguardian/internal/emotion"
	"careguardian/internal/report"
	"careguardian/internal/vitals"
)

// User identifies the signed-in account holder.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Session is the process-wide auth state. Its presence gates every other
// operation.
type Session struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Page is the active presentation view.
type Page string

const (
	PageDashboard Page = "dashboard"
	PageHealth    Page = "health"
	PageEmotion   Page = "emotion"
	PageAnalysis  Page = "analysis"
	PageEmergency Page = "emergency"
)

// ParsePage validates a page identifier coming from the presentation
// layer.
func ParsePage(s string) (Page, error) {
	switch Page(s) {
	case PageDashboard, PageHealth, PageEmotion, PageAnalysis, PageEmergency:
		return Page(s), nil
	default:
		return "", apperr.Validation("Unknown page.")
	}
}

// Store is the slice of the storage/account collaborator the facade
// needs. The contact registry declares its own slice separately.
type Store interface {
	Login(ctx context.Context, email, password string) (*Session, error)
	Register(ctx context.Context, name, email, password string) error
	DeleteUser(ctx context.Context, userID string) error
	ListVitals(ctx context.Context, userID string) ([]vitals.Sample, error)
	SaveVitals(ctx context.Context, s vitals.Sample) (vitals.Sample, error)
	ListContacts(ctx context.Context, userID string) ([]contacts.Contact, error)
}

// Generator combines the generative-AI slices consumed across components.
type Generator interface {
	emotion.Generator
	chat.Generator
}

// App is the orchestration facade: the single source of truth wiring the
// ledger, classifier session, alert dispatcher, contact registry and chat
// manager to the presentation layer. It is the sole owner of the auth
// session and the active page; components own their own state exclusively.
type App struct {
	store   Store
	gen     Generator
	reports *report.Service
	logger  *zap.Logger

	ledger     *vitals.Ledger
	trend      *vitals.Trend
	classifier *emotion.Session
	alerts     *alert.Dispatcher
	registry   *contacts.Registry
	assistant  *chat.Manager

	// mu guards session, page, epoch and suggestion; single-flight
	// discipline lives in the components, not here.
	mu         sync.Mutex
	session    *Session
	page       Page
	epoch      uint64
	suggestion string
}

// Options bundle the knobs main wires from config.
type Options struct {
	ChatHistoryLimit int
	GenAITimeout     time.Duration
}

func New(store Store, contactStore contacts.Store, gen Generator, notifier alert.Notifier, reports *report.Service, opts Options, logger *zap.Logger) *App {
	return &App{
		store:      store,
		gen:        gen,
		reports:    reports,
		logger:     logger,
		ledger:     vitals.NewLedger(),
		trend:      vitals.NewTrend(),
		classifier: emotion.NewSession(gen, opts.GenAITimeout, logger),
		alerts:     alert.NewDispatcher(notifier, logger),
		registry:   contacts.NewRegistry(contactStore, logger),
		assistant:  chat.NewManager(gen, opts.ChatHistoryLimit, logger),
		page:       PageDashboard,
	}
}

// --- auth lifecycle ---

// Login authenticates against the storage service, installs the session
// and pulls the initial vitals and contacts. A partial refresh failure is
// logged but does not fail the login itself.
func (a *App) Login(ctx context.Context, email, password string) (*Session, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, apperr.Validation("Email and password are required.")
	}

	session, err := a.store.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.session = session
	a.page = PageDashboard
	a.mu.Unlock()

	if err := a.Refresh(ctx); err != nil {
		a.logger.Warn("initial data refresh failed", zap.Error(err))
	}

	s := *session
	return &s, nil
}

func (a *App) Register(ctx context.Context, name, email, password string) error {
	if strings.TrimSpace(name) == "" || strings.TrimSpace(email) == "" || password == "" {
		return apperr.Validation("Name, email and password are required.")
	}
	return a.store.Register(ctx, name, email, password)
}

// Logout atomically clears the session, vitals, contacts and chat state
// and resets the page to the default view. In-flight collaborator calls
// are allowed to complete; their results are discarded via the epoch.
func (a *App) Logout() {
	a.teardown()
}

// DeleteAccount removes the account remotely and cascade-invalidates the
// session on success.
func (a *App) DeleteAccount(ctx context.Context) error {
	user, err := a.requireUser()
	if err != nil {
		return err
	}
	if err := a.store.DeleteUser(ctx, user.ID); err != nil {
		return err
	}
	a.teardown()
	return nil
}

func (a *App) teardown() {
	a.mu.Lock()
	a.session = nil
	a.page = PageDashboard
	a.suggestion = ""
	a.epoch++
	a.mu.Unlock()

	a.ledger.Reset()
	a.trend.Reset()
	a.classifier.Reset()
	a.alerts.Reset()
	a.registry.Reset()
	a.assistant.Reset()
}

// Refresh replaces the local vitals and contacts with the authoritative
// lists from storage. An empty remote collection is a normal state, not a
// failure; partial failures are aggregated.
func (a *App) Refresh(ctx context.Context) error {
	user, err := a.requireUser()
	if err != nil {
		return err
	}

	var result *multierror.Error

	samples, err := a.store.ListVitals(ctx, user.ID)
	if err != nil {
		result = multierror.Append(result, err)
	} else {
		a.ledger.ReplaceAll(samples)
	}

	list, err := a.store.ListContacts(ctx, user.ID)
	if err != nil {
		result = multierror.Append(result, err)
	} else {
		a.registry.ReplaceAll(list)
	}

	return result.ErrorOrNil()
}

// --- vitals ---

// SubmitVitals appends the sample optimistically, persists it remotely
// and confirms the optimistic entry with the server-assigned id. A
// definite remote failure rolls the optimistic entry back.
func (a *App) SubmitVitals(ctx context.Context, in vitals.Sample) (vitals.Sample, error) {
	user, err := a.requireUser()
	if err != nil {
		return vitals.Sample{}, err
	}
	if in.HeartRate <= 0 || in.SystolicBP <= 0 {
		return vitals.Sample{}, apperr.Validation("Please enter a valid heart rate and blood pressure.")
	}

	in.ID = ""
	in.OwnerID = user.ID
	optimistic := a.ledger.Append(in)

	stored, err := a.store.SaveVitals(ctx, in)
	if err != nil {
		a.ledger.Drop(optimistic)
		return vitals.Sample{}, err
	}

	a.ledger.Confirm(optimistic, stored.ID)
	optimistic.ID = stored.ID
	return optimistic, nil
}

// --- mood analysis ---

// AnalyzeResult is what one completed classification hands back to the
// presentation layer.
type AnalyzeResult struct {
	Result     emotion.Result `json:"result"`
	AlertSent  bool           `json:"alertSent"`
	Suggestion string         `json:"suggestion,omitempty"`
}

// AnalyzeMood runs the risk-classification workflow: submit, validate,
// update the emotion trend and conditionally fire the emergency alert.
// The alert is dispatched only after the result has fully validated.
func (a *App) AnalyzeMood(ctx context.Context, text string) (*AnalyzeResult, error) {
	user, err := a.requireUser()
	if err != nil {
		return nil, err
	}
	epoch := a.currentEpoch()

	if err := a.classifier.Begin(text); err != nil {
		return nil, err
	}
	a.alerts.Reset()
	a.setSuggestion(epoch, "")

	res, err := a.classifier.Classify(ctx)
	if err != nil {
		return nil, err
	}
	if a.currentEpoch() != epoch {
		// The owning session was torn down while the call was in flight.
		return nil, apperr.ErrNoSession
	}

	a.trend.Append(res.Level.TrendValue())

	if alert.ShouldAlert(res.Level) {
		a.alerts.Dispatch(ctx, user.ID, user.Name)
	}

	out := &AnalyzeResult{Result: *res, AlertSent: a.alerts.Sent()}

	// Best-effort companion call; its failure never affects the primary
	// classification result or the alerting decision.
	suggestion, err := a.classifier.Suggestion(ctx, text, res.Level)
	if err != nil {
		a.logger.Warn("suggestion fetch failed", zap.Error(err))
	} else {
		a.setSuggestion(epoch, suggestion)
		out.Suggestion = suggestion
	}

	return out, nil
}

const fallbackTip = "Your vitals look good. Remember to stay hydrated and take a short walk today to maintain your great health!"

const tipPrompt = `Give one short, friendly health tip of the day for a general audience (2 sentences max). Respond with plain text only.`

// TipOfDay fetches the dashboard health suggestion. Best-effort: any
// failure falls back to a fixed tip.
func (a *App) TipOfDay(ctx context.Context) string {
	if _, err := a.requireUser(); err != nil {
		return fallbackTip
	}
	tip, err := a.gen.GenerateText(ctx, tipPrompt)
	if err != nil || strings.TrimSpace(tip) == "" {
		if err != nil {
			a.logger.Debug("tip of day fetch failed", zap.Error(err))
		}
		return fallbackTip
	}
	return strings.TrimSpace(tip)
}

// --- contacts ---

func (a *App) AddContact(ctx context.Context, c contacts.Contact) (contacts.Contact, error) {
	user, err := a.requireUser()
	if err != nil {
		return contacts.Contact{}, err
	}
	c.OwnerID = user.ID
	return a.registry.Add(ctx, c)
}

func (a *App) VerifyContact(ctx context.Context, id string) error {
	if _, err := a.requireUser(); err != nil {
		return err
	}
	return a.registry.Verify(ctx, id)
}

func (a *App) RemoveContact(ctx context.Context, id string) error {
	if _, err := a.requireUser(); err != nil {
		return err
	}
	return a.registry.Remove(ctx, id)
}

// --- chat ---

func (a *App) SendChat(ctx context.Context, text string) (string, error) {
	if _, err := a.requireUser(); err != nil {
		return "", err
	}
	return a.assistant.Send(ctx, text)
}

// --- report ---

func (a *App) GenerateReport(ctx context.Context) ([]byte, error) {
	user, err := a.requireUser()
	if err != nil {
		return nil, err
	}
	return a.reports.Generate(ctx, user.Name, a.ledger.Series(), a.trend.Points(), a.classifier.Result())
}

// --- page & snapshots ---

func (a *App) SetPage(p Page) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.page = p
}

func (a *App) CurrentPage() Page {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.page
}

// Session returns a copy of the active session, or nil.
func (a *App) Session() *Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session == nil {
		return nil
	}
	s := *a.session
	return &s
}

// Snapshot is the read-only view handed to the presentation layer.
type Snapshot struct {
	User          *User               `json:"user,omitempty"`
	Page          Page                `json:"page"`
	Vitals        []vitals.Sample     `json:"vitals"`
	LatestVitals  *vitals.Sample      `json:"latestVitals,omitempty"`
	EmotionTrend  []vitals.TrendPoint `json:"emotionTrend"`
	LatestEmotion *emotion.Result     `json:"latestEmotion,omitempty"`
	EmotionState  string              `json:"emotionState"`
	EmotionError  string              `json:"emotionError,omitempty"`
	AlertSent     bool                `json:"alertSent"`
	Suggestion    string              `json:"suggestion,omitempty"`
	Contacts      []contacts.Contact  `json:"contacts"`
	VerifyingID   string              `json:"verifyingId,omitempty"`
	Chat          []chat.Turn         `json:"chat"`
}

func (a *App) Snapshot() Snapshot {
	snap := Snapshot{
		Page:         a.CurrentPage(),
		Vitals:       a.ledger.Series(),
		EmotionTrend: a.trend.Points(),
		EmotionState: a.classifier.State().String(),
		EmotionError: a.classifier.ErrMessage(),
		AlertSent:    a.alerts.Sent(),
		Contacts:     a.registry.List(),
		VerifyingID:  a.registry.VerifyingID(),
		Chat:         a.assistant.Log(),
	}
	if s := a.Session(); s != nil {
		u := s.User
		snap.User = &u
	}
	if latest, ok := a.ledger.Latest(); ok {
		snap.LatestVitals = &latest
	}
	snap.LatestEmotion = a.classifier.Result()

	a.mu.Lock()
	snap.Suggestion = a.suggestion
	a.mu.Unlock()
	return snap
}

// --- internals ---

func (a *App) requireUser() (User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session == nil {
		return User{}, apperr.ErrNoSession
	}
	return a.session.User, nil
}

func (a *App) currentEpoch() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.epoch
}

// setSuggestion writes the suggestion only while the owning session is
// still current.
func (a *App) setSuggestion(epoch uint64, s string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.epoch == epoch {
		a.suggestion = s
	}
}

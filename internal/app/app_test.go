package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"careguardian/internal/apperr"
	"careguardian/internal/chat"
	"careguardian/internal/contacts"
	"careguardian/internal/emotion"
	"careguardian/internal/report"
	"careguardian/internal/vitals"
)

type fakeStore struct {
	mu          sync.Mutex
	session     *Session
	loginErr    error
	registerErr error
	deleteErr   error

	remoteVitals   []vitals.Sample
	listVitalsErr  error
	saveErr        error
	savedCount     int
	remoteContacts []contacts.Contact
	deletedUserID  string
}

func (f *fakeStore) Login(ctx context.Context, email, password string) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	s := *f.session
	return &s, nil
}

func (f *fakeStore) Register(ctx context.Context, name, email, password string) error {
	return f.registerErr
}

func (f *fakeStore) DeleteUser(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deletedUserID = userID
	return nil
}

func (f *fakeStore) ListVitals(ctx context.Context, userID string) ([]vitals.Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listVitalsErr != nil {
		return nil, f.listVitalsErr
	}
	return append([]vitals.Sample(nil), f.remoteVitals...), nil
}

func (f *fakeStore) SaveVitals(ctx context.Context, s vitals.Sample) (vitals.Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return vitals.Sample{}, f.saveErr
	}
	f.savedCount++
	s.ID = "srv-1"
	return s, nil
}

func (f *fakeStore) ListContacts(ctx context.Context, userID string) ([]contacts.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]contacts.Contact(nil), f.remoteContacts...), nil
}

type fakeContactStore struct{}

func (fakeContactStore) AddContact(ctx context.Context, c contacts.Contact) (contacts.Contact, error) {
	c.ID = "c1"
	return c, nil
}
func (fakeContactStore) DeleteContact(ctx context.Context, id string) error { return nil }
func (fakeContactStore) VerifyContact(ctx context.Context, id string) (bool, string, error) {
	return true, "", nil
}

type fakeGenerator struct {
	mu          sync.Mutex
	jsonReply   string
	jsonErr     error
	jsonStarted chan struct{} // when non-nil, closed once GenerateJSON is entered
	jsonBlock   chan struct{} // when non-nil, GenerateJSON waits until closed
	textReply   string
	textErr     error
	convReply   string
}

func (f *fakeGenerator) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	reply, err, started, block := f.jsonReply, f.jsonErr, f.jsonStarted, f.jsonBlock
	f.mu.Unlock()
	if started != nil {
		close(started)
	}
	if block != nil {
		<-block
	}
	return reply, err
}

func (f *fakeGenerator) GenerateText(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.textReply, f.textErr
}

func (f *fakeGenerator) GenerateConversation(ctx context.Context, persona string, history []chat.Turn) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.convReply, nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeNotifier) SendAlert(ctx context.Context, userID, userName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

func (f *fakeNotifier) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testSession() *Session {
	return &Session{Token: "tok", User: User{ID: "u1", Name: "Alice"}}
}

func newTestApp(store *fakeStore, gen *fakeGenerator, notifier *fakeNotifier) *App {
	logger := zap.NewNop()
	return New(store, fakeContactStore{}, gen, notifier, report.NewService(gen, logger), Options{
		ChatHistoryLimit: 40,
		GenAITimeout:     time.Minute,
	}, logger)
}

func mustLogin(t *testing.T, a *App) {
	t.Helper()
	_, err := a.Login(context.Background(), "alice@example.com", "secret")
	require.NoError(t, err)
}

func TestLogin_RequiresCredentials(t *testing.T) {
	a := newTestApp(&fakeStore{session: testSession()}, &fakeGenerator{}, &fakeNotifier{})

	_, err := a.Login(context.Background(), "", "secret")
	assert.True(t, apperr.IsValidation(err))

	_, err = a.Login(context.Background(), "alice@example.com", "")
	assert.True(t, apperr.IsValidation(err))

	assert.Nil(t, a.Session())
}

func TestLogin_InstallsSessionAndRefreshes(t *testing.T) {
	store := &fakeStore{
		session: testSession(),
		remoteVitals: []vitals.Sample{
			{ID: "v1", HeartRate: 72, SystolicBP: 120},
			{ID: "v2", HeartRate: 80, SystolicBP: 130},
		},
		remoteContacts: []contacts.Contact{{ID: "c1", Name: "Bob", Verified: true}},
	}
	a := newTestApp(store, &fakeGenerator{}, &fakeNotifier{})

	session, err := a.Login(context.Background(), "alice@example.com", "secret")

	require.NoError(t, err)
	assert.Equal(t, "u1", session.User.ID)

	snap := a.Snapshot()
	require.Len(t, snap.Vitals, 2)
	assert.Equal(t, "M1", snap.Vitals[0].SequenceLabel)
	assert.Equal(t, "M2", snap.Vitals[1].SequenceLabel)
	require.NotNil(t, snap.LatestVitals)
	assert.Equal(t, "v2", snap.LatestVitals.ID)
	require.Len(t, snap.Contacts, 1)
	assert.Equal(t, PageDashboard, snap.Page)
}

func TestLogin_SucceedsWhenRefreshFails(t *testing.T) {
	store := &fakeStore{session: testSession(), listVitalsErr: errors.New("storage down")}
	a := newTestApp(store, &fakeGenerator{}, &fakeNotifier{})

	_, err := a.Login(context.Background(), "alice@example.com", "secret")

	require.NoError(t, err)
	assert.NotNil(t, a.Session())
	assert.Empty(t, a.Snapshot().Vitals)
}

func TestOperations_RejectedWithoutSession(t *testing.T) {
	a := newTestApp(&fakeStore{session: testSession()}, &fakeGenerator{}, &fakeNotifier{})
	ctx := context.Background()

	_, err := a.SubmitVitals(ctx, vitals.Sample{HeartRate: 72, SystolicBP: 120})
	assert.ErrorIs(t, err, apperr.ErrNoSession)

	_, err = a.AnalyzeMood(ctx, "feeling fine")
	assert.ErrorIs(t, err, apperr.ErrNoSession)

	_, err = a.AddContact(ctx, contacts.Contact{Name: "Bob"})
	assert.ErrorIs(t, err, apperr.ErrNoSession)

	_, err = a.SendChat(ctx, "hello")
	assert.ErrorIs(t, err, apperr.ErrNoSession)

	_, err = a.GenerateReport(ctx)
	assert.ErrorIs(t, err, apperr.ErrNoSession)

	assert.ErrorIs(t, a.Refresh(ctx), apperr.ErrNoSession)
	assert.ErrorIs(t, a.DeleteAccount(ctx), apperr.ErrNoSession)
}

func TestSubmitVitals_ConfirmsOptimisticEntryWithServerID(t *testing.T) {
	store := &fakeStore{session: testSession()}
	a := newTestApp(store, &fakeGenerator{}, &fakeNotifier{})
	mustLogin(t, a)

	stored, err := a.SubmitVitals(context.Background(), vitals.Sample{HeartRate: 72, SystolicBP: 120})

	require.NoError(t, err)
	assert.Equal(t, "srv-1", stored.ID)
	assert.Equal(t, "M1", stored.SequenceLabel)
	assert.Equal(t, "u1", stored.OwnerID)

	snap := a.Snapshot()
	require.Len(t, snap.Vitals, 1)
	assert.Equal(t, "srv-1", snap.Vitals[0].ID)
}

func TestSubmitVitals_RollsBackOnRemoteFailure(t *testing.T) {
	store := &fakeStore{session: testSession(), saveErr: errors.New("storage down")}
	a := newTestApp(store, &fakeGenerator{}, &fakeNotifier{})
	mustLogin(t, a)

	_, err := a.SubmitVitals(context.Background(), vitals.Sample{HeartRate: 72, SystolicBP: 120})

	assert.Error(t, err)
	assert.Empty(t, a.Snapshot().Vitals)
}

func TestSubmitVitals_ValidatesReadings(t *testing.T) {
	store := &fakeStore{session: testSession()}
	a := newTestApp(store, &fakeGenerator{}, &fakeNotifier{})
	mustLogin(t, a)

	for _, in := range []vitals.Sample{
		{HeartRate: 0, SystolicBP: 120},
		{HeartRate: 72, SystolicBP: 0},
		{HeartRate: -3, SystolicBP: -1},
	} {
		_, err := a.SubmitVitals(context.Background(), in)
		assert.True(t, apperr.IsValidation(err))
	}
	assert.Equal(t, 0, store.savedCount)
}

func TestAnalyzeMood_DangerDispatchesAlertOnce(t *testing.T) {
	gen := &fakeGenerator{
		jsonReply: `{"level": "Danger", "message": "High distress detected."}`,
		textReply: "Take a few deep breaths and call someone you trust.",
	}
	notifier := &fakeNotifier{}
	a := newTestApp(&fakeStore{session: testSession()}, gen, notifier)
	mustLogin(t, a)

	out, err := a.AnalyzeMood(context.Background(), "everything hurts and I am scared")

	require.NoError(t, err)
	assert.Equal(t, emotion.LevelDanger, out.Result.Level)
	assert.True(t, out.AlertSent)
	assert.Equal(t, gen.textReply, out.Suggestion)
	assert.Equal(t, 1, notifier.callCount())

	trend := a.Snapshot().EmotionTrend
	require.Len(t, trend, 1)
	assert.Equal(t, 2, trend[0].NumericLevel)
}

func TestAnalyzeMood_SafeDoesNotAlert(t *testing.T) {
	gen := &fakeGenerator{
		jsonReply: `{"level": "Safe", "message": "You sound content."}`,
		textReply: "Keep up the good routine.",
	}
	notifier := &fakeNotifier{}
	a := newTestApp(&fakeStore{session: testSession()}, gen, notifier)
	mustLogin(t, a)

	out, err := a.AnalyzeMood(context.Background(), "had a lovely day")

	require.NoError(t, err)
	assert.False(t, out.AlertSent)
	assert.Equal(t, 0, notifier.callCount())

	trend := a.Snapshot().EmotionTrend
	require.Len(t, trend, 1)
	assert.Equal(t, 8, trend[0].NumericLevel)
}

func TestAnalyzeMood_MalformedPayloadFailsClosed(t *testing.T) {
	gen := &fakeGenerator{jsonReply: `{"level": "Elevated", "message": "??"}`}
	notifier := &fakeNotifier{}
	a := newTestApp(&fakeStore{session: testSession()}, gen, notifier)
	mustLogin(t, a)

	_, err := a.AnalyzeMood(context.Background(), "not sure how I feel")

	assert.True(t, apperr.IsFormat(err))
	assert.Equal(t, 0, notifier.callCount())
	assert.Empty(t, a.Snapshot().EmotionTrend)
}

func TestAnalyzeMood_ClearsPreviousAlertFlagOnNewSubmission(t *testing.T) {
	gen := &fakeGenerator{
		jsonReply: `{"level": "Warning", "message": "Some distress."}`,
		textReply: "Try a short walk.",
	}
	notifier := &fakeNotifier{}
	a := newTestApp(&fakeStore{session: testSession()}, gen, notifier)
	mustLogin(t, a)

	_, err := a.AnalyzeMood(context.Background(), "feeling on edge")
	require.NoError(t, err)
	assert.True(t, a.Snapshot().AlertSent)

	gen.mu.Lock()
	gen.jsonReply = `{"level": "Safe", "message": "Much better."}`
	gen.mu.Unlock()

	out, err := a.AnalyzeMood(context.Background(), "feeling calmer now")
	require.NoError(t, err)
	assert.False(t, out.AlertSent)
	assert.False(t, a.Snapshot().AlertSent)
	assert.Equal(t, 1, notifier.callCount())
}

func TestLogout_DiscardsInFlightClassification(t *testing.T) {
	gen := &fakeGenerator{
		jsonReply:   `{"level": "Danger", "message": "High distress detected."}`,
		jsonStarted: make(chan struct{}),
		jsonBlock:   make(chan struct{}),
	}
	notifier := &fakeNotifier{}
	a := newTestApp(&fakeStore{session: testSession()}, gen, notifier)
	mustLogin(t, a)

	done := make(chan error, 1)
	go func() {
		_, err := a.AnalyzeMood(context.Background(), "everything hurts")
		done <- err
	}()

	<-gen.jsonStarted
	a.Logout()
	close(gen.jsonBlock)

	assert.ErrorIs(t, <-done, apperr.ErrNoSession)
	assert.Equal(t, 0, notifier.callCount())

	snap := a.Snapshot()
	assert.Empty(t, snap.EmotionTrend)
	assert.False(t, snap.AlertSent)
	assert.Nil(t, snap.User)
}

func TestLogout_ClearsAllState(t *testing.T) {
	gen := &fakeGenerator{
		jsonReply: `{"level": "Warning", "message": "Some distress."}`,
		textReply: "Try a short walk.",
		convReply: "Happy to help!",
	}
	store := &fakeStore{
		session:        testSession(),
		remoteContacts: []contacts.Contact{{ID: "c1", Name: "Bob"}},
	}
	a := newTestApp(store, gen, &fakeNotifier{})
	mustLogin(t, a)

	_, err := a.SubmitVitals(context.Background(), vitals.Sample{HeartRate: 72, SystolicBP: 120})
	require.NoError(t, err)
	_, err = a.AnalyzeMood(context.Background(), "uneasy")
	require.NoError(t, err)
	_, err = a.SendChat(context.Background(), "hello")
	require.NoError(t, err)
	a.SetPage(PageEmergency)

	a.Logout()

	snap := a.Snapshot()
	assert.Nil(t, snap.User)
	assert.Equal(t, PageDashboard, snap.Page)
	assert.Empty(t, snap.Vitals)
	assert.Empty(t, snap.EmotionTrend)
	assert.Nil(t, snap.LatestEmotion)
	assert.False(t, snap.AlertSent)
	assert.Empty(t, snap.Suggestion)
	assert.Empty(t, snap.Contacts)
	require.Len(t, snap.Chat, 1)
	assert.Equal(t, chat.Greeting, snap.Chat[0].Text)
}

func TestDeleteAccount_RemovesRemotelyThenTearsDown(t *testing.T) {
	store := &fakeStore{session: testSession()}
	a := newTestApp(store, &fakeGenerator{}, &fakeNotifier{})
	mustLogin(t, a)

	require.NoError(t, a.DeleteAccount(context.Background()))

	assert.Equal(t, "u1", store.deletedUserID)
	assert.Nil(t, a.Session())
}

func TestDeleteAccount_KeepsSessionOnRemoteFailure(t *testing.T) {
	store := &fakeStore{session: testSession(), deleteErr: errors.New("storage down")}
	a := newTestApp(store, &fakeGenerator{}, &fakeNotifier{})
	mustLogin(t, a)

	assert.Error(t, a.DeleteAccount(context.Background()))
	assert.NotNil(t, a.Session())
}

func TestTipOfDay_FallsBackOnFailure(t *testing.T) {
	gen := &fakeGenerator{textErr: errors.New("upstream unavailable")}
	a := newTestApp(&fakeStore{session: testSession()}, gen, &fakeNotifier{})
	mustLogin(t, a)

	assert.Equal(t, fallbackTip, a.TipOfDay(context.Background()))

	gen.mu.Lock()
	gen.textErr = nil
	gen.textReply = "  Drink a glass of water first thing in the morning.  "
	gen.mu.Unlock()

	assert.Equal(t, "Drink a glass of water first thing in the morning.", a.TipOfDay(context.Background()))
}

func TestParsePage(t *testing.T) {
	for _, s := range []string{"dashboard", "health", "emotion", "analysis", "emergency"} {
		p, err := ParsePage(s)
		require.NoError(t, err)
		assert.Equal(t, Page(s), p)
	}
	_, err := ParsePage("settings")
	assert.True(t, apperr.IsValidation(err))
}

package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"khamsat_bot/internal/access"
	"khamsat_bot/internal/model"
	"khamsat_bot/internal/preference"
	"khamsat_bot/internal/seenset"
	"khamsat_bot/internal/source"
	"khamsat_bot/internal/storage"
)

const adminID = int64(1)

type sentMessage struct {
	ChatID int64
	Text   string
}

type mockNotifier struct {
	mu       sync.Mutex
	messages []sentMessage
	failFor  map[int64]bool
	panicFor map[int64]bool
	onSend   func()
}

// FormatAlert renders one message listing the item IDs.
func (m *mockNotifier) FormatAlert(items []model.Item) []string {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return []string{strings.Join(ids, ",")}
}

func (m *mockNotifier) SendAlert(chatID int64, text string) error {
	if m.panicFor[chatID] {
		panic("boom")
	}
	if m.failFor[chatID] {
		return errors.New("forbidden: bot was blocked by the user")
	}
	m.mu.Lock()
	m.messages = append(m.messages, sentMessage{ChatID: chatID, Text: text})
	m.mu.Unlock()
	if m.onSend != nil {
		m.onSend()
	}
	return nil
}

func (m *mockNotifier) getMessages() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]sentMessage, len(m.messages))
	copy(cp, m.messages)
	return cp
}

type mockSource struct {
	mu     sync.Mutex
	recent []model.Item
	err    error
	calls  int
}

func (m *mockSource) Fetch(_ context.Context) (source.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return source.Result{}, m.err
	}
	return source.Result{Recent: m.recent, All: m.recent}, nil
}

func (m *mockSource) set(items ...model.Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recent = items
}

func (m *mockSource) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type failingAudience struct{}

func (failingAudience) EligibleSubscribers(context.Context) ([]int64, error) {
	return nil, errors.New("database is locked")
}

type harness struct {
	store    *storage.SQLite
	src      *mockSource
	notifier *mockNotifier
	seen     *seenset.Set
	sched    *Scheduler
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *storage.SQLite {
	t.Helper()
	s, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newHarness(t *testing.T, store *storage.SQLite, approved ...int64) *harness {
	t.Helper()
	ctx := context.Background()
	log := discardLogger()

	if err := store.SetMonitoringActive(ctx, true); err != nil {
		t.Fatalf("enable monitoring: %v", err)
	}
	for _, id := range approved {
		if err := store.CreateSubscriber(ctx, &model.Subscriber{ChatID: id, Role: model.RoleApproved}); err != nil {
			t.Fatalf("create subscriber %d: %v", id, err)
		}
	}

	h := &harness{
		store:    store,
		src:      &mockSource{},
		notifier: &mockNotifier{failFor: map[int64]bool{}, panicFor: map[int64]bool{}},
		seen:     seenset.Load(ctx, store, 100, log),
	}
	h.sched = New(Deps{
		Source:      h.src,
		Notifier:    h.notifier,
		Audience:    access.NewRegistry(store, adminID),
		Preferences: preference.New(store),
		Seen:        h.seen,
		Switch:      store,
	}, log)
	h.sched.SetSendDelay(0)
	return h
}

func item(id string, categories ...string) model.Item {
	return model.Item{ID: id, Title: "request " + id, Categories: categories}
}

func TestNoDuplicateAcrossCycles(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, newTestStore(t))

	h.src.set(item("p1", "design"), item("p2", "writing"))
	if err := h.sched.RunOnce(ctx); err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	h.src.set(item("p3", "design"), item("p1", "design"), item("p2", "writing"))
	if err := h.sched.RunOnce(ctx); err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	if err := h.sched.RunOnce(ctx); err != nil {
		t.Fatalf("third cycle: %v", err)
	}

	want := []sentMessage{
		{ChatID: adminID, Text: "p1,p2"},
		{ChatID: adminID, Text: "p3"},
	}
	if diff := cmp.Diff(want, h.notifier.getMessages()); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
}

func TestDuplicateIDsWithinBatch(t *testing.T) {
	h := newHarness(t, newTestStore(t))
	h.src.set(item("p1"), item("p1"), item("p2"))

	if err := h.sched.RunOnce(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	want := []sentMessage{{ChatID: adminID, Text: "p1,p2"}}
	if diff := cmp.Diff(want, h.notifier.getMessages()); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
}

func TestCrashRecovery(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	if err := store.SaveSeen(ctx, []string{"p1", "p2"}); err != nil {
		t.Fatalf("seed seen: %v", err)
	}

	h := newHarness(t, store)
	h.src.set(item("p1"), item("p3"))
	if err := h.sched.RunOnce(ctx); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	want := []sentMessage{{ChatID: adminID, Text: "p3"}}
	if diff := cmp.Diff(want, h.notifier.getMessages()); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}

	persisted, err := store.LoadSeen(ctx)
	if err != nil {
		t.Fatalf("load seen: %v", err)
	}
	if diff := cmp.Diff([]string{"p1", "p2", "p3"}, persisted); diff != "" {
		t.Errorf("persisted seen mismatch (-want +got):\n%s", diff)
	}
}

func TestDeliveryFailureDoesNotBlock(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, newTestStore(t), 10, 20)
	h.notifier.failFor[10] = true

	h.src.set(item("p1"))
	if err := h.sched.RunOnce(ctx); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	want := []sentMessage{
		{ChatID: adminID, Text: "p1"},
		{ChatID: 20, Text: "p1"},
	}
	if diff := cmp.Diff(want, h.notifier.getMessages()); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
	if !h.seen.Contains("p1") {
		t.Error("item should be marked seen even when a delivery fails")
	}

	// The failed subscriber is not retried.
	h.notifier.failFor[10] = false
	if err := h.sched.RunOnce(ctx); err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	if got := len(h.notifier.getMessages()); got != 2 {
		t.Errorf("expected no redelivery, got %d messages", got)
	}
}

func TestPreferencesFilterDelivery(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, newTestStore(t), 10, 20, 30)

	prefs := preference.New(h.store)
	if err := prefs.Set(ctx, 10, model.Subset("design")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := prefs.Set(ctx, 20, model.NoCategories()); err != nil {
		t.Fatalf("set: %v", err)
	}
	// 30 keeps the default selection.

	h.src.set(item("p1", "design", "programming"), item("p2", "writing"))
	if err := h.sched.RunOnce(ctx); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	want := []sentMessage{
		{ChatID: adminID, Text: "p1,p2"},
		{ChatID: 10, Text: "p1"},
		{ChatID: 30, Text: "p1,p2"},
	}
	if diff := cmp.Diff(want, h.notifier.getMessages()); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
}

func TestMonitoringDisabledSkipsFetch(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, newTestStore(t))
	if err := h.store.SetMonitoringActive(ctx, false); err != nil {
		t.Fatalf("disable: %v", err)
	}

	h.src.set(item("p1"))
	if err := h.sched.RunOnce(ctx); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if got := h.src.callCount(); got != 0 {
		t.Errorf("expected no fetch while disabled, got %d", got)
	}
	if h.seen.Contains("p1") {
		t.Error("disabled cycle must not mark items seen")
	}
}

func TestFetchErrorIsAbsorbed(t *testing.T) {
	h := newHarness(t, newTestStore(t))
	h.src.err = errors.New("unexpected status 503")

	if err := h.sched.RunOnce(context.Background()); err != nil {
		t.Fatalf("fetch error should not fail the cycle: %v", err)
	}
	if got := len(h.notifier.getMessages()); got != 0 {
		t.Errorf("expected no messages, got %d", got)
	}
}

func TestAudienceErrorLeavesItemsUnseen(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, newTestStore(t))
	h.sched.deps.Audience = failingAudience{}

	h.src.set(item("p1"))
	if err := h.sched.RunOnce(ctx); err == nil {
		t.Fatal("expected cycle error, got nil")
	}
	if h.seen.Contains("p1") {
		t.Error("items must be reconsidered after an aborted cycle")
	}
}

func TestPanicRecoveredAndItemsMarkedSeen(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, newTestStore(t), 10)
	h.notifier.panicFor[adminID] = true

	h.src.set(item("p1"), item("p2"))
	err := h.sched.RunOnce(ctx)
	if err == nil || !strings.Contains(err.Error(), "panic") {
		t.Fatalf("expected recovered panic error, got %v", err)
	}
	for _, id := range []string{"p1", "p2"} {
		if !h.seen.Contains(id) {
			t.Errorf("%s should be marked seen after a panic in delivery", id)
		}
	}
}

func TestSendDelayStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := newHarness(t, newTestStore(t), 10, 11)
	h.sched.SetSendDelay(time.Hour)
	h.notifier.onSend = cancel

	h.src.set(item("p1"))
	done := make(chan error, 1)
	go func() { done <- h.sched.RunOnce(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("cycle: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("RunOnce still pacing after cancellation")
	}

	if got := len(h.notifier.getMessages()); got != 1 {
		t.Errorf("sent %d messages, want 1", got)
	}
	if !h.seen.Contains("p1") {
		t.Error("p1 should be marked seen after a cancelled delivery")
	}
}

func TestRunFirstCycleImmediately(t *testing.T) {
	h := newHarness(t, newTestStore(t))
	h.sched.SetIntervals(time.Hour, time.Hour)
	h.src.set(item("p1"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.sched.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for h.src.callCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("first cycle did not run")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}

func TestRunUsesCooldownAfterFailure(t *testing.T) {
	h := newHarness(t, newTestStore(t))
	h.sched.deps.Audience = failingAudience{}
	h.sched.SetIntervals(time.Hour, 10*time.Millisecond)
	h.src.set(item("p1"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	done := make(chan struct{})
	go func() {
		h.sched.Run(ctx)
		close(done)
	}()

	for h.src.callCount() < 3 {
		select {
		case <-ctx.Done():
			t.Fatalf("expected retries after cooldown, got %d fetches", h.src.callCount())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done
}

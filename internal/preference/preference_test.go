package preference

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"khamsat_bot/internal/model"
	"khamsat_bot/internal/storage"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	store, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return New(store)
}

func TestGetDefaultsToAll(t *testing.T) {
	svc := newTestService(t)
	got, err := svc.Get(context.Background(), 100)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if diff := cmp.Diff(model.AllCategories(), got); diff != "" {
		t.Errorf("Get() mismatch (-want +got):\n%s", diff)
	}
}

func TestKeyboardSession(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	const chat = int64(100)

	steps := []struct {
		name string
		do   func() (model.Selection, error)
		want model.Selection
	}{
		{
			name: "toggle from all",
			do:   func() (model.Selection, error) { return svc.Toggle(ctx, chat, "design") },
			want: model.Subset("design"),
		},
		{
			name: "toggle another",
			do:   func() (model.Selection, error) { return svc.Toggle(ctx, chat, "writing") },
			want: model.Subset("design", "writing"),
		},
		{
			name: "untoggle first",
			do:   func() (model.Selection, error) { return svc.Toggle(ctx, chat, "design") },
			want: model.Subset("writing"),
		},
		{
			name: "untoggle last collapses to none",
			do:   func() (model.Selection, error) { return svc.Toggle(ctx, chat, "writing") },
			want: model.NoCategories(),
		},
		{
			name: "select all",
			do:   func() (model.Selection, error) { return svc.SelectAll(ctx, chat) },
			want: model.AllCategories(),
		},
		{
			name: "clear all",
			do:   func() (model.Selection, error) { return svc.ClearAll(ctx, chat) },
			want: model.NoCategories(),
		},
		{
			name: "toggle from none",
			do:   func() (model.Selection, error) { return svc.Toggle(ctx, chat, "video") },
			want: model.Subset("video"),
		},
	}

	for _, st := range steps {
		got, err := st.do()
		if err != nil {
			t.Fatalf("%s: %v", st.name, err)
		}
		if diff := cmp.Diff(st.want, got); diff != "" {
			t.Errorf("%s: returned selection mismatch (-want +got):\n%s", st.name, diff)
		}
		stored, err := svc.Get(ctx, chat)
		if err != nil {
			t.Fatalf("%s: get: %v", st.name, err)
		}
		if diff := cmp.Diff(st.want, stored); diff != "" {
			t.Errorf("%s: stored selection mismatch (-want +got):\n%s", st.name, diff)
		}
	}
}

func TestSetIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	for range 2 {
		if err := svc.Set(ctx, 1, model.Subset("design")); err != nil {
			t.Fatalf("set: %v", err)
		}
	}
	got, _ := svc.Get(ctx, 1)
	if diff := cmp.Diff(model.Subset("design"), got); diff != "" {
		t.Errorf("Get() mismatch (-want +got):\n%s", diff)
	}
}

func TestConcurrentTogglesAreSerialised(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	labels := []string{"a", "b", "c", "d", "e", "f"}

	if _, err := svc.ClearAll(ctx, 1); err != nil {
		t.Fatalf("clear: %v", err)
	}

	var wg sync.WaitGroup
	for _, l := range labels {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Toggle(ctx, 1, l); err != nil {
				t.Errorf("toggle %s: %v", l, err)
			}
		}()
	}
	wg.Wait()

	got, err := svc.Get(ctx, 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Mode != model.SelectSubset || len(got.Categories) != len(labels) {
		t.Errorf("expected all %d toggles to survive, got %+v", len(labels), got)
	}
}

type failingRepo struct{}

func (failingRepo) GetSelection(context.Context, int64) (model.Selection, error) {
	return model.Selection{}, errors.New("db down")
}

func (failingRepo) SetSelection(context.Context, int64, model.Selection) error {
	return errors.New("db down")
}

func TestGetErrorFallsBackToAll(t *testing.T) {
	svc := New(failingRepo{})
	got, err := svc.Get(context.Background(), 1)
	if err == nil {
		t.Fatal("expected error")
	}
	if diff := cmp.Diff(model.AllCategories(), got); diff != "" {
		t.Errorf("fallback mismatch (-want +got):\n%s", diff)
	}
}

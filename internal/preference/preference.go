// Package preference owns the per-chat category selections.
package preference

import (
	"context"
	"fmt"
	"sync"

	"khamsat_bot/internal/filter"
	"khamsat_bot/internal/model"
)

// Repository persists category selections.
type Repository interface {
	GetSelection(ctx context.Context, chatID int64) (model.Selection, error)
	SetSelection(ctx context.Context, chatID int64, sel model.Selection) error
}

// Service serialises read-modify-write edits of category selections.
type Service struct {
	mu   sync.Mutex
	repo Repository
}

// New creates a Service backed by repo.
func New(repo Repository) *Service {
	return &Service{repo: repo}
}

// Get returns the selection of a chat. Chats without one select everything.
func (s *Service) Get(ctx context.Context, chatID int64) (model.Selection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sel, err := s.repo.GetSelection(ctx, chatID)
	if err != nil {
		return model.AllCategories(), fmt.Errorf("get selection: %w", err)
	}
	return sel, nil
}

// Set overwrites the selection of a chat.
func (s *Service) Set(ctx context.Context, chatID int64, sel model.Selection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.SetSelection(ctx, chatID, sel); err != nil {
		return fmt.Errorf("set selection: %w", err)
	}
	return nil
}

// Toggle flips one category for a chat and returns the new selection.
func (s *Service) Toggle(ctx context.Context, chatID int64, label string) (model.Selection, error) {
	return s.update(ctx, chatID, func(sel model.Selection) model.Selection {
		return filter.Toggle(sel, label)
	})
}

// SelectAll makes a chat receive every category.
func (s *Service) SelectAll(ctx context.Context, chatID int64) (model.Selection, error) {
	return s.update(ctx, chatID, func(model.Selection) model.Selection {
		return filter.SelectAll()
	})
}

// ClearAll makes a chat receive no category.
func (s *Service) ClearAll(ctx context.Context, chatID int64) (model.Selection, error) {
	return s.update(ctx, chatID, func(model.Selection) model.Selection {
		return filter.ClearAll()
	})
}

func (s *Service) update(ctx context.Context, chatID int64, fn func(model.Selection) model.Selection) (model.Selection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.repo.GetSelection(ctx, chatID)
	if err != nil {
		return model.Selection{}, fmt.Errorf("get selection: %w", err)
	}
	next := fn(cur)
	if err := s.repo.SetSelection(ctx, chatID, next); err != nil {
		return cur, fmt.Errorf("set selection: %w", err)
	}
	return next, nil
}

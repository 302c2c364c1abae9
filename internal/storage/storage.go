// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"

	"khamsat_bot/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Storage is the interface for all persistence operations.
type Storage interface {
	IsMonitoringActive(ctx context.Context) (bool, error)
	SetMonitoringActive(ctx context.Context, active bool) error

	LoadSeen(ctx context.Context) ([]string, error)
	SaveSeen(ctx context.Context, ids []string) error

	GetSelection(ctx context.Context, chatID int64) (model.Selection, error)
	SetSelection(ctx context.Context, chatID int64, sel model.Selection) error

	CreateSubscriber(ctx context.Context, sub *model.Subscriber) error
	GetSubscriber(ctx context.Context, chatID int64) (*model.Subscriber, error)
	UpdateRole(ctx context.Context, chatID int64, role model.Role) error
	ListSubscribers(ctx context.Context, roles ...model.Role) ([]model.Subscriber, error)
	DeleteSubscriber(ctx context.Context, chatID int64) error

	ExportState(ctx context.Context) (*model.State, error)
	ImportState(ctx context.Context, state *model.State) error

	Close() error
}

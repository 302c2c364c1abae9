// Package access implements the subscriber approval workflow and decides
// which chats are eligible to receive alerts.
package access

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"khamsat_bot/internal/model"
	"khamsat_bot/internal/storage"
)

// ErrNotPending is returned when approving or rejecting a chat that has no
// open request.
var ErrNotPending = errors.New("no pending request")

// Repository persists subscribers.
type Repository interface {
	CreateSubscriber(ctx context.Context, sub *model.Subscriber) error
	GetSubscriber(ctx context.Context, chatID int64) (*model.Subscriber, error)
	UpdateRole(ctx context.Context, chatID int64, role model.Role) error
	ListSubscribers(ctx context.Context, roles ...model.Role) ([]model.Subscriber, error)
	DeleteSubscriber(ctx context.Context, chatID int64) error
}

// Registry answers role and eligibility questions. The configured admin is
// always eligible, whether or not it has a stored record.
type Registry struct {
	mu      sync.Mutex
	repo    Repository
	adminID int64
}

// NewRegistry creates a Registry for the given admin chat.
func NewRegistry(repo Repository, adminID int64) *Registry {
	return &Registry{repo: repo, adminID: adminID}
}

// AdminID returns the admin chat ID.
func (r *Registry) AdminID() int64 {
	return r.adminID
}

// IsAdmin reports whether chatID is the admin.
func (r *Registry) IsAdmin(chatID int64) bool {
	return chatID == r.adminID
}

// Role returns the role of a chat. Unknown chats get an empty role.
func (r *Registry) Role(ctx context.Context, chatID int64) (model.Role, error) {
	if r.IsAdmin(chatID) {
		return model.RoleAdmin, nil
	}
	sub, err := r.repo.GetSubscriber(ctx, chatID)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get subscriber: %w", err)
	}
	return sub.Role, nil
}

// IsEligible reports whether a chat currently receives alerts.
func (r *Registry) IsEligible(ctx context.Context, chatID int64) (bool, error) {
	role, err := r.Role(ctx, chatID)
	if err != nil {
		return false, err
	}
	return role.Eligible(), nil
}

// EligibleSubscribers returns the admin followed by every approved chat.
func (r *Registry) EligibleSubscribers(ctx context.Context) ([]int64, error) {
	approved, err := r.repo.ListSubscribers(ctx, model.RoleApproved)
	if err != nil {
		return nil, fmt.Errorf("list approved: %w", err)
	}
	ids := make([]int64, 0, len(approved)+1)
	ids = append(ids, r.adminID)
	for _, s := range approved {
		if s.ChatID != r.adminID {
			ids = append(ids, s.ChatID)
		}
	}
	return ids, nil
}

// Request registers a new access request. It returns the chat's current
// role and whether a new pending request was created.
func (r *Registry) Request(ctx context.Context, chatID int64, username, firstName string) (model.Role, bool, error) {
	if r.IsAdmin(chatID) {
		return model.RoleAdmin, false, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sub, err := r.repo.GetSubscriber(ctx, chatID)
	if err == nil {
		return sub.Role, false, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return "", false, fmt.Errorf("get subscriber: %w", err)
	}

	sub = &model.Subscriber{
		ChatID:    chatID,
		Username:  username,
		FirstName: firstName,
		Role:      model.RolePending,
	}
	if err := r.repo.CreateSubscriber(ctx, sub); err != nil {
		return "", false, fmt.Errorf("create subscriber: %w", err)
	}
	return model.RolePending, true, nil
}

// Approve grants access to a pending chat.
func (r *Registry) Approve(ctx context.Context, chatID int64) (*model.Subscriber, error) {
	return r.resolve(ctx, chatID, model.RoleApproved)
}

// Reject denies access to a pending chat.
func (r *Registry) Reject(ctx context.Context, chatID int64) (*model.Subscriber, error) {
	return r.resolve(ctx, chatID, model.RoleRejected)
}

// Remove forgets a chat entirely so it can request access again.
func (r *Registry) Remove(ctx context.Context, chatID int64) error {
	if r.IsAdmin(chatID) {
		return fmt.Errorf("cannot remove the admin")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.repo.DeleteSubscriber(ctx, chatID)
}

// Pending returns open access requests, oldest first.
func (r *Registry) Pending(ctx context.Context) ([]model.Subscriber, error) {
	return r.repo.ListSubscribers(ctx, model.RolePending)
}

// Approved returns approved chats, oldest first.
func (r *Registry) Approved(ctx context.Context) ([]model.Subscriber, error) {
	return r.repo.ListSubscribers(ctx, model.RoleApproved)
}

// Stats counts subscribers by role. The admin counts as approved.
func (r *Registry) Stats(ctx context.Context) (model.Stats, error) {
	subs, err := r.repo.ListSubscribers(ctx)
	if err != nil {
		return model.Stats{}, fmt.Errorf("list subscribers: %w", err)
	}
	st := model.Stats{Approved: 1}
	for _, s := range subs {
		if s.ChatID == r.adminID {
			continue
		}
		switch s.Role {
		case model.RoleApproved, model.RoleAdmin:
			st.Approved++
		case model.RolePending:
			st.Pending++
		case model.RoleRejected:
			st.Rejected++
		}
	}
	return st, nil
}

func (r *Registry) resolve(ctx context.Context, chatID int64, role model.Role) (*model.Subscriber, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, err := r.repo.GetSubscriber(ctx, chatID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotPending
	}
	if err != nil {
		return nil, fmt.Errorf("get subscriber: %w", err)
	}
	if sub.Role != model.RolePending {
		return nil, ErrNotPending
	}
	if err := r.repo.UpdateRole(ctx, chatID, role); err != nil {
		return nil, fmt.Errorf("update role: %w", err)
	}
	sub.Role = role
	return sub, nil
}

// Package model defines the domain types used across the application.
package model

import (
	"strconv"
	"time"
)

// CategoryOther is the catch-all label assigned when no classification rule matches.
const CategoryOther = "other"

// Item represents a single request posted on the forum.
type Item struct {
	ID           string
	Title        string
	Link         string
	Author       string
	PostedAtText string
	PostedAt     *time.Time
	Categories   []string
}

// Role defines the access level of a subscriber.
type Role string

// Supported roles.
const (
	RoleAdmin    Role = "admin"
	RoleApproved Role = "approved"
	RolePending  Role = "pending"
	RoleRejected Role = "rejected"
)

// Eligible reports whether a subscriber with this role receives alerts.
func (r Role) Eligible() bool {
	return r == RoleAdmin || r == RoleApproved
}

// Subscriber is a Telegram chat that requested access to the bot.
type Subscriber struct {
	ChatID      int64
	Username    string
	FirstName   string
	Role        Role
	RequestedAt time.Time
	UpdatedAt   time.Time
}

// Stats summarises subscribers by role.
type Stats struct {
	Approved int
	Pending  int
	Rejected int
}

// Total returns the number of requests ever recorded.
func (s Stats) Total() int {
	return s.Approved + s.Pending + s.Rejected
}

// State is the portable snapshot of persisted bot state.
type State struct {
	MonitoringActive bool                `json:"monitoring_active"`
	LastSentIDs      []string            `json:"last_sent_ids"`
	UserCategories   map[string][]string `json:"user_categories"`

	// SelectedCategories is the single-user layout written by older releases.
	SelectedCategories []string `json:"selected_categories,omitempty"`
}

// UpgradeLegacy moves a single-user SelectedCategories list to the admin's
// entry in UserCategories. It reports whether anything changed.
func (s *State) UpgradeLegacy(adminID int64) bool {
	if s.SelectedCategories == nil || s.UserCategories != nil {
		return false
	}
	s.UserCategories = map[string][]string{
		strconv.FormatInt(adminID, 10): s.SelectedCategories,
	}
	s.SelectedCategories = nil
	return true
}

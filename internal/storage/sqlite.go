package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"khamsat_bot/internal/model"
	"khamsat_bot/migrations"
)

const (
	timeLayout = "2006-01-02T15:04:05Z"

	keyMonitoringActive = "monitoring_active"
)

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps ":memory:" databases and transactions consistent.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous=FULL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set synchronous: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// IsMonitoringActive reports the persisted monitoring toggle. Defaults to false.
func (s *SQLite) IsMonitoringActive(ctx context.Context) (bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, keyMonitoringActive).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get monitoring flag: %w", err)
	}
	active, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("parse monitoring flag %q: %w", value, err)
	}
	return active, nil
}

// SetMonitoringActive persists the monitoring toggle.
func (s *SQLite) SetMonitoringActive(ctx context.Context, active bool) error {
	return setMonitoring(ctx, s.db, active)
}

// LoadSeen returns the seen item IDs, oldest first.
func (s *SQLite) LoadSeen(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT item_id FROM seen_items ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query seen items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan seen item: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SaveSeen replaces the stored seen item IDs with ids, kept in the given order.
func (s *SQLite) SaveSeen(ctx context.Context, ids []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := replaceSeen(ctx, tx, ids); err != nil {
		return err
	}
	return tx.Commit()
}

// GetSelection returns the category selection of a chat.
// A chat without stored categories selects everything.
func (s *SQLite) GetSelection(ctx context.Context, chatID int64) (model.Selection, error) {
	stored, err := listCategories(ctx, s.db, chatID)
	if err != nil {
		return model.Selection{}, err
	}
	return model.DecodeSelection(stored), nil
}

// SetSelection overwrites the category selection of a chat.
func (s *SQLite) SetSelection(ctx context.Context, chatID int64, sel model.Selection) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := replaceCategories(ctx, tx, chatID, sel.Encode()); err != nil {
		return err
	}
	return tx.Commit()
}

// CreateSubscriber inserts a new subscriber and populates its timestamps.
func (s *SQLite) CreateSubscriber(ctx context.Context, sub *model.Subscriber) error {
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subscribers (chat_id, username, first_name, role, requested_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sub.ChatID, sub.Username, sub.FirstName, string(sub.Role), now, now,
	)
	if err != nil {
		return fmt.Errorf("insert subscriber: %w", err)
	}
	sub.RequestedAt, _ = time.Parse(timeLayout, now)
	sub.UpdatedAt = sub.RequestedAt
	return nil
}

// GetSubscriber returns a single subscriber by chat ID.
func (s *SQLite) GetSubscriber(ctx context.Context, chatID int64) (*model.Subscriber, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT chat_id, username, first_name, role, requested_at, updated_at
		 FROM subscribers WHERE chat_id = ?`, chatID,
	)
	sub, err := scanSubscriber(row)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// UpdateRole changes the role of an existing subscriber.
func (s *SQLite) UpdateRole(ctx context.Context, chatID int64, role model.Role) error {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`UPDATE subscribers SET role = ?, updated_at = ? WHERE chat_id = ?`,
		string(role), now, chatID,
	)
	if err != nil {
		return fmt.Errorf("update role: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("subscriber %d: %w", chatID, ErrNotFound)
	}
	return nil
}

// ListSubscribers returns subscribers with any of the given roles,
// or all subscribers when no role is given, ordered by request time.
func (s *SQLite) ListSubscribers(ctx context.Context, roles ...model.Role) ([]model.Subscriber, error) {
	query := `SELECT chat_id, username, first_name, role, requested_at, updated_at FROM subscribers`
	args := make([]any, 0, len(roles))
	if len(roles) > 0 {
		placeholders := make([]string, len(roles))
		for i, r := range roles {
			placeholders[i] = "?"
			args = append(args, string(r))
		}
		query += ` WHERE role IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY requested_at, chat_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query subscribers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var subs []model.Subscriber
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// DeleteSubscriber removes a subscriber and their category selection.
func (s *SQLite) DeleteSubscriber(ctx context.Context, chatID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_categories WHERE chat_id = ?`, chatID); err != nil {
		return fmt.Errorf("delete user_categories: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM subscribers WHERE chat_id = ?`, chatID)
	if err != nil {
		return fmt.Errorf("delete subscriber: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("subscriber %d: %w", chatID, ErrNotFound)
	}
	return tx.Commit()
}

// ExportState returns a snapshot of the monitoring flag, seen items and
// category selections.
func (s *SQLite) ExportState(ctx context.Context) (*model.State, error) {
	active, err := s.IsMonitoringActive(ctx)
	if err != nil {
		return nil, err
	}
	seen, err := s.LoadSeen(ctx)
	if err != nil {
		return nil, err
	}
	if seen == nil {
		seen = []string{}
	}

	rows, err := s.db.QueryContext(ctx, `SELECT chat_id, category FROM user_categories ORDER BY chat_id, position`)
	if err != nil {
		return nil, fmt.Errorf("query user_categories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	cats := make(map[string][]string)
	for rows.Next() {
		var chatID int64
		var category string
		if err := rows.Scan(&chatID, &category); err != nil {
			return nil, fmt.Errorf("scan user_category: %w", err)
		}
		key := strconv.FormatInt(chatID, 10)
		cats[key] = append(cats[key], category)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &model.State{
		MonitoringActive: active,
		LastSentIDs:      seen,
		UserCategories:   cats,
	}, nil
}

// ImportState replaces the monitoring flag, seen items and the category
// selections named in state within a single transaction.
func (s *SQLite) ImportState(ctx context.Context, state *model.State) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := setMonitoring(ctx, tx, state.MonitoringActive); err != nil {
		return err
	}
	if err := replaceSeen(ctx, tx, state.LastSentIDs); err != nil {
		return err
	}
	for key, stored := range state.UserCategories {
		chatID, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid chat ID %q in user_categories: %w", key, err)
		}
		sel := model.DecodeSelection(stored)
		if err := replaceCategories(ctx, tx, chatID, sel.Encode()); err != nil {
			return err
		}
	}
	return tx.Commit()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func setMonitoring(ctx context.Context, db execer, active bool) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		keyMonitoringActive, strconv.FormatBool(active),
	)
	if err != nil {
		return fmt.Errorf("set monitoring flag: %w", err)
	}
	return nil
}

func replaceSeen(ctx context.Context, tx execer, ids []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM seen_items`); err != nil {
		return fmt.Errorf("clear seen items: %w", err)
	}
	for i, id := range ids {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO seen_items (position, item_id) VALUES (?, ?)`, i, id,
		); err != nil {
			return fmt.Errorf("insert seen item: %w", err)
		}
	}
	return nil
}

func listCategories(ctx context.Context, db querier, chatID int64) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT category FROM user_categories WHERE chat_id = ? ORDER BY position`, chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("query user_categories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var cats []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan user_category: %w", err)
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

func replaceCategories(ctx context.Context, tx execer, chatID int64, stored []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM user_categories WHERE chat_id = ?`, chatID); err != nil {
		return fmt.Errorf("clear user_categories: %w", err)
	}
	for i, c := range stored {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO user_categories (chat_id, position, category) VALUES (?, ?, ?)`,
			chatID, i, c,
		); err != nil {
			return fmt.Errorf("insert user_category: %w", err)
		}
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSubscriber(row scannable) (model.Subscriber, error) {
	var sub model.Subscriber
	var role, requested, updated string
	err := row.Scan(&sub.ChatID, &sub.Username, &sub.FirstName, &role, &requested, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return sub, fmt.Errorf("subscriber: %w", ErrNotFound)
	}
	if err != nil {
		return sub, fmt.Errorf("scan subscriber: %w", err)
	}
	sub.Role = model.Role(role)
	sub.RequestedAt, _ = time.Parse(timeLayout, requested)
	sub.UpdatedAt, _ = time.Parse(timeLayout, updated)
	return sub, nil
}

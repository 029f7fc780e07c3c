package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// Registers the "sqlite" driver (pure Go).
	_ "modernc.org/sqlite"

	"gatekeeper-bot/internal/domain"
)

// SQLiteRepo implements Repo using an embedded SQLite database.
type SQLiteRepo struct{ db *sql.DB }

// OpenSQLite opens (or creates) the SQLite database at the given path,
// applies recommended PRAGMAs, runs SQL migrations, and returns a repository.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRepo, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Reasonable pooling for SQLite; it's a single-writer engine.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyPragmas(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	return &SQLiteRepo{db: db}, nil
}

// applyPragmas configures the SQLite connection for durability and concurrency.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying database resources.
func (r *SQLiteRepo) Close() error {
	return r.db.Close()
}

// --- Users ---

// UpsertUser inserts or updates a user's profile fields. The subscription
// state of an existing row is left untouched: re-registration must never
// reset verification or the created_at anchor the reminder ladder hangs off.
func (r *SQLiteRepo) UpsertUser(ctx context.Context, u *domain.User) error {
	if u == nil {
		return errors.New("nil user")
	}

	created := u.CreatedAt.UTC().Unix()
	if created == 0 {
		created = time.Now().UTC().Unix()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (
			user_id, chat_id, username, first_name, last_name,
			subscribed, subscribed_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			chat_id    = excluded.chat_id,
			username   = excluded.username,
			first_name = excluded.first_name,
			last_name  = excluded.last_name`,
		u.ID, u.ChatID, u.Username, u.FirstName, u.LastName,
		boolToInt(u.Subscribed), toNullInt64(u.SubscribedAt), created,
	)
	return err
}

const userColumns = `user_id, chat_id, username, first_name, last_name,
	subscribed, subscribed_at, created_at`

func scanUser(row interface{ Scan(...any) error }) (*domain.User, error) {
	var (
		u             domain.User
		subscribedInt int
		subNS         sql.NullInt64
		createdAt     int64
	)
	if err := row.Scan(
		&u.ID, &u.ChatID, &u.Username, &u.FirstName, &u.LastName,
		&subscribedInt, &subNS, &createdAt,
	); err != nil {
		return nil, err
	}
	u.Subscribed = subscribedInt != 0
	u.SubscribedAt = fromNullInt64(subNS)
	u.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &u, nil
}

// GetUser returns a user by Telegram id or ErrNotFound.
func (r *SQLiteRepo) GetUser(ctx context.Context, userID int64) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE user_id = ?`, userID)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return u, err
}

// SetSubscribed marks a user as verified at the given time.
func (r *SQLiteRepo) SetSubscribed(ctx context.Context, userID int64, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET subscribed = 1, subscribed_at = ?
		WHERE user_id = ?`,
		at.UTC().Unix(), userID,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListUsers returns all users, newest first.
func (r *SQLiteRepo) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *u)
	}
	return res, rows.Err()
}

// ListRecipients returns the (user id, chat id) pairs of the whole registry,
// the snapshot a broadcast iterates over.
func (r *SQLiteRepo) ListRecipients(ctx context.Context) ([]domain.Recipient, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, chat_id FROM users ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.Recipient
	for rows.Next() {
		var rcpt domain.Recipient
		if err := rows.Scan(&rcpt.UserID, &rcpt.ChatID); err != nil {
			return nil, err
		}
		res = append(res, rcpt)
	}
	return res, rows.Err()
}

// DeleteAllUsers wipes the registry and the per-tier sent flags.
// Administrative bulk-clear only.
func (r *SQLiteRepo) DeleteAllUsers(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, q := range []string{`DELETE FROM reminder_sent`, `DELETE FROM users`} {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// --- Reminder sent flags ---

// ReminderSent reports whether the tier's reminder was already sent to the user.
func (r *SQLiteRepo) ReminderSent(ctx context.Context, userID int64, tier string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM reminder_sent WHERE user_id = ? AND tier = ?`,
		userID, tier,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// MarkReminderSent records that the tier fired for the user. Idempotent:
// marking an already-marked tier is a no-op, and a mark is never removed.
func (r *SQLiteRepo) MarkReminderSent(ctx context.Context, userID int64, tier string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO reminder_sent (user_id, tier, sent_at)
		VALUES (?, ?, ?)`,
		userID, tier, time.Now().UTC().Unix(),
	)
	return err
}

// SentTiers returns the set of tiers already sent to the user.
func (r *SQLiteRepo) SentTiers(ctx context.Context, userID int64) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT tier FROM reminder_sent WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := make(map[string]bool)
	for rows.Next() {
		var tier string
		if err := rows.Scan(&tier); err != nil {
			return nil, err
		}
		res[tier] = true
	}
	return res, rows.Err()
}

// --- Reminder texts ---

// ReminderText returns the message body for a tier or ErrNotFound.
func (r *SQLiteRepo) ReminderText(ctx context.Context, tier string) (string, error) {
	var text string
	err := r.db.QueryRowContext(ctx,
		`SELECT text FROM reminder_texts WHERE tier = ?`, tier).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return text, err
}

// SetReminderText replaces the message body for a tier.
func (r *SQLiteRepo) SetReminderText(ctx context.Context, tier, text string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO reminder_texts (tier, text, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(tier) DO UPDATE SET
			text       = excluded.text,
			updated_at = excluded.updated_at`,
		tier, text, time.Now().UTC().Unix(),
	)
	return err
}

// --- Settings ---

// Setting returns a settings value or ErrNotFound.
func (r *SQLiteRepo) Setting(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx,
		`SELECT setting_value FROM bot_settings WHERE setting_key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return value, err
}

// SetSetting upserts a settings value.
func (r *SQLiteRepo) SetSetting(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO bot_settings (setting_key, setting_value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(setting_key) DO UPDATE SET
			setting_value = excluded.setting_value,
			updated_at    = excluded.updated_at`,
		key, value, time.Now().UTC().Unix(),
	)
	return err
}

// --- Mailings ---

// CreateMailing stores a new mailing and returns its id.
func (r *SQLiteRepo) CreateMailing(ctx context.Context, m *domain.Mailing) (int64, error) {
	if m == nil {
		return 0, errors.New("nil mailing")
	}
	status := m.Status
	if status == "" {
		status = domain.MailingDraft
	}
	created := m.CreatedAt.UTC().Unix()
	if created == 0 {
		created = time.Now().UTC().Unix()
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO mailings (message_text, image_file_id, status, created_by, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		m.Text, m.ImageFileID, status, m.CreatedBy, created,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetMailing returns a mailing by id or ErrNotFound.
func (r *SQLiteRepo) GetMailing(ctx context.Context, id int64) (*domain.Mailing, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, message_text, image_file_id, status, created_by, created_at,
		       sent_count, total_count
		FROM mailings
		WHERE id = ?`, id)

	var (
		m         domain.Mailing
		createdAt int64
	)
	err := row.Scan(
		&m.ID, &m.Text, &m.ImageFileID, &m.Status, &m.CreatedBy, &createdAt,
		&m.SentCount, &m.TotalCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	m.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &m, nil
}

// SetMailingStatus sets the lifecycle status of a mailing.
func (r *SQLiteRepo) SetMailingStatus(ctx context.Context, id int64, status string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE mailings SET status = ? WHERE id = ?`, status, id)
	return err
}

// ClaimMailing atomically transitions a mailing into "sending" and records the
// recipient total. The conditional update succeeds at most once per draft, so
// the at-most-one-concurrent-broadcast invariant holds even across processes.
func (r *SQLiteRepo) ClaimMailing(ctx context.Context, id int64, total int) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE mailings
		SET status = ?, total_count = ?, sent_count = 0
		WHERE id = ? AND status IN (?, ?)`,
		domain.MailingSending, total, id, domain.MailingDraft, domain.MailingTestSent,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// SetMailingProgress persists the broadcast's current sent counter.
func (r *SQLiteRepo) SetMailingProgress(ctx context.Context, id int64, sent int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE mailings SET sent_count = ? WHERE id = ?`, sent, id)
	return err
}

// FinishMailing marks a broadcast complete with its final tally.
func (r *SQLiteRepo) FinishMailing(ctx context.Context, id int64, sent int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE mailings SET status = ?, sent_count = ? WHERE id = ?`,
		domain.MailingSent, sent, id)
	return err
}

// DeleteMailing removes a mailing record.
func (r *SQLiteRepo) DeleteMailing(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM mailings WHERE id = ?`, id)
	return err
}

// --- Statistics counters ---

func (r *SQLiteRepo) countRow(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}

// CountUsers returns the registry size.
func (r *SQLiteRepo) CountUsers(ctx context.Context) (int, error) {
	return r.countRow(ctx, `SELECT COUNT(*) FROM users`)
}

// CountSubscribed returns how many users passed verification.
func (r *SQLiteRepo) CountSubscribed(ctx context.Context) (int, error) {
	return r.countRow(ctx, `SELECT COUNT(*) FROM users WHERE subscribed = 1`)
}

// CountCreatedSince returns how many users registered at or after t.
func (r *SQLiteRepo) CountCreatedSince(ctx context.Context, t time.Time) (int, error) {
	return r.countRow(ctx,
		`SELECT COUNT(*) FROM users WHERE created_at >= ?`, t.UTC().Unix())
}

// LastUserCreatedAt returns the newest registration time, or nil for an empty
// registry.
func (r *SQLiteRepo) LastUserCreatedAt(ctx context.Context) (*time.Time, error) {
	var ns sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT MAX(created_at) FROM users`).Scan(&ns)
	if err != nil {
		return nil, err
	}
	return fromNullInt64(ns), nil
}

// CountReminderSent returns how many users received the tier's reminder.
func (r *SQLiteRepo) CountReminderSent(ctx context.Context, tier string) (int, error) {
	return r.countRow(ctx,
		`SELECT COUNT(*) FROM reminder_sent WHERE tier = ?`, tier)
}

// CountSubscribedAfterReminder returns how many users that received the tier's
// reminder went on to verify.
func (r *SQLiteRepo) CountSubscribedAfterReminder(ctx context.Context, tier string) (int, error) {
	return r.countRow(ctx, `
		SELECT COUNT(*)
		FROM reminder_sent rs
		JOIN users u ON u.user_id = rs.user_id
		WHERE rs.tier = ? AND u.subscribed = 1`, tier)
}

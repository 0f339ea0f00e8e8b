package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/companion-bot/internal/model"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists users and messages in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database at path with WAL enabled.
func NewSQLite(path string) (*SQLiteStore, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		platform TEXT NOT NULL,
		platform_user_id TEXT NOT NULL,
		username TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL,
		persona TEXT NOT NULL DEFAULT '',
		timezone TEXT NOT NULL DEFAULT '',
		daily_message_count INTEGER NOT NULL DEFAULT 0,
		count_window_start TEXT NOT NULL DEFAULT '',
		last_outbound_at INTEGER NOT NULL DEFAULT 0,
		next_contact_at INTEGER,
		unreachable INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (platform, platform_user_id)
	);
	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		platform TEXT NOT NULL,
		platform_user_id TEXT NOT NULL,
		sender TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		seq INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_messages_user ON messages(platform, platform_user_id, seq);
	CREATE INDEX IF NOT EXISTS idx_users_due ON users(next_contact_at) WHERE next_contact_at IS NOT NULL;
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

const userColumns = `platform, platform_user_id, username, state, persona, timezone,
	daily_message_count, count_window_start, last_outbound_at, next_contact_at, unreachable, created_at`

func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	var lastOutbound, createdAt int64
	var nextContact sql.NullInt64
	err := row.Scan(
		&u.Platform, &u.PlatformUserID, &u.Username, &u.State, &u.Persona, &u.Timezone,
		&u.DailyMessageCount, &u.CountWindowStart, &lastOutbound, &nextContact, &u.Unreachable, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	if lastOutbound != 0 {
		u.LastOutboundAt = time.Unix(lastOutbound, 0).UTC()
	}
	if nextContact.Valid {
		t := time.Unix(nextContact.Int64, 0).UTC()
		u.NextContactAt = &t
	}
	u.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &u, nil
}

func (s *SQLiteStore) Get(ctx context.Context, platform, platformUserID string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE platform=? AND platform_user_id=?`,
		platform, platformUserID)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, u *model.User) error {
	var nextContact sql.NullInt64
	if u.NextContactAt != nil {
		nextContact = sql.NullInt64{Int64: u.NextContactAt.Unix(), Valid: true}
	}
	var lastOutbound int64
	if !u.LastOutboundAt.IsZero() {
		lastOutbound = u.LastOutboundAt.Unix()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT (platform, platform_user_id) DO UPDATE SET
			username=excluded.username,
			state=excluded.state,
			persona=excluded.persona,
			timezone=excluded.timezone,
			daily_message_count=excluded.daily_message_count,
			count_window_start=excluded.count_window_start,
			last_outbound_at=excluded.last_outbound_at,
			next_contact_at=excluded.next_contact_at,
			unreachable=excluded.unreachable`,
		u.Platform, u.PlatformUserID, u.Username, string(u.State), u.Persona, u.Timezone,
		u.DailyMessageCount, u.CountWindowStart, lastOutbound, nextContact, u.Unreachable, u.CreatedAt.Unix())
	return err
}

func (s *SQLiteStore) Delete(ctx context.Context, platform, platformUserID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM messages WHERE platform=? AND platform_user_id=?`, platform, platformUserID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM users WHERE platform=? AND platform_user_id=?`, platform, platformUserID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) AppendMessage(ctx context.Context, platform, platformUserID string, m *model.Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, platform, platform_user_id, sender, content, created_at, seq)
		VALUES (?,?,?,?,?,?,
			(SELECT COALESCE(MAX(seq),0)+1 FROM messages WHERE platform=? AND platform_user_id=?))`,
		m.ID, platform, platformUserID, string(m.Sender), m.Text, m.Timestamp.Unix(),
		platform, platformUserID)
	return err
}

func (s *SQLiteStore) RecentMessages(ctx context.Context, platform, platformUserID string, limit int) ([]*model.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sender, content, created_at FROM (
			SELECT id, sender, content, created_at, seq FROM messages
			WHERE platform=? AND platform_user_id=?
			ORDER BY seq DESC LIMIT ?
		) ORDER BY seq ASC`,
		platform, platformUserID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Message
	for rows.Next() {
		var m model.Message
		var createdAt int64
		if err := rows.Scan(&m.ID, &m.Sender, &m.Text, &createdAt); err != nil {
			return nil, err
		}
		m.Timestamp = time.Unix(createdAt, 0).UTC()
		out = append(out, &m)
	}
	return out, rows.Err()
}

// ConsumeQuota performs the rollover and check-and-increment in one
// transaction; SQLite serializes writers, so no two sends can both pass the
// limit on the same window.
func (s *SQLiteStore) ConsumeQuota(ctx context.Context, platform, platformUserID, localDate string, limit int) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `
		UPDATE users SET daily_message_count=0, count_window_start=?
		WHERE platform=? AND platform_user_id=? AND count_window_start<>?`,
		localDate, platform, platformUserID, localDate); err != nil {
		return false, err
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE users SET daily_message_count=daily_message_count+1
		WHERE platform=? AND platform_user_id=? AND daily_message_count<?`,
		platform, platformUserID, limit)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *SQLiteStore) ListDue(ctx context.Context, now time.Time) ([]*model.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE state=? AND unreachable=0 AND next_contact_at IS NOT NULL AND next_contact_at<=?`,
		string(model.StateActive), now.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

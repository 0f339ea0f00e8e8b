package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/companion-bot/internal/model"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore persists users and messages in a Postgres database.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(connStr string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, err
	}
	s := &PostgresStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			platform TEXT NOT NULL,
			platform_user_id TEXT NOT NULL,
			username TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL,
			persona TEXT NOT NULL DEFAULT '',
			timezone TEXT NOT NULL DEFAULT '',
			daily_message_count INTEGER NOT NULL DEFAULT 0,
			count_window_start TEXT NOT NULL DEFAULT '',
			last_outbound_at BIGINT NOT NULL DEFAULT 0,
			next_contact_at BIGINT,
			unreachable BOOLEAN NOT NULL DEFAULT FALSE,
			created_at BIGINT NOT NULL,
			PRIMARY KEY (platform, platform_user_id)
		);
		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			platform TEXT NOT NULL,
			platform_user_id TEXT NOT NULL,
			sender TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at BIGINT NOT NULL,
			seq BIGSERIAL
		);
		CREATE INDEX IF NOT EXISTS idx_messages_user ON messages(platform, platform_user_id, seq);
		CREATE INDEX IF NOT EXISTS idx_users_due ON users(next_contact_at) WHERE next_contact_at IS NOT NULL`)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, platform, platformUserID string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE platform=$1 AND platform_user_id=$2`,
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

func (s *PostgresStore) Upsert(ctx context.Context, u *model.User) error {
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
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (platform, platform_user_id) DO UPDATE SET
			username=EXCLUDED.username,
			state=EXCLUDED.state,
			persona=EXCLUDED.persona,
			timezone=EXCLUDED.timezone,
			daily_message_count=EXCLUDED.daily_message_count,
			count_window_start=EXCLUDED.count_window_start,
			last_outbound_at=EXCLUDED.last_outbound_at,
			next_contact_at=EXCLUDED.next_contact_at,
			unreachable=EXCLUDED.unreachable`,
		u.Platform, u.PlatformUserID, u.Username, string(u.State), u.Persona, u.Timezone,
		u.DailyMessageCount, u.CountWindowStart, lastOutbound, nextContact, u.Unreachable, u.CreatedAt.Unix())
	return err
}

func (s *PostgresStore) Delete(ctx context.Context, platform, platformUserID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM messages WHERE platform=$1 AND platform_user_id=$2`, platform, platformUserID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM users WHERE platform=$1 AND platform_user_id=$2`, platform, platformUserID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PostgresStore) AppendMessage(ctx context.Context, platform, platformUserID string, m *model.Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, platform, platform_user_id, sender, content, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		m.ID, platform, platformUserID, string(m.Sender), m.Text, m.Timestamp.Unix())
	return err
}

func (s *PostgresStore) RecentMessages(ctx context.Context, platform, platformUserID string, limit int) ([]*model.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sender, content, created_at FROM (
			SELECT id, sender, content, created_at, seq FROM messages
			WHERE platform=$1 AND platform_user_id=$2
			ORDER BY seq DESC LIMIT $3
		) recent ORDER BY seq ASC`,
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

// ConsumeQuota does rollover plus check-and-increment in one transaction; the
// row lock taken by the first UPDATE serializes concurrent senders.
func (s *PostgresStore) ConsumeQuota(ctx context.Context, platform, platformUserID, localDate string, limit int) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `
		UPDATE users SET daily_message_count=0, count_window_start=$1
		WHERE platform=$2 AND platform_user_id=$3 AND count_window_start<>$1`,
		localDate, platform, platformUserID); err != nil {
		return false, err
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE users SET daily_message_count=daily_message_count+1
		WHERE platform=$1 AND platform_user_id=$2 AND daily_message_count<$3`,
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

func (s *PostgresStore) ListDue(ctx context.Context, now time.Time) ([]*model.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE state=$1 AND unreachable=FALSE AND next_contact_at IS NOT NULL AND next_contact_at<=$2`,
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

func (s *PostgresStore) Close() error { return s.db.Close() }

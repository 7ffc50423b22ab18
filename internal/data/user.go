package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"oauth-signin/internal/biz"

	"github.com/cenkalti/backoff/v5"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// maxTxAttempts bounds how often a conflicting reconciliation is retried.
const maxTxAttempts = 5

// sqliteUserRepo SQLite 实现的用户与身份仓库
type sqliteUserRepo struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewSQLiteUserRepo 创建 SQLite 用户仓库
func NewSQLiteUserRepo(dbPath string, logger *slog.Logger) (biz.UserRepo, error) {
	// 确保目录存在
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// Transactions take the write lock up front so a find-or-create cannot
	// interleave with another one between its lookup and its insert.
	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// 创建 users 表
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create users table: %w", err)
	}

	// 创建 identities 表，删除用户时级联删除
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS identities (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			provider_id TEXT NOT NULL,
			identity TEXT NOT NULL,
			token TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			UNIQUE (provider_id, identity),
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create identities table: %w", err)
	}

	if _, err := db.Exec("CREATE INDEX IF NOT EXISTS idx_identities_user_id ON identities(user_id)"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &sqliteUserRepo{db: db, logger: logger, now: time.Now}, nil
}

// GetOrCreateByIdentity runs the lookup and the create-or-update in one
// transaction, retrying when a concurrent transaction wins the race.
func (r *sqliteUserRepo) GetOrCreateByIdentity(ctx context.Context, ni *biz.NormalizedIdentity) (*biz.User, error) {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 10 * time.Millisecond
	expBackoff.MaxInterval = 200 * time.Millisecond

	return backoff.Retry(ctx, func() (*biz.User, error) {
		user, err := r.getOrCreateTx(ctx, ni)
		if err != nil && !isRetryable(err) {
			return nil, backoff.Permanent(err)
		}
		return user, err
	},
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(maxTxAttempts),
		backoff.WithNotify(func(err error, d time.Duration) {
			r.logger.Warn("retrying identity reconciliation",
				"provider", ni.ProviderID, "error", err, "backoff", d)
		}),
	)
}

func (r *sqliteUserRepo) getOrCreateTx(ctx context.Context, ni *biz.NormalizedIdentity) (*biz.User, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	tokenData, err := json.Marshal(ni.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal token: %w", err)
	}
	now := r.now().UTC()

	var identityID, userID string
	err = tx.QueryRowContext(ctx,
		"SELECT id, user_id FROM identities WHERE provider_id = ? AND identity = ?",
		ni.ProviderID, ni.Identity,
	).Scan(&identityID, &userID)

	var user *biz.User
	switch {
	case err == nil:
		// 已关联：刷新 token
		if _, err := tx.ExecContext(ctx,
			"UPDATE identities SET token = ?, updated_at = ? WHERE id = ?",
			string(tokenData), toMillis(now), identityID,
		); err != nil {
			return nil, fmt.Errorf("failed to update identity token: %w", err)
		}
		user, err = scanUser(tx.QueryRowContext(ctx,
			"SELECT id, name, email, created_at FROM users WHERE id = ?", userID))
		if err != nil {
			return nil, err
		}

	case errors.Is(err, sql.ErrNoRows):
		// 首次登录：创建用户和身份
		user = biz.NewUserFromIdentity(ni, now)
		identity, err := biz.NewIdentity(user, ni, now)
		if err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO users (id, name, email, created_at) VALUES (?, ?, ?, ?)",
			user.ID, user.Name, user.Email, toMillis(user.CreatedAt),
		); err != nil {
			return nil, fmt.Errorf("failed to insert user: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO identities (id, user_id, provider_id, identity, token, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
			identity.ID, identity.UserID, identity.ProviderID, identity.Identity, string(tokenData),
			toMillis(identity.CreatedAt), toMillis(identity.UpdatedAt),
		); err != nil {
			return nil, fmt.Errorf("failed to insert identity: %w", err)
		}

	default:
		return nil, fmt.Errorf("failed to look up identity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return user, nil
}

// GetUser 获取用户
func (r *sqliteUserRepo) GetUser(ctx context.Context, id string) (*biz.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		"SELECT id, name, email, created_at FROM users WHERE id = ?", id))
}

// ListIdentities 列出用户的所有身份
func (r *sqliteUserRepo) ListIdentities(ctx context.Context, userID string) ([]*biz.Identity, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, provider_id, identity, token, created_at, updated_at
		FROM identities
		WHERE user_id = ?
		ORDER BY created_at, id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query identities: %w", err)
	}
	defer rows.Close()

	var identities []*biz.Identity
	for rows.Next() {
		var (
			identity             biz.Identity
			tokenData            string
			createdAt, updatedAt int64
		)
		if err := rows.Scan(&identity.ID, &identity.UserID, &identity.ProviderID, &identity.Identity,
			&tokenData, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan identity: %w", err)
		}
		if err := json.Unmarshal([]byte(tokenData), &identity.Token); err != nil {
			return nil, fmt.Errorf("failed to unmarshal token: %w", err)
		}
		identity.CreatedAt = fromMillis(createdAt)
		identity.UpdatedAt = fromMillis(updatedAt)
		identities = append(identities, &identity)
	}
	return identities, rows.Err()
}

// CountUsers 统计用户数量
func (r *sqliteUserRepo) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

// Close 关闭数据库连接
func (r *sqliteUserRepo) Close() error {
	return r.db.Close()
}

func scanUser(row *sql.Row) (*biz.User, error) {
	var (
		user      biz.User
		createdAt int64
	)
	if err := row.Scan(&user.ID, &user.Name, &user.Email, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, biz.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	user.CreatedAt = fromMillis(createdAt)
	return &user, nil
}

// isRetryable reports whether err came from losing a race with another
// transaction: a busy/locked database or a unique key taken in the meantime.
func isRetryable(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

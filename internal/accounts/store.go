package accounts

import (
	"context"
	"database/sql"
	"embed"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "siriusbot/pkg/logx"
)

var ErrNotFound = errors.New("account not found")

//go:embed migrations.sql
var migrationsFS embed.FS

type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// Account is one stored credential pair.
type Account struct {
	ID      int64
	Login   string
	Secret  string
	AddedAt time.Time
}

// Token returns the basic-auth token the remote service expects:
// base64("login:secret").
func (a Account) Token() string {
	return base64.StdEncoding.EncodeToString([]byte(a.Login + ":" + a.Secret))
}

type Store struct {
	db  *sql.DB
	log logx.Logger
}

func Open(cfg Config, log logx.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("accounts: sqlite path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &Store{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// List returns all accounts in insertion order.
func (s *Store) List(ctx context.Context) ([]Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, login, secret, added_at FROM accounts ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		var a Account
		var added string
		if err := rows.Scan(&a.ID, &a.Login, &a.Secret, &added); err != nil {
			return nil, err
		}
		a.AddedAt, _ = time.Parse(time.RFC3339Nano, added)
		out = append(out, a)
	}
	return out, rows.Err()
}

// Add stores a new credential pair. Re-adding the same login updates its secret.
func (s *Store) Add(ctx context.Context, login, secret string) (Account, error) {
	login = strings.TrimSpace(login)
	if login == "" {
		return Account{}, errors.New("accounts: login is required")
	}
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts(login, secret, added_at) VALUES(?,?,?)
		 ON CONFLICT(login) DO UPDATE SET secret=excluded.secret`,
		login, secret, now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Account{}, err
	}
	// last_insert_rowid() is untouched by the DO UPDATE branch, so it can
	// carry a stale id from an earlier insert. Read the row back instead.
	var a Account
	var added string
	err = s.db.QueryRowContext(ctx, `SELECT id, added_at FROM accounts WHERE login = ?`, login).
		Scan(&a.ID, &added)
	if err != nil {
		return Account{}, err
	}
	a.Login, a.Secret = login, secret
	a.AddedAt, _ = time.Parse(time.RFC3339Nano, added)
	s.log.Debug("account stored", logx.String("login", login))
	return a, nil
}

// Get returns the account with the given id.
func (s *Store) Get(ctx context.Context, id int64) (Account, error) {
	var a Account
	var added string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, login, secret, added_at FROM accounts WHERE id = ?`, id,
	).Scan(&a.ID, &a.Login, &a.Secret, &added)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	if err != nil {
		return Account{}, err
	}
	a.AddedAt, _ = time.Parse(time.RFC3339Nano, added)
	return a, nil
}

// Remove deletes the account with the given id.
func (s *Store) Remove(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	s.log.Debug("account removed", logx.Int64("id", id))
	return nil
}

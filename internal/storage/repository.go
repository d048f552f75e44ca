package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"rupee/internal/core"

	_ "modernc.org/sqlite"
)

// Credential is the stored token record for one principal. Token is the
// provider token serialized as JSON.
type Credential struct {
	PrincipalID string
	Token       []byte
	ExpiresAt   time.Time
	UpdatedAt   time.Time
}

// SQLiteRepository persists session state. Every row is keyed by principal
// id, so data left by one principal is never visible to another.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	slog.Debug("Session state database ready", "path", dbPath, "schema_version", version)

	return &SQLiteRepository{db: db, now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// SavePrincipal stores the display remnant of a principal.
func (r *SQLiteRepository) SavePrincipal(ctx context.Context, p core.Principal) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO principals (id, display_name, email, avatar_url, last_seen_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			display_name = excluded.display_name,
			email = excluded.email,
			avatar_url = excluded.avatar_url,
			last_seen_at = excluded.last_seen_at`,
		p.ID, p.DisplayName, p.Email, p.AvatarURL, r.now().Unix())
	if err != nil {
		return fmt.Errorf("save principal: %w", err)
	}
	return nil
}

// Principal returns the display remnant for id, or nil if none is stored.
func (r *SQLiteRepository) Principal(ctx context.Context, id string) (*core.Principal, error) {
	var p core.Principal
	err := r.db.QueryRowContext(ctx,
		`SELECT id, display_name, email, avatar_url FROM principals WHERE id = ?`, id).
		Scan(&p.ID, &p.DisplayName, &p.Email, &p.AvatarURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get principal: %w", err)
	}
	return &p, nil
}

func (r *SQLiteRepository) SaveCredential(ctx context.Context, c Credential) error {
	var expires int64
	if !c.ExpiresAt.IsZero() {
		expires = c.ExpiresAt.Unix()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO credentials (principal_id, token_json, expires_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(principal_id) DO UPDATE SET
			token_json = excluded.token_json,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`,
		c.PrincipalID, string(c.Token), expires, r.now().UnixNano())
	if err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

// LatestCredential returns the most recently saved credential, or nil if
// there is none.
func (r *SQLiteRepository) LatestCredential(ctx context.Context) (*Credential, error) {
	var (
		c                  Credential
		token              string
		expires, updatedAt int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT principal_id, token_json, expires_at, updated_at
		FROM credentials ORDER BY updated_at DESC LIMIT 1`).
		Scan(&c.PrincipalID, &token, &expires, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}
	c.Token = []byte(token)
	if expires > 0 {
		c.ExpiresAt = time.Unix(expires, 0)
	}
	c.UpdatedAt = time.Unix(0, updatedAt)
	return &c, nil
}

func (r *SQLiteRepository) DeleteCredential(ctx context.Context, principalID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM credentials WHERE principal_id = ?`, principalID); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	slog.InfoContext(ctx, "Credential deleted", "principal_id", principalID)
	return nil
}

// RememberLedger stores the ledger a principal last resolved.
func (r *SQLiteRepository) RememberLedger(ctx context.Context, principalID string, l core.Ledger) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ledger_refs (principal_id, ledger_id, title, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(principal_id) DO UPDATE SET
			ledger_id = excluded.ledger_id,
			title = excluded.title,
			updated_at = excluded.updated_at`,
		principalID, l.ID, l.Title, r.now().Unix())
	if err != nil {
		return fmt.Errorf("save ledger ref: %w", err)
	}
	return nil
}

// RememberedLedger returns the stored ledger for principalID, or nil.
func (r *SQLiteRepository) RememberedLedger(ctx context.Context, principalID string) (*core.Ledger, error) {
	var l core.Ledger
	err := r.db.QueryRowContext(ctx,
		`SELECT ledger_id, title FROM ledger_refs WHERE principal_id = ?`, principalID).
		Scan(&l.ID, &l.Title)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ledger ref: %w", err)
	}
	return &l, nil
}

func (r *SQLiteRepository) ForgetLedger(ctx context.Context, principalID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM ledger_refs WHERE principal_id = ?`, principalID); err != nil {
		return fmt.Errorf("delete ledger ref: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) SaveBudgetState(ctx context.Context, principalID string, s core.BudgetState) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO budget_states (principal_id, ceiling_cents, last_crossed_band, period_key, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(principal_id) DO UPDATE SET
			ceiling_cents = excluded.ceiling_cents,
			last_crossed_band = excluded.last_crossed_band,
			period_key = excluded.period_key,
			updated_at = excluded.updated_at`,
		principalID, s.Ceiling.Cents, s.LastCrossedBand, s.PeriodKey, r.now().Unix())
	if err != nil {
		return fmt.Errorf("save budget state: %w", err)
	}
	return nil
}

// BudgetState returns the stored budget state for principalID, or nil.
func (r *SQLiteRepository) BudgetState(ctx context.Context, principalID string) (*core.BudgetState, error) {
	var (
		s       core.BudgetState
		updated int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT ceiling_cents, last_crossed_band, period_key, updated_at
		FROM budget_states WHERE principal_id = ?`, principalID).
		Scan(&s.Ceiling.Cents, &s.LastCrossedBand, &s.PeriodKey, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get budget state: %w", err)
	}
	s.UpdatedAt = time.Unix(updated, 0)
	return &s, nil
}

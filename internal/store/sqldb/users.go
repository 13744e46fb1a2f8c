package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"sportai.io/internal/auth"
	"sportai.io/internal/ids"
)

// UserStore keeps credential records in the users table.
type UserStore struct {
	db *DB
}

var _ auth.UserStore = (*UserStore)(nil)

func NewUserStore(db *DB) *UserStore { return &UserStore{db: db} }

const userColumns = `email, password_hash, role, created_at, last_login, failed_attempts,
	locked_until, must_change_password, two_factor_enabled, totp_secret, api_key, permissions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (auth.Account, error) {
	var (
		a         auth.Account
		role      string
		lastLogin sql.NullTime
		locked    sql.NullTime
		apiKey    sql.NullString
		perms     string
	)
	if err := row.Scan(&a.Email, &a.PasswordHash, &role, &a.CreatedAt, &lastLogin, &a.FailedAttempts,
		&locked, &a.MustChangePassword, &a.TwoFactorEnabled, &a.TOTPSecret, &apiKey, &perms); err != nil {
		return auth.Account{}, err
	}
	a.Role = auth.Role(role)
	a.CreatedAt = a.CreatedAt.UTC()
	if lastLogin.Valid {
		t := lastLogin.Time.UTC()
		a.LastLogin = &t
	}
	if locked.Valid {
		t := locked.Time.UTC()
		a.LockedUntil = &t
	}
	a.APIKey = apiKey.String
	if perms != "" {
		if err := json.Unmarshal([]byte(perms), &a.Permissions); err != nil {
			return auth.Account{}, fmt.Errorf("sqldb: decode permissions for %s: %w", a.Email, err)
		}
	}
	return a, nil
}

func (s *UserStore) Find(ctx context.Context, email string) (auth.UserRecord, error) {
	row := s.db.QueryRowContext(ctx,
		s.db.Dialect.Rebind(`select `+userColumns+` from users where email=$1`), auth.NormalizeEmail(email))
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.UserRecord{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.UserRecord{}, err
	}
	return a.UserRecord, nil
}

func (s *UserStore) Create(ctx context.Context, email string, rec auth.UserRecord) error {
	perms, err := json.Marshal(nonNil(rec.Permissions))
	if err != nil {
		return err
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err = s.db.ExecContext(ctx, s.db.Dialect.Rebind(`
		insert into users(id, `+userColumns+`)
		values (`+placeholders(1, 13)+`)`),
		ids.New(), auth.NormalizeEmail(email), rec.PasswordHash, string(rec.Role), created.UTC(),
		nullTime(rec.LastLogin), rec.FailedAttempts, nullTime(rec.LockedUntil),
		rec.MustChangePassword, rec.TwoFactorEnabled, rec.TOTPSecret, nullString(rec.APIKey), string(perms),
	)
	if isUniqueViolation(err) {
		return auth.ErrUserExists
	}
	return err
}

func (s *UserStore) Update(ctx context.Context, email string, fn func(*auth.UserRecord) error) (auth.UserRecord, error) {
	email = auth.NormalizeEmail(email)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return auth.UserRecord{}, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		s.db.Dialect.Rebind(`select `+userColumns+` from users where email=$1`+s.db.Dialect.ForUpdate()), email)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.UserRecord{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.UserRecord{}, err
	}

	rec := a.UserRecord
	if err := fn(&rec); err != nil {
		return auth.UserRecord{}, err
	}
	perms, err := json.Marshal(nonNil(rec.Permissions))
	if err != nil {
		return auth.UserRecord{}, err
	}
	if _, err := tx.ExecContext(ctx, s.db.Dialect.Rebind(`
		update users set password_hash=$2, role=$3, last_login=$4, failed_attempts=$5, locked_until=$6,
			must_change_password=$7, two_factor_enabled=$8, totp_secret=$9, api_key=$10, permissions=$11
		where email=$1`),
		email, rec.PasswordHash, string(rec.Role), nullTime(rec.LastLogin), rec.FailedAttempts,
		nullTime(rec.LockedUntil), rec.MustChangePassword, rec.TwoFactorEnabled, rec.TOTPSecret,
		nullString(rec.APIKey), string(perms),
	); err != nil {
		return auth.UserRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return auth.UserRecord{}, err
	}
	return rec, nil
}

func (s *UserStore) List(ctx context.Context) ([]auth.Account, error) {
	rows, err := s.db.QueryContext(ctx, `select `+userColumns+` from users order by email asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []auth.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *UserStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `select count(*) from users`).Scan(&n)
	return n, err
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

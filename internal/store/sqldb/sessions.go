package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"sportai.io/internal/session"
)

// SessionStore persists sessions in the sessions table so several server processes
// sharing one database see the same logins.
type SessionStore struct {
	db      *DB
	timeout time.Duration
}

var (
	_ session.Store  = (*SessionStore)(nil)
	_ session.Purger = (*SessionStore)(nil)
)

func NewSessionStore(db *DB, timeout time.Duration) *SessionStore {
	if timeout <= 0 {
		timeout = session.DefaultTimeout
	}
	return &SessionStore{db: db, timeout: timeout}
}

func (s *SessionStore) Put(ctx context.Context, st session.State) error {
	state, err := json.Marshal(st)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.db.Dialect.Rebind(`
		insert into sessions(id, user_email, token, created_at, expires_at, state)
		values ($1, $2, $3, $4, $5, $6)
		on conflict (id) do update set token = excluded.token, expires_at = excluded.expires_at, state = excluded.state`),
		st.SessionID, st.Email, st.SessionToken, st.LoginTime.UTC(), st.LoginTime.Add(s.timeout).UTC(), string(state),
	)
	return err
}

func (s *SessionStore) Get(ctx context.Context, id string) (session.State, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, s.db.Dialect.Rebind(`select state from sessions where id=$1`), id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return session.State{}, session.ErrNotFound
	}
	if err != nil {
		return session.State{}, err
	}
	var st session.State
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return session.State{}, fmt.Errorf("sqldb: decode session %s: %w", id, err)
	}
	return st, nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, s.db.Dialect.Rebind(`delete from sessions where id=$1`), id)
	return err
}

func (s *SessionStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `select count(*) from sessions`).Scan(&n)
	return n, err
}

// Purge removes sessions that logged in before loginBefore and returns them.
func (s *SessionStore) Purge(ctx context.Context, loginBefore time.Time) ([]session.State, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, s.db.Dialect.Rebind(`select id, state from sessions where expires_at < $1`),
		loginBefore.Add(s.timeout).UTC())
	if err != nil {
		return nil, err
	}
	var expired []session.State
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			_ = rows.Close()
			return nil, err
		}
		var st session.State
		if err := json.Unmarshal([]byte(raw), &st); err != nil {
			st = session.State{SessionID: id}
		}
		st.SessionID = id
		expired = append(expired, st)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	gone := make([]session.State, 0, len(expired))
	for _, st := range expired {
		res, err := tx.ExecContext(ctx, s.db.Dialect.Rebind(`delete from sessions where id=$1`), st.SessionID)
		if err != nil {
			return nil, err
		}
		if n, _ := res.RowsAffected(); n == 1 {
			gone = append(gone, st)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return gone, nil
}

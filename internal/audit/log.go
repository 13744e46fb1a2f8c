package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"sportai.io/internal/obs"
)

// Security-relevant actions.
const (
	ActionLoginSuccess     = "LOGIN_SUCCESS"
	ActionLoginFailed      = "LOGIN_FAILED"
	ActionAccountLocked    = "ACCOUNT_LOCKED"
	ActionLogout           = "LOGOUT"
	ActionUserCreated      = "USER_CREATED"
	ActionSessionTimeout   = "SESSION_TIMEOUT"
	ActionPasswordChanged  = "PASSWORD_CHANGED"
	ActionTwoFactorEnabled = "TWO_FACTOR_ENABLED"
	ActionConfigUpdated    = "CONFIG_UPDATED"
)

const notAvailable = "N/A"

// Entry is one line of a monthly audit segment.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	User      string    `json:"user"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	IP        string    `json:"ip"`
	SessionID string    `json:"session_id"`
}

// Sink receives a copy of every appended entry.
type Sink interface {
	Append(ctx context.Context, e Entry) error
}

// Log appends entries to audit_YYYYMM.jsonl files under dir. One writer per process.
type Log struct {
	dir     string
	now     func() time.Time
	mirrors []Sink

	mu sync.Mutex
}

// Option configures Log.
type Option func(*Log)

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(l *Log) {
		if fn != nil {
			l.now = fn
		}
	}
}

// WithMirror copies entries to a secondary sink (e.g. the audit_logs table).
// It may be given more than once; sinks receive entries in registration order.
func WithMirror(s Sink) Option {
	return func(l *Log) {
		if s != nil {
			l.mirrors = append(l.mirrors, s)
		}
	}
}

// NewLog constructs a Log rooted at dir.
func NewLog(dir string, opts ...Option) *Log {
	l := &Log{dir: dir, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Dir returns the segment directory.
func (l *Log) Dir() string { return l.dir }

// Record appends an entry for user/action, taking ip and session id from ctx.
func (l *Log) Record(ctx context.Context, user, action, details string) error {
	return l.Append(ctx, Entry{User: user, Action: action, Details: details})
}

// Append writes e as one JSON line to the segment of its month.
// A failing mirror is logged and does not fail the append.
func (l *Log) Append(ctx context.Context, e Entry) error {
	e.Action = strings.TrimSpace(e.Action)
	if e.Action == "" {
		return errors.New("audit: action is required")
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now().UTC()
	}
	if e.IP == "" {
		e.IP = clientIPFromContext(ctx)
	}
	if e.SessionID == "" {
		e.SessionID = sessionIDFromContext(ctx)
	}

	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	l.mu.Lock()
	err = l.write(SegmentName(e.Timestamp), data)
	l.mu.Unlock()
	if err != nil {
		return err
	}

	for _, m := range l.mirrors {
		if merr := m.Append(ctx, e); merr != nil {
			obs.Logger().Warn("audit mirror append failed", zap.String("action", e.Action), zap.Error(merr))
		}
	}
	return nil
}

func (l *Log) write(name string, data []byte) error {
	if err := os.MkdirAll(l.dir, 0o750); err != nil {
		return fmt.Errorf("audit: create dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(l.dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("audit: open segment: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("audit: write segment: %w", err)
	}
	return f.Close()
}

// SegmentName returns the file name holding entries of t's calendar month (UTC).
func SegmentName(t time.Time) string {
	return "audit_" + t.UTC().Format("200601") + ".jsonl"
}

type ctxKey string

const (
	sessionIDKey ctxKey = "audit_session_id"
	clientIPKey  ctxKey = "audit_client_ip"
)

// WithSessionID attaches the session identifier recorded on entries.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// WithClientIP attaches the caller address recorded on entries.
func WithClientIP(ctx context.Context, ip string) context.Context {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, clientIPKey, ip)
}

func sessionIDFromContext(ctx context.Context) string {
	if ctx != nil {
		if v, ok := ctx.Value(sessionIDKey).(string); ok {
			return v
		}
	}
	return notAvailable
}

func clientIPFromContext(ctx context.Context) string {
	if ctx != nil {
		if v, ok := ctx.Value(clientIPKey).(string); ok {
			return v
		}
	}
	return notAvailable
}

package audit

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"
)

const (
	// DefaultLimit caps the entries returned by Read.
	DefaultLimit = 100
	// maxLineBytes bounds one decoded line. Longer lines are skipped.
	maxLineBytes = 1 << 20
)

var (
	// ErrInvalidSegment is returned for names that are not audit segments.
	ErrInvalidSegment = errors.New("audit: invalid segment name")

	segmentPattern = regexp.MustCompile(`^audit_\d{6}\.jsonl$`)
)

// Filter narrows a segment read. Zero values match everything.
type Filter struct {
	Action string
	User   string
	Date   time.Time
	Limit  int
}

func (f Filter) match(e Entry) bool {
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.User != "" && e.User != f.User {
		return false
	}
	if !f.Date.IsZero() {
		y1, m1, d1 := f.Date.UTC().Date()
		y2, m2, d2 := e.Timestamp.UTC().Date()
		if y1 != y2 || m1 != m2 || d1 != d2 {
			return false
		}
	}
	return true
}

// Segments lists the segment names under the log directory, newest month first.
func (l *Log) Segments() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !segmentPattern.MatchString(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

// Read returns matching entries of one segment, newest first, at most f.Limit.
// Lines that do not decode or exceed maxLineBytes are skipped; a concurrent writer may
// leave a partial tail.
func (l *Log) Read(segment string, f Filter) ([]Entry, error) {
	if !segmentPattern.MatchString(segment) {
		return nil, ErrInvalidSegment
	}
	file, err := os.Open(filepath.Join(l.dir, segment))
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", segment, err)
	}
	defer file.Close()

	var all []Entry
	r := bufio.NewReaderSize(file, 64*1024)
	for {
		line, tooLong, err := readLine(r, maxLineBytes)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("audit: read %s: %w", segment, err)
		}
		if line = bytes.TrimSpace(line); !tooLong && len(line) > 0 {
			var e Entry
			if json.Unmarshal(line, &e) == nil && f.match(e) {
				all = append(all, e)
			}
		}
		if err != nil {
			break
		}
	}

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	out := make([]Entry, 0, min(limit, len(all)))
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

// readLine returns the next line of r. A line longer than limit is consumed in full and
// reported with tooLong instead of its content.
func readLine(r *bufio.Reader, limit int) (line []byte, tooLong bool, err error) {
	for {
		var chunk []byte
		chunk, err = r.ReadSlice('\n')
		if !tooLong {
			if len(line)+len(chunk) > limit {
				line, tooLong = nil, true
			} else {
				line = append(line, chunk...)
			}
		}
		if !errors.Is(err, bufio.ErrBufferFull) {
			return line, tooLong, err
		}
	}
}

// Facets returns the distinct actions and users present in a segment, for filter menus.
func (l *Log) Facets(segment string) (actions, users []string, err error) {
	entries, err := l.Read(segment, Filter{Limit: int(^uint(0) >> 1)})
	if err != nil {
		return nil, nil, err
	}
	seenA := map[string]struct{}{}
	seenU := map[string]struct{}{}
	for _, e := range entries {
		if _, ok := seenA[e.Action]; !ok {
			seenA[e.Action] = struct{}{}
			actions = append(actions, e.Action)
		}
		if _, ok := seenU[e.User]; !ok {
			seenU[e.User] = struct{}{}
			users = append(users, e.User)
		}
	}
	sort.Strings(actions)
	sort.Strings(users)
	return actions, users, nil
}

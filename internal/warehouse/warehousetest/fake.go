// Package warehousetest provides an in-memory warehouse for operator and
// engine tests. It understands the handful of statements the operators emit.
package warehousetest

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/maxkimambo/energy-etl/internal/warehouse"
)

var (
	dropRe   = regexp.MustCompile(`(?is)^\s*DROP\s+TABLE\s+IF\s+EXISTS\s+([\w.$]+)`)
	ctasRe   = regexp.MustCompile(`(?is)^\s*CREATE\s+TABLE\s+([\w.$]+)\s+AS\s*\((.*)\)\s*;?\s*$`)
	createRe = regexp.MustCompile(`(?is)^\s*CREATE\s+TABLE\s+(?:IF\s+NOT\s+EXISTS\s+)?([\w.$]+)`)
	copyRe   = regexp.MustCompile(`(?is)^\s*COPY\s+([\w.$]+)\s+FROM\s+'([^']*)'`)
	insertRe = regexp.MustCompile(`(?is)^\s*INSERT\s+INTO\s+([\w.$]+)\s*\((.*)\)\s*;?\s*$`)
	countRe  = regexp.MustCompile(`(?is)^\s*SELECT\s+count\(\*\)\s+FROM\s+([\w.$]+)\s*;?\s*$`)
)

// Warehouse is a fake warehouse.Client. Tables hold opaque row strings.
type Warehouse struct {
	mu sync.Mutex

	tables  map[string][]string
	objects map[string][]string
	scalars map[string]any

	// Fail, when set, is consulted before every statement; a non-nil error is returned instead
	Fail func(query string) error

	statements []string
	acquired   int
	released   int
	active     int
	maxActive  int
}

// New creates an empty fake warehouse
func New() *Warehouse {
	return &Warehouse{
		tables:  map[string][]string{},
		objects: map[string][]string{},
		scalars: map[string]any{},
	}
}

// PutObjects registers the rows a COPY from location loads
func (w *Warehouse) PutObjects(location string, rows ...string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.objects[location] = append([]string(nil), rows...)
}

// SetScalar fixes the result of a query
func (w *Warehouse) SetScalar(query string, v any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.scalars[strings.TrimSpace(query)] = v
}

// Table returns a copy of the rows of name and whether it exists
func (w *Warehouse) Table(name string) ([]string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	rows, ok := w.tables[strings.ToLower(name)]
	return append([]string(nil), rows...), ok
}

// Statements returns every statement executed so far
func (w *Warehouse) Statements() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.statements...)
}

// Sessions returns how many sessions were acquired and released
func (w *Warehouse) Sessions() (acquired, released int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.acquired, w.released
}

// MaxConcurrentSessions returns the peak number of simultaneously open sessions
func (w *Warehouse) MaxConcurrentSessions() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.maxActive
}

// Acquire implements warehouse.Client
func (w *Warehouse) Acquire(ctx context.Context) (warehouse.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, &warehouse.Error{Op: "acquire", Err: err, Timeout: err == context.DeadlineExceeded, Transient: true}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.acquired++
	w.active++
	if w.active > w.maxActive {
		w.maxActive = w.active
	}
	return &session{w: w}, nil
}

// Ping implements warehouse.Client
func (w *Warehouse) Ping(context.Context) error { return nil }

// Close implements warehouse.Client
func (w *Warehouse) Close() error { return nil }

func (w *Warehouse) apply(tables map[string][]string, query string) error {
	w.statements = append(w.statements, query)
	if w.Fail != nil {
		if err := w.Fail(query); err != nil {
			return err
		}
	}

	switch {
	case dropRe.MatchString(query):
		delete(tables, strings.ToLower(dropRe.FindStringSubmatch(query)[1]))
	case ctasRe.MatchString(query):
		m := ctasRe.FindStringSubmatch(query)
		tables[strings.ToLower(m[1])] = []string{strings.TrimSpace(m[2])}
	case createRe.MatchString(query):
		name := strings.ToLower(createRe.FindStringSubmatch(query)[1])
		if _, ok := tables[name]; !ok {
			tables[name] = []string{}
		}
	case copyRe.MatchString(query):
		m := copyRe.FindStringSubmatch(query)
		name := strings.ToLower(m[1])
		if _, ok := tables[name]; !ok {
			return &warehouse.Error{Op: "exec", Code: "42P01", Err: fmt.Errorf("relation %q does not exist", name)}
		}
		rows, ok := w.objects[m[2]]
		if !ok {
			return &warehouse.Error{Op: "exec", Code: "XX000", Err: fmt.Errorf("no objects at %s", m[2])}
		}
		tables[name] = append(tables[name], rows...)
	case insertRe.MatchString(query):
		m := insertRe.FindStringSubmatch(query)
		name := strings.ToLower(m[1])
		if _, ok := tables[name]; !ok {
			return &warehouse.Error{Op: "exec", Code: "42P01", Err: fmt.Errorf("relation %q does not exist", name)}
		}
		tables[name] = append(tables[name], strings.TrimSpace(m[2]))
	default:
		return &warehouse.Error{Op: "exec", Code: "42601", Err: fmt.Errorf("syntax error in %q", query)}
	}
	return nil
}

type session struct {
	w      *Warehouse
	closed bool
}

func (s *session) Exec(ctx context.Context, query string, _ ...any) error {
	if err := ctx.Err(); err != nil {
		return &warehouse.Error{Op: "exec", Err: err, Timeout: true, Transient: true}
	}
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	return s.w.apply(s.w.tables, query)
}

func (s *session) QueryScalar(ctx context.Context, query string, _ ...any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, &warehouse.Error{Op: "query", Err: err, Timeout: true, Transient: true}
	}
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	s.w.statements = append(s.w.statements, query)
	if s.w.Fail != nil {
		if err := s.w.Fail(query); err != nil {
			return nil, err
		}
	}

	key := strings.TrimSpace(query)
	if v, ok := s.w.scalars[key]; ok {
		if v == nil {
			return nil, &warehouse.Error{Op: "query", Err: warehouse.ErrNoRows}
		}
		return v, nil
	}
	if m := countRe.FindStringSubmatch(key); m != nil {
		rows, ok := s.w.tables[strings.ToLower(m[1])]
		if !ok {
			return nil, &warehouse.Error{Op: "query", Code: "42P01", Err: fmt.Errorf("relation %q does not exist", m[1])}
		}
		return int64(len(rows)), nil
	}
	return nil, &warehouse.Error{Op: "query", Code: "42601", Err: fmt.Errorf("unsupported query %q", query)}
}

// InTx applies statements to a copy of the tables and publishes the tables
// it touched on success
func (s *session) InTx(ctx context.Context, fn func(tx warehouse.Executor) error) error {
	s.w.mu.Lock()
	staged := make(map[string][]string, len(s.w.tables))
	for k, v := range s.w.tables {
		staged[k] = append([]string(nil), v...)
	}
	s.w.mu.Unlock()

	t := &tx{w: s.w, tables: staged}
	if err := fn(t); err != nil {
		return err
	}

	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	for _, q := range t.applied {
		for _, re := range []*regexp.Regexp{dropRe, ctasRe, createRe, copyRe, insertRe} {
			if m := re.FindStringSubmatch(q); m != nil {
				name := strings.ToLower(m[1])
				if rows, ok := staged[name]; ok {
					s.w.tables[name] = rows
				} else {
					delete(s.w.tables, name)
				}
				break
			}
		}
	}
	return nil
}

func (s *session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	s.w.released++
	s.w.active--
	return nil
}

type tx struct {
	w       *Warehouse
	tables  map[string][]string
	applied []string
}

func (t *tx) Exec(ctx context.Context, query string, _ ...any) error {
	if err := ctx.Err(); err != nil {
		return &warehouse.Error{Op: "exec", Err: err, Timeout: true, Transient: true}
	}
	t.w.mu.Lock()
	defer t.w.mu.Unlock()
	if err := t.w.apply(t.tables, query); err != nil {
		return err
	}
	t.applied = append(t.applied, query)
	return nil
}

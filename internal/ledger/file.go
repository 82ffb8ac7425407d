package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/maxkimambo/energy-etl/internal/runstate"
)

// FileLedger persists one JSON document per run under
//
//	<dir>/<idempotency-key>.json
//
// Every write replaces the document atomically (temp file + rename).
type FileLedger struct {
	dir string
	mu  sync.Mutex
	mem *MemoryLedger
}

// NewFileLedger opens the ledger directory, creating it if needed
func NewFileLedger(dir string) (*FileLedger, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("ledger directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}
	return &FileLedger{dir: dir, mem: NewMemoryLedger()}, nil
}

func (l *FileLedger) path(key string) string {
	return filepath.Join(l.dir, key+".json")
}

// StartRun implements Ledger
func (l *FileLedger) StartRun(ctx context.Context, run *runstate.RunInstance) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.mem.StartRun(ctx, run); err != nil {
		return err
	}
	return l.persist(run.IdempotencyKey)
}

// RecordTransition implements Ledger
func (l *FileLedger) RecordTransition(ctx context.Context, key string, task *runstate.TaskState, t Transition) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.mem.RecordTransition(ctx, key, task, t); err != nil {
		return err
	}
	return l.persist(key)
}

// FinishRun implements Ledger
func (l *FileLedger) FinishRun(ctx context.Context, run *runstate.RunInstance) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.mem.FinishRun(ctx, run); err != nil {
		return err
	}
	return l.persist(run.IdempotencyKey)
}

// Load implements Ledger. Records written by earlier processes are read from disk.
func (l *FileLedger) Load(ctx context.Context, pipeline, runKey string) (*Record, error) {
	if rec, err := l.mem.Load(ctx, pipeline, runKey); err == nil {
		return rec, nil
	}
	rec, err := readRecord(l.path(runstate.IdempotencyKey(pipeline, runKey)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return rec, nil
}

// List implements Ledger
func (l *FileLedger) List(_ context.Context, pipeline string) ([]*runstate.RunInstance, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("read ledger dir: %w", err)
	}
	var runs []*runstate.RunInstance
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		rec, err := readRecord(filepath.Join(l.dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.Name(), err)
		}
		if pipeline == "" || rec.Run.Pipeline == pipeline {
			runs = append(runs, rec.Run)
		}
	}
	sortRuns(runs)
	return runs, nil
}

func (l *FileLedger) persist(key string) error {
	l.mem.mu.RLock()
	rec, ok := l.mem.records[key]
	var data []byte
	var err error
	if ok {
		data, err = json.MarshalIndent(rec, "", "  ")
	}
	l.mem.mu.RUnlock()

	if !ok {
		return ErrRunNotFound
	}
	if err != nil {
		return fmt.Errorf("marshal run record: %w", err)
	}
	if err := writeFileAtomic(l.path(key), append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write run record: %w", err)
	}
	return nil
}

func readRecord(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec Record
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode run record: %w", err)
	}
	if rec.Run == nil {
		return nil, errors.New("run record has no run")
	}
	if rec.Run.Tasks == nil {
		rec.Run.Tasks = map[string]*runstate.TaskState{}
	}
	return &rec, nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return nil
}

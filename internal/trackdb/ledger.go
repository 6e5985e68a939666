package trackdb

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
)

// FailedTask is one outstanding (track, stage) failure.
type FailedTask struct {
	TrackID      string    `json:"track_id"`
	Stage        string    `json:"stage"`
	FailedAt     Timestamp `json:"failed_at"`
	ErrorMessage string    `json:"error_message"`
	RetryCount   int       `json:"retry_count"`
}

type ledgerFile struct {
	FailedTasks []FailedTask `json:"failed_tasks"`
	LastUpdated Timestamp    `json:"last_updated"`
}

// FailureSummary counts outstanding failures.
type FailureSummary struct {
	Total   int            `json:"total"`
	ByStage map[string]int `json:"by_stage"`
}

// Ledger holds at most one entry per (track, stage) pair.
type Ledger struct {
	file jsonFile
	opts options
	mu   sync.Mutex
}

// OpenLedger returns a ledger bound to path.
func OpenLedger(path string, opts ...Option) (*Ledger, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("trackdb: ledger path is required")
	}
	o := buildOptions("failure_ledger", opts)
	return &Ledger{
		file: jsonFile{path: path, timeout: o.lockTimeout},
		opts: o,
	}, nil
}

// Path returns the backing file path.
func (l *Ledger) Path() string {
	return l.file.path
}

func (l *Ledger) loadLocked() (ledgerFile, error) {
	var data ledgerFile
	exists, err := l.file.read(&data)
	switch {
	case err != nil && errors.Is(err, errCorrupt):
		l.file.recoverCorrupt(l.opts, err)
		data = ledgerFile{}
		if err := l.saveLocked(&data); err != nil {
			return ledgerFile{}, err
		}
	case err != nil:
		return ledgerFile{}, err
	case !exists:
		if err := l.saveLocked(&data); err != nil {
			return ledgerFile{}, err
		}
	}
	if data.FailedTasks == nil {
		data.FailedTasks = []FailedTask{}
	}
	return data, nil
}

func (l *Ledger) saveLocked(data *ledgerFile) error {
	if data.FailedTasks == nil {
		data.FailedTasks = []FailedTask{}
	}
	data.LastUpdated = NewTimestamp(l.opts.now())
	return l.file.write(data)
}

func (l *Ledger) view(ctx context.Context) (ledgerFile, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var data ledgerFile
	err := l.file.withLock(ctx, func() error {
		var loadErr error
		data, loadErr = l.loadLocked()
		return loadErr
	})
	return data, err
}

func (l *Ledger) mutate(ctx context.Context, fn func(*ledgerFile) bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.withLock(ctx, func() error {
		data, err := l.loadLocked()
		if err != nil {
			return err
		}
		if !fn(&data) {
			return nil
		}
		return l.saveLocked(&data)
	})
}

// Record upserts the failure for (id, stage). A repeated failure replaces
// the message and timestamp and increments retry_count.
func (l *Ledger) Record(ctx context.Context, id, stage, message string) error {
	now := NewTimestamp(l.opts.now())
	return l.mutate(ctx, func(data *ledgerFile) bool {
		for i := range data.FailedTasks {
			task := &data.FailedTasks[i]
			if task.TrackID == id && task.Stage == stage {
				task.FailedAt = now
				task.ErrorMessage = message
				task.RetryCount++
				return true
			}
		}
		data.FailedTasks = append(data.FailedTasks, FailedTask{
			TrackID:      id,
			Stage:        stage,
			FailedAt:     now,
			ErrorMessage: message,
		})
		return true
	})
}

// List returns every entry in insertion order.
func (l *Ledger) List(ctx context.Context) ([]FailedTask, error) {
	data, err := l.view(ctx)
	if err != nil {
		return nil, err
	}
	return data.FailedTasks, nil
}

// ListStage returns the entries for one stage.
func (l *Ledger) ListStage(ctx context.Context, stage string) ([]FailedTask, error) {
	all, err := l.List(ctx)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(all, func(t FailedTask) bool { return t.Stage != stage }), nil
}

// Remove deletes the entry for (id, stage) and reports whether one existed.
func (l *Ledger) Remove(ctx context.Context, id, stage string) (bool, error) {
	removed := false
	err := l.mutate(ctx, func(data *ledgerFile) bool {
		before := len(data.FailedTasks)
		data.FailedTasks = slices.DeleteFunc(data.FailedTasks, func(t FailedTask) bool {
			return t.TrackID == id && t.Stage == stage
		})
		removed = len(data.FailedTasks) != before
		return removed
	})
	return removed, err
}

// DrainAll returns every entry and empties the ledger within one lock hold.
func (l *Ledger) DrainAll(ctx context.Context) ([]FailedTask, error) {
	var drained []FailedTask
	err := l.mutate(ctx, func(data *ledgerFile) bool {
		drained = data.FailedTasks
		data.FailedTasks = []FailedTask{}
		return len(drained) > 0
	})
	if drained == nil {
		drained = []FailedTask{}
	}
	return drained, err
}

// Summary counts entries per stage.
func (l *Ledger) Summary(ctx context.Context) (FailureSummary, error) {
	all, err := l.List(ctx)
	if err != nil {
		return FailureSummary{}, err
	}
	summary := FailureSummary{Total: len(all), ByStage: map[string]int{}}
	for _, task := range all {
		summary.ByStage[task.Stage]++
	}
	return summary, nil
}

package trackdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"trackreel/internal/fileutil"
	"trackreel/internal/logging"
	"trackreel/internal/services"
)

const (
	// DefaultLockTimeout bounds how long a load or save waits for the file lock.
	DefaultLockTimeout = 5 * time.Second
	lockRetryDelay     = 50 * time.Millisecond
)

var (
	// ErrStoreUnavailable reports that another process holds the store lock.
	ErrStoreUnavailable = errors.New("store unavailable")
	errCorrupt          = errors.New("corrupt store file")
)

// Option customizes a store.
type Option func(*options)

type options struct {
	lockTimeout time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// WithLockTimeout overrides the lock acquisition timeout.
func WithLockTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.lockTimeout = d
		}
	}
}

// WithLogger sets the logger used for recovery warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(component string, opts []Option) options {
	o := options{lockTimeout: DefaultLockTimeout, logger: logging.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = logging.NewComponentLogger(o.logger, component)
	return o
}

// jsonFile is one lock-guarded JSON document with optional backup-on-write.
type jsonFile struct {
	path    string
	backup  bool
	timeout time.Duration
}

func (f jsonFile) lockPath() string   { return f.path + ".lock" }
func (f jsonFile) backupPath() string { return f.path + ".bak" }

// withLock runs fn while holding the file lock. The lock is released before
// withLock returns.
func (f jsonFile) withLock(ctx context.Context, fn func() error) error {
	if err := os.MkdirAll(dirOf(f.path), 0o755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}
	lock := flock.New(f.lockPath())
	lockCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	locked, err := lock.TryLockContext(lockCtx, lockRetryDelay)
	if err != nil || !locked {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return services.Classify(services.KindStore, "store", "lock",
			fmt.Sprintf("%s is in use by another process", f.path),
			errors.Join(ErrStoreUnavailable, err))
	}
	defer func() {
		_ = lock.Unlock()
	}()
	return fn()
}

// read decodes the file into v. It reports false when the file does not
// exist and wraps errCorrupt when the content cannot be decoded.
func (f jsonFile) read(v any) (bool, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", f.path, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return true, fmt.Errorf("%w: %s is empty", errCorrupt, f.path)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, fmt.Errorf("%w: %s: %v", errCorrupt, f.path, err)
	}
	return true, nil
}

// write encodes v with two-space indentation. When backups are enabled the
// current file is copied to the .bak path first.
func (f jsonFile) write(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", f.path, err)
	}
	if f.backup && fileutil.Exists(f.path) {
		if err := fileutil.CopyFile(f.path, f.backupPath()); err != nil {
			return fmt.Errorf("backup %s: %w", f.path, err)
		}
	}
	if err := fileutil.WriteFileAtomic(f.path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", f.path, err)
	}
	return nil
}

// recoverCorrupt handles a decode failure: the unreadable file is copied to
// the .bak path and the caller continues with an empty document.
func (f jsonFile) recoverCorrupt(o options, readErr error) {
	dest := f.backupPath()
	err := fileutil.CopyFile(f.path, dest)
	attrs := []logging.Attr{
		logging.String("path", f.path),
		logging.Error(readErr),
		logging.Impact("store reinitialised empty; unreadable content kept in .bak"),
		logging.Hint("inspect the .bak copy and restore manually if needed"),
	}
	if err != nil {
		attrs = append(attrs, logging.String("backup_error", err.Error()))
	} else {
		attrs = append(attrs, logging.String("backup_path", dest))
	}
	logging.WarnWithContext(o.logger, "store file corrupt; reinitialising", "store_corrupt", attrs...)
}

func dirOf(path string) string {
	idx := strings.LastIndexAny(path, `/\`)
	if idx <= 0 {
		return "."
	}
	return path[:idx]
}

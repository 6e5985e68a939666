package trackdb

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
)

// Checkpoint is the single-slot marker of an in-flight run.
type Checkpoint struct {
	IsRunning       bool      `json:"is_running"`
	StartedAt       Timestamp `json:"started_at"`
	CurrentStage    string    `json:"current_stage"`
	CurrentTrackID  string    `json:"current_track_id"`
	CompletedTracks []string  `json:"completed_tracks"`
	PendingTracks   []string  `json:"pending_tracks"`
	LastUpdated     Timestamp `json:"last_updated"`
}

// Remaining returns the pending ids not already completed, in pending order
// and without duplicates.
func (c Checkpoint) Remaining() []string {
	done := make(map[string]struct{}, len(c.CompletedTracks))
	for _, id := range c.CompletedTracks {
		done[id] = struct{}{}
	}
	out := make([]string, 0, len(c.PendingTracks))
	for _, id := range c.PendingTracks {
		if _, ok := done[id]; ok {
			continue
		}
		done[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// CheckpointStore persists the checkpoint slot.
type CheckpointStore struct {
	file jsonFile
	opts options
	mu   sync.Mutex
}

// OpenCheckpoints returns a checkpoint store bound to path.
func OpenCheckpoints(path string, opts ...Option) (*CheckpointStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("trackdb: checkpoint path is required")
	}
	o := buildOptions("checkpoint", opts)
	return &CheckpointStore{
		file: jsonFile{path: path, backup: true, timeout: o.lockTimeout},
		opts: o,
	}, nil
}

// Path returns the backing file path.
func (c *CheckpointStore) Path() string {
	return c.file.path
}

// readLocked returns the stored checkpoint regardless of its flag. A missing
// or unreadable file reads as an inactive checkpoint.
func (c *CheckpointStore) readLocked() (Checkpoint, error) {
	var cp Checkpoint
	_, err := c.file.read(&cp)
	if err != nil {
		if errors.Is(err, errCorrupt) {
			c.file.recoverCorrupt(c.opts, err)
			return Checkpoint{}, nil
		}
		return Checkpoint{}, err
	}
	return cp, nil
}

// Save overwrites the slot with an active checkpoint. When the slot already
// holds an active checkpoint its started_at is kept.
func (c *CheckpointStore) Save(ctx context.Context, stage, currentID string, completed, pending []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.file.withLock(ctx, func() error {
		prev, err := c.readLocked()
		if err != nil {
			return err
		}
		now := NewTimestamp(c.opts.now())
		cp := Checkpoint{
			IsRunning:       true,
			StartedAt:       now,
			CurrentStage:    stage,
			CurrentTrackID:  currentID,
			CompletedTracks: nonNil(completed),
			PendingTracks:   nonNil(pending),
			LastUpdated:     now,
		}
		if prev.IsRunning && !prev.StartedAt.IsZero() {
			cp.StartedAt = prev.StartedAt
		}
		return c.file.write(cp)
	})
}

// Load returns the checkpoint when one is active.
func (c *CheckpointStore) Load(ctx context.Context) (Checkpoint, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var cp Checkpoint
	err := c.file.withLock(ctx, func() error {
		var readErr error
		cp, readErr = c.readLocked()
		return readErr
	})
	if err != nil || !cp.IsRunning {
		return Checkpoint{}, false, err
	}
	return cp, true, nil
}

// Has reports whether an active checkpoint exists.
func (c *CheckpointStore) Has(ctx context.Context) (bool, error) {
	_, ok, err := c.Load(ctx)
	return ok, err
}

// Clear marks the checkpoint inactive, retaining the file for audit. Clearing
// an absent or inactive checkpoint is a no-op.
func (c *CheckpointStore) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.file.withLock(ctx, func() error {
		cp, err := c.readLocked()
		if err != nil {
			return err
		}
		if !cp.IsRunning {
			return nil
		}
		cp.IsRunning = false
		cp.LastUpdated = NewTimestamp(c.opts.now())
		return c.file.write(cp)
	})
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return slices.Clone(ids)
}

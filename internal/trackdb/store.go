package trackdb

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// SchemaVersion is written to the metadata block of the tracks file.
const SchemaVersion = "1.0"

// Metadata is the aggregate block persisted next to the tracks map.
type Metadata struct {
	TotalTracks int       `json:"total_tracks"`
	LastUpdated Timestamp `json:"last_updated"`
	Version     string    `json:"version"`
}

// Snapshot is the full content of the tracks file.
type Snapshot struct {
	Tracks   map[string]Record `json:"tracks"`
	Metadata Metadata          `json:"metadata"`
}

// Sorted returns the records ordered by track id.
func (s Snapshot) Sorted() []Record {
	ids := make([]string, 0, len(s.Tracks))
	for id := range s.Tracks {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.Tracks[id].clone())
	}
	return out
}

// StageCounts tallies one stage's statuses.
type StageCounts struct {
	Completed  int `json:"completed"`
	Pending    int `json:"pending"`
	Failed     int `json:"failed"`
	Processing int `json:"processing"`
	Skipped    int `json:"skipped"`
	Missing    int `json:"missing"`
}

func (c *StageCounts) add(status Status) {
	switch status {
	case StatusCompleted:
		c.Completed++
	case StatusPending:
		c.Pending++
	case StatusFailed:
		c.Failed++
	case StatusProcessing:
		c.Processing++
	case StatusSkipped:
		c.Skipped++
	case StatusMissing:
		c.Missing++
	}
}

// Statistics aggregates the store for status output and reports.
type Statistics struct {
	TotalTracks    int         `json:"total_tracks"`
	Music          StageCounts `json:"music"`
	Image          StageCounts `json:"image"`
	Video          StageCounts `json:"video"`
	FullyCompleted int         `json:"fully_completed"`
}

// Stage returns the counts for one sub-record.
func (s Statistics) Stage(stage Stage) StageCounts {
	switch stage {
	case StageMusic:
		return s.Music
	case StageImage:
		return s.Image
	case StageVideo:
		return s.Video
	default:
		return StageCounts{}
	}
}

// Store is the file-backed track table.
type Store struct {
	file jsonFile
	opts options
	mu   sync.Mutex
}

// Open returns a store bound to path. The file is created lazily on first load.
func Open(path string, opts ...Option) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("trackdb: store path is required")
	}
	o := buildOptions("trackdb", opts)
	return &Store{
		file: jsonFile{path: path, backup: true, timeout: o.lockTimeout},
		opts: o,
	}, nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.file.path
}

// Load returns the current snapshot, initialising and persisting an empty
// store when the file is missing or unreadable.
func (s *Store) Load(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var snap Snapshot
	err := s.file.withLock(ctx, func() error {
		var loadErr error
		snap, loadErr = s.loadLocked()
		return loadErr
	})
	return snap, err
}

// Save persists snap, copying the previous file to the .bak path first and
// refreshing the metadata block.
func (s *Store) Save(ctx context.Context, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.withLock(ctx, func() error {
		return s.saveLocked(&snap)
	})
}

func (s *Store) emptySnapshot() Snapshot {
	return Snapshot{
		Tracks: map[string]Record{},
		Metadata: Metadata{
			LastUpdated: NewTimestamp(s.opts.now()),
			Version:     SchemaVersion,
		},
	}
}

func (s *Store) loadLocked() (Snapshot, error) {
	var snap Snapshot
	exists, err := s.file.read(&snap)
	switch {
	case err != nil && errors.Is(err, errCorrupt):
		s.file.recoverCorrupt(s.opts, err)
		snap = s.emptySnapshot()
		if err := s.saveLocked(&snap); err != nil {
			return Snapshot{}, err
		}
		return snap, nil
	case err != nil:
		return Snapshot{}, err
	case !exists:
		snap = s.emptySnapshot()
		if err := s.saveLocked(&snap); err != nil {
			return Snapshot{}, err
		}
		return snap, nil
	}
	if snap.Tracks == nil {
		snap.Tracks = map[string]Record{}
	}
	for id, rec := range snap.Tracks {
		rec.TrackID = id
		rec.normalize()
		snap.Tracks[id] = rec
	}
	if snap.Metadata.Version == "" {
		snap.Metadata.Version = SchemaVersion
	}
	return snap, nil
}

func (s *Store) saveLocked(snap *Snapshot) error {
	if snap.Tracks == nil {
		snap.Tracks = map[string]Record{}
	}
	snap.Metadata.TotalTracks = len(snap.Tracks)
	snap.Metadata.LastUpdated = NewTimestamp(s.opts.now())
	if snap.Metadata.Version == "" {
		snap.Metadata.Version = SchemaVersion
	}
	return s.file.write(snap)
}

// mutate runs a read-modify-write cycle under one lock hold. fn reports
// whether it changed the snapshot; unchanged snapshots are not rewritten.
func (s *Store) mutate(ctx context.Context, fn func(*Snapshot) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.withLock(ctx, func() error {
		snap, err := s.loadLocked()
		if err != nil {
			return err
		}
		if !fn(&snap) {
			return nil
		}
		return s.saveLocked(&snap)
	})
}

// Get returns the record for id.
func (s *Store) Get(ctx context.Context, id string) (Record, bool, error) {
	snap, err := s.Load(ctx)
	if err != nil {
		return Record{}, false, err
	}
	rec, ok := snap.Tracks[id]
	if !ok {
		return Record{}, false, nil
	}
	return rec.clone(), true, nil
}

// All returns every record ordered by id.
func (s *Store) All(ctx context.Context) ([]Record, error) {
	snap, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Sorted(), nil
}

// Add inserts a record for id. It reports false without writing when the id
// already exists. A nil initial record yields every stage pending.
func (s *Store) Add(ctx context.Context, id string, initial *Record) (bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return false, errors.New("trackdb: track id is required")
	}
	added := false
	err := s.mutate(ctx, func(snap *Snapshot) bool {
		if _, ok := snap.Tracks[id]; ok {
			return false
		}
		now := s.opts.now()
		rec := NewRecord(id, now)
		if initial != nil {
			rec = initial.clone()
			rec.TrackID = id
			if rec.CreatedAt.IsZero() {
				rec.CreatedAt = NewTimestamp(now)
			}
			rec.UpdatedAt = NewTimestamp(now)
			rec.normalize()
		}
		snap.Tracks[id] = rec
		added = true
		return true
	})
	return added, err
}

// Update merges patch into the record for id and bumps updated_at. It
// reports false when the id is unknown.
func (s *Store) Update(ctx context.Context, id string, patch Patch) (bool, error) {
	return s.modify(ctx, id, func(rec *Record) bool {
		patch.Apply(rec)
		return true
	})
}

// UpdateStageStatus flips the status of one stage sub-record.
func (s *Store) UpdateStageStatus(ctx context.Context, id string, stage Stage, status Status) (bool, error) {
	if _, err := ParseStage(string(stage)); err != nil {
		return false, err
	}
	return s.Update(ctx, id, StatusPatch(stage, status))
}

// Delete removes the record for id.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	deleted := false
	err := s.mutate(ctx, func(snap *Snapshot) bool {
		if _, ok := snap.Tracks[id]; !ok {
			return false
		}
		delete(snap.Tracks, id)
		deleted = true
		return true
	})
	return deleted, err
}

// QueryByStageStatus returns the records whose stage status is any of
// statuses, ordered by id.
func (s *Store) QueryByStageStatus(ctx context.Context, stage Stage, statuses ...Status) ([]Record, error) {
	all, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(all))
	for _, rec := range all {
		if slices.Contains(statuses, rec.Status(stage)) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// AppendError records a failure message in the track's bounded error log.
func (s *Store) AppendError(ctx context.Context, id, stage, message string) (bool, error) {
	entry := ErrorEntry{
		Timestamp: NewTimestamp(s.opts.now()),
		Stage:     stage,
		Message:   message,
	}
	return s.modify(ctx, id, func(rec *Record) bool {
		rec.appendError(entry)
		return true
	})
}

// ErrorLog returns the track's error history, oldest first.
func (s *Store) ErrorLog(ctx context.Context, id string) ([]ErrorEntry, error) {
	rec, ok, err := s.Get(ctx, id)
	if err != nil || !ok {
		return nil, err
	}
	return rec.ErrorLog, nil
}

// ClearErrors empties the track's error history.
func (s *Store) ClearErrors(ctx context.Context, id string) (bool, error) {
	return s.modify(ctx, id, func(rec *Record) bool {
		rec.ErrorLog = []ErrorEntry{}
		return true
	})
}

// IncrementRetry bumps the informational retry counter and returns the new value.
func (s *Store) IncrementRetry(ctx context.Context, id string) (int, error) {
	count := 0
	ok, err := s.modify(ctx, id, func(rec *Record) bool {
		rec.RetryCount++
		count = rec.RetryCount
		return true
	})
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("trackdb: track %q not found", id)
	}
	return count, nil
}

// Statistics aggregates per-stage status counts.
func (s *Store) Statistics(ctx context.Context) (Statistics, error) {
	snap, err := s.Load(ctx)
	if err != nil {
		return Statistics{}, err
	}
	return ComputeStatistics(snap.Tracks), nil
}

// ComputeStatistics aggregates records without touching the store.
func ComputeStatistics(records map[string]Record) Statistics {
	stats := Statistics{TotalTracks: len(records)}
	for _, rec := range records {
		stats.Music.add(rec.Music.Status)
		stats.Image.add(rec.Image.Status)
		stats.Video.add(rec.Video.Status)
		if rec.FullyCompleted() {
			stats.FullyCompleted++
		}
	}
	return stats
}

func (s *Store) modify(ctx context.Context, id string, fn func(*Record) bool) (bool, error) {
	found := false
	err := s.mutate(ctx, func(snap *Snapshot) bool {
		rec, ok := snap.Tracks[id]
		if !ok {
			return false
		}
		found = true
		if !fn(&rec) {
			return false
		}
		rec.UpdatedAt = NewTimestamp(s.opts.now())
		snap.Tracks[id] = rec
		return true
	})
	return found, err
}

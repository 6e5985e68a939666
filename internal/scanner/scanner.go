package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"trackreel/internal/fileutil"
	"trackreel/internal/logging"
	"trackreel/internal/trackdb"
)

// Supported extensions in lookup priority order.
var (
	AudioExtensions = []string{".mp3", ".wav", ".flac"}
	ImageExtensions = []string{".png", ".jpg", ".jpeg"}
)

const videoExtension = ".mp4"

// Missing-file policies.
const (
	MissingWarn   = "warn"
	MissingRemove = "remove"
	MissingMark   = "mark_missing"
)

// AudioFile is one discovered source file.
type AudioFile struct {
	ID        string `json:"track_id"`
	Filename  string `json:"filename"`
	Path      string `json:"file_path"`
	Extension string `json:"extension"`
	Size      int64  `json:"size_bytes"`
}

// FileStatus is the observed on-disk state of one track's artefacts. Empty
// paths mean the file was not found.
type FileStatus struct {
	TrackID   string `json:"track_id"`
	MusicPath string `json:"music_path,omitempty"`
	ImagePath string `json:"image_path,omitempty"`
	VideoPath string `json:"video_path,omitempty"`
}

// Summary describes one FullScanAndSync pass.
type Summary struct {
	FilesFound    int      `json:"files_found"`
	NewRegistered int      `json:"new_registered"`
	MissingFound  int      `json:"missing_found"`
	MissingIDs    []string `json:"missing_ids,omitempty"`
	Synced        int      `json:"synced"`
	Changed       int      `json:"changed"`
}

// Dirs are the directories the scanner observes.
type Dirs struct {
	Music string
	Image string
	Video string
}

// Scanner reconciles Dirs with a track store.
type Scanner struct {
	dirs          Dirs
	store         *trackdb.Store
	logger        *slog.Logger
	missingAction string
}

// New constructs a scanner. missingAction selects how FullScanAndSync treats
// tracks whose audio file is gone; empty means warn.
func New(dirs Dirs, store *trackdb.Store, missingAction string, logger *slog.Logger) *Scanner {
	if strings.TrimSpace(missingAction) == "" {
		missingAction = MissingWarn
	}
	return &Scanner{
		dirs:          dirs,
		store:         store,
		logger:        logging.NewComponentLogger(logger, "scanner"),
		missingAction: missingAction,
	}
}

// Scan lists supported audio files in the music directory, ordered by id.
// Hidden files are ignored. When several files share a stem, the extension
// earliest in AudioExtensions wins.
func (s *Scanner) Scan() ([]AudioFile, error) {
	entries, err := os.ReadDir(s.dirs.Music)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []AudioFile{}, nil
		}
		return nil, fmt.Errorf("read music directory: %w", err)
	}
	byID := make(map[string]AudioFile)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		ext := strings.ToLower(filepath.Ext(name))
		rank := slices.Index(AudioExtensions, ext)
		if rank < 0 {
			continue
		}
		id := strings.TrimSuffix(name, filepath.Ext(name))
		if id == "" {
			continue
		}
		if existing, ok := byID[id]; ok && slices.Index(AudioExtensions, existing.Extension) <= rank {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		byID[id] = AudioFile{
			ID:        id,
			Filename:  name,
			Path:      filepath.Join(s.dirs.Music, name),
			Extension: ext,
			Size:      info.Size(),
		}
	}
	files := make([]AudioFile, 0, len(byID))
	for _, f := range byID {
		files = append(files, f)
	}
	slices.SortFunc(files, func(a, b AudioFile) int { return strings.Compare(a.ID, b.ID) })
	return files, nil
}

// DetectNew returns scanned files whose id is not in the store.
func (s *Scanner) DetectNew(ctx context.Context) ([]AudioFile, error) {
	files, err := s.Scan()
	if err != nil {
		return nil, err
	}
	snap, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]AudioFile, 0)
	for _, f := range files {
		if _, ok := snap.Tracks[f.ID]; !ok {
			out = append(out, f)
		}
	}
	return out, nil
}

// RegisterNew adds a record for file with the music stage completed.
func (s *Scanner) RegisterNew(ctx context.Context, file AudioFile) (bool, error) {
	rec := trackdb.NewRecord(file.ID, time.Time{})
	rec.Music.Status = trackdb.StatusCompleted
	rec.Music.FilePath = file.Path
	return s.store.Add(ctx, file.ID, &rec)
}

// DetectMissing returns stored ids whose audio file cannot be found. A record
// without a music path is checked against the music directory.
func (s *Scanner) DetectMissing(ctx context.Context) ([]string, error) {
	records, err := s.store.All(ctx)
	if err != nil {
		return nil, err
	}
	music := indexDir(s.dirs.Music)
	missing := make([]string, 0)
	for _, rec := range records {
		if path := rec.Music.FilePath; path != "" {
			if !fileutil.Exists(path) {
				missing = append(missing, rec.TrackID)
			}
			continue
		}
		if music.lookup(rec.TrackID, AudioExtensions) == "" {
			missing = append(missing, rec.TrackID)
		}
	}
	return missing, nil
}

// HandleMissing applies action to each id: warn logs, remove deletes the
// record, mark_missing sets the music status to missing.
func (s *Scanner) HandleMissing(ctx context.Context, ids []string, action string) (int, error) {
	if action == "" {
		action = s.missingAction
	}
	handled := 0
	for _, id := range ids {
		switch action {
		case MissingWarn:
			logging.WarnWithContext(s.logger, "audio file missing", "track_missing",
				logging.ItemID(id),
				logging.Impact("track stays in the store but cannot be rendered"),
				logging.Hint("restore the audio file or set pipeline.missing_action"),
			)
			handled++
		case MissingRemove:
			ok, err := s.store.Delete(ctx, id)
			if err != nil {
				return handled, err
			}
			if ok {
				s.logger.Info("removed track with missing audio", logging.Args(logging.ItemID(id), logging.EventType("track_removed"))...)
				handled++
			}
		case MissingMark:
			ok, err := s.store.UpdateStageStatus(ctx, id, trackdb.StageMusic, trackdb.StatusMissing)
			if err != nil {
				return handled, err
			}
			if ok {
				handled++
			}
		default:
			return handled, fmt.Errorf("unknown missing-file action %q", action)
		}
	}
	return handled, nil
}

// CheckFileStatus looks up the audio, image, and video files for id.
// Extensions match case-insensitively.
func (s *Scanner) CheckFileStatus(id string) FileStatus {
	return s.snapshotDisk().status(id)
}

// dirIndex maps a file stem to the names sharing it in one directory.
type dirIndex struct {
	dir   string
	stems map[string][]string
}

func indexDir(dir string) dirIndex {
	idx := dirIndex{dir: dir, stems: map[string][]string{}}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return idx
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		idx.stems[stem] = append(idx.stems[stem], name)
	}
	return idx
}

// lookup returns the path of the file named id with the highest-priority
// extension in exts, or "" when there is none.
func (d dirIndex) lookup(id string, exts []string) string {
	best, bestRank := "", len(exts)
	for _, name := range d.stems[id] {
		rank := slices.Index(exts, strings.ToLower(filepath.Ext(name)))
		if rank >= 0 && rank < bestRank {
			best, bestRank = name, rank
		}
	}
	if best == "" {
		return ""
	}
	return filepath.Join(d.dir, best)
}

type diskView struct {
	music dirIndex
	image dirIndex
	video dirIndex
}

func (s *Scanner) snapshotDisk() diskView {
	return diskView{
		music: indexDir(s.dirs.Music),
		image: indexDir(s.dirs.Image),
		video: indexDir(s.dirs.Video),
	}
}

func (v diskView) status(id string) FileStatus {
	return FileStatus{
		TrackID:   id,
		MusicPath: v.music.lookup(id, AudioExtensions),
		ImagePath: v.image.lookup(id, ImageExtensions),
		VideoPath: v.video.lookup(id, []string{videoExtension}),
	}
}

// SyncItem reconciles the stored record with status. A stage whose file is
// present becomes completed with the observed path; a completed stage whose
// file is gone drops back to pending. It reports false when id is unknown.
func (s *Scanner) SyncItem(ctx context.Context, id string, status FileStatus) (bool, error) {
	rec, ok, err := s.store.Get(ctx, id)
	if err != nil || !ok {
		return false, err
	}
	patch, changed := reconcile(rec, status)
	if !changed {
		return true, nil
	}
	s.logger.Debug("reconciled track with disk", logging.Args(logging.ItemID(id), logging.EventType("track_synced"))...)
	return s.store.Update(ctx, id, patch)
}

func reconcile(rec trackdb.Record, status FileStatus) (trackdb.Patch, bool) {
	var patch trackdb.Patch
	changed := false
	observe := func(stage trackdb.Stage, observed string) (*trackdb.Status, *string) {
		current := rec.Status(stage)
		if observed == "" {
			if current == trackdb.StatusCompleted {
				changed = true
				return trackdb.Ptr(trackdb.StatusPending), nil
			}
			return nil, nil
		}
		var st *trackdb.Status
		var path *string
		if current != trackdb.StatusCompleted {
			st = trackdb.Ptr(trackdb.StatusCompleted)
			changed = true
		}
		if rec.FilePath(stage) != observed {
			path = trackdb.Ptr(observed)
			changed = true
		}
		return st, path
	}
	if st, path := observe(trackdb.StageMusic, status.MusicPath); st != nil || path != nil {
		patch.Music = &trackdb.MusicPatch{Status: st, FilePath: path}
	}
	if st, path := observe(trackdb.StageImage, status.ImagePath); st != nil || path != nil {
		patch.Image = &trackdb.ImagePatch{Status: st, FilePath: path}
	}
	if st, path := observe(trackdb.StageVideo, status.VideoPath); st != nil || path != nil {
		patch.Video = &trackdb.VideoPatch{Status: st, FilePath: path}
	}
	return patch, changed
}

// FullScanAndSync registers new files, applies the missing-file policy, and
// reconciles every stored track with the filesystem.
func (s *Scanner) FullScanAndSync(ctx context.Context) (Summary, error) {
	files, err := s.Scan()
	if err != nil {
		return Summary{}, err
	}
	summary := Summary{FilesFound: len(files)}

	snap, err := s.store.Load(ctx)
	if err != nil {
		return summary, err
	}
	for _, f := range files {
		if _, ok := snap.Tracks[f.ID]; ok {
			continue
		}
		added, err := s.RegisterNew(ctx, f)
		if err != nil {
			return summary, err
		}
		if added {
			summary.NewRegistered++
			s.logger.Info("registered new track", logging.Args(
				logging.ItemID(f.ID),
				logging.String("file", f.Filename),
				logging.EventType("track_registered"),
			)...)
		}
	}

	missing, err := s.DetectMissing(ctx)
	if err != nil {
		return summary, err
	}
	summary.MissingFound = len(missing)
	summary.MissingIDs = missing
	if len(missing) > 0 {
		if _, err := s.HandleMissing(ctx, missing, s.missingAction); err != nil {
			return summary, err
		}
	}

	records, err := s.store.All(ctx)
	if err != nil {
		return summary, err
	}
	disk := s.snapshotDisk()
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		status := disk.status(rec.TrackID)
		patch, changed := reconcile(rec, status)
		if changed {
			if _, err := s.store.Update(ctx, rec.TrackID, patch); err != nil {
				return summary, err
			}
			summary.Changed++
		}
		summary.Synced++
	}
	s.logger.Info("scan complete", logging.Args(
		logging.Int("files_found", summary.FilesFound),
		logging.Int("new_registered", summary.NewRegistered),
		logging.Int("missing_found", summary.MissingFound),
		logging.Int("changed", summary.Changed),
		logging.EventType("scan_complete"),
	)...)
	return summary, nil
}

// TracksNeedingImage returns tracks whose image is pending or failed.
func (s *Scanner) TracksNeedingImage(ctx context.Context) ([]trackdb.Record, error) {
	return s.store.QueryByStageStatus(ctx, trackdb.StageImage, trackdb.StatusPending, trackdb.StatusFailed)
}

// TracksNeedingVideo returns tracks whose video is pending or failed and
// whose image is completed.
func (s *Scanner) TracksNeedingVideo(ctx context.Context) ([]trackdb.Record, error) {
	recs, err := s.store.QueryByStageStatus(ctx, trackdb.StageVideo, trackdb.StatusPending, trackdb.StatusFailed)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(recs, func(r trackdb.Record) bool {
		return r.Image.Status != trackdb.StatusCompleted
	}), nil
}

// FullyCompleted returns tracks with music, image, and video completed.
func (s *Scanner) FullyCompleted(ctx context.Context) ([]trackdb.Record, error) {
	recs, err := s.store.All(ctx)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(recs, func(r trackdb.Record) bool { return !r.FullyCompleted() }), nil
}

// TracksByStyle returns tracks whose image was generated with style.
func (s *Scanner) TracksByStyle(ctx context.Context, style string) ([]trackdb.Record, error) {
	recs, err := s.store.All(ctx)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(recs, func(r trackdb.Record) bool { return r.Image.Style != style }), nil
}

// IDs projects records to their track ids.
func IDs(records []trackdb.Record) []string {
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.TrackID)
	}
	return ids
}

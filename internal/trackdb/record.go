package trackdb

import (
	"fmt"
	"time"
)

// Stage names one sub-record of a track.
type Stage string

const (
	StageMusic     Stage = "music"
	StageImage     Stage = "image"
	StageVideo     Stage = "video"
	StageThumbnail Stage = "thumbnail"
)

// Stages lists the sub-records that count toward completion.
var Stages = []Stage{StageMusic, StageImage, StageVideo}

// ParseStage validates a sub-record name.
func ParseStage(value string) (Stage, error) {
	switch Stage(value) {
	case StageMusic, StageImage, StageVideo, StageThumbnail:
		return Stage(value), nil
	default:
		return "", fmt.Errorf("unknown track stage %q", value)
	}
}

// Status is the lifecycle state of one stage sub-record.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusSkipped    Status = "skipped"
	StatusMissing    Status = "missing"
)

// MaxErrorLog bounds the per-track error history.
const MaxErrorLog = 10

// MusicStage describes the source audio.
type MusicStage struct {
	Status            Status    `json:"status"`
	FilePath          string    `json:"file_path,omitempty"`
	SunoTaskID        string    `json:"suno_task_id,omitempty"`
	SunoPrompt        string    `json:"suno_prompt,omitempty"`
	DurationSeconds   float64   `json:"duration_seconds,omitempty"`
	DurationFormatted string    `json:"duration_formatted,omitempty"`
	Title             string    `json:"title,omitempty"`
	Artist            string    `json:"artist,omitempty"`
	GeneratedAt       Timestamp `json:"generated_at"`
}

// ImageStage describes the generated cover art.
type ImageStage struct {
	Status      Status    `json:"status"`
	FilePath    string    `json:"file_path,omitempty"`
	PromptUsed  string    `json:"prompt_used,omitempty"`
	Style       string    `json:"style,omitempty"`
	Resolution  string    `json:"resolution,omitempty"`
	Format      string    `json:"format,omitempty"`
	GeneratedAt Timestamp `json:"generated_at"`
}

// VideoStage describes the rendered video.
type VideoStage struct {
	Status          Status    `json:"status"`
	FilePath        string    `json:"file_path,omitempty"`
	Resolution      string    `json:"resolution,omitempty"`
	DurationSeconds float64   `json:"duration,omitempty"`
	FileSizeMB      float64   `json:"file_size_mb,omitempty"`
	GeneratedAt     Timestamp `json:"generated_at"`
}

// ThumbnailStage describes the still extracted from the rendered video.
type ThumbnailStage struct {
	Status   Status `json:"status"`
	FilePath string `json:"file_path,omitempty"`
}

// ErrorEntry is one element of a track's bounded error history.
type ErrorEntry struct {
	Timestamp Timestamp `json:"timestamp"`
	Stage     string    `json:"stage"`
	Message   string    `json:"message"`
}

// Record is the persisted state of one track.
type Record struct {
	TrackID    string         `json:"track_id"`
	CreatedAt  Timestamp      `json:"created_at"`
	UpdatedAt  Timestamp      `json:"updated_at"`
	Music      MusicStage     `json:"music"`
	Image      ImageStage     `json:"image"`
	Video      VideoStage     `json:"video"`
	Thumbnail  ThumbnailStage `json:"thumbnail"`
	ErrorLog   []ErrorEntry   `json:"error_log"`
	RetryCount int            `json:"retry_count"`
}

// NewRecord returns a record with every stage pending.
func NewRecord(id string, now time.Time) Record {
	ts := NewTimestamp(now)
	return Record{
		TrackID:   id,
		CreatedAt: ts,
		UpdatedAt: ts,
		Music:     MusicStage{Status: StatusPending},
		Image:     ImageStage{Status: StatusPending},
		Video:     VideoStage{Status: StatusPending},
		Thumbnail: ThumbnailStage{Status: StatusPending},
		ErrorLog:  []ErrorEntry{},
	}
}

// Status returns the status of the given stage sub-record.
func (r Record) Status(stage Stage) Status {
	switch stage {
	case StageMusic:
		return r.Music.Status
	case StageImage:
		return r.Image.Status
	case StageVideo:
		return r.Video.Status
	case StageThumbnail:
		return r.Thumbnail.Status
	default:
		return ""
	}
}

// FilePath returns the recorded file path of the given stage sub-record.
func (r Record) FilePath(stage Stage) string {
	switch stage {
	case StageMusic:
		return r.Music.FilePath
	case StageImage:
		return r.Image.FilePath
	case StageVideo:
		return r.Video.FilePath
	case StageThumbnail:
		return r.Thumbnail.FilePath
	default:
		return ""
	}
}

// FullyCompleted reports whether music, image, and video are all completed.
func (r Record) FullyCompleted() bool {
	for _, stage := range Stages {
		if r.Status(stage) != StatusCompleted {
			return false
		}
	}
	return true
}

func (r *Record) normalize() {
	if r.Music.Status == "" {
		r.Music.Status = StatusPending
	}
	if r.Image.Status == "" {
		r.Image.Status = StatusPending
	}
	if r.Video.Status == "" {
		r.Video.Status = StatusPending
	}
	if r.Thumbnail.Status == "" {
		r.Thumbnail.Status = StatusPending
	}
	if r.ErrorLog == nil {
		r.ErrorLog = []ErrorEntry{}
	}
}

func (r *Record) appendError(entry ErrorEntry) {
	r.ErrorLog = append(r.ErrorLog, entry)
	if over := len(r.ErrorLog) - MaxErrorLog; over > 0 {
		r.ErrorLog = append([]ErrorEntry(nil), r.ErrorLog[over:]...)
	}
}

func (r Record) clone() Record {
	out := r
	out.ErrorLog = append([]ErrorEntry{}, r.ErrorLog...)
	return out
}

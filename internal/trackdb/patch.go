package trackdb

import "time"

// Patch is a partial update merged into an existing Record. Nil fields keep
// the stored value; nested stage patches merge field by field.
type Patch struct {
	Music      *MusicPatch
	Image      *ImagePatch
	Video      *VideoPatch
	Thumbnail  *ThumbnailPatch
	RetryCount *int
}

// MusicPatch updates fields of MusicStage.
type MusicPatch struct {
	Status            *Status
	FilePath          *string
	SunoTaskID        *string
	SunoPrompt        *string
	DurationSeconds   *float64
	DurationFormatted *string
	Title             *string
	Artist            *string
	GeneratedAt       *time.Time
}

// ImagePatch updates fields of ImageStage.
type ImagePatch struct {
	Status      *Status
	FilePath    *string
	PromptUsed  *string
	Style       *string
	Resolution  *string
	Format      *string
	GeneratedAt *time.Time
}

// VideoPatch updates fields of VideoStage.
type VideoPatch struct {
	Status          *Status
	FilePath        *string
	Resolution      *string
	DurationSeconds *float64
	FileSizeMB      *float64
	GeneratedAt     *time.Time
}

// ThumbnailPatch updates fields of ThumbnailStage.
type ThumbnailPatch struct {
	Status   *Status
	FilePath *string
}

// Ptr returns a pointer to v for building patches.
func Ptr[T any](v T) *T {
	return &v
}

// StatusPatch returns a patch that only changes one stage's status.
func StatusPatch(stage Stage, status Status) Patch {
	switch stage {
	case StageMusic:
		return Patch{Music: &MusicPatch{Status: &status}}
	case StageImage:
		return Patch{Image: &ImagePatch{Status: &status}}
	case StageVideo:
		return Patch{Video: &VideoPatch{Status: &status}}
	case StageThumbnail:
		return Patch{Thumbnail: &ThumbnailPatch{Status: &status}}
	default:
		return Patch{}
	}
}

// PathPatch returns a patch that sets one stage's status and file path.
func PathPatch(stage Stage, status Status, path string) Patch {
	switch stage {
	case StageMusic:
		return Patch{Music: &MusicPatch{Status: &status, FilePath: &path}}
	case StageImage:
		return Patch{Image: &ImagePatch{Status: &status, FilePath: &path}}
	case StageVideo:
		return Patch{Video: &VideoPatch{Status: &status, FilePath: &path}}
	case StageThumbnail:
		return Patch{Thumbnail: &ThumbnailPatch{Status: &status, FilePath: &path}}
	default:
		return Patch{}
	}
}

// Apply merges p into r.
func (p Patch) Apply(r *Record) {
	if p.Music != nil {
		p.Music.apply(&r.Music)
	}
	if p.Image != nil {
		p.Image.apply(&r.Image)
	}
	if p.Video != nil {
		p.Video.apply(&r.Video)
	}
	if p.Thumbnail != nil {
		set(&r.Thumbnail.Status, p.Thumbnail.Status)
		set(&r.Thumbnail.FilePath, p.Thumbnail.FilePath)
	}
	set(&r.RetryCount, p.RetryCount)
}

func (p *MusicPatch) apply(m *MusicStage) {
	set(&m.Status, p.Status)
	set(&m.FilePath, p.FilePath)
	set(&m.SunoTaskID, p.SunoTaskID)
	set(&m.SunoPrompt, p.SunoPrompt)
	set(&m.DurationSeconds, p.DurationSeconds)
	set(&m.DurationFormatted, p.DurationFormatted)
	set(&m.Title, p.Title)
	set(&m.Artist, p.Artist)
	setTime(&m.GeneratedAt, p.GeneratedAt)
}

func (p *ImagePatch) apply(i *ImageStage) {
	set(&i.Status, p.Status)
	set(&i.FilePath, p.FilePath)
	set(&i.PromptUsed, p.PromptUsed)
	set(&i.Style, p.Style)
	set(&i.Resolution, p.Resolution)
	set(&i.Format, p.Format)
	setTime(&i.GeneratedAt, p.GeneratedAt)
}

func (p *VideoPatch) apply(v *VideoStage) {
	set(&v.Status, p.Status)
	set(&v.FilePath, p.FilePath)
	set(&v.Resolution, p.Resolution)
	set(&v.DurationSeconds, p.DurationSeconds)
	set(&v.FileSizeMB, p.FileSizeMB)
	setTime(&v.GeneratedAt, p.GeneratedAt)
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func setTime(dst *Timestamp, src *time.Time) {
	if src != nil {
		*dst = NewTimestamp(*src)
	}
}

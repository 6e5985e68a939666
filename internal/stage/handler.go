package stage

import (
	"context"
	"fmt"
	"strings"

	"trackreel/internal/services"
	"trackreel/internal/trackdb"
)

// Name identifies one pipeline stage.
type Name string

const (
	Scan   Name = "scan"
	Music  Name = "music"
	Images Name = "images"
	Videos Name = "videos"
)

// Order lists the stages in execution order.
var Order = []Name{Scan, Music, Images, Videos}

// ParseName accepts stage names in either the plural pipeline form or the
// singular record form ("image", "video").
func ParseName(value string) (Name, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "scan":
		return Scan, nil
	case "music":
		return Music, nil
	case "image", "images":
		return Images, nil
	case "video", "videos":
		return Videos, nil
	default:
		return "", fmt.Errorf("unknown stage %q (expected scan, music, images, or videos)", value)
	}
}

// TrackStage returns the record sub-stage a pipeline stage writes to.
func (n Name) TrackStage() trackdb.Stage {
	switch n {
	case Images:
		return trackdb.StageImage
	case Videos:
		return trackdb.StageVideo
	case Music:
		return trackdb.StageMusic
	default:
		return ""
	}
}

// Options tune a single item run.
type Options struct {
	Force      bool
	Style      string
	Quality    string
	Resolution string
}

// Outcome is the terminal state of one item.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// ItemResult reports what happened to one track.
type ItemResult struct {
	TrackID    string  `json:"track_id"`
	Stage      Name    `json:"stage"`
	Outcome    Outcome `json:"outcome"`
	OutputPath string  `json:"output_path,omitempty"`
	Err        error   `json:"-"`
}

// Succeeded reports whether the item needs no further work.
func (r ItemResult) Succeeded() bool {
	return r.Outcome == OutcomeCompleted || r.Outcome == OutcomeSkipped
}

// Completed builds a successful result.
func Completed(name Name, id, path string) ItemResult {
	return ItemResult{TrackID: id, Stage: name, Outcome: OutcomeCompleted, OutputPath: path}
}

// Skipped builds a result for an item whose output already exists.
func Skipped(name Name, id, path string) ItemResult {
	return ItemResult{TrackID: id, Stage: name, Outcome: OutcomeSkipped, OutputPath: path}
}

// Failed builds a failed result.
func Failed(name Name, id string, err error) ItemResult {
	return ItemResult{TrackID: id, Stage: name, Outcome: OutcomeFailed, Err: err}
}

// Handler is the contract the orchestrator needs from an item-processing stage.
type Handler interface {
	Name() Name
	Process(ctx context.Context, trackID string, opts Options) ItemResult
	HealthCheck(ctx context.Context) Health
}

// StoreError classifies a record store failure so batches abort on it.
func StoreError(operation string, err error) error {
	if err == nil {
		return nil
	}
	if services.KindOf(err) == services.KindStore {
		return err
	}
	return services.Classify(services.KindStore, "store", operation, "record store update failed", err)
}

// IsFatal reports whether err must stop the whole run rather than one item.
func IsFatal(err error) bool {
	return err != nil && services.KindOf(err) == services.KindStore
}

package preflight

import (
	"trackreel/internal/config"
	"trackreel/internal/deps"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// RunAll executes the local checks for cfg: directory access, required
// binaries, and credential presence. It performs no network calls.
func RunAll(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	dirs := []struct {
		name string
		path string
	}{
		{"Music directory", cfg.Paths.MusicDir},
		{"Image directory", cfg.Paths.ImageDir},
		{"Video directory", cfg.Paths.VideoDir},
		{"Thumbnail directory", cfg.Paths.ThumbnailDir},
		{"Database directory", cfg.Paths.DBDir},
	}
	results := make([]Result, 0, len(dirs)+3)
	for _, d := range dirs {
		results = append(results, CheckDirectoryAccess(d.name, d.path))
	}
	for _, status := range CheckSystemDeps(cfg) {
		results = append(results, fromDep(status))
	}
	results = append(results, CheckImageAPIKey(cfg))
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}

func fromDep(status deps.Status) Result {
	if status.Available {
		return Result{Name: status.Name, Passed: true, Detail: status.Path}
	}
	detail := status.Detail
	if status.Optional {
		detail += " (optional)"
	}
	return Result{Name: status.Name, Detail: detail}
}

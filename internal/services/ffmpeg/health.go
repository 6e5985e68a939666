package ffmpeg

import (
	"context"
	"strings"
)

// Health reports ffmpeg readiness for rendering.
type Health struct {
	Installed bool   `json:"installed"`
	Version   string `json:"version,omitempty"`
	Libx264   bool   `json:"libx264"`
	AAC       bool   `json:"aac"`
	Ready     bool   `json:"ready"`
	Detail    string `json:"detail,omitempty"`
}

// HealthCheck probes the binary version and codec list.
func (r *Renderer) HealthCheck(ctx context.Context) Health {
	var health Health
	version, err := r.probe(ctx, "-version")
	if err != nil {
		health.Detail = err.Error()
		return health
	}
	health.Installed = true
	health.Version = parseVersion(version)

	codecs, err := r.probe(ctx, "-hide_banner", "-codecs")
	if err != nil {
		health.Detail = err.Error()
		return health
	}
	health.Libx264 = strings.Contains(codecs, r.cfg.VideoCodec)
	health.AAC = strings.Contains(codecs, r.cfg.AudioCodec)
	health.Ready = health.Libx264 && health.AAC
	if !health.Ready {
		health.Detail = "required codecs missing (" + r.cfg.VideoCodec + ", " + r.cfg.AudioCodec + ")"
	}
	return health
}

func (r *Renderer) probe(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	out, err := commandContext(ctx, r.cfg.Binary, args...).Output() //nolint:gosec
	return string(out), err
}

func parseVersion(output string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(output), "\n")
	fields := strings.Fields(line)
	for i, field := range fields {
		if field == "version" && i+1 < len(fields) {
			return fields[i+1]
		}
	}
	return strings.TrimSpace(line)
}

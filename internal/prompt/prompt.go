// Package prompt builds image-generation prompts from style templates and the
// track's music prompt.
package prompt

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"trackreel/internal/textutil"
)

// DefaultTemplate is used when no style_<name>.txt file exists.
const DefaultTemplate = "A beautiful, atmospheric background image for music visualization."

// QualitySuffix is appended to every prompt.
const QualitySuffix = "High quality, 4K resolution, cinematic lighting, professional photography, no text, no watermark."

const (
	maxExtracted = 5
	maxKeywords  = 3
)

type genreVisuals struct {
	genre    string
	keywords []string
}

// First matching genre wins.
var genres = []genreVisuals{
	{"celtic", []string{"rolling green hills", "ancient stone circles", "misty forest", "moonlight"}},
	{"lofi", []string{"cozy room", "rainy window", "warm lighting", "coffee cup", "plants"}},
	{"jazz", []string{"smoky bar", "city night", "neon lights", "piano keys"}},
	{"ambient", []string{"vast landscape", "starry sky", "ocean waves", "aurora"}},
	{"classical", []string{"grand concert hall", "elegant chandelier", "velvet curtains"}},
}

type moodVisuals struct {
	triggers []string
	keywords []string
}

var moods = []moodVisuals{
	{[]string{"folk", "traditional"}, []string{"traditional", "heritage", "cultural"}},
	{[]string{"electronic", "synth"}, []string{"futuristic", "digital", "neon"}},
	{[]string{"acoustic"}, []string{"natural", "organic", "warm"}},
}

// Builder reads style templates from a directory.
type Builder struct {
	dir string
}

// NewBuilder returns a builder reading <dir>/style_<name>.txt templates.
func NewBuilder(dir string) *Builder {
	return &Builder{dir: dir}
}

// LoadStyleTemplate returns the template text for style, or DefaultTemplate
// when the file is absent or empty.
func (b *Builder) LoadStyleTemplate(style string) (string, error) {
	name := textutil.Token(style, "default")
	path := filepath.Join(b.dir, "style_"+name+".txt")
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return DefaultTemplate, nil
		}
		return "", fmt.Errorf("read style template %s: %w", path, err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return DefaultTemplate, nil
	}
	return text, nil
}

// ExtractKeywords maps genre and mood words in musicPrompt to visual keywords.
func ExtractKeywords(musicPrompt string) []string {
	lower := strings.ToLower(musicPrompt)
	keywords := make([]string, 0, maxExtracted)
	for _, g := range genres {
		if strings.Contains(lower, g.genre) {
			keywords = append(keywords, g.keywords...)
			break
		}
	}
	for _, m := range moods {
		if slices.ContainsFunc(m.triggers, func(t string) bool { return strings.Contains(lower, t) }) {
			keywords = append(keywords, m.keywords...)
		}
	}
	if len(keywords) > maxExtracted {
		keywords = keywords[:maxExtracted]
	}
	return keywords
}

// Build joins the style template, up to three keywords, and QualitySuffix.
func (b *Builder) Build(style, musicPrompt string, custom ...string) (string, error) {
	template, err := b.LoadStyleTemplate(style)
	if err != nil {
		return "", err
	}
	keywords := ExtractKeywords(musicPrompt)
	keywords = append(keywords, custom...)
	parts := []string{template}
	if len(keywords) > 0 {
		parts = append(parts, strings.Join(keywords[:min(len(keywords), maxKeywords)], ", "))
	}
	parts = append(parts, QualitySuffix)
	return strings.Join(parts, ", "), nil
}

// AvailableStyles lists the styles with a template file, or ["default"].
func (b *Builder) AvailableStyles() []string {
	matches, _ := filepath.Glob(filepath.Join(b.dir, "style_*.txt"))
	styles := make([]string, 0, len(matches))
	for _, m := range matches {
		styles = append(styles, strings.TrimSuffix(strings.TrimPrefix(filepath.Base(m), "style_"), ".txt"))
	}
	if len(styles) == 0 {
		return []string{"default"}
	}
	slices.Sort(styles)
	return styles
}

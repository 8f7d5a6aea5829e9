// Package manifest loads batch job definitions from YAML files.
//
//	defaults:
//	  model: veo-2.0-generate-001
//	  aspect_ratio: "9:16"
//	  quality: enhanced
//	jobs:
//	  - prompt: a paper boat drifting down a gutter
//	    audio_prompt: rain and distant traffic
//	  - prompt: the product slowly rotating
//	    image: images/mug.png
//
// Image paths are resolved relative to the manifest file.
package manifest

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v2"

	"veobatch/internal/domain"
)

// Entry is one job as written in the manifest.
type Entry struct {
	Prompt      string `yaml:"prompt"`
	AudioPrompt string `yaml:"audio_prompt"`
	Image       string `yaml:"image"`
	Model       string `yaml:"model"`
	AspectRatio string `yaml:"aspect_ratio"`
	Quality     string `yaml:"quality"`
}

// Manifest is a parsed batch definition.
type Manifest struct {
	Defaults Entry   `yaml:"defaults"`
	Jobs     []Entry `yaml:"jobs"`

	baseDir string
}

// Load reads and parses the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: read %s: %w", path, err)
	}
	return Parse(data, filepath.Dir(path))
}

// Parse decodes manifest YAML. Unknown keys are rejected.
func Parse(data []byte, baseDir string) (*Manifest, error) {
	var m Manifest
	if err := yaml.UnmarshalStrict(data, &m); err != nil {
		return nil, fmt.Errorf("manifest: parse: %w", err)
	}
	if len(m.Jobs) == 0 {
		return nil, errors.New("manifest: no jobs defined")
	}
	m.baseDir = baseDir
	return &m, nil
}

// Specs resolves every entry into a validated job spec. All invalid entries
// are reported together.
func (m *Manifest) Specs() ([]domain.JobSpec, error) {
	specs := make([]domain.JobSpec, 0, len(m.Jobs))
	var errs []error
	for i, entry := range m.Jobs {
		spec, err := m.spec(m.merge(entry))
		if err == nil {
			spec = spec.WithDefaults()
			err = spec.Validate()
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("job %d: %w", i+1, err))
			continue
		}
		specs = append(specs, spec)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return specs, nil
}

func (m *Manifest) merge(e Entry) Entry {
	if e.AudioPrompt == "" {
		e.AudioPrompt = m.Defaults.AudioPrompt
	}
	if e.Model == "" {
		e.Model = m.Defaults.Model
	}
	if e.AspectRatio == "" {
		e.AspectRatio = m.Defaults.AspectRatio
	}
	if e.Quality == "" {
		e.Quality = m.Defaults.Quality
	}
	return e
}

func (m *Manifest) spec(e Entry) (domain.JobSpec, error) {
	spec := domain.JobSpec{
		AudioPrompt: strings.TrimSpace(e.AudioPrompt),
		Model:       strings.TrimSpace(e.Model),
		AspectRatio: strings.TrimSpace(e.AspectRatio),
		Quality:     domain.NormalizeQuality(e.Quality),
	}
	if strings.TrimSpace(e.Image) == "" {
		spec.Input = domain.TextInput{Prompt: e.Prompt}
		return spec, nil
	}
	path := e.Image
	if !filepath.IsAbs(path) {
		path = filepath.Join(m.baseDir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return spec, fmt.Errorf("read image: %w", err)
	}
	spec.Input = domain.ImageInput{
		Prompt: e.Prompt,
		Image: domain.SourceImage{
			Data:     data,
			MIME:     imageMIME(path, data),
			Filename: filepath.Base(path),
		},
	}
	return spec, nil
}

func imageMIME(path string, data []byte) string {
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); strings.HasPrefix(byExt, "image/") {
		return byExt
	}
	return http.DetectContentType(data)
}

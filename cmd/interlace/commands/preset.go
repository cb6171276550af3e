package commands

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/maauso/interlace-api/internal/audio"
)

// Preset is a reusable set of interlace settings stored as YAML or JSON.
// Fields left out keep their defaults.
type Preset struct {
	FadeMs        *int     `yaml:"fade_ms"`
	MinSegmentSec *float64 `yaml:"min_segment_sec"`
	MinSilenceSec *float64 `yaml:"min_silence_sec"`
	NoiseLevelDB  *float64 `yaml:"noise_level_db"`
	Ordering      *string  `yaml:"ordering"`
	FadeShape     *string  `yaml:"fade_shape"`
	BitDepth      *int     `yaml:"bit_depth"`
}

// LoadPreset reads a preset file. JSON is accepted as a subset of YAML.
func LoadPreset(path string) (*Preset, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path comes from the command line
	if err != nil {
		return nil, fmt.Errorf("read preset: %w", err)
	}

	var p Preset
	if err := yaml.UnmarshalWithOptions(data, &p, yaml.DisallowUnknownField()); err != nil {
		return nil, fmt.Errorf("parse preset %s: %w", path, err)
	}
	return &p, nil
}

// Apply overlays the preset on opts and bitDepth.
func (p *Preset) Apply(opts *audio.Options, bitDepth *int) {
	if p.FadeMs != nil {
		opts.FadeMs = *p.FadeMs
	}
	if p.MinSegmentSec != nil {
		opts.MinSegmentSec = *p.MinSegmentSec
	}
	if p.MinSilenceSec != nil {
		opts.MinSilenceSec = *p.MinSilenceSec
	}
	if p.NoiseLevelDB != nil {
		opts.NoiseLevelDB = *p.NoiseLevelDB
	}
	if p.Ordering != nil {
		opts.Ordering = audio.OrderingPolicy(*p.Ordering)
	}
	if p.FadeShape != nil {
		opts.FadeShape = audio.FadeShape(*p.FadeShape)
	}
	if p.BitDepth != nil {
		*bitDepth = *p.BitDepth
	}
}

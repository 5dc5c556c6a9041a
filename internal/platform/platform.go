package platform

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed presets.yaml
var builtinPresets []byte

// Preset holds the output limits for one publishing platform.
type Preset struct {
	Name           string `yaml:"-" json:"name"`
	MaxHashtags    int    `yaml:"max_hashtags" json:"maxHashtags"`
	ImageMaxWidth  int    `yaml:"image_max_width" json:"imageMaxWidth"`
	ImageMaxHeight int    `yaml:"image_max_height" json:"imageMaxHeight"`
	JPEGQuality    int    `yaml:"jpeg_quality" json:"jpegQuality"`
}

type file struct {
	Default   string            `yaml:"default"`
	Platforms map[string]Preset `yaml:"platforms"`
}

// Registry resolves platform names (case-insensitive, with aliases) to presets.
type Registry struct {
	defaultName string
	presets     map[string]Preset
}

var aliases = map[string]string{
	"twitter": "x",
	"ig":      "instagram",
	"insta":   "instagram",
	"fb":      "facebook",
}

// Builtin returns the registry compiled into the binary.
func Builtin() *Registry {
	r, err := parse(builtinPresets)
	if err != nil {
		panic(fmt.Sprintf("builtin platform presets: %v", err))
	}
	return r
}

// Load reads presets from path, or returns Builtin when path is empty.
func Load(path string) (*Registry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Builtin(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read platform presets: %w", err)
	}
	return parse(raw)
}

func parse(raw []byte) (*Registry, error) {
	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse platform presets: %w", err)
	}
	if len(f.Platforms) == 0 {
		return nil, fmt.Errorf("platform presets: no platforms defined")
	}
	r := &Registry{presets: make(map[string]Preset, len(f.Platforms))}
	for name, p := range f.Platforms {
		key := strings.ToLower(strings.TrimSpace(name))
		if p.ImageMaxWidth <= 0 || p.ImageMaxHeight <= 0 {
			return nil, fmt.Errorf("platform %q: image bounds must be positive", name)
		}
		if p.JPEGQuality <= 0 || p.JPEGQuality > 100 {
			p.JPEGQuality = 90
		}
		p.Name = key
		r.presets[key] = p
	}
	r.defaultName = strings.ToLower(strings.TrimSpace(f.Default))
	if _, ok := r.presets[r.defaultName]; !ok {
		names := r.Names()
		r.defaultName = names[0]
	}
	return r, nil
}

// Get returns the preset for name, falling back to the default platform.
func (r *Registry) Get(name string) Preset {
	key := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := aliases[key]; ok {
		key = alias
	}
	if p, ok := r.presets[key]; ok {
		return p
	}
	return r.presets[r.defaultName]
}

func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.presets))
	for k := range r.presets {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

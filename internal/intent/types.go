package intent

import (
	"context"

	"github.com/ent0n29/postcraft/internal/content"
)

type Source string

const (
	SourceModel     Source = "model"
	SourceHeuristic Source = "heuristic"
)

// Plan is the set of capabilities one instruction requires.
type Plan struct {
	Caption   bool   `json:"caption"`
	Hashtags  bool   `json:"hashtags"`
	Image     bool   `json:"image"`
	Rationale string `json:"rationale,omitempty"`
	Source    Source `json:"source"`
}

// Any reports whether at least one capability is requested.
func (p Plan) Any() bool { return p.Caption || p.Hashtags || p.Image }

// Capabilities lists the requested capabilities in execution order.
func (p Plan) Capabilities() []content.Capability {
	var out []content.Capability
	if p.Caption {
		out = append(out, content.CapabilityCaption)
	}
	if p.Hashtags {
		out = append(out, content.CapabilityHashtags)
	}
	if p.Image {
		out = append(out, content.CapabilityImage)
	}
	return out
}

// DefaultPlan is full-post generation: caption and hashtags.
func DefaultPlan(rationale string, source Source) Plan {
	return Plan{Caption: true, Hashtags: true, Rationale: rationale, Source: source}
}

type MediaContext struct {
	HasImage   bool `json:"hasImage"`
	HasVideo   bool `json:"hasVideo"`
	MediaCount int  `json:"mediaCount"`
}

// Hints are structured intent fields derived upstream of classification.
type Hints struct {
	Platform  string `json:"platform,omitempty"`
	Theme     string `json:"theme,omitempty"`
	Mood      string `json:"mood,omitempty"`
	Style     string `json:"style,omitempty"`
	EditImage bool   `json:"editImage,omitempty"`
}

type Request struct {
	Instruction string
	Media       MediaContext
	Hints       Hints
}

// Model is a generative classifier. It returns the raw structured response
// text, which must be a JSON object with one boolean-like value per capability.
type Model interface {
	ClassifyIntent(ctx context.Context, req Request) (string, error)
}

package intent

import "regexp"

var (
	captionTermsRe   = regexp.MustCompile(`(?i)\b(?:captions?|description|describe|copy|wording|tagline|blurb|write[- ]?up)\b`)
	hashtagTermsRe   = regexp.MustCompile(`(?i)(?:\bhash\s?tags?\b|\btags\b|#\w+)`)
	imageEditTermsRe = regexp.MustCompile(`(?i)\b(?:edit|enhance|brighten|brighter|darken|darker|crop|filter|sharpen|blur|retouch|resize|rotate|contrast|saturat\w*|colou?rs?|lighting|exposure|background|vintage|black and white|grayscale|remove|replace)\b`)
	imageNounsRe     = regexp.MustCompile(`(?i)\b(?:images?|photos?|pictures?|pics?|img|photograph|selfie|shot|visual)\b`)
	// "generate" is an image verb only when the image is its object.
	imageGenerateRe = regexp.MustCompile(`(?i)\b(?:re)?generate\s+(?:(?:a|an|the|this|my|new|another)\s+)*(?:images?|photos?|pictures?|pics?|visual)\b`)
)

type features struct {
	caption      bool
	hashtags     bool
	imageEdit    bool
	imageNoun    bool
	explicitEdit bool
}

func extract(instruction string, hints Hints) features {
	return features{
		caption:      captionTermsRe.MatchString(instruction),
		hashtags:     hashtagTermsRe.MatchString(instruction),
		imageEdit:    imageEditTermsRe.MatchString(instruction) || imageGenerateRe.MatchString(instruction),
		imageNoun:    imageNounsRe.MatchString(instruction),
		explicitEdit: hints.EditImage,
	}
}

// Rule maps an instruction feature predicate to a plan. Rules are evaluated
// in order; the first match wins.
type Rule struct {
	Name  string
	Match func(f features) bool
	Plan  Plan
}

// Rules is the heuristic table used when the generative classifier fails.
// When caption and hashtag terms both match, no rule fires and the default
// plan keeps both.
var Rules = []Rule{
	{
		Name:  "caption-only",
		Match: func(f features) bool { return f.caption && !f.hashtags },
		Plan:  Plan{Caption: true},
	},
	{
		Name:  "hashtags-only",
		Match: func(f features) bool { return f.hashtags && !f.caption },
		Plan:  Plan{Hashtags: true},
	},
	{
		Name:  "image-edit",
		Match: func(f features) bool { return (f.imageEdit && f.imageNoun) || f.explicitEdit },
		Plan:  Plan{Image: true},
	},
}

// Heuristic classifies deterministically from keywords alone.
func Heuristic(instruction string, hints Hints) Plan {
	f := extract(instruction, hints)
	plan := DefaultPlan("default: general post request", SourceHeuristic)
	for _, r := range Rules {
		if r.Match(f) {
			plan = r.Plan
			plan.Rationale = "keyword rule: " + r.Name
			plan.Source = SourceHeuristic
			break
		}
	}
	if f.explicitEdit {
		plan.Image = true
	}
	return plan
}

// MentionsVisualEdit reports whether the instruction carries image-edit
// vocabulary or refers to the image itself.
func MentionsVisualEdit(instruction string) bool {
	return imageEditTermsRe.MatchString(instruction) || imageGenerateRe.MatchString(instruction) || imageNounsRe.MatchString(instruction)
}

// TextOnly reports whether the instruction is about caption or hashtags
// and carries no visual-edit vocabulary.
func TextOnly(instruction string) bool {
	f := extract(instruction, Hints{})
	return (f.caption || f.hashtags) && !MentionsVisualEdit(instruction)
}

package content

// ProcessedContent is the latest generated state of a session. A nil field
// was never produced; a non-nil empty value was produced empty.
type ProcessedContent struct {
	IntentSummary     *string      `json:"intentSummary,omitempty"`
	Caption           *string      `json:"caption,omitempty"`
	CaptionVariations *[]string    `json:"captionVariations,omitempty"`
	Hashtags          *[]string    `json:"hashtags,omitempty"`
	HashtagsFormatted *string      `json:"hashtagsFormatted,omitempty"`
	ProcessedMedia    *[]MediaRef  `json:"processedMedia,omitempty"`
	Metadata          *RunMetadata `json:"metadata,omitempty"`
}

// Patch is a partial update produced by one orchestration run. Only non-nil
// fields are applied by Merge.
type Patch struct {
	IntentSummary     *string      `json:"intentSummary,omitempty"`
	Caption           *string      `json:"caption,omitempty"`
	CaptionVariations *[]string    `json:"captionVariations,omitempty"`
	Hashtags          *[]string    `json:"hashtags,omitempty"`
	HashtagsFormatted *string      `json:"hashtagsFormatted,omitempty"`
	ProcessedMedia    *[]MediaRef  `json:"processedMedia,omitempty"`
	Metadata          *RunMetadata `json:"metadata,omitempty"`
}

// Empty reports whether the patch carries no capability output. Metadata
// and the intent summary alone do not count.
func (p Patch) Empty() bool {
	return p.Caption == nil &&
		p.CaptionVariations == nil &&
		p.Hashtags == nil &&
		p.HashtagsFormatted == nil &&
		p.ProcessedMedia == nil
}

// Merge overlays patch onto prev field by field. Fields absent from the
// patch keep their previous value. prev is not modified.
func Merge(prev *ProcessedContent, patch Patch) ProcessedContent {
	var out ProcessedContent
	if prev != nil {
		out = prev.Clone()
	}
	if patch.IntentSummary != nil {
		out.IntentSummary = cloneString(patch.IntentSummary)
	}
	if patch.Caption != nil {
		out.Caption = cloneString(patch.Caption)
	}
	if patch.CaptionVariations != nil {
		out.CaptionVariations = cloneSlice(patch.CaptionVariations)
	}
	if patch.Hashtags != nil {
		out.Hashtags = cloneSlice(patch.Hashtags)
	}
	if patch.HashtagsFormatted != nil {
		out.HashtagsFormatted = cloneString(patch.HashtagsFormatted)
	}
	if patch.ProcessedMedia != nil {
		out.ProcessedMedia = cloneSlice(patch.ProcessedMedia)
	}
	if patch.Metadata != nil {
		out.Metadata = cloneMetadata(patch.Metadata)
	}
	return out
}

func (c ProcessedContent) Clone() ProcessedContent {
	return ProcessedContent{
		IntentSummary:     cloneString(c.IntentSummary),
		Caption:           cloneString(c.Caption),
		CaptionVariations: cloneSlice(c.CaptionVariations),
		Hashtags:          cloneSlice(c.Hashtags),
		HashtagsFormatted: cloneString(c.HashtagsFormatted),
		ProcessedMedia:    cloneSlice(c.ProcessedMedia),
		Metadata:          cloneMetadata(c.Metadata),
	}
}

// ProcessedMediaList returns the processed media, nil when never produced.
func (c *ProcessedContent) ProcessedMediaList() []MediaRef {
	if c == nil || c.ProcessedMedia == nil {
		return nil
	}
	return *c.ProcessedMedia
}

func (c *ProcessedContent) CaptionText() string {
	if c == nil || c.Caption == nil {
		return ""
	}
	return *c.Caption
}

// String returns a pointer to v for building patches.
func String(v string) *string { return &v }

// Slice returns a pointer to a copy of v for building patches. A nil v
// becomes an explicit empty list.
func Slice[T any](v []T) *[]T {
	out := make([]T, len(v))
	copy(out, v)
	return &out
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneSlice[T any](p *[]T) *[]T {
	if p == nil {
		return nil
	}
	return Slice(*p)
}

func cloneMetadata(p *RunMetadata) *RunMetadata {
	if p == nil {
		return nil
	}
	m := *p
	if p.Capabilities != nil {
		m.Capabilities = *Slice(p.Capabilities)
	}
	if p.Fallbacks != nil {
		m.Fallbacks = *Slice(p.Fallbacks)
	}
	return &m
}

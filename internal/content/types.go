package content

import (
	"strings"
	"time"

	"github.com/ent0n29/postcraft/internal/memory"
)

type Status string

const (
	StatusActive     Status = "active"
	StatusProcessing Status = "processing"
	StatusProcessed  Status = "processed"
	StatusExpired    Status = "expired"
)

type Capability string

const (
	CapabilityCaption  Capability = "caption"
	CapabilityHashtags Capability = "hashtags"
	CapabilityImage    Capability = "image"
)

type Origin string

const (
	OriginUploaded    Origin = "uploaded"
	OriginAIGenerated Origin = "ai-generated"
	OriginProcessed   Origin = "processed"
)

// MediaRef points at a stored media object owned by one session.
type MediaRef struct {
	ID        string    `json:"id"`
	Locator   string    `json:"url"`
	MimeType  string    `json:"mimeType"`
	Origin    Origin    `json:"origin"`
	Size      int64     `json:"size,omitempty"`
	Filename  string    `json:"filename,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func (m MediaRef) IsImage() bool { return strings.HasPrefix(m.MimeType, "image/") }
func (m MediaRef) IsVideo() bool { return strings.HasPrefix(m.MimeType, "video/") }
func (m MediaRef) IsAudio() bool { return strings.HasPrefix(m.MimeType, "audio/") }

// Transcript is one voice instruction after speech-to-text.
type Transcript struct {
	ID           string    `json:"id"`
	Text         string    `json:"text"`
	Confidence   *float64  `json:"confidence,omitempty"`
	LanguageHint string    `json:"languageHint,omitempty"`
	Provider     string    `json:"provider,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// RunMetadata describes the orchestration run that last touched the content.
type RunMetadata struct {
	DurationMS   int64        `json:"durationMs"`
	Capabilities []Capability `json:"capabilities"`
	Fallbacks    []string     `json:"fallbacks,omitempty"`
	Rationale    string       `json:"rationale,omitempty"`
	CompletedAt  time.Time    `json:"completedAt"`
}

// Session is the complete time-bounded working state for one client id.
type Session struct {
	ID             string              `json:"sessionId"`
	Status         Status              `json:"status"`
	CreatedAt      time.Time           `json:"createdAt"`
	LastActivityAt time.Time           `json:"lastActivityAt"`
	UpdatedAt      time.Time           `json:"updatedAt"`
	Media          []MediaRef          `json:"media"`
	Transcripts    []Transcript        `json:"transcripts"`
	Content        *ProcessedContent   `json:"processedContent,omitempty"`
	Memory         memory.Conversation `json:"conversation,omitempty"`
}

// UploadedImages returns the session's uploaded image references in order.
func (s *Session) UploadedImages() []MediaRef {
	var out []MediaRef
	for _, m := range s.Media {
		if m.Origin == OriginUploaded && m.IsImage() {
			out = append(out, m)
		}
	}
	return out
}

func (s *Session) Transcript(id string) (Transcript, bool) {
	for _, t := range s.Transcripts {
		if t.ID == id {
			return t, true
		}
	}
	return Transcript{}, false
}

func (s *Session) Clone() *Session {
	c := *s
	c.Media = append([]MediaRef(nil), s.Media...)
	c.Transcripts = append([]Transcript(nil), s.Transcripts...)
	if s.Content != nil {
		pc := s.Content.Clone()
		c.Content = &pc
	}
	c.Memory = s.Memory.Clone()
	return &c
}

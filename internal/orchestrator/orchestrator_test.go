package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ent0n29/postcraft/internal/apperr"
	"github.com/ent0n29/postcraft/internal/content"
	"github.com/ent0n29/postcraft/internal/generative"
	"github.com/ent0n29/postcraft/internal/intent"
	"github.com/ent0n29/postcraft/internal/memory"
)

func TestMain(m *testing.M) {
	// genai's opencensus dependency starts a stats worker at init.
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

type stubText struct {
	caption string
	err     error
	calls   atomic.Int32
	last    generative.CaptionRequest
}

func (s *stubText) GenerateCaption(_ context.Context, req generative.CaptionRequest) (generative.CaptionResult, error) {
	s.calls.Add(1)
	s.last = req
	if s.err != nil {
		return generative.CaptionResult{}, s.err
	}
	return generative.CaptionResult{Caption: s.caption, Variations: []string{s.caption + "!"}}, nil
}

type stubTags struct {
	mu     sync.Mutex
	tags   []string
	err    error
	delay  time.Duration
	calls  atomic.Int32
	gotCap string
	target int
}

func (s *stubTags) GenerateHashtags(ctx context.Context, req generative.HashtagRequest) (generative.HashtagResult, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.gotCap = req.Caption
	s.target = req.TargetCount
	s.mu.Unlock()
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return generative.HashtagResult{}, ctx.Err()
		}
	}
	if s.err != nil {
		return generative.HashtagResult{}, s.err
	}
	return generative.HashtagResult{Hashtags: s.tags, Formatted: fmt.Sprint(s.tags)}, nil
}

type stubImage struct {
	err   error
	block bool
	calls atomic.Int32
}

func (s *stubImage) Apply(ctx context.Context, req generative.ImageRequest) (generative.ImageResult, error) {
	s.calls.Add(1)
	if s.block {
		<-ctx.Done()
		return generative.ImageResult{}, ctx.Err()
	}
	if s.err != nil {
		return generative.ImageResult{}, s.err
	}
	return generative.ImageResult{Data: append([]byte("edited:"), req.Data...), MimeType: "image/jpeg", Provider: "stub"}, nil
}

type memWriter struct {
	mu  sync.Mutex
	put []string
}

func (w *memWriter) Put(_ context.Context, folder string, data []byte, _ string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	loc := fmt.Sprintf("/media/%s/%d.jpg", folder, len(w.put))
	w.put = append(w.put, loc)
	return loc, nil
}

type fixture struct {
	text  *stubText
	tags  *stubTags
	image *stubImage
	media *memWriter
	orch  *Orchestrator
}

func newFixture(model intent.Model) *fixture {
	f := &fixture{
		text:  &stubText{caption: "Golden hour at the pier"},
		tags:  &stubTags{tags: []string{"#sunset", "#pier"}},
		image: &stubImage{},
		media: &memWriter{},
	}
	f.orch = New(Config{Timeouts: Timeouts{Caption: time.Second, Hashtags: time.Second, Image: 200 * time.Millisecond}}, Deps{
		Classifier: intent.NewClassifier(model, 100*time.Millisecond, nil),
		Text:       f.text,
		Tags:       f.tags,
		Image:      f.image,
		Media:      f.media,
	})
	return f
}

type fixedModel string

func (m fixedModel) ClassifyIntent(context.Context, intent.Request) (string, error) {
	return string(m), nil
}

var photo = Image{Ref: content.MediaRef{ID: "m1", Locator: "/media/uploads/a.jpg", MimeType: "image/jpeg", Origin: content.OriginUploaded}, Data: []byte("raw")}

func previousContent() *content.ProcessedContent {
	return &content.ProcessedContent{
		Caption:           content.String("old caption"),
		Hashtags:          content.Slice([]string{"#old"}),
		HashtagsFormatted: content.String("#old"),
		ProcessedMedia:    content.Slice([]content.MediaRef{{ID: "p0", Locator: "/media/processed/old.jpg", MimeType: "image/jpeg", Origin: content.OriginProcessed}}),
	}
}

func TestCaptionOnlyEditKeepsOtherFields(t *testing.T) {
	f := newFixture(nil)
	prev := previousContent()

	res, err := f.orch.Run(context.Background(), Request{
		SessionID:   "s1",
		Instruction: "make the caption funnier",
		Media:       []content.MediaRef{photo.Ref},
		Images:      []Image{photo},
		Previous:    prev,
	})
	require.NoError(t, err)
	assert.Equal(t, intent.Plan{Caption: true, Rationale: "keyword rule: caption-only", Source: intent.SourceHeuristic}, res.Plan)
	require.NotNil(t, res.Patch.Caption)
	assert.Equal(t, "Golden hour at the pier", *res.Patch.Caption)
	assert.Nil(t, res.Patch.Hashtags)
	assert.Nil(t, res.Patch.ProcessedMedia)
	assert.Zero(t, f.tags.calls.Load())
	assert.Zero(t, f.image.calls.Load())
	assert.Equal(t, "old caption", f.text.last.Previous)

	merged := content.Merge(prev, res.Patch)
	assert.Equal(t, []string{"#old"}, *merged.Hashtags)
	assert.Equal(t, "/media/processed/old.jpg", (*merged.ProcessedMedia)[0].Locator)
	assert.Equal(t, []content.Capability{content.CapabilityCaption}, merged.Metadata.Capabilities)
	require.Len(t, res.Memory, 1)
	assert.Equal(t, string(content.CapabilityCaption), res.Memory[0].Capability)
}

func TestImageFailureKeepsPreviousMediaAndReturnsHashtags(t *testing.T) {
	f := newFixture(fixedModel(`{"caption": false, "hashtags": true, "image": true}`))
	f.image.err = errors.New("model overloaded")
	prev := previousContent()

	res, err := f.orch.Run(context.Background(), Request{
		Instruction: "brighten the photo and refresh the hashtags",
		Media:       []content.MediaRef{photo.Ref},
		Images:      []Image{photo},
		Previous:    prev,
	})
	require.NoError(t, err)
	assert.Nil(t, res.Patch.ProcessedMedia)
	require.NotNil(t, res.Patch.Hashtags)
	assert.Equal(t, []string{"#sunset", "#pier"}, *res.Patch.Hashtags)
	assert.True(t, apperr.IsKind(res.Failures[content.CapabilityImage], apperr.KindGeneration))
	assert.Empty(t, f.media.put)

	merged := content.Merge(prev, res.Patch)
	assert.Equal(t, "/media/processed/old.jpg", (*merged.ProcessedMedia)[0].Locator)
	assert.Equal(t, "old caption", *merged.Caption)
	assert.Equal(t, "old caption", f.tags.gotCap)
}

func TestHashtagsOnlyFirstRunLeavesCaptionAbsent(t *testing.T) {
	f := newFixture(nil)
	res, err := f.orch.Run(context.Background(), Request{Instruction: "generate 3 hashtags"})
	require.NoError(t, err)

	merged := content.Merge(nil, res.Patch)
	assert.Nil(t, merged.Caption)
	assert.Nil(t, merged.CaptionVariations)
	assert.Nil(t, merged.ProcessedMedia)
	require.NotNil(t, merged.Hashtags)
	assert.Equal(t, 3, f.tags.target)
	assert.Zero(t, f.text.calls.Load())
}

func TestFanOutFailureIsIsolated(t *testing.T) {
	f := newFixture(fixedModel(`{"caption": true, "hashtags": true, "image": true}`))
	f.tags.err = errors.New("rate limited")

	res, err := f.orch.Run(context.Background(), Request{
		Instruction: "edit the photo and write everything",
		Media:       []content.MediaRef{photo.Ref},
		Images:      []Image{photo},
	})
	require.NoError(t, err)
	require.NotNil(t, res.Patch.ProcessedMedia)
	assert.Len(t, *res.Patch.ProcessedMedia, 1)
	assert.Equal(t, content.OriginAIGenerated, (*res.Patch.ProcessedMedia)[0].Origin)
	assert.Nil(t, res.Patch.Hashtags)
	assert.Contains(t, res.Failures, content.CapabilityHashtags)
	assert.Equal(t, "Golden hour at the pier", f.tags.gotCap)
	assert.Equal(t, []content.Capability{content.CapabilityCaption, content.CapabilityImage}, res.Patch.Metadata.Capabilities)
}

func TestImageTimeoutCountsAsFailure(t *testing.T) {
	f := newFixture(fixedModel(`{"caption": false, "hashtags": true, "image": true}`))
	f.image.block = true
	f.tags.delay = 20 * time.Millisecond

	res, err := f.orch.Run(context.Background(), Request{
		Instruction: "sharpen the picture",
		Images:      []Image{photo},
		Media:       []content.MediaRef{photo.Ref},
	})
	require.NoError(t, err)
	assert.Contains(t, res.Failures, content.CapabilityImage)
	assert.NotNil(t, res.Patch.Hashtags)
}

func TestTextOnlyInstructionSkipsImage(t *testing.T) {
	f := newFixture(fixedModel(`{"caption": true, "hashtags": false, "image": true}`))
	res, err := f.orch.Run(context.Background(), Request{
		Instruction: "make the caption shorter",
		Images:      []Image{photo},
		Media:       []content.MediaRef{photo.Ref},
	})
	require.NoError(t, err)
	assert.Zero(t, f.image.calls.Load())
	assert.Nil(t, res.Patch.ProcessedMedia)
}

func TestImageSkippedWithoutMedia(t *testing.T) {
	f := newFixture(fixedModel(`{"caption": false, "hashtags": false, "image": true}`))
	res, err := f.orch.Run(context.Background(), Request{Instruction: "brighten the photo"})
	require.NoError(t, err)
	assert.Zero(t, f.image.calls.Load())
	assert.False(t, res.Produced())
	assert.Equal(t, []content.Capability{}, res.Patch.Metadata.Capabilities)
}

func TestRunUsesPerCapabilityHistory(t *testing.T) {
	f := newFixture(nil)
	var conv memory.Conversation
	conv.Append(string(content.CapabilityCaption), "first", "one", time.Time{})
	conv.Append(string(content.CapabilityHashtags), "tags", "#a", time.Time{})

	_, err := f.orch.Run(context.Background(), Request{Instruction: "rewrite the caption", Memory: conv})
	require.NoError(t, err)
	require.Len(t, f.text.last.History, 2)
	assert.Equal(t, "first", f.text.last.History[0].Content)
}

func TestRunRejectsEmptyInstruction(t *testing.T) {
	_, err := newFixture(nil).orch.Run(context.Background(), Request{Instruction: " "})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ent0n29/postcraft/internal/apperr"
	"github.com/ent0n29/postcraft/internal/content"
	"github.com/ent0n29/postcraft/internal/generative"
	"github.com/ent0n29/postcraft/internal/hashtag"
	"github.com/ent0n29/postcraft/internal/intent"
	"github.com/ent0n29/postcraft/internal/logging"
	"github.com/ent0n29/postcraft/internal/memory"
	"github.com/ent0n29/postcraft/internal/observability"
	"github.com/ent0n29/postcraft/internal/platform"
)

// MediaWriter persists produced media and returns its locator.
type MediaWriter interface {
	Put(ctx context.Context, folder string, data []byte, mimeType string) (string, error)
}

// Image is one uploaded image with its bytes loaded.
type Image struct {
	Ref  content.MediaRef
	Data []byte
}

type Request struct {
	SessionID   string
	Instruction string
	Hints       intent.Hints
	Media       []content.MediaRef
	Images      []Image
	Previous    *content.ProcessedContent
	Memory      memory.Conversation
}

type Result struct {
	Plan     intent.Plan
	Patch    content.Patch
	Memory   []memory.Exchange
	Failures map[content.Capability]error
}

// Produced reports whether any capability produced output.
func (r Result) Produced() bool { return !r.Patch.Empty() }

type Timeouts struct {
	Caption  time.Duration
	Hashtags time.Duration
	Image    time.Duration
}

type Config struct {
	Timeouts Timeouts
}

type Orchestrator struct {
	classifier *intent.Classifier
	text       generative.TextGenerator
	tags       generative.TagGenerator
	image      generative.ImageTransform
	media      MediaWriter
	presets    *platform.Registry
	timeouts   Timeouts
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

type Deps struct {
	Classifier *intent.Classifier
	Text       generative.TextGenerator
	Tags       generative.TagGenerator
	Image      generative.ImageTransform
	Media      MediaWriter
	Presets    *platform.Registry
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

func New(cfg Config, deps Deps) *Orchestrator {
	t := cfg.Timeouts
	if t.Caption <= 0 {
		t.Caption = 45 * time.Second
	}
	if t.Hashtags <= 0 {
		t.Hashtags = 45 * time.Second
	}
	if t.Image <= 0 {
		t.Image = 90 * time.Second
	}
	classifier := deps.Classifier
	if classifier == nil {
		classifier = intent.NewClassifier(nil, 0, deps.Logger)
	}
	presets := deps.Presets
	if presets == nil {
		presets = platform.Builtin()
	}
	return &Orchestrator{
		classifier: classifier,
		text:       deps.Text,
		tags:       deps.Tags,
		image:      deps.Image,
		media:      deps.Media,
		presets:    presets,
		timeouts:   t,
		metrics:    deps.Metrics,
		logger:     logging.OrNop(deps.Logger),
		now:        time.Now,
	}
}

// Run classifies the instruction and executes the required capabilities:
// caption first, then hashtags and image transform concurrently. A failing
// capability is recorded in Result.Failures and never cancels the others.
// The returned patch carries keys only for capabilities that produced output.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Result, error) {
	start := o.now()
	instruction := strings.TrimSpace(req.Instruction)
	if instruction == "" {
		return Result{}, apperr.Field("orchestrator.Run", "instruction", "must not be empty")
	}
	logger := o.logger.With(zap.String("session_id", req.SessionID))

	mediaCtx := mediaContextOf(req)
	plan, err := o.classifier.Classify(ctx, intent.Request{
		Instruction: instruction,
		Media:       intent.MediaContext{HasImage: len(req.Images) > 0 || hasImage(req.Media), HasVideo: hasVideo(req.Media), MediaCount: len(req.Media)},
		Hints:       req.Hints,
	})
	if err != nil {
		plan = intent.DefaultPlan("classifier unavailable", intent.SourceHeuristic)
	}
	o.metrics.ObserveCapability("classify", "ok", o.now().Sub(start))

	res := Result{Plan: plan, Failures: make(map[content.Capability]error)}
	var fallbacks []string
	if plan.Source == intent.SourceHeuristic {
		fallbacks = append(fallbacks, "intent:heuristic")
	}

	caption := req.Previous.CaptionText()
	if plan.Caption {
		out, err := o.runCaption(ctx, instruction, caption, mediaCtx, req.Memory)
		if err != nil {
			res.Failures[content.CapabilityCaption] = err
			logger.Warn("caption generation failed", zap.Error(err))
		} else {
			caption = out.Caption
			res.Patch.Caption = content.String(out.Caption)
			res.Patch.CaptionVariations = content.Slice(out.Variations)
			res.Memory = append(res.Memory, memory.Exchange{Capability: string(content.CapabilityCaption), User: instruction, Assistant: out.Caption})
		}
	}

	runImage := plan.Image && len(req.Images) > 0 && !intent.TextOnly(instruction)
	if plan.Image && !runImage {
		logger.Debug("image transform skipped", zap.Int("images", len(req.Images)))
	}

	var (
		tagOut   generative.HashtagResult
		tagErr   error
		imageOut []content.MediaRef
		imageFB  bool
		imageErr error
	)
	// Each task owns its result slot and returns nil; a failure in one
	// never cancels the other.
	var g errgroup.Group
	if plan.Hashtags {
		g.Go(func() error {
			tagOut, tagErr = o.runHashtags(ctx, instruction, caption, req, mediaCtx)
			return nil
		})
	}
	if runImage {
		g.Go(func() error {
			imageOut, imageFB, imageErr = o.runImages(ctx, instruction, req)
			return nil
		})
	}
	g.Wait()

	if plan.Hashtags {
		if tagErr != nil {
			res.Failures[content.CapabilityHashtags] = tagErr
			logger.Warn("hashtag generation failed", zap.Error(tagErr))
		} else {
			res.Patch.Hashtags = content.Slice(tagOut.Hashtags)
			res.Patch.HashtagsFormatted = content.String(tagOut.Formatted)
			res.Memory = append(res.Memory, memory.Exchange{Capability: string(content.CapabilityHashtags), User: instruction, Assistant: tagOut.Formatted})
		}
	}
	if runImage {
		switch {
		case imageErr != nil:
			res.Failures[content.CapabilityImage] = imageErr
			logger.Warn("image transform failed", zap.Error(imageErr))
		case len(imageOut) > 0:
			res.Patch.ProcessedMedia = content.Slice(imageOut)
		}
		if imageFB {
			fallbacks = append(fallbacks, "image:local-enhance")
		}
	}

	var ran []content.Capability
	if res.Patch.Caption != nil {
		ran = append(ran, content.CapabilityCaption)
	}
	if res.Patch.Hashtags != nil {
		ran = append(ran, content.CapabilityHashtags)
	}
	if res.Patch.ProcessedMedia != nil {
		ran = append(ran, content.CapabilityImage)
	}
	if ran == nil {
		ran = []content.Capability{}
	}

	finished := o.now()
	elapsed := finished.Sub(start)
	res.Patch.IntentSummary = content.String(summarize(plan))
	res.Patch.Metadata = &content.RunMetadata{
		DurationMS:   elapsed.Milliseconds(),
		Capabilities: ran,
		Fallbacks:    fallbacks,
		Rationale:    plan.Rationale,
		CompletedAt:  finished.UTC(),
	}
	o.metrics.ObserveOrchestration(elapsed)
	logger.Info("orchestration finished",
		zap.Strings("planned", capabilityNames(plan.Capabilities())),
		zap.Strings("produced", capabilityNames(ran)),
		zap.Int("failures", len(res.Failures)),
		zap.Duration("elapsed", elapsed),
	)
	return res, nil
}

func (o *Orchestrator) runCaption(ctx context.Context, instruction, previous string, m generative.MediaContext, conv memory.Conversation) (generative.CaptionResult, error) {
	if o.text == nil {
		return generative.CaptionResult{}, errors.New("no caption generator configured")
	}
	ctx, cancel := context.WithTimeout(ctx, o.timeouts.Caption)
	defer cancel()

	started := o.now()
	out, err := o.text.GenerateCaption(ctx, generative.CaptionRequest{
		Instruction: instruction,
		Previous:    previous,
		Media:       m,
		History:     conv.Read(string(content.CapabilityCaption)),
	})
	if err == nil && strings.TrimSpace(out.Caption) == "" {
		err = errors.New("empty caption")
	}
	o.observe("caption", err, false, started)
	if err != nil {
		return generative.CaptionResult{}, apperr.Generation("generate caption", err)
	}
	out.Caption = strings.TrimSpace(out.Caption)
	return out, nil
}

func (o *Orchestrator) runHashtags(ctx context.Context, instruction, caption string, req Request, m generative.MediaContext) (generative.HashtagResult, error) {
	if o.tags == nil {
		return generative.HashtagResult{}, errors.New("no hashtag generator configured")
	}
	ctx, cancel := context.WithTimeout(ctx, o.timeouts.Hashtags)
	defer cancel()

	target, _ := hashtag.ParseCount(instruction)
	var previous []string
	if req.Previous != nil && req.Previous.Hashtags != nil {
		previous = *req.Previous.Hashtags
	}

	started := o.now()
	out, err := o.tags.GenerateHashtags(ctx, generative.HashtagRequest{
		Instruction: instruction,
		Caption:     caption,
		Previous:    previous,
		Media:       m,
		History:     req.Memory.Read(string(content.CapabilityHashtags)),
		TargetCount: target,
		FormatLimit: o.presets.Get(req.Hints.Platform).MaxHashtags,
	})
	if err == nil && len(out.Hashtags) == 0 {
		err = errors.New("no hashtags returned")
	}
	o.observe("hashtags", err, false, started)
	if err != nil {
		return generative.HashtagResult{}, apperr.Generation("generate hashtags", err)
	}
	if len(out.Hashtags) > target {
		out.Hashtags = out.Hashtags[:target]
	}
	if out.Formatted == "" {
		out.Formatted = hashtag.Format(out.Hashtags, o.presets.Get(req.Hints.Platform).MaxHashtags)
	}
	return out, nil
}

// runImages transforms every uploaded image and persists the outputs.
// Images whose transform fails are skipped; an error is returned only when
// no image produced usable output.
func (o *Orchestrator) runImages(ctx context.Context, instruction string, req Request) ([]content.MediaRef, bool, error) {
	if o.image == nil || o.media == nil {
		return nil, false, errors.New("image transform is not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, o.timeouts.Image)
	defer cancel()

	var (
		refs     []content.MediaRef
		fallback bool
		lastErr  error
	)
	for _, img := range req.Images {
		started := o.now()
		out, err := o.image.Apply(ctx, generative.ImageRequest{
			Data:        img.Data,
			MimeType:    img.Ref.MimeType,
			Instruction: instruction,
			Platform:    req.Hints.Platform,
		})
		if err == nil && len(out.Data) == 0 {
			err = errors.New("transform returned no image data")
		}
		o.observe("image", err, out.Fallback, started)
		if err != nil {
			lastErr = err
			continue
		}
		fallback = fallback || out.Fallback
		locator, err := o.media.Put(ctx, "processed", out.Data, out.MimeType)
		if err != nil {
			lastErr = apperr.Storage("store processed image", err)
			continue
		}
		refs = append(refs, content.MediaRef{
			ID:        uuid.NewString(),
			Locator:   locator,
			MimeType:  out.MimeType,
			Origin:    originFor(out),
			Size:      int64(len(out.Data)),
			Filename:  img.Ref.Filename,
			CreatedAt: o.now().UTC(),
		})
	}
	if len(refs) == 0 {
		if lastErr == nil {
			lastErr = errors.New("no image produced")
		}
		return nil, fallback, apperr.Generation("transform image", lastErr)
	}
	return refs, fallback, nil
}

func (o *Orchestrator) observe(capability string, err error, fallback bool, started time.Time) {
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case fallback:
		outcome = "fallback"
	}
	o.metrics.ObserveCapability(capability, outcome, o.now().Sub(started))
}

func originFor(out generative.ImageResult) content.Origin {
	if out.Fallback || out.Provider == "imagefx" {
		return content.OriginProcessed
	}
	return content.OriginAIGenerated
}

func mediaContextOf(req Request) generative.MediaContext {
	m := generative.MediaContext{
		HasVideo:   hasVideo(req.Media),
		MediaCount: len(req.Media),
		Platform:   req.Hints.Platform,
		Theme:      req.Hints.Theme,
		Mood:       req.Hints.Mood,
		Style:      req.Hints.Style,
	}
	for _, img := range req.Images {
		m.Images = append(m.Images, generative.Media{Data: img.Data, MimeType: img.Ref.MimeType})
	}
	return m
}

func hasImage(media []content.MediaRef) bool {
	for _, m := range media {
		if m.IsImage() {
			return true
		}
	}
	return false
}

func hasVideo(media []content.MediaRef) bool {
	for _, m := range media {
		if m.IsVideo() {
			return true
		}
	}
	return false
}

func summarize(p intent.Plan) string {
	names := capabilityNames(p.Capabilities())
	s := "requested: " + strings.Join(names, ", ")
	if len(names) == 0 {
		s = "requested: nothing"
	}
	if p.Rationale != "" {
		s = fmt.Sprintf("%s (%s)", s, p.Rationale)
	}
	return s
}

func capabilityNames(caps []content.Capability) []string {
	out := make([]string, len(caps))
	for i, c := range caps {
		out[i] = string(c)
	}
	return out
}

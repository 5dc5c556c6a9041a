package generative

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/ent0n29/postcraft/internal/hashtag"
	"github.com/ent0n29/postcraft/internal/intent"
	"github.com/ent0n29/postcraft/internal/logging"
	"github.com/ent0n29/postcraft/internal/memory"
	"github.com/ent0n29/postcraft/internal/reliability"
)

const (
	DefaultTextModel  = "gemini-2.5-flash"
	DefaultImageModel = "gemini-2.5-flash-image"
)

var errEmptyResponse = errors.New("model returned no content")

// contentGenerator is the subset of *genai.Models used here.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini implements every capability adapter on the Gemini API.
type Gemini struct {
	models     contentGenerator
	textModel  string
	imageModel string
	retry      reliability.Policy
	logger     *zap.Logger
}

type GeminiConfig struct {
	APIKey     string
	TextModel  string
	ImageModel string
	Retry      reliability.Policy
}

func NewGemini(ctx context.Context, cfg GeminiConfig, logger *zap.Logger) (*Gemini, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return newGemini(client.Models, cfg, logger), nil
}

func newGemini(models contentGenerator, cfg GeminiConfig, logger *zap.Logger) *Gemini {
	g := &Gemini{
		models:     models,
		textModel:  strings.TrimSpace(cfg.TextModel),
		imageModel: strings.TrimSpace(cfg.ImageModel),
		retry:      cfg.Retry,
		logger:     logging.OrNop(logger),
	}
	if g.textModel == "" {
		g.textModel = DefaultTextModel
	}
	if g.imageModel == "" {
		g.imageModel = DefaultImageModel
	}
	if g.retry.Attempts <= 0 {
		g.retry = reliability.DefaultPolicy
	}
	return g
}

func (g *Gemini) generate(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	var resp *genai.GenerateContentResponse
	attempt := 0
	err := reliability.Do(ctx, g.retry, func(ctx context.Context) error {
		attempt++
		r, err := g.models.GenerateContent(ctx, model, contents, cfg)
		if err != nil {
			g.logger.Debug("gemini request failed", zap.String("model", model), zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

const captionSystemPrompt = `You write social media captions. Follow the user's instruction exactly.
Reply with a JSON object: {"caption": string, "variations": [string, string]}.
Do not include hashtags in the caption.`

func (g *Gemini) GenerateCaption(ctx context.Context, req CaptionRequest) (CaptionResult, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Instruction: %s\n", req.Instruction)
	if req.Previous != "" {
		fmt.Fprintf(&b, "Current caption: %s\n", req.Previous)
	}
	writeMediaContext(&b, req.Media)

	contents := historyContents(req.History)
	contents = append(contents, userContent(b.String(), req.Media.Images))
	resp, err := g.generate(ctx, g.textModel, contents, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(captionSystemPrompt, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		Temperature:       float32Ptr(0.8),
	})
	if err != nil {
		return CaptionResult{}, err
	}
	text := strings.TrimSpace(responseText(resp))
	if text == "" {
		return CaptionResult{}, errEmptyResponse
	}

	var parsed struct {
		Caption    string   `json:"caption"`
		Variations []string `json:"variations"`
	}
	if err := json.Unmarshal([]byte(text), &parsed); err != nil || strings.TrimSpace(parsed.Caption) == "" {
		// Some models ignore the response MIME type; treat the reply as the caption.
		return CaptionResult{Caption: text}, nil
	}
	out := CaptionResult{Caption: strings.TrimSpace(parsed.Caption)}
	for _, v := range parsed.Variations {
		if v = strings.TrimSpace(v); v != "" {
			out.Variations = append(out.Variations, v)
		}
	}
	return out, nil
}

const hashtagSystemPrompt = `You pick hashtags for social media posts.
Reply with a JSON object: {"hashtags": [string]} containing exactly the requested number of hashtags.`

func (g *Gemini) GenerateHashtags(ctx context.Context, req HashtagRequest) (HashtagResult, error) {
	target := req.TargetCount
	if target <= 0 {
		target = hashtag.DefaultCount
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Instruction: %s\nNumber of hashtags: %d\n", req.Instruction, target)
	if req.Caption != "" {
		fmt.Fprintf(&b, "Caption: %s\n", req.Caption)
	}
	if len(req.Previous) > 0 {
		fmt.Fprintf(&b, "Current hashtags: %s\n", strings.Join(req.Previous, " "))
	}
	writeMediaContext(&b, req.Media)

	contents := historyContents(req.History)
	contents = append(contents, userContent(b.String(), req.Media.Images))
	resp, err := g.generate(ctx, g.textModel, contents, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(hashtagSystemPrompt, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		Temperature:       float32Ptr(0.6),
	})
	if err != nil {
		return HashtagResult{}, err
	}
	text := strings.TrimSpace(responseText(resp))
	if text == "" {
		return HashtagResult{}, errEmptyResponse
	}

	var parsed struct {
		Hashtags []string `json:"hashtags"`
	}
	var raw []string
	if err := json.Unmarshal([]byte(text), &parsed); err == nil {
		raw = parsed.Hashtags
	} else {
		raw = strings.Fields(text)
	}
	tags := hashtag.Normalize(raw)
	if len(tags) == 0 {
		return HashtagResult{}, errEmptyResponse
	}
	if len(tags) > target {
		tags = tags[:target]
	}
	return HashtagResult{Hashtags: tags, Formatted: hashtag.Format(tags, req.FormatLimit)}, nil
}

func (g *Gemini) Apply(ctx context.Context, req ImageRequest) (ImageResult, error) {
	if len(req.Data) == 0 {
		return ImageResult{}, errors.New("image data is empty")
	}
	prompt := "Edit this image as instructed and return the edited image. Instruction: " + req.Instruction
	contents := []*genai.Content{userContent(prompt, []Media{{Data: req.Data, MimeType: req.MimeType}})}

	resp, err := g.generate(ctx, g.imageModel, contents, nil)
	if err != nil {
		return ImageResult{}, err
	}
	for _, part := range responseParts(resp) {
		if part.InlineData != nil && len(part.InlineData.Data) > 0 {
			mime := part.InlineData.MIMEType
			if mime == "" {
				mime = "image/png"
			}
			return ImageResult{
				Data:       part.InlineData.Data,
				MimeType:   mime,
				AppliedOps: []string{"generative-edit"},
				Provider:   "gemini",
			}, nil
		}
	}
	return ImageResult{}, errors.New("model returned no image")
}

const classifySystemPrompt = `Decide which parts of a social media post the user wants changed.
Reply with a JSON object: {"caption": bool, "hashtags": bool, "image": bool, "rationale": string}.
"image" is true only when the user asks to visually change the picture.`

func (g *Gemini) ClassifyIntent(ctx context.Context, req intent.Request) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Instruction: %s\n", req.Instruction)
	fmt.Fprintf(&b, "Has image: %t\nHas video: %t\nMedia count: %d\n", req.Media.HasImage, req.Media.HasVideo, req.Media.MediaCount)
	if req.Hints.Platform != "" {
		fmt.Fprintf(&b, "Platform: %s\n", req.Hints.Platform)
	}

	resp, err := g.generate(ctx, g.textModel, []*genai.Content{genai.NewContentFromText(b.String(), genai.RoleUser)}, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(classifySystemPrompt, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		Temperature:       float32Ptr(0),
	})
	if err != nil {
		return "", err
	}
	return responseText(resp), nil
}

func writeMediaContext(b *strings.Builder, m MediaContext) {
	if m.MediaCount > 0 {
		fmt.Fprintf(b, "Media items: %d (video: %t)\n", m.MediaCount, m.HasVideo)
	}
	for _, kv := range [][2]string{{"Platform", m.Platform}, {"Theme", m.Theme}, {"Mood", m.Mood}, {"Style", m.Style}} {
		if kv[1] != "" {
			fmt.Fprintf(b, "%s: %s\n", kv[0], kv[1])
		}
	}
}

func historyContents(turns []memory.Turn) []*genai.Content {
	out := make([]*genai.Content, 0, len(turns)+1)
	for _, t := range turns {
		var role genai.Role = genai.RoleUser
		if t.Role == memory.RoleAssistant {
			role = genai.RoleModel
		}
		out = append(out, genai.NewContentFromText(t.Content, role))
	}
	return out
}

func userContent(text string, media []Media) *genai.Content {
	parts := make([]*genai.Part, 0, len(media)+1)
	for _, m := range media {
		if len(m.Data) == 0 {
			continue
		}
		parts = append(parts, genai.NewPartFromBytes(m.Data, m.MimeType))
	}
	parts = append(parts, genai.NewPartFromText(text))
	return genai.NewContentFromParts(parts, genai.RoleUser)
}

func responseParts(resp *genai.GenerateContentResponse) []*genai.Part {
	if resp == nil {
		return nil
	}
	for _, c := range resp.Candidates {
		if c != nil && c.Content != nil && len(c.Content.Parts) > 0 {
			return c.Content.Parts
		}
	}
	return nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	var b strings.Builder
	for _, p := range responseParts(resp) {
		if p != nil && p.Text != "" && !p.Thought {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

func float32Ptr(v float32) *float32 { return &v }

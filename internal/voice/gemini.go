package voice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/ent0n29/postcraft/internal/audio"
)

const defaultGeminiModel = "gemini-2.5-flash"

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini transcribes through a multimodal Gemini model.
type Gemini struct {
	models contentGenerator
	model  string
}

func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return newGemini(client.Models, model), nil
}

func newGemini(models contentGenerator, model string) *Gemini {
	if strings.TrimSpace(model) == "" {
		model = defaultGeminiModel
	}
	return &Gemini{models: models, model: model}
}

func (g *Gemini) Name() string { return "gemini" }

const transcribePrompt = `Transcribe the spoken instruction in this audio verbatim.
Reply with a JSON object: {"text": string, "language": string}. Use "" for text if nobody speaks.`

func (g *Gemini) Transcribe(ctx context.Context, in Audio) (Result, error) {
	data, mime, err := audio.Prepare(in.Data, in.MimeType, in.SampleRate)
	if err != nil {
		return Result{}, err
	}
	content := genai.NewContentFromParts([]*genai.Part{
		genai.NewPartFromBytes(data, mime),
		genai.NewPartFromText(transcribePrompt),
	}, genai.RoleUser)

	resp, err := g.models.GenerateContent(ctx, g.model, []*genai.Content{content}, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return Result{}, err
	}
	var raw strings.Builder
	if resp != nil {
		for _, c := range resp.Candidates {
			if c == nil || c.Content == nil {
				continue
			}
			for _, p := range c.Content.Parts {
				if p != nil && !p.Thought {
					raw.WriteString(p.Text)
				}
			}
			break
		}
	}
	var out struct {
		Text     string `json:"text"`
		Language string `json:"language"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw.String())), &out); err != nil {
		return Result{Text: strings.TrimSpace(raw.String()), Provider: "gemini"}, nil
	}
	return Result{Text: strings.TrimSpace(out.Text), LanguageHint: out.Language, Provider: "gemini"}, nil
}

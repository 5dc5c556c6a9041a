package generative

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/ent0n29/postcraft/internal/intent"
	"github.com/ent0n29/postcraft/internal/memory"
	"github.com/ent0n29/postcraft/internal/reliability"
)

type fakeModels struct {
	replies []*genai.GenerateContentResponse
	errs    []error
	calls   int
	models  []string
	last    []*genai.Content
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	i := f.calls
	f.calls++
	f.models = append(f.models, model)
	f.last = contents
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.replies) {
		return f.replies[i], nil
	}
	return f.replies[len(f.replies)-1], nil
}

func textReply(s string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []*genai.Part{{Text: s}}},
	}}}
}

var fastRetry = reliability.Policy{Attempts: 3, Base: time.Millisecond, Cap: time.Millisecond}

func TestGeminiCaptionParsesJSON(t *testing.T) {
	fm := &fakeModels{replies: []*genai.GenerateContentResponse{textReply(`{"caption":" Golden hour ","variations":["a"," ","b"]}`)}}
	g := newGemini(fm, GeminiConfig{Retry: fastRetry}, nil)

	res, err := g.GenerateCaption(context.Background(), CaptionRequest{
		Instruction: "warm caption",
		History:     []memory.Turn{{Role: memory.RoleUser, Content: "hi"}, {Role: memory.RoleAssistant, Content: "hello"}},
		Media:       MediaContext{Images: []Media{{Data: []byte{1, 2}, MimeType: "image/png"}}, MediaCount: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, "Golden hour", res.Caption)
	assert.Equal(t, []string{"a", "b"}, res.Variations)
	assert.Equal(t, DefaultTextModel, fm.models[0])
	require.Len(t, fm.last, 3)
	assert.Equal(t, string(genai.RoleModel), fm.last[1].Role)
	assert.Len(t, fm.last[2].Parts, 2)
}

func TestGeminiCaptionAcceptsPlainText(t *testing.T) {
	fm := &fakeModels{replies: []*genai.GenerateContentResponse{textReply("Just a sunset.")}}
	res, err := newGemini(fm, GeminiConfig{Retry: fastRetry}, nil).GenerateCaption(context.Background(), CaptionRequest{Instruction: "x"})
	require.NoError(t, err)
	assert.Equal(t, "Just a sunset.", res.Caption)
}

func TestGeminiRetriesTransientErrors(t *testing.T) {
	fm := &fakeModels{
		errs:    []error{errors.New("503"), nil},
		replies: []*genai.GenerateContentResponse{nil, textReply(`{"hashtags":["sun set","#Beach","beach","sky"]}`)},
	}
	res, err := newGemini(fm, GeminiConfig{Retry: fastRetry}, nil).GenerateHashtags(context.Background(), HashtagRequest{TargetCount: 2, FormatLimit: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, fm.calls)
	assert.Equal(t, []string{"#sun", "#set"}, res.Hashtags)
	assert.Equal(t, "#sun #set", res.Formatted)
}

func TestGeminiImageRequiresInlineData(t *testing.T) {
	fm := &fakeModels{replies: []*genai.GenerateContentResponse{textReply("I cannot edit images")}}
	_, err := newGemini(fm, GeminiConfig{Retry: fastRetry}, nil).Apply(context.Background(), ImageRequest{Data: []byte{1}, MimeType: "image/jpeg"})
	require.Error(t, err)

	withImage := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []*genai.Part{{InlineData: &genai.Blob{Data: []byte{9, 9}, MIMEType: "image/png"}}}},
	}}}
	fm = &fakeModels{replies: []*genai.GenerateContentResponse{withImage}}
	res, err := newGemini(fm, GeminiConfig{Retry: fastRetry}, nil).Apply(context.Background(), ImageRequest{Data: []byte{1}, MimeType: "image/jpeg"})
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 9}, res.Data)
	assert.Equal(t, DefaultImageModel, fm.models[0])
}

func TestGeminiClassifyReturnsRawText(t *testing.T) {
	fm := &fakeModels{replies: []*genai.GenerateContentResponse{textReply(`{"caption":true}`)}}
	raw, err := newGemini(fm, GeminiConfig{Retry: fastRetry}, nil).ClassifyIntent(context.Background(), intent.Request{Instruction: "x"})
	require.NoError(t, err)
	assert.Equal(t, `{"caption":true}`, raw)
}

func TestHistoryContentsMapsRoles(t *testing.T) {
	got := historyContents([]memory.Turn{
		{Role: memory.RoleUser, Content: "make it funnier"},
		{Role: memory.RoleAssistant, Content: "Sun's out, puns out"},
	})
	require.Len(t, got, 2)
	assert.Equal(t, genai.Role(genai.RoleUser), genai.Role(got[0].Role))
	assert.Equal(t, genai.Role(genai.RoleModel), genai.Role(got[1].Role))
	assert.Equal(t, "Sun's out, puns out", got[1].Parts[0].Text)
}

package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ent0n29/postcraft/internal/apperr"
	"github.com/ent0n29/postcraft/internal/logging"
)

const defaultClassifyTimeout = 8 * time.Second

var errUnparsable = errors.New("classifier output has no capability decision")

// Classifier maps an instruction to a Plan, preferring the generative model
// and falling back to Heuristic on any model failure.
type Classifier struct {
	model   Model
	timeout time.Duration
	logger  *zap.Logger
}

func NewClassifier(model Model, timeout time.Duration, logger *zap.Logger) *Classifier {
	if timeout <= 0 {
		timeout = defaultClassifyTimeout
	}
	return &Classifier{model: model, timeout: timeout, logger: logging.OrNop(logger)}
}

// Classify returns a plan for req. Model errors, timeouts and malformed
// output are recovered locally; only invalid input is returned as an error.
func (c *Classifier) Classify(ctx context.Context, req Request) (Plan, error) {
	instruction := strings.TrimSpace(req.Instruction)
	if instruction == "" {
		return Plan{}, apperr.Field("intent.Classify", "instruction", "must not be empty")
	}
	req.Instruction = instruction

	if c.model == nil {
		return Heuristic(instruction, req.Hints), nil
	}

	plan, err := c.classifyWithModel(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			// Caller is gone; a deterministic plan is still cheap to return.
			return Heuristic(instruction, req.Hints), nil
		}
		c.logger.Warn("intent classifier fell back to keyword rules", zap.Error(err))
		return Heuristic(instruction, req.Hints), nil
	}
	if req.Hints.EditImage {
		plan.Image = true
	}
	return plan, nil
}

func (c *Classifier) classifyWithModel(ctx context.Context, req Request) (Plan, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.model.ClassifyIntent(ctx, req)
	if err != nil {
		return Plan{}, fmt.Errorf("classify intent: %w", err)
	}
	plan, err := ParseDecision(raw)
	if err != nil {
		return Plan{}, err
	}
	if !plan.Any() {
		return DefaultPlan("model requested nothing; defaulting to full post", SourceModel), nil
	}
	return plan, nil
}

var (
	captionKeys  = []string{"caption", "needs_caption", "generate_caption"}
	hashtagKeys  = []string{"hashtags", "needs_hashtags", "generate_hashtags"}
	imageKeys    = []string{"image", "image_edit", "image_transform", "needs_image", "edit_image"}
	rationaleKey = []string{"rationale", "reason", "reasoning"}
)

// ParseDecision parses a model's JSON decision object. Markdown code fences
// around the object are tolerated.
func ParseDecision(raw string) (Plan, error) {
	raw = stripFences(raw)
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return Plan{}, fmt.Errorf("parse classifier output: %w", err)
	}

	caption, okC := lookup(obj, captionKeys)
	hashtags, okH := lookup(obj, hashtagKeys)
	image, okI := lookup(obj, imageKeys)
	if !okC && !okH && !okI {
		return Plan{}, errUnparsable
	}

	plan := Plan{
		Caption:  ParseBool(caption),
		Hashtags: ParseBool(hashtags),
		Image:    ParseBool(image),
		Source:   SourceModel,
	}
	if r, ok := lookup(obj, rationaleKey); ok {
		if s, ok := r.(string); ok {
			plan.Rationale = strings.TrimSpace(s)
		}
	}
	return plan, nil
}

func lookup(obj map[string]any, keys []string) (any, bool) {
	for _, k := range keys {
		if v, ok := obj[k]; ok {
			return v, true
		}
	}
	return nil, false
}

// ParseBool interprets boolean-like values: true/"true"/"yes"/1 are true,
// everything else is false.
func ParseBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t == 1
	case int:
		return t == 1
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "y", "1":
			return true
		}
	}
	return false
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

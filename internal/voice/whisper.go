package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/ent0n29/postcraft/internal/audio"
	"github.com/ent0n29/postcraft/internal/reliability"
)

// Whisper talks to a whisper.cpp server's /inference endpoint.
type Whisper struct {
	baseURL string
	client  *http.Client
	retry   reliability.Policy
}

func NewWhisper(baseURL string, timeout time.Duration) (*Whisper, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("whisper server url is required")
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Whisper{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		retry:   reliability.Policy{Attempts: 2, Base: 250 * time.Millisecond, Cap: time.Second},
	}, nil
}

func (w *Whisper) Name() string { return "whisper" }

func (w *Whisper) Transcribe(ctx context.Context, in Audio) (Result, error) {
	data, mime, err := audio.Prepare(in.Data, in.MimeType, in.SampleRate)
	if err != nil {
		return Result{}, err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "audio"+extensionFor(mime))
	if err != nil {
		return Result{}, err
	}
	if _, err := fw.Write(data); err != nil {
		return Result{}, err
	}
	_ = mw.WriteField("temperature", "0.0")
	_ = mw.WriteField("response_format", "verbose_json")
	if lang := strings.TrimSpace(in.Language); lang != "" {
		_ = mw.WriteField("language", lang)
	}
	if err := mw.Close(); err != nil {
		return Result{}, err
	}
	payload := body.Bytes()

	var res Result
	err = reliability.Do(ctx, w.retry, func(ctx context.Context) error {
		r, err := w.post(ctx, payload, mw.FormDataContentType())
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	return res, err
}

func (w *Whisper) post(ctx context.Context, payload []byte, contentType string) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+"/inference", bytes.NewReader(payload))
	if err != nil {
		return Result{}, reliability.Permanent(err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := w.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return Result{}, context.Canceled
		}
		return Result{}, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, err
	}
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("whisper-server HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
		if !reliability.IsRetryableHTTPStatus(resp.StatusCode) {
			return Result{}, reliability.Permanent(err)
		}
		return Result{}, err
	}

	var out struct {
		Text     string `json:"text"`
		Language string `json:"language"`
		Segments []struct {
			AvgLogprob float64 `json:"avg_logprob"`
		} `json:"segments"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return Result{}, reliability.Permanent(fmt.Errorf("decode whisper response: %w", err))
	}
	res := Result{Text: strings.TrimSpace(out.Text), LanguageHint: out.Language, Provider: "whisper"}
	if n := len(out.Segments); n > 0 {
		var sum float64
		for _, s := range out.Segments {
			sum += s.AvgLogprob
		}
		c := logprobConfidence(sum / float64(n))
		res.Confidence = &c
	}
	return res, nil
}

// logprobConfidence maps an average token log-probability onto [0,1].
func logprobConfidence(avg float64) float64 {
	c := 1 + avg/2
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

func extensionFor(mime string) string {
	switch {
	case strings.Contains(mime, "wav"):
		return ".wav"
	case strings.Contains(mime, "webm"):
		return ".webm"
	case strings.Contains(mime, "ogg"):
		return ".ogg"
	case strings.Contains(mime, "mpeg"), strings.Contains(mime, "mp3"):
		return ".mp3"
	case strings.Contains(mime, "mp4"), strings.Contains(mime, "m4a"), strings.Contains(mime, "aac"):
		return ".m4a"
	default:
		return ".bin"
	}
}

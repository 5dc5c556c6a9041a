package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ent0n29/postcraft/internal/apperr"
	"github.com/ent0n29/postcraft/internal/content"
	"github.com/ent0n29/postcraft/internal/intent"
	"github.com/ent0n29/postcraft/internal/orchestrator"
	"github.com/ent0n29/postcraft/internal/policy"
	"github.com/ent0n29/postcraft/internal/protocol"
	"github.com/ent0n29/postcraft/internal/voice"
)

const defaultProcessInstruction = "Create a caption and hashtags for this post"

type editRequest struct {
	Instruction  string `json:"instruction"`
	TranscriptID string `json:"transcript_id"`
	Platform     string `json:"platform"`
	Theme        string `json:"theme"`
	Mood         string `json:"mood"`
	Style        string `json:"style"`
	EditImage    bool   `json:"edit_image"`
}

func (e editRequest) hints() intent.Hints {
	return intent.Hints{
		Platform:  strings.TrimSpace(e.Platform),
		Theme:     strings.TrimSpace(e.Theme),
		Mood:      strings.TrimSpace(e.Mood),
		Style:     strings.TrimSpace(e.Style),
		EditImage: e.EditImage,
	}
}

// runOutcome is the data payload of edit and process responses.
type runOutcome struct {
	Session    *content.Session     `json:"session"`
	Plan       intent.Plan          `json:"plan"`
	Failed     []content.Capability `json:"failed,omitempty"`
	Transcript *content.Transcript  `json:"transcript,omitempty"`
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		respondError(w, err)
		return
	}
	req, audio, err := s.parseEdit(w, r)
	if err != nil {
		respondError(w, err)
		return
	}

	ctx := r.Context()
	var transcript *content.Transcript
	switch {
	case audio != nil:
		t, err := s.transcribe(ctx, id, *audio)
		if err != nil {
			respondError(w, err)
			return
		}
		transcript = &t
		req.Instruction = t.Text
	case strings.TrimSpace(req.Instruction) == "" && req.TranscriptID != "":
		sess, err := s.sessions.Get(ctx, id)
		if err != nil {
			respondError(w, err)
			return
		}
		t, ok := sess.Transcript(req.TranscriptID)
		if !ok {
			respondError(w, apperr.NotFound("httpapi.edit", "transcript not found"))
			return
		}
		req.Instruction = t.Text
	}
	if strings.TrimSpace(req.Instruction) == "" {
		respondError(w, apperr.Field("httpapi.edit", "instruction", "provide audio, instruction or transcript_id"))
		return
	}

	out, err := s.orchestrate(ctx, id, req.Instruction, req.hints())
	if err != nil {
		respondError(w, err)
		return
	}
	out.Transcript = transcript
	respondOK(w, http.StatusOK, "edit applied", out)
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		respondError(w, err)
		return
	}
	var req editRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, apperr.Validation("httpapi.process", "request body must be JSON", nil))
		return
	}
	instruction := strings.TrimSpace(req.Instruction)
	if instruction == "" {
		instruction = defaultProcessInstruction
	}
	out, err := s.orchestrate(r.Context(), id, instruction, req.hints())
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, http.StatusOK, "content processed", out)
}

// parseEdit reads a JSON body, or a multipart/urlencoded form that may carry
// an "audio" file.
func (s *Server) parseEdit(w http.ResponseWriter, r *http.Request) (editRequest, *voice.Audio, error) {
	const op = "httpapi.edit"
	var req editRequest
	if isJSON(r) {
		if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
			return req, nil, apperr.Validation(op, "request body must be JSON", nil)
		}
		return req, nil, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1<<20)
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	var err error
	if strings.HasPrefix(ct, "multipart/") {
		err = r.ParseMultipartForm(multipartMemory)
	} else {
		err = r.ParseForm()
	}
	if err != nil {
		return req, nil, apperr.Validation(op, "malformed form body", nil)
	}
	req = editRequest{
		Instruction:  r.FormValue("instruction"),
		TranscriptID: r.FormValue("transcript_id"),
		Platform:     r.FormValue("platform"),
		Theme:        r.FormValue("theme"),
		Mood:         r.FormValue("mood"),
		Style:        r.FormValue("style"),
	}
	req.EditImage, _ = strconv.ParseBool(r.FormValue("edit_image"))

	if r.MultipartForm == nil {
		return req, nil, nil
	}
	defer r.MultipartForm.RemoveAll()
	file, fh, err := r.FormFile("audio")
	if errors.Is(err, http.ErrMissingFile) {
		return req, nil, nil
	}
	if err != nil {
		return req, nil, apperr.Field(op, "audio", "could not be read")
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return req, nil, apperr.Field(op, "audio", "could not be read")
	}
	if len(data) == 0 {
		return req, nil, apperr.Field(op, "audio", "file is empty")
	}
	mt := detectMime(fh.Header.Get("Content-Type"), data)
	if !strings.HasPrefix(mt, "audio/") && !strings.HasPrefix(mt, "video/webm") {
		return req, nil, apperr.Field(op, "audio", "must be an audio file")
	}
	rate, _ := strconv.Atoi(r.FormValue("sample_rate"))
	return req, &voice.Audio{Data: data, MimeType: mt, SampleRate: rate, Language: r.FormValue("language")}, nil
}

// transcribe converts audio to text and records the transcript.
func (s *Server) transcribe(ctx context.Context, id string, audio voice.Audio) (content.Transcript, error) {
	if s.transcriber == nil {
		return content.Transcript{}, apperr.Generation("httpapi.transcribe", errors.New("no transcriber configured"))
	}
	started := time.Now()
	res, err := s.transcriber.Transcribe(ctx, audio)
	s.metrics.ObserveCapability("transcribe", outcomeOf(err), time.Since(started))
	if err != nil {
		s.logger.Warn("transcription failed", zap.String("session_id", id), zap.Error(err))
		s.hub.Publish(id, protocol.NewErrorEvent(id, "transcription_failed", "transcriber", "voice instruction could not be transcribed", true))
		return content.Transcript{}, apperr.Generation("httpapi.transcribe", err)
	}
	s.logger.Debug("transcribed",
		zap.String("session_id", id),
		zap.String("provider", res.Provider),
		zap.String("text", policy.Excerpt(res.Text, 80)),
	)
	t := content.Transcript{
		Text:         res.Text,
		Confidence:   res.Confidence,
		LanguageHint: res.LanguageHint,
		Provider:     res.Provider,
	}
	sess, err := s.sessions.AddTranscript(ctx, id, t)
	if err != nil {
		return content.Transcript{}, err
	}
	return sess.Transcripts[len(sess.Transcripts)-1], nil
}

// orchestrate runs one generation against the session's uploaded images
// and merges the result. When nothing was produced and a capability failed,
// the session is left unchanged and a generation error is returned.
func (s *Server) orchestrate(ctx context.Context, id, instruction string, hints intent.Hints) (runOutcome, error) {
	sess, _, err := s.sessions.GetOrCreate(ctx, id)
	if err != nil {
		return runOutcome{}, err
	}
	if _, err := s.sessions.SetStatus(ctx, id, content.StatusProcessing); err != nil {
		return runOutcome{}, err
	}
	s.hub.Publish(id, protocol.NewOrchestrationStarted(id, instruction))
	s.logger.Info("orchestration started",
		zap.String("session_id", id),
		zap.String("instruction", policy.Excerpt(instruction, 120)),
	)
	started := time.Now()

	res, err := s.orchestrator.Run(ctx, orchestrator.Request{
		SessionID:   id,
		Instruction: instruction,
		Hints:       hints,
		Media:       sess.Media,
		Images:      s.loadImages(ctx, id, sess.UploadedImages()),
		Previous:    sess.Content,
		Memory:      sess.Memory,
	})
	if err != nil {
		s.restoreStatus(id)
		s.hub.Publish(id, protocol.NewErrorEvent(id, "orchestration_failed", "orchestrator", apperr.PublicMessage(err), false))
		if apperr.IsKind(err, apperr.KindValidation) {
			return runOutcome{}, err
		}
		s.logger.Error("orchestration failed", zap.String("session_id", id), zap.Error(err))
		return runOutcome{}, apperr.Internal("httpapi.orchestrate", err)
	}

	failed := failedCapabilities(res.Failures)
	var fallbacks []string
	var produced []content.Capability
	if res.Patch.Metadata != nil {
		fallbacks = res.Patch.Metadata.Fallbacks
		produced = res.Patch.Metadata.Capabilities
	}
	completed := func(produced []content.Capability) {
		s.hub.Publish(id, protocol.NewOrchestrationCompleted(id, produced, failed, fallbacks, time.Since(started)))
	}

	if !res.Produced() && len(failed) > 0 {
		s.restoreStatus(id)
		completed(nil)
		s.hub.Publish(id, protocol.NewErrorEvent(id, "generation_failed", "orchestrator", "no content could be generated", true))
		errs := make([]error, 0, len(res.Failures))
		for _, c := range failed {
			errs = append(errs, res.Failures[c])
		}
		return runOutcome{}, apperr.Generation("httpapi.orchestrate", errors.Join(errs...))
	}

	updated, err := s.sessions.ApplyResult(ctx, id, res.Patch, res.Memory)
	if err != nil {
		s.restoreStatus(id)
		return runOutcome{}, err
	}
	completed(produced)
	s.hub.Publish(id, protocol.NewSessionUpdated(updated, "orchestration"))
	return runOutcome{Session: updated, Plan: res.Plan, Failed: failed}, nil
}

// restoreStatus leaves processing after a failed run. It uses a fresh
// context so a cancelled request does not strand the session.
func (s *Server) restoreStatus(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := s.sessions.SetStatus(ctx, id, content.StatusActive); err != nil {
		s.logger.Warn("status restore failed", zap.String("session_id", id), zap.Error(err))
	}
}

func (s *Server) loadImages(ctx context.Context, id string, refs []content.MediaRef) []orchestrator.Image {
	out := make([]orchestrator.Image, 0, len(refs))
	for _, ref := range refs {
		data, err := s.media.Get(ctx, ref.Locator)
		if err != nil {
			s.logger.Warn("uploaded image unavailable", zap.String("session_id", id), zap.String("locator", ref.Locator), zap.Error(err))
			continue
		}
		out = append(out, orchestrator.Image{Ref: ref, Data: data})
	}
	return out
}

func failedCapabilities(failures map[content.Capability]error) []content.Capability {
	if len(failures) == 0 {
		return nil
	}
	out := make([]content.Capability, 0, len(failures))
	for c := range failures {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func outcomeOf(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

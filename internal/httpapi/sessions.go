package httpapi

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ent0n29/postcraft/internal/apperr"
	"github.com/ent0n29/postcraft/internal/content"
	"github.com/ent0n29/postcraft/internal/protocol"
	"github.com/ent0n29/postcraft/internal/session"
	"github.com/ent0n29/postcraft/internal/storage"
)

const multipartMemory = 32 << 20

func sessionID(r *http.Request) (string, error) {
	id := chi.URLParam(r, "sessionId")
	if err := session.ValidateID(id); err != nil {
		return "", err
	}
	return id, nil
}

// upload is one validated multipart file.
type upload struct {
	header *multipart.FileHeader
	mime   string
	data   []byte
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		respondError(w, err)
		return
	}
	limit := s.cfg.MaxUploadBytes*int64(s.cfg.MaxFilesPerCall) + 1<<20
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		respondError(w, apperr.Field("httpapi.upload", "files", "expected a multipart form within the size limit"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		headers = r.MultipartForm.File["file"]
	}
	uploads, err := s.readUploads(headers)
	if err != nil {
		respondError(w, err)
		return
	}

	ctx := r.Context()
	refs := make([]content.MediaRef, 0, len(uploads))
	for _, u := range uploads {
		loc, err := s.media.Put(ctx, storage.FolderUploads, u.data, u.mime)
		if err != nil {
			s.releaseRefs(r, refs)
			s.logger.Error("upload store failed", zap.String("session_id", id), zap.Error(err))
			respondError(w, apperr.Storage("httpapi.upload", err))
			return
		}
		refs = append(refs, content.MediaRef{
			ID:        uuid.NewString(),
			Locator:   loc,
			MimeType:  u.mime,
			Origin:    content.OriginUploaded,
			Size:      int64(len(u.data)),
			Filename:  filepath.Base(u.header.Filename),
			CreatedAt: time.Now().UTC(),
		})
	}

	sess, err := s.sessions.AddMedia(ctx, id, refs)
	if err != nil {
		s.releaseRefs(r, refs)
		respondError(w, err)
		return
	}
	s.hub.Publish(id, protocol.NewSessionUpdated(sess, "upload"))
	respondOK(w, http.StatusCreated, fmt.Sprintf("%d file(s) uploaded", len(refs)), map[string]any{
		"sessionId": id,
		"media":     refs,
	})
}

// readUploads validates every file before any is stored.
func (s *Server) readUploads(headers []*multipart.FileHeader) ([]upload, error) {
	const op = "httpapi.upload"
	if len(headers) == 0 {
		return nil, apperr.Field(op, "files", "at least one file is required")
	}
	if len(headers) > s.cfg.MaxFilesPerCall {
		return nil, apperr.Field(op, "files", fmt.Sprintf("at most %d files per upload", s.cfg.MaxFilesPerCall))
	}
	out := make([]upload, 0, len(headers))
	problems := make(map[string]string)
	for i, fh := range headers {
		field := fmt.Sprintf("files[%d]", i)
		if fh.Size == 0 {
			problems[field] = "file is empty"
			continue
		}
		if fh.Size > s.cfg.MaxUploadBytes {
			problems[field] = fmt.Sprintf("file exceeds %d bytes", s.cfg.MaxUploadBytes)
			continue
		}
		data, err := readPart(fh)
		if err != nil {
			problems[field] = "file could not be read"
			continue
		}
		mt := detectMime(fh.Header.Get("Content-Type"), data)
		if !s.mimeAllowed(mt) {
			problems[field] = fmt.Sprintf("unsupported media type %q", mt)
			continue
		}
		out = append(out, upload{header: fh, mime: mt, data: data})
	}
	if len(problems) > 0 {
		return nil, apperr.Validation(op, "one or more files were rejected", problems)
	}
	return out, nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// detectMime trusts a specific declared type and sniffs generic ones.
func detectMime(declared string, data []byte) string {
	mt, _, err := mime.ParseMediaType(declared)
	if err != nil || mt == "" || mt == "application/octet-stream" {
		mt, _, _ = mime.ParseMediaType(http.DetectContentType(data))
	}
	return strings.ToLower(mt)
}

func (s *Server) mimeAllowed(mt string) bool {
	if len(s.allowedMime) == 0 {
		return strings.HasPrefix(mt, "image/") || strings.HasPrefix(mt, "video/") || strings.HasPrefix(mt, "audio/")
	}
	_, ok := s.allowedMime[mt]
	return ok
}

func (s *Server) releaseRefs(r *http.Request, refs []content.MediaRef) {
	for _, ref := range refs {
		if _, err := s.media.Delete(r.Context(), ref.Locator); err != nil {
			s.logger.Warn("media cleanup failed", zap.String("locator", ref.Locator), zap.Error(err))
		}
	}
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		respondError(w, err)
		return
	}
	sess, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, http.StatusOK, "", sess)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		respondError(w, err)
		return
	}
	if err := s.sessions.Delete(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	s.hub.CloseSession(id)
	respondOK(w, http.StatusOK, "session deleted", map[string]string{"sessionId": id})
}

type export struct {
	SessionID   string                    `json:"sessionId"`
	ExportedAt  time.Time                 `json:"exportedAt"`
	Content     *content.ProcessedContent `json:"processedContent"`
	Media       []content.MediaRef        `json:"media"`
	Transcripts []content.Transcript      `json:"transcripts"`
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		respondError(w, err)
		return
	}
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "zip" {
		respondError(w, apperr.Field("httpapi.download", "format", "must be json or zip"))
		return
	}
	sess, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	if sess.Content == nil {
		respondError(w, apperr.NotFound("httpapi.download", "session has no processed content"))
		return
	}
	exp := export{
		SessionID:   id,
		ExportedAt:  time.Now().UTC(),
		Content:     sess.Content,
		Media:       sess.Media,
		Transcripts: sess.Transcripts,
	}
	if format == "json" {
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.json"`, id))
		respondOK(w, http.StatusOK, "", exp)
		return
	}

	archive, err := s.buildArchive(r, exp)
	if err != nil {
		s.logger.Error("export archive failed", zap.String("session_id", id), zap.Error(err))
		respondError(w, apperr.Internal("httpapi.download", err))
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.zip"`, id))
	w.Header().Set("Content-Length", strconv.Itoa(len(archive)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}

// buildArchive packs content.json and every processed media file. Missing
// media objects are skipped.
func (s *Server) buildArchive(r *http.Request, exp export) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	meta, err := json.MarshalIndent(exp, "", "  ")
	if err != nil {
		return nil, err
	}
	f, err := zw.Create("content.json")
	if err != nil {
		return nil, err
	}
	if _, err := f.Write(meta); err != nil {
		return nil, err
	}
	for i, ref := range exp.Content.ProcessedMediaList() {
		data, err := s.media.Get(r.Context(), ref.Locator)
		if errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("export skipped missing media", zap.String("locator", ref.Locator))
			continue
		}
		if err != nil {
			return nil, err
		}
		name := fmt.Sprintf("media/%02d-%s", i+1, path.Base(ref.Locator))
		f, err := zw.Create(name)
		if err != nil {
			return nil, err
		}
		if _, err := f.Write(data); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *Server) handleSavePost(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		respondError(w, err)
		return
	}
	post, err := s.sessions.SavePost(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, http.StatusCreated, "post saved", post)
}

func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			respondError(w, apperr.Field("httpapi.posts", "limit", "must be between 1 and 100"))
			return
		}
		limit = n
	}
	posts, total, err := s.sessions.ListPosts(r.Context(), limit)
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, http.StatusOK, "", map[string]any{"posts": posts, "total": total})
}

func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "postId")
	if err := s.sessions.DeletePost(r.Context(), postID); err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, http.StatusOK, "post deleted", map[string]string{"postId": postID})
}

package session

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ent0n29/postcraft/internal/apperr"
	"github.com/ent0n29/postcraft/internal/content"
	"github.com/ent0n29/postcraft/internal/logging"
	"github.com/ent0n29/postcraft/internal/memory"
	"github.com/ent0n29/postcraft/internal/observability"
	"github.com/ent0n29/postcraft/internal/storage"
)

const (
	sessionKeyPrefix = "session:"
	postKeyPrefix    = "post:"
	postsTimelineKey = "posts:timeline"

	DefaultTTL = 24 * time.Hour
)

var idRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ValidateID checks a caller-supplied session or post id.
func ValidateID(id string) error {
	if !idRe.MatchString(id) {
		return apperr.Field("session.ValidateID", "sessionId", "must be 1-128 letters, digits, '-' or '_'")
	}
	return nil
}

// IsSessionKey reports whether a store key holds session state, and returns
// the session id.
func IsSessionKey(key string) (string, bool) {
	if len(key) > len(sessionKeyPrefix) && key[:len(sessionKeyPrefix)] == sessionKeyPrefix {
		return key[len(sessionKeyPrefix):], true
	}
	return "", false
}

// Media is the slice of storage.MediaStore the service needs: saved posts
// copy their files, and superseded or deleted media is released.
type Media interface {
	Get(ctx context.Context, locator string) ([]byte, error)
	Put(ctx context.Context, folder string, data []byte, mimeType string) (string, error)
	Delete(ctx context.Context, locator string) (bool, error)
}

// Post is processed content saved to the timeline.
type Post struct {
	ID        string                   `json:"id"`
	SessionID string                   `json:"sessionId"`
	Content   content.ProcessedContent `json:"content"`
	CreatedAt time.Time                `json:"createdAt"`
}

type Config struct {
	TTL     time.Duration
	PostTTL time.Duration
}

// Service owns session state in a Store. Read-modify-write cycles are
// serialized per session id within one process; across processes the last
// writer wins.
type Service struct {
	store   Store
	media   Media
	ttl     time.Duration
	postTTL time.Duration
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
	locks   [64]sync.Mutex
}

func NewService(cfg Config, store Store, media Media, metrics *observability.Metrics, logger *zap.Logger) *Service {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		store:   store,
		media:   media,
		ttl:     ttl,
		postTTL: cfg.PostTTL,
		metrics: metrics,
		logger:  logging.OrNop(logger),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) TTL() time.Duration { return s.ttl }

func (s *Service) lock(id string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	mu := &s.locks[h.Sum32()%uint32(len(s.locks))]
	mu.Lock()
	return mu.Unlock
}

func (s *Service) load(ctx context.Context, id string) (*content.Session, error) {
	raw, err := s.store.Get(ctx, sessionKeyPrefix+id)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("session.load", "session not found")
	}
	if err != nil {
		return nil, apperr.Storage("session.load", err)
	}
	var sess content.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, apperr.Storage("session.decode", err)
	}
	return &sess, nil
}

func (s *Service) save(ctx context.Context, sess *content.Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return apperr.Internal("session.encode", err)
	}
	if err := s.store.Set(ctx, sessionKeyPrefix+sess.ID, raw, s.ttl); err != nil {
		return apperr.Storage("session.save", err)
	}
	return nil
}

func (s *Service) fresh(id string) *content.Session {
	now := s.now()
	return &content.Session{
		ID:             id,
		Status:         content.StatusActive,
		CreatedAt:      now,
		LastActivityAt: now,
		UpdatedAt:      now,
		Media:          []content.MediaRef{},
		Transcripts:    []content.Transcript{},
	}
}

// Get returns the session, refreshing its TTL.
func (s *Service) Get(ctx context.Context, id string) (*content.Session, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	unlock := s.lock(id)
	defer unlock()
	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.LastActivityAt = s.now()
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// GetOrCreate returns the session for id, creating it on first reference.
func (s *Service) GetOrCreate(ctx context.Context, id string) (*content.Session, bool, error) {
	if err := ValidateID(id); err != nil {
		return nil, false, err
	}
	unlock := s.lock(id)
	defer unlock()
	return s.getOrCreateLocked(ctx, id)
}

func (s *Service) getOrCreateLocked(ctx context.Context, id string) (*content.Session, bool, error) {
	sess, err := s.load(ctx, id)
	created := false
	switch {
	case apperr.IsKind(err, apperr.KindNotFound):
		sess, created = s.fresh(id), true
	case err != nil:
		return nil, false, err
	default:
		sess.LastActivityAt = s.now()
	}
	if err := s.save(ctx, sess); err != nil {
		return nil, false, err
	}
	if created {
		s.metrics.SessionEvent("created")
		s.metrics.SessionOpened()
		s.logger.Info("session created", zap.String("session_id", id))
	}
	return sess, created, nil
}

// update applies fn to the session under the per-id lock and persists it.
func (s *Service) update(ctx context.Context, id string, fn func(*content.Session) error) (*content.Session, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	unlock := s.lock(id)
	defer unlock()
	sess, _, err := s.getOrCreateLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(sess); err != nil {
		return nil, err
	}
	now := s.now()
	sess.LastActivityAt = now
	sess.UpdatedAt = now
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Service) AddMedia(ctx context.Context, id string, refs []content.MediaRef) (*content.Session, error) {
	return s.update(ctx, id, func(sess *content.Session) error {
		sess.Media = append(sess.Media, refs...)
		return nil
	})
}

func (s *Service) AddTranscript(ctx context.Context, id string, t content.Transcript) (*content.Session, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}
	return s.update(ctx, id, func(sess *content.Session) error {
		sess.Transcripts = append(sess.Transcripts, t)
		return nil
	})
}

// SetStatus records a lifecycle status such as processing. Setting active
// on a session that already holds processed content yields processed.
func (s *Service) SetStatus(ctx context.Context, id string, status content.Status) (*content.Session, error) {
	return s.update(ctx, id, func(sess *content.Session) error {
		if status == content.StatusActive && sess.Content != nil {
			status = content.StatusProcessed
		}
		sess.Status = status
		return nil
	})
}

// ApplyResult merges patch into the session's processed content, records
// the conversation exchanges and persists the new state. When the patch
// replaces processed media, the previous processed files are deleted only
// after the new state has been written; deletion failures are logged.
func (s *Service) ApplyResult(ctx context.Context, id string, patch content.Patch, exchanges []memory.Exchange) (*content.Session, error) {
	var stale []content.MediaRef
	sess, err := s.update(ctx, id, func(sess *content.Session) error {
		previous := sess.Content.ProcessedMediaList()
		merged := content.Merge(sess.Content, patch)
		sess.Content = &merged
		sess.Memory.Record(exchanges, s.now())
		sess.Status = content.StatusProcessed
		if patch.ProcessedMedia != nil {
			stale = supersededMedia(previous, *patch.ProcessedMedia)
		}
		return nil
	})
	if err != nil {
		if patch.ProcessedMedia != nil {
			s.releaseMedia(ctx, id, *patch.ProcessedMedia)
		}
		return nil, err
	}
	s.releaseMedia(ctx, id, stale)
	return sess, nil
}

// Delete removes the session and releases all of its media.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	unlock := s.lock(id)
	defer unlock()
	sess, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.store.Delete(ctx, sessionKeyPrefix+id); err != nil {
		return apperr.Storage("session.delete", err)
	}
	s.metrics.SessionEvent("deleted")
	s.metrics.SessionClosed()

	media := append([]content.MediaRef(nil), sess.Media...)
	media = append(media, sess.Content.ProcessedMediaList()...)
	s.releaseMedia(ctx, id, media)
	s.logger.Info("session deleted", zap.String("session_id", id), zap.Int("media", len(media)))
	return nil
}

func (s *Service) releaseMedia(ctx context.Context, id string, refs []content.MediaRef) {
	if s.media == nil {
		return
	}
	for _, ref := range refs {
		if _, err := s.media.Delete(ctx, ref.Locator); err != nil {
			s.logger.Warn("media cleanup failed",
				zap.String("session_id", id),
				zap.String("locator", ref.Locator),
				zap.Error(err),
			)
		}
	}
}

func supersededMedia(previous, next []content.MediaRef) []content.MediaRef {
	keep := make(map[string]struct{}, len(next))
	for _, m := range next {
		keep[m.Locator] = struct{}{}
	}
	var out []content.MediaRef
	for _, m := range previous {
		if _, ok := keep[m.Locator]; !ok {
			out = append(out, m)
		}
	}
	return out
}

// SavePost snapshots the session's processed content onto the timeline.
// Processed files are copied under storage.FolderPosts so later edits or a
// session delete cannot remove what the post points at.
func (s *Service) SavePost(ctx context.Context, id string) (Post, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return Post{}, err
	}
	if sess.Content == nil {
		return Post{}, apperr.Validation("session.SavePost", "session has no processed content to save", nil)
	}
	post := Post{ID: uuid.NewString(), SessionID: id, Content: sess.Content.Clone(), CreatedAt: s.now()}
	copies, err := s.copyMedia(ctx, id, post.Content.ProcessedMediaList())
	if err != nil {
		return Post{}, err
	}
	if copies != nil {
		post.Content.ProcessedMedia = &copies
	}
	raw, err := json.Marshal(post)
	if err != nil {
		s.releaseMedia(ctx, id, copies)
		return Post{}, apperr.Internal("post.encode", err)
	}
	if err := s.store.Set(ctx, postKeyPrefix+post.ID, raw, s.postTTL); err != nil {
		s.releaseMedia(ctx, id, copies)
		return Post{}, apperr.Storage("post.save", err)
	}
	if err := s.store.AppendToOrderedSet(ctx, postsTimelineKey, float64(post.CreatedAt.UnixMilli()), post.ID); err != nil {
		_, _ = s.store.Delete(ctx, postKeyPrefix+post.ID)
		s.releaseMedia(ctx, id, copies)
		return Post{}, apperr.Storage("post.index", err)
	}
	return post, nil
}

// copyMedia duplicates refs under the posts folder. On failure the copies
// made so far are released.
func (s *Service) copyMedia(ctx context.Context, id string, refs []content.MediaRef) ([]content.MediaRef, error) {
	if len(refs) == 0 || s.media == nil {
		return nil, nil
	}
	out := make([]content.MediaRef, 0, len(refs))
	for _, ref := range refs {
		data, err := s.media.Get(ctx, ref.Locator)
		if err == nil {
			var loc string
			loc, err = s.media.Put(ctx, storage.FolderPosts, data, ref.MimeType)
			if err == nil {
				ref.Locator = loc
				out = append(out, ref)
				continue
			}
		}
		s.releaseMedia(ctx, id, out)
		return nil, apperr.Storage("post.copyMedia", err)
	}
	return out, nil
}

// ListPosts returns up to limit posts, newest first, and the timeline size.
func (s *Service) ListPosts(ctx context.Context, limit int) ([]Post, int64, error) {
	if limit <= 0 {
		limit = 20
	}
	ids, err := s.store.RangeReverse(ctx, postsTimelineKey, 0, int64(limit)-1)
	if err != nil {
		return nil, 0, apperr.Storage("post.list", err)
	}
	posts := make([]Post, 0, len(ids))
	for _, pid := range ids {
		raw, err := s.store.Get(ctx, postKeyPrefix+pid)
		if errors.Is(err, ErrNotFound) {
			// Post body expired; drop the dangling index entry.
			_, _ = s.store.RemoveMember(ctx, postsTimelineKey, pid)
			continue
		}
		if err != nil {
			return nil, 0, apperr.Storage("post.get", err)
		}
		var p Post
		if err := json.Unmarshal(raw, &p); err != nil {
			s.logger.Warn("skipping undecodable post", zap.String("post_id", pid), zap.Error(err))
			continue
		}
		posts = append(posts, p)
	}
	total, err := s.CountPosts(ctx)
	if err != nil {
		return nil, 0, err
	}
	return posts, total, nil
}

func (s *Service) CountPosts(ctx context.Context) (int64, error) {
	n, err := s.store.Cardinality(ctx, postsTimelineKey)
	if err != nil {
		return 0, apperr.Storage("post.count", err)
	}
	return n, nil
}

// DeletePost removes the post from the timeline and releases its copied
// media.
func (s *Service) DeletePost(ctx context.Context, postID string) error {
	if !idRe.MatchString(postID) {
		return apperr.Field("session.DeletePost", "postId", "invalid")
	}
	var media []content.MediaRef
	raw, err := s.store.Get(ctx, postKeyPrefix+postID)
	switch {
	case err == nil:
		var p Post
		if err := json.Unmarshal(raw, &p); err == nil {
			media = p.Content.ProcessedMediaList()
		}
	case !errors.Is(err, ErrNotFound):
		return apperr.Storage("post.get", err)
	}
	removed, err := s.store.RemoveMember(ctx, postsTimelineKey, postID)
	if err != nil {
		return apperr.Storage("post.unindex", err)
	}
	deleted, err := s.store.Delete(ctx, postKeyPrefix+postID)
	if err != nil {
		return apperr.Storage("post.delete", err)
	}
	if !removed && !deleted {
		return apperr.NotFound("session.DeletePost", "post not found")
	}
	s.releaseMedia(ctx, postID, media)
	return nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

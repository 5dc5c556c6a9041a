package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/postcraft/internal/apperr"
	"github.com/ent0n29/postcraft/internal/content"
	"github.com/ent0n29/postcraft/internal/memory"
)

type recordingMedia struct {
	mu      sync.Mutex
	deleted []string
	put     []string
	fail    bool
	missing map[string]bool
}

func (m *recordingMedia) Get(_ context.Context, locator string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.missing[locator] {
		return nil, errors.New("object not found")
	}
	return []byte(locator), nil
}

func (m *recordingMedia) Put(_ context.Context, folder string, _ []byte, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	loc := fmt.Sprintf("%s/%d", folder, len(m.put))
	m.put = append(m.put, loc)
	return loc, nil
}

func (m *recordingMedia) Delete(_ context.Context, locator string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, locator)
	if m.fail {
		return false, errors.New("disk gone")
	}
	return true, nil
}

type failingSetStore struct {
	*MemoryStore
	failSet bool
}

func (s *failingSetStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s.failSet {
		return errors.New("redis down")
	}
	return s.MemoryStore.Set(ctx, key, value, ttl)
}

func newTestService(t *testing.T) (*Service, *recordingMedia) {
	t.Helper()
	media := &recordingMedia{}
	return NewService(Config{TTL: time.Hour}, NewMemoryStore(), media, nil, nil), media
}

func processed(loc string) content.MediaRef {
	return content.MediaRef{ID: loc, Locator: loc, MimeType: "image/jpeg", Origin: content.OriginProcessed}
}

func TestValidateID(t *testing.T) {
	for _, ok := range []string{"a", "abc-123_X", "Z9"} {
		assert.NoErrorf(t, ValidateID(ok), "ValidateID(%q)", ok)
	}
	long := make([]byte, 129)
	for i := range long {
		long[i] = 'a'
	}
	for _, bad := range []string{"", "has space", "../etc", "a/b", string(long)} {
		assert.Truef(t, apperr.IsKind(ValidateID(bad), apperr.KindValidation), "ValidateID(%q)", bad)
	}
}

func TestGetOrCreateThenGet(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Get(ctx, "s1")
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	sess, created, err := svc.GetOrCreate(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, content.StatusActive, sess.Status)

	_, created, err = svc.GetOrCreate(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, created)

	got, err := svc.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", got.ID)
}

func TestApplyResultMergesAndRecordsMemory(t *testing.T) {
	svc, media := newTestService(t)
	ctx := context.Background()

	_, err := svc.ApplyResult(ctx, "s1", content.Patch{
		Caption:        content.String("first"),
		Hashtags:       content.Slice([]string{"#a"}),
		ProcessedMedia: content.Slice([]content.MediaRef{processed("/media/processed/1.jpg")}),
	}, []memory.Exchange{{Capability: "caption", User: "write", Assistant: "first"}})
	require.NoError(t, err)

	sess, err := svc.ApplyResult(ctx, "s1", content.Patch{Caption: content.String("second")},
		[]memory.Exchange{{Capability: "caption", User: "shorter", Assistant: "second"}})
	require.NoError(t, err)

	assert.Equal(t, content.StatusProcessed, sess.Status)
	assert.Equal(t, "second", *sess.Content.Caption)
	assert.Equal(t, []string{"#a"}, *sess.Content.Hashtags)
	assert.Len(t, *sess.Content.ProcessedMedia, 1)
	assert.Len(t, sess.Memory.Read("caption"), 4)
	assert.Empty(t, media.deleted)
}

func TestApplyResultDeletesSupersededMediaAfterWrite(t *testing.T) {
	svc, media := newTestService(t)
	ctx := context.Background()
	_, err := svc.ApplyResult(ctx, "s1", content.Patch{ProcessedMedia: content.Slice([]content.MediaRef{processed("old")})}, nil)
	require.NoError(t, err)

	sess, err := svc.ApplyResult(ctx, "s1", content.Patch{ProcessedMedia: content.Slice([]content.MediaRef{processed("new")})}, nil)
	require.NoError(t, err)
	assert.Equal(t, "new", (*sess.Content.ProcessedMedia)[0].Locator)
	assert.Equal(t, []string{"old"}, media.deleted)

	stored, err := svc.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "new", (*stored.Content.ProcessedMedia)[0].Locator)
}

func TestApplyResultKeepsOldMediaWhenWriteFails(t *testing.T) {
	media := &recordingMedia{}
	store := &failingSetStore{MemoryStore: NewMemoryStore()}
	svc := NewService(Config{}, store, media, nil, nil)
	ctx := context.Background()
	_, err := svc.ApplyResult(ctx, "s1", content.Patch{ProcessedMedia: content.Slice([]content.MediaRef{processed("old")})}, nil)
	require.NoError(t, err)

	store.failSet = true
	_, err = svc.ApplyResult(ctx, "s1", content.Patch{ProcessedMedia: content.Slice([]content.MediaRef{processed("new")})}, nil)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindStorage))
	assert.Equal(t, []string{"new"}, media.deleted, "only the orphaned new file is released")

	store.failSet = false
	sess, err := svc.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "old", (*sess.Content.ProcessedMedia)[0].Locator)
}

func TestMediaCleanupFailureIsNotFatal(t *testing.T) {
	svc, media := newTestService(t)
	media.fail = true
	ctx := context.Background()
	_, err := svc.ApplyResult(ctx, "s1", content.Patch{ProcessedMedia: content.Slice([]content.MediaRef{processed("old")})}, nil)
	require.NoError(t, err)
	_, err = svc.ApplyResult(ctx, "s1", content.Patch{ProcessedMedia: content.Slice([]content.MediaRef{processed("new")})}, nil)
	assert.NoError(t, err)
}

func TestDeleteReleasesAllMedia(t *testing.T) {
	svc, media := newTestService(t)
	ctx := context.Background()
	_, err := svc.AddMedia(ctx, "s1", []content.MediaRef{{Locator: "up1", MimeType: "image/png", Origin: content.OriginUploaded}})
	require.NoError(t, err)
	_, err = svc.ApplyResult(ctx, "s1", content.Patch{ProcessedMedia: content.Slice([]content.MediaRef{processed("p1")})}, nil)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, "s1"))
	assert.ElementsMatch(t, []string{"up1", "p1"}, media.deleted)
	assert.True(t, apperr.IsKind(svc.Delete(ctx, "s1"), apperr.KindNotFound))
}

func TestAddTranscriptAssignsID(t *testing.T) {
	svc, _ := newTestService(t)
	sess, err := svc.AddTranscript(context.Background(), "s1", content.Transcript{Text: "make it pop"})
	require.NoError(t, err)
	require.Len(t, sess.Transcripts, 1)
	tr, ok := sess.Transcript(sess.Transcripts[0].ID)
	assert.True(t, ok)
	assert.Equal(t, "make it pop", tr.Text)
}

func TestSetStatusActiveRestoresProcessed(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.ApplyResult(ctx, "s1", content.Patch{Caption: content.String("x")}, nil)
	require.NoError(t, err)
	_, err = svc.SetStatus(ctx, "s1", content.StatusProcessing)
	require.NoError(t, err)
	sess, err := svc.SetStatus(ctx, "s1", content.StatusActive)
	require.NoError(t, err)
	assert.Equal(t, content.StatusProcessed, sess.Status)
}

func TestPostsTimeline(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.GetOrCreate(ctx, "empty")
	require.NoError(t, err)
	_, err = svc.SavePost(ctx, "empty")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = svc.ApplyResult(ctx, "s1", content.Patch{Caption: content.String("one")}, nil)
	require.NoError(t, err)
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { clock = clock.Add(time.Second); return clock }

	first, err := svc.SavePost(ctx, "s1")
	require.NoError(t, err)
	second, err := svc.SavePost(ctx, "s1")
	require.NoError(t, err)

	posts, total, err := svc.ListPosts(ctx, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, posts, 2)
	assert.Equal(t, second.ID, posts[0].ID)
	assert.Equal(t, "one", *posts[1].Content.Caption)

	require.NoError(t, svc.DeletePost(ctx, first.ID))
	assert.True(t, apperr.IsKind(svc.DeletePost(ctx, first.ID), apperr.KindNotFound))
	n, err := svc.CountPosts(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestSavedPostSurvivesEditsAndSessionDelete(t *testing.T) {
	svc, media := newTestService(t)
	ctx := context.Background()
	_, err := svc.ApplyResult(ctx, "s1", content.Patch{ProcessedMedia: content.Slice([]content.MediaRef{processed("m1")})}, nil)
	require.NoError(t, err)

	post, err := svc.SavePost(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, *post.Content.ProcessedMedia, 1)
	copied := (*post.Content.ProcessedMedia)[0].Locator
	assert.Equal(t, "posts/0", copied)

	_, err = svc.ApplyResult(ctx, "s1", content.Patch{ProcessedMedia: content.Slice([]content.MediaRef{processed("m2")})}, nil)
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, "s1"))
	assert.ElementsMatch(t, []string{"m1", "m2"}, media.deleted)

	posts, _, err := svc.ListPosts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, copied, (*posts[0].Content.ProcessedMedia)[0].Locator)
	assert.NotContains(t, media.deleted, copied)

	require.NoError(t, svc.DeletePost(ctx, post.ID))
	assert.Contains(t, media.deleted, copied)
}

func TestSavePostFailsWhenMediaCannotBeCopied(t *testing.T) {
	svc, media := newTestService(t)
	ctx := context.Background()
	_, err := svc.ApplyResult(ctx, "s1", content.Patch{ProcessedMedia: content.Slice([]content.MediaRef{processed("a"), processed("b")})}, nil)
	require.NoError(t, err)
	media.missing = map[string]bool{"b": true}

	_, err = svc.SavePost(ctx, "s1")
	assert.True(t, apperr.IsKind(err, apperr.KindStorage))
	assert.Equal(t, []string{"posts/0"}, media.deleted, "partial copies are released")

	n, err := svc.CountPosts(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

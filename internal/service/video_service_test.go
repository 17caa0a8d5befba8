package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/vodarr/internal/models"
)

func newVideoService(t *testing.T) (*VideoService, *fakeTranscoder, *fakeStore) {
	t.Helper()
	fake := newFakeTranscoder()
	store := &fakeStore{}
	repo := setupTestRepo(t)
	svc := NewVideoService(repo, NewAssetCleanup(fake, store).WithLogger(discardLogger)).WithLogger(discardLogger)
	return svc, fake, store
}

func TestVideoService_DeleteWhileEncodingIsNotReady(t *testing.T) {
	svc, fake, store := newVideoService(t)
	v := newVideo(t, svc.repo, testOwner.UserID)

	err := svc.Delete(context.Background(), v.ID, testOwner)
	assert.ErrorIs(t, err, models.ErrAssetNotReady)
	assert.Empty(t, fake.Calls())
	assert.Empty(t, store.deleted)
	getVideo(t, svc.repo, v.ID)
}

func TestVideoService_DeleteRemovesAssetsThenRecord(t *testing.T) {
	ctx := context.Background()
	svc, fake, store := newVideoService(t)

	_, err := fake.CreateOrUpdateAsset(ctx, "stream-output-1")
	require.NoError(t, err)
	v := pendingVideo(t, svc.repo, "stream-output-1")

	require.NoError(t, svc.Delete(ctx, v.ID, testOwner))

	assert.Equal(t, []string{"asset-stream-output-1"}, store.deleted)
	assert.Equal(t, []string{"stream-output-1"}, fake.deletedAssets)
	gone, err := svc.repo.GetByID(ctx, v.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestVideoService_DeleteAssetAlreadyGone(t *testing.T) {
	ctx := context.Background()
	svc, fake, store := newVideoService(t)
	v := pendingVideo(t, svc.repo, "stream-output-missing")

	require.NoError(t, svc.Delete(ctx, v.ID, testOwner))
	assert.Empty(t, store.deleted)
	assert.Equal(t, []string{"GetAsset stream-output-missing"}, fake.Calls())
}

func TestVideoService_DeleteFailedWithoutAsset(t *testing.T) {
	ctx := context.Background()
	svc, fake, _ := newVideoService(t)
	v := newVideo(t, svc.repo, testOwner.UserID)
	require.NoError(t, svc.repo.MarkEncodingError(ctx, v.ID, "ensuring transform: transcoder unavailable"))

	require.NoError(t, svc.Delete(ctx, v.ID, testOwner))
	assert.Empty(t, fake.Calls())
}

func TestVideoService_DeleteCleanupFailureKeepsRecord(t *testing.T) {
	ctx := context.Background()
	svc, fake, store := newVideoService(t)
	_, err := fake.CreateOrUpdateAsset(ctx, "stream-output-1")
	require.NoError(t, err)
	store.err = errors.New("storage unavailable")
	v := pendingVideo(t, svc.repo, "stream-output-1")

	err = svc.Delete(ctx, v.ID, testOwner)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deleting container")
	assert.Empty(t, fake.deletedAssets)
	getVideo(t, svc.repo, v.ID)
}

func TestVideoService_DeletePermissions(t *testing.T) {
	ctx := context.Background()
	svc, fake, _ := newVideoService(t)
	v := newVideo(t, svc.repo, testOwner.UserID)

	stranger := models.Principal{UserID: models.NewULID(), Role: models.RoleUser}
	assert.ErrorIs(t, svc.Delete(ctx, v.ID, stranger), models.ErrForbidden)
	assert.Empty(t, fake.Calls())

	admin := models.Principal{UserID: models.NewULID(), Role: models.RoleSuperAdmin}
	assert.ErrorIs(t, svc.Delete(ctx, v.ID, admin), models.ErrAssetNotReady)

	assert.ErrorIs(t, svc.Delete(ctx, models.NewULID(), testOwner), models.ErrVideoNotFound)
}

func TestVideoService_GetVisibility(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newVideoService(t)
	review := NewReviewService(svc.repo, nil).WithLogger(discardLogger)

	v := pendingVideo(t, svc.repo, "asset-1")
	stranger := models.Principal{UserID: models.NewULID(), Role: models.RoleUser}
	admin := models.Principal{UserID: models.NewULID(), Role: models.RoleAdmin}

	_, err := svc.Get(ctx, v.ID, stranger)
	assert.ErrorIs(t, err, models.ErrVideoNotFound)
	got, err := svc.Get(ctx, v.ID, admin)
	require.NoError(t, err)
	assert.Equal(t, v.ID, got.ID)
	_, err = svc.Get(ctx, v.ID, testOwner)
	require.NoError(t, err)

	_, err = review.Publish(ctx, v.ID)
	require.NoError(t, err)
	_, err = svc.Get(ctx, v.ID, stranger)
	require.NoError(t, err)
}

func TestVideoService_List(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newVideoService(t)
	review := NewReviewService(svc.repo, nil).WithLogger(discardLogger)

	for i := 0; i < 3; i++ {
		newVideo(t, svc.repo, testOwner.UserID)
	}
	published := pendingVideo(t, svc.repo, "asset-pub")
	_, err := review.Publish(ctx, published.ID)
	require.NoError(t, err)

	other := models.Principal{UserID: models.NewULID(), Role: models.RoleUser}
	newVideo(t, svc.repo, other.UserID)

	res, err := svc.List(ctx, ListVideosInput{}, testOwner)
	require.NoError(t, err)
	assert.Equal(t, int64(4), res.Total)
	assert.Equal(t, DefaultListLimit, res.Limit)
	assert.Equal(t, 1, res.Page)

	res, err = svc.List(ctx, ListVideosInput{}, other)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Total, "own video plus the published one")

	admin := models.Principal{UserID: models.NewULID(), Role: models.RoleAdmin}
	res, err = svc.List(ctx, ListVideosInput{Page: 2, Limit: 2}, admin)
	require.NoError(t, err)
	assert.Equal(t, int64(5), res.Total)
	assert.Len(t, res.Videos, 2)
	assert.Equal(t, 3, res.TotalPages)

	res, err = svc.List(ctx, ListVideosInput{Limit: 1000, Status: models.VideoStatusPublished}, admin)
	require.NoError(t, err)
	assert.Equal(t, MaxListLimit, res.Limit)
	require.Len(t, res.Videos, 1)
	assert.Equal(t, published.ID, res.Videos[0].ID)
}

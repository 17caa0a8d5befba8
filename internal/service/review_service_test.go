package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/vodarr/internal/models"
	"github.com/jmylchreest/vodarr/internal/notify"
	"github.com/jmylchreest/vodarr/internal/repository"
)

// pendingVideo creates a video that has finished encoding.
func pendingVideo(t *testing.T, repo repository.VideoRepository, asset string) *models.Video {
	t.Helper()
	ctx := context.Background()
	v := newVideo(t, repo, testOwner.UserID)
	require.NoError(t, repo.SetAssetRef(ctx, v.ID, asset))
	_, err := repo.ApplyStreamingOutputByAsset(ctx, asset, models.StreamingOutput{
		HLSURL: models.StringPtr("https://media.example.net/" + asset + "/manifest(format=m3u8-cmaf)"),
	})
	require.NoError(t, err)
	return getVideo(t, repo, v.ID)
}

func TestReviewService_Publish(t *testing.T) {
	repo := setupTestRepo(t)
	notifier := &fakeNotifier{}
	svc := NewReviewService(repo, notifier).WithLogger(discardLogger)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	v := pendingVideo(t, repo, "asset-1")

	published, err := svc.Publish(context.Background(), v.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VideoStatusPublished, published.Status())
	require.NotNil(t, published.ReviewedDate)
	assert.True(t, now.Equal(*published.ReviewedDate))

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, notify.KindVideoApproved, notifier.sent[0].Kind)
	assert.Equal(t, v.ID.String(), notifier.sent[0].VideoID)
	assert.Equal(t, "owner@example.com", notifier.sent[0].OwnerEmail)
}

func TestReviewService_PublishTwiceIsInvalid(t *testing.T) {
	repo := setupTestRepo(t)
	notifier := &fakeNotifier{}
	svc := NewReviewService(repo, notifier).WithLogger(discardLogger)
	v := pendingVideo(t, repo, "asset-1")

	_, err := svc.Publish(context.Background(), v.ID)
	require.NoError(t, err)

	_, err = svc.Publish(context.Background(), v.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	var te *models.TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, models.VideoStatusPublished, te.From)
	assert.Len(t, notifier.sent, 1)
}

func TestReviewService_RejectDefaultReason(t *testing.T) {
	repo := setupTestRepo(t)
	notifier := &fakeNotifier{}
	svc := NewReviewService(repo, notifier).WithLogger(discardLogger)
	v := pendingVideo(t, repo, "asset-1")

	rejected, err := svc.Reject(context.Background(), v.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "Breaks community guidelines.", models.StringVal(rejected.RejectReason))

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, notify.KindVideoRejected, notifier.sent[0].Kind)
	assert.Equal(t, "Breaks community guidelines.", notifier.sent[0].Reason)
}

func TestReviewService_RejectUnreviewPublishEndsClean(t *testing.T) {
	ctx := context.Background()
	repo := setupTestRepo(t)
	svc := NewReviewService(repo, nil).WithLogger(discardLogger)
	v := pendingVideo(t, repo, "asset-1")

	_, err := svc.Reject(ctx, v.ID, "spam")
	require.NoError(t, err)
	_, err = svc.Unreview(ctx, v.ID)
	require.NoError(t, err)
	published, err := svc.Publish(ctx, v.ID)
	require.NoError(t, err)

	assert.Equal(t, models.VideoStatusPublished, published.Status())
	assert.Nil(t, published.RejectReason)
	assert.NotNil(t, published.ReviewedDate)
}

func TestReviewService_NotificationFailureDoesNotFailTransition(t *testing.T) {
	repo := setupTestRepo(t)
	notifier := &fakeNotifier{err: errors.New("smtp down")}
	svc := NewReviewService(repo, notifier).WithLogger(discardLogger)
	v := pendingVideo(t, repo, "asset-1")

	published, err := svc.Publish(context.Background(), v.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VideoStatusPublished, published.Status())
}

func TestReviewService_Preconditions(t *testing.T) {
	ctx := context.Background()
	repo := setupTestRepo(t)
	svc := NewReviewService(repo, nil).WithLogger(discardLogger)

	encoding := newVideo(t, repo, testOwner.UserID)
	failed := newVideo(t, repo, testOwner.UserID)
	require.NoError(t, repo.MarkEncodingError(ctx, failed.ID, "boom"))
	pending := pendingVideo(t, repo, "asset-p")

	_, err := svc.Publish(ctx, encoding.ID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
	_, err = svc.Reject(ctx, failed.ID, "")
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
	_, err = svc.Unreview(ctx, pending.ID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
	_, err = svc.SetPrivacy(ctx, encoding.ID, true, testOwner)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	_, err = svc.Publish(ctx, models.NewULID())
	assert.ErrorIs(t, err, models.ErrVideoNotFound)
}

func TestReviewService_SetPrivacy(t *testing.T) {
	ctx := context.Background()
	repo := setupTestRepo(t)
	svc := NewReviewService(repo, nil).WithLogger(discardLogger)
	v := pendingVideo(t, repo, "asset-1")

	_, err := svc.Publish(ctx, v.ID)
	require.NoError(t, err)

	private, err := svc.SetPrivacy(ctx, v.ID, true, testOwner)
	require.NoError(t, err)
	assert.Equal(t, models.VideoStatusPrivate, private.Status())

	admin := models.Principal{UserID: models.NewULID(), Role: models.RoleAdmin}
	_, err = svc.SetPrivacy(ctx, v.ID, false, admin)
	assert.ErrorIs(t, err, models.ErrForbidden)

	public, err := svc.SetPrivacy(ctx, v.ID, false, testOwner)
	require.NoError(t, err)
	assert.Equal(t, models.VideoStatusPublished, public.Status())
}

// racingRepo flips the status between the pre-check and the write.
type racingRepo struct {
	repository.VideoRepository
	before func()
}

func (r *racingRepo) Publish(ctx context.Context, id models.ULID, at time.Time) (bool, error) {
	r.before()
	return r.VideoRepository.Publish(ctx, id, at)
}

func TestReviewService_ConditionalWriteLosesRace(t *testing.T) {
	ctx := context.Background()
	base := setupTestRepo(t)
	v := pendingVideo(t, base, "asset-1")

	repo := &racingRepo{VideoRepository: base, before: func() {
		_, err := base.Reject(ctx, v.ID, "spam", time.Now())
		require.NoError(t, err)
	}}
	notifier := &fakeNotifier{}
	svc := NewReviewService(repo, notifier).WithLogger(discardLogger)

	_, err := svc.Publish(ctx, v.ID)
	require.Error(t, err)

	var te *models.TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, models.VideoStatusRejected, te.From)
	assert.Empty(t, notifier.sent)
}

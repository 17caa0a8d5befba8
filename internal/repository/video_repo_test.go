package repository

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/jmylchreest/vodarr/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupVideoTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.Video{}))
	return db
}

func createVideo(t *testing.T, repo *videoRepo, owner models.ULID, name string) *models.Video {
	t.Helper()
	v := &models.Video{
		OwnerID: owner,
		Name:    name,
		BlobURL: "https://store.example.com/uploads/" + name + ".mp4",
	}
	require.NoError(t, repo.Create(context.Background(), v))
	return v
}

// encode gives v an asset and an HLS URL so it reaches PendingReview.
func encode(t *testing.T, repo *videoRepo, v *models.Video, assetRef string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, repo.SetAssetRef(ctx, v.ID, assetRef))
	_, err := repo.ApplyStreamingOutputByAsset(ctx, assetRef, models.StreamingOutput{
		HLSURL: models.StringPtr("https://cdn.example.com/" + assetRef + "/manifest(format=m3u8-aapl)"),
	})
	require.NoError(t, err)
}

func reload(t *testing.T, repo *videoRepo, id models.ULID) *models.Video {
	t.Helper()
	v, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, v)
	return v
}

func TestVideoRepo_CreateAndGet(t *testing.T) {
	repo := NewVideoRepository(setupVideoTestDB(t))
	ctx := context.Background()

	v := createVideo(t, repo, models.NewULID(), "clip")
	assert.False(t, v.ID.IsZero())

	found, err := repo.GetByID(ctx, v.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "clip", found.Name)
	assert.Equal(t, models.VideoStatusEncoding, found.Status())

	t.Run("not found", func(t *testing.T) {
		missing, err := repo.GetByID(ctx, models.NewULID())
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("validation runs on create", func(t *testing.T) {
		err := repo.Create(ctx, &models.Video{OwnerID: models.NewULID(), BlobURL: "https://x.example.com/a"})
		assert.ErrorIs(t, err, models.ErrNameRequired)
	})
}

func TestVideoRepo_SetRefs(t *testing.T) {
	repo := NewVideoRepository(setupVideoTestDB(t))
	ctx := context.Background()

	v := createVideo(t, repo, models.NewULID(), "refs")
	require.NoError(t, repo.SetAssetRef(ctx, v.ID, "stream-output-1"))
	require.NoError(t, repo.SetJobRef(ctx, v.ID, "stream-job-1"))

	got := reload(t, repo, v.ID)
	assert.Equal(t, "stream-output-1", models.StringVal(got.TranscodeAssetRef))
	assert.Equal(t, "stream-job-1", models.StringVal(got.TranscodeJobRef))

	err := repo.SetAssetRef(ctx, models.NewULID(), "x")
	assert.ErrorIs(t, err, models.ErrVideoNotFound)
}

func TestVideoRepo_MarkEncodingError_KeepsFirst(t *testing.T) {
	repo := NewVideoRepository(setupVideoTestDB(t))
	ctx := context.Background()

	v := createVideo(t, repo, models.NewULID(), "fail")
	require.NoError(t, repo.MarkEncodingError(ctx, v.ID, "creating output asset: boom"))
	require.NoError(t, repo.MarkEncodingError(ctx, v.ID, "second"))

	got := reload(t, repo, v.ID)
	assert.Equal(t, "creating output asset: boom", models.StringVal(got.EncodingError))
	assert.Equal(t, models.VideoStatusFailed, got.Status())
}

func TestVideoRepo_ApplyStreamingOutputByAsset(t *testing.T) {
	repo := NewVideoRepository(setupVideoTestDB(t))
	ctx := context.Background()
	owner := models.NewULID()

	a := createVideo(t, repo, owner, "a")
	b := createVideo(t, repo, owner, "b")
	failed := createVideo(t, repo, owner, "failed")
	other := createVideo(t, repo, owner, "other")
	for _, v := range []*models.Video{a, b, failed} {
		require.NoError(t, repo.SetAssetRef(ctx, v.ID, "asset-123"))
	}
	require.NoError(t, repo.SetAssetRef(ctx, other.ID, "asset-999"))
	require.NoError(t, repo.MarkEncodingError(ctx, failed.ID, "boom"))

	out := models.StreamingOutput{
		HLSURL:       models.StringPtr("https://h/p(format=m3u8-aapl)"),
		DASHURL:      models.StringPtr("https://h/p(format=mpd-time-csf)"),
		ThumbnailURL: models.StringPtr("https://h/thumb.jpg"),
	}

	n, err := repo.ApplyStreamingOutputByAsset(ctx, "asset-123", out)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// Applying again touches nothing.
	n, err = repo.ApplyStreamingOutputByAsset(ctx, "asset-123", out)
	require.NoError(t, err)
	assert.Zero(t, n)

	for _, id := range []models.ULID{a.ID, b.ID} {
		got := reload(t, repo, id)
		assert.Equal(t, models.VideoStatusPendingReview, got.Status())
		assert.Equal(t, "https://h/p(format=m3u8-aapl)", models.StringVal(got.HLSURL))
		assert.Equal(t, "https://h/thumb.jpg", models.StringVal(got.ThumbnailURL))
		assert.Nil(t, got.SmoothStreamingURL)
	}

	gotFailed := reload(t, repo, failed.ID)
	assert.Equal(t, models.VideoStatusFailed, gotFailed.Status())
	assert.Nil(t, gotFailed.HLSURL)

	assert.Equal(t, models.VideoStatusEncoding, reload(t, repo, other.ID).Status())
}

func TestVideoRepo_FailByAsset(t *testing.T) {
	repo := NewVideoRepository(setupVideoTestDB(t))
	ctx := context.Background()

	v := createVideo(t, repo, models.NewULID(), "v")
	require.NoError(t, repo.SetAssetRef(ctx, v.ID, "asset-err"))

	n, err := repo.FailByAsset(ctx, "asset-err", "Unknown error")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// A later finished event must not revive the video.
	n, err = repo.ApplyStreamingOutputByAsset(ctx, "asset-err", models.StreamingOutput{HLSURL: models.StringPtr("https://h/x")})
	require.NoError(t, err)
	assert.Zero(t, n)

	got := reload(t, repo, v.ID)
	assert.Equal(t, models.VideoStatusFailed, got.Status())
	assert.Equal(t, "Unknown error", models.StringVal(got.EncodingError))

	n, err = repo.FailByAsset(ctx, "no-such-asset", "x")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestVideoRepo_FailByAsset_SkipsFinishedVideos(t *testing.T) {
	repo := NewVideoRepository(setupVideoTestDB(t))
	ctx := context.Background()
	owner := models.NewULID()

	pending := createVideo(t, repo, owner, "pending")
	encode(t, repo, pending, "asset-done")
	published := createVideo(t, repo, owner, "published")
	encode(t, repo, published, "asset-pub")
	ok, err := repo.Publish(ctx, published.ID, time.Now().UTC())
	require.NoError(t, err)
	require.True(t, ok)

	for _, asset := range []string{"asset-done", "asset-pub"} {
		n, err := repo.FailByAsset(ctx, asset, "late failure")
		require.NoError(t, err)
		assert.Zero(t, n, asset)
	}

	assert.Equal(t, models.VideoStatusPendingReview, reload(t, repo, pending.ID).Status())
	got := reload(t, repo, published.ID)
	assert.Equal(t, models.VideoStatusPublished, got.Status())
	assert.Nil(t, got.EncodingError)
}

func TestVideoRepo_CountEncodingByAsset(t *testing.T) {
	repo := NewVideoRepository(setupVideoTestDB(t))
	ctx := context.Background()
	owner := models.NewULID()

	for _, name := range []string{"a", "b", "failed"} {
		v := createVideo(t, repo, owner, name)
		require.NoError(t, repo.SetAssetRef(ctx, v.ID, "asset-1"))
		if name == "failed" {
			require.NoError(t, repo.MarkEncodingError(ctx, v.ID, "boom"))
		}
	}

	n, err := repo.CountEncodingByAsset(ctx, "asset-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = repo.ApplyStreamingOutputByAsset(ctx, "asset-1", models.StreamingOutput{HLSURL: models.StringPtr("https://h/x")})
	require.NoError(t, err)
	n, err = repo.CountEncodingByAsset(ctx, "asset-1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestVideoRepo_ReviewTransitions(t *testing.T) {
	repo := NewVideoRepository(setupVideoTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("publish requires pending review", func(t *testing.T) {
		v := createVideo(t, repo, models.NewULID(), "pub")

		ok, err := repo.Publish(ctx, v.ID, now)
		require.NoError(t, err)
		assert.False(t, ok, "encoding video cannot be published")

		encode(t, repo, v, "asset-pub")
		ok, err = repo.Publish(ctx, v.ID, now)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, models.VideoStatusPublished, reload(t, repo, v.ID).Status())

		ok, err = repo.Publish(ctx, v.ID, now)
		require.NoError(t, err)
		assert.False(t, ok, "second publish must not apply")
	})

	t.Run("reject then unreview then publish", func(t *testing.T) {
		v := createVideo(t, repo, models.NewULID(), "rej")
		encode(t, repo, v, "asset-rej")

		ok, err := repo.Reject(ctx, v.ID, "spam", now)
		require.NoError(t, err)
		require.True(t, ok)
		got := reload(t, repo, v.ID)
		assert.Equal(t, models.VideoStatusRejected, got.Status())
		assert.Equal(t, "spam", models.StringVal(got.RejectReason))
		assert.NotNil(t, got.ReviewedDate)

		ok, err = repo.Unreview(ctx, v.ID)
		require.NoError(t, err)
		require.True(t, ok)
		got = reload(t, repo, v.ID)
		assert.Equal(t, models.VideoStatusPendingReview, got.Status())
		assert.Nil(t, got.RejectReason)
		assert.Nil(t, got.ReviewedDate)

		ok, err = repo.Publish(ctx, v.ID, now)
		require.NoError(t, err)
		require.True(t, ok)
		got = reload(t, repo, v.ID)
		assert.Equal(t, models.VideoStatusPublished, got.Status())
		assert.Nil(t, got.RejectReason)
	})

	t.Run("unreview requires a review", func(t *testing.T) {
		v := createVideo(t, repo, models.NewULID(), "unrev")
		encode(t, repo, v, "asset-unrev")

		ok, err := repo.Unreview(ctx, v.ID)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("privacy", func(t *testing.T) {
		v := createVideo(t, repo, models.NewULID(), "priv")

		ok, err := repo.SetPrivacy(ctx, v.ID, true)
		require.NoError(t, err)
		assert.False(t, ok, "encoding video cannot change privacy")

		encode(t, repo, v, "asset-priv")
		ok, err = repo.SetPrivacy(ctx, v.ID, true)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = repo.Publish(ctx, v.ID, now)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, models.VideoStatusPrivate, reload(t, repo, v.ID).Status())
	})
}

// seedAllStatuses creates one video per derived status and returns them keyed by status.
func seedAllStatuses(t *testing.T, repo *videoRepo, owner models.ULID) map[models.VideoStatus]*models.Video {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	out := make(map[models.VideoStatus]*models.Video)

	out[models.VideoStatusEncoding] = createVideo(t, repo, owner, "encoding")

	failed := createVideo(t, repo, owner, "failed")
	require.NoError(t, repo.MarkEncodingError(ctx, failed.ID, "boom"))
	out[models.VideoStatusFailed] = failed

	pending := createVideo(t, repo, owner, "pending")
	encode(t, repo, pending, "asset-pending")
	out[models.VideoStatusPendingReview] = pending

	rejected := createVideo(t, repo, owner, "rejected")
	encode(t, repo, rejected, "asset-rejected")
	_, err := repo.Reject(ctx, rejected.ID, models.DefaultRejectReason, now)
	require.NoError(t, err)
	out[models.VideoStatusRejected] = rejected

	private := createVideo(t, repo, owner, "private")
	encode(t, repo, private, "asset-private")
	_, err = repo.SetPrivacy(ctx, private.ID, true)
	require.NoError(t, err)
	_, err = repo.Publish(ctx, private.ID, now)
	require.NoError(t, err)
	out[models.VideoStatusPrivate] = private

	published := createVideo(t, repo, owner, "published")
	encode(t, repo, published, "asset-published")
	_, err = repo.Publish(ctx, published.ID, now)
	require.NoError(t, err)
	out[models.VideoStatusPublished] = published

	return out
}

func TestVideoRepo_List_StatusScopesMatchDeriveStatus(t *testing.T) {
	repo := NewVideoRepository(setupVideoTestDB(t))
	ctx := context.Background()
	seeded := seedAllStatuses(t, repo, models.NewULID())

	for _, status := range models.AllVideoStatuses {
		t.Run(string(status), func(t *testing.T) {
			videos, total, err := repo.List(ctx, VideoFilter{Status: status})
			require.NoError(t, err)
			require.Equal(t, int64(1), total)
			require.Len(t, videos, 1)
			assert.Equal(t, seeded[status].ID, videos[0].ID)
			assert.Equal(t, status, videos[0].Status())
		})
	}

	_, _, err := repo.List(ctx, VideoFilter{Status: "Archived"})
	assert.Error(t, err)
}

func TestVideoRepo_List_StatusFilterMatchesDerivedStatus(t *testing.T) {
	db := setupVideoTestDB(t)
	repo := NewVideoRepository(db)
	ctx := context.Background()
	owner := models.NewULID()
	now := time.Now().UTC()

	seedAllStatuses(t, repo, owner)

	// Failed wins over streaming URLs.
	failedWithURLs := createVideo(t, repo, owner, "failed-with-urls")
	encode(t, repo, failedWithURLs, "asset-failed-urls")
	require.NoError(t, db.Model(&models.Video{}).Where("id = ?", failedWithURLs.ID).
		UpdateColumn("encoding_error", "boom").Error)

	// Rejection wins over privacy.
	rejectedPrivate := createVideo(t, repo, owner, "rejected-private")
	encode(t, repo, rejectedPrivate, "asset-rejected-private")
	ok, err := repo.SetPrivacy(ctx, rejectedPrivate.ID, true)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = repo.Reject(ctx, rejectedPrivate.ID, "Audio is missing", now)
	require.NoError(t, err)
	require.True(t, ok)

	privatePending := createVideo(t, repo, owner, "private-pending")
	encode(t, repo, privatePending, "asset-private-pending")
	_, err = repo.SetPrivacy(ctx, privatePending.ID, true)
	require.NoError(t, err)

	all, total, err := repo.List(ctx, VideoFilter{})
	require.NoError(t, err)
	require.Equal(t, int64(9), total)

	want := make(map[models.VideoStatus][]models.ULID)
	for _, v := range all {
		want[v.Status()] = append(want[v.Status()], v.ID)
	}
	assert.Equal(t, models.VideoStatusFailed, reload(t, repo, failedWithURLs.ID).Status())
	assert.Equal(t, models.VideoStatusRejected, reload(t, repo, rejectedPrivate.ID).Status())
	assert.Equal(t, models.VideoStatusPendingReview, reload(t, repo, privatePending.ID).Status())

	counts := map[models.VideoStatus]int{
		models.VideoStatusEncoding:      1,
		models.VideoStatusFailed:        2,
		models.VideoStatusPendingReview: 2,
		models.VideoStatusRejected:      2,
		models.VideoStatusPrivate:       1,
		models.VideoStatusPublished:     1,
	}
	for _, status := range models.AllVideoStatuses {
		t.Run(string(status), func(t *testing.T) {
			videos, n, err := repo.List(ctx, VideoFilter{Status: status})
			require.NoError(t, err)
			assert.Equal(t, int64(counts[status]), n)

			var got []models.ULID
			for _, v := range videos {
				got = append(got, v.ID)
			}
			assert.ElementsMatch(t, want[status], got)
		})
	}
}

func TestVideoRepo_List_Visibility(t *testing.T) {
	repo := NewVideoRepository(setupVideoTestDB(t))
	ctx := context.Background()
	owner := models.NewULID()
	viewer := models.NewULID()

	seedAllStatuses(t, repo, owner)
	mine := createVideo(t, repo, viewer, "mine")

	videos, total, err := repo.List(ctx, VideoFilter{VisibleTo: &viewer})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	names := make([]string, 0, len(videos))
	for _, v := range videos {
		names = append(names, v.Name)
	}
	assert.ElementsMatch(t, []string{"published", mine.Name}, names)

	_, total, err = repo.List(ctx, VideoFilter{VisibleTo: &owner})
	require.NoError(t, err)
	assert.Equal(t, int64(6), total)

	_, total, err = repo.List(ctx, VideoFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(7), total)
}

func TestVideoRepo_List_FiltersAndPaging(t *testing.T) {
	db := setupVideoTestDB(t)
	repo := NewVideoRepository(db)
	ctx := context.Background()
	owner := models.NewULID()

	for _, name := range []string{"Beach day", "Mountain run", "beach night", "City walk", "Forest"} {
		createVideo(t, repo, owner, name)
	}
	vr := &models.Video{OwnerID: owner, Name: "Dome", Type: models.VideoTypeVR, BlobURL: "https://store.example.com/dome.mp4"}
	require.NoError(t, repo.Create(ctx, vr))

	t.Run("search is case insensitive", func(t *testing.T) {
		videos, total, err := repo.List(ctx, VideoFilter{Search: "BEACH"})
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		assert.Len(t, videos, 2)
	})

	t.Run("type", func(t *testing.T) {
		videos, total, err := repo.List(ctx, VideoFilter{Type: models.VideoTypeVR})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		assert.Equal(t, vr.ID, videos[0].ID)
	})

	t.Run("owner", func(t *testing.T) {
		other := models.NewULID()
		_, total, err := repo.List(ctx, VideoFilter{OwnerID: &other})
		require.NoError(t, err)
		assert.Zero(t, total)
	})

	t.Run("created after", func(t *testing.T) {
		old := time.Now().Add(-48 * time.Hour)
		require.NoError(t, db.Model(&models.Video{}).Where("name = ?", "Forest").
			UpdateColumn("created_at", old).Error)

		cutoff := time.Now().Add(-24 * time.Hour)
		_, total, err := repo.List(ctx, VideoFilter{CreatedAfter: &cutoff})
		require.NoError(t, err)
		assert.Equal(t, int64(5), total)
	})

	t.Run("paging keeps total", func(t *testing.T) {
		page1, total, err := repo.List(ctx, VideoFilter{Offset: 0, Limit: 4})
		require.NoError(t, err)
		assert.Equal(t, int64(6), total)
		assert.Len(t, page1, 4)

		page2, _, err := repo.List(ctx, VideoFilter{Offset: 4, Limit: 4})
		require.NoError(t, err)
		assert.Len(t, page2, 2)
		assert.NotEqual(t, page1[0].ID, page2[0].ID)
	})
}

func TestVideoRepo_FindStuckEncoding(t *testing.T) {
	db := setupVideoTestDB(t)
	repo := NewVideoRepository(db)
	ctx := context.Background()
	owner := models.NewULID()
	old := time.Now().Add(-time.Hour)

	stuck := createVideo(t, repo, owner, "stuck")
	require.NoError(t, repo.SetAssetRef(ctx, stuck.ID, "asset-stuck"))

	noAsset := createVideo(t, repo, owner, "no-asset")

	failed := createVideo(t, repo, owner, "failed")
	require.NoError(t, repo.SetAssetRef(ctx, failed.ID, "asset-failed"))
	require.NoError(t, repo.MarkEncodingError(ctx, failed.ID, "boom"))

	done := createVideo(t, repo, owner, "done")
	encode(t, repo, done, "asset-done")

	fresh := createVideo(t, repo, owner, "fresh")
	require.NoError(t, repo.SetAssetRef(ctx, fresh.ID, "asset-fresh"))

	for _, id := range []models.ULID{stuck.ID, noAsset.ID, failed.ID, done.ID} {
		require.NoError(t, db.Model(&models.Video{}).Where("id = ?", id).UpdateColumn("created_at", old).Error)
	}

	videos, err := repo.FindStuckEncoding(ctx, time.Now().Add(-15*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, videos, 1)
	assert.Equal(t, stuck.ID, videos[0].ID)
}

func TestVideoRepo_Delete_IsPermanent(t *testing.T) {
	db := setupVideoTestDB(t)
	repo := NewVideoRepository(db)
	ctx := context.Background()

	v := createVideo(t, repo, models.NewULID(), "gone")
	require.NoError(t, repo.Delete(ctx, v.ID))

	found, err := repo.GetByID(ctx, v.ID)
	require.NoError(t, err)
	assert.Nil(t, found)

	var count int64
	require.NoError(t, db.Unscoped().Model(&models.Video{}).Where("id = ?", v.ID).Count(&count).Error)
	assert.Zero(t, count)
}

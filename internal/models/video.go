package models

import (
	"net/url"
	"strings"

	"gorm.io/gorm"
)

// VideoType distinguishes regular footage from 360/VR footage.
type VideoType string

const (
	// VideoTypeRegular is flat video.
	VideoTypeRegular VideoType = "Regular"
	// VideoTypeVR is 360 degree video.
	VideoTypeVR VideoType = "VR"
)

// Valid reports whether t is a known video type.
func (t VideoType) Valid() bool {
	return t == VideoTypeRegular || t == VideoTypeVR
}

// Video is an uploaded video moving through transcoding and moderation.
//
// Status is never stored. It is derived from the nullable fields below by
// DeriveStatus, which keeps every reader in agreement.
type Video struct {
	BaseModel

	// OwnerID is the uploading user.
	OwnerID ULID `gorm:"type:varchar(26);not null;index" json:"owner_id"`

	// OwnerEmail is where review notifications are sent.
	OwnerEmail string `gorm:"size:320" json:"owner_email,omitempty"`

	Name        string    `gorm:"not null;size:255" json:"name"`
	Description string    `gorm:"type:text" json:"description,omitempty"`
	Type        VideoType `gorm:"not null;size:16;default:'Regular'" json:"type"`

	// BlobURL points at the source bytes. Immutable once set.
	BlobURL string `gorm:"not null;size:2048" json:"blob_url"`

	// TranscodeAssetRef names the transcoder-side output asset.
	TranscodeAssetRef *string `gorm:"size:255;index" json:"transcode_asset_ref,omitempty"`

	// TranscodeJobRef names the transcode job that writes into the asset.
	TranscodeJobRef *string `gorm:"size:255" json:"transcode_job_ref,omitempty"`

	HLSURL             *string `gorm:"column:hls_url;size:2048" json:"hls_url,omitempty"`
	DASHURL            *string `gorm:"column:dash_url;size:2048" json:"dash_url,omitempty"`
	SmoothStreamingURL *string `gorm:"column:smooth_streaming_url;size:2048" json:"smooth_streaming_url,omitempty"`
	ThumbnailURL       *string `gorm:"size:2048" json:"thumbnail_url,omitempty"`

	// EncodingError marks the video permanently failed.
	EncodingError *string `gorm:"type:text" json:"encoding_error,omitempty"`

	ReviewedDate *Time   `json:"reviewed_date,omitempty"`
	RejectReason *string `gorm:"type:text" json:"reject_reason,omitempty"`
	IsPrivate    bool    `gorm:"not null;default:false" json:"is_private"`
}

// TableName returns the table name for Video.
func (Video) TableName() string {
	return "videos"
}

// Status returns the derived display status.
func (v *Video) Status() VideoStatus {
	return DeriveStatus(v)
}

// HasStreamingURL reports whether at least one streaming manifest is known.
func (v *Video) HasStreamingURL() bool {
	return v.HLSURL != nil || v.DASHURL != nil || v.SmoothStreamingURL != nil
}

// Sanitize trims user-supplied text fields.
func (v *Video) Sanitize() {
	v.Name = strings.TrimSpace(v.Name)
	v.Description = strings.TrimSpace(v.Description)
	v.BlobURL = strings.TrimSpace(v.BlobURL)
	v.OwnerEmail = strings.TrimSpace(v.OwnerEmail)
}

// Validate checks the fields required at upload time.
func (v *Video) Validate() error {
	v.Sanitize()

	if v.Name == "" {
		return ErrNameRequired
	}
	if v.OwnerID.IsZero() {
		return ErrOwnerRequired
	}
	if v.BlobURL == "" {
		return ErrBlobURLRequired
	}
	u, err := url.Parse(v.BlobURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ErrInvalidURL
	}
	if v.Type == "" {
		v.Type = VideoTypeRegular
	}
	if !v.Type.Valid() {
		return ErrInvalidVideoType
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the video and generates ULID.
func (v *Video) BeforeCreate(tx *gorm.DB) error {
	if err := v.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return v.Validate()
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}

// StringVal returns the value of a string pointer, or "" when nil.
func StringVal(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// StreamingOutput holds the playable URLs resolved for a finished asset.
type StreamingOutput struct {
	HLSURL             *string
	DASHURL            *string
	SmoothStreamingURL *string
	ThumbnailURL       *string
}

// Playable reports whether at least one manifest URL is present.
func (o StreamingOutput) Playable() bool {
	return o.HLSURL != nil || o.DASHURL != nil || o.SmoothStreamingURL != nil
}

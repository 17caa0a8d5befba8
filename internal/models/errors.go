package models

import (
	"errors"
	"fmt"
)

// ErrValidation represents a validation error with field and message.
type ErrValidation struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e ErrValidation) Error() string {
	return fmt.Sprintf("validation error on field %s: %s", e.Field, e.Message)
}

// Validation errors for models.
var (
	// ErrNameRequired indicates a required name field is empty.
	ErrNameRequired = errors.New("name is required")

	// ErrBlobURLRequired indicates the source blob URL is empty.
	ErrBlobURLRequired = errors.New("blob_url is required")

	// ErrInvalidURL indicates a malformed URL.
	ErrInvalidURL = errors.New("invalid URL format")

	// ErrInvalidVideoType indicates a video type outside Regular and VR.
	ErrInvalidVideoType = errors.New("invalid video type: must be 'Regular' or 'VR'")

	// ErrOwnerRequired indicates the owning user is missing.
	ErrOwnerRequired = errors.New("owner_id is required")
)

// Lifecycle and transcoding errors.
var (
	// ErrVideoNotFound indicates the video does not exist.
	ErrVideoNotFound = errors.New("video not found")

	// ErrForbidden indicates the caller may not act on the video.
	ErrForbidden = errors.New("forbidden")

	// ErrTranscoderUnavailable indicates the transcoding backend could not be
	// reached or rejected our credentials. Callers may retry.
	ErrTranscoderUnavailable = errors.New("transcoder unavailable")

	// ErrMalformedEvent indicates a webhook event is missing required fields.
	ErrMalformedEvent = errors.New("malformed event")

	// ErrJobFailed indicates the backend reported the transcode job as errored.
	ErrJobFailed = errors.New("transcode job failed")

	// ErrTimedOut indicates the poller gave up waiting for a terminal job state.
	ErrTimedOut = errors.New("timed out waiting for transcode job")

	// ErrInvalidTransition indicates a review transition whose precondition
	// does not hold for the current status.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrAssetNotReady indicates deletion was attempted while encoding is
	// still in flight.
	ErrAssetNotReady = errors.New("please wait for the video to finish encoding")

	// ErrEndpointNotServing indicates no streaming endpoint is running, so no
	// playable URL can be produced.
	ErrEndpointNotServing = errors.New("streaming endpoint unavailable")

	// ErrNoPlayableOutput indicates the locator exposed no recognizable manifest.
	ErrNoPlayableOutput = errors.New("no playable streaming paths")
)

// TransitionError describes a rejected review transition.
type TransitionError struct {
	Transition string
	From       VideoStatus
}

// Error implements the error interface.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s a video in status %s", e.Transition, e.From)
}

// Unwrap allows errors.Is(err, ErrInvalidTransition).
func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

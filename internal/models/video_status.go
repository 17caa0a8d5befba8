package models

import "fmt"

// VideoStatus is the display status derived from a video's persisted fields.
type VideoStatus string

const (
	VideoStatusFailed        VideoStatus = "Failed"
	VideoStatusEncoding      VideoStatus = "Encoding"
	VideoStatusPendingReview VideoStatus = "PendingReview"
	VideoStatusRejected      VideoStatus = "Rejected"
	VideoStatusPrivate       VideoStatus = "Private"
	VideoStatusPublished     VideoStatus = "Published"
)

// AllVideoStatuses lists every status in derivation order.
var AllVideoStatuses = []VideoStatus{
	VideoStatusFailed,
	VideoStatusEncoding,
	VideoStatusPendingReview,
	VideoStatusRejected,
	VideoStatusPrivate,
	VideoStatusPublished,
}

// ParseVideoStatus parses a status name.
func ParseVideoStatus(s string) (VideoStatus, error) {
	for _, st := range AllVideoStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown video status %q", s)
}

// DeriveStatus computes the status of v. The first matching rule wins, so an
// encoding error dominates everything and rejection dominates privacy.
func DeriveStatus(v *Video) VideoStatus {
	switch {
	case v.EncodingError != nil:
		return VideoStatusFailed
	case !v.HasStreamingURL():
		return VideoStatusEncoding
	case v.ReviewedDate == nil:
		return VideoStatusPendingReview
	case v.RejectReason != nil:
		return VideoStatusRejected
	case v.IsPrivate:
		return VideoStatusPrivate
	default:
		return VideoStatusPublished
	}
}

// Transition names an admin or owner driven status change.
type Transition string

const (
	TransitionPublish    Transition = "publish"
	TransitionReject     Transition = "reject"
	TransitionUnreview   Transition = "unreview"
	TransitionSetPrivacy Transition = "set-privacy"
)

// CanTransition reports whether t is allowed from status s.
func CanTransition(s VideoStatus, t Transition) bool {
	switch t {
	case TransitionPublish, TransitionReject:
		return s == VideoStatusPendingReview
	case TransitionUnreview:
		return s == VideoStatusPublished || s == VideoStatusPrivate || s == VideoStatusRejected
	case TransitionSetPrivacy:
		return s != VideoStatusEncoding && s != VideoStatusFailed
	default:
		return false
	}
}

// CheckTransition returns a *TransitionError when t is not allowed for v.
func CheckTransition(v *Video, t Transition) error {
	s := DeriveStatus(v)
	if !CanTransition(s, t) {
		return &TransitionError{Transition: string(t), From: s}
	}
	return nil
}

// DefaultRejectReason is used when an admin rejects without a reason.
const DefaultRejectReason = "Breaks community guidelines."

// Package eventgrid decodes transcoder webhook deliveries into typed events.
//
// A delivery is a JSON array of envelopes. Each envelope decodes
// independently, so one bad entry never hides the others.
package eventgrid

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jmylchreest/vodarr/internal/models"
)

// Event type names sent by the transcoding backend.
const (
	TypeSubscriptionValidation = "Microsoft.EventGrid.SubscriptionValidationEvent"
	TypeJobOutputFinished      = "Microsoft.Media.JobOutputFinished"
	TypeJobOutputErrored       = "Microsoft.Media.JobOutputErrored"
)

// DefaultErrorMessage is stored when an errored event carries no message.
const DefaultErrorMessage = "Unknown error"

var validate = validator.New(validator.WithRequiredStructEnabled())

// Event is one decoded webhook event. The concrete type is one of
// *SubscriptionValidation, *JobOutputFinished, *JobOutputErrored, *Unknown
// or *Malformed.
type Event interface {
	// Meta returns the envelope fields shared by every event.
	Meta() Envelope
	isEvent()
}

// Envelope is the common wrapper around every event.
type Envelope struct {
	ID        string          `json:"id" validate:"required"`
	EventType string          `json:"eventType" validate:"required"`
	Subject   string          `json:"subject"`
	EventTime time.Time       `json:"eventTime"`
	Data      json.RawMessage `json:"data"`
}

// SubscriptionValidation is the handshake sent when a subscription is created.
type SubscriptionValidation struct {
	Envelope
	ValidationCode string `json:"validationCode" validate:"required"`
	ValidationURL  string `json:"validationUrl" validate:"omitempty,url"`
}

// JobOutputFinished reports that a job finished writing its output asset.
type JobOutputFinished struct {
	Envelope
	AssetName string `validate:"required"`
	// JobRef is the job name taken from the subject, when present.
	JobRef string
}

// JobOutputErrored reports that a job failed to produce its output asset.
type JobOutputErrored struct {
	Envelope
	AssetName    string `validate:"required"`
	JobRef       string
	ErrorCode    string
	ErrorMessage string
}

// Unknown is a well-formed event of a type we do not handle.
type Unknown struct {
	Envelope
}

// Malformed is an entry that could not be decoded or failed validation.
type Malformed struct {
	Envelope
	Err error
}

func (e *SubscriptionValidation) Meta() Envelope { return e.Envelope }
func (e *JobOutputFinished) Meta() Envelope      { return e.Envelope }
func (e *JobOutputErrored) Meta() Envelope       { return e.Envelope }
func (e *Unknown) Meta() Envelope                { return e.Envelope }
func (e *Malformed) Meta() Envelope              { return e.Envelope }

func (*SubscriptionValidation) isEvent() {}
func (*JobOutputFinished) isEvent()      {}
func (*JobOutputErrored) isEvent()       {}
func (*Unknown) isEvent()                {}
func (*Malformed) isEvent()              {}

// Kind returns a short label for metrics and logs.
func Kind(e Event) string {
	switch e.(type) {
	case *SubscriptionValidation:
		return "subscription_validation"
	case *JobOutputFinished:
		return "job_output_finished"
	case *JobOutputErrored:
		return "job_output_errored"
	case *Malformed:
		return "malformed"
	default:
		return "unknown"
	}
}

type jobOutputData struct {
	Output *struct {
		AssetName string          `json:"assetName"`
		Error     json.RawMessage `json:"error"`
	} `json:"output"`
}

type jobErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Decode parses a delivery body. Only a body that is not a JSON array is an
// error; bad entries come back as *Malformed.
func Decode(body []byte) ([]Event, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: decoding event array: %w", models.ErrMalformedEvent, err)
	}
	events := make([]Event, 0, len(raw))
	for _, r := range raw {
		events = append(events, decodeOne(r))
	}
	return events, nil
}

func decodeOne(raw json.RawMessage) Event {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return malformed(env, fmt.Errorf("decoding envelope: %w", err))
	}
	if err := validate.Struct(env); err != nil {
		return malformed(env, err)
	}

	switch env.EventType {
	case TypeSubscriptionValidation:
		ev := &SubscriptionValidation{Envelope: env}
		if err := json.Unmarshal(env.Data, ev); err != nil {
			return malformed(env, fmt.Errorf("decoding validation data: %w", err))
		}
		ev.Envelope = env
		if err := validate.Struct(ev); err != nil {
			return malformed(env, err)
		}
		return ev

	case TypeJobOutputFinished:
		assetName, _, err := decodeOutput(env.Data)
		if err != nil {
			return malformed(env, err)
		}
		ev := &JobOutputFinished{Envelope: env, AssetName: assetName, JobRef: jobRefFromSubject(env.Subject)}
		if err := validate.Struct(ev); err != nil {
			return malformed(env, err)
		}
		return ev

	case TypeJobOutputErrored:
		assetName, detail, err := decodeOutput(env.Data)
		if err != nil {
			return malformed(env, err)
		}
		ev := &JobOutputErrored{
			Envelope:     env,
			AssetName:    assetName,
			JobRef:       jobRefFromSubject(env.Subject),
			ErrorCode:    detail.Code,
			ErrorMessage: detail.Message,
		}
		if err := validate.Struct(ev); err != nil {
			return malformed(env, err)
		}
		if ev.ErrorMessage == "" {
			ev.ErrorMessage = DefaultErrorMessage
		}
		return ev

	default:
		return &Unknown{Envelope: env}
	}
}

func malformed(env Envelope, err error) *Malformed {
	return &Malformed{Envelope: env, Err: fmt.Errorf("%w: %w", models.ErrMalformedEvent, err)}
}

// decodeOutput extracts the asset name and error detail. The error may be
// an object with code and message, or a bare string.
func decodeOutput(data json.RawMessage) (string, jobErrorDetail, error) {
	var d jobOutputData
	if len(data) > 0 {
		if err := json.Unmarshal(data, &d); err != nil {
			return "", jobErrorDetail{}, fmt.Errorf("decoding job output data: %w", err)
		}
	}
	if d.Output == nil {
		return "", jobErrorDetail{}, errors.New("missing output")
	}

	var detail jobErrorDetail
	if len(d.Output.Error) > 0 && string(d.Output.Error) != "null" {
		if err := json.Unmarshal(d.Output.Error, &detail); err != nil {
			var msg string
			if json.Unmarshal(d.Output.Error, &msg) == nil {
				detail.Message = msg
			}
		}
	}
	return d.Output.AssetName, detail, nil
}

// jobRefFromSubject returns the job name from subjects of the form
// transforms/<transform>/jobs/<job>.
func jobRefFromSubject(subject string) string {
	const marker = "/jobs/"
	i := strings.LastIndex(subject, marker)
	if i < 0 {
		return ""
	}
	return strings.Trim(subject[i+len(marker):], "/")
}

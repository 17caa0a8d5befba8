package handlers

import (
	"context"
	"errors"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/vodarr/internal/http/middleware"
	"github.com/jmylchreest/vodarr/internal/models"
)

// toHTTPError maps domain errors onto API status codes. Unrecognized errors
// are logged and reported as 500 without leaking their text.
func toHTTPError(ctx context.Context, logger *slog.Logger, op string, err error) error {
	var validation models.ErrValidation
	switch {
	case errors.Is(err, models.ErrVideoNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, models.ErrForbidden):
		return huma.Error403Forbidden(err.Error())
	case errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, models.ErrAssetNotReady):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, models.ErrTranscoderUnavailable):
		return huma.Error503ServiceUnavailable(err.Error())
	case errors.As(err, &validation),
		errors.Is(err, models.ErrNameRequired),
		errors.Is(err, models.ErrBlobURLRequired),
		errors.Is(err, models.ErrInvalidURL),
		errors.Is(err, models.ErrInvalidVideoType),
		errors.Is(err, models.ErrOwnerRequired):
		return huma.Error422UnprocessableEntity(err.Error())
	}

	logger.ErrorContext(ctx, op+" failed", slog.String("error", err.Error()))
	return huma.Error500InternalServerError("internal error")
}

// requirePrincipal returns the authenticated caller or a 401.
func requirePrincipal(ctx context.Context) (models.Principal, error) {
	p, ok := middleware.PrincipalFromContext(ctx)
	if !ok {
		return models.Principal{}, huma.Error401Unauthorized("missing caller identity")
	}
	return p, nil
}

// requireAdmin returns the caller when it holds an admin role.
func requireAdmin(ctx context.Context) (models.Principal, error) {
	p, err := requirePrincipal(ctx)
	if err != nil {
		return p, err
	}
	if !p.Role.AtLeastAdmin() {
		return p, huma.Error403Forbidden("admin role required")
	}
	return p, nil
}

func parseVideoID(raw string) (models.ULID, error) {
	id, err := models.ParseULID(raw)
	if err != nil {
		return models.ULID{}, huma.Error404NotFound(models.ErrVideoNotFound.Error())
	}
	return id, nil
}

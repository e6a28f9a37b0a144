package cli

import (
	"errors"

	"github.com/santinotanus/medtrace/internal/client/backend"
	"github.com/santinotanus/medtrace/internal/client/biometric"
	"github.com/santinotanus/medtrace/internal/client/services"
	"github.com/santinotanus/medtrace/internal/common"
	"github.com/santinotanus/medtrace/internal/validatex"
)

var errNotSignedIn = errors.New("not signed in")

// describe renders err for the user. Sentinels get a fixed message, server
// rejections show the server text.
func describe(err error) string {
	var (
		apiErr *backend.APIError
		valErr *validatex.ValidationError
	)
	switch {
	case errors.Is(err, common.ErrGuestRestricted):
		return "this feature needs an account, sign in or register first"
	case errors.Is(err, common.ErrNoProfile), errors.Is(err, errNotSignedIn):
		return "sign in first"
	case errors.Is(err, common.ErrForbidden):
		return "only administrators can do that"
	case errors.Is(err, common.ErrUnavailable):
		return "the MedTrace service is unreachable, try again later"
	case errors.Is(err, services.ErrInvalidPayload):
		return "that is not a MedTrace batch code"
	case errors.Is(err, biometric.ErrPasscodeTooShort):
		return err.Error()
	case errors.As(err, &valErr):
		return valErr.Error()
	case errors.As(err, &apiErr) && apiErr.Message != "":
		return apiErr.Message
	case errors.Is(err, common.ErrUnauthorized):
		return "invalid credentials or expired session"
	default:
		return err.Error()
	}
}

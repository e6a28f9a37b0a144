// Package biometric describes the device unlock capability used by the app
// lock and probes whether it can be used.
package biometric

import (
	"context"

	"github.com/santinotanus/medtrace/internal/logging"
)

type Kind string

const (
	KindFingerprint Kind = "fingerprint"
	KindFace        Kind = "face"
	KindPasscode    Kind = "passcode"
)

// Result of a challenge. A failed or cancelled challenge is not an error.
type Result struct {
	Success bool
	// Reason is set when Success is false, e.g. "mismatch" or "cancelled".
	Reason string
}

type Capability interface {
	HasHardware(ctx context.Context) (bool, error)
	IsEnrolled(ctx context.Context) (bool, error)
	SupportedKinds(ctx context.Context) ([]Kind, error)
	Authenticate(ctx context.Context, reason string) (Result, error)
}

type Availability struct {
	Available bool
	Kinds     []Kind
}

// Probe reports whether c can unlock the app. A probe that fails reports
// the capability as unavailable, so the app lock stays off instead of
// locking the user out.
func Probe(ctx context.Context, c Capability, log logging.Logger) Availability {
	hw, err := c.HasHardware(ctx)
	if err != nil {
		log.Warn(ctx, "biometric hardware probe failed", "error", err)
		return Availability{}
	}
	if !hw {
		return Availability{}
	}

	enrolled, err := c.IsEnrolled(ctx)
	if err != nil {
		log.Warn(ctx, "biometric enrollment probe failed", "error", err)
		return Availability{}
	}
	if !enrolled {
		return Availability{}
	}

	kinds, err := c.SupportedKinds(ctx)
	if err != nil {
		log.Warn(ctx, "biometric kinds probe failed", "error", err)
		return Availability{}
	}
	return Availability{Available: true, Kinds: kinds}
}

package biometric

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"os"

	"github.com/santinotanus/medtrace/internal/client/repositories/metadata"
	"github.com/santinotanus/medtrace/internal/common"
	"github.com/santinotanus/medtrace/internal/cryptox"
	"golang.org/x/term"
)

const (
	passcodeSaltKey     = "applock_salt"
	passcodeVerifierKey = "applock_verifier"

	MinPasscodeLength = 4
)

var ErrPasscodeTooShort = fmt.Errorf("passcode must have at least %d characters", MinPasscodeLength)

// SecretReader prompts for a secret without echo.
type SecretReader func(prompt string) (string, error)

// Passcode is the terminal stand-in for a biometric sensor: a passcode
// stretched with argon2 whose verifier lives in the local metadata store.
type Passcode struct {
	repo     metadata.Repository
	read     SecretReader
	terminal func() bool
}

var _ Capability = (*Passcode)(nil)

// NewPasscode reports hardware only when stdin is a terminal, since there
// is nothing to prompt on otherwise.
func NewPasscode(repo metadata.Repository, read SecretReader) *Passcode {
	return &Passcode{
		repo: repo,
		read: read,
		terminal: func() bool {
			return term.IsTerminal(int(os.Stdin.Fd()))
		},
	}
}

func (p *Passcode) HasHardware(context.Context) (bool, error) {
	return p.terminal(), nil
}

func (p *Passcode) IsEnrolled(ctx context.Context) (bool, error) {
	v, err := p.repo.Get(ctx, passcodeVerifierKey)
	if err != nil {
		return false, err
	}
	return v != nil, nil
}

func (p *Passcode) SupportedKinds(context.Context) ([]Kind, error) {
	return []Kind{KindPasscode}, nil
}

// Enroll replaces any previous passcode.
func (p *Passcode) Enroll(ctx context.Context, passcode string) error {
	if len(passcode) < MinPasscodeLength {
		return ErrPasscodeTooShort
	}
	secret := []byte(passcode)
	defer common.WipeByteArray(secret)

	salt := common.GenerateRandByteArray(16)
	key := cryptox.DeriveKey(secret, salt)
	defer common.WipeByteArray(key)

	if err := p.repo.Set(ctx, passcodeSaltKey, salt); err != nil {
		return err
	}
	return p.repo.Set(ctx, passcodeVerifierKey, cryptox.MakeVerifier(key))
}

func (p *Passcode) Unenroll(ctx context.Context) error {
	if err := p.repo.Delete(ctx, passcodeVerifierKey); err != nil {
		return err
	}
	return p.repo.Delete(ctx, passcodeSaltKey)
}

// Authenticate prompts with reason and checks the answer in constant time.
func (p *Passcode) Authenticate(ctx context.Context, reason string) (Result, error) {
	salt, err := p.repo.Get(ctx, passcodeSaltKey)
	if err != nil {
		return Result{}, err
	}
	verifier, err := p.repo.Get(ctx, passcodeVerifierKey)
	if err != nil {
		return Result{}, err
	}
	if salt == nil || verifier == nil {
		return Result{}, errors.New("no passcode enrolled")
	}

	answer, err := p.read(reason + ": ")
	if err != nil {
		return Result{Reason: "cancelled"}, nil
	}
	secret := []byte(answer)
	defer common.WipeByteArray(secret)

	key := cryptox.DeriveKey(secret, salt)
	defer common.WipeByteArray(key)

	if subtle.ConstantTimeCompare(cryptox.MakeVerifier(key), verifier) != 1 {
		return Result{Reason: "mismatch"}, nil
	}
	return Result{Success: true}, nil
}

package transfer

import (
	"context"
	"fmt"
)

// Mode selects what a transfer session is for
type Mode string

const (
	ModeInstall Mode = "install"
	ModeShare   Mode = "share"
)

// Valid reports whether m is a known mode
func (m Mode) Valid() bool {
	return m == ModeInstall || m == ModeShare
}

// ParseMode converts user input to a Mode
func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
	return m, nil
}

// Metadata scopes a transfer service to one bundle
type Metadata struct {
	ID         string // bundle identifier
	Version    int
	Name       string
	BundlePath string
	Mode       Mode
	PIN        string
}

// Handle identifies a started transfer service
type Handle interface {
	ID() string
	URL() string
}

// Service starts and stops ephemeral transfer services. Shutdown must
// tolerate a handle that is already stopped.
type Service interface {
	Start(ctx context.Context, meta Metadata) (Handle, error)
	Shutdown(ctx context.Context, h Handle) error
}

// Presenter receives sessions for display
type Presenter interface {
	PresentTransferSurface(s *Session)
	TransferClosed(s *Session)
}

type nopPresenter struct{}

func (nopPresenter) PresentTransferSurface(*Session) {}
func (nopPresenter) TransferClosed(*Session)         {}

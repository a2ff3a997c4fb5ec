package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const maxViewerIDLength = 190

// ErrInvalidViewer indicates an empty or oversized viewer identifier.
var ErrInvalidViewer = errors.New("identity: invalid viewer")

// Viewer is the signed-in principal, or the absent viewer when ID is empty.
type Viewer struct {
	id          string
	displayName string
}

// NoViewer is the explicit absent state.
var NoViewer = Viewer{}

// SignedIn validates the identifier and returns a present viewer.
func SignedIn(id, displayName string) (Viewer, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return NoViewer, fmt.Errorf("%w: empty", ErrInvalidViewer)
	}
	if len(trimmed) > maxViewerIDLength {
		return NoViewer, fmt.Errorf("%w: exceeds %d characters", ErrInvalidViewer, maxViewerIDLength)
	}
	return Viewer{id: trimmed, displayName: strings.TrimSpace(displayName)}, nil
}

// Present reports whether a principal is signed in.
func (v Viewer) Present() bool {
	return v.id != ""
}

// ID returns the viewer identifier, empty when absent.
func (v Viewer) ID() string {
	return v.id
}

// DisplayName returns the human readable name, falling back to the identifier.
func (v Viewer) DisplayName() string {
	if v.displayName == "" {
		return v.id
	}
	return v.displayName
}

func (v Viewer) String() string {
	if !v.Present() {
		return "<none>"
	}
	return v.id
}

// Source exposes the current viewer and notifies subscribers on sign-in and sign-out.
type Source interface {
	CurrentViewer() Viewer
	Subscribe(ctx context.Context) (<-chan Viewer, func())
}

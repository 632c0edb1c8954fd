package headless

import (
	"context"
	"fmt"

	"github.com/JakeFAU/camp-harvester/internal/camp"
)

// Noop implements Browser for configurations without Chrome. Every session
// fails with camp.ErrRendererDisabled.
type Noop struct{}

// NewNoop creates a new Noop browser.
func NewNoop() *Noop {
	return &Noop{}
}

// Open always fails.
func (Noop) Open(context.Context) (Session, error) {
	return nil, fmt.Errorf("open session: %w", camp.ErrRendererDisabled)
}

// Close is a no-op.
func (Noop) Close() {}

package domain

import (
	"context"
	"io"
)

// ImporterPort is the bulk import surface exposed to binaries
type ImporterPort interface {
	Import(ctx context.Context, r io.Reader, spec Spec) (Stats, error)
}

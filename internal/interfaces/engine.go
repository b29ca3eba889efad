package interfaces

import (
	"context"

	"don-futures/internal/types"
)

type Engine interface {
	Run(ctx context.Context) (*types.Summary, error)
}

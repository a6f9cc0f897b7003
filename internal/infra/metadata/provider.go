// Package metadata defines the external metadata-generation contract. Only
// the success/failure shape matters to the core; raw failures feed the
// classifier untouched.
package metadata

import (
	"context"

	"github.com/querl369/adobe-stock-uploader-sub000/internal/core/domain"
)

// Provider generates descriptive metadata for one image. Implementations
// must honor ctx cancellation and return raw errors without sanitizing them.
type Provider interface {
	Generate(ctx context.Context, item *domain.WorkItem) (*domain.Metadata, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, item *domain.WorkItem) (*domain.Metadata, error)

func (f ProviderFunc) Generate(ctx context.Context, item *domain.WorkItem) (*domain.Metadata, error) {
	return f(ctx, item)
}

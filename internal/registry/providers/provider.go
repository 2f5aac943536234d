package providers

import (
	"context"

	"cnpjota/internal/registry/domain"
	"cnpjota/internal/registry/models"
)

// Provider is the interface every upstream CNPJ source implements.
type Provider interface {
	// Name identifies the provider in provenance, logs and metrics.
	Name() string

	// Priority orders the chain; lower runs first.
	Priority() int

	// Fetch retrieves and normalizes the record for cnpj. Failures are
	// returned as *ProviderError.
	Fetch(ctx context.Context, cnpj domain.CNPJ) (*models.Record, error)
}

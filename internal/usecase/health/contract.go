package health

import "context"

// VectorStorePinger checks vector store availability.
type VectorStorePinger interface {
	Ping(ctx context.Context) error
}

// ProviderChecker checks an external model provider (embedding or completion).
type ProviderChecker interface {
	HealthCheck(ctx context.Context) error
}

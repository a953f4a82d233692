package server

import (
	"context"
	"fmt"

	"github.com/roboverse/bookqa-go/internal/store"
)

// healthChecker is the slice of the vector store the pinger needs.
// *rag.QdrantStore satisfies it.
type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// QdrantPinger probes the vector store using its native health-check RPC.
// It satisfies the Pinger interface and is used by GET /health.
type QdrantPinger struct {
	checker healthChecker
}

// NewQdrantPinger constructs a QdrantPinger for the given vector store.
func NewQdrantPinger(checker healthChecker) *QdrantPinger {
	return &QdrantPinger{checker: checker}
}

// Name returns the dependency label used in health responses.
func (p *QdrantPinger) Name() string { return "qdrant" }

// Ping calls the vector store's health-check RPC.
func (p *QdrantPinger) Ping(ctx context.Context) error {
	if err := p.checker.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// StorePinger probes the session store's backing database.
// It satisfies the Pinger interface and is used by GET /health.
type StorePinger struct {
	store store.Store
	name  string
}

// NewStorePinger constructs a StorePinger. name labels the backend in health
// responses (e.g. "postgres", "sqlite").
func NewStorePinger(st store.Store, name string) *StorePinger {
	return &StorePinger{store: st, name: name}
}

// Name returns the dependency label used in health responses.
func (p *StorePinger) Name() string { return p.name }

// Ping verifies the backing database is reachable.
func (p *StorePinger) Ping(ctx context.Context) error {
	if err := p.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

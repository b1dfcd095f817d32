package assistant

import (
	"context"
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ent0n29/ollavoice/internal/llm"
)

// ModelCatalog tracks the models the model server last reported and the
// process-wide default used by new sessions.
type ModelCatalog struct {
	client llm.Client

	mu    sync.RWMutex
	known []string
	def   string
}

func NewModelCatalog(client llm.Client, defaultModel string) *ModelCatalog {
	return &ModelCatalog{client: client, def: defaultModel}
}

// Refresh asks the model server for its models. On failure the last-known
// list is kept.
func (m *ModelCatalog) Refresh(ctx context.Context) ([]string, error) {
	models, err := m.client.ListModels(ctx)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("model list refresh failed")
		return m.Known(), err
	}
	m.mu.Lock()
	m.known = slices.Clone(models)
	m.mu.Unlock()
	return models, nil
}

func (m *ModelCatalog) Known() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.known)
}

// Resolve reports whether name is a known model, refreshing once on a miss.
func (m *ModelCatalog) Resolve(ctx context.Context, name string) bool {
	if slices.Contains(m.Known(), name) {
		return true
	}
	models, err := m.Refresh(ctx)
	if err != nil {
		return false
	}
	return slices.Contains(models, name)
}

func (m *ModelCatalog) Default() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.def
}

func (m *ModelCatalog) SetDefault(name string) {
	m.mu.Lock()
	m.def = name
	m.mu.Unlock()
}

// Package models holds the static registry of backend model identifiers and
// the tier-gated selector over it.
package models

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/user/tickerchat/internal/types"
)

var (
	ErrUnknownModel    = errors.New("unknown model")
	ErrUpgradeRequired = errors.New("upgrade required")
)

// Model describes one backend model the agent accepts.
type Model struct {
	Key  string     `json:"key"`
	Name string     `json:"name"`
	Tier types.Tier `json:"tier"`
}

// Keys must match the model identifiers the agent backend accepts.
var builtin = []Model{
	{Key: "gemini-flash", Name: "Gemini Flash", Tier: types.TierFast},
	{Key: "gpt-4o-mini", Name: "GPT-4o mini", Tier: types.TierFast},
	{Key: "claude-sonnet", Name: "Claude Sonnet", Tier: types.TierStandard},
	{Key: "gpt-4o", Name: "GPT-4o", Tier: types.TierStandard},
	{Key: "claude-opus", Name: "Claude Opus", Tier: types.TierPremium},
	{Key: "o1", Name: "OpenAI o1", Tier: types.TierPremium},
}

// DefaultModel is selected when nothing else is configured.
const DefaultModel = "gemini-flash"

// Registry is an immutable, ordered set of models keyed by identifier.
type Registry struct {
	models []Model
	byKey  map[string]Model
}

// NewRegistry builds a registry from models, keeping their order.
func NewRegistry(models ...Model) *Registry {
	r := &Registry{byKey: make(map[string]Model, len(models))}
	for _, m := range models {
		if _, dup := r.byKey[m.Key]; dup {
			continue
		}
		r.models = append(r.models, m)
		r.byKey[m.Key] = m
	}
	return r
}

// Default returns the registry of models the backend accepts.
func Default() *Registry {
	return NewRegistry(builtin...)
}

// Get returns the model with the given key.
func (r *Registry) Get(key string) (Model, bool) {
	m, ok := r.byKey[key]
	return m, ok
}

// All returns the models in registry order.
func (r *Registry) All() []Model {
	out := make([]Model, len(r.models))
	copy(out, r.models)
	return out
}

// Allowed reports whether a caller may use the model.
func Allowed(m Model, isSubscriber bool) bool {
	return m.Tier != types.TierPremium || isSubscriber
}

// Selector tracks the currently selected model and refuses premium models
// for non-subscribers.
type Selector struct {
	registry  *Registry
	telemetry types.Telemetry

	mu      sync.RWMutex
	current Model
}

// NewSelector creates a Selector starting at initial. An unknown initial key
// falls back to DefaultModel.
func NewSelector(registry *Registry, initial string, telemetry types.Telemetry) (*Selector, error) {
	if telemetry == nil {
		telemetry = types.NopTelemetry{}
	}
	m, ok := registry.Get(initial)
	if !ok {
		m, ok = registry.Get(DefaultModel)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownModel, initial)
		}
	}
	return &Selector{registry: registry, telemetry: telemetry, current: m}, nil
}

// Current returns the selected model.
func (s *Selector) Current() Model {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Select switches to the model with key. Premium models require a
// subscription; on refusal the upgrade signal is raised and the current
// selection is kept.
func (s *Selector) Select(ctx context.Context, user types.User, key string) (Model, error) {
	m, ok := s.registry.Get(key)
	if !ok {
		return s.Current(), fmt.Errorf("%w: %s", ErrUnknownModel, key)
	}
	if !Allowed(m, user.Subscriber) {
		s.telemetry.UpgradeRequired(ctx, user.ID)
		return s.Current(), fmt.Errorf("%w: %s is a %s model", ErrUpgradeRequired, m.Key, m.Tier)
	}

	s.mu.Lock()
	s.current = m
	s.mu.Unlock()
	return m, nil
}

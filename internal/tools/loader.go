package tools

import (
	"fmt"

	"go.uber.org/zap"

	"sportai.io/internal/facility"
	"sportai.io/internal/obs"
)

// State of a capability after loading.
type State string

const (
	StateLoaded  State = "loaded"
	StateFailed  State = "failed"
	StateSkipped State = "skipped"
)

// Entry is one row of the loaded menu.
type Entry struct {
	Descriptor
	State State  `json:"state"`
	Error string `json:"error,omitempty"`
}

// Health summarises a load the way the admin panel shows it.
type Health struct {
	Loaded int     `json:"loaded"`
	Failed int     `json:"failed"`
	Total  int     `json:"total"`
	Score  float64 `json:"health_score"`
}

// Menu is the result of Load: the tools available to this facility.
type Menu struct {
	entries []Entry
	tools   map[Capability]Tool
}

// Loader builds menus from a registry.
type Loader struct {
	registry *Registry
	log      *zap.Logger
}

func NewLoader(r *Registry) *Loader {
	return &Loader{registry: r, log: obs.Logger()}
}

// Load resolves every catalog capability for tier. AI capabilities are skipped for the
// starter tier; resolution and construction errors are recorded, not fatal.
func (l *Loader) Load(tier facility.Tier, env Env) *Menu {
	m := &Menu{tools: make(map[Capability]Tool)}
	for _, d := range catalog {
		if d.AI() && tier == facility.TierStarter {
			m.entries = append(m.entries, Entry{Descriptor: d, State: StateSkipped})
			continue
		}
		tool, err := l.build(d.Capability, env)
		if err != nil {
			l.log.Warn("tool unavailable", zap.String("capability", string(d.Capability)), zap.Error(err))
			m.entries = append(m.entries, Entry{Descriptor: d, State: StateFailed, Error: err.Error()})
			continue
		}
		m.tools[d.Capability] = tool
		m.entries = append(m.entries, Entry{Descriptor: d, State: StateLoaded})
	}
	h := m.Health()
	obs.SetToolsLoaded(h.Loaded, h.Failed)
	l.log.Info("tools loaded", zap.String("tier", string(tier)), zap.Int("loaded", h.Loaded), zap.Int("failed", h.Failed))
	return m
}

func (l *Loader) build(c Capability, env Env) (tool Tool, err error) {
	factory, err := l.registry.Resolve(c)
	if err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			tool, err = nil, fmt.Errorf("tools: %s panicked: %v", c, r)
		}
	}()
	return factory(env)
}

// Entries returns the menu rows in catalog order.
func (m *Menu) Entries() []Entry {
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Get returns a loaded tool.
func (m *Menu) Get(c Capability) (Tool, error) {
	if t, ok := m.tools[c]; ok {
		return t, nil
	}
	for _, e := range m.entries {
		if e.Capability == c {
			return nil, fmt.Errorf("%w: %s is %s", ErrNotLoaded, c, e.State)
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCapability, c)
}

// Health counts loaded and failed tools; skipped ones are not attempted and not counted.
func (m *Menu) Health() Health {
	var h Health
	for _, e := range m.entries {
		switch e.State {
		case StateLoaded:
			h.Loaded++
		case StateFailed:
			h.Failed++
		}
	}
	h.Total = h.Loaded + h.Failed
	h.Score = float64(h.Loaded) / float64(max(1, h.Total))
	return h
}

package routing

import (
	"go.uber.org/zap"

	"github.com/upb/nimbus-copilot/services/providers"
)

// Policy is the ordered fallback chain. It is built once from configuration
// and never mutated, so it is safe to share across goroutines without locking.
type Policy struct {
	adapters []providers.Adapter
	fallback providers.Adapter
	skipped  []providers.ID
}

// NewPolicy builds a policy from adapters listed in priority order (fastest
// and cheapest first). Adapters that are not configured are left out, as are
// duplicates and any adapter claiming the Mock ID. fallback is the pseudo-adapter
// that terminates every chain.
func NewPolicy(logger *zap.Logger, fallback providers.Adapter, adapters ...providers.Adapter) *Policy {
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Policy{fallback: fallback}
	seen := make(map[providers.ID]bool, len(adapters))

	for _, adapter := range adapters {
		if adapter == nil {
			continue
		}

		id := adapter.ID()
		if id == providers.Mock || seen[id] {
			logger.Warn("ignoring repeated or reserved provider in fallback chain", zap.String("provider", string(id)))
			continue
		}
		seen[id] = true

		if !adapter.Configured() {
			p.skipped = append(p.skipped, id)
			logger.Info("provider not configured, excluded from fallback chain", zap.String("provider", string(id)))
			continue
		}

		p.adapters = append(p.adapters, adapter)
	}

	logger.Info("fallback chain resolved",
		zap.Strings("providers", idStrings(p.Providers())),
		zap.String("fallback", string(fallback.ID())))

	return p
}

// Order returns the trial order for one request. A configured preferred
// provider moves to the front; the remaining adapters keep their default
// order and the fallback is always last. The returned slice is fresh.
func (p *Policy) Order(preference providers.ID) []providers.Adapter {
	order := make([]providers.Adapter, 0, len(p.adapters)+1)

	preferred := -1
	if preference != providers.None {
		for i, adapter := range p.adapters {
			if adapter.ID() == preference {
				preferred = i
				break
			}
		}
	}

	if preferred >= 0 {
		order = append(order, p.adapters[preferred])
	}
	for i, adapter := range p.adapters {
		if i != preferred {
			order = append(order, adapter)
		}
	}

	return append(order, p.fallback)
}

// Fallback returns the terminating pseudo-adapter
func (p *Policy) Fallback() providers.Adapter {
	return p.fallback
}

// Providers returns the configured provider IDs in default order, without the fallback
func (p *Policy) Providers() []providers.ID {
	ids := make([]providers.ID, len(p.adapters))
	for i, adapter := range p.adapters {
		ids[i] = adapter.ID()
	}
	return ids
}

// Skipped returns the providers left out because they were not configured
func (p *Policy) Skipped() []providers.ID {
	return append([]providers.ID(nil), p.skipped...)
}

// Has reports whether id is a configured member of the chain
func (p *Policy) Has(id providers.ID) bool {
	for _, adapter := range p.adapters {
		if adapter.ID() == id {
			return true
		}
	}
	return false
}

func idStrings(ids []providers.ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

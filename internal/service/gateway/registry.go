package gateway

import (
	"fmt"
	"slices"
	"sort"

	"github.com/nkiryanov/walletledger/internal/apperrors"
)

type RegistryConfig struct {
	// Provider activated when nothing else is
	Default string

	// Providers switched off by admin toggle
	Disabled []string
}

// Registry holds providers active for the process lifetime
type Registry struct {
	active      map[string]Provider
	defaultName string
}

func NewRegistry(cfg RegistryConfig, providers ...Provider) (*Registry, error) {
	all := make(map[string]Provider, len(providers))
	for _, p := range providers {
		all[p.Name()] = p
	}

	def, ok := all[cfg.Default]
	if !ok {
		return nil, fmt.Errorf("default provider %q is not registered", cfg.Default)
	}

	active := make(map[string]Provider, len(all))
	for name, p := range all {
		if p.Configured() && !slices.Contains(cfg.Disabled, name) {
			active[name] = p
		}
	}
	if len(active) == 0 {
		active[def.Name()] = def
	}

	r := &Registry{active: active, defaultName: cfg.Default}
	if _, ok := active[cfg.Default]; !ok {
		// default is disabled; pick the first active one by name so the choice is stable
		r.defaultName = r.Names()[0]
	}

	return r, nil
}

// Get returns active provider, empty name means default one
func (r *Registry) Get(name string) (Provider, error) {
	if name == "" {
		name = r.defaultName
	}

	p, ok := r.active[name]
	if !ok {
		return nil, apperrors.ErrProviderNotAvailable
	}
	return p, nil
}

func (r *Registry) Default() Provider {
	return r.active[r.defaultName]
}

// Names of active providers sorted
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.active))
	for name := range r.active {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Pollable returns names of active providers able to report status on request
func (r *Registry) Pollable() []string {
	var names []string
	for _, name := range r.Names() {
		if r.active[name].Pollable() {
			names = append(names, name)
		}
	}
	return names
}

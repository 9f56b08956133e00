// Package module implements the verify service module
package module

import (
	"skillproof/internal/modkit"
	"skillproof/internal/services/verify/domain"
	"skillproof/internal/services/verify/repo"
	"skillproof/internal/services/verify/service"
)

// Ports exposed by the verify module
type Ports struct {
	Runner domain.RunnerPort
}

// Module implements the verify service module
type Module struct {
	deps  modkit.Deps
	ports Ports
}

// New constructs a new verify module
func New(deps modkit.Deps) *Module {
	opts := FromConfig(deps.Cfg)

	svc := service.New(deps.PG, repo.NewPG(), service.Config{
		Workers:        opts.Workers,
		FlushEvery:     opts.FlushEvery,
		Retries:        opts.Retries,
		JitterMin:      opts.JitterMin,
		JitterMax:      opts.JitterMax,
		CacheSize:      opts.CacheSize,
		UseBrowser:     opts.UseBrowser,
		HTTPTimeout:    opts.HTTPTimeout,
		BrowserTimeout: opts.BrowserTimeout,
	})

	m := &Module{deps: deps}
	m.ports = Ports{Runner: svc}
	return m
}

// Name satisfies modkit.Module
func (m *Module) Name() string { return "verify" }

// Ports satisfies modkit.Module
func (m *Module) Ports() any { return m.ports }

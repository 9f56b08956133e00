// Package module implements the ingest service module
package module

import (
	"skillproof/internal/modkit"
	"skillproof/internal/services/ingest/domain"
	"skillproof/internal/services/ingest/repo"
	"skillproof/internal/services/ingest/service"
)

// Ports exposed by the ingest module
type Ports struct {
	Importer domain.ImporterPort
}

// Module implements the ingest service module
type Module struct {
	deps  modkit.Deps
	ports Ports
}

// New constructs a new ingest module
func New(deps modkit.Deps) *Module {
	opts := FromConfig(deps.Cfg)

	svc := service.New(deps.PG, repo.NewPG(), service.Config{
		LogEvery: opts.LogEvery,
	})

	m := &Module{deps: deps}
	m.ports = Ports{Importer: svc}
	return m
}

// Name satisfies modkit.Module
func (m *Module) Name() string { return "ingest" }

// Ports satisfies modkit.Module
func (m *Module) Ports() any { return m.ports }

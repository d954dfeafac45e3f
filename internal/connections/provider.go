// Package connections implements the connection provider consumed by the
// execution engine. SQL connections go through database/sql; CSV connections
// expose a record source instead and never see SQL.
package connections

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ordino/internal/interfaces"
	"github.com/ternarybob/ordino/internal/models"
	"github.com/ternarybob/ordino/internal/render"
)

// Provider resolves connection references against the declared connection
// definitions. Definitions may carry ${var:}/${env:} placeholders; they are
// rendered on every Open so the definitions themselves stay untouched.
type Provider struct {
	defs     map[string]*models.ConnectionDef
	renderer *render.Engine
	logger   arbor.ILogger
}

// NewProvider creates a provider over the given connection definitions
func NewProvider(defs []*models.ConnectionDef, renderer *render.Engine, logger arbor.ILogger) *Provider {
	byName := make(map[string]*models.ConnectionDef, len(defs))
	for _, def := range defs {
		byName[def.Name] = def
	}
	return &Provider{
		defs:     byName,
		renderer: renderer,
		logger:   logger,
	}
}

// Definition returns the declared definition for a reference, or nil
func (p *Provider) Definition(ref string) *models.ConnectionDef {
	return p.defs[ref]
}

// Open resolves a reference to an open SQL session
func (p *Provider) Open(ctx context.Context, ref string) (interfaces.Connection, error) {
	def, exists := p.defs[ref]
	if !exists {
		return nil, &interfaces.ConnectionError{Ref: ref, Err: fmt.Errorf("connection not declared")}
	}

	path, err := p.renderer.Render(def.Path)
	if err != nil {
		return nil, &interfaces.ConnectionError{Ref: ref, Err: err}
	}

	switch def.Driver {
	case models.ConnectionDriverSQLite:
		conn, err := openSQLite(ctx, path)
		if err != nil {
			return nil, &interfaces.ConnectionError{Ref: ref, Err: err}
		}
		p.logger.Debug().Str("connection", ref).Str("path", path).Msg("Opened sqlite connection")
		return conn, nil
	case models.ConnectionDriverCSV:
		return nil, &interfaces.ConnectionError{Ref: ref, Err: fmt.Errorf("csv connections do not execute queries; use a record source")}
	default:
		return nil, &interfaces.ConnectionError{Ref: ref, Err: fmt.Errorf("unsupported driver %s", def.Driver)}
	}
}

// RecordSource resolves a reference to a CSV-backed record source
func (p *Provider) RecordSource(ref string) (interfaces.RecordSource, error) {
	def, exists := p.defs[ref]
	if !exists {
		return nil, &interfaces.ConnectionError{Ref: ref, Err: fmt.Errorf("connection not declared")}
	}
	if def.Driver != models.ConnectionDriverCSV {
		return nil, &interfaces.ConnectionError{Ref: ref, Err: fmt.Errorf("connection is not csv-backed")}
	}

	path, err := p.renderer.Render(def.Path)
	if err != nil {
		return nil, &interfaces.ConnectionError{Ref: ref, Err: err}
	}

	return &csvSource{
		path:      path,
		separator: def.CSVSeparator(),
		hasHeader: def.CSVHasHeader(),
		logger:    p.logger,
	}, nil
}

// Package store provides the dataset store engines: an in-process memory
// engine (the default) and a PostgreSQL engine. Both implement core.Store
// with the same visible semantics, so the service and its query results do
// not depend on which engine is configured.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rowhouse/rowhouse/internal/core"
)

// Memory keeps datasets in process memory. Row slices are treated as
// immutable once stored: replacement swaps in a new slice, so a snapshot
// handed to an earlier reader stays intact.
type Memory struct {
	mu     sync.RWMutex
	byID   map[string]*memRecord
	byName map[string]string // dataset name -> id
}

type memRecord struct {
	dataset core.Dataset
	rows    map[string][]core.Row // import id -> rows
}

// NewMemory returns an empty memory engine.
func NewMemory() *Memory {
	return &Memory{
		byID:   make(map[string]*memRecord),
		byName: make(map[string]string),
	}
}

var _ core.Store = (*Memory)(nil)

func (m *Memory) CreateDataset(_ context.Context, ds *core.Dataset, rows []core.Row) error {
	if len(ds.Imports) == 0 {
		return fmt.Errorf("dataset %q has no imports", ds.Name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byName[ds.Name]; exists {
		return core.ConflictError("dataset %q already exists", ds.Name)
	}

	rec := &memRecord{
		dataset: copyDataset(ds),
		rows:    make(map[string][]core.Row, len(ds.Imports)),
	}
	rec.rows[ds.Imports[0].ID] = rows

	m.byID[ds.ID] = rec
	m.byName[ds.Name] = ds.ID
	return nil
}

func (m *Memory) Dataset(_ context.Context, id string) (*core.Dataset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.byID[id]
	if !ok {
		return nil, core.NotFoundError("dataset %s not found", id)
	}
	cp := copyDataset(&rec.dataset)
	return &cp, nil
}

func (m *Memory) DatasetByName(_ context.Context, name string) (*core.Dataset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byName[name]
	if !ok {
		return nil, core.NotFoundError("dataset %q not found", name)
	}
	cp := copyDataset(&m.byID[id].dataset)
	return &cp, nil
}

func (m *Memory) UpdateMeta(_ context.Context, ds *core.Dataset) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.byID[ds.ID]
	if !ok {
		return core.NotFoundError("dataset %s not found", ds.ID)
	}
	rec.dataset.Title = ds.Title
	rec.dataset.Description = ds.Description
	rec.dataset.UserRef = ds.UserRef
	rec.dataset.Options = ds.Options
	rec.dataset.UpdatedAt = ds.UpdatedAt
	return nil
}

func (m *Memory) AppendImport(_ context.Context, datasetID string, imp core.Import, rows []core.Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.byID[datasetID]
	if !ok {
		return core.NotFoundError("dataset %s not found", datasetID)
	}
	rec.dataset.Imports = append(rec.dataset.Imports, imp)
	rec.dataset.UpdatedAt = imp.Dt
	rec.rows[imp.ID] = rows
	return nil
}

func (m *Memory) ReplaceImportRows(_ context.Context, datasetID string, imp core.Import, rows []core.Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.byID[datasetID]
	if !ok {
		return core.NotFoundError("dataset %s not found", datasetID)
	}
	existing := rec.dataset.ImportByID(imp.ID)
	if existing == nil {
		return core.NotFoundError("import %s not found", imp.ID)
	}
	*existing = imp
	rec.dataset.UpdatedAt = imp.Dt
	rec.rows[imp.ID] = rows
	return nil
}

func (m *Memory) SetImportStatus(_ context.Context, datasetID, importID string, status core.ImportStatus, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.byID[datasetID]
	if !ok {
		return core.NotFoundError("dataset %s not found", datasetID)
	}
	imp := rec.dataset.ImportByID(importID)
	if imp == nil {
		return core.NotFoundError("import %s not found", importID)
	}
	imp.Status = status
	imp.Error = errMsg
	rec.dataset.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) Rows(_ context.Context, datasetID string) ([]core.Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.byID[datasetID]
	if !ok {
		return nil, core.NotFoundError("dataset %s not found", datasetID)
	}

	var all []core.Row
	for _, imp := range rec.dataset.Imports {
		all = append(all, rec.rows[imp.ID]...)
	}
	return all, nil
}

// copyDataset clones the dataset with its own imports slice so callers can
// hold the copy without racing store mutations.
func copyDataset(ds *core.Dataset) core.Dataset {
	cp := *ds
	cp.Imports = append([]core.Import(nil), ds.Imports...)
	return cp
}

package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Mode selects the processing strategy for an ingest request.
type Mode string

const (
	// ModePreview samples the first rows of every sheet without persisting.
	ModePreview Mode = "preview"
	// ModeSync processes the selected sheet fully, blocking the request.
	ModeSync Mode = "sync"
	// ModeAsync persists metadata immediately and processes in background.
	ModeAsync Mode = "async"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModePreview, ModeSync, ModeAsync:
		return true
	}
	return false
}

// ImportStatus tracks the lifecycle of one import's row contribution.
type ImportStatus string

const (
	// StatusProcessing means a background job owns the import's rows.
	StatusProcessing ImportStatus = "processing"
	// StatusReady means the import's rows are fully visible.
	StatusReady ImportStatus = "ready"
	// StatusFailed means the last job errored. Rows reflect the previous
	// successful run, if any; retry happens only via an explicit reprocess.
	StatusFailed ImportStatus = "failed"
)

// JobPhase is the scheduling state of one ingest request.
type JobPhase string

const (
	PhaseReceived   JobPhase = "received"
	PhasePreviewing JobPhase = "previewing"
	PhaseProcessing JobPhase = "processing"
	PhaseDeferred   JobPhase = "deferred"
	PhaseCompleted  JobPhase = "completed"
	PhaseFailed     JobPhase = "failed"
)

// Declared column formats understood by CoerceValue.
const (
	FormatNumber  = "number"
	FormatDate    = "date"
	FormatBoolean = "boolean"
	FormatString  = "string"
)

// Column selects and shapes one output column. A column is matched by Index
// (0-based position) when set, otherwise by Source against the header text,
// otherwise by Key against the header-derived key.
type Column struct {
	Source string `json:"source,omitempty"`
	Index  *int   `json:"index,omitempty"`
	Key    string `json:"key,omitempty"`
	Format string `json:"format,omitempty"`
}

// KeyList is an ordered list of output keys. It unmarshals from either a
// JSON array of strings or a single comma-separated string, which is how
// form-based clients send it.
type KeyList []string

func (k *KeyList) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*k = SplitKeys(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("keys: expected string or array of strings")
	}
	*k = list
	return nil
}

// SplitKeys splits a comma-separated key string, dropping blanks.
func SplitKeys(s string) KeyList {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	keys := make(KeyList, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			keys = append(keys, p)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	return keys
}

// ProcessOptions is the per-request processing configuration. Pointer
// fields distinguish "omitted" from an explicit zero: Service applies
// defaults to omitted fields and, on reprocess, merges them from the
// dataset's stored options first.
type ProcessOptions struct {
	// Filename names a previously uploaded temp file (reprocess only).
	Filename string `json:"filename,omitempty"`
	// Mode defaults to sync.
	Mode Mode `json:"mode,omitempty"`
	// Max caps emitted rows; unset means the configured default.
	Max *int `json:"max,omitempty"`
	// SheetIndex selects the sheet for sync/async processing.
	SheetIndex *int `json:"sheet_index,omitempty"`
	// HeaderIndex is the 0-based row the header lives on.
	HeaderIndex *int `json:"header_index,omitempty"`
	// Keys override header-derived keys positionally.
	Keys KeyList `json:"keys,omitempty"`
	// Cols select, rename and coerce columns.
	Cols []Column `json:"cols,omitempty"`
	// Lines switches ingest row payloads to JSON Lines when positive.
	Lines *int `json:"lines,omitempty"`

	// Dataset metadata, set on create and refreshed on reprocess.
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	UserRef     string `json:"user_ref,omitempty"`
}

// Import is one spreadsheet file's contribution to a dataset. Within a
// dataset an import is identified by (filename, sheet_index): reprocessing
// that pair replaces its rows instead of appending a duplicate record.
type Import struct {
	ID         string       `json:"id"`
	Dt         time.Time    `json:"dt"`
	Filename   string       `json:"filename"`
	SheetIndex int          `json:"sheet_index"`
	Status     ImportStatus `json:"status"`
	Error      string       `json:"error,omitempty"`
}

// Dataset is the top-level queryable collection formed from one or more
// imports. Its rows are the union of the imports' rows in import order.
type Dataset struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	UserRef     string         `json:"user_ref,omitempty"`
	Options     ProcessOptions `json:"options"`
	Imports     []Import       `json:"imports"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// ImportByID returns the import with the given id, or nil.
func (d *Dataset) ImportByID(id string) *Import {
	for i := range d.Imports {
		if d.Imports[i].ID == id {
			return &d.Imports[i]
		}
	}
	return nil
}

// ImportBySheet returns the import matching (filename, sheetIndex), or nil.
func (d *Dataset) ImportBySheet(filename string, sheetIndex int) *Import {
	for i := range d.Imports {
		if d.Imports[i].Filename == filename && d.Imports[i].SheetIndex == sheetIndex {
			return &d.Imports[i]
		}
	}
	return nil
}

// RowSet is the response shape shared by dataset queries and sync ingest.
type RowSet struct {
	Total   int      `json:"total"`
	Limit   int      `json:"limit"`
	Skip    int      `json:"skip"`
	Dataset *Dataset `json:"dataset"`
	Rows    []Row    `json:"rows"`
}

// SheetPreview is one sheet's sampled rows. Total counts every normalized
// row in the sheet; Rows carries at most the preview limit.
type SheetPreview struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Total int    `json:"total"`
	Rows  []Row  `json:"rows"`
}

// Preview is the non-persisted overview returned by preview mode. It spans
// every sheet in the workbook.
type Preview struct {
	Mode     Mode           `json:"mode"`
	Filename string         `json:"filename"`
	Limit    int            `json:"limit"`
	Sheets   []SheetPreview `json:"sheets"`
}

package core

import (
	"encoding/json"
	"strings"
)

// MaxHeaderIndex caps header_index; values at or above it reset to row 0.
const MaxHeaderIndex = 256

// Limits carries the configured row caps. A request asking for more than
// the maximum is clamped; a request asking for nothing gets the default.
type Limits struct {
	DefaultRows    int
	MaxRows        int
	DefaultPreview int
	MaxPreview     int
}

// DefaultLimits mirrors the configuration defaults.
var DefaultLimits = Limits{
	DefaultRows:    1000,
	MaxRows:        10000,
	DefaultPreview: 25,
	MaxPreview:     50,
}

// RowCap resolves the effective row cap for sync/async ingestion.
func (l Limits) RowCap(requested *int) int {
	return capOrDefault(requested, l.DefaultRows, l.MaxRows)
}

// PreviewCap resolves the effective per-sheet cap for preview mode.
func (l Limits) PreviewCap(requested *int) int {
	return capOrDefault(requested, l.DefaultPreview, l.MaxPreview)
}

// PageLimit resolves the page size for dataset queries.
func (l Limits) PageLimit(requested int) int {
	if requested <= 0 {
		return l.DefaultRows
	}
	if requested > l.MaxRows {
		return l.MaxRows
	}
	return requested
}

func capOrDefault(requested *int, def, max int) int {
	if requested == nil || *requested <= 0 {
		return def
	}
	if *requested > max {
		return max
	}
	return *requested
}

// ModeOrDefault returns the requested mode, defaulting to sync.
func (o ProcessOptions) ModeOrDefault() Mode {
	if o.Mode == "" {
		return ModeSync
	}
	return o.Mode
}

// SheetIndexValue returns the selected sheet, defaulting to 0.
func (o ProcessOptions) SheetIndexValue() int {
	if o.SheetIndex == nil || *o.SheetIndex < 0 {
		return 0
	}
	return *o.SheetIndex
}

// HeaderIndexValue returns the header row, defaulting to 0. Out-of-range
// values reset to 0 rather than failing the request.
func (o ProcessOptions) HeaderIndexValue() int {
	if o.HeaderIndex == nil || *o.HeaderIndex < 0 || *o.HeaderIndex >= MaxHeaderIndex {
		return 0
	}
	return *o.HeaderIndex
}

// LineMode reports whether ingest responses stream rows as JSON Lines.
func (o ProcessOptions) LineMode() bool {
	return o.Lines != nil && *o.Lines > 0
}

// Validate rejects malformed options. It runs before any store mutation so
// a bad request never leaves partial state.
func (o ProcessOptions) Validate() error {
	if o.Mode != "" && !o.Mode.Valid() {
		return ValidationError("unknown mode %q", string(o.Mode))
	}
	if o.Max != nil && *o.Max < 0 {
		return ValidationError("max must not be negative")
	}
	if o.SheetIndex != nil && *o.SheetIndex < 0 {
		return ValidationError("sheet_index must not be negative")
	}
	if o.HeaderIndex != nil && *o.HeaderIndex < 0 {
		return ValidationError("header_index must not be negative")
	}
	if o.Lines != nil && *o.Lines < 0 {
		return ValidationError("lines must not be negative")
	}
	return nil
}

// MergeStored fills omitted fields from a dataset's stored options so a
// reprocess request only has to name what changes.
func (o ProcessOptions) MergeStored(stored ProcessOptions) ProcessOptions {
	if o.Mode == "" {
		o.Mode = stored.Mode
	}
	if o.Max == nil {
		o.Max = stored.Max
	}
	if o.SheetIndex == nil {
		o.SheetIndex = stored.SheetIndex
	}
	if o.HeaderIndex == nil {
		o.HeaderIndex = stored.HeaderIndex
	}
	if o.Keys == nil {
		o.Keys = stored.Keys
	}
	if o.Cols == nil {
		o.Cols = stored.Cols
	}
	if o.Lines == nil {
		o.Lines = stored.Lines
	}
	if o.Title == "" {
		o.Title = stored.Title
	}
	if o.Description == "" {
		o.Description = stored.Description
	}
	if o.UserRef == "" {
		o.UserRef = stored.UserRef
	}
	return o
}

// Resolved pins mode, sheet and header defaults into concrete values for
// storage on the dataset. Max stays as requested so datasets created
// without an explicit cap keep following the configured default.
func (o ProcessOptions) Resolved() ProcessOptions {
	o.Mode = o.ModeOrDefault()
	si := o.SheetIndexValue()
	o.SheetIndex = &si
	hi := o.HeaderIndexValue()
	o.HeaderIndex = &hi
	return o
}

// ParseCols decodes the cols request field, a JSON array of column rules.
func ParseCols(s string) ([]Column, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var cols []Column
	if err := json.Unmarshal([]byte(s), &cols); err != nil {
		return nil, ValidationError("cols must be a JSON array of column rules")
	}
	return cols, nil
}

package core

import (
	"encoding/json"
	"testing"
)

func testLimits() Limits {
	return Limits{
		DefaultRows:    1000,
		MaxRows:        10000,
		DefaultPreview: 25,
		MaxPreview:     50,
	}
}

func TestLimits_RowCap(t *testing.T) {
	l := testLimits()

	tests := []struct {
		name      string
		requested *int
		want      int
	}{
		{name: "omitted uses default", requested: nil, want: 1000},
		{name: "zero uses default", requested: intPtr(0), want: 1000},
		{name: "negative uses default", requested: intPtr(-5), want: 1000},
		{name: "within range", requested: intPtr(500), want: 500},
		{name: "at maximum", requested: intPtr(10000), want: 10000},
		{name: "above maximum clamps", requested: intPtr(50000), want: 10000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := l.RowCap(tt.requested); got != tt.want {
				t.Errorf("RowCap = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestLimits_PreviewCap(t *testing.T) {
	l := testLimits()

	if got := l.PreviewCap(nil); got != 25 {
		t.Errorf("PreviewCap(nil) = %d, want 25", got)
	}
	if got := l.PreviewCap(intPtr(10)); got != 10 {
		t.Errorf("PreviewCap(10) = %d, want 10", got)
	}
	if got := l.PreviewCap(intPtr(500)); got != 50 {
		t.Errorf("PreviewCap(500) = %d, want 50", got)
	}
}

func TestLimits_PageLimit(t *testing.T) {
	l := testLimits()

	if got := l.PageLimit(0); got != 1000 {
		t.Errorf("PageLimit(0) = %d, want 1000", got)
	}
	if got := l.PageLimit(200); got != 200 {
		t.Errorf("PageLimit(200) = %d, want 200", got)
	}
	if got := l.PageLimit(99999); got != 10000 {
		t.Errorf("PageLimit(99999) = %d, want 10000", got)
	}
}

func TestProcessOptions_Defaults(t *testing.T) {
	var o ProcessOptions

	if got := o.ModeOrDefault(); got != ModeSync {
		t.Errorf("ModeOrDefault = %s, want sync", got)
	}
	if got := o.SheetIndexValue(); got != 0 {
		t.Errorf("SheetIndexValue = %d, want 0", got)
	}
	if got := o.HeaderIndexValue(); got != 0 {
		t.Errorf("HeaderIndexValue = %d, want 0", got)
	}
	if o.LineMode() {
		t.Error("LineMode = true, want false")
	}
}

func TestProcessOptions_HeaderIndexClamp(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{in: 0, want: 0},
		{in: 3, want: 3},
		{in: 255, want: 255},
		{in: 256, want: 0},
		{in: 1000, want: 0},
	}

	for _, tt := range tests {
		o := ProcessOptions{HeaderIndex: intPtr(tt.in)}
		if got := o.HeaderIndexValue(); got != tt.want {
			t.Errorf("HeaderIndexValue(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestProcessOptions_Validate(t *testing.T) {
	tests := []struct {
		name    string
		opts    ProcessOptions
		wantErr bool
	}{
		{name: "empty options valid", opts: ProcessOptions{}},
		{name: "preview mode valid", opts: ProcessOptions{Mode: ModePreview}},
		{name: "async mode valid", opts: ProcessOptions{Mode: ModeAsync}},
		{name: "unknown mode", opts: ProcessOptions{Mode: "batch"}, wantErr: true},
		{name: "negative max", opts: ProcessOptions{Max: intPtr(-1)}, wantErr: true},
		{name: "negative sheet_index", opts: ProcessOptions{SheetIndex: intPtr(-2)}, wantErr: true},
		{name: "negative header_index", opts: ProcessOptions{HeaderIndex: intPtr(-1)}, wantErr: true},
		{name: "negative lines", opts: ProcessOptions{Lines: intPtr(-1)}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if tt.wantErr {
				if !IsKind(err, KindValidation) {
					t.Errorf("Validate() = %v, want validation error", err)
				}
				return
			}
			if err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
		})
	}
}

func TestProcessOptions_MergeStored(t *testing.T) {
	stored := ProcessOptions{
		Mode:        ModeAsync,
		Max:         intPtr(500),
		SheetIndex:  intPtr(2),
		HeaderIndex: intPtr(1),
		Keys:        KeyList{"a", "b"},
		Title:       "Quarterly",
	}

	// An empty request inherits everything.
	merged := ProcessOptions{}.MergeStored(stored)
	if merged.Mode != ModeAsync || merged.Max == nil || *merged.Max != 500 {
		t.Errorf("empty merge = %+v, want stored values", merged)
	}
	if merged.SheetIndexValue() != 2 || merged.HeaderIndexValue() != 1 {
		t.Errorf("indexes = %d/%d, want 2/1", merged.SheetIndexValue(), merged.HeaderIndexValue())
	}
	if len(merged.Keys) != 2 || merged.Title != "Quarterly" {
		t.Errorf("keys/title = %v/%q, want stored", merged.Keys, merged.Title)
	}

	// Request-supplied fields win, including explicit zeros.
	req := ProcessOptions{
		Mode:        ModeSync,
		SheetIndex:  intPtr(0),
		HeaderIndex: intPtr(0),
		Keys:        KeyList{"x"},
	}
	merged = req.MergeStored(stored)
	if merged.Mode != ModeSync {
		t.Errorf("mode = %s, want sync", merged.Mode)
	}
	if merged.SheetIndexValue() != 0 || merged.HeaderIndexValue() != 0 {
		t.Errorf("explicit zeros lost: %d/%d", merged.SheetIndexValue(), merged.HeaderIndexValue())
	}
	if len(merged.Keys) != 1 || merged.Keys[0] != "x" {
		t.Errorf("keys = %v, want [x]", merged.Keys)
	}
	if merged.Max == nil || *merged.Max != 500 {
		t.Errorf("omitted max = %v, want stored 500", merged.Max)
	}
}

func TestProcessOptions_Resolved(t *testing.T) {
	r := ProcessOptions{}.Resolved()
	if r.Mode != ModeSync {
		t.Errorf("mode = %s, want sync", r.Mode)
	}
	if r.SheetIndex == nil || *r.SheetIndex != 0 {
		t.Errorf("sheet_index = %v, want 0", r.SheetIndex)
	}
	if r.HeaderIndex == nil || *r.HeaderIndex != 0 {
		t.Errorf("header_index = %v, want 0", r.HeaderIndex)
	}
	if r.Max != nil {
		t.Errorf("max = %v, want nil", r.Max)
	}
}

func TestParseCols(t *testing.T) {
	cols, err := ParseCols("")
	if err != nil || cols != nil {
		t.Errorf("ParseCols(empty) = %v, %v", cols, err)
	}

	cols, err = ParseCols(`[{"key":"name"},{"source":"Amount","key":"total","format":"number"},{"index":2}]`)
	if err != nil {
		t.Fatalf("ParseCols error = %v", err)
	}
	if len(cols) != 3 {
		t.Fatalf("got %d cols, want 3", len(cols))
	}
	if cols[0].Key != "name" {
		t.Errorf("cols[0].Key = %q", cols[0].Key)
	}
	if cols[1].Source != "Amount" || cols[1].Key != "total" || cols[1].Format != "number" {
		t.Errorf("cols[1] = %+v", cols[1])
	}
	if cols[2].Index == nil || *cols[2].Index != 2 {
		t.Errorf("cols[2].Index = %v, want 2", cols[2].Index)
	}

	if _, err = ParseCols("{not json"); !IsKind(err, KindValidation) {
		t.Errorf("ParseCols(garbage) error = %v, want validation error", err)
	}
}

func TestSplitKeys(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{in: "a,b,c", want: []string{"a", "b", "c"}},
		{in: " a , b ", want: []string{"a", "b"}},
		{in: "a,,b", want: []string{"a", "b"}},
		{in: "", want: nil},
		{in: "  ", want: nil},
		{in: ",", want: nil},
	}

	for _, tt := range tests {
		got := SplitKeys(tt.in)
		if len(got) != len(tt.want) {
			t.Errorf("SplitKeys(%q) = %v, want %v", tt.in, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("SplitKeys(%q)[%d] = %q, want %q", tt.in, i, got[i], tt.want[i])
			}
		}
	}
}

func TestKeyList_UnmarshalJSON(t *testing.T) {
	var opts ProcessOptions
	if err := json.Unmarshal([]byte(`{"keys":"name, age"}`), &opts); err != nil {
		t.Fatalf("unmarshal string keys: %v", err)
	}
	if len(opts.Keys) != 2 || opts.Keys[0] != "name" || opts.Keys[1] != "age" {
		t.Errorf("keys from string = %v", opts.Keys)
	}

	opts = ProcessOptions{}
	if err := json.Unmarshal([]byte(`{"keys":["a","b","c"]}`), &opts); err != nil {
		t.Fatalf("unmarshal array keys: %v", err)
	}
	if len(opts.Keys) != 3 {
		t.Errorf("keys from array = %v", opts.Keys)
	}

	if err := json.Unmarshal([]byte(`{"keys":42}`), &opts); err == nil {
		t.Error("numeric keys accepted, want error")
	}
}

package core

import (
	"testing"
	"time"
)

// ----------------------------------------------------------------------------
// ToNumber Tests
// ----------------------------------------------------------------------------

func TestToNumber(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		wantOK bool
		want   float64
	}{
		// Valid: Basic integers
		{
			name:   "positive integer",
			input:  "123",
			wantOK: true,
			want:   123,
		},
		{
			name:   "zero",
			input:  "0",
			wantOK: true,
			want:   0,
		},
		{
			name:   "negative integer",
			input:  "-456",
			wantOK: true,
			want:   -456,
		},

		// Valid: Decimals
		{
			name:   "decimal number",
			input:  "123.45",
			wantOK: true,
			want:   123.45,
		},
		{
			name:   "leading decimal point",
			input:  ".99",
			wantOK: true,
			want:   0.99,
		},
		{
			name:   "trailing decimal point",
			input:  "99.",
			wantOK: true,
			want:   99,
		},

		// Valid: Currency symbols
		{
			name:   "dollar sign",
			input:  "$1,234.56",
			wantOK: true,
			want:   1234.56,
		},
		{
			name:   "euro sign",
			input:  "€1234.56",
			wantOK: true,
			want:   1234.56,
		},
		{
			name:   "pound sign",
			input:  "£1234.56",
			wantOK: true,
			want:   1234.56,
		},

		// Valid: Thousands separators
		{
			name:   "thousands separator",
			input:  "1,234,567.89",
			wantOK: true,
			want:   1234567.89,
		},
		{
			name:   "millions with separators",
			input:  "1,000,000",
			wantOK: true,
			want:   1000000,
		},

		// Valid: Accounting format (parentheses for negative)
		{
			name:   "accounting negative parentheses",
			input:  "(123.45)",
			wantOK: true,
			want:   -123.45,
		},
		{
			name:   "accounting negative with currency",
			input:  "($1,234.56)",
			wantOK: true,
			want:   -1234.56,
		},
		{
			name:   "accounting negative with spaces",
			input:  "( 999.99 )",
			wantOK: true,
			want:   -999.99,
		},

		// Valid: Scientific notation
		{
			name:   "scientific notation positive exponent",
			input:  "1.5e10",
			wantOK: true,
			want:   1.5e10,
		},
		{
			name:   "scientific notation negative exponent",
			input:  "1.5e-3",
			wantOK: true,
			want:   0.0015,
		},
		{
			name:   "scientific notation uppercase E",
			input:  "1.5E10",
			wantOK: true,
			want:   1.5e10,
		},

		// Valid: Whitespace handling
		{
			name:   "leading whitespace",
			input:  "  123",
			wantOK: true,
			want:   123,
		},
		{
			name:   "trailing whitespace",
			input:  "123  ",
			wantOK: true,
			want:   123,
		},

		// Valid: Explicit positive sign
		{
			name:   "explicit positive sign",
			input:  "+123",
			wantOK: true,
			want:   123,
		},

		// Invalid: Empty and whitespace
		{
			name:   "empty string",
			input:  "",
			wantOK: false,
		},
		{
			name:   "only whitespace",
			input:  "   ",
			wantOK: false,
		},

		// Invalid: Non-numeric content
		{
			name:   "alphabetic string",
			input:  "abc",
			wantOK: false,
		},
		{
			name:   "mixed alphanumeric",
			input:  "12abc34",
			wantOK: false,
		},
		{
			name:   "only currency symbol",
			input:  "$",
			wantOK: false,
		},

		// Invalid: Malformed numbers
		{
			name:   "multiple decimal points",
			input:  "12.34.56",
			wantOK: false,
		},
		{
			name:   "double negative",
			input:  "--123",
			wantOK: false,
		},
		{
			name:   "negative after number",
			input:  "123-",
			wantOK: false,
		},

		// Invalid: Special values
		{
			name:   "NaN",
			input:  "NaN",
			wantOK: false,
		},
		{
			name:   "Infinity",
			input:  "Infinity",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ToNumber(tt.input)

			if ok != tt.wantOK {
				t.Errorf("ToNumber(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
				return
			}

			if tt.wantOK && got != tt.want {
				t.Errorf("ToNumber(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// ToDate Tests
// ----------------------------------------------------------------------------

func TestToDate(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantOK    bool
		wantYear  int
		wantMonth time.Month
		wantDay   int
	}{
		// Valid: ISO format (YYYY-MM-DD)
		{
			name:      "ISO format standard",
			input:     "2024-01-15",
			wantOK:    true,
			wantYear:  2024,
			wantMonth: time.January,
			wantDay:   15,
		},
		{
			name:      "ISO format leap year Feb 29",
			input:     "2024-02-29",
			wantOK:    true,
			wantYear:  2024,
			wantMonth: time.February,
			wantDay:   29,
		},

		// Valid: Datetime formats
		{
			name:      "RFC3339 with zone",
			input:     "2024-01-15T10:30:00Z",
			wantOK:    true,
			wantYear:  2024,
			wantMonth: time.January,
			wantDay:   15,
		},
		{
			name:      "datetime with space separator",
			input:     "2024-01-15 10:30:00",
			wantOK:    true,
			wantYear:  2024,
			wantMonth: time.January,
			wantDay:   15,
		},

		// Valid: US format (MM/DD/YYYY)
		{
			name:      "US format with slashes",
			input:     "01/15/2024",
			wantOK:    true,
			wantYear:  2024,
			wantMonth: time.January,
			wantDay:   15,
		},
		{
			name:      "US format single digit month/day",
			input:     "1/5/2024",
			wantOK:    true,
			wantYear:  2024,
			wantMonth: time.January,
			wantDay:   5,
		},

		// Valid: Other 4-digit year formats
		{
			name:      "dash separator MM-DD-YYYY",
			input:     "01-15-2024",
			wantOK:    true,
			wantYear:  2024,
			wantMonth: time.January,
			wantDay:   15,
		},
		{
			name:      "dot separator MM.DD.YYYY",
			input:     "01.15.2024",
			wantOK:    true,
			wantYear:  2024,
			wantMonth: time.January,
			wantDay:   15,
		},
		{
			name:      "year first with slash YYYY/MM/DD",
			input:     "2024/01/15",
			wantOK:    true,
			wantYear:  2024,
			wantMonth: time.January,
			wantDay:   15,
		},
		{
			name:      "year first with dot YYYY.MM.DD",
			input:     "2024.01.15",
			wantOK:    true,
			wantYear:  2024,
			wantMonth: time.January,
			wantDay:   15,
		},

		// Valid: Text month formats
		{
			name:      "text month Jan 15, 2024",
			input:     "Jan 15, 2024",
			wantOK:    true,
			wantYear:  2024,
			wantMonth: time.January,
			wantDay:   15,
		},
		{
			name:      "text month 15 Jan 2024",
			input:     "15 Jan 2024",
			wantOK:    true,
			wantYear:  2024,
			wantMonth: time.January,
			wantDay:   15,
		},

		// Valid: Compact format (YYYYMMDD)
		{
			name:      "compact format no separators",
			input:     "20240115",
			wantOK:    true,
			wantYear:  2024,
			wantMonth: time.January,
			wantDay:   15,
		},

		// Valid: Whitespace handling
		{
			name:      "surrounded by whitespace",
			input:     "  2024-01-15  ",
			wantOK:    true,
			wantYear:  2024,
			wantMonth: time.January,
			wantDay:   15,
		},

		// Invalid: Empty and whitespace
		{
			name:   "empty string",
			input:  "",
			wantOK: false,
		},
		{
			name:   "only whitespace",
			input:  "   ",
			wantOK: false,
		},

		// Invalid: Non-date content
		{
			name:   "not a date text",
			input:  "not-a-date",
			wantOK: false,
		},
		{
			name:   "random text",
			input:  "hello world",
			wantOK: false,
		},

		// Invalid: Out of range values
		{
			name:   "month greater than 12",
			input:  "2024-13-01",
			wantOK: false,
		},
		{
			name:   "day greater than 31",
			input:  "2024-01-32",
			wantOK: false,
		},
		{
			name:   "invalid Feb 29 non-leap year",
			input:  "2023-02-29",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ToDate(tt.input)

			if ok != tt.wantOK {
				t.Errorf("ToDate(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
				return
			}

			if tt.wantOK {
				if got.Year() != tt.wantYear {
					t.Errorf("ToDate(%q).Year = %d, want %d", tt.input, got.Year(), tt.wantYear)
				}
				if got.Month() != tt.wantMonth {
					t.Errorf("ToDate(%q).Month = %v, want %v", tt.input, got.Month(), tt.wantMonth)
				}
				if got.Day() != tt.wantDay {
					t.Errorf("ToDate(%q).Day = %d, want %d", tt.input, got.Day(), tt.wantDay)
				}
			}
		})
	}
}

// TestToDate_TwoDigitYear tests 2-digit year handling with pivot year logic
func TestToDate_TwoDigitYear(t *testing.T) {
	originalPivot := TwoDigitYearPivot
	defer func() { TwoDigitYearPivot = originalPivot }()

	TwoDigitYearPivot = 20

	tests := []struct {
		name     string
		input    string
		wantYear int
	}{
		// 2-digit years in the current century
		{
			name:     "2-digit year 25 as 2025",
			input:    "01/15/25",
			wantYear: 2025,
		},
		{
			name:     "2-digit year 30 (within pivot)",
			input:    "01/15/30",
			wantYear: 2030,
		},

		// 2-digit years in the past century
		{
			name:     "2-digit year 99 as 1999",
			input:    "01/15/99",
			wantYear: 1999,
		},
		{
			name:     "2-digit year 85 as 1985",
			input:    "01/15/85",
			wantYear: 1985,
		},

		// Different formats with 2-digit years
		{
			name:     "dash format 2-digit year",
			input:    "1-15-99",
			wantYear: 1999,
		},
		{
			name:     "dot format 2-digit year",
			input:    "01.02.99",
			wantYear: 1999,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ToDate(tt.input)
			if !ok {
				t.Fatalf("ToDate(%q) ok = false, want true", tt.input)
			}
			if got.Year() != tt.wantYear {
				t.Errorf("ToDate(%q).Year = %d, want %d", tt.input, got.Year(), tt.wantYear)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// ToBool Tests
// ----------------------------------------------------------------------------

func TestToBool(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		wantOK bool
		want   bool
	}{
		// Valid: True values
		{name: "true lowercase", input: "true", wantOK: true, want: true},
		{name: "TRUE uppercase", input: "TRUE", wantOK: true, want: true},
		{name: "True mixed case", input: "True", wantOK: true, want: true},
		{name: "yes lowercase", input: "yes", wantOK: true, want: true},
		{name: "YES uppercase", input: "YES", wantOK: true, want: true},
		{name: "t abbreviation", input: "t", wantOK: true, want: true},
		{name: "y abbreviation", input: "Y", wantOK: true, want: true},
		{name: "1 as true", input: "1", wantOK: true, want: true},

		// Valid: False values
		{name: "false lowercase", input: "false", wantOK: true, want: false},
		{name: "FALSE uppercase", input: "FALSE", wantOK: true, want: false},
		{name: "no lowercase", input: "no", wantOK: true, want: false},
		{name: "NO uppercase", input: "NO", wantOK: true, want: false},
		{name: "f abbreviation", input: "f", wantOK: true, want: false},
		{name: "n abbreviation", input: "N", wantOK: true, want: false},
		{name: "0 as false", input: "0", wantOK: true, want: false},

		// Valid: With whitespace
		{name: "true with whitespace", input: "  true  ", wantOK: true, want: true},

		// Invalid
		{name: "empty string", input: "", wantOK: false},
		{name: "only whitespace", input: "   ", wantOK: false},
		{name: "maybe", input: "maybe", wantOK: false},
		{name: "on", input: "on", wantOK: false},
		{name: "off", input: "off", wantOK: false},
		{name: "number 2", input: "2", wantOK: false},
		{name: "negative 1", input: "-1", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ToBool(tt.input)

			if ok != tt.wantOK {
				t.Errorf("ToBool(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
				return
			}

			if tt.wantOK && got != tt.want {
				t.Errorf("ToBool(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// CleanCell Tests
// ----------------------------------------------------------------------------

func TestCleanCell(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		// Basic cleaning
		{
			name:  "simple string unchanged",
			input: "hello",
			want:  "hello",
		},
		{
			name:  "empty string",
			input: "",
			want:  "",
		},

		// Whitespace trimming
		{
			name:  "surrounded by whitespace",
			input: "  hello  ",
			want:  "hello",
		},

		// Excel formula prefix handling
		{
			name:  "Excel formula with quotes",
			input: `="hello"`,
			want:  "hello",
		},
		{
			name:  "Excel formula number as text",
			input: `="12345"`,
			want:  "12345",
		},
		{
			name:  "bare equals sign",
			input: "=SUM(A1)",
			want:  "SUM(A1)",
		},
		{
			name:  "equals at start only",
			input: "=hello",
			want:  "hello",
		},
		{
			name:  "equals and quote only",
			input: `="`,
			want:  "",
		},

		// Quote handling
		{
			name:  "double quotes removed",
			input: `"hello"`,
			want:  "hello",
		},
		{
			name:  "single quotes removed",
			input: "'hello'",
			want:  "hello",
		},
		{
			name:  "leading single quote (Excel text prefix)",
			input: "'12345",
			want:  "12345",
		},

		// Combined cleaning
		{
			name:  "whitespace and quotes",
			input: `  "hello"  `,
			want:  "hello",
		},
		{
			name:  "excel formula with whitespace",
			input: `  ="test"  `,
			want:  "test",
		},

		// Edge cases
		{
			name:  "only quotes",
			input: `""`,
			want:  "",
		},
		{
			name:  "equals with quoted number",
			input: `="0"`,
			want:  "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CleanCell(tt.input)
			if got != tt.want {
				t.Errorf("CleanCell(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// AutoValue Tests
// ----------------------------------------------------------------------------

func TestAutoValue(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  any
	}{
		// Empty cells become nil
		{name: "empty string", input: "", want: nil},
		{name: "only whitespace", input: "   ", want: nil},

		// Strict numeric literals become float64
		{name: "integer", input: "123", want: float64(123)},
		{name: "decimal", input: "123.45", want: 123.45},
		{name: "negative", input: "-5", want: float64(-5)},
		{name: "scientific", input: "1e3", want: float64(1000)},
		{name: "quoted number", input: `="42"`, want: float64(42)},

		// Boolean literals become bool
		{name: "true literal", input: "true", want: true},
		{name: "FALSE literal", input: "FALSE", want: false},

		// Everything else stays a string
		{name: "plain text", input: "hello", want: "hello"},
		{name: "yes stays string", input: "yes", want: "yes"},
		{name: "currency stays string", input: "$1,234", want: "$1,234"},
		{name: "accounting stays string", input: "(123)", want: "(123)"},
		{name: "date stays string", input: "01/15/2024", want: "01/15/2024"},
		{name: "leading zeros stay string", input: "hello2", want: "hello2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AutoValue(tt.input)
			if got != tt.want {
				t.Errorf("AutoValue(%q) = %#v, want %#v", tt.input, got, tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// CoerceValue Tests
// ----------------------------------------------------------------------------

func TestCoerceValue(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		format string
		want   any
	}{
		// No format falls back to auto typing
		{name: "auto number", input: "123", format: "", want: float64(123)},
		{name: "auto text", input: "yes", format: "", want: "yes"},

		// Number format applies lenient parsing
		{name: "number plain", input: "123", format: FormatNumber, want: float64(123)},
		{name: "number currency", input: "$1,234.56", format: FormatNumber, want: 1234.56},
		{name: "number accounting", input: "(99)", format: "numeric", want: float64(-99)},
		{name: "number integer alias", input: "7", format: "int", want: float64(7)},
		{name: "number invalid", input: "abc", format: FormatNumber, want: nil},
		{name: "number empty", input: "", format: FormatNumber, want: nil},

		// Boolean format applies lenient parsing
		{name: "boolean yes", input: "yes", format: FormatBoolean, want: true},
		{name: "boolean n", input: "N", format: "bool", want: false},
		{name: "boolean invalid", input: "maybe", format: FormatBoolean, want: nil},

		// Date format normalizes to RFC3339 UTC
		{name: "date US", input: "01/15/2024", format: FormatDate, want: "2024-01-15T00:00:00Z"},
		{name: "date ISO", input: "2024-01-15", format: FormatDate, want: "2024-01-15T00:00:00Z"},
		{name: "datetime alias", input: "2024-01-15T10:30:00Z", format: "datetime", want: "2024-01-15T10:30:00Z"},
		{name: "date invalid", input: "not a date", format: FormatDate, want: nil},

		// String format keeps the cleaned cell verbatim
		{name: "string keeps digits", input: "00123", format: FormatString, want: "00123"},
		{name: "text alias", input: "  hi  ", format: "text", want: "hi"},

		// Unknown formats fall back to auto typing
		{name: "unknown format", input: "123", format: "mystery", want: float64(123)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CoerceValue(tt.input, tt.format)
			if got != tt.want {
				t.Errorf("CoerceValue(%q, %q) = %#v, want %#v", tt.input, tt.format, got, tt.want)
			}
		})
	}
}

package core

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Operator identifies a filter comparison.
type Operator string

const (
	OpEq     Operator = "eq"     // exact equality, type-sensitive
	OpNe     Operator = "ne"     // inequality; missing fields match
	OpGt     Operator = "gt"     // greater than
	OpGte    Operator = "gte"    // greater than or equal
	OpLt     Operator = "lt"     // less than
	OpLte    Operator = "lte"    // less than or equal
	OpIn     Operator = "in"     // membership in a value list
	OpNin    Operator = "nin"    // non-membership; missing fields match
	OpLike   Operator = "like"   // case-insensitive string equality
	OpRgx    Operator = "rgx"    // case-insensitive regular expression
	OpRcs    Operator = "rcs"    // case-sensitive regular expression
	OpStarts Operator = "starts" // case-insensitive prefix
	OpEnds   Operator = "ends"   // case-insensitive suffix
)

// Valid reports whether the operator is one of the supported comparisons.
func (o Operator) Valid() bool {
	switch o {
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpIn, OpNin,
		OpLike, OpRgx, OpRcs, OpStarts, OpEnds:
		return true
	}
	return false
}

// ParseOperator validates an operator name from a request.
func ParseOperator(s string) (Operator, error) {
	op := Operator(s)
	if !op.Valid() {
		return "", ValidationError("unsupported operator %q", s)
	}
	return op, nil
}

// Predicate is a single field/operator/value filter condition.
type Predicate struct {
	Field string
	Op    Operator
	Value any
}

// Query describes one read over a dataset's rows: an optional filter, an
// optional single-field sort, and a pagination window.
type Query struct {
	Filter *Predicate
	Sort   string
	Dir    string
	Start  int
	Limit  int
}

// ParseValue interprets a raw request value for an operator. String-match
// operators take the value verbatim; in/nin accept a JSON array or a
// comma-separated list; everything else decodes JSON scalars so numbers,
// booleans, and null compare type-sensitively while plain text stays a
// string.
func ParseValue(op Operator, raw string) any {
	switch op {
	case OpLike, OpRgx, OpRcs, OpStarts, OpEnds:
		return raw
	case OpIn, OpNin:
		var list []any
		if err := json.Unmarshal([]byte(raw), &list); err == nil {
			return list
		}
		parts := strings.Split(raw, ",")
		out := make([]any, 0, len(parts))
		for _, p := range parts {
			out = append(out, decodeScalar(strings.TrimSpace(p)))
		}
		return out
	default:
		return decodeScalar(raw)
	}
}

func decodeScalar(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}

// Matcher compiles the predicate into a per-row match function. Regular
// expression patterns compile once here, not per row. Returns a
// ValidationError for an unsupported operator or invalid pattern.
func (p Predicate) Matcher() (func(Row) bool, error) {
	if p.Field == "" {
		return nil, ValidationError("filter field is required")
	}
	if !p.Op.Valid() {
		return nil, ValidationError("unsupported operator %q", string(p.Op))
	}

	switch p.Op {
	case OpEq:
		return func(r Row) bool {
			v, ok := r.Lookup(p.Field)
			return ok && valueEqual(v, p.Value)
		}, nil

	case OpNe:
		return func(r Row) bool {
			v, ok := r.Lookup(p.Field)
			return !ok || !valueEqual(v, p.Value)
		}, nil

	case OpGt, OpGte, OpLt, OpLte:
		op := p.Op
		return func(r Row) bool {
			v, ok := r.Lookup(p.Field)
			if !ok {
				return false
			}
			c, ok := compareOrdered(v, p.Value)
			if !ok {
				return false
			}
			switch op {
			case OpGt:
				return c > 0
			case OpGte:
				return c >= 0
			case OpLt:
				return c < 0
			default:
				return c <= 0
			}
		}, nil

	case OpIn:
		list := valueList(p.Value)
		return func(r Row) bool {
			v, ok := r.Lookup(p.Field)
			if !ok {
				return false
			}
			return inList(v, list)
		}, nil

	case OpNin:
		list := valueList(p.Value)
		return func(r Row) bool {
			v, ok := r.Lookup(p.Field)
			return !ok || !inList(v, list)
		}, nil

	case OpLike:
		want := stringValue(p.Value)
		return func(r Row) bool {
			s, ok := stringField(r, p.Field)
			return ok && strings.EqualFold(s, want)
		}, nil

	case OpRgx, OpRcs:
		pat := stringValue(p.Value)
		if p.Op == OpRgx {
			pat = "(?i)" + pat
		}
		re, err := regexp.Compile(pat)
		if err != nil {
			return nil, ValidationError("invalid pattern %q: %v", stringValue(p.Value), err)
		}
		return func(r Row) bool {
			s, ok := stringField(r, p.Field)
			return ok && re.MatchString(s)
		}, nil

	case OpStarts:
		want := strings.ToLower(stringValue(p.Value))
		return func(r Row) bool {
			s, ok := stringField(r, p.Field)
			return ok && strings.HasPrefix(strings.ToLower(s), want)
		}, nil

	default: // OpEnds
		want := strings.ToLower(stringValue(p.Value))
		return func(r Row) bool {
			s, ok := stringField(r, p.Field)
			return ok && strings.HasSuffix(strings.ToLower(s), want)
		}, nil
	}
}

// EvalPredicate reports whether one row satisfies the predicate. Rows are
// excluded when the predicate fails to compile.
func EvalPredicate(r Row, p Predicate) bool {
	match, err := p.Matcher()
	if err != nil {
		return false
	}
	return match(r)
}

// ApplyQuery filters, sorts, and paginates rows. The returned total is the
// filtered count before pagination so callers can compute page counts. The
// input slice is never mutated; sorting works on a copy.
func ApplyQuery(rows []Row, q Query) (int, []Row, error) {
	filtered := rows
	if q.Filter != nil {
		match, err := q.Filter.Matcher()
		if err != nil {
			return 0, nil, err
		}
		filtered = make([]Row, 0, len(rows))
		for _, r := range rows {
			if match(r) {
				filtered = append(filtered, r)
			}
		}
	}

	if q.Sort != "" {
		desc, err := sortDirection(q.Dir)
		if err != nil {
			return 0, nil, err
		}
		if q.Filter == nil {
			filtered = append([]Row(nil), rows...)
		}
		sortRows(filtered, q.Sort, desc)
	}

	total := len(filtered)
	start := q.Start
	if start < 0 {
		start = 0
	}
	if start > total {
		start = total
	}
	end := total
	if q.Limit > 0 && start+q.Limit < end {
		end = start + q.Limit
	}
	return total, filtered[start:end], nil
}

// sortDirection maps a dir parameter onto ascending/descending.
func sortDirection(dir string) (bool, error) {
	switch strings.ToLower(dir) {
	case "", "asc":
		return false, nil
	case "desc":
		return true, nil
	default:
		return false, ValidationError("invalid sort direction %q", dir)
	}
}

// sortRows orders rows by one field. Rows missing the field sort last in
// both directions; equal keys keep their insertion order.
func sortRows(rows []Row, field string, desc bool) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, aok := rows[i].Lookup(field)
		b, bok := rows[j].Lookup(field)
		if aok != bok {
			return aok
		}
		if !aok {
			return false
		}
		c := compareSortKeys(a, b)
		if c == 0 {
			return false
		}
		if desc {
			return c > 0
		}
		return c < 0
	})
}

// valueEqual is the type-sensitive equality used by eq/ne/in/nin: the
// string "1" never equals the number 1.
func valueEqual(a, b any) bool {
	switch x := a.(type) {
	case nil:
		return b == nil
	case string:
		y, ok := b.(string)
		return ok && x == y
	case float64:
		y, ok := numberValue(b)
		return ok && x == y
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	}
	return reflect.DeepEqual(a, b)
}

func valueList(v any) []any {
	if list, ok := v.([]any); ok {
		return list
	}
	return []any{v}
}

func inList(v any, list []any) bool {
	for _, item := range list {
		if valueEqual(v, item) {
			return true
		}
	}
	return false
}

// compareOrdered compares two values for gt/gte/lt/lte. Ordering is defined
// only for number-number and date-date pairs; anything else reports not
// comparable and the row is excluded.
func compareOrdered(a, b any) (int, bool) {
	if x, ok := numberValue(a); ok {
		y, ok := numberValue(b)
		if !ok {
			return 0, false
		}
		return compareFloats(x, y), true
	}
	if x, ok := dateValue(a); ok {
		y, ok := dateValue(b)
		if !ok {
			return 0, false
		}
		switch {
		case x.Before(y):
			return -1, true
		case x.After(y):
			return 1, true
		default:
			return 0, true
		}
	}
	return 0, false
}

// compareSortKeys is the total order used for sorting. Values order by type
// class first (null < bool < number < string < other), then within class.
func compareSortKeys(a, b any) int {
	ca, cb := typeClass(a), typeClass(b)
	if ca != cb {
		return ca - cb
	}
	switch ca {
	case classBool:
		x, _ := a.(bool)
		y, _ := b.(bool)
		switch {
		case !x && y:
			return -1
		case x && !y:
			return 1
		default:
			return 0
		}
	case classNumber:
		x, _ := numberValue(a)
		y, _ := numberValue(b)
		return compareFloats(x, y)
	case classString:
		return strings.Compare(a.(string), b.(string))
	default:
		return 0
	}
}

const (
	classNull = iota
	classBool
	classNumber
	classString
	classOther
)

func typeClass(v any) int {
	switch v.(type) {
	case nil:
		return classNull
	case bool:
		return classBool
	case float64, int, int64:
		return classNumber
	case string:
		return classString
	default:
		return classOther
	}
}

func compareFloats(x, y float64) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	default:
		return 0
	}
}

func numberValue(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}

func dateValue(v any) (time.Time, bool) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	return ToDate(s)
}

func stringField(r Row, field string) (string, bool) {
	v, ok := r.Lookup(field)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func stringValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

package core

import "strings"

// colRule is one resolved output column: which source cell to read, the key
// to emit it under, and the declared coercion to apply.
type colRule struct {
	index  int
	key    string
	format string
}

// headerKey converts header text into a row key: cleaned, lowercased, with
// whitespace runs collapsed to underscores.
func headerKey(s string) string {
	s = strings.ToLower(CleanCell(s))
	return strings.Join(strings.Fields(s), "_")
}

// isEmptyRow reports whether every cell is blank.
func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// resolveColumns turns the header row plus keys/cols configuration into an
// ordered output plan.
//
// keys overrides header-derived keys positionally; a length mismatch between
// keys and the header truncates to the shorter side. cols entries select a
// source column by explicit index, header text, or key; unknown references
// are ignored. When cols is empty and keys is present, every key passes
// through unchanged.
func resolveColumns(header []string, keys []string, cols []Column) []colRule {
	base := make([]string, len(header))
	for i, h := range header {
		base[i] = headerKey(h)
	}

	if len(keys) > 0 {
		if len(keys) < len(base) {
			base = base[:len(keys)]
		}
		for i := range base {
			base[i] = keys[i]
		}
		if len(cols) == 0 {
			cols = make([]Column, len(base))
			for i, k := range base {
				cols[i] = Column{Key: k}
			}
		}
	}

	if len(cols) == 0 {
		rules := make([]colRule, 0, len(base))
		for i, k := range base {
			if k == "" {
				continue
			}
			rules = append(rules, colRule{index: i, key: k})
		}
		return rules
	}

	rules := make([]colRule, 0, len(cols))
	for _, c := range cols {
		idx, ok := c.resolve(base)
		if !ok {
			continue
		}
		key := c.Key
		if key == "" {
			key = base[idx]
		}
		if key == "" {
			continue
		}
		rules = append(rules, colRule{index: idx, key: key, format: c.Format})
	}
	return rules
}

// resolve finds the source column for a rule.
// Precedence: explicit index, then source header text, then key.
func (c Column) resolve(base []string) (int, bool) {
	if c.Index != nil {
		if i := *c.Index; i >= 0 && i < len(base) {
			return i, true
		}
		return 0, false
	}
	if c.Source != "" {
		want := headerKey(c.Source)
		for i, k := range base {
			if k == want {
				return i, true
			}
		}
		return 0, false
	}
	if c.Key != "" {
		for i, k := range base {
			if k == c.Key {
				return i, true
			}
		}
	}
	return 0, false
}

// buildRow maps one raw row through the column plan. Cells past the end of a
// ragged row read as empty.
func buildRow(cells []string, rules []colRule) Row {
	r := NewRow(len(rules))
	for _, rule := range rules {
		raw := ""
		if rule.index < len(cells) {
			raw = cells[rule.index]
		}
		r.Set(rule.key, CoerceValue(raw, rule.format))
	}
	return r
}

// NormalizeRows converts a decoded sheet into ordered Row documents.
//
// Rows before headerIndex are discarded and the header row itself is never
// emitted. Interior empty rows become empty-valued documents; trailing empty
// rows are dropped. max > 0 is a hard cap on the number of emitted rows.
func NormalizeRows(grid [][]string, headerIndex int, keys []string, cols []Column, max int) []Row {
	if headerIndex < 0 {
		headerIndex = 0
	}
	if headerIndex >= len(grid) {
		return nil
	}

	rules := resolveColumns(grid[headerIndex], keys, cols)
	if len(rules) == 0 {
		return nil
	}

	data := grid[headerIndex+1:]
	rows := make([]Row, 0, len(data))
	pendingEmpty := 0

	for _, cells := range data {
		if isEmptyRow(cells) {
			pendingEmpty++
			continue
		}
		for pendingEmpty > 0 {
			if max > 0 && len(rows) >= max {
				return rows
			}
			rows = append(rows, buildRow(nil, rules))
			pendingEmpty--
		}
		if max > 0 && len(rows) >= max {
			return rows
		}
		rows = append(rows, buildRow(cells, rules))
	}
	return rows
}

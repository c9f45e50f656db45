package sheetsync

import "strings"

// Some sheet exports collapse a whole logical row into one comma-joined
// string in the first cell, leaving the row with only 1-2 cells. The source
// layout for those rows is:
//
//	Username, Name, Phone, Batch, Mentor, qr_token, url, sts, in_time, last_scan
//
// Both heuristics below are positional recoveries tied to that one layout,
// not general CSV repair.

// repairCollapsedRow rebuilds a full-width row from a collapsed first cell.
// It fires only when the row has at most 2 cells, the first cell contains at
// least 5 commas, and the comma split yields at least 6 parts. Returns the
// rebuilt row and whether the heuristic fired.
func repairCollapsedRow(row []string, cols ColumnIndex) ([]string, bool) {
	if len(row) == 0 || len(row) > 2 || row[0] == "" {
		return row, false
	}
	if strings.Count(row[0], ",") < 5 {
		return row, false
	}
	parts := splitTrim(row[0])
	if len(parts) < 6 {
		return row, false
	}

	fixed := make([]string, cols.Width)
	put := func(col int, v string) {
		if col != absent && col < len(fixed) && v != "" {
			fixed[col] = v
		}
	}
	put(cols.Username, parts[0])
	put(cols.Name, parts[1])
	put(cols.Batch, parts[3])
	put(cols.Mentor, parts[4])
	put(cols.QRToken, parts[5])
	if len(parts) > 7 {
		put(cols.Status, parts[7])
	}
	return fixed, true
}

// recoverFromCollapsed is the narrower fallback used when the qr_token cell
// resolved empty but the first cell looks collapsed. It takes the token from
// part 5 and back-fills only fields that are still empty, padding the row to
// full width. Unlike repairCollapsedRow it has no cell-count precondition, so
// the two may fire on the same row as layered fallbacks.
func recoverFromCollapsed(row []string, cols ColumnIndex) ([]string, string) {
	if len(row) == 0 || !strings.Contains(row[0], ",") {
		return row, ""
	}
	parts := splitTrim(row[0])
	if len(parts) <= 5 || parts[5] == "" {
		return row, ""
	}
	token := parts[5]

	for len(row) < cols.Width {
		row = append(row, "")
	}
	fill := func(col int, v string) {
		if col != absent && col < len(row) && v != "" && strings.TrimSpace(row[col]) == "" {
			row[col] = v
		}
	}
	fill(cols.Username, parts[0])
	fill(cols.Name, parts[1])
	fill(cols.Batch, parts[3])
	fill(cols.Mentor, parts[4])
	if len(parts) > 7 {
		fill(cols.Status, parts[7])
	}
	return row, token
}

func splitTrim(s string) []string {
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

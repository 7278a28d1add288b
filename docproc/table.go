package docproc

import (
	"fmt"
	"strings"
)

// Table is a grid extracted from a structured document: a header row of
// column names plus data rows. Rows shorter than the header are padded with
// empty cells during normalization.
type Table struct {
	Columns []string
	Rows    [][]string
}

// columnSimilarityThreshold: the cell-equality ratio above which two columns
// are treated as redundant copies of each other.
const columnSimilarityThreshold = 0.8

// normalizeTable renders a table as a GitHub-flavored markdown fragment
// after pruning near-duplicate columns, disambiguating repeated column
// names, and stripping newlines embedded in cell values. Cell text passes
// through without markdown escaping; only the pipe delimiter is protected.
func normalizeTable(t *Table) string {
	dups := findNearDuplicates(t, columnSimilarityThreshold)

	counts := make(map[string]int)
	names := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		names[i] = makeUnique(col, counts)
	}

	// First occurrence wins: drop the right-hand column of each duplicate
	// pair unless an earlier pair already removed it.
	dropped := make(map[int]bool)
	for _, pair := range dups {
		dropped[pair[1]] = true
	}

	var keep []int
	for i := range names {
		if !dropped[i] {
			keep = append(keep, i)
		}
	}

	var sb strings.Builder
	writeRow := func(cells func(i int) string) {
		sb.WriteString("|")
		for _, i := range keep {
			sb.WriteString(" ")
			sb.WriteString(markdownCell(cells(i)))
			sb.WriteString(" |")
		}
		sb.WriteString("\n")
	}

	writeRow(func(i int) string { return names[i] })
	sb.WriteString("|")
	for range keep {
		sb.WriteString(" --- |")
	}
	sb.WriteString("\n")
	for _, row := range t.Rows {
		writeRow(func(i int) string { return cellAt(row, i) })
	}
	return strings.TrimSpace(sb.String())
}

// markdownCell makes a cell value safe to sit between pipe delimiters.
func markdownCell(s string) string {
	return strings.ReplaceAll(stripNewlines(s), "|", "\\|")
}

// findNearDuplicates returns index pairs (i < j) of columns whose values
// match in at least threshold of rows.
func findNearDuplicates(t *Table, threshold float64) [][2]int {
	if len(t.Rows) == 0 {
		return nil
	}
	var pairs [][2]int
	for i := 0; i < len(t.Columns); i++ {
		for j := i + 1; j < len(t.Columns); j++ {
			matches := 0
			for _, row := range t.Rows {
				if cellAt(row, i) == cellAt(row, j) {
					matches++
				}
			}
			if float64(matches)/float64(len(t.Rows)) >= threshold {
				pairs = append(pairs, [2]int{i, j})
			}
		}
	}
	return pairs
}

// makeUnique disambiguates a column name against the running occurrence
// counts: the first occurrence keeps its name, later ones get a numeric
// suffix starting at _2.
func makeUnique(name string, counts map[string]int) string {
	count := counts[name]
	counts[name] = count + 1
	if count == 0 {
		return name
	}
	return fmt.Sprintf("%s_%d", name, count+1)
}

func stripNewlines(s string) string {
	s = strings.ReplaceAll(s, "\n", "")
	return strings.ReplaceAll(s, "\r", "")
}

func cellAt(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

package smartsheet

// Column metadata as returned by the sheet read endpoint.
type Column struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	Index int    `json:"index"`
}

// Cell holds both the raw value and the rendered display value; reads prefer
// the display value when present, matching what an operator sees in the sheet.
type Cell struct {
	ColumnID     int64  `json:"columnId"`
	Value        any    `json:"value,omitempty"`
	DisplayValue string `json:"displayValue,omitempty"`
}

// DisplayOrValue returns the display value when the cell has one, else the raw value.
func (c Cell) DisplayOrValue() any {
	if c.DisplayValue != "" {
		return c.DisplayValue
	}
	return c.Value
}

type Row struct {
	ID    int64  `json:"id"`
	Cells []Cell `json:"cells"`
}

type Sheet struct {
	ID      int64    `json:"id"`
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// RecordsByTitle flattens the sheet into one map per row keyed by column title.
// Used for the config sheet, whose rows are consumed by display name rather
// than by column id.
func (s *Sheet) RecordsByTitle() []map[string]any {
	titles := make(map[int64]string, len(s.Columns))
	for _, col := range s.Columns {
		titles[col.ID] = col.Title
	}
	records := make([]map[string]any, 0, len(s.Rows))
	for _, row := range s.Rows {
		rec := make(map[string]any, len(row.Cells))
		for _, cell := range row.Cells {
			title, ok := titles[cell.ColumnID]
			if !ok {
				continue
			}
			rec[title] = cell.DisplayOrValue()
		}
		records = append(records, rec)
	}
	return records
}

// ColumnTitles returns titles in sheet order.
func (s *Sheet) ColumnTitles() []string {
	titles := make([]string, 0, len(s.Columns))
	for _, col := range s.Columns {
		titles = append(titles, col.Title)
	}
	return titles
}

// NewCell is a cell payload for row writes.
type NewCell struct {
	ColumnID int64 `json:"columnId"`
	Value    any   `json:"value"`
}

// RowInsert appends a new row at the bottom of the sheet.
type RowInsert struct {
	ToBottom bool      `json:"toBottom"`
	Cells    []NewCell `json:"cells"`
}

// RowUpdate rewrites cells of an existing row.
type RowUpdate struct {
	ID    int64     `json:"id"`
	Cells []NewCell `json:"cells"`
}

// Package sheets is the spreadsheet boundary: it reads roster and pairing rows
// from the league's Google Sheet and parses HYPERLINK formulas. Rows are maps
// from lowercased column label to cell, so callers never deal in cell ranges.
package sheets

import "context"

// Cell is one spreadsheet cell: the displayed value plus the underlying
// formula (empty when the cell holds a literal).
type Cell struct {
	Value   string
	Formula string
}

// Row maps a lowercased column label to its cell.
type Row map[string]Cell

// QueryOptions bounds the region read from a sheet.
type QueryOptions struct {
	MinRow      int
	MaxRow      int
	MinCol      int
	MaxCol      int
	ReturnEmpty bool
}

// RowSource reads labeled rows from a spreadsheet. Implementations must treat
// the first row inside the queried region as the header row.
type RowSource interface {
	// Rows returns the rows of the first sheet whose title matches sheetMatch.
	Rows(ctx context.Context, spreadsheetKey string, opt QueryOptions, sheetMatch func(title string) bool) ([]Row, error)
	// PairingRows returns the rows of the current round's pairings sheet.
	PairingRows(ctx context.Context, spreadsheetKey string, opt QueryOptions) ([]Row, error)
}

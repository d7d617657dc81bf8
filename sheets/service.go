package sheets

import (
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"
)

const readScope = "https://www.googleapis.com/auth/spreadsheets.readonly"

// Service is the Google Sheets implementation of RowSource, authenticated
// with a service-account credentials file.
type Service struct {
	api *gsheets.Service
}

// New builds a Service from a service-account credentials file. The account
// only needs read access to the league spreadsheets.
func New(ctx context.Context, credentialsFile string) (*Service, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, readScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	api, err := gsheets.NewService(ctx, option.WithTokenSource(creds.TokenSource))
	if err != nil {
		return nil, fmt.Errorf("sheets client: %w", err)
	}
	return &Service{api: api}, nil
}

func (s *Service) Rows(ctx context.Context, spreadsheetKey string, opt QueryOptions, sheetMatch func(title string) bool) ([]Row, error) {
	title, err := s.findSheet(ctx, spreadsheetKey, sheetMatch)
	if err != nil {
		return nil, err
	}
	return s.readRows(ctx, spreadsheetKey, title, opt)
}

// PairingRows reads the current round's pairings sheet, identified by title.
func (s *Service) PairingRows(ctx context.Context, spreadsheetKey string, opt QueryOptions) ([]Row, error) {
	return s.Rows(ctx, spreadsheetKey, opt, func(title string) bool {
		return strings.Contains(strings.ToLower(title), "pairing")
	})
}

func (s *Service) findSheet(ctx context.Context, spreadsheetKey string, match func(title string) bool) (string, error) {
	meta, err := s.api.Spreadsheets.Get(spreadsheetKey).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("spreadsheet metadata: %w", err)
	}
	for _, sh := range meta.Sheets {
		if sh.Properties != nil && match(sh.Properties.Title) {
			return sh.Properties.Title, nil
		}
	}
	return "", fmt.Errorf("no sheet matched in spreadsheet %s", spreadsheetKey)
}

// readRows fetches the queried region twice (formatted values and formulas)
// and zips both into labeled rows keyed by the header row.
func (s *Service) readRows(ctx context.Context, spreadsheetKey, sheetTitle string, opt QueryOptions) ([]Row, error) {
	rng := rangeRef(sheetTitle, opt)
	values, err := s.api.Spreadsheets.Values.Get(spreadsheetKey, rng).
		ValueRenderOption("FORMATTED_VALUE").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read values %s: %w", rng, err)
	}
	formulas, err := s.api.Spreadsheets.Values.Get(spreadsheetKey, rng).
		ValueRenderOption("FORMULA").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read formulas %s: %w", rng, err)
	}
	if len(values.Values) == 0 {
		return nil, nil
	}

	headers := make([]string, 0, len(values.Values[0]))
	for _, h := range values.Values[0] {
		headers = append(headers, strings.ToLower(strings.TrimSpace(str(h))))
	}

	rows := make([]Row, 0, len(values.Values)-1)
	for i, rec := range values.Values[1:] {
		row := Row{}
		empty := true
		for col, label := range headers {
			if label == "" {
				continue
			}
			c := Cell{}
			if col < len(rec) {
				c.Value = str(rec[col])
			}
			// A formula cell renders as its "=..." source under FORMULA.
			if i+1 < len(formulas.Values) {
				frec := formulas.Values[i+1]
				if col < len(frec) {
					if f := str(frec[col]); strings.HasPrefix(f, "=") {
						c.Formula = f
					}
				}
			}
			if c.Value != "" || c.Formula != "" {
				empty = false
			}
			row[label] = c
		}
		if empty && !opt.ReturnEmpty {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func str(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}

// rangeRef converts 1-based row/col bounds to an A1 range on the given sheet.
func rangeRef(sheetTitle string, opt QueryOptions) string {
	minRow, maxRow := opt.MinRow, opt.MaxRow
	if minRow <= 0 {
		minRow = 1
	}
	if maxRow < minRow {
		maxRow = minRow
	}
	minCol, maxCol := opt.MinCol, opt.MaxCol
	if minCol <= 0 {
		minCol = 1
	}
	if maxCol < minCol {
		maxCol = minCol
	}
	return fmt.Sprintf("%s!%s%d:%s%d", sheetTitle, colName(minCol), minRow, colName(maxCol), maxRow)
}

// colName converts a 1-based column index to its A1 letter form.
func colName(n int) string {
	name := ""
	for n > 0 {
		n--
		name = string(rune('A'+n%26)) + name
		n /= 26
	}
	return name
}

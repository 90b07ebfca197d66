package sheetsclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jakechorley/overlap/pkg/sheetssql"
)

// SuggestionRow is one ranked date range. The tags define the columns of
// the suggestions tab.
type SuggestionRow struct {
	Generated    string `ssql_header:"generated" ssql_type:"datetime"`
	Event        string `ssql_header:"event" ssql_type:"text"`
	Rank         int    `ssql_header:"rank" ssql_type:"int"`
	Label        string `ssql_header:"dates" ssql_type:"text"`
	StartDate    string `ssql_header:"start" ssql_type:"date"`
	EndDate      string `ssql_header:"end" ssql_type:"date"`
	Available    int    `ssql_header:"available" ssql_type:"int"`
	Participants int    `ssql_header:"participants" ssql_type:"int"`
}

// sameRange reports whether two rows describe the same range of the same
// event with the same counts
func (r SuggestionRow) sameRange(other SuggestionRow) bool {
	return r.Event == other.Event &&
		r.StartDate == other.StartDate &&
		r.EndDate == other.EndDate &&
		r.Available == other.Available &&
		r.Participants == other.Participants
}

// PublishSuggestions appends ranked suggestions to the named tab, creating
// the tab with its header and type rows if it does not exist yet. Earlier
// rows are kept so the sheet doubles as a history of how availability
// moved; a row matching one already published is skipped. It returns how
// many rows were appended.
func (c *Client) PublishSuggestions(ctx context.Context, spreadsheetID, tab string, rows []SuggestionRow) (int, error) {
	table, err := sheetssql.NamedTable(tab, SuggestionRow{})
	if err != nil {
		return 0, err
	}

	db, err := sheetssql.NewDB(ctx, c, spreadsheetID, &sheetssql.Schema{Tables: []sheetssql.TableSchema{table}})
	if err != nil {
		return 0, err
	}

	published, err := sheetssql.GetTableAs[SuggestionRow](ctx, db, tab)
	if err != nil {
		return 0, err
	}

	fresh := make([]SuggestionRow, 0, len(rows))
	for _, row := range rows {
		if !containsRange(published, row) {
			fresh = append(fresh, row)
		}
	}

	if err := sheetssql.InsertModels(ctx, db, tab, fresh); err != nil {
		return 0, fmt.Errorf("failed to append suggestions: %w", err)
	}

	c.logger.Debug("Published suggestions",
		zap.String("spreadsheet", spreadsheetID),
		zap.String("tab", tab),
		zap.Int("rows", len(fresh)),
		zap.Int("skipped", len(rows)-len(fresh)))
	return len(fresh), nil
}

func containsRange(rows []SuggestionRow, row SuggestionRow) bool {
	for _, r := range rows {
		if r.sameRange(row) {
			return true
		}
	}
	return false
}

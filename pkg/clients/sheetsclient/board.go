package sheetsclient

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// boardColumns are the columns PublishBoard owns. Rider columns follow them; any other column
// (e.g. dispatcher notes added by hand) is preserved for rows with the same Request ID.
var boardColumns = []string{"Request ID", "Date", "Time", "Pickup", "Dropoff", "Riders Needed", "Status"}

const riderColumnPrefix = "Rider "

// BoardRow is one request on the published dispatch board
type BoardRow struct {
	RequestID    string
	Date         string // Format: "Mon Jan 02 2006"
	Time         string // Format: "09:00-12:00"
	Pickup       string
	Dropoff      string
	RidersNeeded int
	Status       string
	Riders       []string
}

// Board is a published view of the requests between From and To inclusive
type Board struct {
	From time.Time
	To   time.Time
	Rows []BoardRow
}

// PublishBoard writes the board to a tab named after its date range, creating the tab when needed.
// Re-publishing overwrites the board's own columns and keeps hand-added ones.
func (c *Client) PublishBoard(spreadsheetID string, board *Board) (string, error) {
	title := BoardTitle(board.From, board.To)

	tabs, err := c.ListSheets(spreadsheetID)
	if err != nil {
		return "", err
	}

	var existing [][]interface{}
	if slices.Contains(tabs, title) {
		existing, err = c.GetValues(spreadsheetID, fmt.Sprintf("%s!A1:ZZ", title))
		if err != nil {
			return "", fmt.Errorf("failed to read existing board: %w", err)
		}
	} else if _, err := c.CreateSheet(spreadsheetID, title); err != nil {
		return "", fmt.Errorf("failed to create board tab: %w", err)
	}

	rows := BuildBoardValues(existing, board.Rows)
	if err := c.UpdateValues(spreadsheetID, fmt.Sprintf("%s!A1", title), rows); err != nil {
		return "", fmt.Errorf("failed to write board: %w", err)
	}
	return title, nil
}

// BoardTitle formats the tab title, e.g. "Mon Jan 15 2024 - Sun Jan 21 2024"
func BoardTitle(from, to time.Time) string {
	return fmt.Sprintf("%s - %s", from.Format("Mon Jan 02 2006"), to.Format("Mon Jan 02 2006"))
}

// BuildBoardValues lays out the header and one row per request. Existing values, if any, provide
// the extra columns to carry over; rows that no longer exist are dropped and stale cells are blanked.
func BuildBoardValues(existing [][]interface{}, rows []BoardRow) [][]interface{} {
	maxRiders := 0
	for _, row := range rows {
		maxRiders = max(maxRiders, row.RidersNeeded, len(row.Riders))
	}

	var extraColumns []string
	extraValues := make(map[string]map[string]interface{})
	if len(existing) > 0 {
		header := existing[0]
		idCol := findColumnIndex(header, "Request ID")
		for i, cell := range header {
			name, ok := cell.(string)
			if !ok || name == "" || slices.Contains(boardColumns, name) || strings.HasPrefix(name, riderColumnPrefix) {
				continue
			}
			extraColumns = append(extraColumns, name)
			if idCol == -1 {
				continue
			}
			for _, old := range existing[1:] {
				if idCol >= len(old) || i >= len(old) {
					continue
				}
				id, _ := old[idCol].(string)
				if id == "" {
					continue
				}
				if extraValues[id] == nil {
					extraValues[id] = make(map[string]interface{})
				}
				extraValues[id][name] = old[i]
			}
		}
	}

	header := make([]interface{}, 0, len(boardColumns)+maxRiders+len(extraColumns))
	for _, col := range boardColumns {
		header = append(header, col)
	}
	for i := 0; i < maxRiders; i++ {
		header = append(header, fmt.Sprintf("%s%d", riderColumnPrefix, i+1))
	}
	for _, col := range extraColumns {
		header = append(header, col)
	}

	values := [][]interface{}{header}
	for _, row := range rows {
		line := []interface{}{row.RequestID, row.Date, row.Time, row.Pickup, row.Dropoff, row.RidersNeeded, row.Status}
		for i := 0; i < maxRiders; i++ {
			if i < len(row.Riders) {
				line = append(line, row.Riders[i])
			} else {
				line = append(line, "")
			}
		}
		for _, col := range extraColumns {
			if v, ok := extraValues[row.RequestID][col]; ok {
				line = append(line, v)
			} else {
				line = append(line, "")
			}
		}
		values = append(values, line)
	}

	// blank out rows left over from a longer previous board
	width := len(header)
	for i := len(values); i < len(existing); i++ {
		values = append(values, make([]interface{}, width))
		for j := range values[i] {
			values[i][j] = ""
		}
	}
	return values
}

// findColumnIndex finds the index of a column by its header name
func findColumnIndex(header []interface{}, columnName string) int {
	for i, cell := range header {
		if str, ok := cell.(string); ok && str == columnName {
			return i
		}
	}
	return -1
}

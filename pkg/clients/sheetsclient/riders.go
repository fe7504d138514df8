package sheetsclient

import (
	"fmt"
	"strings"

	"github.com/jakechorley/escort-dispatch/pkg/core/model"
)

// Expected column names in the rider roster
var riderFields = []string{
	"Rider ID",
	"First name",
	"Last name",
	"Email",
	"Phone",
	"Status",
}

// rosterEntry is a parsed roster row before display names are assigned
type rosterEntry struct {
	ID        string
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Status    string
}

// ListRiders reads the rider roster tab and returns riders with unique display names
func (c *Client) ListRiders(spreadsheetID, tab string) ([]model.Rider, error) {
	values, err := c.GetValues(spreadsheetID, tab)
	if err != nil {
		return nil, fmt.Errorf("failed to get rider roster: %w", err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("rider roster is empty")
	}

	riders, err := ParseRoster(values)
	if err != nil {
		return nil, fmt.Errorf("failed to parse rider roster: %w", err)
	}
	return riders, nil
}

// ParseRoster converts raw roster rows into riders. Rows without a Rider ID are skipped.
func ParseRoster(raw [][]interface{}) ([]model.Rider, error) {
	entries, err := parseRosterEntries(raw)
	if err != nil {
		return nil, err
	}

	names := ComputeDisplayNames(entries)

	riders := make([]model.Rider, 0, len(entries))
	for i, e := range entries {
		status := model.RiderActive
		if e.Status != "" && !model.RiderStatus(e.Status).IsActive() {
			status = model.RiderInactive
		}
		riders = append(riders, model.Rider{
			ID:     e.ID,
			Name:   names[i],
			Email:  e.Email,
			Phone:  e.Phone,
			Status: status,
		})
	}
	return riders, nil
}

// ComputeDisplayNames picks the shortest unique name for each rider:
// - the first name when it is unique
// - "FirstName L." when that is unique
// - otherwise the full name
func ComputeDisplayNames(entries []rosterEntry) []string {
	firstNameCounts := make(map[string]int)
	initialCounts := make(map[string]int)
	for _, e := range entries {
		firstNameCounts[e.FirstName]++
		if e.LastName != "" {
			initialCounts[withInitial(e)]++
		}
	}

	names := make([]string, len(entries))
	for i, e := range entries {
		switch {
		case firstNameCounts[e.FirstName] == 1:
			names[i] = e.FirstName
		case e.LastName != "" && initialCounts[withInitial(e)] == 1:
			names[i] = withInitial(e)
		default:
			names[i] = strings.TrimSpace(e.FirstName + " " + e.LastName)
		}
	}
	return names
}

func withInitial(e rosterEntry) string {
	return e.FirstName + " " + string([]rune(e.LastName)[0]) + "."
}

func parseRosterEntries(raw [][]interface{}) ([]rosterEntry, error) {
	if len(raw) < 1 {
		return nil, fmt.Errorf("no header row found")
	}

	fieldIndexes := make(map[string]int)
	for _, field := range riderFields {
		index := findColumnIndex(raw[0], field)
		if index == -1 {
			return nil, fmt.Errorf("missing required field in header: %s", field)
		}
		fieldIndexes[field] = index
	}

	getField := func(field string, row []interface{}) string {
		index := fieldIndexes[field]
		if index >= len(row) {
			return ""
		}
		if str, ok := row[index].(string); ok {
			return strings.TrimSpace(str)
		}
		return ""
	}

	seen := make(map[string]int)
	entries := make([]rosterEntry, 0, len(raw)-1)
	for i := 1; i < len(raw); i++ {
		row := raw[i]

		id := getField("Rider ID", row)
		if id == "" {
			continue
		}
		if prev, dup := seen[id]; dup {
			return nil, fmt.Errorf("duplicate Rider ID %s in rows %d and %d", id, prev+1, i+1)
		}
		seen[id] = i

		firstName := getField("First name", row)
		if firstName == "" {
			return nil, fmt.Errorf("rider %s in row %d has no first name", id, i+1)
		}

		entries = append(entries, rosterEntry{
			ID:        id,
			FirstName: firstName,
			LastName:  getField("Last name", row),
			Email:     getField("Email", row),
			Phone:     getField("Phone", row),
			Status:    getField("Status", row),
		})
	}
	return entries, nil
}

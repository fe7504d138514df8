package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/jakechorley/escort-dispatch/pkg/clients/sheetsclient"
	"github.com/jakechorley/escort-dispatch/pkg/core/model"
	"github.com/jakechorley/escort-dispatch/pkg/db"
)

// BoardStore is the read side used to build the dispatch board
type BoardStore interface {
	ListRequests(ctx context.Context) ([]model.Request, error)
	ListAssignments(ctx context.Context) ([]model.Assignment, error)
}

// BoardPublisher writes a board to a spreadsheet and returns the tab it wrote
type BoardPublisher interface {
	PublishBoard(spreadsheetID string, board *sheetsclient.Board) (string, error)
}

// BuildBoard lists every non-cancelled request with an event date in [from, to], ordered by date and
// start time, with the active riders on each
func BuildBoard(ctx context.Context, store BoardStore, from, to time.Time) (*sheetsclient.Board, error) {
	from, to = model.DateOf(from), model.DateOf(to)
	if to.Before(from) {
		return nil, &model.ValidationError{Entity: "board", Field: "to", Reason: "end date is before start date"}
	}

	requests, err := store.ListRequests(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	assignments, err := store.ListAssignments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}

	active := make(map[string][]model.Assignment)
	for _, a := range assignments {
		if a.IsActive() {
			active[a.RequestID] = append(active[a.RequestID], a)
		}
	}

	var selected []model.Request
	for _, r := range requests {
		day := model.DateOf(r.EventDate)
		if day.Before(from) || day.After(to) || r.Status == model.RequestCancelled {
			continue
		}
		selected = append(selected, r)
	}
	sort.Slice(selected, func(i, j int) bool {
		a, b := selected[i], selected[j]
		if !a.EventDate.Equal(b.EventDate) {
			return a.EventDate.Before(b.EventDate)
		}
		if a.Window.Start != b.Window.Start {
			return a.Window.Start < b.Window.Start
		}
		return a.ID < b.ID
	})

	board := &sheetsclient.Board{From: from, To: to, Rows: make([]sheetsclient.BoardRow, 0, len(selected))}
	for _, r := range selected {
		onRequest := active[r.ID]
		db.SortAssignments(onRequest)

		riders := make([]string, 0, len(onRequest))
		for _, a := range onRequest {
			name := a.RiderName
			if name == "" {
				name = a.RiderID
			}
			riders = append(riders, name)
		}

		board.Rows = append(board.Rows, sheetsclient.BoardRow{
			RequestID:    r.ID,
			Date:         r.EventDate.Format("Mon Jan 02 2006"),
			Time:         timeRange(r.Window),
			Pickup:       r.Pickup,
			Dropoff:      r.Dropoff,
			RidersNeeded: r.RidersNeeded,
			Status:       string(r.Status),
			Riders:       riders,
		})
	}
	return board, nil
}

// PublishBoard builds the board for [from, to] and writes it to the board spreadsheet
func PublishBoard(ctx context.Context, store BoardStore, publisher BoardPublisher, logger *zap.Logger, spreadsheetID string, from, to time.Time) (string, error) {
	board, err := BuildBoard(ctx, store, from, to)
	if err != nil {
		return "", err
	}

	logger.Debug("Publishing dispatch board",
		zap.String("spreadsheet_id", spreadsheetID),
		zap.Int("rows", len(board.Rows)))

	tab, err := publisher.PublishBoard(spreadsheetID, board)
	if err != nil {
		return "", fmt.Errorf("failed to publish board: %w", err)
	}

	logger.Info("Published dispatch board", zap.String("tab", tab), zap.Int("rows", len(board.Rows)))
	return tab, nil
}

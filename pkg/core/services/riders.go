package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jakechorley/escort-dispatch/pkg/core/model"
)

// RosterSource reads the rider roster kept by the club
type RosterSource interface {
	ListRiders(spreadsheetID, tab string) ([]model.Rider, error)
}

// RiderUpserter is the write side of the rider directory
type RiderUpserter interface {
	UpsertRiders(ctx context.Context, riders []model.Rider) error
}

// ImportResult summarises a roster import
type ImportResult struct {
	Imported int
	Active   int
	Skipped  []string
}

// ImportRiders copies the roster tab into the rider directory. Rows that fail validation are skipped
// and reported; the rest are upserted by rider ID.
func ImportRiders(ctx context.Context, roster RosterSource, store RiderUpserter, logger *zap.Logger, spreadsheetID, tab string) (*ImportResult, error) {
	logger.Debug("Reading rider roster", zap.String("spreadsheet_id", spreadsheetID), zap.String("tab", tab))

	riders, err := roster.ListRiders(spreadsheetID, tab)
	if err != nil {
		return nil, fmt.Errorf("failed to read rider roster: %w", err)
	}

	result := &ImportResult{}
	valid := make([]model.Rider, 0, len(riders))
	for _, r := range riders {
		if r.Status == "" {
			r.Status = model.RiderActive
		}
		if err := model.ValidateRider(r); err != nil {
			logger.Warn("Skipping invalid roster row", zap.String("rider_id", r.ID), zap.Error(err))
			result.Skipped = append(result.Skipped, r.ID)
			continue
		}
		if r.Status.IsActive() {
			result.Active++
		}
		valid = append(valid, r)
	}

	if err := store.UpsertRiders(ctx, valid); err != nil {
		return nil, fmt.Errorf("failed to upsert riders: %w", err)
	}
	result.Imported = len(valid)

	logger.Info("Imported riders",
		zap.Int("imported", result.Imported),
		zap.Int("active", result.Active),
		zap.Int("skipped", len(result.Skipped)))
	return result, nil
}

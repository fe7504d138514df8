package db

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jakechorley/escort-dispatch/pkg/core/ids"
	"github.com/jakechorley/escort-dispatch/pkg/core/model"
	"github.com/jakechorley/escort-dispatch/pkg/sheetssql"
)

// DB provides database operations using SheetsSQL.
//
// Sheets has no transactions, so every table is append-only. A change set appends its assignment
// rows first and then one request row carrying the same Change ID and the next Version. The request
// row is the commit marker: assignment rows whose Change ID was never committed are ignored, and
// when two writers race for the same version the first request row wins.
type DB struct {
	ssql *sheetssql.DB

	mu  sync.Mutex
	seq *ids.ScanSequencer
	now func() time.Time
}

var _ Database = (*DB)(nil)

// NewDB creates a new database instance
func NewDB(ssql *sheetssql.DB) *DB {
	db := &DB{
		ssql: ssql,
		now:  time.Now,
	}
	db.seq = ids.NewScanSequencer(db.maxSequence)
	return db
}

func (db *DB) ListRiders(ctx context.Context) ([]model.Rider, error) {
	rows, err := sheetssql.GetTable[RiderRow](db.ssql)
	if err != nil {
		return nil, fmt.Errorf("failed to get riders: %w", err)
	}

	latest := make(map[string]RiderRow)
	for _, row := range rows {
		latest[row.ID] = row
	}

	riders := make([]model.Rider, 0, len(latest))
	for _, row := range latest {
		riders = append(riders, row.ToModel())
	}
	sort.Slice(riders, func(i, j int) bool { return riders[i].Name < riders[j].Name })
	return riders, nil
}

func (db *DB) GetRider(ctx context.Context, riderID string) (model.Rider, error) {
	riders, err := db.ListRiders(ctx)
	if err != nil {
		return model.Rider{}, err
	}
	for _, r := range riders {
		if r.ID == riderID {
			return r, nil
		}
	}
	return model.Rider{}, &model.NotFoundError{Entity: "rider", ID: riderID}
}

// UpsertRiders appends a row per rider; later rows shadow earlier ones
func (db *DB) UpsertRiders(ctx context.Context, riders []model.Rider) error {
	rows := make([]RiderRow, 0, len(riders))
	for _, r := range riders {
		if err := model.ValidateRider(r); err != nil {
			return err
		}
		rows = append(rows, RiderToRow(r, db.now()))
	}
	if err := sheetssql.InsertModels(db.ssql, rows); err != nil {
		return fmt.Errorf("failed to insert riders: %w", err)
	}
	return nil
}

// latestEntries returns the current version of every availability entry in sheet order
func (db *DB) latestEntries() ([]model.AvailabilityEntry, error) {
	rows, err := sheetssql.GetTable[AvailabilityRow](db.ssql)
	if err != nil {
		return nil, fmt.Errorf("failed to get availability: %w", err)
	}

	order := make([]string, 0, len(rows))
	latest := make(map[string]AvailabilityRow)
	for _, row := range rows {
		if _, seen := latest[row.ID]; !seen {
			order = append(order, row.ID)
		}
		latest[row.ID] = row
	}

	entries := make([]model.AvailabilityEntry, 0, len(order))
	for _, id := range order {
		entry, err := latest[id].ToModel()
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (db *DB) GetAvailabilityEntries(ctx context.Context, riderID string) ([]model.AvailabilityEntry, error) {
	entries, err := db.latestEntries()
	if err != nil {
		return nil, err
	}
	var out []model.AvailabilityEntry
	for _, e := range entries {
		if e.RiderID == riderID {
			out = append(out, e)
		}
	}
	return out, nil
}

// PutAvailabilityEntry reuses the ID of an existing entry with the same key so the new row replaces it
func (db *DB) PutAvailabilityEntry(ctx context.Context, entry model.AvailabilityEntry) (model.AvailabilityEntry, error) {
	if err := model.ValidateAvailabilityEntry(entry); err != nil {
		return model.AvailabilityEntry{}, err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	entries, err := db.latestEntries()
	if err != nil {
		return model.AvailabilityEntry{}, err
	}

	key := entry.Key()
	for _, existing := range entries {
		if existing.Key() == key {
			entry.ID = existing.ID
			break
		}
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = db.now()
	}

	if err := sheetssql.InsertModel(db.ssql, AvailabilityToRow(entry)); err != nil {
		return model.AvailabilityEntry{}, fmt.Errorf("failed to insert availability entry: %w", err)
	}
	return entry, nil
}

// committedRequests resolves the request table: the first row for each (ID, version) is committed,
// and the highest committed version is current. It also returns the set of committed change IDs.
func (db *DB) committedRequests() (map[string]RequestRow, map[string]bool, []string, error) {
	rows, err := sheetssql.GetTable[RequestRow](db.ssql)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to get requests: %w", err)
	}

	type versionKey struct {
		id      string
		version int64
	}
	seen := make(map[versionKey]bool)
	current := make(map[string]RequestRow)
	committed := make(map[string]bool)
	var order []string

	for _, row := range rows {
		key := versionKey{row.ID, row.Version}
		if seen[key] {
			continue
		}
		seen[key] = true
		committed[row.ChangeID] = true

		prev, ok := current[row.ID]
		if !ok {
			order = append(order, row.ID)
		}
		if !ok || row.Version > prev.Version {
			current[row.ID] = row
		}
	}
	return current, committed, order, nil
}

func (db *DB) ListRequests(ctx context.Context) ([]model.Request, error) {
	current, _, order, err := db.committedRequests()
	if err != nil {
		return nil, err
	}
	sort.Strings(order)

	out := make([]model.Request, 0, len(order))
	for _, id := range order {
		r, err := current[id].ToModel()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (db *DB) ListRequestIDs(ctx context.Context) ([]string, error) {
	_, _, order, err := db.committedRequests()
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (db *DB) GetRequest(ctx context.Context, requestID string) (model.Request, error) {
	current, _, _, err := db.committedRequests()
	if err != nil {
		return model.Request{}, err
	}
	row, ok := current[requestID]
	if !ok {
		return model.Request{}, &model.NotFoundError{Entity: "request", ID: requestID}
	}
	return row.ToModel()
}

func (db *DB) InsertRequest(ctx context.Context, request model.Request) error {
	if err := model.ValidateRequest(request); err != nil {
		return err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	current, _, _, err := db.committedRequests()
	if err != nil {
		return err
	}
	if _, exists := current[request.ID]; exists {
		return &model.ValidationError{Entity: "request", ID: request.ID, Field: "ID", Reason: "request ID already in use"}
	}
	if request.Version == 0 {
		request.Version = 1
	}
	if request.UpdatedAt.IsZero() {
		request.UpdatedAt = db.now()
	}

	if err := sheetssql.InsertModel(db.ssql, RequestToRow(request, uuid.NewString())); err != nil {
		return fmt.Errorf("failed to insert request: %w", err)
	}
	return nil
}

// committedAssignments returns the latest committed row of every assignment in ID order
func (db *DB) committedAssignments(keep func(model.Assignment) bool) ([]model.Assignment, error) {
	_, committed, _, err := db.committedRequests()
	if err != nil {
		return nil, err
	}

	rows, err := sheetssql.GetTable[AssignmentRow](db.ssql)
	if err != nil {
		return nil, fmt.Errorf("failed to get assignments: %w", err)
	}

	latest := make(map[string]AssignmentRow)
	for _, row := range rows {
		if !committed[row.ChangeID] {
			continue
		}
		latest[row.ID] = row
	}

	out := make([]model.Assignment, 0, len(latest))
	for _, row := range latest {
		a, err := row.ToModel()
		if err != nil {
			return nil, err
		}
		if keep(a) {
			out = append(out, a)
		}
	}
	SortAssignments(out)
	return out, nil
}

func (db *DB) ListAssignments(ctx context.Context) ([]model.Assignment, error) {
	return db.committedAssignments(func(model.Assignment) bool { return true })
}

func (db *DB) GetAssignment(ctx context.Context, assignmentID string) (model.Assignment, error) {
	found, err := db.committedAssignments(func(a model.Assignment) bool { return a.ID == assignmentID })
	if err != nil {
		return model.Assignment{}, err
	}
	if len(found) == 0 {
		return model.Assignment{}, &model.NotFoundError{Entity: "assignment", ID: assignmentID}
	}
	return found[0], nil
}

func (db *DB) GetAssignmentsForRequest(ctx context.Context, requestID string) ([]model.Assignment, error) {
	return db.committedAssignments(func(a model.Assignment) bool { return a.RequestID == requestID })
}

func (db *DB) GetAssignmentsForRider(ctx context.Context, riderID string, date time.Time) ([]model.Assignment, error) {
	return db.committedAssignments(func(a model.Assignment) bool {
		return a.RiderID == riderID && model.SameDate(a.EventDate, date)
	})
}

// ApplyChangeSet appends the changed assignment rows and then the request row that commits them.
// Callers serialize writers per request with a lock; the version check catches anyone who didn't.
func (db *DB) ApplyChangeSet(ctx context.Context, changes model.ChangeSet) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	current, _, _, err := db.committedRequests()
	if err != nil {
		return err
	}
	row, ok := current[changes.RequestID]
	if !ok {
		return &model.NotFoundError{Entity: "request", ID: changes.RequestID}
	}
	req, err := row.ToModel()
	if err != nil {
		return err
	}

	existing, err := db.committedAssignments(func(a model.Assignment) bool { return a.RequestID == req.ID })
	if err != nil {
		return err
	}
	after, err := CheckChangeSet(req, existing, changes)
	if err != nil {
		return err
	}

	changeID := uuid.NewString()

	changed := make(map[string]bool, len(changes.Create)+len(changes.Update))
	for _, c := range changes.Create {
		changed[c.ID] = true
	}
	for _, u := range changes.Update {
		changed[u.AssignmentID] = true
	}
	assignmentRows := make([]AssignmentRow, 0, len(changed))
	for _, a := range after {
		if changed[a.ID] {
			assignmentRows = append(assignmentRows, AssignmentToRow(a, changeID))
		}
	}
	if err := sheetssql.InsertModels(db.ssql, assignmentRows); err != nil {
		return fmt.Errorf("failed to insert assignments for %s: %w", req.ID, err)
	}

	req.Status = changes.Status
	req.RidersAssigned = changes.RidersAssigned
	req.UpdatedAt = changes.UpdatedAt
	if req.UpdatedAt.IsZero() {
		req.UpdatedAt = db.now()
	}
	req.Version++
	if err := sheetssql.InsertModel(db.ssql, RequestToRow(req, changeID)); err != nil {
		return fmt.Errorf("failed to commit change set for %s: %w", req.ID, err)
	}

	// Another process may have committed the same version between our read and our append
	current, _, _, err = db.committedRequests()
	if err != nil {
		return err
	}
	if winner := current[req.ID]; winner.Version == req.Version && winner.ChangeID != changeID {
		return fmt.Errorf("request %s version %d was committed by another writer: %w",
			req.ID, req.Version, model.ErrConcurrentModification)
	}
	return nil
}

// Next implements ids.Sequencer by scanning every assignment row, committed or not
func (db *DB) Next(ctx context.Context, scope string) (int64, error) {
	return db.seq.Next(ctx, scope)
}

func (db *DB) maxSequence(ctx context.Context, scope string) (int64, error) {
	if scope != ids.AssignmentScope {
		return 0, nil
	}
	rows, err := sheetssql.GetTable[AssignmentRow](db.ssql)
	if err != nil {
		return 0, fmt.Errorf("failed to get assignments: %w", err)
	}
	existing := make([]string, 0, len(rows))
	for _, row := range rows {
		existing = append(existing, row.ID)
	}
	return ids.MaxAssignmentNumber(existing), nil
}

// SortAssignments orders by the numeric part of the assignment ID
func SortAssignments(out []model.Assignment) {
	sort.Slice(out, func(i, j int) bool {
		ni, _ := ids.ParseAssignmentID(out[i].ID)
		nj, _ := ids.ParseAssignmentID(out[j].ID)
		if ni != nj {
			return ni < nj
		}
		return out[i].ID < out[j].ID
	})
}

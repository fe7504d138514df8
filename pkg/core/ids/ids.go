// Package ids generates request IDs (<MonthLetter>-<seq>-<YY>) and assignment IDs (ASG-####).
package ids

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/jakechorley/escort-dispatch/pkg/lock"
)

const (
	// AssignmentScope is the sequencer scope for assignment IDs (one global counter)
	AssignmentScope = "assignment"
	// RequestLockKey serialises request ID generation
	RequestLockKey = "ids:request"

	monthLetters = "ABCDEFGHIJKL"
)

var (
	requestIDPattern    = regexp.MustCompile(`^([A-L])-(\d+)-(\d{2})$`)
	assignmentIDPattern = regexp.MustCompile(`^ASG-(\d+)$`)
)

// Sequencer hands out strictly increasing numbers per scope
type Sequencer interface {
	Next(ctx context.Context, scope string) (int64, error)
}

func FormatAssignmentID(n int64) string {
	return fmt.Sprintf("ASG-%04d", n)
}

// ParseAssignmentID returns the numeric part of an ASG-#### ID
func ParseAssignmentID(id string) (int64, bool) {
	m := assignmentIDPattern.FindStringSubmatch(id)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// MaxAssignmentNumber returns the highest sequence among well-formed assignment IDs
func MaxAssignmentNumber(existing []string) int64 {
	var highest int64
	for _, id := range existing {
		if n, ok := ParseAssignmentID(id); ok && n > highest {
			highest = n
		}
	}
	return highest
}

// AssignmentIDs generates assignment IDs from a Sequencer
type AssignmentIDs struct {
	seq Sequencer
}

func NewAssignmentIDs(seq Sequencer) *AssignmentIDs {
	return &AssignmentIDs{seq: seq}
}

// Next returns the next assignment ID
func (a *AssignmentIDs) Next(ctx context.Context) (string, error) {
	n, err := a.seq.Next(ctx, AssignmentScope)
	if err != nil {
		return "", fmt.Errorf("failed to generate assignment ID: %w", err)
	}
	return FormatAssignmentID(n), nil
}

// RequestID is a parsed request ID
type RequestID struct {
	Month time.Month
	Seq   int
	Year  int // two-digit year
}

func (r RequestID) String() string {
	return fmt.Sprintf("%c-%02d-%02d", monthLetters[r.Month-1], r.Seq, r.Year)
}

// sameScope reports whether both IDs share a (month letter, year) pair
func (r RequestID) sameScope(other RequestID) bool {
	return r.Month == other.Month && r.Year == other.Year
}

// ParseRequestID parses "A-01-24". Anything else, including a zero sequence, is rejected.
func ParseRequestID(id string) (RequestID, bool) {
	m := requestIDPattern.FindStringSubmatch(id)
	if m == nil {
		return RequestID{}, false
	}
	seq, err := strconv.Atoi(m[2])
	if err != nil || seq <= 0 {
		return RequestID{}, false
	}
	year, err := strconv.Atoi(m[3])
	if err != nil {
		return RequestID{}, false
	}
	month := time.Month(m[1][0]-'A') + time.January
	return RequestID{Month: month, Seq: seq, Year: year}, true
}

// scopeOf returns the ID scope that now falls in, with a zero sequence
func scopeOf(now time.Time) RequestID {
	return RequestID{Month: now.Month(), Year: now.Year() % 100}
}

// NextRequestID returns the next request ID for now's month and year given the IDs already in use.
// Malformed and foreign IDs are ignored.
func NextRequestID(now time.Time, existing []string) string {
	next := scopeOf(now)
	for _, id := range existing {
		parsed, ok := ParseRequestID(id)
		if !ok || !parsed.sameScope(next) {
			continue
		}
		if parsed.Seq > next.Seq {
			next.Seq = parsed.Seq
		}
	}
	next.Seq++
	return next.String()
}

// RequestIDLister lists every request ID currently in the store
type RequestIDLister interface {
	ListRequestIDs(ctx context.Context) ([]string, error)
}

// RequestIDs generates request IDs under a namespace lock. Sequence numbers come from a Sequencer
// scoped per (month letter, year), advanced past the highest ID already in the store. With a shared
// Sequencer (postgres or redis) two processes never reserve the same ID even before either row is
// written.
type RequestIDs struct {
	lister RequestIDLister
	locker lock.Locker
	seq    Sequencer
}

// NewRequestIDs builds a generator. A nil locker falls back to an in-process lock and a nil
// sequencer to an in-process counter.
func NewRequestIDs(lister RequestIDLister, locker lock.Locker, seq Sequencer) *RequestIDs {
	if locker == nil {
		locker = lock.NewLocal()
	}
	if seq == nil {
		seq = NewScanSequencer(func(context.Context, string) (int64, error) { return 0, nil })
	}
	return &RequestIDs{
		lister: lister,
		locker: locker,
		seq:    seq,
	}
}

// RequestScope is the sequencer scope for request IDs issued in now's month and year
func RequestScope(now time.Time) string {
	scope := scopeOf(now)
	return fmt.Sprintf("request:%c-%02d", monthLetters[scope.Month-1], scope.Year)
}

// Next reserves the next request ID for the month and year of now. A reserved ID is never handed
// out again, whether or not a request is stored under it.
func (g *RequestIDs) Next(ctx context.Context, now time.Time) (string, error) {
	unlock, err := g.locker.Lock(ctx, RequestLockKey)
	if err != nil {
		return "", fmt.Errorf("failed to lock request ID namespace: %w", err)
	}
	defer unlock()

	return g.reserve(ctx, now)
}

// Create reserves the next request ID and calls insert with it while still holding the namespace
// lock, so the row is stored before any other caller scans the store.
func (g *RequestIDs) Create(ctx context.Context, now time.Time, insert func(ctx context.Context, id string) error) (string, error) {
	unlock, err := g.locker.Lock(ctx, RequestLockKey)
	if err != nil {
		return "", fmt.Errorf("failed to lock request ID namespace: %w", err)
	}
	defer unlock()

	id, err := g.reserve(ctx, now)
	if err != nil {
		return "", err
	}
	if err := insert(ctx, id); err != nil {
		return "", err
	}
	return id, nil
}

// reserve must be called with the namespace lock held
func (g *RequestIDs) reserve(ctx context.Context, now time.Time) (string, error) {
	existing, err := g.lister.ListRequestIDs(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list request IDs: %w", err)
	}

	next, _ := ParseRequestID(NextRequestID(now, existing))
	floor := int64(next.Seq - 1)

	// The counter may lag the store (first use, or rows written by hand); advance it past the
	// highest stored sequence.
	scope := RequestScope(now)
	for {
		n, err := g.seq.Next(ctx, scope)
		if err != nil {
			return "", fmt.Errorf("failed to reserve request sequence: %w", err)
		}
		if n > floor {
			next.Seq = int(n)
			return next.String(), nil
		}
	}
}

// MaxFunc returns the highest number already used in a scope
type MaxFunc func(ctx context.Context, scope string) (int64, error)

// ScanSequencer is a Sequencer for backends without an atomic counter. It scans the store for the
// current maximum and keeps an in-process high-water mark so values are never reused.
type ScanSequencer struct {
	scan MaxFunc

	mu   sync.Mutex
	last map[string]int64
}

func NewScanSequencer(scan MaxFunc) *ScanSequencer {
	return &ScanSequencer{scan: scan, last: make(map[string]int64)}
}

func (s *ScanSequencer) Next(ctx context.Context, scope string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.scan(ctx, scope)
	if err != nil {
		return 0, fmt.Errorf("failed to scan sequence %s: %w", scope, err)
	}
	if last := s.last[scope]; current < last {
		current = last
	}
	current++
	s.last[scope] = current
	return current, nil
}

// Package testutil provides in-memory fakes and builders for service-level
// tests. The fakes enforce the same uniqueness guarantees as the database
// schema and return the store's sentinel errors, so services can be tested
// hermetically.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/plantops/mv-backend/internal/store"
)

// FakeRuleStore is an in-memory RuleStore enforcing the active-priority
// uniqueness the schema's partial index provides.
type FakeRuleStore struct {
	mu    sync.Mutex
	rules map[uuid.UUID]store.PermissionRule
	clock *fakeClock

	ListCalls int
}

func NewFakeRuleStore() *FakeRuleStore {
	return &FakeRuleStore{
		rules: make(map[uuid.UUID]store.PermissionRule),
		clock: newFakeClock(),
	}
}

func (f *FakeRuleStore) CreateRule(_ context.Context, r store.PermissionRule) (store.PermissionRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.priorityTaken(r.Action, r.Priority, uuid.Nil) {
		return store.PermissionRule{}, store.ErrDuplicatePriority
	}

	r.ID = uuid.New()
	r.IsActive = true
	r.CreatedAt = f.clock.next()
	r.UpdatedAt = r.CreatedAt
	f.rules[r.ID] = r
	return r, nil
}

func (f *FakeRuleStore) UpdateRule(_ context.Context, r store.PermissionRule) (store.PermissionRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	existing, ok := f.rules[r.ID]
	if !ok {
		return store.PermissionRule{}, store.ErrNotFound
	}
	if r.IsActive && f.priorityTaken(r.Action, r.Priority, r.ID) {
		return store.PermissionRule{}, store.ErrDuplicatePriority
	}

	r.CreatedAt = existing.CreatedAt
	r.UpdatedAt = f.clock.next()
	f.rules[r.ID] = r
	return r, nil
}

func (f *FakeRuleStore) DeactivateRule(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	rule, ok := f.rules[id]
	if !ok {
		return store.ErrNotFound
	}
	rule.IsActive = false
	f.rules[id] = rule
	return nil
}

func (f *FakeRuleStore) GetRule(_ context.Context, id uuid.UUID) (store.PermissionRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rule, ok := f.rules[id]
	if !ok {
		return store.PermissionRule{}, store.ErrNotFound
	}
	return rule, nil
}

func (f *FakeRuleStore) ListActiveRulesByAction(_ context.Context, action store.ActionType) ([]store.PermissionRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ListCalls++
	var rules []store.PermissionRule
	for _, rule := range f.rules {
		if rule.IsActive && rule.Action == action {
			rules = append(rules, rule)
		}
	}
	sortRules(rules)
	return rules, nil
}

func (f *FakeRuleStore) ListRules(_ context.Context, filter store.RuleFilter) ([]store.PermissionRule, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var rules []store.PermissionRule
	for _, rule := range f.rules {
		if filter.Action != nil && rule.Action != *filter.Action {
			continue
		}
		if filter.Permission != nil && rule.Permission != *filter.Permission {
			continue
		}
		if filter.IsActive != nil && rule.IsActive != *filter.IsActive {
			continue
		}
		rules = append(rules, rule)
	}
	sortRules(rules)

	total := int64(len(rules))
	rules = paginate(rules, filter.Limit, filter.Offset)
	return rules, total, nil
}

func (f *FakeRuleStore) ActivePriorityExists(_ context.Context, action store.ActionType, priority int32, exclude uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.priorityTaken(action, priority, exclude), nil
}

func (f *FakeRuleStore) priorityTaken(action store.ActionType, priority int32, exclude uuid.UUID) bool {
	if priority == 0 {
		return false
	}
	for _, rule := range f.rules {
		if rule.IsActive && rule.Action == action && rule.Priority == priority && rule.ID != exclude {
			return true
		}
	}
	return false
}

func sortRules(rules []store.PermissionRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority > rules[j].Priority
		}
		if !rules[i].CreatedAt.Equal(rules[j].CreatedAt) {
			return rules[i].CreatedAt.Before(rules[j].CreatedAt)
		}
		return rules[i].ID.String() < rules[j].ID.String()
	})
}

// FakeRequestStore is an in-memory RequestStore. It enforces the
// one-PENDING-per-(machine, type) guarantee and applies the machine flag
// flip on approval against its Machines map, like the real transaction.
type FakeRequestStore struct {
	mu       sync.Mutex
	requests map[uuid.UUID]store.ApprovalRequest
	clock    *fakeClock

	// Machines receives approval flag flips. Optional.
	Machines map[uuid.UUID]*store.Machine
}

func NewFakeRequestStore() *FakeRequestStore {
	return &FakeRequestStore{
		requests: make(map[uuid.UUID]store.ApprovalRequest),
		Machines: make(map[uuid.UUID]*store.Machine),
		clock:    newFakeClock(),
	}
}

func (f *FakeRequestStore) InsertRequest(_ context.Context, r store.ApprovalRequest) (store.ApprovalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, existing := range f.requests {
		if existing.MachineID == r.MachineID &&
			existing.ApprovalType == r.ApprovalType &&
			existing.Status == store.StatusPending {
			return store.ApprovalRequest{}, store.ErrPendingExists
		}
	}

	r.ID = uuid.New()
	r.Status = store.StatusPending
	r.CreatedAt = f.clock.next()
	r.UpdatedAt = r.CreatedAt
	f.requests[r.ID] = r
	return r, nil
}

func (f *FakeRequestStore) GetRequest(_ context.Context, id uuid.UUID) (store.ApprovalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	req, ok := f.requests[id]
	if !ok {
		return store.ApprovalRequest{}, store.ErrNotFound
	}
	return req, nil
}

func (f *FakeRequestStore) DecideRequest(_ context.Context, p store.DecideParams) (store.ApprovalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	req, ok := f.requests[p.ID]
	if !ok {
		return store.ApprovalRequest{}, store.ErrNotFound
	}
	if req.Status != store.StatusPending {
		return store.ApprovalRequest{}, store.ErrAlreadyProcessed
	}

	now := f.clock.next()
	if p.Approved {
		req.Status = store.StatusApproved
		if machine, ok := f.Machines[req.MachineID]; ok {
			machine.IsApproved = true
		}
	} else {
		req.Status = store.StatusRejected
		req.RejectionReason = p.RejectionReason
	}
	if p.Notes != "" {
		req.Notes = p.Notes
	}
	req.DecidedBy = &p.DeciderID
	req.DecidedAt = &now
	req.UpdatedAt = now
	f.requests[p.ID] = req
	return req, nil
}

func (f *FakeRequestStore) CancelRequest(_ context.Context, id uuid.UUID) (store.ApprovalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	req, ok := f.requests[id]
	if !ok {
		return store.ApprovalRequest{}, store.ErrNotFound
	}
	if req.Status != store.StatusPending {
		return store.ApprovalRequest{}, store.ErrAlreadyProcessed
	}
	req.Status = store.StatusCancelled
	req.UpdatedAt = f.clock.next()
	f.requests[id] = req
	return req, nil
}

func (f *FakeRequestStore) UpdateRequest(_ context.Context, id uuid.UUID, u store.RequestUpdate) (store.ApprovalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	req, ok := f.requests[id]
	if !ok {
		return store.ApprovalRequest{}, store.ErrNotFound
	}
	if u.Notes != nil {
		req.Notes = *u.Notes
	}
	if u.ApproverRoles != nil {
		req.ApproverRoles = u.ApproverRoles
	}
	if u.ProposedChanges != nil {
		req.ProposedChanges = u.ProposedChanges
	}
	req.UpdatedAt = f.clock.next()
	f.requests[id] = req
	return req, nil
}

func (f *FakeRequestStore) ListRequests(_ context.Context, filter store.RequestFilter) ([]store.ApprovalRequest, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var requests []store.ApprovalRequest
	for _, req := range f.requests {
		if filter.Status != nil && req.Status != *filter.Status {
			continue
		}
		if filter.RequesterID != nil && req.RequesterID != *filter.RequesterID {
			continue
		}
		if filter.ApprovalType != nil && req.ApprovalType != *filter.ApprovalType {
			continue
		}
		if filter.MachineID != nil && req.MachineID != *filter.MachineID {
			continue
		}
		requests = append(requests, req)
	}
	sort.SliceStable(requests, func(i, j int) bool {
		return requests[i].CreatedAt.After(requests[j].CreatedAt)
	})

	total := int64(len(requests))
	requests = paginate(requests, filter.Limit, filter.Offset)
	return requests, total, nil
}

func (f *FakeRequestStore) RequestStatistics(_ context.Context, overdueAfter time.Duration) (store.RequestStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	stats := store.RequestStats{
		ByStatus: make(map[store.ApprovalStatus]int64),
		ByType:   make(map[store.ApprovalType]int64),
	}
	var latencySum float64
	var decided int64
	cutoff := time.Now().Add(-overdueAfter)

	for _, req := range f.requests {
		stats.Total++
		stats.ByStatus[req.Status]++
		stats.ByType[req.ApprovalType]++
		if req.DecidedAt != nil {
			latencySum += req.DecidedAt.Sub(req.CreatedAt).Seconds()
			decided++
		}
		if req.Status == store.StatusPending && req.CreatedAt.Before(cutoff) {
			stats.Overdue++
		}
	}
	if decided > 0 {
		stats.AvgDecisionSeconds = latencySum / float64(decided)
	}
	return stats, nil
}

// FakeLedgerStore is an in-memory quality-approval ledger. FailIDs makes
// SyncQualityApproval fail for specific rows to exercise partial-failure
// handling.
type FakeLedgerStore struct {
	mu   sync.Mutex
	rows map[uuid.UUID]store.QualityApproval

	FailIDs map[uuid.UUID]bool
}

func NewFakeLedgerStore() *FakeLedgerStore {
	return &FakeLedgerStore{
		rows:    make(map[uuid.UUID]store.QualityApproval),
		FailIDs: make(map[uuid.UUID]bool),
	}
}

func (f *FakeLedgerStore) Add(row store.QualityApproval) store.QualityApproval {
	f.mu.Lock()
	defer f.mu.Unlock()
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	f.rows[row.ID] = row
	return row
}

func (f *FakeLedgerStore) Get(id uuid.UUID) (store.QualityApproval, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	return row, ok
}

func (f *FakeLedgerStore) ListQualityApprovalsByCheck(_ context.Context, checkID uuid.UUID) ([]store.QualityApproval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var rows []store.QualityApproval
	for _, row := range f.rows {
		if row.QualityCheckID != nil && *row.QualityCheckID == checkID {
			rows = append(rows, row)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].ID.String() < rows[j].ID.String()
	})
	return rows, nil
}

func (f *FakeLedgerStore) SyncQualityApproval(_ context.Context, q store.QualityApproval) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.FailIDs[q.ID] {
		return fmt.Errorf("sync refused for row %s", q.ID)
	}
	if _, ok := f.rows[q.ID]; !ok {
		return store.ErrNotFound
	}
	f.rows[q.ID] = q
	return nil
}

func (f *FakeLedgerStore) ReopenRejectedByCheck(_ context.Context, checkID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var reopened int64
	for id, row := range f.rows {
		if row.QualityCheckID != nil && *row.QualityCheckID == checkID && row.Status == store.StatusRejected {
			row.Status = store.StatusPending
			row.DecidedBy = nil
			row.DecidedAt = nil
			row.RejectionReason = ""
			f.rows[id] = row
			reopened++
		}
	}
	return reopened, nil
}

// FakeCheckStore is an in-memory CheckStore.
type FakeCheckStore struct {
	mu     sync.Mutex
	checks map[uuid.UUID]store.QualityCheck
	clock  *fakeClock
}

func NewFakeCheckStore() *FakeCheckStore {
	return &FakeCheckStore{
		checks: make(map[uuid.UUID]store.QualityCheck),
		clock:  newFakeClock(),
	}
}

func (f *FakeCheckStore) Add(check store.QualityCheck) store.QualityCheck {
	f.mu.Lock()
	defer f.mu.Unlock()
	if check.ID == uuid.Nil {
		check.ID = uuid.New()
	}
	if check.ApprovalStatus == "" {
		check.ApprovalStatus = store.CheckPending
	}
	f.checks[check.ID] = check
	return check
}

func (f *FakeCheckStore) GetQualityCheck(_ context.Context, id uuid.UUID) (store.QualityCheck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	check, ok := f.checks[id]
	if !ok {
		return store.QualityCheck{}, store.ErrNotFound
	}
	return check, nil
}

func (f *FakeCheckStore) UpdateCheckApproval(_ context.Context, id uuid.UUID, status store.CheckApprovalStatus, active *bool) (store.QualityCheck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	check, ok := f.checks[id]
	if !ok {
		return store.QualityCheck{}, store.ErrNotFound
	}
	check.ApprovalStatus = status
	if active != nil {
		check.IsActive = *active
	}
	check.UpdatedAt = f.clock.next()
	f.checks[id] = check
	return check, nil
}

func (f *FakeCheckStore) UpdateCheckInspection(_ context.Context, id uuid.UUID, u store.CheckInspectionUpdate) (store.QualityCheck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	check, ok := f.checks[id]
	if !ok {
		return store.QualityCheck{}, store.ErrNotFound
	}
	if u.QualityScore != nil {
		check.QualityScore = u.QualityScore
	}
	if u.InspectionDate != nil {
		check.InspectionDate = u.InspectionDate
	}
	if u.NextInspectionDate != nil {
		check.NextInspectionDate = u.NextInspectionDate
	}
	check.ApprovalStatus = store.CheckPending
	check.UpdatedAt = f.clock.next()
	f.checks[id] = check
	return check, nil
}

// FakeValidator resolves references against a static set of known ids.
type FakeValidator struct {
	mu       sync.Mutex
	known    map[store.RefKind]map[uuid.UUID]bool
	AllowAll bool
}

func NewFakeValidator() *FakeValidator {
	return &FakeValidator{known: make(map[store.RefKind]map[uuid.UUID]bool)}
}

// NewAllowAllValidator accepts every reference, for tests that do not care
// about reference integrity.
func NewAllowAllValidator() *FakeValidator {
	return &FakeValidator{known: make(map[store.RefKind]map[uuid.UUID]bool), AllowAll: true}
}

func (v *FakeValidator) Register(kind store.RefKind, ids ...uuid.UUID) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.known[kind] == nil {
		v.known[kind] = make(map[uuid.UUID]bool)
	}
	for _, id := range ids {
		v.known[kind][id] = true
	}
}

func (v *FakeValidator) Exists(_ context.Context, kind store.RefKind, id uuid.UUID) (bool, error) {
	if v.AllowAll {
		return true, nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.known[kind][id], nil
}

func (v *FakeValidator) ExistsAll(_ context.Context, kind store.RefKind, ids []uuid.UUID) ([]uuid.UUID, error) {
	if v.AllowAll {
		return nil, nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	var missing []uuid.UUID
	for _, id := range ids {
		if !v.known[kind][id] {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

// RecordingNotifier captures notifier calls for assertions.
type RecordingNotifier struct {
	mu      sync.Mutex
	Created []store.ApprovalRequest
	Decided []store.ApprovalRequest
}

func NewRecordingNotifier() *RecordingNotifier {
	return &RecordingNotifier{}
}

func (n *RecordingNotifier) RequestCreated(_ context.Context, req store.ApprovalRequest) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Created = append(n.Created, req)
}

func (n *RecordingNotifier) RequestDecided(_ context.Context, req store.ApprovalRequest) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Decided = append(n.Decided, req)
}

// fakeClock hands out strictly increasing timestamps so ordering-sensitive
// assertions are deterministic.
type fakeClock struct {
	mu   sync.Mutex
	last time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{last: time.Now().Add(-time.Hour)}
}

func (c *fakeClock) next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = c.last.Add(time.Millisecond)
	return c.last
}

func paginate[T any](items []T, limit, offset int64) []T {
	if offset > 0 {
		if offset >= int64(len(items)) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < int64(len(items)) {
		items = items[:limit]
	}
	return items
}

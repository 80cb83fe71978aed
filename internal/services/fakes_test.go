package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/playoffchallenge/backend/internal/events"
	"github.com/playoffchallenge/backend/internal/models"
	"github.com/playoffchallenge/backend/internal/repositories"
	"github.com/playoffchallenge/backend/internal/stripeadapter"
)

type memTxKey struct{}

// memDB is an in-memory stand-in for Postgres. Transactions are serialized
// by txMu, which plays the part of the row locks, and a failed transaction
// restores the snapshot taken when it began.
type memDB struct {
	txMu sync.Mutex
	mu   sync.Mutex

	clock     time.Time
	seq       int64
	contests  map[uuid.UUID]models.Contest
	audit     []models.ContestAudit
	outbox    []models.OutboxEvent
	jobs      map[uuid.UUID]models.PayoutJob
	transfers map[uuid.UUID]models.PayoutTransfer
	ledger    []models.LedgerEntry
	accounts  map[uuid.UUID]string

	// Fault injection.
	beforeCAS       func(id uuid.UUID)
	ledgerInsertErr error
	listErrForJob   map[uuid.UUID]error
}

type memSnapshot struct {
	seq       int64
	contests  map[uuid.UUID]models.Contest
	audit     []models.ContestAudit
	outbox    []models.OutboxEvent
	jobs      map[uuid.UUID]models.PayoutJob
	transfers map[uuid.UUID]models.PayoutTransfer
	ledger    []models.LedgerEntry
}

func newMemDB() *memDB {
	return &memDB{
		clock:         time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
		contests:      map[uuid.UUID]models.Contest{},
		jobs:          map[uuid.UUID]models.PayoutJob{},
		transfers:     map[uuid.UUID]models.PayoutTransfer{},
		accounts:      map[uuid.UUID]string{},
		listErrForJob: map[uuid.UUID]error{},
	}
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (m *memDB) snapshot() memSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memSnapshot{
		seq:       m.seq,
		contests:  copyMap(m.contests),
		audit:     append([]models.ContestAudit(nil), m.audit...),
		outbox:    append([]models.OutboxEvent(nil), m.outbox...),
		jobs:      copyMap(m.jobs),
		transfers: copyMap(m.transfers),
		ledger:    append([]models.LedgerEntry(nil), m.ledger...),
	}
}

func (m *memDB) restore(s memSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq = s.seq
	m.contests = s.contests
	m.audit = s.audit
	m.outbox = s.outbox
	m.jobs = s.jobs
	m.transfers = s.transfers
	m.ledger = s.ledger
}

func (m *memDB) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if inMemTx(ctx) {
		return fn(ctx)
	}
	m.txMu.Lock()
	defer m.txMu.Unlock()

	snap := m.snapshot()
	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

func inMemTx(ctx context.Context) bool {
	v, _ := ctx.Value(memTxKey{}).(bool)
	return v
}

// tick returns a strictly increasing timestamp. Callers hold mu.
func (m *memDB) tick() time.Time {
	m.clock = m.clock.Add(time.Millisecond)
	return m.clock
}

func (m *memDB) addContest(c models.Contest) models.Contest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.CreatedAt = m.tick()
	c.UpdatedAt = c.CreatedAt
	m.contests[c.ID] = c
	return c
}

func (m *memDB) contest(id uuid.UUID) models.Contest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.contests[id]
}

func (m *memDB) auditRows(id uuid.UUID) []models.ContestAudit {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ContestAudit
	for _, a := range m.audit {
		if a.ContestInstanceID == id {
			out = append(out, a)
		}
	}
	return out
}

func (m *memDB) outboxEvents() []models.OutboxEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.OutboxEvent(nil), m.outbox...)
}

func (m *memDB) allJobs() []models.PayoutJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PayoutJob
	for _, j := range m.jobs {
		out = append(out, j)
	}
	return out
}

func (m *memDB) job(id uuid.UUID) models.PayoutJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jobs[id]
}

func (m *memDB) transfer(id uuid.UUID) models.PayoutTransfer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transfers[id]
}

func (m *memDB) transfersOf(jobID uuid.UUID) []models.PayoutTransfer {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PayoutTransfer
	for _, t := range m.transfers {
		if t.PayoutJobID == jobID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *memDB) ledgerOf(transferID uuid.UUID) []models.LedgerEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.LedgerEntry
	for _, e := range m.ledger {
		if e.PayoutTransferID == transferID {
			out = append(out, e)
		}
	}
	return out
}

func (m *memDB) ledgerLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ledger)
}

func (m *memDB) addAccount(userID uuid.UUID, acct string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[userID] = acct
}

var errNeedsTx = errors.New("requires a transaction")

// Contests

type memContests struct{ db *memDB }

func (s memContests) GetByID(_ context.Context, id uuid.UUID) (*models.Contest, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	c, ok := s.db.contests[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &c, nil
}

func (s memContests) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Contest, error) {
	if !inMemTx(ctx) {
		return nil, errNeedsTx
	}
	return s.GetByID(ctx, id)
}

func (s memContests) CompareAndSetStatus(_ context.Context, c *models.Contest, to models.ContestStatus, now time.Time) (bool, error) {
	if s.db.beforeCAS != nil {
		s.db.beforeCAS(c.ID)
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	cur, ok := s.db.contests[c.ID]
	if !ok || cur.Status != c.Status || cur.Version != c.Version {
		return false, nil
	}
	cur.Status = to
	cur.Version++
	if to == models.ContestStatusComplete && cur.SettleTime == nil {
		st := now
		cur.SettleTime = &st
	}
	cur.UpdatedAt = s.db.tick()
	s.db.contests[c.ID] = cur
	*c = cur
	return true, nil
}

func (s memContests) UpdateTimes(_ context.Context, c *models.Contest, t models.ContestTimes) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	cur, ok := s.db.contests[c.ID]
	if !ok || cur.Status != models.ContestStatusScheduled || cur.Version != c.Version {
		return false, nil
	}
	cur.LockTime, cur.StartTime, cur.EndTime = t.LockTime, t.StartTime, t.EndTime
	cur.Version++
	cur.UpdatedAt = s.db.tick()
	s.db.contests[c.ID] = cur
	*c = cur
	return true, nil
}

func (s memContests) ListDue(_ context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var due []models.Contest
	for _, c := range s.db.contests {
		switch c.Status {
		case models.ContestStatusScheduled, models.ContestStatusLocked:
			if c.StartTime != nil && !c.StartTime.After(now) {
				due = append(due, c)
			}
		case models.ContestStatusLive:
			if c.EndTime != nil && !c.EndTime.After(now) {
				due = append(due, c)
			}
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].UpdatedAt.Before(due[j].UpdatedAt) })
	var ids []uuid.UUID
	for i, c := range due {
		if i == limit {
			break
		}
		ids = append(ids, c.ID)
	}
	return ids, nil
}

// Audit

type memAudit struct{ db *memDB }

func (s memAudit) Insert(_ context.Context, a *models.ContestAudit) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	a.ID = uuid.New()
	a.CreatedAt = s.db.tick()
	s.db.audit = append(s.db.audit, *a)
	return nil
}

func (s memAudit) ListByContest(_ context.Context, contestID uuid.UUID, limit, offset int) ([]models.ContestAudit, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []models.ContestAudit
	for _, a := range s.db.audit {
		if a.ContestInstanceID == contestID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset > len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// Outbox

type memOutbox struct{ db *memDB }

func (s memOutbox) Enqueue(_ context.Context, e *models.OutboxEvent) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.seq++
	e.ID = s.db.seq
	e.CreatedAt = s.db.tick()
	s.db.outbox = append(s.db.outbox, *e)
	return nil
}

func (s memOutbox) ClaimNext(ctx context.Context, afterID int64, maxAttempts int) (*models.OutboxEvent, error) {
	if !inMemTx(ctx) {
		return nil, errNeedsTx
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, e := range s.db.outbox {
		if e.DispatchedAt == nil && e.ID > afterID && e.Attempts < maxAttempts {
			return &e, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (s memOutbox) update(id int64, fn func(e *models.OutboxEvent)) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for i := range s.db.outbox {
		if s.db.outbox[i].ID == id {
			fn(&s.db.outbox[i])
			return nil
		}
	}
	return repositories.ErrNotFound
}

func (s memOutbox) MarkDispatched(_ context.Context, id int64) error {
	return s.update(id, func(e *models.OutboxEvent) {
		now := s.db.clock
		e.DispatchedAt = &now
		e.Attempts++
		e.LastError = nil
	})
}

func (s memOutbox) MarkFailed(_ context.Context, id int64, reason string) error {
	return s.update(id, func(e *models.OutboxEvent) {
		e.Attempts++
		e.LastError = &reason
	})
}

// Payout jobs

type memJobs struct{ db *memDB }

func (s memJobs) InsertIgnoreConflict(_ context.Context, j *models.PayoutJob) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, existing := range s.db.jobs {
		if existing.SettlementID == j.SettlementID {
			return false, nil
		}
	}
	j.ID = uuid.New()
	j.CreatedAt = s.db.tick()
	j.UpdatedAt = j.CreatedAt
	s.db.jobs[j.ID] = *j
	return true, nil
}

func (s memJobs) GetByID(_ context.Context, id uuid.UUID) (*models.PayoutJob, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	j, ok := s.db.jobs[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &j, nil
}

func (s memJobs) GetBySettlementID(_ context.Context, settlementID uuid.UUID) (*models.PayoutJob, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, j := range s.db.jobs {
		if j.SettlementID == settlementID {
			return &j, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (s memJobs) MarkProcessing(_ context.Context, id uuid.UUID) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	j, ok := s.db.jobs[id]
	if !ok || j.Status != models.PayoutJobStatusPending {
		return nil
	}
	now := s.db.tick()
	j.Status = models.PayoutJobStatusProcessing
	j.StartedAt = &now
	s.db.jobs[id] = j
	return nil
}

func (s memJobs) UpdateCounts(_ context.Context, id uuid.UUID, completed, failed int) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	j := s.db.jobs[id]
	if completed+failed > j.TotalPayouts {
		return fmt.Errorf("check constraint: counts exceed total_payouts")
	}
	j.CompletedCount, j.FailedCount = completed, failed
	s.db.jobs[id] = j
	return nil
}

func (s memJobs) MarkComplete(_ context.Context, id uuid.UUID) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	j := s.db.jobs[id]
	if j.Status == models.PayoutJobStatusComplete || j.CompletedCount+j.FailedCount != j.TotalPayouts {
		return false, nil
	}
	now := s.db.tick()
	j.Status = models.PayoutJobStatusComplete
	j.CompletedAt = &now
	s.db.jobs[id] = j
	return true, nil
}

func (s memJobs) ListIncomplete(_ context.Context, limit int) ([]models.PayoutJob, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []models.PayoutJob
	for _, j := range s.db.jobs {
		if j.Status != models.PayoutJobStatusComplete {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Payout transfers

type memTransfers struct{ db *memDB }

func (s memTransfers) InsertIgnoreConflict(_ context.Context, t *models.PayoutTransfer) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, existing := range s.db.transfers {
		if existing.ContestID == t.ContestID && existing.UserID == t.UserID {
			return false, nil
		}
		if existing.IdempotencyKey == t.IdempotencyKey {
			return false, fmt.Errorf("unique violation: idempotency_key %s", t.IdempotencyKey)
		}
	}
	t.ID = uuid.New()
	t.CreatedAt = s.db.tick()
	t.UpdatedAt = t.CreatedAt
	s.db.transfers[t.ID] = *t
	return true, nil
}

func (s memTransfers) GetByID(_ context.Context, id uuid.UUID) (*models.PayoutTransfer, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	t, ok := s.db.transfers[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &t, nil
}

func (s memTransfers) ClaimForUpdate(ctx context.Context, id uuid.UUID) (*models.PayoutTransfer, error) {
	if !inMemTx(ctx) {
		return nil, errNeedsTx
	}
	t, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !t.Claimable() {
		return nil, repositories.ErrNotFound
	}
	return t, nil
}

func (s memTransfers) MarkProcessing(_ context.Context, t *models.PayoutTransfer) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	cur := s.db.transfers[t.ID]
	if (cur.Status != models.TransferStatusPending && cur.Status != models.TransferStatusRetryable) || cur.AttemptCount >= cur.MaxAttempts {
		return repositories.ErrNotFound
	}
	cur.Status = models.TransferStatusProcessing
	cur.AttemptCount++
	cur.UpdatedAt = s.db.tick()
	s.db.transfers[t.ID] = cur
	*t = cur
	return nil
}

func (s memTransfers) finish(t *models.PayoutTransfer, status string, stripeID, reason *string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	cur := s.db.transfers[t.ID]
	if cur.Status != models.TransferStatusProcessing {
		return repositories.ErrNotFound
	}
	cur.Status = status
	if stripeID != nil {
		cur.StripeTransferID = stripeID
	}
	cur.FailureReason = reason
	cur.UpdatedAt = s.db.tick()
	s.db.transfers[t.ID] = cur
	*t = cur
	return nil
}

func (s memTransfers) MarkCompleted(_ context.Context, t *models.PayoutTransfer, stripeTransferID string) error {
	return s.finish(t, models.TransferStatusCompleted, &stripeTransferID, nil)
}

func (s memTransfers) MarkRetryable(_ context.Context, t *models.PayoutTransfer, reason string) error {
	return s.finish(t, models.TransferStatusRetryable, nil, &reason)
}

func (s memTransfers) MarkFailedTerminal(_ context.Context, t *models.PayoutTransfer, reason string) error {
	return s.finish(t, models.TransferStatusFailedTerminal, nil, &reason)
}

func cursorLess(a, b repositories.TransferCursor) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return bytes.Compare(a.ID[:], b.ID[:]) < 0
}

func (s memTransfers) ListClaimableIDs(_ context.Context, jobID uuid.UUID, after *repositories.TransferCursor, limit int) ([]uuid.UUID, *repositories.TransferCursor, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.listErrForJob[jobID]; err != nil {
		return nil, nil, err
	}
	var rows []repositories.TransferCursor
	for _, t := range s.db.transfers {
		if t.PayoutJobID != jobID || !t.Claimable() {
			continue
		}
		c := repositories.TransferCursor{CreatedAt: t.CreatedAt, ID: t.ID}
		if after != nil && !cursorLess(*after, c) {
			continue
		}
		rows = append(rows, c)
	}
	sort.Slice(rows, func(i, j int) bool { return cursorLess(rows[i], rows[j]) })
	if len(rows) > limit {
		rows = rows[:limit]
	}
	if len(rows) == 0 {
		return nil, nil, nil
	}
	ids := make([]uuid.UUID, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	last := rows[len(rows)-1]
	return ids, &last, nil
}

func (s memTransfers) CountTerminal(_ context.Context, jobID uuid.UUID) (int, int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var completed, failed int
	for _, t := range s.db.transfers {
		if t.PayoutJobID != jobID {
			continue
		}
		switch t.Status {
		case models.TransferStatusCompleted:
			completed++
		case models.TransferStatusFailedTerminal:
			failed++
		}
	}
	return completed, failed, nil
}

func (s memTransfers) ListByJob(_ context.Context, jobID uuid.UUID) ([]models.PayoutTransfer, error) {
	return s.db.transfersOf(jobID), nil
}

// Ledger and accounts

type memLedger struct{ db *memDB }

func (s memLedger) Insert(_ context.Context, e *models.LedgerEntry) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.ledgerInsertErr != nil {
		err := s.db.ledgerInsertErr
		s.db.ledgerInsertErr = nil
		return false, err
	}
	for _, existing := range s.db.ledger {
		if existing.IdempotencyKey == e.IdempotencyKey {
			return false, nil
		}
	}
	e.ID = uuid.New()
	e.CreatedAt = s.db.tick()
	s.db.ledger = append(s.db.ledger, *e)
	return true, nil
}

func (s memLedger) ListByTransfer(_ context.Context, transferID uuid.UUID) ([]models.LedgerEntry, error) {
	return s.db.ledgerOf(transferID), nil
}

type memAccounts struct{ db *memDB }

func (s memAccounts) GetByUserID(_ context.Context, userID uuid.UUID) (*models.PayoutAccount, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	acct, ok := s.db.accounts[userID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &models.PayoutAccount{UserID: userID, StripeAccountID: acct}, nil
}

// fakeProvider answers transfer calls from a script keyed by user.
type fakeProvider struct {
	mu      sync.Mutex
	calls   []stripeadapter.TransferRequest
	results map[uuid.UUID][]stripeadapter.TransferResult
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{results: map[uuid.UUID][]stripeadapter.TransferResult{}}
}

// script queues results for a user; once exhausted, calls succeed.
func (p *fakeProvider) script(userID uuid.UUID, results ...stripeadapter.TransferResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results[userID] = append(p.results[userID], results...)
}

func (p *fakeProvider) CreateTransfer(_ context.Context, req stripeadapter.TransferRequest) stripeadapter.TransferResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, req)
	if queued := p.results[req.UserID]; len(queued) > 0 {
		p.results[req.UserID] = queued[1:]
		return queued[0]
	}
	return stripeadapter.TransferResult{Success: true, TransferID: fmt.Sprintf("tr_%d", len(p.calls))}
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func transient(reason string) stripeadapter.TransferResult {
	return stripeadapter.TransferResult{Classification: stripeadapter.Transient, Reason: reason, HTTPStatus: 503}
}

func permanent(reason string) stripeadapter.TransferResult {
	return stripeadapter.TransferResult{Classification: stripeadapter.Permanent, Reason: reason, HTTPStatus: 400}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

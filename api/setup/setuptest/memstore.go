// Package setuptest provides an in-memory backing store for the setup
// packages' tests. InTx snapshots the whole store and restores it when the
// callback fails, which mirrors a database rollback.
package setuptest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"SmartAd/api/setup/audit"
	"SmartAd/api/setup/ratesupload"
	"SmartAd/api/setup/refentity"
	"SmartAd/api/setup/similarity"
)

type state struct {
	entities     map[refentity.Kind][]refentity.Entity
	nextEntityID int64
	rates        []ratesupload.Rate
	nextRateID   int64
	sessions     map[uuid.UUID]ratesupload.UploadSession
	records      []ratesupload.StagingRecord
	nextRecordID int64
	audit        []audit.Entry
}

func (s *state) clone() *state {
	c := &state{
		entities:     make(map[refentity.Kind][]refentity.Entity, len(s.entities)),
		nextEntityID: s.nextEntityID,
		rates:        append([]ratesupload.Rate(nil), s.rates...),
		nextRateID:   s.nextRateID,
		sessions:     make(map[uuid.UUID]ratesupload.UploadSession, len(s.sessions)),
		records:      make([]ratesupload.StagingRecord, len(s.records)),
		nextRecordID: s.nextRecordID,
		audit:        append([]audit.Entry(nil), s.audit...),
	}
	for k, v := range s.entities {
		c.entities[k] = append([]refentity.Entity(nil), v...)
	}
	for k, v := range s.sessions {
		c.sessions[k] = v
	}
	for i, r := range s.records {
		c.records[i] = cloneRecord(r)
	}
	return c
}

func cloneRecord(r ratesupload.StagingRecord) ratesupload.StagingRecord {
	if r.MergeResolution != nil {
		mr := make(ratesupload.MergeResolution, len(r.MergeResolution))
		for k, v := range r.MergeResolution {
			mr[k] = v
		}
		r.MergeResolution = mr
	}
	return r
}

// MemStore is safe for concurrent use; transactions are serialized.
type MemStore struct {
	txMu sync.Mutex
	mu   sync.Mutex
	st   *state

	rateInserts  int
	failRateAt   int
	failRateErr  error
	failPurgeErr error
}

func NewMemStore() *MemStore {
	return &MemStore{st: &state{
		entities: make(map[refentity.Kind][]refentity.Entity),
		sessions: make(map[uuid.UUID]ratesupload.UploadSession),
	}}
}

// FailRateInsertAt makes the n-th rate insert (1-based, counted from now)
// fail with err.
func (m *MemStore) FailRateInsertAt(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rateInserts = 0
	m.failRateAt = n
	m.failRateErr = err
}

func (m *MemStore) FailPurge(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failPurgeErr = err
}

func (m *MemStore) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	snapshot := m.st.clone()
	m.mu.Unlock()

	err := fn(ctx)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		m.mu.Lock()
		m.st = snapshot
		m.mu.Unlock()
	}
	return err
}

func (m *MemStore) Refs() *RefRepo        { return &RefRepo{m: m} }
func (m *MemStore) Staging() *StagingRepo { return &StagingRepo{m: m} }
func (m *MemStore) Rates() *RateRepo      { return &RateRepo{m: m} }
func (m *MemStore) Audit() *AuditSink     { return &AuditSink{m: m} }

// SeedEntity stores an entity directly and returns it with its id.
func (m *MemStore) SeedEntity(kind refentity.Kind, code, name string) refentity.Entity {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.nextEntityID++
	e := refentity.Entity{ID: m.st.nextEntityID, Kind: kind, Code: code, Name: name, Status: refentity.StatusActive, CreatedBy: "seed", CreatedAt: time.Now()}
	m.st.entities[kind] = append(m.st.entities[kind], e)
	return e
}

// SeedRate stores a rate directly and returns its id.
func (m *MemStore) SeedRate(r ratesupload.Rate) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.nextRateID++
	r.ID = m.st.nextRateID
	m.st.rates = append(m.st.rates, r)
	return r.ID
}

// SeedRecordAge rewrites created_at of every staged row and its session.
func (m *MemStore) SeedRecordAge(sessionID uuid.UUID, createdAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.st.records {
		if m.st.records[i].SessionID == sessionID {
			m.st.records[i].CreatedAt = createdAt
		}
	}
	if s, ok := m.st.sessions[sessionID]; ok {
		s.CreatedAt = createdAt
		m.st.sessions[sessionID] = s
	}
}

func (m *MemStore) Entities(kind refentity.Kind) []refentity.Entity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]refentity.Entity(nil), m.st.entities[kind]...)
}

func (m *MemStore) AllRates() []ratesupload.Rate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ratesupload.Rate(nil), m.st.rates...)
}

func (m *MemStore) Records() []ratesupload.StagingRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ratesupload.StagingRecord, len(m.st.records))
	for i, r := range m.st.records {
		out[i] = cloneRecord(r)
	}
	return out
}

func (m *MemStore) AuditEntries() []audit.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]audit.Entry(nil), m.st.audit...)
}

func (m *MemStore) HasSession(id uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.st.sessions[id]
	return ok
}

// RefRepo implements refentity.Repository.
type RefRepo struct{ m *MemStore }

func (r *RefRepo) List(_ context.Context, kind refentity.Kind) ([]refentity.Entity, error) {
	return r.m.Entities(kind), nil
}

func (r *RefRepo) FindByKey(_ context.Context, kind refentity.Kind, key string) (*refentity.Entity, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	key = similarity.Normalize(key)
	for _, e := range r.m.st.entities[kind] {
		if e.Key() == key {
			found := e
			return &found, nil
		}
	}
	return nil, nil
}

func (r *RefRepo) FindByID(_ context.Context, kind refentity.Kind, id int64) (*refentity.Entity, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, e := range r.m.st.entities[kind] {
		if e.ID == id {
			found := e
			return &found, nil
		}
	}
	return nil, nil
}

func (r *RefRepo) Insert(_ context.Context, e refentity.Entity) (int64, bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, existing := range r.m.st.entities[e.Kind] {
		if existing.Key() == e.Key() {
			return 0, false, nil
		}
	}
	r.m.st.nextEntityID++
	e.ID = r.m.st.nextEntityID
	e.CreatedAt = time.Now()
	r.m.st.entities[e.Kind] = append(r.m.st.entities[e.Kind], e)
	return e.ID, true, nil
}

func (r *RefRepo) LockKey(context.Context, refentity.Kind, string) error { return nil }

// AuditSink implements audit.Sink.
type AuditSink struct{ m *MemStore }

func (a *AuditSink) Record(_ context.Context, e audit.Entry) error {
	a.m.mu.Lock()
	defer a.m.mu.Unlock()
	if e.PerformedAt.IsZero() {
		e.PerformedAt = time.Now()
	}
	a.m.st.audit = append(a.m.st.audit, e)
	return nil
}

// RateRepo implements ratesupload.RateRepository.
type RateRepo struct{ m *MemStore }

func (r *RateRepo) FindOverlapping(_ context.Context, deps ratesupload.DependencyIDs, p ratesupload.Period) ([]ratesupload.Rate, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []ratesupload.Rate
	for _, rate := range r.m.st.rates {
		if rate.Dependencies != deps || rate.IsDeleted || rate.Status != ratesupload.RateActive {
			continue
		}
		if rate.Period().Overlaps(p) {
			out = append(out, rate)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *RateRepo) LockTuple(context.Context, ratesupload.DependencyIDs) error { return nil }

func (r *RateRepo) Insert(_ context.Context, rate ratesupload.Rate) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.rateInserts++
	if r.m.failRateAt > 0 && r.m.rateInserts == r.m.failRateAt {
		return 0, r.m.failRateErr
	}
	r.m.st.nextRateID++
	rate.ID = r.m.st.nextRateID
	rate.CreatedAt = time.Now()
	r.m.st.rates = append(r.m.st.rates, rate)
	return rate.ID, nil
}

func (r *RateRepo) Update(_ context.Context, rate ratesupload.Rate) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for i := range r.m.st.rates {
		if r.m.st.rates[i].ID == rate.ID && !r.m.st.rates[i].IsDeleted {
			now := time.Now()
			rate.UpdatedAt = &now
			r.m.st.rates[i] = rate
			return nil
		}
	}
	return fmt.Errorf("update rate %d: no active row", rate.ID)
}

func (r *RateRepo) SoftDelete(_ context.Context, id int64, by string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for i := range r.m.st.rates {
		if r.m.st.rates[i].ID == id {
			now := time.Now()
			r.m.st.rates[i].IsDeleted = true
			r.m.st.rates[i].UpdatedBy = by
			r.m.st.rates[i].UpdatedAt = &now
			return nil
		}
	}
	return fmt.Errorf("retire rate %d: not found", id)
}

// StagingRepo implements ratesupload.StagingRepository.
type StagingRepo struct{ m *MemStore }

func (s *StagingRepo) CreateSession(_ context.Context, sess ratesupload.UploadSession) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.st.sessions[sess.ID]; ok {
		return errors.New("duplicate session id")
	}
	s.m.st.sessions[sess.ID] = sess
	return nil
}

func (s *StagingRepo) GetSession(_ context.Context, id uuid.UUID) (*ratesupload.UploadSession, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	sess, ok := s.m.st.sessions[id]
	if !ok {
		return nil, nil
	}
	return &sess, nil
}

func (s *StagingRepo) FindSessionByHash(_ context.Context, userID, hash string) (*ratesupload.UploadSession, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var best *ratesupload.UploadSession
	for _, sess := range s.m.st.sessions {
		if sess.UserID != userID || sess.FileHash != hash || !s.hasPendingLocked(sess.ID) {
			continue
		}
		if best == nil || sess.CreatedAt.After(best.CreatedAt) {
			found := sess
			best = &found
		}
	}
	return best, nil
}

func (s *StagingRepo) hasPendingLocked(id uuid.UUID) bool {
	for _, r := range s.m.st.records {
		if r.SessionID == id && r.FinalStatus == ratesupload.FinalPending {
			return true
		}
	}
	return false
}

func (s *StagingRepo) InsertRecords(_ context.Context, records []ratesupload.StagingRecord) ([]int64, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	ids := make([]int64, len(records))
	for i, rec := range records {
		if _, ok := s.m.st.sessions[rec.SessionID]; !ok {
			return nil, fmt.Errorf("staging row %d: session %s does not exist", rec.RowNumber, rec.SessionID)
		}
		for _, existing := range s.m.st.records {
			if existing.SessionID == rec.SessionID && existing.RowNumber == rec.RowNumber {
				return nil, fmt.Errorf("staging row %d already exists in session", rec.RowNumber)
			}
		}
		s.m.st.nextRecordID++
		rec.ID = s.m.st.nextRecordID
		ids[i] = rec.ID
		s.m.st.records = append(s.m.st.records, cloneRecord(rec))
	}
	return ids, nil
}

func (s *StagingRepo) ListSessionSummaries(_ context.Context, userID string) ([]ratesupload.SessionSummary, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []ratesupload.SessionSummary
	for _, sess := range s.m.st.sessions {
		if sess.UserID != userID {
			continue
		}
		sum := ratesupload.SessionSummary{SessionID: sess.ID, FileName: sess.FileName, CreatedAt: sess.CreatedAt}
		for _, r := range s.m.st.records {
			if r.SessionID != sess.ID {
				continue
			}
			sum.Total++
			switch r.ValidationStatus {
			case ratesupload.StatusOK:
				sum.OK++
			case ratesupload.StatusWarning:
				sum.Warning++
			case ratesupload.StatusDuplicate:
				sum.Duplicate++
			case ratesupload.StatusError:
				sum.Error++
			}
			if r.FinalStatus == ratesupload.FinalPending {
				sum.Pending++
			}
		}
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *StagingRepo) ListRecords(_ context.Context, sessionID uuid.UUID) ([]ratesupload.StagingRecord, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []ratesupload.StagingRecord
	for _, r := range s.m.st.records {
		if r.SessionID == sessionID {
			out = append(out, cloneRecord(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RowNumber < out[j].RowNumber })
	return out, nil
}

func (s *StagingRepo) GetRecord(_ context.Context, sessionID uuid.UUID, id int64) (*ratesupload.StagingRecord, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, r := range s.m.st.records {
		if r.SessionID == sessionID && r.ID == id {
			found := cloneRecord(r)
			return &found, nil
		}
	}
	return nil, nil
}

func (s *StagingRepo) LockRecords(ctx context.Context, sessionID uuid.UUID, ids []int64) ([]ratesupload.StagingRecord, error) {
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	all, _ := s.ListRecords(ctx, sessionID)
	var out []ratesupload.StagingRecord
	for _, r := range all {
		if want[r.ID] {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *StagingRepo) UpdateMergeResolution(_ context.Context, sessionID uuid.UUID, id int64, mr ratesupload.MergeResolution) (bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for i := range s.m.st.records {
		r := &s.m.st.records[i]
		if r.SessionID == sessionID && r.ID == id && r.FinalStatus == ratesupload.FinalPending {
			r.MergeResolution = mr
			return true, nil
		}
	}
	return false, nil
}

func (s *StagingRepo) UpdateFinalStatus(_ context.Context, id int64, status ratesupload.FinalStatus, message string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for i := range s.m.st.records {
		if s.m.st.records[i].ID == id {
			s.m.st.records[i].FinalStatus = status
			s.m.st.records[i].FinalMessage = message
			return nil
		}
	}
	return fmt.Errorf("staging row %d not found", id)
}

func (s *StagingRepo) CountPending(_ context.Context, sessionID uuid.UUID) (int, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	n := 0
	for _, r := range s.m.st.records {
		if r.SessionID == sessionID && r.FinalStatus == ratesupload.FinalPending {
			n++
		}
	}
	return n, nil
}

func (s *StagingRepo) DeleteSession(_ context.Context, sessionID uuid.UUID) (int64, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var n int64
	kept := s.m.st.records[:0]
	for _, r := range s.m.st.records {
		if r.SessionID == sessionID {
			n++
			continue
		}
		kept = append(kept, r)
	}
	s.m.st.records = kept
	delete(s.m.st.sessions, sessionID)
	return n, nil
}

func (s *StagingRepo) PurgeExpired(_ context.Context, cutoff time.Time) (int64, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if s.m.failPurgeErr != nil {
		return 0, s.m.failPurgeErr
	}
	var n int64
	kept := s.m.st.records[:0]
	for _, r := range s.m.st.records {
		if r.CreatedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	s.m.st.records = kept
	for id, sess := range s.m.st.sessions {
		if sess.CreatedAt.Before(cutoff) && !s.hasAnyLocked(id) {
			delete(s.m.st.sessions, id)
		}
	}
	return n, nil
}

func (s *StagingRepo) hasAnyLocked(id uuid.UUID) bool {
	for _, r := range s.m.st.records {
		if r.SessionID == id {
			return true
		}
	}
	return false
}

var (
	_ refentity.Repository          = (*RefRepo)(nil)
	_ audit.Sink                    = (*AuditSink)(nil)
	_ ratesupload.RateRepository    = (*RateRepo)(nil)
	_ ratesupload.StagingRepository = (*StagingRepo)(nil)
)

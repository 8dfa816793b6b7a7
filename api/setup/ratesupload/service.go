package ratesupload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"SmartAd/api/constants"
	"SmartAd/api/setup/audit"
	"SmartAd/api/setup/ingest"
	"SmartAd/api/setup/refentity"
	"SmartAd/internal/checksum"
	"SmartAd/internal/config"
	"SmartAd/internal/dbtx"
)

const (
	auditEntityRate    = "rates"
	auditEntitySession = "rate_upload_sessions"
)

type Options struct {
	Retention time.Duration
	Now       func() time.Time
	Logger    logrus.FieldLogger
}

// Service runs the upload, review, commit and cleanup steps of the rate
// import.
type Service struct {
	staging   StagingRepository
	rates     RateRepository
	refs      *refentity.Resolver
	resolver  *Resolver
	validator *Validator
	tx        dbtx.Runner
	audit     audit.Sink
	retention time.Duration
	now       func() time.Time
	log       logrus.FieldLogger
}

func NewService(staging StagingRepository, rates RateRepository, refs *refentity.Resolver, tx dbtx.Runner, sink audit.Sink, opts Options) *Service {
	if opts.Retention <= 0 {
		opts.Retention = config.DefaultStagingRetention
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Service{
		staging:   staging,
		rates:     rates,
		refs:      refs,
		resolver:  NewResolver(rates, refs),
		validator: NewValidator(),
		tx:        tx,
		audit:     sink,
		retention: opts.Retention,
		now:       opts.Now,
		log:       opts.Logger,
	}
}

type StageRequest struct {
	UserID   string
	FileName string
	Data     []byte
}

// StageUpload parses, validates and resolves every row of the file and
// stages them under a new session. File-level problems fail the whole
// upload and nothing is staged.
func (s *Service) StageUpload(ctx context.Context, req StageRequest) (*StageResult, error) {
	if req.UserID == "" {
		return nil, ErrUserRequired
	}
	hash := checksum.Sum(req.Data)
	if existing, err := s.staging.FindSessionByHash(ctx, req.UserID, hash); err != nil {
		return nil, err
	} else if existing != nil && !s.expired(existing.CreatedAt) {
		return s.existingUpload(ctx, existing)
	}

	rows, err := ingest.Parse(req.Data, req.FileName)
	if err != nil {
		return nil, err
	}
	batch, err := s.resolver.NewBatch(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	session := UploadSession{
		ID:        uuid.New(),
		UserID:    req.UserID,
		FileName:  req.FileName,
		FileHash:  hash,
		TotalRows: len(rows),
		CreatedAt: now,
	}
	result := &StageResult{SessionID: session.ID}
	records := make([]StagingRecord, 0, len(rows))

	for _, row := range rows {
		rec, err := s.stageRow(ctx, batch, session, row)
		if err != nil {
			return nil, err
		}
		result.count(rec.ValidationStatus)
		records = append(records, rec)
	}

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.staging.CreateSession(ctx, session); err != nil {
			return err
		}
		ids, err := s.staging.InsertRecords(ctx, records)
		if err != nil {
			return err
		}
		for i := range records {
			records[i].ID = ids[i]
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("stage upload: %w", err)
	}
	result.Records = records

	for _, rec := range records {
		stagedRows.WithLabelValues(string(rec.ValidationStatus)).Inc()
	}
	s.log.WithFields(logrus.Fields{
		"session_id": session.ID, "user_id": req.UserID, "rows": result.Total,
		"valid": result.Valid, "duplicate": result.Duplicate, "invalid": result.Invalid,
	}).Info("rate upload staged")
	return result, nil
}

func (s *Service) stageRow(ctx context.Context, batch *Batch, session UploadSession, row ingest.RawRow) (StagingRecord, error) {
	rec := StagingRecord{
		SessionID:   session.ID,
		UserID:      session.UserID,
		RowNumber:   row.Number,
		FinalStatus: FinalPending,
		CreatedAt:   session.CreatedAt,
	}

	outcome := s.validator.Validate(row)
	if !outcome.Valid() {
		raw, err := json.Marshal(row.Cells)
		if err != nil {
			return rec, err
		}
		rec.RawData = raw
		rec.ValidationStatus = StatusError
		rec.ValidationMessage = joinMessages(outcome.Messages())
		return rec, nil
	}

	res, err := batch.Resolve(ctx, row.Number, *outcome.Rate)
	if err != nil {
		return rec, fmt.Errorf("resolve row %d: %w", row.Number, err)
	}
	raw, err := json.Marshal(outcome.Rate)
	if err != nil {
		return rec, err
	}
	rec.RawData = raw
	rec.ValidationStatus = res.Status
	rec.ValidationMessage = res.Message()
	rec.Resolution = &res
	return rec, nil
}

func (s *Service) existingUpload(ctx context.Context, session *UploadSession) (*StageResult, error) {
	records, err := s.staging.ListRecords(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	result := &StageResult{SessionID: session.ID, DuplicateUpload: true, Records: records}
	for _, rec := range records {
		result.count(rec.ValidationStatus)
	}
	s.log.WithFields(logrus.Fields{"session_id": session.ID, "user_id": session.UserID}).
		Info("identical file already staged, returning existing session")
	return result, nil
}

// ListPendingSessions returns the user's unexpired sessions that still have
// pending rows, newest first.
func (s *Service) ListPendingSessions(ctx context.Context, userID string) ([]SessionSummary, error) {
	if userID == "" {
		return nil, ErrUserRequired
	}
	all, err := s.staging.ListSessionSummaries(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]SessionSummary, 0, len(all))
	for _, sum := range all {
		if sum.Pending == 0 || s.expired(sum.CreatedAt) {
			continue
		}
		sum.ExpiresAt = sum.CreatedAt.Add(s.retention)
		out = append(out, sum)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// SessionRecords returns every staged row of the session for review.
func (s *Service) SessionRecords(ctx context.Context, userID string, sessionID uuid.UUID) ([]StagingRecord, error) {
	if _, err := s.ownedSession(ctx, userID, sessionID, true); err != nil {
		return nil, err
	}
	return s.staging.ListRecords(ctx, sessionID)
}

// SetMergeResolution merges the operator's choices into a pending row.
func (s *Service) SetMergeResolution(ctx context.Context, userID string, sessionID uuid.UUID, rowID int64, choices MergeResolution) error {
	if len(choices) == 0 {
		return fmt.Errorf("%w: no choices given", ErrInvalidResolution)
	}
	for kind, choice := range choices {
		if !kind.Valid() || !kind.Fuzzy() {
			return fmt.Errorf("%w: %s", ErrInvalidResolution, constants.FormatError(constants.ErrInvalidResolution, kind.String()))
		}
		if err := choice.Validate(kind); err != nil {
			return err
		}
	}
	if _, err := s.ownedSession(ctx, userID, sessionID, true); err != nil {
		return err
	}

	rec, err := s.staging.GetRecord(ctx, sessionID, rowID)
	if err != nil {
		return err
	}
	if rec == nil {
		return ErrRecordNotFound
	}
	if rec.FinalStatus != FinalPending {
		return ErrRecordFinalized
	}

	for kind, choice := range choices {
		if choice.Action != UseExisting {
			continue
		}
		if _, err := s.refs.Get(ctx, kind, choice.EntityID); err != nil {
			if errors.Is(err, refentity.ErrEntityNotFound) {
				return fmt.Errorf("%w: %v", ErrInvalidResolution, err)
			}
			return err
		}
	}

	merged := make(MergeResolution, len(rec.MergeResolution)+len(choices))
	for k, v := range rec.MergeResolution {
		merged[k] = v
	}
	for k, v := range choices {
		merged[k] = v
	}
	updated, err := s.staging.UpdateMergeResolution(ctx, sessionID, rowID, merged)
	if err != nil {
		return err
	}
	if !updated {
		return ErrRecordFinalized
	}
	s.log.WithFields(logrus.Fields{"session_id": sessionID, "row_id": rowID, "user_id": userID}).
		Info("merge resolution saved")
	return nil
}

type CommitRequest struct {
	UserID    string
	SessionID uuid.UUID
	RowIDs    []int64
	Mode      DuplicateMode
}

// Commit applies the selected rows in one transaction. Row-level outcomes
// (skips, unresolved choices, invalid rows) are reported per row. Any storage
// failure reverts the whole batch: the returned report then marks every
// selected row as error and the error wraps ErrCommitFailed.
func (s *Service) Commit(ctx context.Context, req CommitRequest) (*CommitReport, error) {
	rowIDs := uniqueIDs(req.RowIDs)
	if len(rowIDs) == 0 {
		return nil, ErrNoRowsSelected
	}
	if req.Mode == "" {
		req.Mode = DuplicateSkip
	}
	if _, err := ParseDuplicateMode(string(req.Mode)); err != nil {
		return nil, err
	}
	if _, err := s.ownedSession(ctx, req.UserID, req.SessionID, false); err != nil {
		return nil, err
	}

	var report *CommitReport
	var locked []StagingRecord
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		report = &CommitReport{SessionID: req.SessionID}
		records, err := s.staging.LockRecords(ctx, req.SessionID, rowIDs)
		if err != nil {
			return err
		}
		locked = records
		if len(records) != len(rowIDs) {
			return fmt.Errorf("%w: %d of %d selected rows", ErrRecordNotFound, len(rowIDs)-len(records), len(rowIDs))
		}

		c := &committer{svc: s, user: req.UserID, mode: req.Mode, created: make(map[string]int64)}
		for _, rec := range records {
			outcome, persist, err := c.commitRow(ctx, rec)
			if err != nil {
				return fmt.Errorf("row %d: %w", rec.RowNumber, err)
			}
			if persist {
				if err := s.staging.UpdateFinalStatus(ctx, rec.ID, outcome.FinalStatus, outcome.Message); err != nil {
					return err
				}
			}
			report.add(outcome)
		}

		pending, err := s.staging.CountPending(ctx, req.SessionID)
		if err != nil {
			return err
		}
		if pending == 0 {
			if _, err := s.staging.DeleteSession(ctx, req.SessionID); err != nil {
				return err
			}
			report.SessionClosed = true
		}
		return nil
	})

	if errors.Is(err, ErrRecordNotFound) {
		return nil, err
	}
	if err != nil {
		failed := failedReport(req.SessionID, rowIDs, locked, err)
		commitBatches.WithLabelValues("failed").Inc()
		committedRows.WithLabelValues(string(FinalError)).Add(float64(failed.Errors))
		s.log.WithError(err).WithFields(logrus.Fields{"session_id": req.SessionID, "user_id": req.UserID, "rows": len(rowIDs)}).
			Error("rate commit rolled back")
		return failed, fmt.Errorf("%w: %w", ErrCommitFailed, err)
	}

	commitBatches.WithLabelValues("committed").Inc()
	for _, row := range report.Rows {
		committedRows.WithLabelValues(string(row.FinalStatus)).Inc()
	}
	s.log.WithFields(logrus.Fields{
		"session_id": req.SessionID, "user_id": req.UserID, "created": report.Created,
		"updated": report.Updated, "skipped": report.Skipped, "errors": report.Errors,
	}).Info(constants.FormatError(constants.SuccessCommitted, report.Created, report.Updated, report.Skipped, report.Errors))
	return report, nil
}

func failedReport(sessionID uuid.UUID, rowIDs []int64, locked []StagingRecord, cause error) *CommitReport {
	numbers := make(map[int64]int, len(locked))
	for _, rec := range locked {
		numbers[rec.ID] = rec.RowNumber
	}
	report := &CommitReport{SessionID: sessionID}
	for _, id := range rowIDs {
		report.add(RowOutcome{RowID: id, RowNumber: numbers[id], FinalStatus: FinalError, Message: cause.Error()})
	}
	return report
}

// Rollback discards the whole session.
func (s *Service) Rollback(ctx context.Context, userID string, sessionID uuid.UUID) (int64, error) {
	session, err := s.ownedSession(ctx, userID, sessionID, true)
	if err != nil {
		return 0, err
	}
	var deleted int64
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		n, err := s.staging.DeleteSession(ctx, sessionID)
		if err != nil {
			return err
		}
		deleted = n
		if s.audit == nil {
			return nil
		}
		return s.audit.Record(ctx, audit.Deleted(auditEntitySession, sessionID.String(), session, userID))
	})
	if err != nil {
		return 0, fmt.Errorf("rollback session %s: %w", sessionID, err)
	}
	s.log.WithFields(logrus.Fields{"session_id": sessionID, "user_id": userID, "rows": deleted}).Info("upload session rolled back")
	return deleted, nil
}

// PurgeExpired deletes staging rows older than the retention window.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.retention)
	n, err := s.staging.PurgeExpired(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge staging before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	purgedRows.Add(float64(n))
	if n > 0 {
		s.log.WithFields(logrus.Fields{"rows": n, "cutoff": cutoff}).Info(constants.FormatError(constants.SuccessPurged, n))
	}
	return n, nil
}

func (s *Service) expired(createdAt time.Time) bool {
	return createdAt.Before(s.now().Add(-s.retention))
}

func (s *Service) ownedSession(ctx context.Context, userID string, id uuid.UUID, allowExpired bool) (*UploadSession, error) {
	if userID == "" {
		return nil, ErrUserRequired
	}
	session, err := s.staging.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if session.UserID != userID {
		return nil, ErrForbidden
	}
	if !allowExpired && s.expired(session.CreatedAt) {
		return nil, ErrSessionExpired
	}
	return session, nil
}

// committer carries per-call state through the rows of one commit.
type committer struct {
	svc     *Service
	user    string
	mode    DuplicateMode
	created map[string]int64
}

// commitRow returns the row's outcome and whether final_status should be
// written. A returned error aborts the batch.
func (c *committer) commitRow(ctx context.Context, rec StagingRecord) (RowOutcome, bool, error) {
	out := RowOutcome{RowID: rec.ID, RowNumber: rec.RowNumber}
	if rec.FinalStatus != FinalPending {
		out.FinalStatus = FinalSkipped
		out.Message = constants.FormatError(constants.MsgRowAlreadyFinal, rec.FinalStatus)
		return out, false, nil
	}
	if rec.ValidationStatus == StatusError {
		out.FinalStatus = FinalError
		out.Message = constants.MsgRowHasErrors
		return out, true, nil
	}
	rate, err := rec.Rate()
	if err != nil || rate == nil {
		out.FinalStatus = FinalError
		out.Message = constants.MsgRowHasErrors
		return out, true, nil
	}

	if msg := unresolvedDependency(rec, *rate); msg != "" {
		out.FinalStatus = FinalSkipped
		out.Message = msg
		return out, true, nil
	}

	var deps DependencyIDs
	for _, kind := range refentity.Dependencies() {
		id, msg, err := c.dependencyID(ctx, rec, *rate, kind)
		if err != nil {
			return out, false, err
		}
		if msg != "" {
			out.FinalStatus = FinalSkipped
			out.Message = msg
			return out, true, nil
		}
		deps.Set(kind, id)
	}
	currencyID, err := c.getOrCreate(ctx, refentity.Currency, rate.DependencyFields(refentity.Currency))
	if err != nil {
		return out, false, err
	}

	if err := c.svc.rates.LockTuple(ctx, deps); err != nil {
		return out, false, err
	}
	existing, err := c.svc.rates.FindOverlapping(ctx, deps, rate.Period())
	if err != nil {
		return out, false, err
	}

	newRate := Rate{
		Dependencies:  deps,
		BaseRate:      rate.BaseRate,
		CurrencyID:    currencyID,
		EffectiveFrom: rate.EffectiveFrom,
		EffectiveTo:   rate.EffectiveTo,
		Status:        rate.Status,
		Notes:         rate.Notes,
		CreatedBy:     c.user,
	}

	if len(existing) == 0 {
		id, err := c.insertRate(ctx, newRate)
		if err != nil {
			return out, false, err
		}
		out.FinalStatus, out.RateID = FinalCreated, id
		out.Message = constants.FormatError(constants.MsgCreatedRate, id)
		return out, true, nil
	}

	switch c.mode {
	case DuplicateUpdate:
		if len(existing) > 1 {
			out.FinalStatus = FinalSkipped
			out.Message = constants.FormatError(constants.MsgUpdateAmbiguous, len(existing))
			return out, true, nil
		}
		if err := c.updateRate(ctx, existing[0], newRate); err != nil {
			return out, false, err
		}
		out.FinalStatus, out.RateID = FinalUpdated, existing[0].ID
		out.Message = constants.FormatError(constants.MsgUpdatedRate, existing[0].ID)
	case DuplicateOverwrite:
		for _, old := range existing {
			if err := c.svc.rates.SoftDelete(ctx, old.ID, c.user); err != nil {
				return out, false, err
			}
			retired := old
			retired.IsDeleted = true
			retired.UpdatedBy = c.user
			now := c.svc.now()
			retired.UpdatedAt = &now
			if err := c.record(ctx, audit.Updated(auditEntityRate, strconv.FormatInt(old.ID, 10), old, retired, c.user)); err != nil {
				return out, false, err
			}
		}
		id, err := c.insertRate(ctx, newRate)
		if err != nil {
			return out, false, err
		}
		out.FinalStatus, out.RateID = FinalUpdated, id
		out.Message = constants.FormatError(constants.MsgOverwroteRate, existing[0].ID, id)
	default:
		out.FinalStatus = FinalSkipped
		out.Message = constants.FormatError(constants.MsgSkippedDuplicate, existing[0].ID)
	}
	return out, true, nil
}

// dependencyID resolves one dependency. A non-empty message means the row
// cannot proceed and should be skipped.
func (c *committer) dependencyID(ctx context.Context, rec StagingRecord, rate ValidatedRate, kind refentity.Kind) (int64, string, error) {
	fields := rate.DependencyFields(kind)
	if choice, ok := rec.MergeResolution[kind]; ok && choice.Action == UseExisting {
		e, err := c.svc.refs.Get(ctx, kind, choice.EntityID)
		if errors.Is(err, refentity.ErrEntityNotFound) {
			return 0, err.Error(), nil
		}
		if err != nil {
			return 0, "", err
		}
		return e.ID, "", nil
	}

	id, err := c.getOrCreate(ctx, kind, fields)
	return id, "", err
}

// unresolvedDependency names the first ambiguous dependency the operator
// has not chosen for, so the row is skipped before anything is created.
func unresolvedDependency(rec StagingRecord, rate ValidatedRate) string {
	if rec.Resolution == nil {
		return ""
	}
	for _, kind := range refentity.Dependencies() {
		dm, ok := rec.Resolution.Dependency(kind)
		if !ok || !dm.Ambiguous {
			continue
		}
		if _, chosen := rec.MergeResolution[kind]; !chosen {
			return constants.FormatError(constants.MsgUnresolvedDependency, kind.Label(), rate.DependencyName(kind))
		}
	}
	return ""
}

func (c *committer) getOrCreate(ctx context.Context, kind refentity.Kind, fields refentity.Fields) (int64, error) {
	key := kind.String() + ":" + fields.Key(kind)
	if id, ok := c.created[key]; ok {
		return id, nil
	}
	e, _, err := c.svc.refs.GetOrCreate(ctx, kind, fields, c.user)
	if err != nil {
		return 0, err
	}
	c.created[key] = e.ID
	return e.ID, nil
}

func (c *committer) insertRate(ctx context.Context, r Rate) (int64, error) {
	id, err := c.svc.rates.Insert(ctx, r)
	if err != nil {
		return 0, err
	}
	r.ID = id
	return id, c.record(ctx, audit.Created(auditEntityRate, strconv.FormatInt(id, 10), r, c.user))
}

func (c *committer) updateRate(ctx context.Context, old, next Rate) error {
	next.ID = old.ID
	next.CreatedBy = old.CreatedBy
	next.CreatedAt = old.CreatedAt
	next.UpdatedBy = c.user
	if err := c.svc.rates.Update(ctx, next); err != nil {
		return err
	}
	return c.record(ctx, audit.Updated(auditEntityRate, strconv.FormatInt(old.ID, 10), old, next, c.user))
}

func (c *committer) record(ctx context.Context, e audit.Entry) error {
	if c.svc.audit == nil {
		return nil
	}
	return c.svc.audit.Record(ctx, e)
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id <= 0 {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func joinMessages(msgs []string) string {
	return strings.Join(msgs, "; ")
}

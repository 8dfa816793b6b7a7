package ratesupload_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SmartAd/api/constants"
	"SmartAd/api/setup/ingest"
	"SmartAd/api/setup/ratesupload"
	"SmartAd/api/setup/refentity"
	"SmartAd/api/setup/setuptest"
	"SmartAd/api/setup/similarity"
)

const operator = "ops-17"

type fixture struct {
	store *setuptest.MemStore
	svc   *ratesupload.Service
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log, _ := test.NewNullLogger()
	store := setuptest.NewMemStore()
	f := &fixture{store: store, now: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)}
	refs := refentity.NewResolver(store.Refs(), similarity.NewScorer(similarity.DefaultThreshold), store.Audit(), log)
	f.svc = ratesupload.NewService(store.Staging(), store.Rates(), refs, store, store.Audit(), ratesupload.Options{
		Retention: 48 * time.Hour,
		Now:       func() time.Time { return f.now },
		Logger:    log,
	})
	return f
}

func csvFile(rows ...string) []byte {
	lines := append([]string{strings.Join(constants.RateUploadHeaders, ",")}, rows...)
	return []byte(strings.Join(lines, "\n") + "\n")
}

func (f *fixture) stage(t *testing.T, user string, data []byte) *ratesupload.StageResult {
	t.Helper()
	res, err := f.svc.StageUpload(context.Background(), ratesupload.StageRequest{UserID: user, FileName: "rates.csv", Data: data})
	require.NoError(t, err)
	return res
}

func (f *fixture) commit(t *testing.T, sessionID uuid.UUID, mode ratesupload.DuplicateMode, ids ...int64) *ratesupload.CommitReport {
	t.Helper()
	report, err := f.svc.Commit(context.Background(), ratesupload.CommitRequest{UserID: operator, SessionID: sessionID, RowIDs: ids, Mode: mode})
	require.NoError(t, err)
	return report
}

// seedTuple stores the reference rows for (GT, Display, Full Page, Front,
// Full Color, GHS) and an active rate for 2024 on them.
func (f *fixture) seedTuple(base string) (ratesupload.DependencyIDs, int64) {
	var deps ratesupload.DependencyIDs
	deps.Set(refentity.Publication, f.store.SeedEntity(refentity.Publication, "GT", "Ghanaian Times").ID)
	deps.Set(refentity.AdCategory, f.store.SeedEntity(refentity.AdCategory, "DISPLAY", "Display").ID)
	deps.Set(refentity.AdSize, f.store.SeedEntity(refentity.AdSize, "FULL_PAGE", "Full Page").ID)
	deps.Set(refentity.PagePosition, f.store.SeedEntity(refentity.PagePosition, "FRONT", "Front").ID)
	deps.Set(refentity.ColorType, f.store.SeedEntity(refentity.ColorType, "FULL_COLOR", "Full Color").ID)
	currency := f.store.SeedEntity(refentity.Currency, "GHS", "GHS")

	id := f.store.SeedRate(ratesupload.Rate{
		Dependencies:  deps,
		BaseRate:      decimal.RequireFromString(base),
		CurrencyID:    currency.ID,
		EffectiveFrom: ratesupload.NewDate(2024, 1, 1),
		EffectiveTo:   ratesupload.NewDate(2024, 12, 31),
		Status:        ratesupload.RateActive,
		CreatedBy:     "seed",
	})
	return deps, id
}

func recordByRow(t *testing.T, records []ratesupload.StagingRecord, row int) ratesupload.StagingRecord {
	t.Helper()
	for _, r := range records {
		if r.RowNumber == row {
			return r
		}
	}
	t.Fatalf("row %d not staged", row)
	return ratesupload.StagingRecord{}
}

func TestStageAndCommit_EndToEnd(t *testing.T) {
	f := newFixture(t)
	_, seededRate := f.seedTuple("1000")

	res := f.stage(t, operator, csvFile(
		"DG,Daily Graphic,Display,Full Page,Front,Full Color,1500.00,GHS,2024-01-01,2024-12-31,Active,launch",
		"GT,Ghanaian Times,Display,Full Page,Front,Full Color,1200,GHS,2024-06-01,2025-05-31,Active,",
		"GT,Ghanaian Times,Display,Half Page,Back,Mono,,GHS,2024-01-01,2024-12-31,Active,",
	))

	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 1, res.Valid)
	assert.Equal(t, 1, res.Duplicate)
	assert.Equal(t, 1, res.Invalid)
	assert.False(t, res.DuplicateUpload)

	dup := recordByRow(t, res.Records, 2)
	assert.Equal(t, ratesupload.StatusDuplicate, dup.ValidationStatus)
	require.NotNil(t, dup.Resolution)
	assert.Equal(t, seededRate, dup.Resolution.ConflictingRateID)
	assert.Contains(t, dup.ValidationMessage, "#1")

	bad := recordByRow(t, res.Records, 3)
	assert.Equal(t, ratesupload.StatusError, bad.ValidationStatus)
	assert.Contains(t, bad.ValidationMessage, "Row 3: Base Rate")

	first := recordByRow(t, res.Records, 1)
	assert.Equal(t, ratesupload.StatusOK, first.ValidationStatus)

	report := f.commit(t, res.SessionID, "", first.ID)
	assert.Equal(t, 1, report.Created)
	assert.False(t, report.SessionClosed)
	require.Len(t, report.Rows, 1)
	assert.Equal(t, ratesupload.FinalCreated, report.Rows[0].FinalStatus)

	pubs := f.store.Entities(refentity.Publication)
	require.Len(t, pubs, 2)
	assert.Equal(t, "DG", pubs[1].Code)
	assert.Equal(t, "Daily Graphic", pubs[1].Name)
	assert.Len(t, f.store.Entities(refentity.AdCategory), 1)

	rates := f.store.AllRates()
	require.Len(t, rates, 2)
	assert.Equal(t, pubs[1].ID, rates[1].Dependencies.PublicationID)
	assert.True(t, decimal.RequireFromString("1500").Equal(rates[1].BaseRate))
	assert.Equal(t, operator, rates[1].CreatedBy)

	for _, rec := range f.store.Records() {
		if rec.ID == first.ID {
			assert.Equal(t, ratesupload.FinalCreated, rec.FinalStatus)
		} else {
			assert.Equal(t, ratesupload.FinalPending, rec.FinalStatus)
		}
	}

	var actions []string
	for _, e := range f.store.AuditEntries() {
		actions = append(actions, e.EntityType+":"+e.Action)
	}
	assert.Equal(t, []string{"publications:CREATE", "rates:CREATE"}, actions)
}

func TestCommit_FailureRevertsWholeBatch(t *testing.T) {
	f := newFixture(t)
	res := f.stage(t, operator, csvFile(
		"AW,Alpha Weekly,Display,Full Page,Front,Full Color,100,GHS,2024-01-01,2024-12-31,Active,",
		"BD,Bravo Daily,Display,Full Page,Front,Full Color,200,GHS,2024-01-01,2024-12-31,Active,",
		"CP,Charlie Post,Display,Full Page,Front,Full Color,300,GHS,2024-01-01,2024-12-31,Active,",
		"DM,Delta Mirror,Display,Full Page,Front,Full Color,400,GHS,2024-01-01,2024-12-31,Active,",
		"EN,Echo News,Display,Full Page,Front,Full Color,500,GHS,2024-01-01,2024-12-31,Active,",
	))
	require.Equal(t, 5, res.Valid)

	ids := make([]int64, len(res.Records))
	for i, r := range res.Records {
		ids[i] = r.ID
	}

	dbErr := errors.New("connection reset by peer")
	f.store.FailRateInsertAt(3, dbErr)

	report, err := f.svc.Commit(context.Background(), ratesupload.CommitRequest{UserID: operator, SessionID: res.SessionID, RowIDs: ids})
	require.Error(t, err)
	assert.ErrorIs(t, err, ratesupload.ErrCommitFailed)
	assert.ErrorIs(t, err, dbErr)
	require.NotNil(t, report)
	assert.Equal(t, 5, report.Errors)
	assert.Zero(t, report.Created)
	for _, row := range report.Rows {
		assert.Equal(t, ratesupload.FinalError, row.FinalStatus)
		assert.NotZero(t, row.RowNumber)
	}

	assert.Empty(t, f.store.AllRates())
	for _, kind := range refentity.All() {
		assert.Empty(t, f.store.Entities(kind), kind.String())
	}
	assert.Empty(t, f.store.AuditEntries())
	for _, rec := range f.store.Records() {
		assert.Equal(t, ratesupload.FinalPending, rec.FinalStatus)
	}
	assert.True(t, f.store.HasSession(res.SessionID))

	f.store.FailRateInsertAt(0, nil)
	report = f.commit(t, res.SessionID, "", ids...)
	assert.Equal(t, 5, report.Created)
	assert.True(t, report.SessionClosed)
	assert.False(t, f.store.HasSession(res.SessionID))
	assert.Len(t, f.store.AllRates(), 5)
	assert.Len(t, f.store.Entities(refentity.Publication), 5)
	assert.Len(t, f.store.Entities(refentity.AdCategory), 1)
	assert.Len(t, f.store.Entities(refentity.Currency), 1)
}

func TestPurgeExpired_RespectsRetention(t *testing.T) {
	f := newFixture(t)
	old := f.stage(t, operator, csvFile("AW,Alpha Weekly,Display,Full Page,Front,Full Color,100,GHS,2024-01-01,2024-12-31,Active,"))
	fresh := f.stage(t, operator, csvFile(
		"BD,Bravo Daily,Display,Full Page,Front,Full Color,200,GHS,2024-01-01,2024-12-31,Active,",
		"CP,Charlie Post,Display,Full Page,Front,Full Color,300,GHS,2024-01-01,2024-12-31,Active,",
	))
	f.store.SeedRecordAge(old.SessionID, f.now.Add(-49*time.Hour))
	f.store.SeedRecordAge(fresh.SessionID, f.now.Add(-47*time.Hour))

	n, err := f.svc.PurgeExpired(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.False(t, f.store.HasSession(old.SessionID))
	assert.True(t, f.store.HasSession(fresh.SessionID))
	assert.Len(t, f.store.Records(), 2)

	f.store.FailPurge(errors.New("statement timeout"))
	_, err = f.svc.PurgeExpired(context.Background())
	assert.ErrorContains(t, err, "statement timeout")
}

func TestMergeResolution(t *testing.T) {
	f := newFixture(t)
	fullPage := f.store.SeedEntity(refentity.AdSize, "FULL_PAGE", "Full Page")

	res := f.stage(t, operator, csvFile(
		"AW,Alpha Weekly,Display,Full Pages,Front,Full Color,100,GHS,2024-01-01,2024-12-31,Active,",
		"BD,Bravo Daily,Display,Full Pages,Front,Full Color,200,GHS,2024-01-01,2024-12-31,Active,",
		"CP,Charlie Post,Display,Full Pages,Front,Full Color,300,GHS,2024-01-01,2024-12-31,Active,",
	))
	require.Equal(t, 3, res.Warning)

	unresolved := recordByRow(t, res.Records, 1)
	useExisting := recordByRow(t, res.Records, 2)
	createNew := recordByRow(t, res.Records, 3)

	dm, ok := useExisting.Resolution.Dependency(refentity.AdSize)
	require.True(t, ok)
	assert.True(t, dm.Ambiguous)
	require.Len(t, dm.Candidates, 1)
	assert.Equal(t, fullPage.ID, dm.Candidates[0].EntityID)
	assert.InDelta(t, 90.0, dm.Candidates[0].Score, 0.01)
	assert.Contains(t, useExisting.ValidationMessage, "Similar ad size found for 'Full Pages'")

	ctx := context.Background()
	err := f.svc.SetMergeResolution(ctx, operator, res.SessionID, useExisting.ID, ratesupload.MergeResolution{
		refentity.AdSize: {Action: ratesupload.UseExisting},
	})
	assert.ErrorIs(t, err, ratesupload.ErrInvalidResolution)

	err = f.svc.SetMergeResolution(ctx, operator, res.SessionID, useExisting.ID, ratesupload.MergeResolution{
		refentity.AdSize: {Action: ratesupload.UseExisting, EntityID: 999},
	})
	assert.ErrorIs(t, err, ratesupload.ErrInvalidResolution)

	err = f.svc.SetMergeResolution(ctx, operator, res.SessionID, useExisting.ID, ratesupload.MergeResolution{
		refentity.Currency: {Action: ratesupload.CreateNew},
	})
	assert.ErrorIs(t, err, ratesupload.ErrInvalidResolution)

	require.NoError(t, f.svc.SetMergeResolution(ctx, operator, res.SessionID, useExisting.ID, ratesupload.MergeResolution{
		refentity.AdSize: {Action: ratesupload.UseExisting, EntityID: fullPage.ID},
	}))
	require.NoError(t, f.svc.SetMergeResolution(ctx, operator, res.SessionID, createNew.ID, ratesupload.MergeResolution{
		refentity.AdSize: {Action: ratesupload.CreateNew},
	}))

	report := f.commit(t, res.SessionID, "", unresolved.ID, useExisting.ID, createNew.ID)
	assert.Equal(t, 2, report.Created)
	assert.Equal(t, 1, report.Skipped)
	assert.True(t, report.SessionClosed)
	assert.Contains(t, report.Rows[0].Message, "needs a merge resolution")

	for _, pub := range f.store.Entities(refentity.Publication) {
		assert.NotEqual(t, "AW", pub.Code, "skipped row must not create its publication")
	}

	sizes := f.store.Entities(refentity.AdSize)
	require.Len(t, sizes, 2)
	assert.Equal(t, "Full Pages", sizes[1].Name)

	rates := f.store.AllRates()
	require.Len(t, rates, 2)
	assert.Equal(t, fullPage.ID, rates[0].Dependencies.AdSizeID)
	assert.Equal(t, sizes[1].ID, rates[1].Dependencies.AdSizeID)

	err = f.svc.SetMergeResolution(ctx, operator, res.SessionID, useExisting.ID, ratesupload.MergeResolution{
		refentity.AdSize: {Action: ratesupload.CreateNew},
	})
	assert.ErrorIs(t, err, ratesupload.ErrSessionNotFound)
}

func TestStage_PublicationCodeDecidesIdentity(t *testing.T) {
	f := newFixture(t)
	f.store.SeedEntity(refentity.Publication, "DG", "Daily Graphic")

	res := f.stage(t, operator, csvFile(
		"dg,Daily Graphic Group,Display,Full Page,Front,Full Color,100,GHS,2024-01-01,2024-12-31,Active,",
		"DGX,Daily Graphic,Display,Full Page,Front,Full Color,100,GHS,2024-01-01,2024-12-31,Active,",
	))

	byCode := recordByRow(t, res.Records, 1)
	dm, _ := byCode.Resolution.Dependency(refentity.Publication)
	assert.False(t, dm.Ambiguous)
	assert.NotZero(t, dm.ResolvedID)

	otherCode := recordByRow(t, res.Records, 2)
	assert.Equal(t, ratesupload.StatusWarning, otherCode.ValidationStatus)
	dm, _ = otherCode.Resolution.Dependency(refentity.Publication)
	assert.True(t, dm.Ambiguous)
	require.Len(t, dm.Candidates, 1)
	assert.Equal(t, similarity.MatchSimilar, dm.Candidates[0].MatchType)
}

func TestStage_DuplicateInsideFile(t *testing.T) {
	f := newFixture(t)
	res := f.stage(t, operator, csvFile(
		"AW,Alpha Weekly,Display,Full Page,Front,Full Color,100,GHS,2024-01-01,2024-06-30,Active,",
		"aw,Alpha Weekly,display,full page,front,full color,120,GHS,2024-06-30,2024-12-31,Active,",
		"AW,Alpha Weekly,Display,Full Page,Front,Full Color,130,GHS,2024-07-01,2024-12-31,Active,",
	))
	assert.Equal(t, ratesupload.StatusOK, recordByRow(t, res.Records, 1).ValidationStatus)
	second := recordByRow(t, res.Records, 2)
	assert.Equal(t, ratesupload.StatusDuplicate, second.ValidationStatus)
	assert.Equal(t, 1, second.Resolution.ConflictingRow)
	assert.Equal(t, ratesupload.StatusDuplicate, recordByRow(t, res.Records, 3).ValidationStatus)
}

func TestCommit_DuplicateModes(t *testing.T) {
	row := "GT,Ghanaian Times,Display,Full Page,Front,Full Color,1500,GHS,2024-03-01,2024-09-30,Active,renewal"

	t.Run("skip", func(t *testing.T) {
		f := newFixture(t)
		f.seedTuple("1000")
		res := f.stage(t, operator, csvFile(row))
		report := f.commit(t, res.SessionID, ratesupload.DuplicateSkip, res.Records[0].ID)
		assert.Equal(t, 1, report.Skipped)
		assert.Contains(t, report.Rows[0].Message, "overlaps existing rate #1")
		rates := f.store.AllRates()
		require.Len(t, rates, 1)
		assert.True(t, decimal.RequireFromString("1000").Equal(rates[0].BaseRate))
	})

	t.Run("update", func(t *testing.T) {
		f := newFixture(t)
		_, id := f.seedTuple("1000")
		res := f.stage(t, operator, csvFile(row))
		report := f.commit(t, res.SessionID, ratesupload.DuplicateUpdate, res.Records[0].ID)
		assert.Equal(t, 1, report.Updated)
		assert.Equal(t, id, report.Rows[0].RateID)
		rates := f.store.AllRates()
		require.Len(t, rates, 1)
		assert.True(t, decimal.RequireFromString("1500").Equal(rates[0].BaseRate))
		assert.Equal(t, ratesupload.NewDate(2024, 3, 1), rates[0].EffectiveFrom)
		assert.Equal(t, operator, rates[0].UpdatedBy)
		assert.Equal(t, "seed", rates[0].CreatedBy)
	})

	t.Run("update needs a single overlap", func(t *testing.T) {
		f := newFixture(t)
		deps, _ := f.seedTuple("1000")
		f.store.SeedRate(ratesupload.Rate{
			Dependencies:  deps,
			BaseRate:      decimal.RequireFromString("900"),
			EffectiveFrom: ratesupload.NewDate(2024, 9, 1),
			EffectiveTo:   ratesupload.NewDate(2025, 8, 31),
			Status:        ratesupload.RateActive,
		})
		res := f.stage(t, operator, csvFile(row))
		report := f.commit(t, res.SessionID, ratesupload.DuplicateUpdate, res.Records[0].ID)
		assert.Equal(t, 1, report.Skipped)
		assert.Contains(t, report.Rows[0].Message, "overlaps 2 existing rates")
	})

	t.Run("overwrite", func(t *testing.T) {
		f := newFixture(t)
		_, id := f.seedTuple("1000")
		res := f.stage(t, operator, csvFile(row))
		report := f.commit(t, res.SessionID, ratesupload.DuplicateOverwrite, res.Records[0].ID)
		assert.Equal(t, 1, report.Updated)
		rates := f.store.AllRates()
		require.Len(t, rates, 2)
		assert.Equal(t, id, rates[0].ID)
		assert.True(t, rates[0].IsDeleted)
		assert.False(t, rates[1].IsDeleted)
		assert.Equal(t, rates[1].ID, report.Rows[0].RateID)

		var rateActions []string
		for _, e := range f.store.AuditEntries() {
			if e.EntityType == "rates" {
				rateActions = append(rateActions, e.Action)
			}
		}
		assert.Equal(t, []string{constants.AuditActionUpdate, constants.AuditActionCreate}, rateActions)
	})

	t.Run("invalid mode", func(t *testing.T) {
		f := newFixture(t)
		res := f.stage(t, operator, csvFile(row))
		_, err := f.svc.Commit(context.Background(), ratesupload.CommitRequest{
			UserID: operator, SessionID: res.SessionID, RowIDs: []int64{res.Records[0].ID}, Mode: "merge",
		})
		assert.ErrorIs(t, err, ratesupload.ErrInvalidDuplicateMode)
	})
}

func TestCommit_OutOfRangeValuesStayRowLocal(t *testing.T) {
	f := newFixture(t)
	res := f.stage(t, operator, csvFile(
		"DG,Daily Graphic,Display,Full Page,Front,Full Color,1500,GHS,2024-01-01,2024-12-31,Active,",
		"AW,Alpha Weekly,Display,Full Page,Front,Full Color,0.001,GHS,2024-01-01,2024-12-31,Active,",
		"BW,Beta Weekly,Display,Full Page,Front,Full Color,12345678901234.5,GHS,2024-01-01,2024-12-31,Active,",
		strings.Repeat("X", 25)+",Gamma Weekly,Display,Full Page,Front,Full Color,900,GHS,2024-01-01,2024-12-31,Active,",
	))
	assert.Equal(t, 1, res.Valid)
	assert.Equal(t, 3, res.Invalid)

	ids := make([]int64, 0, len(res.Records))
	for _, r := range res.Records {
		ids = append(ids, r.ID)
	}
	report := f.commit(t, res.SessionID, "", ids...)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 3, report.Errors)
	assert.Len(t, f.store.AllRates(), 1)
	assert.Len(t, f.store.Entities(refentity.Publication), 1)
}

func TestCommit_RowStates(t *testing.T) {
	f := newFixture(t)
	res := f.stage(t, operator, csvFile(
		"AW,Alpha Weekly,Display,Full Page,Front,Full Color,abc,GHS,2024-01-01,2024-12-31,Active,",
		"BD,Bravo Daily,Display,Full Page,Front,Full Color,200,GHS,2024-01-01,2024-12-31,Active,",
	))
	bad := recordByRow(t, res.Records, 1)

	report := f.commit(t, res.SessionID, "", bad.ID, bad.ID)
	require.Len(t, report.Rows, 1)
	assert.Equal(t, ratesupload.FinalError, report.Rows[0].FinalStatus)
	assert.Equal(t, constants.MsgRowHasErrors, report.Rows[0].Message)

	report = f.commit(t, res.SessionID, "", bad.ID)
	assert.Equal(t, 1, report.Skipped)
	assert.Contains(t, report.Rows[0].Message, "already processed")

	ctx := context.Background()
	_, err := f.svc.Commit(ctx, ratesupload.CommitRequest{UserID: operator, SessionID: res.SessionID})
	assert.ErrorIs(t, err, ratesupload.ErrNoRowsSelected)

	_, err = f.svc.Commit(ctx, ratesupload.CommitRequest{UserID: operator, SessionID: res.SessionID, RowIDs: []int64{bad.ID, 4242}})
	assert.ErrorIs(t, err, ratesupload.ErrRecordNotFound)
}

func TestSessions_OwnershipAndExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.stage(t, operator, csvFile("AW,Alpha Weekly,Display,Full Page,Front,Full Color,100,GHS,2024-01-01,2024-12-31,Active,"))
	rowID := res.Records[0].ID

	_, err := f.svc.SessionRecords(ctx, "intruder", res.SessionID)
	assert.ErrorIs(t, err, ratesupload.ErrForbidden)
	_, err = f.svc.Commit(ctx, ratesupload.CommitRequest{UserID: "intruder", SessionID: res.SessionID, RowIDs: []int64{rowID}})
	assert.ErrorIs(t, err, ratesupload.ErrForbidden)
	_, err = f.svc.Rollback(ctx, "intruder", res.SessionID)
	assert.ErrorIs(t, err, ratesupload.ErrForbidden)
	_, err = f.svc.SessionRecords(ctx, operator, uuid.New())
	assert.ErrorIs(t, err, ratesupload.ErrSessionNotFound)
	_, err = f.svc.SessionRecords(ctx, "", res.SessionID)
	assert.ErrorIs(t, err, ratesupload.ErrUserRequired)

	sessions, err := f.svc.ListPendingSessions(ctx, operator)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, 1, sessions[0].Pending)
	assert.Equal(t, f.now.Add(48*time.Hour), sessions[0].ExpiresAt)

	others, err := f.svc.ListPendingSessions(ctx, "intruder")
	require.NoError(t, err)
	assert.Empty(t, others)

	f.now = f.now.Add(49 * time.Hour)
	_, err = f.svc.Commit(ctx, ratesupload.CommitRequest{UserID: operator, SessionID: res.SessionID, RowIDs: []int64{rowID}})
	assert.ErrorIs(t, err, ratesupload.ErrSessionExpired)
	sessions, err = f.svc.ListPendingSessions(ctx, operator)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestStage_SameFileReturnsExistingSession(t *testing.T) {
	f := newFixture(t)
	data := csvFile("AW,Alpha Weekly,Display,Full Page,Front,Full Color,100,GHS,2024-01-01,2024-12-31,Active,")

	first := f.stage(t, operator, data)
	again := f.stage(t, operator, data)
	assert.Equal(t, first.SessionID, again.SessionID)
	assert.True(t, again.DuplicateUpload)
	assert.Equal(t, 1, again.Valid)
	assert.Len(t, f.store.Records(), 1)

	other := f.stage(t, "ops-18", data)
	assert.NotEqual(t, first.SessionID, other.SessionID)
	assert.False(t, other.DuplicateUpload)

	f.commit(t, first.SessionID, "", first.Records[0].ID)
	fresh := f.stage(t, operator, data)
	assert.NotEqual(t, first.SessionID, fresh.SessionID)
	assert.Equal(t, ratesupload.StatusDuplicate, fresh.Records[0].ValidationStatus)
}

func TestStage_FileLevelErrorsStageNothing(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.StageUpload(context.Background(), ratesupload.StageRequest{UserID: operator, FileName: "rates.txt", Data: []byte("x")})
	assert.ErrorIs(t, err, ingest.ErrUnsupportedFormat)

	_, err = f.svc.StageUpload(context.Background(), ratesupload.StageRequest{UserID: operator, FileName: "rates.csv", Data: csvFile()})
	assert.ErrorIs(t, err, ingest.ErrNoDataRows)

	_, err = f.svc.StageUpload(context.Background(), ratesupload.StageRequest{FileName: "rates.csv", Data: csvFile()})
	assert.ErrorIs(t, err, ratesupload.ErrUserRequired)

	assert.Empty(t, f.store.Records())
}

func TestRollback(t *testing.T) {
	f := newFixture(t)
	res := f.stage(t, operator, csvFile(
		"AW,Alpha Weekly,Display,Full Page,Front,Full Color,100,GHS,2024-01-01,2024-12-31,Active,",
		"BD,Bravo Daily,Display,Full Page,Front,Full Color,,GHS,2024-01-01,2024-12-31,Active,",
	))

	n, err := f.svc.Rollback(context.Background(), operator, res.SessionID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.False(t, f.store.HasSession(res.SessionID))
	assert.Empty(t, f.store.Records())

	entries := f.store.AuditEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, "rate_upload_sessions", entries[0].EntityType)
	assert.Equal(t, constants.AuditActionDelete, entries[0].Action)
	assert.Empty(t, f.store.AllRates())
}

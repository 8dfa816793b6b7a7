package ratesupload

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// StagingRepository persists upload sessions and their staged rows.
// Implementations join the transaction carried in ctx when there is one.
type StagingRepository interface {
	CreateSession(ctx context.Context, s UploadSession) error
	GetSession(ctx context.Context, id uuid.UUID) (*UploadSession, error)
	// FindSessionByHash returns the user's newest session for the file
	// fingerprint that still has pending rows.
	FindSessionByHash(ctx context.Context, userID, hash string) (*UploadSession, error)
	// InsertRecords returns the generated ids in input order.
	InsertRecords(ctx context.Context, records []StagingRecord) ([]int64, error)
	ListSessionSummaries(ctx context.Context, userID string) ([]SessionSummary, error)
	ListRecords(ctx context.Context, sessionID uuid.UUID) ([]StagingRecord, error)
	GetRecord(ctx context.Context, sessionID uuid.UUID, id int64) (*StagingRecord, error)
	// LockRecords row-locks the selected records for the rest of the
	// transaction and returns them ordered by row number.
	LockRecords(ctx context.Context, sessionID uuid.UUID, ids []int64) ([]StagingRecord, error)
	// UpdateMergeResolution only touches pending rows and reports whether
	// one was updated.
	UpdateMergeResolution(ctx context.Context, sessionID uuid.UUID, id int64, mr MergeResolution) (bool, error)
	UpdateFinalStatus(ctx context.Context, id int64, status FinalStatus, message string) error
	CountPending(ctx context.Context, sessionID uuid.UUID) (int, error)
	// DeleteSession removes the session and its rows, returning the row count.
	DeleteSession(ctx context.Context, sessionID uuid.UUID) (int64, error)
	// PurgeExpired deletes rows created before cutoff, skipping rows locked
	// by an in-flight commit, then drops sessions left empty.
	PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// RateRepository persists final rate rows.
type RateRepository interface {
	// FindOverlapping returns active, non-deleted rates for the dependency
	// tuple whose range overlaps p, ordered by id. Inside a transaction the
	// rows are locked.
	FindOverlapping(ctx context.Context, deps DependencyIDs, p Period) ([]Rate, error)
	// LockTuple serializes writers of the same dependency tuple.
	LockTuple(ctx context.Context, deps DependencyIDs) error
	Insert(ctx context.Context, r Rate) (int64, error)
	Update(ctx context.Context, r Rate) error
	SoftDelete(ctx context.Context, id int64, by string) error
}

package ratesupload

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"SmartAd/api/constants"
	"SmartAd/api/setup/refentity"
	"SmartAd/api/setup/similarity"
)

// Date is a calendar day serialized as YYYY-MM-DD.
type Date struct {
	time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(constants.DateLayout, s)
	if err != nil {
		return Date{}, err
	}
	return Date{t}, nil
}

func (d Date) String() string { return d.Format(constants.DateLayout) }

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

type RateStatus string

const (
	RateActive   RateStatus = "active"
	RateInactive RateStatus = "inactive"
)

// ValidatedRate is one upload row after validation; all strings trimmed.
type ValidatedRate struct {
	PublicationCode string          `json:"publication_code"`
	PublicationName string          `json:"publication_name"`
	AdCategory      string          `json:"ad_category"`
	AdSize          string          `json:"ad_size"`
	PagePosition    string          `json:"page_position"`
	ColorType       string          `json:"color_type"`
	BaseRate        decimal.Decimal `json:"base_rate"`
	Currency        string          `json:"currency"`
	EffectiveFrom   Date            `json:"effective_from"`
	EffectiveTo     Date            `json:"effective_to"`
	Status          RateStatus      `json:"status"`
	Notes           string          `json:"notes,omitempty"`
}

// DependencyFields returns the lookup/create values for each reference kind.
func (v ValidatedRate) DependencyFields(kind refentity.Kind) refentity.Fields {
	switch kind {
	case refentity.Publication:
		return refentity.Fields{Code: v.PublicationCode, Name: v.PublicationName}
	case refentity.AdCategory:
		return refentity.Fields{Name: v.AdCategory}
	case refentity.AdSize:
		return refentity.Fields{Name: v.AdSize}
	case refentity.PagePosition:
		return refentity.Fields{Name: v.PagePosition}
	case refentity.ColorType:
		return refentity.Fields{Name: v.ColorType}
	case refentity.Currency:
		return refentity.Fields{Code: v.Currency, Name: v.Currency}
	}
	return refentity.Fields{}
}

// DependencyName is the human-entered name fuzzy matched for kind.
func (v ValidatedRate) DependencyName(kind refentity.Kind) string {
	return v.DependencyFields(kind).Name
}

// Period is the inclusive effective range.
func (v ValidatedRate) Period() Period {
	return Period{From: v.EffectiveFrom, To: v.EffectiveTo}
}

type Period struct {
	From Date
	To   Date
}

// Overlaps uses inclusive bounds: ranges sharing a single day overlap.
func (p Period) Overlaps(o Period) bool {
	return !p.From.After(o.To.Time) && !o.From.After(p.To.Time)
}

// FieldError is one row-local validation failure.
type FieldError struct {
	Row    int    `json:"row"`
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e FieldError) Error() string {
	return constants.FormatRowError(e.Row, constants.FormatFieldError(e.Field, e.Reason))
}

// ValidationOutcome is Valid when Rate is set and Errors is empty.
type ValidationOutcome struct {
	RowNumber int
	Rate      *ValidatedRate
	Errors    []FieldError
}

func (o ValidationOutcome) Valid() bool { return o.Rate != nil && len(o.Errors) == 0 }

// Messages renders the accumulated errors.
func (o ValidationOutcome) Messages() []string {
	out := make([]string, len(o.Errors))
	for i, e := range o.Errors {
		out[i] = e.Error()
	}
	return out
}

type ValidationStatus string

const (
	StatusOK        ValidationStatus = "ok"
	StatusWarning   ValidationStatus = "warning"
	StatusDuplicate ValidationStatus = "duplicate"
	StatusError     ValidationStatus = "error"
)

type FinalStatus string

const (
	FinalPending FinalStatus = "pending"
	FinalCreated FinalStatus = "created"
	FinalUpdated FinalStatus = "updated"
	FinalSkipped FinalStatus = "skipped"
	FinalError   FinalStatus = "error"
)

// DependencyMatch is the resolver's finding for one dependency of a row.
type DependencyMatch struct {
	Kind       refentity.Kind     `json:"kind"`
	Input      string             `json:"input"`
	ResolvedID int64              `json:"resolved_id,omitempty"`
	Ambiguous  bool               `json:"ambiguous"`
	Candidates []similarity.Match `json:"candidates,omitempty"`
}

// ResolutionResult is what the resolver concluded for a valid row.
type ResolutionResult struct {
	Status            ValidationStatus  `json:"validation_status"`
	Messages          []string          `json:"messages,omitempty"`
	Dependencies      []DependencyMatch `json:"dependencies"`
	ConflictingRateID int64             `json:"conflicting_rate_id,omitempty"`
	ConflictingRow    int               `json:"conflicting_row,omitempty"`
}

func (r ResolutionResult) Message() string {
	return strings.Join(r.Messages, "; ")
}

// Dependency returns the match for kind, if the resolver recorded one.
func (r ResolutionResult) Dependency(kind refentity.Kind) (DependencyMatch, bool) {
	for _, d := range r.Dependencies {
		if d.Kind == kind {
			return d, true
		}
	}
	return DependencyMatch{}, false
}

type MergeAction string

const (
	UseExisting MergeAction = "use_existing"
	CreateNew   MergeAction = "create_new"
)

type MergeChoice struct {
	Action   MergeAction `json:"action" validate:"required,oneof=use_existing create_new"`
	EntityID int64       `json:"entity_id,omitempty"`
}

func (c MergeChoice) Validate(kind refentity.Kind) error {
	switch c.Action {
	case UseExisting:
		if c.EntityID <= 0 {
			return fmt.Errorf("%w: %s", ErrInvalidResolution, constants.FormatError(constants.ErrInvalidResolution, kind.Label()))
		}
	case CreateNew:
		if c.EntityID != 0 {
			return fmt.Errorf("%w: %s", ErrInvalidResolution, constants.FormatError(constants.ErrInvalidResolution, kind.Label()))
		}
	default:
		return fmt.Errorf("%w: %s", ErrInvalidResolution, constants.FormatError(constants.ErrInvalidResolution, kind.Label()))
	}
	return nil
}

// MergeResolution holds the operator's choice per ambiguous dependency.
type MergeResolution map[refentity.Kind]MergeChoice

type UploadSession struct {
	ID        uuid.UUID `json:"session_id"`
	UserID    string    `json:"user_id"`
	FileName  string    `json:"file_name"`
	FileHash  string    `json:"file_hash"`
	TotalRows int       `json:"total_rows"`
	CreatedAt time.Time `json:"created_at"`
}

// StagingRecord is the durable per-row unit of the pipeline.
type StagingRecord struct {
	ID                int64             `json:"id"`
	SessionID         uuid.UUID         `json:"upload_session_id"`
	UserID            string            `json:"user_id"`
	RowNumber         int               `json:"row_number"`
	RawData           json.RawMessage   `json:"raw_data"`
	ValidationStatus  ValidationStatus  `json:"validation_status"`
	ValidationMessage string            `json:"validation_message"`
	Resolution        *ResolutionResult `json:"resolution,omitempty"`
	MergeResolution   MergeResolution   `json:"merge_resolution,omitempty"`
	FinalStatus       FinalStatus       `json:"final_status"`
	FinalMessage      string            `json:"final_message,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
}

// Rate decodes RawData when the row passed validation.
func (r StagingRecord) Rate() (*ValidatedRate, error) {
	if r.ValidationStatus == StatusError {
		return nil, nil
	}
	var v ValidatedRate
	if err := json.Unmarshal(r.RawData, &v); err != nil {
		return nil, fmt.Errorf("decode staged row %d: %w", r.RowNumber, err)
	}
	return &v, nil
}

type SessionSummary struct {
	SessionID uuid.UUID `json:"session_id"`
	FileName  string    `json:"file_name"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Total     int       `json:"total"`
	OK        int       `json:"ok"`
	Warning   int       `json:"warning"`
	Duplicate int       `json:"duplicate"`
	Error     int       `json:"error"`
	Pending   int       `json:"pending"`
}

// StageResult is the immediate feedback for an upload.
type StageResult struct {
	SessionID       uuid.UUID       `json:"session_id"`
	DuplicateUpload bool            `json:"duplicate_upload"`
	Total           int             `json:"total"`
	Valid           int             `json:"valid"`
	OK              int             `json:"ok"`
	Warning         int             `json:"warning"`
	Duplicate       int             `json:"duplicate"`
	Invalid         int             `json:"invalid"`
	Records         []StagingRecord `json:"records,omitempty"`
}

func (s *StageResult) count(status ValidationStatus) {
	s.Total++
	switch status {
	case StatusOK:
		s.OK++
		s.Valid++
	case StatusWarning:
		s.Warning++
		s.Valid++
	case StatusDuplicate:
		s.Duplicate++
	case StatusError:
		s.Invalid++
	}
}

type DuplicateMode string

const (
	DuplicateSkip      DuplicateMode = "skip"
	DuplicateUpdate    DuplicateMode = "update"
	DuplicateOverwrite DuplicateMode = "overwrite"
)

// ParseDuplicateMode defaults an empty value to skip.
func ParseDuplicateMode(s string) (DuplicateMode, error) {
	switch DuplicateMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", DuplicateSkip:
		return DuplicateSkip, nil
	case DuplicateUpdate:
		return DuplicateUpdate, nil
	case DuplicateOverwrite:
		return DuplicateOverwrite, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDuplicateMode, s)
}

type RowOutcome struct {
	RowID       int64       `json:"row_id"`
	RowNumber   int         `json:"row_number"`
	FinalStatus FinalStatus `json:"final_status"`
	Message     string      `json:"message,omitempty"`
	RateID      int64       `json:"rate_id,omitempty"`
}

type CommitReport struct {
	SessionID     uuid.UUID    `json:"session_id"`
	Created       int          `json:"created"`
	Updated       int          `json:"updated"`
	Skipped       int          `json:"skipped"`
	Errors        int          `json:"errors"`
	SessionClosed bool         `json:"session_closed"`
	Rows          []RowOutcome `json:"rows"`
}

func (r *CommitReport) add(o RowOutcome) {
	switch o.FinalStatus {
	case FinalCreated:
		r.Created++
	case FinalUpdated:
		r.Updated++
	case FinalSkipped:
		r.Skipped++
	case FinalError:
		r.Errors++
	}
	r.Rows = append(r.Rows, o)
}

// DependencyIDs are the resolved foreign keys of a rate.
type DependencyIDs struct {
	PublicationID  int64 `json:"publication_id"`
	AdCategoryID   int64 `json:"ad_category_id"`
	AdSizeID       int64 `json:"ad_size_id"`
	PagePositionID int64 `json:"page_position_id"`
	ColorTypeID    int64 `json:"color_type_id"`
}

func (d *DependencyIDs) Set(kind refentity.Kind, id int64) {
	switch kind {
	case refentity.Publication:
		d.PublicationID = id
	case refentity.AdCategory:
		d.AdCategoryID = id
	case refentity.AdSize:
		d.AdSizeID = id
	case refentity.PagePosition:
		d.PagePositionID = id
	case refentity.ColorType:
		d.ColorTypeID = id
	}
}

// Rate is a persisted rate row.
type Rate struct {
	ID            int64           `json:"id"`
	Dependencies  DependencyIDs   `json:"dependencies"`
	BaseRate      decimal.Decimal `json:"base_rate"`
	CurrencyID    int64           `json:"currency_id"`
	EffectiveFrom Date            `json:"effective_from"`
	EffectiveTo   Date            `json:"effective_to"`
	Status        RateStatus      `json:"status"`
	Notes         string          `json:"notes,omitempty"`
	IsDeleted     bool            `json:"is_deleted"`
	CreatedBy     string          `json:"created_by"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedBy     string          `json:"updated_by,omitempty"`
	UpdatedAt     *time.Time      `json:"updated_at,omitempty"`
}

func (r Rate) Period() Period {
	return Period{From: r.EffectiveFrom, To: r.EffectiveTo}
}

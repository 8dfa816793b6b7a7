package ratesupload

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SmartAd/api/constants"
	"SmartAd/api/setup/ingest"
)

func validCells() []string {
	return []string{"dg", " Daily  Graphic ", "Display", "Full Page", "Front", "Full Color", "1500.50", "ghs", "2024-01-01", "2024-12-31", "ACTIVE", " launch "}
}

func row(n int, cells []string) ingest.RawRow {
	return ingest.RawRow{Number: n, Cells: cells}
}

func TestValidator_ValidRowIsNormalized(t *testing.T) {
	out := NewValidator().Validate(row(1, validCells()))

	require.True(t, out.Valid(), out.Messages())
	r := out.Rate
	assert.Equal(t, "DG", r.PublicationCode)
	assert.Equal(t, "Daily Graphic", r.PublicationName)
	assert.True(t, decimal.RequireFromString("1500.50").Equal(r.BaseRate))
	assert.Equal(t, "GHS", r.Currency)
	assert.Equal(t, NewDate(2024, 1, 1), r.EffectiveFrom)
	assert.Equal(t, NewDate(2024, 12, 31), r.EffectiveTo)
	assert.Equal(t, RateActive, r.Status)
	assert.Equal(t, "launch", r.Notes)
}

func TestValidator_NotesOptional(t *testing.T) {
	cells := validCells()[:11]
	out := NewValidator().Validate(row(4, cells))
	require.True(t, out.Valid())
	assert.Empty(t, out.Rate.Notes)
}

func TestValidator_AccumulatesMissingFields(t *testing.T) {
	cells := validCells()
	cells[2] = ""
	cells[7] = "   "

	out := NewValidator().Validate(row(5, cells))

	require.False(t, out.Valid())
	require.Len(t, out.Errors, 2)
	assert.Equal(t, constants.HeaderAdCategory, out.Errors[0].Field)
	assert.Equal(t, constants.HeaderCurrency, out.Errors[1].Field)
	assert.Equal(t, "Row 5: Ad Category is required", out.Errors[0].Error())
	assert.Equal(t, "Row 5: Currency is required", out.Errors[1].Error())
}

func TestValidator_ShortRowReportsEveryMissingColumn(t *testing.T) {
	out := NewValidator().Validate(row(2, []string{"DG", "Daily Graphic"}))
	assert.Len(t, out.Errors, 9)
}

func TestValidator_FieldChecks(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c []string)
		field  string
		reason string
	}{
		{"non numeric rate", func(c []string) { c[6] = "abc" }, constants.HeaderBaseRate, constants.ErrInvalidBaseRate},
		{"zero rate", func(c []string) { c[6] = "0" }, constants.HeaderBaseRate, constants.ErrNonPositiveBaseRate},
		{"negative rate", func(c []string) { c[6] = "-10" }, constants.HeaderBaseRate, constants.ErrNonPositiveBaseRate},
		{"locale date", func(c []string) { c[8] = "01/02/2024" }, constants.HeaderEffectiveFrom, "Invalid date format for '01/02/2024'. Expected format: YYYY-MM-DD"},
		{"impossible date", func(c []string) { c[9] = "2024-02-30" }, constants.HeaderEffectiveTo, "Invalid date format for '2024-02-30'. Expected format: YYYY-MM-DD"},
		{"unpadded date", func(c []string) { c[9] = "2024-1-5" }, constants.HeaderEffectiveTo, "Invalid date format for '2024-1-5'. Expected format: YYYY-MM-DD"},
		{"reversed range", func(c []string) { c[8], c[9] = "2024-12-31", "2024-01-01" }, constants.HeaderEffectiveFrom, "must not be after Effective To"},
		{"bad status", func(c []string) { c[10] = "Pending" }, constants.HeaderStatus, constants.ErrInvalidStatus},
		{"bad currency", func(c []string) { c[7] = "CEDI" }, constants.HeaderCurrency, constants.ErrInvalidCurrencyCode},
		{"sub cent rate", func(c []string) { c[6] = "0.001" }, constants.HeaderBaseRate, "must have at most 2 decimal places"},
		{"rate rounding away", func(c []string) { c[6] = "100.005" }, constants.HeaderBaseRate, "must have at most 2 decimal places"},
		{"rate overflow", func(c []string) { c[6] = "12345678901234.5" }, constants.HeaderBaseRate, "must have at most 12 digits before the decimal point"},
		{"long publication code", func(c []string) { c[0] = strings.Repeat("X", 25) }, constants.HeaderPublicationCode, "must be at most 20 characters"},
		{"long publication name", func(c []string) { c[1] = strings.Repeat("n", 250) }, constants.HeaderPublicationName, "must be at most 200 characters"},
		{"long ad size", func(c []string) { c[3] = strings.Repeat("s", 201) }, constants.HeaderAdSize, "must be at most 200 characters"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cells := validCells()
			tt.mutate(cells)
			out := NewValidator().Validate(row(3, cells))

			require.False(t, out.Valid())
			require.Len(t, out.Errors, 1)
			assert.Equal(t, tt.field, out.Errors[0].Field)
			assert.Equal(t, tt.reason, out.Errors[0].Reason)
			assert.Equal(t, 3, out.Errors[0].Row)
		})
	}
}

func TestValidator_BaseRateAtStorageLimits(t *testing.T) {
	for _, v := range []string{"999999999999.99", "0.01", "1500.500"} {
		cells := validCells()
		cells[6] = v
		out := NewValidator().Validate(row(1, cells))
		require.True(t, out.Valid(), v)
		assert.True(t, decimal.RequireFromString(v).Equal(out.Rate.BaseRate), v)
	}

	cells := validCells()
	cells[0] = strings.Repeat("X", 20)
	cells[1] = strings.Repeat("é", 200)
	assert.True(t, NewValidator().Validate(row(1, cells)).Valid())
}

// Effective dates are calendar days; they carry no zone offset that could
// shift them when compared with stored DATE values.
func TestValidator_DatesAreCalendarDays(t *testing.T) {
	out := NewValidator().Validate(row(1, validCells()))
	require.True(t, out.Valid())
	assert.Equal(t, time.UTC, out.Rate.EffectiveFrom.Location())
	assert.Equal(t, "2024-01-01", out.Rate.EffectiveFrom.String())
	assert.True(t, out.Rate.EffectiveFrom.Equal(NewDate(2024, 1, 1).Time))
}

func TestValidator_SameDayRangeIsValid(t *testing.T) {
	cells := validCells()
	cells[8], cells[9] = "2024-03-01", "2024-03-01"
	assert.True(t, NewValidator().Validate(row(1, cells)).Valid())
}

func TestValidator_StatusCaseInsensitive(t *testing.T) {
	for _, s := range []string{"Active", "active", "INACTIVE", "Inactive"} {
		cells := validCells()
		cells[10] = s
		out := NewValidator().Validate(row(1, cells))
		require.True(t, out.Valid(), s)
		assert.Contains(t, []RateStatus{RateActive, RateInactive}, out.Rate.Status)
	}
}

func TestPeriod_Overlaps(t *testing.T) {
	tests := []struct {
		name string
		a, b Period
		want bool
	}{
		{"shared boundary day", Period{NewDate(2024, 1, 1), NewDate(2024, 6, 30)}, Period{NewDate(2024, 6, 30), NewDate(2024, 12, 31)}, true},
		{"adjacent quarters", Period{NewDate(2024, 1, 1), NewDate(2024, 3, 31)}, Period{NewDate(2024, 4, 1), NewDate(2024, 12, 31)}, false},
		{"contained", Period{NewDate(2024, 1, 1), NewDate(2024, 12, 31)}, Period{NewDate(2024, 5, 1), NewDate(2024, 5, 2)}, true},
		{"disjoint reversed order", Period{NewDate(2025, 1, 1), NewDate(2025, 2, 1)}, Period{NewDate(2024, 1, 1), NewDate(2024, 2, 1)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Overlaps(tt.b))
			assert.Equal(t, tt.want, tt.b.Overlaps(tt.a))
		})
	}
}

package ratesupload

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"SmartAd/api/constants"
	"SmartAd/api/setup/ingest"
)

// Column positions in an upload row.
const (
	colPublicationCode = iota
	colPublicationName
	colAdCategory
	colAdSize
	colPagePosition
	colColorType
	colBaseRate
	colCurrency
	colEffectiveFrom
	colEffectiveTo
	colStatus
	colNotes

	requiredColumns = colStatus + 1
)

// Storage limits of the reference and rate columns.
const (
	maxCodeLength     = 20
	maxNameLength     = 200
	baseRateScale     = 2
	baseRateIntDigits = 12
)

var maxBaseRate = decimal.New(1, baseRateIntDigits)

var (
	strictDate   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	currencyCode = regexp.MustCompile(`^[A-Za-z]{3}$`)
)

// Validator checks one raw row. It never stops at the first problem: every
// failing field contributes its own FieldError.
type Validator struct{}

func NewValidator() *Validator { return &Validator{} }

func (v *Validator) Validate(row ingest.RawRow) ValidationOutcome {
	out := ValidationOutcome{RowNumber: row.Number}
	fail := func(field, reason string) {
		out.Errors = append(out.Errors, FieldError{Row: row.Number, Field: field, Reason: reason})
	}

	for i := 0; i < requiredColumns; i++ {
		if row.Cell(i) == "" {
			fail(constants.RateUploadHeaders[i], "is required")
		}
	}

	rate := ValidatedRate{
		PublicationCode: strings.ToUpper(row.Cell(colPublicationCode)),
		PublicationName: collapseSpaces(row.Cell(colPublicationName)),
		AdCategory:      collapseSpaces(row.Cell(colAdCategory)),
		AdSize:          collapseSpaces(row.Cell(colAdSize)),
		PagePosition:    collapseSpaces(row.Cell(colPagePosition)),
		ColorType:       collapseSpaces(row.Cell(colColorType)),
		Currency:        strings.ToUpper(row.Cell(colCurrency)),
		Notes:           row.Cell(colNotes),
	}

	if raw := row.Cell(colBaseRate); raw != "" {
		amount, err := decimal.NewFromString(raw)
		switch {
		case err != nil:
			fail(constants.HeaderBaseRate, constants.ErrInvalidBaseRate)
		case !amount.IsPositive():
			fail(constants.HeaderBaseRate, constants.ErrNonPositiveBaseRate)
		case !amount.Equal(amount.Truncate(baseRateScale)):
			fail(constants.HeaderBaseRate, constants.FormatError(constants.ErrBaseRatePrecision, baseRateScale))
		case amount.GreaterThanOrEqual(maxBaseRate):
			fail(constants.HeaderBaseRate, constants.FormatError(constants.ErrBaseRateTooLarge, baseRateIntDigits))
		default:
			rate.BaseRate = amount
		}
	}

	checkLength := func(field, value string, max int) {
		if utf8.RuneCountInString(value) > max {
			fail(field, constants.FormatError(constants.ErrFieldTooLong, max))
		}
	}
	checkLength(constants.HeaderPublicationCode, rate.PublicationCode, maxCodeLength)
	checkLength(constants.HeaderPublicationName, rate.PublicationName, maxNameLength)
	checkLength(constants.HeaderAdCategory, rate.AdCategory, maxNameLength)
	checkLength(constants.HeaderAdSize, rate.AdSize, maxNameLength)
	checkLength(constants.HeaderPagePosition, rate.PagePosition, maxNameLength)
	checkLength(constants.HeaderColorType, rate.ColorType, maxNameLength)

	if rate.Currency != "" && !currencyCode.MatchString(rate.Currency) {
		fail(constants.HeaderCurrency, constants.ErrInvalidCurrencyCode)
	}

	from, fromOK := parseStrictDate(row.Cell(colEffectiveFrom))
	if !fromOK && row.Cell(colEffectiveFrom) != "" {
		fail(constants.HeaderEffectiveFrom, constants.FormatError(constants.ErrInvalidDateFormat, row.Cell(colEffectiveFrom)))
	}
	to, toOK := parseStrictDate(row.Cell(colEffectiveTo))
	if !toOK && row.Cell(colEffectiveTo) != "" {
		fail(constants.HeaderEffectiveTo, constants.FormatError(constants.ErrInvalidDateFormat, row.Cell(colEffectiveTo)))
	}
	if fromOK && toOK {
		if from.After(to.Time) {
			fail(constants.HeaderEffectiveFrom, constants.FormatError(constants.ErrInvalidDateRange, constants.HeaderEffectiveTo))
		}
		rate.EffectiveFrom, rate.EffectiveTo = from, to
	}

	if raw := row.Cell(colStatus); raw != "" {
		switch strings.ToLower(raw) {
		case string(RateActive):
			rate.Status = RateActive
		case string(RateInactive):
			rate.Status = RateInactive
		default:
			fail(constants.HeaderStatus, constants.ErrInvalidStatus)
		}
	}

	if len(out.Errors) == 0 {
		out.Rate = &rate
	}
	return out
}

func parseStrictDate(s string) (Date, bool) {
	if !strictDate.MatchString(s) {
		return Date{}, false
	}
	d, err := ParseDate(s)
	if err != nil {
		return Date{}, false
	}
	return d, true
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

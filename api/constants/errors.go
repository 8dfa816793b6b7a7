package constants

import "fmt"

// ============================================================================
// FILE UPLOAD ERRORS
// ============================================================================

const (
	ErrFileRequired         = "file is required"
	ErrFileTooLarge         = "uploaded file exceeds the %d MB limit"
	ErrUnsupportedFormat    = "unsupported format: %s (expected .csv, .xlsx or .xls)"
	ErrEmptyFile            = "uploaded file is empty"
	ErrNoDataRows           = "uploaded file has no data rows"
	ErrUnreadableFile       = "failed to read %s file: %v"
	ErrInvalidDataRow       = "Row %d: %s"
	ErrInvalidFieldValue    = "%s %s"
	ErrMissingRequiredField = "%s is required"
)

// ============================================================================
// ROW VALIDATION ERRORS
// ============================================================================

const (
	ErrInvalidBaseRate     = "must be a number"
	ErrNonPositiveBaseRate = "must be greater than zero"
	ErrBaseRatePrecision   = "must have at most %d decimal places"
	ErrBaseRateTooLarge    = "must have at most %d digits before the decimal point"
	ErrFieldTooLong        = "must be at most %d characters"
	ErrInvalidDateFormat   = "Invalid date format for '%s'. Expected format: YYYY-MM-DD"
	ErrInvalidDateRange    = "must not be after %s"
	ErrInvalidStatus       = "must be Active or Inactive"
	ErrInvalidCurrencyCode = "must be a 3-letter currency code"
)

// ============================================================================
// RESOLUTION MESSAGES
// ============================================================================

const (
	MsgDuplicateRate        = "Duplicate of existing rate #%d (%s to %s)"
	MsgDuplicateInUpload    = "Duplicate of row %d in this upload (%s to %s)"
	MsgSimilarDependency    = "Similar %s found for '%s': %s"
	MsgSimilarCandidate     = "'%s' (%.1f%%)"
	MsgUpdateAmbiguous      = "skipped: overlaps %d existing rates, update needs exactly one"
	MsgUnresolvedDependency = "%s '%s' needs a merge resolution before commit"
	MsgRowHasErrors         = "row failed validation and cannot be committed"
	MsgRowAlreadyFinal      = "row already processed (%s)"
	MsgSkippedDuplicate     = "skipped: overlaps existing rate #%d"
	MsgUpdatedRate          = "updated existing rate #%d"
	MsgOverwroteRate        = "replaced rate #%d with #%d"
	MsgCreatedRate          = "created rate #%d"
)

// ============================================================================
// SESSION / COMMIT ERRORS
// ============================================================================

const (
	ErrSessionNotFound      = "upload session not found"
	ErrSessionExpired       = "upload session has expired"
	ErrSessionForbidden     = "upload session belongs to another user"
	ErrRecordNotFound       = "staging row not found in this session"
	ErrRecordFinalized      = "staging row is no longer pending"
	ErrNoRowsSelected       = "no rows selected for commit"
	ErrInvalidDuplicateMode = "duplicate_mode must be skip, update or overwrite"
	ErrInvalidResolution    = "invalid merge resolution for %s"
	ErrUnknownEntityKind    = "unknown reference entity type: %s"
)

// ============================================================================
// SUCCESS MESSAGES
// ============================================================================

const (
	SuccessStaged     = "File staged successfully. %d rows processed"
	SuccessCommitted  = "Commit finished: %d created, %d updated, %d skipped, %d errors"
	SuccessRolledBack = "Upload discarded. %d staging rows removed"
	SuccessPurged     = "Purged %d expired staging rows"
)

// ============================================================================
// HELPER FUNCTIONS TO FORMAT ERRORS WITH CONTEXT
// ============================================================================

// FormatError formats an error message with additional context
func FormatError(baseError string, context ...interface{}) string {
	if len(context) == 0 {
		return baseError
	}
	return fmt.Sprintf(baseError, context...)
}

// FormatRowError formats an error for a specific data row
func FormatRowError(rowNum int, reason string) string {
	return fmt.Sprintf(ErrInvalidDataRow, rowNum, reason)
}

// FormatFieldError formats an error for a specific field
func FormatFieldError(fieldName string, reason string) string {
	return fmt.Sprintf(ErrInvalidFieldValue, fieldName, reason)
}

// FormatMissingFieldError formats a missing field error
func FormatMissingFieldError(fieldName string) string {
	return fmt.Sprintf(ErrMissingRequiredField, fieldName)
}

package constants

// Common request errors
const (
	ErrInvalidJSON         = "invalid json or missing fields"
	ErrInvalidJSONRequired = "invalid json or missing required fields"
	ErrUserIDRequired      = "user_id required"
	ErrDB                  = "DB error"
	ErrInvalidRequestBody  = "Invalid request body"
	ErrMethodNotAllowed    = "Method Not Allowed"
	ErrFailedToParseForm   = "Failed to parse multipart form"
	ErrNoFileUploaded      = "No file uploaded"
	ErrFailedToOpenFile    = "Failed to open uploaded file"
	ErrInvalidSessionID    = "invalid session_id"
	ErrInvalidRowID        = "invalid row_id"
	ErrInternal            = "internal server error"
)

// Request keys
const (
	KeyUserID     = "user_id"
	KeyFile       = "file"
	KeySessionID  = "session_id"
	KeyRowID      = "row_id"
	KeyKind       = "kind"
	KeyQuery      = "q"
	KeyFormat     = "format"
	HeaderUserID  = "X-User-ID"
	DefaultSearch = 20
)

// DB / SQL error templates
const (
	ErrTxStartFailed  = "failed to start transaction: "
	ErrTxCommitFailed = "failed to commit transaction: "
	ErrQueryFailed    = "query failed: "
)

// Content Types
const (
	ContentTypeJSON = "application/json"
	ContentTypeText = "Content-Type"
	ContentTypeCSV  = "text/csv"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Audit actions written to setup_audit_log
const (
	AuditActionCreate = "CREATE"
	AuditActionUpdate = "UPDATE"
	AuditActionDelete = "DELETE"
)

// Rate upload column headers, in file order
const (
	HeaderPublicationCode = "Publication Code"
	HeaderPublicationName = "Publication Name"
	HeaderAdCategory      = "Ad Category"
	HeaderAdSize          = "Ad Size"
	HeaderPagePosition    = "Page Position"
	HeaderColorType       = "Color Type"
	HeaderBaseRate        = "Base Rate"
	HeaderCurrency        = "Currency"
	HeaderEffectiveFrom   = "Effective From"
	HeaderEffectiveTo     = "Effective To"
	HeaderStatus          = "Status"
	HeaderNotes           = "Notes"
)

// RateUploadHeaders lists the rate upload columns by position.
var RateUploadHeaders = []string{
	HeaderPublicationCode,
	HeaderPublicationName,
	HeaderAdCategory,
	HeaderAdSize,
	HeaderPagePosition,
	HeaderColorType,
	HeaderBaseRate,
	HeaderCurrency,
	HeaderEffectiveFrom,
	HeaderEffectiveTo,
	HeaderStatus,
	HeaderNotes,
}

// DateLayout is the only date layout accepted in uploaded files.
const DateLayout = "2006-01-02"

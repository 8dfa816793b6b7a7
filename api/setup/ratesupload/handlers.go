package ratesupload

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"SmartAd/api"
	"SmartAd/api/constants"
	"SmartAd/api/setup/ingest"
	"SmartAd/api/setup/refentity"
	"SmartAd/api/utils"
	"SmartAd/internal/logger"
)

type resolutionRequest struct {
	UserID      string                         `json:"user_id"`
	Resolutions map[refentity.Kind]MergeChoice `json:"resolutions" validate:"required,min=1,dive"`
}

type commitRequest struct {
	UserID        string  `json:"user_id"`
	RowIDs        []int64 `json:"row_ids" validate:"required,min=1,dive,gt=0"`
	DuplicateMode string  `json:"duplicate_mode" validate:"omitempty,oneof=skip update overwrite"`
}

// UploadRates stages a multipart "file" upload for review.
func UploadRates(svc *Service, maxUploadMB int) http.HandlerFunc {
	maxBytes := int64(maxUploadMB) << 20
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes+(1<<20))
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				api.RespondWithError(w, http.StatusRequestEntityTooLarge, constants.FormatError(constants.ErrFileTooLarge, maxUploadMB))
				return
			}
			api.RespondWithError(w, http.StatusBadRequest, constants.ErrFailedToParseForm)
			return
		}
		userID := api.RequestUserID(r)
		if userID == "" {
			api.RespondWithError(w, http.StatusBadRequest, constants.ErrUserIDRequired)
			return
		}

		file, header, err := r.FormFile(constants.KeyFile)
		if err != nil {
			api.RespondWithError(w, http.StatusBadRequest, constants.ErrNoFileUploaded)
			return
		}
		defer file.Close()
		if header.Size > maxBytes {
			api.RespondWithError(w, http.StatusRequestEntityTooLarge, constants.FormatError(constants.ErrFileTooLarge, maxUploadMB))
			return
		}
		data, err := io.ReadAll(file)
		if err != nil {
			api.RespondWithError(w, http.StatusBadRequest, constants.ErrFailedToOpenFile)
			return
		}

		result, err := svc.StageUpload(r.Context(), StageRequest{UserID: userID, FileName: header.Filename, Data: data})
		if err != nil {
			respondWithServiceError(w, err)
			return
		}
		status := http.StatusCreated
		if result.DuplicateUpload {
			status = http.StatusOK
		}
		api.RespondWithMessage(w, status, constants.FormatError(constants.SuccessStaged, result.Total), result)
	}
}

// ListSessions returns the caller's sessions that still have pending rows.
func ListSessions(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions, err := svc.ListPendingSessions(r.Context(), api.RequestUserID(r))
		if err != nil {
			respondWithServiceError(w, err)
			return
		}
		api.RespondWithPayload(w, true, "", sessions)
	}
}

// SessionRecords returns the staged rows of one session, optionally paged
// with page and limit.
func SessionRecords(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := sessionIDVar(w, r)
		if !ok {
			return
		}
		page, paged, err := utils.ExtractPagination(r)
		if err != nil {
			api.RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		records, err := svc.SessionRecords(r.Context(), api.RequestUserID(r), sessionID)
		if err != nil {
			respondWithServiceError(w, err)
			return
		}
		if paged {
			records = utils.Paginate(records, &page)
			page.WriteHeaders(w)
		}
		api.RespondWithPayload(w, true, "", records)
	}
}

// SetResolution stores the operator's merge choices for one row.
func SetResolution(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := sessionIDVar(w, r)
		if !ok {
			return
		}
		rowID, err := strconv.ParseInt(mux.Vars(r)[constants.KeyRowID], 10, 64)
		if err != nil || rowID <= 0 {
			api.RespondWithError(w, http.StatusBadRequest, constants.ErrInvalidRowID)
			return
		}
		userID := api.RequestUserID(r)
		var req resolutionRequest
		if err := api.DecodeJSON(r, &req); err != nil {
			api.RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		if userID == "" {
			userID = req.UserID
		}
		if err := svc.SetMergeResolution(r.Context(), userID, sessionID, rowID, req.Resolutions); err != nil {
			respondWithServiceError(w, err)
			return
		}
		api.RespondWithResult(w, true, "")
	}
}

// CommitRows promotes the selected rows into live rates.
func CommitRows(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := sessionIDVar(w, r)
		if !ok {
			return
		}
		userID := api.RequestUserID(r)
		var req commitRequest
		if err := api.DecodeJSON(r, &req); err != nil {
			api.RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		if userID == "" {
			userID = req.UserID
		}
		mode, err := ParseDuplicateMode(req.DuplicateMode)
		if err != nil {
			respondWithServiceError(w, err)
			return
		}

		report, err := svc.Commit(r.Context(), CommitRequest{UserID: userID, SessionID: sessionID, RowIDs: req.RowIDs, Mode: mode})
		if err != nil {
			if errors.Is(err, ErrCommitFailed) && report != nil {
				api.RespondWithErrorPayload(w, http.StatusInternalServerError, err.Error(), report)
				return
			}
			respondWithServiceError(w, err)
			return
		}
		api.RespondWithMessage(w, http.StatusOK, constants.FormatError(constants.SuccessCommitted,
			report.Created, report.Updated, report.Skipped, report.Errors), report)
	}
}

// RollbackSession discards a session and all its rows.
func RollbackSession(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := sessionIDVar(w, r)
		if !ok {
			return
		}
		n, err := svc.Rollback(r.Context(), api.RequestUserID(r), sessionID)
		if err != nil {
			respondWithServiceError(w, err)
			return
		}
		api.RespondWithMessage(w, http.StatusOK, constants.FormatError(constants.SuccessRolledBack, n),
			map[string]interface{}{"session_id": sessionID, "deleted_rows": n})
	}
}

// PurgeStaging runs the retention purge on demand.
func PurgeStaging(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := svc.PurgeExpired(r.Context())
		if err != nil {
			respondWithServiceError(w, err)
			return
		}
		api.RespondWithMessage(w, http.StatusOK, constants.FormatError(constants.SuccessPurged, n),
			map[string]interface{}{"purged_rows": n})
	}
}

func sessionIDVar(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[constants.KeySessionID])
	if err != nil {
		api.RespondWithError(w, http.StatusBadRequest, constants.ErrInvalidSessionID)
		return uuid.Nil, false
	}
	return id, true
}

// StatusFor maps service errors onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrUserRequired),
		errors.Is(err, ErrNoRowsSelected),
		errors.Is(err, ErrInvalidDuplicateMode),
		errors.Is(err, ErrInvalidResolution),
		errors.Is(err, ingest.ErrUnsupportedFormat),
		errors.Is(err, ingest.ErrEmptyFile),
		errors.Is(err, ingest.ErrNoDataRows),
		errors.Is(err, ingest.ErrUnreadable):
		return http.StatusBadRequest
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrRecordFinalized), errors.Is(err, ErrSessionExpired):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func respondWithServiceError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.Component("ratesupload").WithError(err).Error("request failed")
		msg = constants.ErrInternal
	}
	api.RespondWithError(w, status, msg)
}

package ratesupload

import (
	"errors"

	"SmartAd/api/constants"
)

var (
	ErrSessionNotFound      = errors.New(constants.ErrSessionNotFound)
	ErrSessionExpired       = errors.New(constants.ErrSessionExpired)
	ErrForbidden            = errors.New(constants.ErrSessionForbidden)
	ErrRecordNotFound       = errors.New(constants.ErrRecordNotFound)
	ErrRecordFinalized      = errors.New(constants.ErrRecordFinalized)
	ErrNoRowsSelected       = errors.New(constants.ErrNoRowsSelected)
	ErrInvalidDuplicateMode = errors.New(constants.ErrInvalidDuplicateMode)
	ErrInvalidResolution    = errors.New("invalid merge resolution")
	ErrUserRequired         = errors.New(constants.ErrUserIDRequired)

	// ErrCommitFailed wraps the database error that reverted a commit batch.
	ErrCommitFailed = errors.New("commit failed and was rolled back")
)

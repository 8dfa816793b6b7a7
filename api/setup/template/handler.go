package template

import (
	"bytes"
	"fmt"
	"net/http"

	"SmartAd/api"
	"SmartAd/api/constants"
	"SmartAd/internal/logger"
)

const fileBaseName = "rate_upload_template"

// DownloadTemplate serves the template as an attachment; ?format=csv|xlsx.
func DownloadTemplate(b *Builder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		format, err := ParseFormat(r.URL.Query().Get(constants.KeyFormat))
		if err != nil {
			api.RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}

		var buf bytes.Buffer
		contentType := constants.ContentTypeXLSX
		if format == FormatCSV {
			contentType = constants.ContentTypeCSV
			err = WriteCSV(&buf)
		} else {
			err = b.WriteXLSX(r.Context(), &buf)
		}
		if err != nil {
			logger.Component("template").WithError(err).Error("template export failed")
			api.RespondWithError(w, http.StatusInternalServerError, constants.ErrInternal)
			return
		}

		w.Header().Set(constants.ContentTypeText, contentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.%s"`, fileBaseName, format))
		w.WriteHeader(http.StatusOK)
		w.Write(buf.Bytes())
	}
}

package refentity

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"SmartAd/api"
	"SmartAd/api/constants"
	"SmartAd/internal/logger"
)

// SearchEntities lists active entities of the {kind} path variable ranked
// against the optional q parameter.
func SearchEntities(r *Resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		kind, err := ParseKind(mux.Vars(req)[constants.KeyKind])
		if err != nil {
			api.RespondWithError(w, http.StatusNotFound, err.Error())
			return
		}
		limit := constants.DefaultSearch
		if v := req.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				api.RespondWithError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = n
		}
		entities, err := r.Search(req.Context(), kind, req.URL.Query().Get(constants.KeyQuery), limit)
		if err != nil {
			logger.Component("refentity").WithError(err).WithField("kind", kind.String()).Error("reference search failed")
			api.RespondWithError(w, http.StatusInternalServerError, constants.ErrInternal)
			return
		}
		api.RespondWithPayload(w, true, "", entities)
	}
}

// SimilarEntities scores the name parameter against the {kind} table with
// the configured threshold.
func SimilarEntities(r *Resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		kind, err := ParseKind(mux.Vars(req)[constants.KeyKind])
		if err != nil {
			api.RespondWithError(w, http.StatusNotFound, err.Error())
			return
		}
		name := req.URL.Query().Get("name")
		if name == "" {
			api.RespondWithError(w, http.StatusBadRequest, "name is required")
			return
		}
		matches, err := r.FindSimilar(req.Context(), kind, name, 0)
		if err != nil {
			logger.Component("refentity").WithError(err).WithField("kind", kind.String()).Error("similarity lookup failed")
			api.RespondWithError(w, http.StatusInternalServerError, constants.ErrInternal)
			return
		}
		api.RespondWithPayload(w, true, "", matches)
	}
}

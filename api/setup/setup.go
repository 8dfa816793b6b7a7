// Package setup serves the master-data setup endpoints: the rate bulk
// upload workflow, reference lookups and the upload template.
package setup

import (
	"net/http"

	"github.com/gorilla/mux"

	"SmartAd/api"
	"SmartAd/api/setup/ratesupload"
	"SmartAd/api/setup/refentity"
	"SmartAd/api/setup/template"
	"SmartAd/internal/config"
)

const DefaultAddr = ":8080"

// Deps carries what the setup routes need.
type Deps struct {
	Rates       *ratesupload.Service
	Refs        *refentity.Resolver
	MaxUploadMB int
}

// Routes mounts the setup endpoints under /setup.
func Routes(d Deps) func(*mux.Router) {
	if d.MaxUploadMB <= 0 {
		d.MaxUploadMB = config.DefaultMaxUploadMB
	}
	return func(router *mux.Router) {
		rates := router.PathPrefix("/setup/rates").Subrouter()
		rates.HandleFunc("/upload", ratesupload.UploadRates(d.Rates, d.MaxUploadMB)).Methods(http.MethodPost)
		rates.HandleFunc("/sessions", ratesupload.ListSessions(d.Rates)).Methods(http.MethodGet)
		rates.HandleFunc("/sessions/{session_id}/records", ratesupload.SessionRecords(d.Rates)).Methods(http.MethodGet)
		rates.HandleFunc("/sessions/{session_id}/records/{row_id:[0-9]+}/resolution", ratesupload.SetResolution(d.Rates)).Methods(http.MethodPut)
		rates.HandleFunc("/sessions/{session_id}/commit", ratesupload.CommitRows(d.Rates)).Methods(http.MethodPost)
		rates.HandleFunc("/sessions/{session_id}", ratesupload.RollbackSession(d.Rates)).Methods(http.MethodDelete)
		rates.HandleFunc("/purge", ratesupload.PurgeStaging(d.Rates)).Methods(http.MethodPost)
		rates.HandleFunc("/template", template.DownloadTemplate(template.NewBuilder(d.Refs))).Methods(http.MethodGet)

		refs := router.PathPrefix("/setup/reference").Subrouter()
		refs.HandleFunc("/{kind}", refentity.SearchEntities(d.Refs)).Methods(http.MethodGet)
		refs.HandleFunc("/{kind}/similar", refentity.SimilarEntities(d.Refs)).Methods(http.MethodGet)
	}
}

// NewRouter is the full setup HTTP handler including health and metrics.
func NewRouter(d Deps) *mux.Router {
	return api.NewRouter(Routes(d))
}

// NewSetupService wraps the setup router in an appmanager service. cfg
// accepts "port" or "addr".
func NewSetupService(cfg map[string]interface{}, d Deps) *api.HTTPService {
	return api.NewHTTPService("setup", cfg, DefaultAddr, NewRouter(d))
}

package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter builds the root router with the shared middleware, the health
// probe and the Prometheus endpoint, then lets each feature mount its routes.
func NewRouter(mounts ...func(*mux.Router)) *mux.Router {
	router := mux.NewRouter()
	router.Use(RecoverMiddleware(), UserIDMiddleware(), LoggingMiddleware())

	router.HandleFunc("/setup/health", HeartbeatHandler).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	for _, mount := range mounts {
		mount(router)
	}
	return router
}

func HeartbeatHandler(w http.ResponseWriter, r *http.Request) {
	RespondWithPayload(w, true, "", map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

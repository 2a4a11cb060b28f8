package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/forest-guardian/greenwatch/internal/delivery"
	"github.com/forest-guardian/greenwatch/internal/observability"
	"github.com/gorilla/mux"
)

const maxRequestBytes = 32 << 20

var statusByOutcome = map[delivery.Outcome]int{
	delivery.OutcomeOK:           http.StatusOK,
	delivery.OutcomeInvalid:      http.StatusBadRequest,
	delivery.OutcomeUnauthorized: http.StatusUnauthorized,
	delivery.OutcomeNotFound:     http.StatusNotFound,
	delivery.OutcomeUnavailable:  http.StatusServiceUnavailable,
	delivery.OutcomeError:        http.StatusInternalServerError,
}

type errorBody struct {
	Detail string `json:"detail"`
}

// NewRouter exposes the analysis endpoint, a health probe and the Prometheus metrics.
func NewRouter(handler delivery.Handler, metrics *observability.Metrics) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	router.Handle("/analyze", AnalyzeHandler{Handler: handler}).Methods(http.MethodPost)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	return router
}

// AnalyzeHandler is a handler for POST /analyze
type AnalyzeHandler struct {
	Handler delivery.Handler
}

func (h AnalyzeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req delivery.Request
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := decoder.Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: malformed request body: %v", delivery.ErrInvalidInput, err))
		return
	}

	response, err := h.Handler.Handle(r.Context(), "http", req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func writeError(w http.ResponseWriter, err error) {
	status := statusByOutcome[delivery.Classify(err)]
	detail := err.Error()
	if errors.Is(err, delivery.ErrUnauthorized) {
		detail = delivery.ErrUnauthorized.Error()
	}
	writeJSON(w, status, errorBody{Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

// ListenAndServe serves router on port until ctx is cancelled.
func ListenAndServe(ctx context.Context, port int, router http.Handler) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Printf("HTTP server listening on :%d", port)
		errChan <- server.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

package frostline

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ghalamif/frostline/internal/adapters/sink"
	"github.com/ghalamif/frostline/internal/domain"
	"github.com/ghalamif/frostline/internal/ports"
)

const statusSeedTimeout = 3 * time.Second

// statusState holds the latest delivered reading and assessment for the
// status endpoints.
type statusState struct {
	reading    atomic.Pointer[domain.SensorReading]
	assessment atomic.Pointer[domain.Assessment]
	stats      func() PollerStats
}

func (s *statusState) setReading(r *domain.SensorReading) {
	s.reading.Store(r.Clone())
}

func (s *statusState) setAssessment(a domain.Assessment) {
	s.assessment.Store(&a)
}

// latestSource yields the newest stored reading; *sink.PostgresSink is one.
type latestSource interface {
	Latest(ctx context.Context) (*domain.SensorReading, error)
}

// seedReading loads the newest stored reading so /status/reading is not empty
// after a restart. A reading delivered in the meantime is never replaced.
func (s *statusState) seedReading(ctx context.Context, src latestSource, obs ports.Observability) {
	r, err := src.Latest(ctx)
	if err != nil {
		obs.LogWarn("status_seed_failed", ports.Field{Key: "error", Value: err.Error()})
		return
	}
	if r != nil {
		s.reading.CompareAndSwap(nil, r)
	}
}

// seedStatusFromHistory seeds the status from the readings table when the
// Postgres sink is the one writing it.
func seedStatusFromHistory(cfg *Config, db *sql.DB, st *statusState, obs ports.Observability) {
	if db == nil || cfg.Sinks.Postgres.Disabled {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), statusSeedTimeout)
	defer cancel()
	st.seedReading(ctx, sink.NewPostgresSink(db, cfg.Database.ReadingsTable), obs)
}

func newStatusRouter(g prometheus.Gatherer, st *statusState) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	r.HandleFunc("/status/reading", st.latestReading).Methods(http.MethodGet)
	r.HandleFunc("/status/assessment", st.latestAssessment).Methods(http.MethodGet)
	r.HandleFunc("/status/poller", st.pollerStats).Methods(http.MethodGet)
	return r
}

func (s *statusState) latestReading(w http.ResponseWriter, _ *http.Request) {
	r := s.reading.Load()
	if r == nil {
		writeError(w, http.StatusNotFound, "no reading yet")
		return
	}
	writeJSON(w, http.StatusOK, r)
}

func (s *statusState) latestAssessment(w http.ResponseWriter, _ *http.Request) {
	a := s.assessment.Load()
	if a == nil {
		writeError(w, http.StatusNotFound, "no assessment yet")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *statusState) pollerStats(w http.ResponseWriter, _ *http.Request) {
	if s.stats == nil {
		writeError(w, http.StatusNotFound, "collector is not the telemetry poller")
		return
	}
	st := s.stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"cycles":        st.Cycles,
		"co2_successes": st.CO2Successes,
		"co2_failures":  st.CO2Failures,
		"success_rate":  st.SuccessRate(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

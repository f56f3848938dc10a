package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"sonar-ranger/internal/config"
	"sonar-ranger/internal/database/influx"
	"sonar-ranger/internal/metrics"
	"sonar-ranger/internal/mqtt"
)

// Server exposes /metrics, /healthz and /readyz.
type Server struct {
	srv    *http.Server
	logger zerolog.Logger
}

func New(cfg config.HTTPConfig, mqttClient *mqtt.Client, influxDB *influx.InfluxDB,
	m *metrics.Metrics, logger zerolog.Logger) *Server {

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", &healthHandler{mqtt: mqttClient, influx: influxDB})
	mux.Handle("/readyz", &readyHandler{mqtt: mqttClient, influx: influxDB})

	return &Server{
		srv: &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Port),
			Handler: mux,
		},
		logger: logger,
	}
}

func (s *Server) Start() {
	go func() {
		s.logger.Info().Str("addr", s.srv.Addr).Msg("HTTP server listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("HTTP server failed")
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

type healthHandler struct {
	mqtt   *mqtt.Client
	influx *influx.InfluxDB
}

func (h *healthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type status struct {
		Status        string `json:"status"`
		MQTTConnected bool   `json:"mqtt_connected"`
		InfluxOK      bool   `json:"influx_ok"`
	}

	st := status{
		MQTTConnected: h.mqtt != nil && h.mqtt.IsConnected(),
		InfluxOK:      influxOK(r.Context(), h.influx),
	}

	switch {
	case st.MQTTConnected && st.InfluxOK:
		st.Status = "ok"
	case st.MQTTConnected || st.InfluxOK:
		st.Status = "degraded"
	default:
		st.Status = "down"
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(st)
}

type readyHandler struct {
	mqtt   *mqtt.Client
	influx *influx.InfluxDB
}

func (h *readyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ready := h.mqtt != nil && h.mqtt.IsConnected() && influxOK(r.Context(), h.influx)
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	w.Header().Set("Content-Type", "application/json")

	type resp struct {
		Ready bool `json:"ready"`
	}
	_ = json.NewEncoder(w).Encode(resp{Ready: ready})
}

func influxOK(ctx context.Context, db *influx.InfluxDB) bool {
	if db == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	health, err := db.Client().Health(ctx)
	return err == nil && health.Status == "pass"
}

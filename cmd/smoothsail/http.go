package main

import (
	"encoding/json"
	"net/http"

	"github.com/c360/smoothsail/bus"
	"github.com/c360/smoothsail/health"
	"github.com/c360/smoothsail/metric"
	"github.com/c360/smoothsail/orchestrator"
)

// statusReport is the body served on /status.
type statusReport struct {
	Version      string                    `json:"version"`
	Orchestrator orchestrator.SystemStatus `json:"orchestrator"`
	Health       health.SystemHealth       `json:"health"`
	Bus          bus.Stats                 `json:"bus"`
}

type probeResponse struct {
	Status string `json:"status"`
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// mountStatusHandlers adds the probe and status endpoints next to /metrics.
func mountStatusHandlers(srv *metric.Server, b *bus.Bus, orch *orchestrator.Orchestrator, monitor *health.Monitor) {
	srv.Handle("/healthz", healthzHandler(monitor))
	srv.Handle("/readyz", readyzHandler(orch))
	srv.Handle("/status", statusHandler(b, orch, monitor))
}

// healthzHandler answers 503 once aggregate health is Critical or worse.
func healthzHandler(monitor *health.Monitor) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		status := monitor.SystemStatus().Status
		code := http.StatusOK
		if status >= health.StatusCritical {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, probeResponse{Status: status.String()})
	})
}

// readyzHandler answers 200 only after every component has started.
func readyzHandler(orch *orchestrator.Orchestrator) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		st := orch.SystemStatus()
		code := http.StatusOK
		if !st.Ready {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, probeResponse{Status: st.State})
	})
}

func statusHandler(b *bus.Bus, orch *orchestrator.Orchestrator, monitor *health.Monitor) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, statusReport{
			Version:      Version,
			Orchestrator: orch.SystemStatus(),
			Health:       monitor.SystemStatus(),
			Bus:          b.Stats(),
		})
	})
}

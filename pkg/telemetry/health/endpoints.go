package health

import (
	"encoding/json"
	"net/http"
	"runtime"

	"mercator-hq/ganymede/pkg/config"
)

// BuildInfo carries version identifiers stamped at build time.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

// LivenessHandler serves the liveness probe. It always answers 200
// while the process can accept requests.
func (c *Checker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !probeMethod(w, r) {
			return
		}
		writeReport(w, r, c.Liveness(r.Context()), http.StatusOK)
	}
}

// ReadinessHandler serves the readiness probe. It answers 200 when
// every registered probe passes and 503 otherwise, with the per-probe
// outcomes in the body.
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !probeMethod(w, r) {
			return
		}

		report := c.Readiness(r.Context())
		status := http.StatusOK
		if report.Status != StatusReady {
			status = http.StatusServiceUnavailable
		}
		writeReport(w, r, report, status)
	}
}

// VersionHandler serves build information.
func VersionHandler(info BuildInfo) http.HandlerFunc {
	if info.GoVersion == "" {
		info.GoVersion = runtime.Version()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if !probeMethod(w, r) {
			return
		}
		writeReport(w, r, info, http.StatusOK)
	}
}

// Mount registers the probe endpoints on the mux at the configured
// paths.
func Mount(mux *http.ServeMux, cfg *config.HealthConfig, checker *Checker, info BuildInfo) {
	if !cfg.Enabled {
		return
	}
	mux.HandleFunc(cfg.LivenessPath, checker.LivenessHandler())
	mux.HandleFunc(cfg.ReadinessPath, checker.ReadinessHandler())
	mux.HandleFunc(cfg.VersionPath, VersionHandler(info))
}

// probeMethod rejects anything but GET and HEAD, which is all probe
// clients send.
func probeMethod(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeReport(w http.ResponseWriter, r *http.Request, body any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if r.Method != http.MethodHead {
		_ = json.NewEncoder(w).Encode(body)
	}
}

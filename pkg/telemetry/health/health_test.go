package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"mercator-hq/ganymede/pkg/config"
)

func TestReadiness_NoChecks(t *testing.T) {
	checker := New(time.Second)

	report := checker.Readiness(context.Background())
	if report.Status != StatusReady {
		t.Errorf("status = %s, want ready", report.Status)
	}
	if len(report.Checks) != 0 {
		t.Errorf("expected no check results, got %d", len(report.Checks))
	}
}

func TestReadiness_AllPassing(t *testing.T) {
	checker := New(time.Second)
	checker.Register("audit_storage", func(ctx context.Context) error { return nil })
	checker.Register("registry_storage", func(ctx context.Context) error { return nil })

	report := checker.Readiness(context.Background())
	if report.Status != StatusReady {
		t.Fatalf("status = %s, want ready", report.Status)
	}
	for name, result := range report.Checks {
		if result.Status != StatusOK {
			t.Errorf("%s = %s, want ok", name, result.Status)
		}
	}
}

func TestReadiness_FailingCheckDegrades(t *testing.T) {
	checker := New(time.Second)
	checker.Register("good", func(ctx context.Context) error { return nil })
	checker.Register("bad", func(ctx context.Context) error {
		return errors.New("connection refused")
	})

	report := checker.Readiness(context.Background())
	if report.Status != StatusDegraded {
		t.Fatalf("status = %s, want degraded", report.Status)
	}
	if report.Checks["good"].Status != StatusOK {
		t.Errorf("good = %s, want ok", report.Checks["good"].Status)
	}
	bad := report.Checks["bad"]
	if bad.Status != StatusUnhealthy {
		t.Errorf("bad = %s, want unhealthy", bad.Status)
	}
	if bad.Message != "connection refused" {
		t.Errorf("bad message = %q", bad.Message)
	}
}

func TestReadiness_Timeout(t *testing.T) {
	checker := New(20 * time.Millisecond)
	checker.Register("stuck", func(ctx context.Context) error {
		select {
		case <-time.After(5 * time.Second):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	report := checker.Readiness(context.Background())
	if report.Status != StatusDegraded {
		t.Fatalf("status = %s, want degraded", report.Status)
	}
	if report.Checks["stuck"].Status != StatusUnhealthy {
		t.Errorf("stuck = %s, want unhealthy", report.Checks["stuck"].Status)
	}
}

func TestRegisterAll(t *testing.T) {
	checker := New(time.Second)
	checker.RegisterAll(map[string]func(context.Context) error{
		"audit_storage":    func(ctx context.Context) error { return nil },
		"registry_storage": func(ctx context.Context) error { return nil },
	})

	want := []string{"audit_storage", "registry_storage"}
	if got := checker.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
}

func TestDeregister(t *testing.T) {
	checker := New(time.Second)
	checker.Register("flaky", func(ctx context.Context) error { return errors.New("down") })
	checker.Deregister("flaky")

	if report := checker.Readiness(context.Background()); report.Status != StatusReady {
		t.Errorf("status = %s after deregister, want ready", report.Status)
	}
}

func TestLivenessHandler(t *testing.T) {
	checker := New(time.Second)
	// A failing probe must not affect liveness
	checker.Register("bad", func(ctx context.Context) error { return errors.New("down") })

	rr := httptest.NewRecorder()
	checker.LivenessHandler()(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var report Report
	if err := json.Unmarshal(rr.Body.Bytes(), &report); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if report.Status != StatusOK {
		t.Errorf("body status = %s, want ok", report.Status)
	}
}

func TestReadinessHandler_ServiceUnavailable(t *testing.T) {
	checker := New(time.Second)
	checker.Register("bad", func(ctx context.Context) error { return errors.New("down") })

	rr := httptest.NewRecorder()
	checker.ReadinessHandler()(rr, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}
	var report Report
	if err := json.Unmarshal(rr.Body.Bytes(), &report); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if report.Checks["bad"].Message != "down" {
		t.Errorf("check message = %q, want down", report.Checks["bad"].Message)
	}
}

func TestReadinessHandler_MethodGuard(t *testing.T) {
	checker := New(time.Second)

	rr := httptest.NewRecorder()
	checker.ReadinessHandler()(rr, httptest.NewRequest(http.MethodPost, "/ready", nil))

	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rr.Code)
	}
}

func TestVersionHandler(t *testing.T) {
	handler := VersionHandler(BuildInfo{Version: "1.2.0", Commit: "abc123"})

	rr := httptest.NewRecorder()
	handler(rr, httptest.NewRequest(http.MethodGet, "/version", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var info BuildInfo
	if err := json.Unmarshal(rr.Body.Bytes(), &info); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if info.Version != "1.2.0" || info.Commit != "abc123" {
		t.Errorf("unexpected info: %+v", info)
	}
	if info.GoVersion == "" {
		t.Error("expected the go version to be filled in")
	}
}

func TestMount(t *testing.T) {
	cfg := &config.HealthConfig{
		Enabled:       true,
		LivenessPath:  "/health",
		ReadinessPath: "/ready",
		VersionPath:   "/version",
	}
	mux := http.NewServeMux()
	Mount(mux, cfg, New(time.Second), BuildInfo{Version: "dev"})

	for _, path := range []string{"/health", "/ready", "/version"} {
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Errorf("%s = %d, want 200", path, rr.Code)
		}
	}
}

func TestMount_Disabled(t *testing.T) {
	cfg := &config.HealthConfig{Enabled: false, LivenessPath: "/health"}
	mux := http.NewServeMux()
	Mount(mux, cfg, New(time.Second), BuildInfo{})

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 when disabled", rr.Code)
	}
}

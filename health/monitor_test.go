package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/nevindra/quizgate/internal/config"
)

type fakeRestarter struct {
	calls []string
	err   error
}

func (f *fakeRestarter) Restart(_ context.Context, container string) error {
	f.calls = append(f.calls, container)
	return f.err
}

// fakeSocket creates a file standing in for the Docker socket path check.
func fakeSocket(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "docker.sock")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBuildTarget(t *testing.T) {
	tests := []struct {
		name       string
		url        string
		configured []string
		wantName   string
		wantCont   []string
	}{
		{
			name:     "host and path",
			url:      "http://kakao-bot:3000/health/ready",
			wantName: "kakao-bot/health/ready",
			wantCont: []string{"kakao-bot"},
		},
		{
			name:     "bare host",
			url:      "http://kakao-bot:3000",
			wantName: "kakao-bot",
			wantCont: []string{"kakao-bot"},
		},
		{
			name:       "derived host among configured",
			url:        "http://kakao-bot:3000/health",
			configured: []string{"kakao-bot", "other-bot"},
			wantCont:   []string{"kakao-bot"},
		},
		{
			name:       "derived host not configured",
			url:        "http://gateway:8080/health",
			configured: []string{"bot-a", "bot-b"},
			wantCont:   []string{"bot-a", "bot-b"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildTarget(tt.url, tt.configured)
			if tt.wantName != "" && got.Name != tt.wantName {
				t.Errorf("name = %q, want %q", got.Name, tt.wantName)
			}
			if len(got.RestartContainers) != len(tt.wantCont) {
				t.Fatalf("containers = %v, want %v", got.RestartContainers, tt.wantCont)
			}
			for i := range tt.wantCont {
				if got.RestartContainers[i] != tt.wantCont[i] {
					t.Errorf("containers = %v, want %v", got.RestartContainers, tt.wantCont)
				}
			}
		})
	}
}

func TestRestartAfterMaxFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	restarter := &fakeRestarter{}
	m := NewMonitor(config.HealthConfig{
		Enabled:      true,
		URLs:         []string{srv.URL + "/health"},
		MaxFailures:  3,
		DockerSocket: fakeSocket(t),
	}, WithRestarter(restarter))

	ctx := context.Background()
	for range 3 {
		m.CheckOnce(ctx)
	}
	if len(restarter.calls) != 1 {
		t.Fatalf("restarts = %d, want exactly 1 after the third failure", len(restarter.calls))
	}

	// Counter was reset; two more failures stay under the threshold.
	m.CheckOnce(ctx)
	m.CheckOnce(ctx)
	if len(restarter.calls) != 1 {
		t.Errorf("restarts = %d, counter was not reset", len(restarter.calls))
	}
	m.CheckOnce(ctx)
	if len(restarter.calls) != 2 {
		t.Errorf("restarts = %d, want second restart after three more failures", len(restarter.calls))
	}
}

func TestSuccessResetsCounter(t *testing.T) {
	var healthy atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if healthy.Load() {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	restarter := &fakeRestarter{}
	m := NewMonitor(config.HealthConfig{
		Enabled:      true,
		URLs:         []string{srv.URL},
		MaxFailures:  3,
		DockerSocket: fakeSocket(t),
	}, WithRestarter(restarter))

	ctx := context.Background()
	m.CheckOnce(ctx)
	m.CheckOnce(ctx)
	healthy.Store(true)
	m.CheckOnce(ctx)
	healthy.Store(false)
	m.CheckOnce(ctx)
	m.CheckOnce(ctx)

	if len(restarter.calls) != 0 {
		t.Errorf("restarts = %d, want 0 (success resets the counter)", len(restarter.calls))
	}
}

func TestRestartCommandPreferred(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	var ran [][]string
	restarter := &fakeRestarter{}
	m := NewMonitor(config.HealthConfig{
		Enabled:      true,
		URLs:         []string{srv.URL},
		MaxFailures:  1,
		RestartCmd:   []string{"systemctl", "restart", "kakao-bot"},
		DockerSocket: fakeSocket(t),
	},
		WithRestarter(restarter),
		WithCommandRunner(func(_ context.Context, cmd []string) error {
			ran = append(ran, cmd)
			return nil
		}))

	m.CheckOnce(context.Background())

	if len(ran) != 1 {
		t.Fatalf("command runs = %d, want 1", len(ran))
	}
	if len(restarter.calls) != 0 {
		t.Error("successful command must not fall back to docker")
	}
}

func TestRestartCommandFallsBackToDocker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	restarter := &fakeRestarter{}
	m := NewMonitor(config.HealthConfig{
		Enabled:      true,
		URLs:         []string{srv.URL},
		MaxFailures:  1,
		RestartCmd:   []string{"systemctl", "restart", "kakao-bot"},
		DockerSocket: fakeSocket(t),
	},
		WithRestarter(restarter),
		WithCommandRunner(func(context.Context, []string) error {
			return context.DeadlineExceeded
		}))

	m.CheckOnce(context.Background())

	if len(restarter.calls) == 0 {
		t.Error("failed command must fall back to container restart")
	}
}

func TestAbsoluteMissingCommandSkips(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	var ran int
	restarter := &fakeRestarter{}
	m := NewMonitor(config.HealthConfig{
		Enabled:      true,
		URLs:         []string{srv.URL},
		MaxFailures:  1,
		RestartCmd:   []string{"/nonexistent/restart.sh"},
		DockerSocket: fakeSocket(t),
	},
		WithRestarter(restarter),
		WithCommandRunner(func(context.Context, []string) error {
			ran++
			return nil
		}))

	m.CheckOnce(context.Background())

	if ran != 0 || len(restarter.calls) != 0 {
		t.Errorf("missing absolute command must skip entirely, ran=%d docker=%d", ran, len(restarter.calls))
	}
}

func TestMissingSocketSkipsDocker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	restarter := &fakeRestarter{}
	m := NewMonitor(config.HealthConfig{
		Enabled:      true,
		URLs:         []string{srv.URL},
		MaxFailures:  1,
		DockerSocket: "/nonexistent/docker.sock",
	}, WithRestarter(restarter))

	m.CheckOnce(context.Background())

	if len(restarter.calls) != 0 {
		t.Errorf("restarts = %d, want 0 when the socket is absent", len(restarter.calls))
	}
}

func TestDisabledMonitor(t *testing.T) {
	m := NewMonitor(config.HealthConfig{Enabled: false, URLs: []string{"http://x/health"}})
	if m.Enabled() {
		t.Error("monitor must be disabled")
	}
	m = NewMonitor(config.HealthConfig{Enabled: true})
	if m.Enabled() {
		t.Error("monitor without targets must be disabled")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := NewMonitor(config.HealthConfig{
		Enabled:         true,
		URLs:            []string{srv.URL},
		IntervalSeconds: 1,
		MaxFailures:     3,
		DockerSocket:    fakeSocket(t),
	}, WithRestarter(&fakeRestarter{}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()
	cancel()
	<-done
}

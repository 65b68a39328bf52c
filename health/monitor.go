// Package health probes bot endpoints and restarts them after repeated
// failures, via a configured command or the Docker API.
package health

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/nevindra/quizgate/internal/config"
)

// Target is one monitored endpoint with its restart policy.
type Target struct {
	Name              string
	URL               string
	RestartContainers []string
}

// buildTarget derives the display name and container list from the probe
// URL's host.
func buildTarget(rawURL string, configured []string) Target {
	t := Target{Name: rawURL, URL: rawURL}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return t
	}
	host := parsed.Hostname()
	if host != "" {
		t.Name = host
		if parsed.Path != "" && parsed.Path != "/" {
			t.Name += parsed.Path
		}
	}

	switch {
	case len(configured) > 0:
		// The derived container wins when it is among the configured set;
		// otherwise all configured containers restart together.
		if host != "" && contains(configured, host) {
			t.RestartContainers = []string{host}
		} else {
			t.RestartContainers = configured
		}
	case host != "":
		t.RestartContainers = []string{host}
	}
	return t
}

func contains(list []string, item string) bool {
	for _, v := range list {
		if v == item {
			return true
		}
	}
	return false
}

// Restarter restarts one container by name.
type Restarter interface {
	Restart(ctx context.Context, container string) error
}

// Monitor runs the periodic probe loop. Counters are per target and reset
// after every restart attempt, successful or not.
type Monitor struct {
	cfg        config.HealthConfig
	targets    []Target
	logger     *slog.Logger
	httpClient *http.Client
	restarter  Restarter
	runCmd     func(ctx context.Context, cmd []string) error
	fileExists func(path string) bool

	failures map[string]int
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

func WithLogger(logger *slog.Logger) MonitorOption {
	return func(m *Monitor) { m.logger = logger }
}

func WithHTTPClient(client *http.Client) MonitorOption {
	return func(m *Monitor) { m.httpClient = client }
}

// WithRestarter replaces the Docker-backed restarter, mainly for tests.
func WithRestarter(r Restarter) MonitorOption {
	return func(m *Monitor) { m.restarter = r }
}

// WithCommandRunner replaces restart-command execution, mainly for tests.
func WithCommandRunner(run func(ctx context.Context, cmd []string) error) MonitorOption {
	return func(m *Monitor) { m.runCmd = run }
}

func NewMonitor(cfg config.HealthConfig, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		cfg:        cfg,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		failures:   make(map[string]int),
		fileExists: fileExists,
	}
	for _, raw := range cfg.URLs {
		if raw = strings.TrimSpace(raw); raw != "" {
			m.targets = append(m.targets, buildTarget(raw, cfg.RestartContainers))
		}
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.httpClient == nil {
		m.httpClient = &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds * float64(time.Second)),
		}
	}
	if m.restarter == nil {
		m.restarter = NewDockerRestarter(cfg.DockerSocket)
	}
	if m.runCmd == nil {
		m.runCmd = func(ctx context.Context, cmd []string) error {
			return exec.CommandContext(ctx, cmd[0], cmd[1:]...).Run()
		}
	}
	return m
}

// Enabled reports whether the monitor has anything to do.
func (m *Monitor) Enabled() bool {
	return m.cfg.Enabled && len(m.targets) > 0
}

// Run blocks until ctx is cancelled, probing every interval after the
// startup grace period.
func (m *Monitor) Run(ctx context.Context) {
	if !m.Enabled() {
		m.logger.Info("bot_health_disabled")
		return
	}
	if grace := time.Duration(m.cfg.StartupGraceSeconds) * time.Second; grace > 0 {
		m.logger.Info("bot_health_grace_wait", "seconds", m.cfg.StartupGraceSeconds)
		select {
		case <-ctx.Done():
			return
		case <-time.After(grace):
		}
	}

	interval := time.Duration(m.cfg.IntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.logger.Info("bot_health_started",
		"targets", len(m.targets),
		"interval_seconds", m.cfg.IntervalSeconds,
		"max_failures", m.cfg.MaxFailures)
	for {
		m.CheckOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// CheckOnce probes every target and triggers restarts where the failure
// threshold is reached.
func (m *Monitor) CheckOnce(ctx context.Context) {
	for _, target := range m.targets {
		if ctx.Err() != nil {
			return
		}
		if m.probe(ctx, target) {
			m.failures[target.Name] = 0
			continue
		}
		m.failures[target.Name]++
		m.logger.Warn("bot_health_fail",
			"target", target.Name,
			"consecutive", m.failures[target.Name],
			"threshold", m.cfg.MaxFailures)
		if m.failures[target.Name] >= m.cfg.MaxFailures {
			m.restart(ctx, target)
			m.failures[target.Name] = 0
		}
	}
}

// probe treats any 2xx as healthy.
func (m *Monitor) probe(ctx context.Context, target Target) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.URL, nil)
	if err != nil {
		return false
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		m.logger.Warn("bot_health_http_fail", "url", target.URL, "err", err)
		return false
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// restart runs the configured command, falling back to container restarts
// when the command is missing or fails.
func (m *Monitor) restart(ctx context.Context, target Target) {
	m.logger.Warn("bot_restart_trigger", "target", target.Name, "threshold", m.cfg.MaxFailures)

	if len(m.cfg.RestartCmd) == 0 {
		if !m.restartContainers(ctx, target) {
			m.logger.Warn("bot_restart_skip", "reason", "command_missing", "target", target.Name)
		}
		return
	}

	first := m.cfg.RestartCmd[0]
	if filepath.IsAbs(first) && !m.fileExists(first) {
		m.logger.Warn("bot_restart_skip", "reason", "command_not_found",
			"cmd", strings.Join(m.cfg.RestartCmd, " "), "target", target.Name)
		return
	}
	if err := m.runCmd(ctx, m.cfg.RestartCmd); err != nil {
		m.logger.Warn("bot_restart_cmd_fail",
			"cmd", strings.Join(m.cfg.RestartCmd, " "), "err", err, "target", target.Name)
		m.restartContainers(ctx, target)
		return
	}
	m.logger.Info("bot_restart_cmd_ok", "cmd", strings.Join(m.cfg.RestartCmd, " "), "target", target.Name)
}

func (m *Monitor) restartContainers(ctx context.Context, target Target) bool {
	if len(target.RestartContainers) == 0 {
		return false
	}
	if !m.fileExists(m.cfg.DockerSocket) {
		m.logger.Warn("bot_restart_skip", "reason", "docker_socket_missing", "socket", m.cfg.DockerSocket)
		return false
	}
	restarted := false
	for _, container := range target.RestartContainers {
		if err := m.restarter.Restart(ctx, container); err != nil {
			m.logger.Warn("bot_restart_docker_fail", "container", container, "err", err)
			continue
		}
		restarted = true
		m.logger.Info("bot_restart_docker_ok", "container", container)
	}
	return restarted
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

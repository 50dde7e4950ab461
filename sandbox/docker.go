package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DockerConfig controls container provisioning.
type DockerConfig struct {
	Image           string
	ContainerPrefix string
	MaxMemoryMB     int
	MaxCPUPercent   int
	NetworkEnabled  bool
	ExecTimeout     time.Duration
}

// DefaultDockerConfig returns a config suitable for local development.
func DefaultDockerConfig() DockerConfig {
	return DockerConfig{
		Image:           "python:3.12-slim",
		ContainerPrefix: "helmsman_sbx_",
		MaxMemoryMB:     512,
		MaxCPUPercent:   100,
		NetworkEnabled:  false,
		ExecTimeout:     120 * time.Second,
	}
}

// DockerProvider runs session sandboxes as long-lived docker containers
// driven through the docker CLI.
type DockerProvider struct {
	config DockerConfig
	logger *zap.Logger
}

// NewDockerProvider creates a docker-backed provider.
func NewDockerProvider(config DockerConfig, logger *zap.Logger) *DockerProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Image == "" {
		config.Image = DefaultDockerConfig().Image
	}
	if config.ContainerPrefix == "" {
		config.ContainerPrefix = DefaultDockerConfig().ContainerPrefix
	}
	if config.ExecTimeout <= 0 {
		config.ExecTimeout = DefaultDockerConfig().ExecTimeout
	}
	return &DockerProvider{
		config: config,
		logger: logger.With(zap.String("component", "docker_provider")),
	}
}

func (p *DockerProvider) containerName(sessionID uuid.UUID) string {
	return p.config.ContainerPrefix + strings.ReplaceAll(sessionID.String(), "-", "")
}

// Create starts a fresh container for the session. The container idles on
// a sleep loop so exec sessions can attach to it.
func (p *DockerProvider) Create(ctx context.Context, sessionID uuid.UUID) (*Handle, error) {
	name := p.containerName(sessionID)

	args := []string{
		"run", "-d",
		"--name", name,
		"--label", "helmsman.session=" + sessionID.String(),
		"--security-opt", "no-new-privileges",
		"--pids-limit", "100",
		"-w", "/workspace",
	}
	if p.config.MaxMemoryMB > 0 {
		args = append(args, "--memory", fmt.Sprintf("%dm", p.config.MaxMemoryMB))
	}
	if p.config.MaxCPUPercent > 0 {
		args = append(args, "--cpus", fmt.Sprintf("%.2f", float64(p.config.MaxCPUPercent)/100.0))
	}
	if !p.config.NetworkEnabled {
		args = append(args, "--network", "none")
	}
	args = append(args, p.config.Image, "sleep", "infinity")

	p.logger.Debug("creating container", zap.String("name", name), zap.String("image", p.config.Image))

	out, err := p.run(ctx, args...)
	if err != nil {
		return nil, p.classify(err, out)
	}

	return &Handle{
		SessionID:   sessionID,
		ContainerID: strings.TrimSpace(out),
		State:       StateRunning,
	}, nil
}

// Get inspects the session's container. ErrNotFound when no container
// exists for the session.
func (p *DockerProvider) Get(ctx context.Context, sessionID uuid.UUID) (*Handle, error) {
	name := p.containerName(sessionID)

	out, err := p.run(ctx, "inspect", "--format", "{{.Id}} {{.State.Status}}", name)
	if err != nil {
		if strings.Contains(out, "No such") {
			return nil, ErrNotFound
		}
		return nil, p.classify(err, out)
	}

	fields := strings.Fields(strings.TrimSpace(out))
	if len(fields) != 2 {
		return nil, fmt.Errorf("unexpected inspect output: %q", out)
	}

	state := StateStopped
	switch fields[1] {
	case "running":
		state = StateRunning
	case "created", "restarting":
		state = StateStarting
	}

	return &Handle{SessionID: sessionID, ContainerID: fields[0], State: state}, nil
}

// Start restarts a stopped container.
func (p *DockerProvider) Start(ctx context.Context, h *Handle) error {
	out, err := p.run(ctx, "start", h.ContainerID)
	if err != nil {
		return p.classify(err, out)
	}
	h.State = StateRunning
	return nil
}

// Remove force-removes the container.
func (p *DockerProvider) Remove(ctx context.Context, h *Handle) error {
	out, err := p.run(ctx, "rm", "-f", h.ContainerID)
	if err != nil {
		if strings.Contains(out, "No such") {
			return nil
		}
		return p.classify(err, out)
	}
	h.State = StateAbsent
	return nil
}

// Exec runs one shell command in the container and returns its exit code
// with interleaved stdout and stderr.
func (p *DockerProvider) Exec(ctx context.Context, h *Handle, command string) (int, string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.config.ExecTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "docker", "exec", h.ContainerID, "sh", "-c", command)

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	err := cmd.Run()
	output := buf.String()

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return -1, output, fmt.Errorf("command timed out after %s", p.config.ExecTimeout)
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			// Non-zero exit is a result, not a provider failure.
			return exitErr.ExitCode(), output, nil
		}
		return -1, output, p.classify(err, output)
	}

	return 0, output, nil
}

// PutFile writes content to path inside the container via stdin.
func (p *DockerProvider) PutFile(ctx context.Context, h *Handle, path, content string) error {
	dir := "/workspace"
	if i := strings.LastIndex(path, "/"); i > 0 {
		dir = path[:i]
	}
	script := fmt.Sprintf("mkdir -p %q && cat > %q", dir, path)

	cmd := exec.CommandContext(ctx, "docker", "exec", "-i", h.ContainerID, "sh", "-c", script)
	cmd.Stdin = strings.NewReader(content)

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	if err := cmd.Run(); err != nil {
		return p.classify(err, buf.String())
	}
	return nil
}

func (p *DockerProvider) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "docker", args...)

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	err := cmd.Run()
	return buf.String(), err
}

// classify maps daemon-unreachable failures to ErrUnavailable so callers
// can treat them as recoverable.
func (p *DockerProvider) classify(err error, output string) error {
	lower := strings.ToLower(output)
	if strings.Contains(lower, "cannot connect to the docker daemon") ||
		strings.Contains(lower, "daemon") && strings.Contains(lower, "not running") ||
		strings.Contains(err.Error(), "executable file not found") {
		return fmt.Errorf("%w: %s", ErrUnavailable, strings.TrimSpace(output))
	}
	if strings.TrimSpace(output) != "" {
		return fmt.Errorf("docker: %s", strings.TrimSpace(output))
	}
	return fmt.Errorf("docker: %w", err)
}

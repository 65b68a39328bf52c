package health

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types/container"
	dockerclient "github.com/docker/docker/client"
)

// restartStopTimeout is how many seconds Docker waits for graceful stop
// before SIGKILL.
const restartStopTimeout = 30

// DockerRestarter restarts containers over the Docker Engine socket. The
// client is built per call so a missing daemon never blocks startup.
type DockerRestarter struct {
	socket string
}

var _ Restarter = (*DockerRestarter)(nil)

func NewDockerRestarter(socket string) *DockerRestarter {
	return &DockerRestarter{socket: socket}
}

func (d *DockerRestarter) Restart(ctx context.Context, containerName string) error {
	cli, err := dockerclient.NewClientWithOpts(
		dockerclient.WithHost("unix://"+d.socket),
		dockerclient.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return fmt.Errorf("docker client: %w", err)
	}
	defer cli.Close()

	timeout := restartStopTimeout
	if err := cli.ContainerRestart(ctx, containerName, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("restart %s: %w", containerName, err)
	}
	return nil
}

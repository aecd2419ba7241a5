// Package docker implements job.Queue with one Docker container per job. All
// job state lives in the daemon (labels, container state and logs), so several
// API instances pointed at the same daemon share one queue and restarts lose
// nothing.
package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"cockpit/internal/apperrors"
	"cockpit/internal/job"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"
)

// Container labels and naming.
const (
	labelManagedBy = "managed-by"
	managedBy      = "cockpit"
	labelJobID     = "cockpit.job.id"
	namePrefix     = "cockpit-job-"
	revokedSuffix  = "-revoked"
)

// Queue implements job.Queue using Docker.
type Queue struct {
	client client.APIClient
	config Config
	logger *slog.Logger

	cancelMaintenance context.CancelFunc
	maintenanceWg     sync.WaitGroup
}

// New connects to the Docker daemon from the environment (DOCKER_HOST etc.)
// and starts the retention loop.
func New(cfg Config) (*Queue, error) {
	dockerClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	return newQueue(dockerClient, cfg), nil
}

func newQueue(api client.APIClient, cfg Config) *Queue {
	cfg = cfg.withDefaults()
	q := &Queue{
		client: api,
		config: cfg,
		logger: slog.With("component", "queue", "queue", "docker"),
	}

	maintenanceCtx, cancel := context.WithCancel(context.Background())
	q.cancelMaintenance = cancel
	q.maintenanceWg.Add(2)
	go func() {
		defer q.maintenanceWg.Done()
		// Warm the image so the first Submit does not pull under the admission lock.
		if err := q.pullImageIfNeeded(maintenanceCtx, cfg.Image); err != nil && maintenanceCtx.Err() == nil {
			q.logger.Warn("Failed to pull job image", "image", cfg.Image, "error", err)
		}
	}()
	go func() {
		defer q.maintenanceWg.Done()
		q.runMaintenance(maintenanceCtx, cfg.MaintenanceInterval)
	}()

	return q
}

// Submit creates and starts a job container.
func (q *Queue) Submit(ctx context.Context) (string, error) {
	id := uuid.NewString()
	logger := q.logger.With("jobId", id)

	// ctx is bounded by the admission lease; a pull must not outlive it.
	if err := q.pullImageIfNeeded(ctx, q.config.Image); err != nil {
		return "", apperrors.Internal("docker.pullImage", err)
	}

	containerID, err := q.createJobContainer(ctx, id)
	if err != nil {
		return "", apperrors.Internal("docker.createJobContainer", err)
	}

	if err := q.startContainer(ctx, containerID); err != nil {
		_ = q.client.ContainerRemove(context.WithoutCancel(ctx), containerID, container.RemoveOptions{Force: true})
		return "", apperrors.Internal("docker.startJobContainer", err)
	}

	logger.Info("Job container started", "containerId", containerID, "image", q.config.Image)
	return id, nil
}

// Query reports the job container's state.
func (q *Queue) Query(ctx context.Context, id string) (*job.Report, error) {
	containerID, err := q.findContainer(ctx, id)
	if err != nil {
		return nil, err
	}

	inspect, err := q.client.ContainerInspect(ctx, containerID)
	if cerrdefs.IsNotFound(err) {
		return nil, job.NotFoundError(id)
	}
	if err != nil {
		return nil, apperrors.Internal("docker.inspectContainer", err)
	}

	snap := containerSnapshot{
		Status:     string(inspect.State.Status),
		Running:    inspect.State.Running,
		ExitCode:   inspect.State.ExitCode,
		Error:      inspect.State.Error,
		FinishedAt: inspect.State.FinishedAt,
		Revoked:    strings.HasSuffix(inspect.Name, revokedSuffix),
	}
	report := snap.report(id)

	switch job.Status(report.State) {
	case job.StatusSuccess, job.StatusFailure:
		stdout, stderr, err := q.readLogs(ctx, containerID)
		if err != nil {
			return nil, apperrors.Internal("docker.containerLogs", err)
		}
		if report.State == string(job.StatusSuccess) {
			report.Output = strings.TrimRight(stdout, "\n")
		} else {
			report.FailureDetail = failureDetail(snap, stderr)
		}
	}

	return report, nil
}

// Revoke marks the container revoked, then kills it with SIGKILL. The rename
// is what later queries use to tell a revocation from a failure.
func (q *Queue) Revoke(ctx context.Context, id string) error {
	containerID, err := q.findContainer(ctx, id)
	if err != nil {
		return err
	}

	inspect, err := q.client.ContainerInspect(ctx, containerID)
	if err != nil {
		return apperrors.Internal("docker.inspectContainer", err)
	}
	if !inspect.State.Running && inspect.State.Status != "created" {
		return nil
	}

	logger := q.logger.With("jobId", id)
	if !strings.HasSuffix(inspect.Name, revokedSuffix) {
		if err := q.client.ContainerRename(ctx, containerID, namePrefix+id+revokedSuffix); err != nil {
			return apperrors.Internal("docker.renameContainer", err)
		}
	}

	if err := q.client.ContainerKill(ctx, containerID, "SIGKILL"); err != nil && !cerrdefs.IsConflict(err) {
		// Conflict: the container was not running (created, or exited meanwhile).
		return apperrors.Internal("docker.killContainer", err)
	}

	logger.Info("Job container killed", "containerId", containerID)
	return nil
}

// Ready checks if the Docker daemon is reachable and responsive.
func (q *Queue) Ready(ctx context.Context) error {
	_, err := q.client.Ping(ctx)
	return err
}

// Close stops maintenance and releases the client. Running job containers are
// NOT stopped; they continue and stay queryable from the next instance.
func (q *Queue) Close() error {
	if q.cancelMaintenance != nil {
		q.cancelMaintenance()
	}
	q.maintenanceWg.Wait()
	return q.client.Close()
}

// startContainer starts a created container. A Revoke that renamed it before
// the start found nothing to kill, so the kill is issued here instead.
func (q *Queue) startContainer(ctx context.Context, containerID string) error {
	if err := q.client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return err
	}

	inspect, err := q.client.ContainerInspect(ctx, containerID)
	if err != nil {
		return err
	}
	if !strings.HasSuffix(inspect.Name, revokedSuffix) {
		return nil
	}

	q.logger.Info("Job revoked before start, killing container", "containerId", containerID)
	if err := q.client.ContainerKill(ctx, containerID, "SIGKILL"); err != nil && !cerrdefs.IsConflict(err) {
		return err
	}
	return nil
}

func (q *Queue) findContainer(ctx context.Context, id string) (string, error) {
	containers, err := q.client.ContainerList(ctx, container.ListOptions{
		All: true,
		Filters: filters.NewArgs(
			filters.Arg("label", labelManagedBy+"="+managedBy),
			filters.Arg("label", labelJobID+"="+id),
		),
	})
	if err != nil {
		return "", apperrors.Internal("docker.listContainers", err)
	}
	if len(containers) == 0 {
		return "", job.NotFoundError(id)
	}
	return containers[0].ID, nil
}

func (q *Queue) createJobContainer(ctx context.Context, id string) (string, error) {
	env := append([]string{"COCKPIT_JOB_ID=" + id}, q.config.Env...)

	containerConfig := &container.Config{
		Image: q.config.Image,
		Cmd:   []string{"/bin/sh", "-c", q.config.Command},
		Env:   env,
		Labels: map[string]string{
			labelManagedBy: managedBy,
			labelJobID:     id,
		},
	}

	hostConfig := &container.HostConfig{
		ExtraHosts: q.config.ExtraHosts,
		Resources: container.Resources{
			NanoCPUs: int64(q.config.CPU * 1e9),
			Memory:   int64(q.config.Memory) * 1024 * 1024,
		},
	}

	resp, err := q.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, namePrefix+id)
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (q *Queue) readLogs(ctx context.Context, containerID string) (string, string, error) {
	logs, err := q.client.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return "", "", err
	}
	defer logs.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, logs); err != nil {
		return "", "", err
	}
	return stdout.String(), stderr.String(), nil
}

func (q *Queue) pullImageIfNeeded(ctx context.Context, imageName string) error {
	_, err := q.client.ImageInspect(ctx, imageName)
	if err == nil {
		return nil
	}

	reader, err := q.client.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return err
	}
	defer reader.Close()

	_, err = io.Copy(io.Discard, reader)
	return err
}

// runMaintenance periodically removes expired finished containers.
func (q *Queue) runMaintenance(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.cleanupExpiredJobs(ctx)
		}
	}
}

// cleanupExpiredJobs removes job containers that finished more than Retention ago.
func (q *Queue) cleanupExpiredJobs(ctx context.Context) {
	now := time.Now()
	logger := slog.With("component", "maintenance")

	containers, err := q.client.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", labelManagedBy+"="+managedBy)),
	})
	if err != nil {
		logger.Warn("Failed to list job containers", "error", err)
		return
	}

	cleaned := 0
	for _, c := range containers {
		inspect, err := q.client.ContainerInspect(ctx, c.ID)
		if err != nil || inspect.State.Running || inspect.State.Status == "created" {
			continue
		}

		finishedAt, err := time.Parse(time.RFC3339Nano, inspect.State.FinishedAt)
		if err != nil || now.Sub(finishedAt) <= q.config.Retention {
			continue
		}

		if err := q.client.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true}); err != nil {
			logger.Warn("Failed to remove expired job container", "jobId", c.Labels[labelJobID], "error", err)
			continue
		}
		cleaned++
		logger.Debug("Cleaned up expired job", "jobId", c.Labels[labelJobID])
	}

	if cleaned > 0 {
		logger.Info("Maintenance complete", "cleaned", cleaned)
	}
}

// Verify Queue implements job.Queue
var _ job.Queue = (*Queue)(nil)

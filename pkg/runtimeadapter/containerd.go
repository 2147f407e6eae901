// Package runtimeadapter is the out-of-scope "runtime adapter" collaborator
// an agent's scheduler hands ready operations to: it interprets a
// WorkloadSpec's opaque RuntimeConfig and drives containerd to make the
// host match it. Adapted from the teacher's pkg/runtime, whose
// ContainerdRuntime was keyed on a types.Container that no longer exists in
// this model; container identity here is the instance's stable text form
// instead.
package runtimeadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"syscall"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"
	"github.com/cuemby/fleet/pkg/types"
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

const (
	// DefaultNamespace is the containerd namespace instances are created in.
	DefaultNamespace = "fleet"

	// DefaultSocketPath is the default containerd socket.
	DefaultSocketPath = "/run/containerd/containerd.sock"
)

// RuntimeConfig is the JSON shape a WorkloadSpec's opaque RuntimeConfig
// bytes decode to. It is deliberately small: the dependency scheduler never
// inspects it, only this package does.
type RuntimeConfig struct {
	Image     string          `json:"image"`
	Env       []string        `json:"env,omitempty"`
	Resources *ResourceLimits `json:"resources,omitempty"`
	Mounts    []Mount         `json:"mounts,omitempty"`
}

// ResourceLimits mirrors the cgroup knobs the teacher's runtime already
// knew how to apply.
type ResourceLimits struct {
	CPUCores    float64 `json:"cpu_cores,omitempty"`
	MemoryBytes int64   `json:"memory_bytes,omitempty"`
}

// Mount is a host bind mount an instance's container gets at start, the
// edge equivalent of the teacher's secret/volume mounts (config blobs,
// device nodes, a shared data directory) — translated into a
// specs.Mount when the OCI spec is built.
type Mount struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	ReadOnly    bool   `json:"read_only,omitempty"`
}

// DecodeRuntimeConfig unmarshals a WorkloadSpec.RuntimeConfig payload.
func DecodeRuntimeConfig(raw []byte) (*RuntimeConfig, error) {
	var cfg RuntimeConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("invalid runtime config: %w", err)
	}
	if cfg.Image == "" {
		return nil, fmt.Errorf("runtime config missing image")
	}
	return &cfg, nil
}

// Adapter is the boundary between the scheduler's ready operations and a
// concrete container runtime.
type Adapter interface {
	Start(ctx context.Context, spec *types.WorkloadSpec) error
	Stop(ctx context.Context, instance types.InstanceName, timeout time.Duration) error
	Status(ctx context.Context, instance types.InstanceName) (types.ExecutionState, error)
}

// ContainerdAdapter implements Adapter over a containerd client.
type ContainerdAdapter struct {
	client    *containerd.Client
	namespace string
}

// NewContainerdAdapter connects to containerd at socketPath.
func NewContainerdAdapter(socketPath string) (*ContainerdAdapter, error) {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}

	client, err := containerd.New(socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to containerd: %w", err)
	}

	return &ContainerdAdapter{
		client:    client,
		namespace: DefaultNamespace,
	}, nil
}

// Close closes the containerd client connection.
func (a *ContainerdAdapter) Close() error {
	if a.client != nil {
		return a.client.Close()
	}
	return nil
}

// Start pulls the image spec.RuntimeConfig names, creates a container keyed
// on spec.InstanceName, and starts its task. Called only once preconditions
// have already cleared the scheduler's pending queue.
func (a *ContainerdAdapter) Start(ctx context.Context, spec *types.WorkloadSpec) error {
	ctx = namespaces.WithNamespace(ctx, a.namespace)

	cfg, err := DecodeRuntimeConfig(spec.RuntimeConfig)
	if err != nil {
		return err
	}

	id := spec.InstanceName.String()

	image, err := a.client.GetImage(ctx, cfg.Image)
	if err != nil {
		image, err = a.client.Pull(ctx, cfg.Image, containerd.WithPullUnpack)
		if err != nil {
			return fmt.Errorf("failed to pull image %s: %w", cfg.Image, err)
		}
	}

	opts := []oci.SpecOpts{
		oci.WithImageConfig(image),
		oci.WithEnv(cfg.Env),
	}

	if cfg.Resources != nil {
		if cfg.Resources.CPUCores > 0 {
			shares := uint64(cfg.Resources.CPUCores * 1024)
			quota := int64(cfg.Resources.CPUCores * 100000)
			opts = append(opts, oci.WithCPUShares(shares), oci.WithCPUCFS(quota, 100000))
		}
		if cfg.Resources.MemoryBytes > 0 {
			opts = append(opts, oci.WithMemoryLimit(uint64(cfg.Resources.MemoryBytes)))
		}
	}

	if len(cfg.Mounts) > 0 {
		mounts := make([]specs.Mount, 0, len(cfg.Mounts))
		for _, m := range cfg.Mounts {
			options := []string{"bind", "rw"}
			if m.ReadOnly {
				options = []string{"bind", "ro"}
			}
			mounts = append(mounts, specs.Mount{
				Source:      m.Source,
				Destination: m.Destination,
				Type:        "bind",
				Options:     options,
			})
		}
		opts = append(opts, oci.WithMounts(mounts))
	}

	container, err := a.client.NewContainer(
		ctx,
		id,
		containerd.WithImage(image),
		containerd.WithNewSnapshot(id+"-snapshot", image),
		containerd.WithNewSpec(opts...),
	)
	if err != nil {
		return fmt.Errorf("failed to create container %s: %w", id, err)
	}

	task, err := container.NewTask(ctx, cio.NullIO)
	if err != nil {
		return fmt.Errorf("failed to create task for %s: %w", id, err)
	}

	if err := task.Start(ctx); err != nil {
		return fmt.Errorf("failed to start task for %s: %w", id, err)
	}

	return nil
}

// Stop sends SIGTERM to instance's task, escalating to SIGKILL if it
// hasn't exited by timeout, then deletes the task and container.
func (a *ContainerdAdapter) Stop(ctx context.Context, instance types.InstanceName, timeout time.Duration) error {
	ctx = namespaces.WithNamespace(ctx, a.namespace)
	id := instance.String()

	container, err := a.client.LoadContainer(ctx, id)
	if err != nil {
		return nil // already gone
	}

	task, err := container.Task(ctx, nil)
	if err != nil {
		return a.deleteContainer(ctx, container)
	}

	stopCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := task.Kill(stopCtx, syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to signal task %s: %w", id, err)
	}

	statusC, err := task.Wait(stopCtx)
	if err != nil {
		return fmt.Errorf("failed to wait for task %s: %w", id, err)
	}

	select {
	case <-statusC:
	case <-stopCtx.Done():
		if err := task.Kill(ctx, syscall.SIGKILL); err != nil {
			return fmt.Errorf("failed to force-kill task %s: %w", id, err)
		}
	}

	if _, err := task.Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete task %s: %w", id, err)
	}

	return a.deleteContainer(ctx, container)
}

func (a *ContainerdAdapter) deleteContainer(ctx context.Context, container containerd.Container) error {
	if err := container.Delete(ctx, containerd.WithSnapshotCleanup); err != nil {
		return fmt.Errorf("failed to delete container: %w", err)
	}
	return nil
}

// Status reports the execution state containerd observes for instance.
func (a *ContainerdAdapter) Status(ctx context.Context, instance types.InstanceName) (types.ExecutionState, error) {
	ctx = namespaces.WithNamespace(ctx, a.namespace)
	id := instance.String()

	container, err := a.client.LoadContainer(ctx, id)
	if err != nil {
		return types.ExecRemoved, nil
	}

	task, err := container.Task(ctx, nil)
	if err != nil {
		return types.ExecPending, nil
	}

	status, err := task.Status(ctx)
	if err != nil {
		return types.ExecFailed, fmt.Errorf("failed to get task status for %s: %w", id, err)
	}

	switch status.Status {
	case containerd.Running, containerd.Paused:
		return types.ExecRunning, nil
	case containerd.Stopped:
		if status.ExitStatus == 0 {
			return types.ExecSucceeded, nil
		}
		return types.ExecFailed, nil
	default:
		return types.ExecPending, nil
	}
}

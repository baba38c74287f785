package backend

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"urioracle/internal/utils"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	docker "github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
)

// Handle identifies a started implementation.
type Handle struct {
	Backend     Backend
	ContainerID string
}

// Lifecycle starts and stops implementations around a run.
type Lifecycle interface {
	Start(ctx context.Context, b Backend) (Handle, error)
	Stop(ctx context.Context, h Handle) error
}

type DockerConfig struct {
	// Host is the engine address. Empty means the DOCKER_HOST environment.
	Host string
	// Pull fetches each image before creating its container.
	Pull        bool
	NamePrefix  string
	StopTimeout time.Duration
}

type dockerClient interface {
	NegotiateAPIVersion(ctx context.Context)
	ImagePull(ctx context.Context, ref string, opts image.PullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, cfg *container.Config, host *container.HostConfig, name string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, id string, opts container.StartOptions) error
	ContainerStop(ctx context.Context, id string, opts container.StopOptions) error
	ContainerRemove(ctx context.Context, id string, opts container.RemoveOptions) error
	Close() error
}

// engine narrows *docker.Client to dockerClient.
type engine struct{ *docker.Client }

func (e engine) ContainerCreate(ctx context.Context, cfg *container.Config, host *container.HostConfig, name string) (container.CreateResponse, error) {
	return e.Client.ContainerCreate(ctx, cfg, host, nil, nil, name)
}

// DockerLifecycle runs each implementation as a container publishing its
// port on the loopback interface.
type DockerLifecycle struct {
	DockerConfig

	mu            sync.Mutex
	client        dockerClient
	newClient     func(DockerConfig) (dockerClient, error)
	verNegotiated bool
}

func NewDockerLifecycle(cfg DockerConfig) *DockerLifecycle {
	if cfg.NamePrefix == "" {
		cfg.NamePrefix = "urioracle"
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 10 * time.Second
	}
	return &DockerLifecycle{
		DockerConfig: cfg,
		newClient: func(cfg DockerConfig) (dockerClient, error) {
			opts := []docker.Opt{docker.FromEnv}
			if cfg.Host != "" {
				opts = append(opts, docker.WithHost(cfg.Host))
			}
			c, err := docker.NewClientWithOpts(opts...)
			if err != nil {
				return nil, err
			}
			return engine{c}, nil
		},
	}
}

func (d *DockerLifecycle) engineClient(ctx context.Context) (dockerClient, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.client == nil {
		c, err := d.newClient(d.DockerConfig)
		if err != nil {
			return nil, fmt.Errorf("connect to docker: %w", err)
		}
		d.client = c
	}
	if !d.verNegotiated {
		d.client.NegotiateAPIVersion(ctx)
		d.verNegotiated = true
	}
	return d.client, nil
}

func (d *DockerLifecycle) Start(ctx context.Context, b Backend) (Handle, error) {
	if strings.TrimSpace(b.Image) == "" {
		return Handle{}, fmt.Errorf("%s: no image configured", b.Name)
	}
	if b.HostPort <= 0 {
		return Handle{}, fmt.Errorf("%s: no host port configured", b.Name)
	}
	cli, err := d.engineClient(ctx)
	if err != nil {
		return Handle{}, err
	}

	if d.Pull {
		if err := pullImage(ctx, cli, b.Image); err != nil {
			return Handle{}, fmt.Errorf("%s: pull %s: %w", b.Name, b.Image, err)
		}
	}

	port := nat.Port(strconv.Itoa(b.containerPort()) + "/tcp")
	resp, err := cli.ContainerCreate(ctx,
		&container.Config{
			Image:        b.Image,
			ExposedPorts: nat.PortSet{port: struct{}{}},
			Labels:       map[string]string{"urioracle.implementation": b.Name},
		},
		&container.HostConfig{
			PortBindings: nat.PortMap{
				port: []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: strconv.Itoa(b.HostPort)}},
			},
		},
		d.NamePrefix+"-"+b.Name,
	)
	if err != nil {
		return Handle{}, fmt.Errorf("%s: create container: %w", b.Name, err)
	}
	for _, w := range resp.Warnings {
		logWarnFn(fmt.Sprintf("[%s] docker: %s", b.Name, w))
	}

	if err := cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		if rmErr := cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true}); rmErr != nil {
			logErrorFn(fmt.Sprintf("[%s] remove failed container %s: %v", b.Name, resp.ID, rmErr))
		}
		return Handle{}, fmt.Errorf("%s: start container: %w", b.Name, err)
	}
	return Handle{Backend: b, ContainerID: resp.ID}, nil
}

func (d *DockerLifecycle) Stop(ctx context.Context, h Handle) error {
	if h.ContainerID == "" {
		return nil
	}
	cli, err := d.engineClient(ctx)
	if err != nil {
		return err
	}
	timeout := int(d.StopTimeout / time.Second)
	var errs []error
	if err := cli.ContainerStop(ctx, h.ContainerID, container.StopOptions{Timeout: &timeout}); err != nil {
		errs = append(errs, fmt.Errorf("%s: stop container: %w", h.Backend.Name, err))
	}
	if err := cli.ContainerRemove(ctx, h.ContainerID, container.RemoveOptions{Force: true}); err != nil {
		errs = append(errs, fmt.Errorf("%s: remove container: %w", h.Backend.Name, err))
	}
	return errors.Join(errs...)
}

func (d *DockerLifecycle) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.client == nil {
		return nil
	}
	err := d.client.Close()
	d.client = nil
	d.verNegotiated = false
	return err
}

func pullImage(ctx context.Context, cli dockerClient, ref string) error {
	rc, err := cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return err
	}
	defer rc.Close()

	sc := bufio.NewScanner(rc)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if line := strings.TrimSpace(utils.SanitizeOutput(sc.Text())); line != "" {
			logDebugFn("docker pull " + ref + ": " + line)
		}
	}
	return sc.Err()
}

// StartAll starts every backend in order. On failure the ones already
// started are stopped again.
func StartAll(ctx context.Context, lc Lifecycle, backends []Backend) ([]Handle, error) {
	handles := make([]Handle, 0, len(backends))
	for _, b := range backends {
		h, err := lc.Start(ctx, b)
		if err != nil {
			if stopErr := StopAll(context.WithoutCancel(ctx), lc, handles); stopErr != nil {
				logErrorFn(fmt.Sprintf("rollback after failed start: %v", stopErr))
			}
			return nil, err
		}
		handles = append(handles, h)
	}
	return handles, nil
}

// StopAll stops every handle, reporting all failures.
func StopAll(ctx context.Context, lc Lifecycle, handles []Handle) error {
	var errs []error
	for i := len(handles) - 1; i >= 0; i-- {
		if err := lc.Stop(ctx, handles[i]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

package mountserver

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/xid"
	log "github.com/sirupsen/logrus"
)

// DefaultProbeInterval is the pause between readiness probes while waiting
// for the mount-server to come up.
const DefaultProbeInterval = time.Second

// TimeoutError reports that the mount-server never became reachable within
// the allowed wait.
type TimeoutError struct {
	Wait time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("mount-server did not become ready within %s", e.Wait)
}

// Supervisor keeps a mount-server reachable. It spawns `pachctl
// mount-server` on demand and probes the control plane until it answers.
// The child is otherwise fire and forget: a crash is noticed only by the
// next failing probe, which spawns a fresh one.
type Supervisor struct {
	client        *Client
	command       []string
	probeInterval time.Duration

	mu      sync.Mutex
	running bool
}

func NewSupervisor(client *Client) *Supervisor {
	return &Supervisor{
		client:        client,
		command:       []string{"pachctl", "mount-server"},
		probeInterval: DefaultProbeInterval,
	}
}

// EnsureReady probes the control plane and returns immediately if it
// answers. Otherwise it spawns the mount-server (at most one child at a
// time, however many callers race here) and polls until the probe succeeds
// or timeout elapses.
func (s *Supervisor) EnsureReady(ctx context.Context, timeout time.Duration) error {
	if _, err := s.client.Repos(ctx); err == nil {
		return nil
	}

	s.spawn()

	deadline := time.Now().Add(timeout)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.probeInterval):
		}
		if _, err := s.client.Repos(ctx); err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return &TimeoutError{Wait: timeout}
		}
	}
}

func (s *Supervisor) spawn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	spawnID := xid.New().String()
	logger := log.WithField("spawnID", spawnID).WithField("command", s.command)
	cmd := exec.Command(s.command[0], s.command[1:]...)
	if err := cmd.Start(); err != nil {
		logger.WithError(err).Error("Failed to start mount-server")
		return
	}
	s.running = true
	logger.WithField("pid", cmd.Process.Pid).Info("Started mount-server")

	// Reap the child so a crash can be respawned by a later probe failure.
	go func() {
		err := cmd.Wait()
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		logger.WithError(err).Warn("mount-server exited")
	}()
}

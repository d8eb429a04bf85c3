// Package supervisor starts the external agent process and waits for
// its socket to accept connections.
package supervisor

import (
	"net"
	"os"
	"os/exec"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/bridge/config"
	"github.com/grovetools/bridge/errors"
	"github.com/grovetools/bridge/logging"
)

const (
	readyAttempts = 30
	readyInterval = time.Second
	dialTimeout   = 500 * time.Millisecond
)

// Supervisor owns the agent child process. There is no restart policy:
// if the agent exits, the bridge logs it and keeps serving reads.
type Supervisor struct {
	cfg config.AgentConfig
	cmd *exec.Cmd
	log *logrus.Entry

	exited chan struct{}
}

// New creates a Supervisor for the configured agent.
func New(cfg config.AgentConfig) *Supervisor {
	return &Supervisor{
		cfg:    cfg,
		log:    logging.NewLogger("supervisor"),
		exited: make(chan struct{}),
	}
}

// BuildArgs computes the agent's command line from configuration.
func BuildArgs(cfg config.AgentConfig) []string {
	var args []string
	if cfg.Model != "" {
		args = append(args, "--model", cfg.Model)
	}
	for _, dir := range cfg.TrustedDirectories {
		args = append(args, "--add-dir", dir)
	}
	for _, url := range cfg.AllowedURLs {
		args = append(args, "--allow-url", url)
	}
	return append(args, cfg.Args...)
}

// Start spawns the agent process. Stderr is inherited for diagnostics;
// stdin and stdout are wired through in case the agent multiplexes its
// protocol there as well.
func (s *Supervisor) Start() error {
	args := BuildArgs(s.cfg)
	s.log.WithFields(logrus.Fields{
		"command": s.cfg.Command,
		"args":    args,
	}).Info("Starting agent process")

	cmd := exec.Command(s.cfg.Command, args...)
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout

	if err := cmd.Start(); err != nil {
		return errors.AgentSpawn(s.cfg.Command, err)
	}
	s.cmd = cmd
	s.log.WithField("pid", cmd.Process.Pid).Info("Agent process started")

	go func() {
		err := cmd.Wait()
		if err != nil {
			s.log.WithError(err).Error("Agent process exited")
		} else {
			s.log.Warn("Agent process exited cleanly")
		}
		close(s.exited)
	}()
	return nil
}

// WaitReady polls the agent socket until it accepts a connection or
// the attempt budget runs out.
func (s *Supervisor) WaitReady() error {
	addr := s.cfg.Addr()
	for attempt := 1; attempt <= readyAttempts; attempt++ {
		select {
		case <-s.exited:
			return errors.AgentSpawn(s.cfg.Command, nil).
				WithDetail("reason", "process exited before becoming ready")
		default:
		}

		conn, err := net.DialTimeout("tcp", addr, dialTimeout)
		if err == nil {
			conn.Close()
			s.log.WithFields(logrus.Fields{
				"addr":     addr,
				"attempts": attempt,
			}).Info("Agent socket ready")
			return nil
		}
		time.Sleep(readyInterval)
	}
	return errors.AgentTimeout(addr, readyAttempts)
}

// Exited returns a channel closed when the agent process terminates.
func (s *Supervisor) Exited() <-chan struct{} {
	return s.exited
}

// PID returns the agent's process id, or 0 before Start.
func (s *Supervisor) PID() int {
	if s.cmd == nil || s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// Stop terminates the agent process if it is still running.
func (s *Supervisor) Stop() {
	if s.cmd == nil || s.cmd.Process == nil {
		return
	}
	select {
	case <-s.exited:
		return
	default:
	}
	s.log.WithField("pid", s.cmd.Process.Pid).Info("Stopping agent process")
	if err := s.cmd.Process.Signal(os.Interrupt); err != nil {
		s.cmd.Process.Kill()
		return
	}
	select {
	case <-s.exited:
	case <-time.After(5 * time.Second):
		s.log.Warn("Agent did not exit on interrupt, killing")
		s.cmd.Process.Kill()
	}
}

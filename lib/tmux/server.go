// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package tmux provides a typed interface to tmux servers. Dispatch
// runs its own dedicated tmux server (distinct from the user's
// personal tmux) to host agent windows: one session for the whole
// queue, one window per running ticket. All operations target a
// specific server socket; there is no default server, and the user's
// ~/.tmux.conf is never loaded.
//
// The central type is Server, which represents a connection to a tmux
// server identified by its Unix socket path. All tmux commands go
// through Server, which injects the -S flag automatically. This makes
// it structurally impossible to accidentally target the wrong server
// or forget to specify a socket.
package tmux

import (
	"fmt"
	"os/exec"
	"strings"
)

// Server represents a tmux server identified by its Unix socket path.
type Server struct {
	socketPath string
	configFile string // passed as "-f <path>" on new-session; empty = tmux default
}

// NewServer returns a Server that targets the given socket path.
//
// configFile controls which configuration file tmux loads when the
// server starts (which happens on the first new-session call). Pass
// "/dev/null" to prevent loading the user's ~/.tmux.conf; dispatch
// always does this for its production server and all tests.
func NewServer(socketPath, configFile string) *Server {
	return &Server{
		socketPath: socketPath,
		configFile: configFile,
	}
}

// SocketPath returns the Unix socket path that identifies this server.
func (s *Server) SocketPath() string {
	return s.socketPath
}

// NewSession creates a detached tmux session on this server. If
// command is non-empty, the session's first window runs that command
// instead of the default shell.
//
// The -f flag (config file) is passed on new-session because this
// command may start the server if it isn't already running. Subsequent
// commands don't re-read the config file, so only new-session needs it.
func (s *Server) NewSession(sessionName string, command ...string) error {
	var args []string
	if s.configFile != "" {
		args = append(args, "-f", s.configFile)
	}
	args = append(args, "-S", s.socketPath, "new-session", "-d", "-s", sessionName)
	args = append(args, command...)
	cmd := exec.Command("tmux", args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("tmux new-session %q: %w (%s)",
			sessionName, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// HasSession reports whether a session with the given name exists on
// this server. Returns false if the server is not running.
func (s *Server) HasSession(sessionName string) bool {
	cmd := exec.Command("tmux", "-S", s.socketPath, "has-session", "-t", sessionName)
	return cmd.Run() == nil
}

// EnsureSession creates the session if it does not exist. The
// session's home window runs an idle loop so that the session (and
// with it the server) survives agent windows coming and going.
func (s *Server) EnsureSession(sessionName string) error {
	if s.HasSession(sessionName) {
		return nil
	}
	return s.NewSession(sessionName, "sh", "-c", "while true; do sleep 3600; done")
}

// NewWindow creates a detached window named windowName in the given
// session, running the given command.
func (s *Server) NewWindow(sessionName, windowName string, command ...string) error {
	args := []string{"-S", s.socketPath, "new-window", "-d",
		"-t", sessionName, "-n", windowName}
	args = append(args, command...)
	cmd := exec.Command("tmux", args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("tmux new-window %q in %q: %w (%s)",
			windowName, sessionName, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// HasWindow reports whether a window with the given name exists in the
// session. Returns false if the session or server is gone.
func (s *Server) HasWindow(sessionName, windowName string) bool {
	windows, err := s.ListWindows(sessionName)
	if err != nil {
		return false
	}
	for _, name := range windows {
		if name == windowName {
			return true
		}
	}
	return false
}

// ListWindows returns the window names of a session.
func (s *Server) ListWindows(sessionName string) ([]string, error) {
	output, err := s.Run("list-windows", "-t", sessionName, "-F", "#{window_name}")
	if err != nil {
		return nil, err
	}
	var names []string
	for _, line := range strings.Split(output, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

// KillWindow terminates a window. Returns nil if the window, session,
// or server was already gone; these are normal conditions during
// abort and cleanup, not errors.
func (s *Server) KillWindow(sessionName, windowName string) error {
	cmd := exec.Command("tmux", "-S", s.socketPath, "kill-window",
		"-t", sessionName+":"+windowName)
	output, err := cmd.CombinedOutput()
	if err != nil {
		outputString := strings.TrimSpace(string(output))
		if strings.Contains(outputString, "can't find") ||
			strings.Contains(outputString, "no server running") {
			return nil
		}
		return fmt.Errorf("tmux kill-window %q: %w (%s)",
			windowName, err, outputString)
	}
	return nil
}

// KillSession terminates a specific session. Returns nil if the
// session was already gone or the server was not running.
func (s *Server) KillSession(sessionName string) error {
	cmd := exec.Command("tmux", "-S", s.socketPath, "kill-session", "-t", sessionName)
	output, err := cmd.CombinedOutput()
	if err != nil {
		outputString := strings.TrimSpace(string(output))
		if strings.Contains(outputString, "can't find session") ||
			strings.Contains(outputString, "no server running") {
			return nil
		}
		return fmt.Errorf("tmux kill-session %q: %w (%s)",
			sessionName, err, outputString)
	}
	return nil
}

// KillServer terminates the entire tmux server, stopping all sessions.
// Returns nil if the server was already stopped.
func (s *Server) KillServer() error {
	cmd := exec.Command("tmux", "-S", s.socketPath, "kill-server")
	output, err := cmd.CombinedOutput()
	if err != nil {
		outputString := strings.TrimSpace(string(output))
		// The "server exited unexpectedly" message appears when the
		// socket file lingers briefly after the server process has
		// exited.
		if strings.Contains(outputString, "no server running") ||
			strings.Contains(outputString, "server exited unexpectedly") {
			return nil
		}
		return fmt.Errorf("tmux kill-server: %w (%s)", err, outputString)
	}
	return nil
}

// Run executes an arbitrary tmux subcommand on this server and returns
// the combined output. This is the escape hatch for commands that
// don't have a dedicated method. The -S flag is automatically
// prepended; callers provide only the subcommand and its arguments.
func (s *Server) Run(args ...string) (string, error) {
	fullArgs := append([]string{"-S", s.socketPath}, args...)
	cmd := exec.Command("tmux", fullArgs...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("tmux %s: %w (%s)",
			strings.Join(args, " "), err, strings.TrimSpace(string(output)))
	}
	return string(output), nil
}

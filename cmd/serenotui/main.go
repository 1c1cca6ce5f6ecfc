package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/sereno-app/sereno/internal/client"
	"github.com/sereno-app/sereno/internal/session"
	"github.com/sereno-app/sereno/internal/tui"
)

const (
	statusTimeout = 2 * time.Second
	startTimeout = 10 * time.Second
	pollInterval = 300 * time.Millisecond
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	roomFlag := flag.String("room", "", "room to open when the daemon is started")
	flag.Parse()

	if err := run(*profileFlag, *roomFlag); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(profileFlag, room string) error {
	profile, err := session.Active(profileFlag)
	if err != nil {
		return err
	}
	socketPath := session.SocketPath(profile)

	c, err := ensureDaemon(profile, room, socketPath)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	return tui.NewApp(c, profile).Run()
}

// ensureDaemon returns a client for a responsive daemon, spawning serenod
// when none answers on socketPath.
func ensureDaemon(profile, room, socketPath string) (*client.Client, error) {
	c, err := client.New(socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon: %w", err)
	}
	if alive(c) {
		return c, nil
	}

	fmt.Fprintf(os.Stderr, "daemon not running for profile %q, starting...\n", profile)
	if err := spawnDaemon(profile, room); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("start daemon: %w", err)
	}
	for deadline := time.Now().Add(startTimeout); time.Now().Before(deadline); time.Sleep(pollInterval) {
		if alive(c) {
			return c, nil
		}
	}
	_ = c.Close()
	return nil, errors.New("daemon did not become ready, see " + session.LogPath(profile))
}

// alive reports whether the daemon answers Status.
func alive(c *client.Client) bool {
	ctx, cancel := context.WithTimeout(context.Background(), statusTimeout)
	defer cancel()
	_, err := c.Status(ctx)
	return err == nil
}

// spawnDaemon starts serenod from next to this binary, falling back to PATH.
func spawnDaemon(profile, room string) error {
	bin := "serenod"
	if exe, err := os.Executable(); err == nil {
		if sibling := filepath.Join(filepath.Dir(exe), bin); fileExists(sibling) {
			bin = sibling
		}
	}

	args := []string{"--profile", profile}
	if room != "" {
		args = append(args, "--room", room)
	}
	cmd := exec.Command(bin, args...)
	// Startup errors go to our stderr until the daemon's own log takes over.
	cmd.Stderr = os.Stderr
	return cmd.Start()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

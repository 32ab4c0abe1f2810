package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strings"

	"github.com/mdlayher/ethernet"
)

const (
	defaultNamespace = "default"
	broadcastIPv4    = "255.255.255.255"
)

// Invocation describes one child process as an argument list.
type Invocation struct {
	Path string
	Args []string
}

func (inv Invocation) String() string {
	return strings.Join(append([]string{inv.Path}, inv.Args...), " ")
}

// RunError reports a child process that ran but exited non-zero.
type RunError struct {
	Invocation Invocation
	Code       int
	Output     []byte
}

func (e *RunError) Error() string {
	return fmt.Sprintf("return code %d for command: [%s]", e.Code, e.Invocation)
}

// Runner executes an Invocation to completion and returns its combined output.
type Runner interface {
	Run(ctx context.Context, inv Invocation) ([]byte, error)
}

type localRunner struct{}

func (localRunner) Run(ctx context.Context, inv Invocation) ([]byte, error) {
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, inv.Path, inv.Args...)
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return out.Bytes(), &RunError{Invocation: inv, Code: exitErr.ExitCode(), Output: out.Bytes()}
	}
	if err != nil {
		return out.Bytes(), fmt.Errorf("running [%s]: %w", inv, err)
	}
	return out.Bytes(), nil
}

// Announcement is one GARP to send for a virtual IP.
type Announcement struct {
	Namespace string
	Interface string
	IP        string
	MAC       net.HardwareAddr
}

// Transmitter sends an Announcement on the wire.
type Transmitter interface {
	Announce(ctx context.Context, a Announcement) error
}

// namespaceFor maps a VRF name to the network namespace it runs in.
func namespaceFor(vrf, prefix string) string {
	if vrf == defaultNamespace {
		return vrf
	}
	return prefix + vrf
}

// ethxmitTransmitter hands each announcement to the ethxmit utility inside
// the VRF's namespace.
type ethxmitTransmitter struct {
	runner Runner
	binary string
	sudo   bool
	dryRun bool
}

func (t *ethxmitTransmitter) invocation(a Announcement) Invocation {
	args := []string{
		"netns", "exec", a.Namespace,
		t.binary,
		"--ip-src=" + a.IP,
		"--ip-dst=" + broadcastIPv4,
		"-S", a.MAC.String(),
		"-D", ethernet.Broadcast.String(),
		"--arp=reply",
		a.Interface,
	}
	if !t.sudo {
		return Invocation{Path: "ip", Args: args}
	}
	return Invocation{Path: "sudo", Args: append([]string{"ip"}, args...)}
}

func (t *ethxmitTransmitter) Announce(ctx context.Context, a Announcement) error {
	inv := t.invocation(a)
	if t.dryRun {
		Logger.Infof("Would run command: [%s]", inv)
		return nil
	}
	Logger.Infof("Running command: [%s]", inv)
	out, err := t.runner.Run(ctx, inv)
	if len(out) > 0 {
		Logger.Debugf("ethxmit output: %s", bytes.TrimSpace(out))
	}
	return err
}

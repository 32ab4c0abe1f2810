package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
	"golang.org/x/term"
)

// sshRunner executes invocations on a remote device, one session per call.
// The remote login shell must be a POSIX shell.
type sshRunner struct {
	client *ssh.Client
}

func dialSSH(cfg *SSHConfig) (*sshRunner, error) {
	auth, err := sshAuth(cfg)
	if err != nil {
		return nil, err
	}

	hostKey := ssh.InsecureIgnoreHostKey()
	if cfg.KnownHosts != "" {
		hostKey, err = knownhosts.New(cfg.KnownHosts)
		if err != nil {
			return nil, fmt.Errorf("known hosts %s: %w", cfg.KnownHosts, err)
		}
	} else {
		Logger.Warnf("No known_hosts file configured, not verifying host key of %s", cfg.Host)
	}

	config := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         cfg.DialTimeout,
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	client, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, fmt.Errorf("SSH dial %s: %w", addr, err)
	}
	return &sshRunner{client: client}, nil
}

func sshAuth(cfg *SSHConfig) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod
	if cfg.IdentityFile != "" {
		key, err := os.ReadFile(cfg.IdentityFile)
		if err != nil {
			return nil, fmt.Errorf("reading identity %s: %w", cfg.IdentityFile, err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parsing identity %s: %w", cfg.IdentityFile, err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	pass := cfg.Password
	if pass == "" && len(methods) == 0 {
		fd := int(os.Stdin.Fd())
		if !term.IsTerminal(fd) {
			return nil, fmt.Errorf("%w: no SSH password or identity for %s@%s", ErrUsage, cfg.User, cfg.Host)
		}
		fmt.Fprintf(os.Stderr, "%s@%s's password: ", cfg.User, cfg.Host)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return nil, fmt.Errorf("reading password: %w", err)
		}
		pass = string(b)
	}
	if pass != "" {
		methods = append(methods, ssh.Password(pass))
	}
	return methods, nil
}

func (r *sshRunner) Run(ctx context.Context, inv Invocation) ([]byte, error) {
	session, err := r.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("SSH session: %w", err)
	}
	defer session.Close()

	var out bytes.Buffer
	session.Stdout = &out
	session.Stderr = &out

	done := make(chan error, 1)
	go func() { done <- session.Run(shellCommand(inv)) }()

	select {
	case err = <-done:
	case <-ctx.Done():
		// Closing the channel unblocks session.Run even if the remote
		// ignores the signal, and out is only read once it has returned.
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
		<-done
		return out.Bytes(), ctx.Err()
	}

	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return out.Bytes(), &RunError{Invocation: inv, Code: exitErr.ExitStatus(), Output: out.Bytes()}
	}
	if err != nil {
		return out.Bytes(), fmt.Errorf("SSH exec [%s]: %w", inv, err)
	}
	return out.Bytes(), nil
}

func (r *sshRunner) Close() error {
	return r.client.Close()
}

// shellCommand renders inv for a POSIX shell, single-quoting every word.
func shellCommand(inv Invocation) string {
	words := make([]string, 0, len(inv.Args)+1)
	for _, w := range append([]string{inv.Path}, inv.Args...) {
		words = append(words, shellQuote(w))
	}
	return strings.Join(words, " ")
}

func shellQuote(s string) string {
	if s != "" && strings.IndexFunc(s, needsQuote) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func needsQuote(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	}
	return !strings.ContainsRune("-_./:=@,+", r)
}

// send-garp sends gratuitous ARP replies for the virtual IPs a switch hosts,
// so that upstream devices refresh their ARP caches after a failover.
//
// Two sources of virtual IPs are covered: VARP virtual routers
// ("ip virtual-router address") and per-interface "ip address virtual".
//
// Usage:
//
//	send-garp -a                 Announce every active segment
//	send-garp vlan10,20          Announce vlan10 and vlan20
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd := newRootCmd(launch)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR - %v\n", err)
		if errors.Is(err, ErrUsage) {
			fmt.Fprintln(os.Stderr)
			_ = cmd.Usage()
		}
		stop()
		os.Exit(1)
	}
}

type rootFlags struct {
	all            bool
	verbose        bool
	logJSON        bool
	dryRun         bool
	configPath     string
	mode           string
	count          int
	routerState    string
	interfaceState string
	host           string
	port           int
	user           string
	identity       string
	knownHosts     string
}

func newRootCmd(launchFn func(context.Context, *RunConfig) error) *cobra.Command {
	var f rootFlags

	cmd := &cobra.Command{
		Use:   "send-garp [flags] <segment>[,<segment>...]",
		Short: "Send gratuitous ARP for VARP and 'ip address virtual' addresses",
		Long:  `send-garp announces the virtual MAC for every virtual IP configured on
the selected segments, so neighbours update their ARP caches.

A segment given only as digits is taken as a VLAN number: "10" means "vlan10".`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := buildRunConfig(cmd, &f, args)
			if err != nil {
				return err
			}
			return launchFn(cmd.Context(), cfg)
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	})

	fl := cmd.Flags()
	fl.BoolVarP(&f.all, "all", "a", false, "send GARP for all configured segments")
	fl.BoolVarP(&f.verbose, "verbose", "v", false, "verbose output")
	fl.BoolVar(&f.logJSON, "log-json", false, "log in JSON format")
	fl.BoolVar(&f.dryRun, "dry-run", false, "log announcements without sending them")
	fl.StringVar(&f.configPath, "config", "", "settings file (default "+ConfigFilename+" beside the executable)")
	fl.StringVar(&f.mode, "mode", modeEthxmit, "transmitter: "+modeEthxmit+" or "+modeNative)
	fl.IntVar(&f.count, "count", 1, "announcements per virtual IP")
	fl.StringVar(&f.routerState, "router-state", "", "read virtual-router JSON from file instead of the device CLI")
	fl.StringVar(&f.interfaceState, "interface-state", "", "read ip interface JSON from file instead of the device CLI")
	fl.StringVar(&f.host, "host", "", "run on a remote device over SSH")
	fl.IntVar(&f.port, "port", 22, "SSH port")
	fl.StringVar(&f.user, "user", "", "SSH user")
	fl.StringVar(&f.identity, "identity", "", "SSH private key file")
	fl.StringVar(&f.knownHosts, "known-hosts", "", "SSH known_hosts file used to verify the device")

	return cmd
}

// buildRunConfig layers defaults, the settings file, the environment and the
// command line. Nothing here touches the device.
func buildRunConfig(cmd *cobra.Command, f *rootFlags, args []string) (*RunConfig, error) {
	sc, err := readConfig(f.configPath)
	if err != nil {
		return nil, err
	}

	if sc.LogJSON || f.logJSON {
		SetJSONFormat()
	}
	if f.verbose {
		_ = SetLogLevel("debug")
	} else if sc.LogLevel != "" {
		if err := SetLogLevel(sc.LogLevel); err != nil {
			return nil, fmt.Errorf("%w: log level: %v", ErrUsage, err)
		}
	}

	cfg := defaultConfig()
	sc.apply(cfg)
	applyEnv(cfg)

	fl := cmd.Flags()
	if fl.Changed("mode") {
		cfg.Mode = f.mode
	}
	if fl.Changed("count") {
		cfg.Count = f.count
	}
	if fl.Changed("host") {
		cfg.SSH.Host = f.host
	}
	if fl.Changed("port") {
		cfg.SSH.Port = f.port
	}
	if fl.Changed("user") {
		cfg.SSH.User = f.user
	}
	if fl.Changed("identity") {
		cfg.SSH.IdentityFile = f.identity
	}
	if fl.Changed("known-hosts") {
		cfg.SSH.KnownHosts = f.knownHosts
	}
	cfg.DryRun = f.dryRun
	cfg.RouterState = f.routerState
	cfg.InterfaceState = f.interfaceState

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	cfg.Selector, err = ParseSelector(f.all, args, cfg.SegmentLabel)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// launch wires the runner, state source and transmitter for cfg and runs.
func launch(ctx context.Context, cfg *RunConfig) error {
	var runner Runner = localRunner{}
	if cfg.SSH.Host != "" {
		r, err := dialSSH(&cfg.SSH)
		if err != nil {
			return err
		}
		defer closeQuietly(r)
		runner = r
	}

	var src StateSource = &cliSource{runner: runner, cli: cfg.DeviceCLI}
	if cfg.RouterState != "" {
		src = &fileSource{routerPath: cfg.RouterState, interfacePath: cfg.InterfaceState}
	}

	var tx Transmitter = &ethxmitTransmitter{
		runner: runner,
		binary: cfg.Ethxmit,
		sudo:   cfg.Sudo,
		dryRun: cfg.DryRun,
	}
	if cfg.Mode == modeNative {
		tx = &nativeTransmitter{dryRun: cfg.DryRun}
	}

	_, err := run(ctx, cfg, src, tx)
	return err
}

// run acquires both snapshots, resolves the virtual MAC and dispatches. Only
// acquisition and MAC resolution fail the run.
func run(ctx context.Context, cfg *RunConfig, src StateSource, tx Transmitter) (Report, error) {
	routers, err := src.VirtualRouters(ctx)
	if err != nil {
		return Report{}, err
	}
	interfaces, err := src.Interfaces(ctx)
	if err != nil {
		return Report{}, err
	}

	vmac, err := ResolveVirtualMAC(routers)
	if err != nil {
		return Report{}, fmt.Errorf("%w, aborting", err)
	}
	Logger.Infof("virtual MAC is: [%s]", vmac)

	d := &Dispatcher{
		Selector:        cfg.Selector,
		NamespacePrefix: cfg.NamespacePrefix,
		Count:           cfg.Count,
		Transmitter:     tx,
	}

	var rep Report
	rep.add(d.HandleVARP(ctx, routers, vmac))
	rep.add(d.HandleAddressVirtual(ctx, interfaces, vmac))

	Logger.WithField("announced", rep.Announced).
		WithField("failed", rep.Failed).
		WithField("skipped", rep.Skipped).
		Info("GARP run complete")
	return rep, nil
}

func closeQuietly(c io.Closer) {
	//nolint:errcheck
	c.Close()
}

package main

import (
	"context"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"
)

type fakeSource struct {
	routers    string
	interfaces string
	queried    bool
}

func (f *fakeSource) VirtualRouters(context.Context) (*VirtualRouterState, error) {
	f.queried = true
	return DecodeVirtualRouterState([]byte(f.routers))
}

func (f *fakeSource) Interfaces(context.Context) (*InterfaceState, error) {
	f.queried = true
	return DecodeInterfaceState([]byte(f.interfaces))
}

func executeRoot(t *testing.T, args ...string) (*RunConfig, bool, error) {
	t.Helper()
	var got *RunConfig
	launched := false
	cmd := newRootCmd(func(_ context.Context, cfg *RunConfig) error {
		launched = true
		got = cfg
		return nil
	})
	cmd.SetArgs(args)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	err := cmd.ExecuteContext(context.Background())
	return got, launched, err
}

func TestRootCmdUsageError(t *testing.T) {
	_, launched, err := executeRoot(t)
	if !errors.Is(err, ErrUsage) {
		t.Errorf("expected usage error, got %v", err)
	}
	if launched {
		t.Error("device must not be queried on usage error")
	}
}

func TestRootCmdUnknownFlag(t *testing.T) {
	_, launched, err := executeRoot(t, "--bogus")
	if !errors.Is(err, ErrUsage) || launched {
		t.Errorf("unknown flag: err = %v, launched = %v", err, launched)
	}
}

func TestRootCmdHelp(t *testing.T) {
	_, launched, err := executeRoot(t, "--help")
	if err != nil || launched {
		t.Errorf("help: err = %v, launched = %v", err, launched)
	}
}

func TestRootCmdSelector(t *testing.T) {
	tests := []struct {
		args []string
		want Selector
	}{
		{[]string{"-a"}, Selector{SelectAll}},
		{[]string{"-a", "vlan10"}, Selector{SelectAll}},
		{[]string{"vlan10,20"}, Selector{"vlan10", "vlan20"}},
		{[]string{"100"}, Selector{"vlan100"}},
	}
	for _, tt := range tests {
		cfg, launched, err := executeRoot(t, tt.args...)
		if err != nil || !launched {
			t.Fatalf("%v: err = %v, launched = %v", tt.args, err, launched)
		}
		if !reflect.DeepEqual(cfg.Selector, tt.want) {
			t.Errorf("%v: selector = %v, want %v", tt.args, cfg.Selector, tt.want)
		}
	}
}

func TestRootCmdFlags(t *testing.T) {
	cfg, _, err := executeRoot(t, "--mode", "native", "--count", "2", "--dry-run", "-a")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Mode != modeNative || cfg.Count != 2 || !cfg.DryRun {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.DeviceCLI != "FastCli" || cfg.NamespacePrefix != "ns-" {
		t.Errorf("defaults lost: %+v", cfg)
	}

	if _, launched, err := executeRoot(t, "--mode", "scapy", "-a"); !errors.Is(err, ErrUsage) || launched {
		t.Errorf("bad mode: err = %v, launched = %v", err, launched)
	}
}

func TestRunScenarioDefaultVRF(t *testing.T) {
	src := &fakeSource{
		routers: `{"virtualMacs": [{"macType": "varp", "macAddress": "00:1c:73:aa:bb:cc"}],
		  "virtualRouters": [{"interface": "Vlan10", "vrfName": "default", "state": "active", "virtualIps": [{"ip": "10.0.0.1"}]}]}`,
		interfaces: `{"interfaces": {}}`,
	}
	r := &fakeRunner{}
	tx := &ethxmitTransmitter{runner: r, binary: "ethxmit", sudo: true}
	cfg := defaultConfig()
	cfg.Selector = Selector{"vlan10"}

	rep, err := run(context.Background(), cfg, src, tx)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Announced != 1 || len(r.calls) != 1 {
		t.Fatalf("report = %+v, calls = %v", rep, r.calls)
	}
	want := "sudo ip netns exec default ethxmit --ip-src=10.0.0.1 --ip-dst=255.255.255.255 -S 00:1c:73:aa:bb:cc -D ff:ff:ff:ff:ff:ff --arp=reply vlan10"
	if got := r.calls[0].String(); got != want {
		t.Errorf("command = %s\nwant      %s", got, want)
	}
}

func TestRunScenarioNamedVRF(t *testing.T) {
	src := &fakeSource{
		routers: `{"virtualMacs": [{"macType": "varp", "macAddress": "00:1c:73:aa:bb:cc"}],
		  "virtualRouters": [{"interface": "Vlan10", "vrfName": "blue", "state": "active", "virtualIps": [{"ip": "10.0.0.1"}]}]}`,
		interfaces: `{"interfaces": {}}`,
	}
	r := &fakeRunner{}
	cfg := defaultConfig()
	cfg.Selector = Selector{"vlan10"}

	if _, err := run(context.Background(), cfg, src, &ethxmitTransmitter{runner: r, binary: "ethxmit", sudo: true}); err != nil {
		t.Fatal(err)
	}
	if len(r.calls) != 1 || !strings.Contains(r.calls[0].String(), "netns exec ns-blue ") {
		t.Errorf("calls = %v", r.calls)
	}
}

func TestRunZeroMACAborts(t *testing.T) {
	src := &fakeSource{
		routers: `{"virtualMacs": [{"macType": "varp", "macAddress": "00:00:00:00:00:00"}],
		  "virtualRouters": [{"interface": "Vlan10", "vrfName": "default", "state": "active", "virtualIps": [{"ip": "10.0.0.1"}]}]}`,
		interfaces: `{"interfaces": {"Vlan20": {"name": "Vlan20", "vrf": "default", "lineProtocolStatus": "up", "interfaceStatus": "connected",
		  "interfaceAddress": {"virtualIp": {"address": "10.0.20.1"}}}}}`,
	}
	tx := &fakeTransmitter{}
	cfg := defaultConfig()
	cfg.Selector = Selector{SelectAll}

	_, err := run(context.Background(), cfg, src, tx)
	if !errors.Is(err, ErrNoVirtualMAC) {
		t.Errorf("expected ErrNoVirtualMAC, got %v", err)
	}
	if len(tx.sent) != 0 {
		t.Errorf("no announcement may follow a MAC failure, sent %v", tx.sent)
	}
}

func TestRunTransmitFailureIsNotFatal(t *testing.T) {
	src := &fakeSource{
		routers: `{"virtualMacs": [{"macType": "varp", "macAddress": "00:1c:73:aa:bb:cc"}],
		  "virtualRouters": [{"interface": "Vlan10", "vrfName": "default", "state": "active", "virtualIps": [{"ip": "10.0.0.1"}]}]}`,
		interfaces: `{"interfaces": {"Vlan20": {"name": "Vlan20", "vrf": "default", "lineProtocolStatus": "up", "interfaceStatus": "connected",
		  "interfaceAddress": {"virtualIp": {"address": "10.0.20.1"}}}}}`,
	}
	tx := &fakeTransmitter{fail: map[string]bool{"10.0.0.1": true}}
	cfg := defaultConfig()
	cfg.Selector = Selector{SelectAll}

	rep, err := run(context.Background(), cfg, src, tx)
	if err != nil {
		t.Fatalf("transmit failures must not fail the run: %v", err)
	}
	if rep.Failed != 1 || rep.Announced != 1 {
		t.Errorf("report = %+v", rep)
	}
}

func TestRunSourceError(t *testing.T) {
	src := &fakeSource{routers: `{}`, interfaces: `{"interfaces": {}}`}
	tx := &fakeTransmitter{}
	cfg := defaultConfig()
	cfg.Selector = Selector{SelectAll}

	if _, err := run(context.Background(), cfg, src, tx); err == nil {
		t.Error("missing keys should fail the run")
	}
	if len(tx.sent) != 0 {
		t.Errorf("sent %v", tx.sent)
	}
}

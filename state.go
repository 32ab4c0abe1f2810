package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
)

const (
	virtualRouterCommand = "show ip virtual-router vrf all | json"
	ipInterfaceCommand   = "show ip interface | json"
)

type (
	VirtualMacRecord struct {
		MacType    string `json:"macType"`
		MacAddress string `json:"macAddress"`
	}

	VirtualIP struct {
		IP string `json:"ip"`
	}

	VirtualRouterRecord struct {
		Interface  string      `json:"interface"`
		VrfName    string      `json:"vrfName"`
		State      string      `json:"state"`
		VirtualIps []VirtualIP `json:"virtualIps"`
	}

	// VirtualRouterState is the decoded virtual-router snapshot for all VRFs.
	VirtualRouterState struct {
		VirtualMacs    []VirtualMacRecord    `json:"virtualMacs"`
		VirtualRouters []VirtualRouterRecord `json:"virtualRouters"`
	}

	VirtualInterfaceRecord struct {
		Name               string `json:"name"`
		Vrf                string `json:"vrf"`
		LineProtocolStatus string `json:"lineProtocolStatus"`
		InterfaceStatus    string `json:"interfaceStatus"`
		VirtualAddress     string `json:"-"`
	}

	// InterfaceState is the decoded per-interface snapshot keyed by name.
	InterfaceState struct {
		Interfaces map[string]VirtualInterfaceRecord
	}
)

// Names returns the interface keys in sorted order.
func (s *InterfaceState) Names() []string {
	names := make([]string, 0, len(s.Interfaces))
	for name := range s.Interfaces {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var errMissingKey = errors.New("missing key")

type (
	rawVirtualMac struct {
		MacType    *string `json:"macType"`
		MacAddress *string `json:"macAddress"`
	}

	rawVirtualIP struct {
		IP *string `json:"ip"`
	}

	rawVirtualRouter struct {
		Interface  *string         `json:"interface"`
		VrfName    *string         `json:"vrfName"`
		State      *string         `json:"state"`
		VirtualIps *[]rawVirtualIP `json:"virtualIps"`
	}

	rawInterface struct {
		Name               *string `json:"name"`
		Vrf                *string `json:"vrf"`
		LineProtocolStatus *string `json:"lineProtocolStatus"`
		InterfaceStatus    *string `json:"interfaceStatus"`
		InterfaceAddress   *struct {
			VirtualIP *struct {
				Address *string `json:"address"`
			} `json:"virtualIp"`
		} `json:"interfaceAddress"`
	}

	// jsonKey pairs a JSON key with whether the document carried it.
	jsonKey struct {
		name    string
		present bool
	}
)

// requireKeys fails on the first key in keys that was absent from where.
func requireKeys(where string, keys ...jsonKey) error {
	for _, k := range keys {
		if !k.present {
			return fmt.Errorf("%s: %w %q", where, errMissingKey, k.name)
		}
	}
	return nil
}

// DecodeVirtualRouterState parses the virtual-router document. Both top-level
// lists must be present, even if empty, and every record must carry the keys
// the dispatch reads.
func DecodeVirtualRouterState(data []byte) (*VirtualRouterState, error) {
	var raw struct {
		VirtualMacs    *[]rawVirtualMac    `json:"virtualMacs"`
		VirtualRouters *[]rawVirtualRouter `json:"virtualRouters"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding virtual-router state: %w", err)
	}
	if err := requireKeys("virtual-router state",
		jsonKey{"virtualMacs", raw.VirtualMacs != nil},
		jsonKey{"virtualRouters", raw.VirtualRouters != nil},
	); err != nil {
		return nil, err
	}

	st := &VirtualRouterState{
		VirtualMacs:    make([]VirtualMacRecord, 0, len(*raw.VirtualMacs)),
		VirtualRouters: make([]VirtualRouterRecord, 0, len(*raw.VirtualRouters)),
	}
	for i, m := range *raw.VirtualMacs {
		if err := requireKeys(fmt.Sprintf("virtualMacs[%d]", i),
			jsonKey{"macType", m.MacType != nil},
			jsonKey{"macAddress", m.MacAddress != nil},
		); err != nil {
			return nil, err
		}
		st.VirtualMacs = append(st.VirtualMacs, VirtualMacRecord{MacType: *m.MacType, MacAddress: *m.MacAddress})
	}

	for i, vr := range *raw.VirtualRouters {
		where := fmt.Sprintf("virtualRouters[%d]", i)
		if err := requireKeys(where,
			jsonKey{"interface", vr.Interface != nil},
			jsonKey{"vrfName", vr.VrfName != nil},
			jsonKey{"state", vr.State != nil},
			jsonKey{"virtualIps", vr.VirtualIps != nil},
		); err != nil {
			return nil, err
		}
		rec := VirtualRouterRecord{
			Interface:  *vr.Interface,
			VrfName:    *vr.VrfName,
			State:      *vr.State,
			VirtualIps: make([]VirtualIP, 0, len(*vr.VirtualIps)),
		}
		for j, vip := range *vr.VirtualIps {
			if err := requireKeys(fmt.Sprintf("%s.virtualIps[%d]", where, j), jsonKey{"ip", vip.IP != nil}); err != nil {
				return nil, err
			}
			rec.VirtualIps = append(rec.VirtualIps, VirtualIP{IP: *vip.IP})
		}
		st.VirtualRouters = append(st.VirtualRouters, rec)
	}
	return st, nil
}

// DecodeInterfaceState parses the ip interface document. Every interface must
// carry its name, vrf, both statuses and interfaceAddress.virtualIp.address.
func DecodeInterfaceState(data []byte) (*InterfaceState, error) {
	var raw struct {
		Interfaces map[string]rawInterface `json:"interfaces"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding interface state: %w", err)
	}
	if raw.Interfaces == nil {
		return nil, fmt.Errorf("interface state: %w \"interfaces\"", errMissingKey)
	}

	keys := make([]string, 0, len(raw.Interfaces))
	for k := range raw.Interfaces {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	st := &InterfaceState{Interfaces: make(map[string]VirtualInterfaceRecord, len(raw.Interfaces))}
	for _, k := range keys {
		ij := raw.Interfaces[k]
		addr := ij.InterfaceAddress
		if err := requireKeys("interface state "+k,
			jsonKey{"name", ij.Name != nil},
			jsonKey{"vrf", ij.Vrf != nil},
			jsonKey{"lineProtocolStatus", ij.LineProtocolStatus != nil},
			jsonKey{"interfaceStatus", ij.InterfaceStatus != nil},
			jsonKey{"interfaceAddress", addr != nil},
			jsonKey{"interfaceAddress.virtualIp", addr != nil && addr.VirtualIP != nil},
			jsonKey{"interfaceAddress.virtualIp.address", addr != nil && addr.VirtualIP != nil && addr.VirtualIP.Address != nil},
		); err != nil {
			return nil, err
		}
		st.Interfaces[k] = VirtualInterfaceRecord{
			Name:               *ij.Name,
			Vrf:                *ij.Vrf,
			LineProtocolStatus: *ij.LineProtocolStatus,
			InterfaceStatus:    *ij.InterfaceStatus,
			VirtualAddress:     *addr.VirtualIP.Address,
		}
	}
	return st, nil
}

// StateSource yields the two device snapshots a run works from.
type StateSource interface {
	VirtualRouters(ctx context.Context) (*VirtualRouterState, error)
	Interfaces(ctx context.Context) (*InterfaceState, error)
}

// cliSource queries the device CLI through a Runner.
type cliSource struct {
	runner Runner
	cli    string
}

func (s *cliSource) query(ctx context.Context, command string) ([]byte, error) {
	inv := Invocation{Path: s.cli, Args: []string{"-c", command}}
	Logger.Debugf("Querying device: %s", inv)
	out, err := s.runner.Run(ctx, inv)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", command, err)
	}
	return out, nil
}

func (s *cliSource) VirtualRouters(ctx context.Context) (*VirtualRouterState, error) {
	out, err := s.query(ctx, virtualRouterCommand)
	if err != nil {
		return nil, err
	}
	return DecodeVirtualRouterState(out)
}

func (s *cliSource) Interfaces(ctx context.Context) (*InterfaceState, error) {
	out, err := s.query(ctx, ipInterfaceCommand)
	if err != nil {
		return nil, err
	}
	return DecodeInterfaceState(out)
}

// fileSource replays snapshots previously saved from the device CLI.
type fileSource struct {
	routerPath    string
	interfacePath string
}

func (s *fileSource) VirtualRouters(_ context.Context) (*VirtualRouterState, error) {
	data, err := os.ReadFile(s.routerPath)
	if err != nil {
		return nil, fmt.Errorf("reading virtual-router state: %w", err)
	}
	return DecodeVirtualRouterState(data)
}

func (s *fileSource) Interfaces(_ context.Context) (*InterfaceState, error) {
	data, err := os.ReadFile(s.interfacePath)
	if err != nil {
		return nil, fmt.Errorf("reading interface state: %w", err)
	}
	return DecodeInterfaceState(data)
}

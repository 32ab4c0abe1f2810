package main

import (
	"errors"
	"fmt"
	"net"
)

const (
	varpMacType = "varp"
	zeroMAC     = "00:00:00:00:00:00"
)

var ErrNoVirtualMAC = errors.New("no virtual mac address found")

// ResolveVirtualMAC returns the varp virtual MAC from the virtual-router
// state. When several varp records exist the last one wins.
func ResolveVirtualMAC(st *VirtualRouterState) (net.HardwareAddr, error) {
	var candidate string
	for _, rec := range st.VirtualMacs {
		if rec.MacType != varpMacType {
			continue
		}
		candidate = rec.MacAddress
	}

	if candidate == "" || candidate == zeroMAC {
		return nil, fmt.Errorf("%w: %q returned an empty or %s mac address", ErrNoVirtualMAC, virtualRouterCommand, zeroMAC)
	}

	mac, err := net.ParseMAC(candidate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoVirtualMAC, err)
	}
	if len(mac) != 6 || isZero(mac) {
		return nil, fmt.Errorf("%w: unusable mac address %s", ErrNoVirtualMAC, candidate)
	}
	return mac, nil
}

func isZero(mac net.HardwareAddr) bool {
	for _, b := range mac {
		if b != 0 {
			return false
		}
	}
	return true
}

package main

import (
	"context"
	"net"
	"strings"
)

const (
	routerStateActive       = "active"
	lineProtocolUp          = "up"
	interfaceConnected      = "connected"
	unconfiguredVirtualIP   = "0.0.0.0"
	subsystemVARP           = "varp"
	subsystemAddressVirtual = "ip-address-virtual"
)

// Report counts what a dispatch pass did.
type Report struct {
	Announced int
	Failed    int
	Skipped   int
}

func (r *Report) add(o Report) {
	r.Announced += o.Announced
	r.Failed += o.Failed
	r.Skipped += o.Skipped
}

// Dispatcher walks the snapshots and hands every eligible virtual IP to the
// Transmitter. Failed announcements are logged and the walk continues.
type Dispatcher struct {
	Selector        Selector
	NamespacePrefix string
	Count           int
	Transmitter     Transmitter
}

func (d *Dispatcher) announce(ctx context.Context, rep *Report, subsystem string, a Announcement) {
	for i, n := 0, max(d.Count, 1); i < n; i++ {
		if err := d.Transmitter.Announce(ctx, a); err != nil {
			withSegment(subsystem, a.Interface, a.Namespace).WithField("ip", a.IP).Errorf("ERROR - %v", err)
			rep.Failed++
			continue
		}
		rep.Announced++
	}
}

// HandleVARP announces the virtual IPs of every active virtual router whose
// interface is selected.
func (d *Dispatcher) HandleVARP(ctx context.Context, st *VirtualRouterState, vmac net.HardwareAddr) Report {
	Logger.Info("====== 1. VARP ======")
	var rep Report
	for _, entry := range d.Selector {
		for _, vr := range st.VirtualRouters {
			if !d.Selector.Matches(entry, vr.Interface) {
				Logger.Debugf("Ignoring [%s] as it does not match [%s].", vr.Interface, entry)
				continue
			}
			if vr.State != routerStateActive {
				Logger.Infof("Ignoring [%s] as the interface is not up.", vr.Interface)
				rep.Skipped++
				continue
			}

			ns := namespaceFor(vr.VrfName, d.NamespacePrefix)
			iface := strings.ToLower(vr.Interface)
			for _, vip := range vr.VirtualIps {
				d.announce(ctx, &rep, subsystemVARP, Announcement{
					Namespace: ns,
					Interface: iface,
					IP:        vip.IP,
					MAC:       vmac,
				})
			}
		}
	}
	return rep
}

// HandleAddressVirtual announces the virtual address of every selected
// interface that is configured with one and is up/connected.
func (d *Dispatcher) HandleAddressVirtual(ctx context.Context, st *InterfaceState, vmac net.HardwareAddr) Report {
	Logger.Info("====== 2. 'ip address virtual' ======")
	var rep Report
	names := st.Names()
	for _, entry := range d.Selector {
		for _, key := range names {
			intf := st.Interfaces[key]
			if intf.VirtualAddress == unconfiguredVirtualIP {
				Logger.Debugf("Ignoring interface [%s] as it is not configured with 'ip address virtual'.", intf.Name)
				continue
			}
			if !d.Selector.Matches(entry, intf.Name) {
				Logger.Debugf("Ignoring [%s] as it does not match [%s].", intf.Name, entry)
				continue
			}
			if intf.LineProtocolStatus != lineProtocolUp || intf.InterfaceStatus != interfaceConnected {
				Logger.Infof("Ignoring [%s] as the interface is not up.", intf.Name)
				rep.Skipped++
				continue
			}

			d.announce(ctx, &rep, subsystemAddressVirtual, Announcement{
				Namespace: namespaceFor(intf.Vrf, d.NamespacePrefix),
				Interface: strings.ToLower(intf.Name),
				IP:        intf.VirtualAddress,
				MAC:       vmac,
			})
		}
	}
	return rep
}

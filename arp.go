package main

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"runtime"

	"github.com/mdlayher/arp"
	"github.com/mdlayher/ethernet"
	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netns"
)

// nativeTransmitter builds and sends the GARP reply itself instead of
// shelling out to ethxmit.
type nativeTransmitter struct {
	dryRun bool
}

func (t *nativeTransmitter) Announce(ctx context.Context, a Announcement) error {
	vip, err := netip.ParseAddr(a.IP)
	if err != nil {
		return fmt.Errorf("virtual IP parse error: %w", err)
	}
	if !vip.Is4() {
		return fmt.Errorf("virtual IP %s is not IPv4", vip)
	}

	if t.dryRun {
		Logger.Infof("Would send GARP reply for %s (%s) on %s in namespace %s", vip, a.MAC, a.Interface, a.Namespace)
		return nil
	}

	Logger.Infof("Sending GARP reply for %s (%s) on %s in namespace %s", vip, a.MAC, a.Interface, a.Namespace)
	return inNamespace(a.Namespace, func() error {
		return sendGARP(ctx, a.Interface, vip, a.MAC)
	})
}

// inNamespace runs fn with the calling thread switched into the named
// network namespace. The default namespace runs fn in place.
func inNamespace(name string, fn func() error) error {
	if name == defaultNamespace {
		return fn()
	}

	runtime.LockOSThread()

	orig, err := netns.Get()
	if err != nil {
		runtime.UnlockOSThread()
		return fmt.Errorf("current namespace error: %w", err)
	}
	defer orig.Close()

	target, err := netns.GetFromName(name)
	if err != nil {
		runtime.UnlockOSThread()
		return fmt.Errorf("namespace %s error: %w", name, err)
	}
	defer target.Close()

	if err := netns.Set(target); err != nil {
		runtime.UnlockOSThread()
		return fmt.Errorf("namespace %s enter error: %w", name, err)
	}

	fnErr := fn()

	// A thread that cannot be moved back stays locked so the runtime
	// discards it when the goroutine exits.
	if err := netns.Set(orig); err != nil {
		return fmt.Errorf("namespace restore error: %w", err)
	}
	runtime.UnlockOSThread()
	return fnErr
}

var broadcastAddr = netip.MustParseAddr(broadcastIPv4)

// garpReply builds the same frame ethxmit sends: an ARP reply from vip at
// vmac, addressed to the broadcast IP and MAC.
func garpReply(vip netip.Addr, vmac net.HardwareAddr) (*arp.Packet, error) {
	pkt, err := arp.NewPacket(arp.OperationReply, vmac, vip, ethernet.Broadcast, broadcastAddr)
	if err != nil {
		return nil, fmt.Errorf("ARP packet error: %w", err)
	}
	return pkt, nil
}

func sendGARP(ctx context.Context, ifname string, vip netip.Addr, vmac net.HardwareAddr) error {
	link, err := netlink.LinkByName(ifname)
	if err != nil {
		return fmt.Errorf("link %s error: %w", ifname, err)
	}
	attrs := link.Attrs()
	if attrs.Flags&net.FlagUp == 0 {
		return fmt.Errorf("link %s is down", ifname)
	}

	ifi := &net.Interface{
		Index:        attrs.Index,
		MTU:          attrs.MTU,
		Name:         attrs.Name,
		HardwareAddr: attrs.HardwareAddr,
		Flags:        attrs.Flags,
	}

	client, err := arp.Dial(ifi)
	if err != nil {
		return fmt.Errorf("ARP client error: %w", err)
	}
	//nolint:errcheck
	defer client.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = client.SetWriteDeadline(deadline)
	}

	pkt, err := garpReply(vip, vmac)
	if err != nil {
		return err
	}

	if err := client.WriteTo(pkt, ethernet.Broadcast); err != nil {
		return fmt.Errorf("GARP reply send error: %w", err)
	}
	return nil
}

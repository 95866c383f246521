package trafficloop

import (
	"context"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/jonboulle/clockwork"

	"github.com/malbeclabs/l2switch/internal/cam"
	"github.com/malbeclabs/l2switch/internal/frameio/fake"
	"github.com/malbeclabs/l2switch/internal/iface"
	"github.com/malbeclabs/l2switch/internal/mac"
	"github.com/malbeclabs/l2switch/internal/mcast"
	"github.com/malbeclabs/l2switch/internal/metrics"
	"github.com/malbeclabs/l2switch/internal/port"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, nil))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

type fakeBroadcast struct {
	id    port.ID
	stack *iface.Stack
}

func newFakeBroadcast(stack *iface.Stack) *fakeBroadcast {
	return &fakeBroadcast{id: port.NextID(), stack: stack}
}

func (b *fakeBroadcast) ID() port.ID          { return b.id }
func (b *fakeBroadcast) Name() string         { return "Broadcast" }
func (b *fakeBroadcast) SendAll(frame []byte) { b.Send(frame, nil) }
func (b *fakeBroadcast) Send(frame []byte, ingress port.Port) {
	for _, i := range b.stack.All() {
		i.Send(frame, ingress)
	}
}

func ethernetFrame(t *testing.T, src, dst mac.Addr, payload []byte) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr(src[:]),
		DstMAC:       net.HardwareAddr(dst[:]),
		EthernetType: layers.EthernetTypeLLC,
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, gopacket.Payload(payload)); err != nil {
		t.Fatalf("serialize ethernet frame: %v", err)
	}
	return buf.Bytes()
}

func multicastMACFor(group net.IP) mac.Addr {
	g := group.To4()
	return mac.Addr{0x01, 0x00, 0x5e, g[1] & 0x7f, g[2], g[3]}
}

func igmpFrame(t *testing.T, src mac.Addr, igmpType layers.IGMPType, group net.IP) []byte {
	t.Helper()
	dstMAC := multicastMACFor(group)
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr(src[:]),
		DstMAC:       net.HardwareAddr(dstMAC[:]),
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      1,
		Protocol: layers.IPProtocolIGMP,
		SrcIP:    net.IPv4(10, 0, 0, 1),
		DstIP:    group,
	}
	igmp := &layers.IGMP{
		Type:         igmpType,
		GroupAddress: group,
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, igmp); err != nil {
		t.Fatalf("serialize igmp frame: %v", err)
	}
	return buf.Bytes()
}

func multicastDataFrame(t *testing.T, src mac.Addr, group net.IP) []byte {
	t.Helper()
	dstMAC := multicastMACFor(group)
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr(src[:]),
		DstMAC:       net.HardwareAddr(dstMAC[:]),
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      16,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IPv4(10, 0, 0, 1),
		DstIP:    group,
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, gopacket.Payload([]byte("payload"))); err != nil {
		t.Fatalf("serialize multicast data frame: %v", err)
	}
	return buf.Bytes()
}

func newTestIface(name string) (*iface.Interface, *fake.Handle) {
	h := fake.NewHandle(8)
	return iface.New(name, h), h
}

func TestHandleLearnsAndBroadcastsOnMiss(t *testing.T) {
	s0 := iface.NewStack()
	a, _ := newTestIface("a")
	b, hb := newTestIface("b")
	c, hc := newTestIface("c")
	s0.Add(a)
	s0.Add(b)
	s0.Add(c)

	bc := newFakeBroadcast(s0)
	table := cam.New(8, clockwork.NewFakeClock())
	table.SetDefaultPort(bc)
	mcastStack := mcast.New(bc)

	w := New(discardLogger(), a, table, bc, mcastStack, metrics.Noop{})

	srcX := mac.Parse([]byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55})
	dstY := mac.Parse([]byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff})

	w.handle(ethernetFrame(t, srcX, dstY, []byte("hello")))

	select {
	case <-hb.Outbound:
	default:
		t.Fatal("expected b to receive the broadcast-on-miss frame")
	}
	select {
	case <-hc.Outbound:
	default:
		t.Fatal("expected c to receive the broadcast-on-miss frame")
	}
	if got := table.Find(srcX, bc); got != a {
		t.Fatalf("expected X to be learned on a, got %v", got)
	}
}

func TestHandleForwardsToLearnedPort(t *testing.T) {
	s0 := iface.NewStack()
	a, ha := newTestIface("a")
	b, _ := newTestIface("b")
	c, hc := newTestIface("c")
	s0.Add(a)
	s0.Add(b)
	s0.Add(c)

	bc := newFakeBroadcast(s0)
	table := cam.New(8, clockwork.NewFakeClock())
	table.SetDefaultPort(bc)
	mcastStack := mcast.New(bc)

	srcX := mac.Parse([]byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55})
	dstY := mac.Parse([]byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff})

	table.Insert(srcX, a)

	wb := New(discardLogger(), b, table, bc, mcastStack, metrics.Noop{})
	wb.handle(ethernetFrame(t, dstY, srcX, []byte("reply")))

	select {
	case <-ha.Outbound:
	default:
		t.Fatal("expected a (learned port for X) to receive the frame")
	}
	select {
	case <-hc.Outbound:
		t.Fatal("expected c to not receive a frame destined to a learned unicast port")
	default:
	}
}

func TestHandleIGMPReportJoinsGroupAndForwardsToQuerier(t *testing.T) {
	s0 := iface.NewStack()
	a, ha := newTestIface("a")
	b, _ := newTestIface("b")
	s0.Add(a)
	s0.Add(b)

	bc := newFakeBroadcast(s0)
	table := cam.New(8, clockwork.NewFakeClock())
	table.SetDefaultPort(bc)
	mcastStack := mcast.New(bc)

	wa := New(discardLogger(), a, table, bc, mcastStack, metrics.Noop{})
	group := net.IPv4(224, 1, 2, 3)

	wa.handle(igmpFrame(t, mac.Parse([]byte{0, 0, 0, 0, 0, 1}), layers.IGMPMembershipQuery, group))
	if mcastStack.Querier() != a {
		t.Fatalf("expected a elected as querier, got %v", mcastStack.Querier())
	}

	wb := New(discardLogger(), b, table, bc, mcastStack, metrics.Noop{})
	wb.handle(igmpFrame(t, mac.Parse([]byte{0, 0, 0, 0, 0, 2}), layers.IGMPv2MembershipReport, group))

	g, ok := mcastStack.Find(mcast.GroupKey(0xE0010203))
	if !ok {
		t.Fatal("expected the report to create group 224.1.2.3")
	}
	if members := g.Members(); len(members) != 1 || members[0] != b {
		t.Fatalf("expected group membership {b}, got %v", members)
	}

	select {
	case <-ha.Outbound:
	default:
		t.Fatal("expected the report to be forwarded to querier a")
	}
}

func TestHandleMulticastDataForwardedToGroupMembers(t *testing.T) {
	s0 := iface.NewStack()
	a, ha := newTestIface("a")
	b, hb := newTestIface("b")
	c, hc := newTestIface("c")
	s0.Add(a)
	s0.Add(b)
	s0.Add(c)

	bc := newFakeBroadcast(s0)
	table := cam.New(8, clockwork.NewFakeClock())
	table.SetDefaultPort(bc)
	mcastStack := mcast.New(bc)

	group := net.IPv4(224, 1, 2, 3)
	mcastStack.SendQuery(a, []byte("q"))
	<-hb.Outbound // drain the query fanned to b and c
	<-hc.Outbound
	g := mcastStack.GetOrCreate(mcast.GroupKey(0xE0010203))
	g.Add(b)

	wa := New(discardLogger(), a, table, bc, mcastStack, metrics.Noop{})
	wa.handle(multicastDataFrame(t, mac.Parse([]byte{0, 0, 0, 0, 0, 9}), group))

	select {
	case <-ha.Outbound:
		t.Fatal("expected querier a (ingress) to not receive its own frame")
	default:
	}
	select {
	case <-hb.Outbound:
	default:
		t.Fatal("expected member b to receive the multicast data frame")
	}
	select {
	case <-hc.Outbound:
		t.Fatal("expected non-member c to not receive the frame")
	default:
	}
}

func TestHandleMulticastDataNoGroupFallsBackToBroadcast(t *testing.T) {
	s0 := iface.NewStack()
	a, _ := newTestIface("a")
	b, hb := newTestIface("b")
	c, hc := newTestIface("c")
	s0.Add(a)
	s0.Add(b)
	s0.Add(c)

	bc := newFakeBroadcast(s0)
	table := cam.New(8, clockwork.NewFakeClock())
	table.SetDefaultPort(bc)
	mcastStack := mcast.New(bc)

	wa := New(discardLogger(), a, table, bc, mcastStack, metrics.Noop{})
	group := net.IPv4(224, 9, 9, 9)
	wa.handle(multicastDataFrame(t, mac.Parse([]byte{0, 0, 0, 0, 0, 9}), group))

	select {
	case <-hb.Outbound:
	default:
		t.Fatal("expected b to receive the broadcast fallback")
	}
	select {
	case <-hc.Outbound:
	default:
		t.Fatal("expected c to receive the broadcast fallback")
	}
}

func TestStartStopLifecycle(t *testing.T) {
	s0 := iface.NewStack()
	a, ha := newTestIface("a")
	s0.Add(a)

	bc := newFakeBroadcast(s0)
	table := cam.New(8, clockwork.NewFakeClock())
	table.SetDefaultPort(bc)
	mcastStack := mcast.New(bc)

	w := New(discardLogger(), a, table, bc, mcastStack, metrics.Noop{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	w.Start(ctx)
	if !w.IsRunning() {
		t.Fatal("expected worker to report running after Start")
	}

	// Closing the handle unblocks a Recv call stuck waiting on an empty
	// Inbound channel, returning frameio.ErrTransient so the run loop
	// revisits ctx.Done() instead of hanging forever on the fake's
	// unbounded blocking read (the production pcap handle instead bounds
	// this via its own read timeout).
	ha.Close()
	w.Stop()
	if w.IsRunning() {
		t.Fatal("expected worker to report stopped after Stop")
	}
}

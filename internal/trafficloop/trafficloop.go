// Package trafficloop implements the per-interface receive→classify→forward
// loop: the worker that turns captured frames into CAM learning, unicast
// forwarding, broadcast fan-out, and IGMP snooping dispatch.
package trafficloop

import (
	"context"
	"encoding/binary"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"

	"github.com/malbeclabs/l2switch/internal/cam"
	"github.com/malbeclabs/l2switch/internal/ether"
	"github.com/malbeclabs/l2switch/internal/frameio"
	"github.com/malbeclabs/l2switch/internal/iface"
	"github.com/malbeclabs/l2switch/internal/mcast"
	"github.com/malbeclabs/l2switch/internal/metrics"
	"github.com/malbeclabs/l2switch/internal/port"
	"github.com/malbeclabs/l2switch/internal/snoop"
)

// Worker drives the classify/forward loop for a single ingress interface.
// It follows the same Start/Stop/Run lifecycle shape as the teacher's
// route-probing worker: a cancellable run loop guarded by an atomic
// running flag and a WaitGroup.
type Worker struct {
	log     *slog.Logger
	ingress *iface.Interface
	cam     *cam.Table
	bcast   port.Port
	mcast   *mcast.Stack
	metrics metrics.Recorder

	wg      sync.WaitGroup
	running atomic.Bool

	cancel   context.CancelFunc
	cancelMu sync.RWMutex
}

// New wires a Worker to its ingress interface and shared switch state.
func New(log *slog.Logger, ingress *iface.Interface, camTable *cam.Table, bcast port.Port, mcastStack *mcast.Stack, recorder metrics.Recorder) *Worker {
	if recorder == nil {
		recorder = metrics.Noop{}
	}
	return &Worker{
		log:     log,
		ingress: ingress,
		cam:     camTable,
		bcast:   bcast,
		mcast:   mcastStack,
		metrics: recorder,
	}
}

// Start launches the run loop if not already running. Safe to call
// concurrently with IsRunning/Stop.
func (w *Worker) Start(ctx context.Context) {
	if !w.running.CompareAndSwap(false, true) {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	w.cancelMu.Lock()
	w.cancel = cancel
	w.cancelMu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.Run(ctx)
		w.running.Store(false)
	}()
}

// Stop cancels the worker, if running, and blocks until Run returns.
func (w *Worker) Stop() {
	w.cancelMu.Lock()
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	w.cancelMu.Unlock()
	w.wg.Wait()
}

// IsRunning reports whether the run loop is currently active.
func (w *Worker) IsRunning() bool {
	return w.running.Load()
}

// Run is the worker's main loop: receive, classify, forward, until ctx is
// cancelled or Recv returns a non-transient error.
func (w *Worker) Run(ctx context.Context) {
	w.log.Info("trafficloop: worker started", "iface", w.ingress.Name())
	defer w.log.Debug("trafficloop: worker stopped", "iface", w.ingress.Name())

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		frame, err := w.ingress.Recv()
		if err != nil {
			if errors.Is(err, frameio.ErrTransient) {
				continue
			}
			w.log.Error("trafficloop: receive failed, worker exiting", "iface", w.ingress.Name(), "error", err)
			return
		}

		w.handle(frame)
	}
}

// handle classifies one captured frame and forwards it per the switching
// and IGMP snooping rules.
func (w *Worker) handle(frame []byte) {
	hdr, err := ether.Parse(frame)
	if err != nil {
		return
	}

	if hdr.Dst.IsMulticast() && hdr.IsIPv4() {
		if w.handleIPv4Multicast(frame) {
			return
		}
	}

	w.cam.Insert(hdr.Src, w.ingress)
	p := w.cam.Find(hdr.Dst, w.bcast)
	p.Send(frame, w.ingress)
}

// handleIPv4Multicast decodes the IPv4 layer and, on a confirmed IPv4
// multicast frame, dispatches to IGMP snooping or group-scoped forwarding.
// It returns false if decoding shows this isn't actually an IPv4 frame the
// caller should treat as multicast (falling back to the unicast/broadcast
// path), true once it has fully handled the frame.
func (w *Worker) handleIPv4Multicast(frame []byte) bool {
	packet := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.NoCopy)
	ipLayer := packet.Layer(layers.LayerTypeIPv4)
	if ipLayer == nil {
		return false
	}
	ip, ok := ipLayer.(*layers.IPv4)
	if !ok || ip.Version != 4 {
		return false
	}

	if ip.Protocol == layers.IPProtocolIGMP {
		if igmpLayer := packet.Layer(layers.LayerTypeIGMP); igmpLayer != nil {
			if msg, ok := igmpLayer.(*layers.IGMP); ok {
				snoop.Handle(w.mcast, w.metrics, msg, frame, w.ingress)
			}
		}
		return true
	}

	dst := ip.DstIP.To4()
	if dst == nil {
		return false
	}
	group := mcast.GroupKey(binary.BigEndian.Uint32(dst))
	if mc, ok := w.mcast.Find(group); ok {
		mc.Send(frame, w.ingress)
	} else {
		w.bcast.Send(frame, w.ingress)
	}
	return true
}

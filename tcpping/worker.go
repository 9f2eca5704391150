// Package tcpping implements the TCP reachability worker: a
// long-lived scheduler that, once per polling interval, measures the
// TCP connect latency of every configured address and emits the
// completed round for storage.
package tcpping

import (
	"context"
	"log"
	"sync"
	"time"

	errgo "gopkg.in/errgo.v1"

	"github.com/netwninja/stabping/probedata"
	"github.com/netwninja/stabping/targetstore"
)

// TCPPing is the target kind managed by this worker.
var TCPPing = targetstore.Kind{
	Name:              "tcpping",
	BootstrapAddr:     "example.com:80",
	BootstrapInterval: 5000,
}

// Params holds the parameters for a call to New.
type Params struct {
	// Manager coordinates the target's options, address index and
	// stored data.
	Manager *targetstore.Manager
	// Rounds receives one package per completed round. A send that
	// would block is dropped with a log message; the worker never
	// waits on its consumer and never retries a lost round.
	Rounds chan<- *probedata.TimePackage
	// Interval holds the polling interval used when the configured
	// options interval is not positive. If it's zero, one second
	// will be used.
	Interval time.Duration
	// Now is used to timestamp rounds. If it's nil, time.Now will
	// be used.
	Now func() time.Time
}

// Worker is a per-target scheduler running an unbounded loop of
// fixed-length probing rounds.
type Worker struct {
	p      Params
	prober prober
	ctx    context.Context
	close  func()
	wg     sync.WaitGroup
}

// New returns a new Worker probing the addresses configured in the
// manager's options. It runs until Close is called.
func New(p Params) (*Worker, error) {
	if p.Manager == nil {
		return nil, errgo.New("no manager set")
	}
	if p.Rounds == nil {
		return nil, errgo.New("no rounds channel set")
	}
	if p.Interval <= 0 {
		p.Interval = time.Second
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		p:     p,
		ctx:   ctx,
		close: cancel,
	}
	w.wg.Add(1)
	go w.run()
	return w, nil
}

// Close stops the worker and waits for its scheduler to exit.
// Probes still in flight are abandoned.
func (w *Worker) Close() {
	w.close()
	w.wg.Wait()
}

func (w *Worker) run() {
	defer w.wg.Done()
	for {
		pkg := w.round()
		if pkg == nil {
			return
		}
		select {
		case w.p.Rounds <- pkg:
		default:
			log.Printf("tcpping: dropped round of %d measurements: no receiver ready", pkg.Len())
		}
	}
}

// pendingProbe pairs a dispatched address id with the channel its
// probe reports on.
type pendingProbe struct {
	id probedata.AddrID
	ch chan float32
}

// round runs one probing cycle: snapshot the current options, fan
// out one probe per address, wait out the polling interval, then
// gather whatever results arrived. It returns nil when the worker
// was stopped while waiting.
func (w *Worker) round() *probedata.TimePackage {
	opts := w.p.Manager.Options()
	interval := time.Duration(opts.Interval) * time.Millisecond
	if interval <= 0 {
		// Guard against a configured zero interval spinning the loop.
		interval = w.p.Interval
	}
	timestamp := uint32(w.p.Now().Unix())

	pending := make([]pendingProbe, 0, len(opts.Addrs))
	for _, id := range opts.Addrs {
		// The channel is buffered so a probe reporting after the
		// round has moved on completes instead of leaking.
		p := pendingProbe{id: id, ch: make(chan float32, 1)}
		pending = append(pending, p)
		addr, ok := w.p.Manager.Addr(id)
		if !ok {
			// An id the index doesn't know measures as a failed probe.
			p.ch <- probedata.NaN()
			continue
		}
		go func() {
			p.ch <- w.prober.probe(addr, interval)
		}()
	}

	// Every probe gets the full interval to report. This sleep is
	// also what paces the scheduler loop.
	select {
	case <-time.After(interval):
	case <-w.ctx.Done():
		return nil
	}

	pkg := probedata.NewTimePackage(probedata.FeedRaw)
	for _, p := range pending {
		val := probedata.NaN()
		select {
		case v := <-p.ch:
			val = v
		default:
			// Probe still in flight; the round moves on without it.
		}
		pkg.Insert(probedata.Point{
			Time:   timestamp,
			Index:  p.id,
			Value:  val,
			Stddev: probedata.NaN(),
		})
	}
	return pkg
}

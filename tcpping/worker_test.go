package tcpping

import (
	"math"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/netwninja/stabping/probedata"
	"github.com/netwninja/stabping/targetstore"
)

// deadAddr returns an address that nothing is listening on.
func deadAddr(c *qt.C) string {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	c.Assert(err, qt.IsNil)
	addr := lis.Addr().String()
	c.Assert(lis.Close(), qt.IsNil)
	return addr
}

func TestProbe(t *testing.T) {
	c := qt.New(t)
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	c.Assert(err, qt.IsNil)
	defer lis.Close()

	var p prober
	ms := p.probe(lis.Addr().String(), time.Second)
	c.Assert(math.IsNaN(float64(ms)), qt.Equals, false)
	c.Assert(ms >= 0, qt.Equals, true)

	ms = p.probe(deadAddr(c), time.Second)
	c.Assert(math.IsNaN(float64(ms)), qt.Equals, true)
}

func TestWorkerRound(t *testing.T) {
	c := qt.New(t)
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	c.Assert(err, qt.IsNil)
	defer lis.Close()

	// Bootstrap the manager straight onto the live listener so the
	// test never probes a real external host.
	kind := targetstore.Kind{
		Name:              "tcpping",
		BootstrapAddr:     lis.Addr().String(),
		BootstrapInterval: 100,
	}
	dir := c.Mkdir()
	m, err := targetstore.New(kind, dir)
	c.Assert(err, qt.IsNil)
	defer m.Close()

	id, err := m.AddAddr(deadAddr(c))
	c.Assert(err, qt.IsNil)
	err = m.SetOptions(targetstore.Options{
		Addrs:    []probedata.AddrID{0, id},
		Interval: 100,
	})
	c.Assert(err, qt.IsNil)

	rounds := make(chan *probedata.TimePackage, 1)
	w, err := New(Params{
		Manager: m,
		Rounds:  rounds,
	})
	c.Assert(err, qt.IsNil)
	defer w.Close()

	var pkg *probedata.TimePackage
	select {
	case pkg = <-rounds:
	case <-time.After(10 * time.Second):
		c.Fatal("timed out waiting for a round")
	}

	points := pkg.Points()
	c.Assert(points, qt.HasLen, 2)
	c.Assert(points[0].Index, qt.Equals, probedata.AddrID(0))
	c.Assert(points[1].Index, qt.Equals, probedata.AddrID(1))
	// One consistent timestamp per round.
	c.Assert(points[1].Time, qt.Equals, points[0].Time)
	// The live listener measured; the dead one is the NaN sentinel.
	c.Assert(math.IsNaN(float64(points[0].Value)), qt.Equals, false)
	c.Assert(math.IsNaN(float64(points[1].Value)), qt.Equals, true)
	c.Assert(math.IsNaN(float64(points[0].Stddev)), qt.Equals, true)

	// The completed round appends cleanly through the manager.
	c.Assert(m.AppendPackage(pkg), qt.IsNil)
	info, err := os.Stat(filepath.Join(dir, "tcpping.data.dat"))
	c.Assert(err, qt.IsNil)
	c.Assert(info.Size(), qt.Equals, int64(2*probedata.FeedRaw.RecordSize()))
}

func TestWorkerIntervalFallback(t *testing.T) {
	c := qt.New(t)
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	c.Assert(err, qt.IsNil)
	defer lis.Close()
	kind := targetstore.Kind{
		Name:              "tcpping",
		BootstrapAddr:     lis.Addr().String(),
		BootstrapInterval: 100,
	}
	m, err := targetstore.New(kind, c.Mkdir())
	c.Assert(err, qt.IsNil)
	defer m.Close()

	// A zero configured interval falls back to the worker's own
	// interval rather than the built-in one-second guard.
	err = m.SetOptions(targetstore.Options{
		Addrs:    []probedata.AddrID{0},
		Interval: 0,
	})
	c.Assert(err, qt.IsNil)

	rounds := make(chan *probedata.TimePackage, 1)
	start := time.Now()
	w, err := New(Params{
		Manager:  m,
		Rounds:   rounds,
		Interval: 50 * time.Millisecond,
	})
	c.Assert(err, qt.IsNil)
	defer w.Close()

	select {
	case pkg := <-rounds:
		c.Assert(pkg.Points(), qt.HasLen, 1)
	case <-time.After(10 * time.Second):
		c.Fatal("timed out waiting for a round")
	}
	c.Assert(time.Since(start) < 600*time.Millisecond, qt.Equals, true)
}

func TestWorkerQueuesRoundsForBusyReceiver(t *testing.T) {
	c := qt.New(t)
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	c.Assert(err, qt.IsNil)
	defer lis.Close()
	kind := targetstore.Kind{
		Name:              "tcpping",
		BootstrapAddr:     lis.Addr().String(),
		BootstrapInterval: 100,
	}
	m, err := targetstore.New(kind, c.Mkdir())
	c.Assert(err, qt.IsNil)
	defer m.Close()

	sec := int64(1500000000)
	rounds := make(chan *probedata.TimePackage, 16)
	w, err := New(Params{
		Manager: m,
		Rounds:  rounds,
		Now: func() time.Time {
			sec++
			return time.Unix(sec, 0)
		},
	})
	c.Assert(err, qt.IsNil)

	// Leave the channel undrained for several rounds; the buffer
	// absorbs them all, so a busy receiver loses nothing.
	time.Sleep(500 * time.Millisecond)
	w.Close()

	var got []*probedata.TimePackage
	for drained := false; !drained; {
		select {
		case pkg := <-rounds:
			got = append(got, pkg)
		default:
			drained = true
		}
	}
	c.Assert(len(got) >= 2, qt.Equals, true)
	for i := 1; i < len(got); i++ {
		// Consecutive round timestamps: no round was dropped.
		c.Assert(got[i].Points()[0].Time, qt.Equals, got[i-1].Points()[0].Time+1)
	}
}

func TestWorkerCloseStopsPromptly(t *testing.T) {
	c := qt.New(t)
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	c.Assert(err, qt.IsNil)
	defer lis.Close()
	kind := targetstore.Kind{
		Name:              "tcpping",
		BootstrapAddr:     lis.Addr().String(),
		BootstrapInterval: 3600000,
	}
	m, err := targetstore.New(kind, c.Mkdir())
	c.Assert(err, qt.IsNil)
	defer m.Close()

	rounds := make(chan *probedata.TimePackage, 1)
	w, err := New(Params{
		Manager: m,
		Rounds:  rounds,
	})
	c.Assert(err, qt.IsNil)

	done := make(chan struct{})
	go func() {
		w.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		c.Fatal("Close did not interrupt the round interval")
	}
}

func TestNewParamChecks(t *testing.T) {
	c := qt.New(t)
	_, err := New(Params{})
	c.Assert(err, qt.ErrorMatches, "no manager set")
}

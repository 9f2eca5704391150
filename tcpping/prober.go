package tcpping

import (
	"net"
	"time"

	"go4.org/syncutil/singleflight"

	"github.com/netwninja/stabping/probedata"
)

// prober measures TCP connect latency. Concurrent probes of the same
// address are coalesced into one connection attempt, so a target
// that hangs beyond the round interval cannot pile up dials across
// rounds.
type prober struct {
	group singleflight.Group
}

// probe reports the time taken to establish a TCP connection to
// addr, in milliseconds, or NaN when the attempt fails or exceeds
// timeout. Unreachability is data, not an error.
func (p *prober) probe(addr string, timeout time.Duration) float32 {
	v, _ := p.group.Do(addr, func() (interface{}, error) {
		start := time.Now()
		c, err := net.DialTimeout("tcp", addr, timeout)
		if err != nil {
			return probedata.NaN(), nil
		}
		c.Close()
		return float32(float64(time.Since(start)) / float64(time.Millisecond)), nil
	})
	return v.(float32)
}

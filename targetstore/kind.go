package targetstore

import (
	"github.com/netwninja/stabping/probedata"
)

// Kind describes a class of monitored target. Its name derives the
// target's backing file names; the bootstrap fields seed the
// target's configuration the first time it is started.
type Kind struct {
	// Name is the stable kind name.
	Name string
	// BootstrapAddr is the single address registered when no
	// options file exists yet.
	BootstrapAddr string
	// BootstrapInterval is the polling interval, in milliseconds,
	// used when no options file exists yet.
	BootstrapInterval int
}

func (k Kind) indexFileName() string {
	return k.Name + ".index.json"
}

func (k Kind) optionsFileName() string {
	return k.Name + ".options.json"
}

// dataFileName returns the name of the kind's data file for feed.
// The averaged feed's name is reserved for a future aggregation
// stage; no current code appends to it.
func (k Kind) dataFileName(feed probedata.Feed) string {
	if feed == probedata.FeedAveraged {
		return k.Name + ".avg.dat"
	}
	return k.Name + ".data.dat"
}

// Options holds a target's probing configuration: the ids of the
// addresses being probed, in probing order, and the polling interval
// in milliseconds.
type Options struct {
	Addrs    []probedata.AddrID `json:"addrs"`
	Interval int                `json:"interval"`
}

// clone returns a copy of o sharing no state with the original.
func (o Options) clone() Options {
	o.Addrs = append([]probedata.AddrID(nil), o.Addrs...)
	return o
}

// Stabpingd continuously probes a configured set of TCP addresses,
// appends every round of measurements to per-target data files and
// serves the configuration API and live feed over HTTP.
package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/NYTimes/gziphandler"
	errgo "gopkg.in/errgo.v1"
	"gopkg.in/retry.v1"

	"github.com/netwninja/stabping/probedata"
	"github.com/netwninja/stabping/stabpingserver"
	"github.com/netwninja/stabping/targetstore"
	"github.com/netwninja/stabping/tcpping"
)

var (
	httpAddr     = flag.String("http", ":5001", "HTTP service address")
	dataDir      = flag.String("dir", "stabping-data", "directory to store configuration and collected data in")
	pollInterval = flag.Int("interval", 0, "bootstrap polling interval in milliseconds (0 means the target kind's default)")
)

// The data directory may live on storage that attaches after boot,
// so opening the store is retried for a while before giving up.
var openRetryStrategy = retry.LimitCount(8, retry.Exponential{
	Initial:  100 * time.Millisecond,
	Factor:   2,
	MaxDelay: 5 * time.Second,
})

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: stabpingd [flags]\n")
		flag.PrintDefaults()
		os.Exit(2)
	}
	flag.Parse()
	if err := runMain(); err != nil {
		log.Fatalf("stabpingd: %v", err)
	}
}

func runMain() error {
	if err := os.MkdirAll(*dataDir, 0777); err != nil {
		return errgo.Notef(err, "cannot create data directory")
	}
	kind := tcpping.TCPPing
	if *pollInterval > 0 {
		kind.BootstrapInterval = *pollInterval
	}
	manager, err := openManager(kind)
	if err != nil {
		return errgo.Mask(err)
	}
	defer manager.Close()

	// Buffered so a round completing while the previous one is
	// still being appended is queued rather than dropped.
	rounds := make(chan *probedata.TimePackage, 8)
	worker, err := tcpping.New(tcpping.Params{
		Manager:  manager,
		Rounds:   rounds,
		Interval: time.Duration(*pollInterval) * time.Millisecond,
	})
	if err != nil {
		return errgo.Mask(err)
	}
	defer worker.Close()

	srv, err := stabpingserver.New(stabpingserver.Params{
		Manager: manager,
	})
	if err != nil {
		return errgo.Mask(err)
	}
	go func() {
		log.Printf("listening on %v", *httpAddr)
		log.Fatal(http.ListenAndServe(*httpAddr, gziphandler.GzipHandler(srv)))
	}()

	for pkg := range rounds {
		if err := manager.AppendPackage(pkg); err != nil {
			log.Printf("cannot store round: %v", err)
		}
		srv.BroadcastRound(pkg)
	}
	return nil
}

func openManager(kind targetstore.Kind) (*targetstore.Manager, error) {
	var err error
	for a := retry.Start(openRetryStrategy, nil); a.Next(); {
		var m *targetstore.Manager
		m, err = targetstore.New(kind, *dataDir)
		if err == nil {
			return m, nil
		}
		log.Printf("cannot open %s store (will retry): %v", kind.Name, err)
	}
	return nil, errgo.Mask(err)
}

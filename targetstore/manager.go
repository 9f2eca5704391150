// Package targetstore implements the per-target coordinator that
// owns a target's address index, options and data files, and funnels
// all access to them through one locking discipline.
package targetstore

import (
	"log"
	"os"
	"path/filepath"
	"sync"

	errgo "gopkg.in/errgo.v1"

	"github.com/netwninja/stabping/addrindex"
	"github.com/netwninja/stabping/internal/jsonfile"
	"github.com/netwninja/stabping/probedata"
)

var (
	// ErrOptionsFileIO is the cause of errors reading, parsing or
	// writing a target's options file.
	ErrOptionsFileIO = errgo.New("options file I/O failed")

	// ErrInvalidAddr is the cause of errors reported when an
	// options update refers to an address id that is not in the
	// target's index.
	ErrInvalidAddr = errgo.New("address not in index")
)

// Manager is the single authority over one target kind's backing
// state. Workers and external callers read and mutate the address
// index, the options and the data files only through it, so
// concurrent readers never observe a partial update.
type Manager struct {
	kind Kind

	// indexMu guards index. Resolving an id takes the read side;
	// registering a new address takes the write side.
	indexMu sync.RWMutex
	index   *addrindex.Index

	// optionsMu guards options. Every read takes a fresh read lock,
	// so an accepted update is visible to the very next round.
	optionsMu sync.RWMutex
	options   Options

	// optionsPathMu serializes writes of the options file. It
	// guards no value; it exists purely so two in-flight persists
	// cannot race on the file.
	optionsPathMu sync.Mutex
	optionsPath   string

	// dataFiles holds one data file per feed. Only the raw feed is
	// wired up; averaged-feed aggregation is an unimplemented
	// extension point.
	dataFiles map[probedata.Feed]*DataFile
}

// New returns a Manager for the given kind, storing its backing
// files in dir. On first run (missing or empty options file) it
// bootstraps default options by registering the kind's bootstrap
// address in the index and persisting the result. Any failure
// around the options file is reported with the ErrOptionsFileIO
// cause.
func New(kind Kind, dir string) (*Manager, error) {
	ix, err := addrindex.Open(filepath.Join(dir, kind.indexFileName()))
	if err != nil {
		return nil, errgo.Mask(err)
	}
	raw, err := openDataFile(filepath.Join(dir, kind.dataFileName(probedata.FeedRaw)), probedata.FeedRaw)
	if err != nil {
		return nil, errgo.Mask(err)
	}
	m := &Manager{
		kind:        kind,
		index:       ix,
		optionsPath: filepath.Join(dir, kind.optionsFileName()),
		dataFiles: map[probedata.Feed]*DataFile{
			probedata.FeedRaw: raw,
		},
	}
	opts, err := m.loadOptions()
	if err != nil {
		raw.close()
		return nil, errgo.Mask(err, errgo.Is(ErrOptionsFileIO))
	}
	m.options = opts
	return m, nil
}

// loadOptions reads the target's options file, bootstrapping and
// persisting defaults when the file is missing or empty. Existing
// options are used as-is: ids are validated against the index only
// on explicit update, never on load.
func (m *Manager) loadOptions() (Options, error) {
	info, err := os.Stat(m.optionsPath)
	switch {
	case err == nil && info.Size() > 0:
		var opts Options
		if err := jsonfile.Read(m.optionsPath, &opts); err != nil {
			return Options{}, errgo.WithCausef(err, ErrOptionsFileIO, "cannot read options from %q", m.optionsPath)
		}
		return opts, nil
	case err != nil && !os.IsNotExist(err):
		return Options{}, errgo.WithCausef(err, ErrOptionsFileIO, "cannot stat options file %q", m.optionsPath)
	}
	id, err := m.index.Add(m.kind.BootstrapAddr)
	if err != nil {
		return Options{}, errgo.WithCausef(err, ErrOptionsFileIO, "cannot bootstrap options for %q", m.kind.Name)
	}
	opts := Options{
		Addrs:    []probedata.AddrID{id},
		Interval: m.kind.BootstrapInterval,
	}
	if err := jsonfile.Write(m.optionsPath, opts); err != nil {
		return Options{}, errgo.WithCausef(err, ErrOptionsFileIO, "cannot write options to %q", m.optionsPath)
	}
	return opts, nil
}

// Kind returns the kind the manager was created for.
func (m *Manager) Kind() Kind {
	return m.kind
}

// Options returns a copy of the current options, taken under a
// single read lock so the interval and the address list always come
// from one consistent configuration.
func (m *Manager) Options() Options {
	m.optionsMu.RLock()
	defer m.optionsMu.RUnlock()
	return m.options.clone()
}

// SetOptions replaces the target's options with opts. Every address
// id in opts must already be in the index; otherwise SetOptions
// reports ErrInvalidAddr and changes nothing. The new value is
// persisted before the in-memory copy is swapped, so when SetOptions
// reports ErrOptionsFileIO the in-memory options are untouched too.
func (m *Manager) SetOptions(opts Options) error {
	m.indexMu.RLock()
	n := m.index.Len()
	m.indexMu.RUnlock()
	for _, id := range opts.Addrs {
		if int(id) >= n {
			return errgo.WithCausef(nil, ErrInvalidAddr, "unknown address id %d", id)
		}
	}
	opts = opts.clone()
	m.optionsMu.Lock()
	defer m.optionsMu.Unlock()
	m.optionsPathMu.Lock()
	defer m.optionsPathMu.Unlock()
	if err := jsonfile.Write(m.optionsPath, opts); err != nil {
		return errgo.WithCausef(err, ErrOptionsFileIO, "cannot write options to %q", m.optionsPath)
	}
	m.options = opts
	log.Printf("updated %s options: %d addrs, interval %dms", m.kind.Name, len(opts.Addrs), opts.Interval)
	return nil
}

// Addr resolves an address id to its address string.
func (m *Manager) Addr(id probedata.AddrID) (string, bool) {
	m.indexMu.RLock()
	defer m.indexMu.RUnlock()
	return m.index.Addr(id)
}

// Addrs returns all indexed addresses; an address's position is its
// id.
func (m *Manager) Addrs() []string {
	m.indexMu.RLock()
	defer m.indexMu.RUnlock()
	return m.index.Addrs()
}

// AddAddr registers addr in the target's index, persisting the index
// file, and returns its id. An address that is already indexed keeps
// its existing id.
func (m *Manager) AddAddr(addr string) (probedata.AddrID, error) {
	m.indexMu.Lock()
	defer m.indexMu.Unlock()
	id, err := m.index.Add(addr)
	if err != nil {
		return 0, errgo.Mask(err)
	}
	return id, nil
}

// AppendPackage durably appends one completed round to the data file
// of the package's feed. Appends to different feeds never block each
// other. A failed record write aborts the round's remaining records
// and is reported with the file path; already-appended records are
// not rolled back.
func (m *Manager) AppendPackage(pkg *probedata.TimePackage) error {
	df, ok := m.dataFiles[pkg.Feed()]
	if !ok {
		return errgo.Newf("no data file for %s feed of %q", pkg.Feed(), m.kind.Name)
	}
	return errgo.Mask(df.appendPackage(pkg))
}

// Close closes the manager's data files. It must not be called while
// appends are still in flight.
func (m *Manager) Close() error {
	var firstErr error
	for _, df := range m.dataFiles {
		if err := df.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return errgo.Mask(firstErr)
}

package addrindex_test

import (
	"path/filepath"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/netwninja/stabping/addrindex"
	"github.com/netwninja/stabping/probedata"
)

func TestOpenMissingFile(t *testing.T) {
	c := qt.New(t)
	ix, err := addrindex.Open(filepath.Join(c.Mkdir(), "tcpping.index.json"))
	c.Assert(err, qt.IsNil)
	c.Assert(ix.Len(), qt.Equals, 0)
	_, ok := ix.Addr(0)
	c.Assert(ok, qt.Equals, false)
}

func TestAddAssignsMonotonicIds(t *testing.T) {
	c := qt.New(t)
	ix, err := addrindex.Open(filepath.Join(c.Mkdir(), "tcpping.index.json"))
	c.Assert(err, qt.IsNil)

	id, err := ix.Add("example.com:80")
	c.Assert(err, qt.IsNil)
	c.Assert(id, qt.Equals, probedata.AddrID(0))

	id, err = ix.Add("example.net:443")
	c.Assert(err, qt.IsNil)
	c.Assert(id, qt.Equals, probedata.AddrID(1))

	addr, ok := ix.Addr(0)
	c.Assert(ok, qt.Equals, true)
	c.Assert(addr, qt.Equals, "example.com:80")
	c.Assert(ix.Addrs(), qt.DeepEquals, []string{"example.com:80", "example.net:443"})
}

func TestAddExistingAddrReturnsSameId(t *testing.T) {
	c := qt.New(t)
	ix, err := addrindex.Open(filepath.Join(c.Mkdir(), "tcpping.index.json"))
	c.Assert(err, qt.IsNil)
	id0, err := ix.Add("example.com:80")
	c.Assert(err, qt.IsNil)
	id1, err := ix.Add("example.com:80")
	c.Assert(err, qt.IsNil)
	c.Assert(id1, qt.Equals, id0)
	c.Assert(ix.Len(), qt.Equals, 1)
}

func TestPersistsAcrossReopen(t *testing.T) {
	c := qt.New(t)
	path := filepath.Join(c.Mkdir(), "tcpping.index.json")
	ix, err := addrindex.Open(path)
	c.Assert(err, qt.IsNil)
	_, err = ix.Add("example.com:80")
	c.Assert(err, qt.IsNil)
	_, err = ix.Add("example.net:443")
	c.Assert(err, qt.IsNil)

	ix2, err := addrindex.Open(path)
	c.Assert(err, qt.IsNil)
	c.Assert(ix2.Addrs(), qt.DeepEquals, []string{"example.com:80", "example.net:443"})

	// Ids survive the round trip.
	id, err := ix2.Add("example.net:443")
	c.Assert(err, qt.IsNil)
	c.Assert(id, qt.Equals, probedata.AddrID(1))
}

func TestFailedWriteLeavesIndexUnchanged(t *testing.T) {
	c := qt.New(t)
	// Point the index file inside a directory that doesn't exist so
	// the staging write fails.
	ix, err := addrindex.Open(filepath.Join(c.Mkdir(), "absent", "tcpping.index.json"))
	c.Assert(err, qt.IsNil)
	_, err = ix.Add("example.com:80")
	c.Assert(err, qt.Not(qt.IsNil))
	c.Assert(ix.Len(), qt.Equals, 0)
}

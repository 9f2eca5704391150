// Package addrindex maintains the persistent mapping between stable
// numeric address ids and the address strings they denote.
package addrindex

import (
	"os"

	errgo "gopkg.in/errgo.v1"

	"github.com/netwninja/stabping/internal/jsonfile"
	"github.com/netwninja/stabping/probedata"
)

// An Index assigns each address string a stable numeric id. Ids are
// handed out monotonically from zero and never reused; they are the
// only foreign key used by options and stored records.
//
// An Index is not safe for concurrent use. The target's manager
// serializes all access to it.
type Index struct {
	path  string
	addrs []string
}

// indexDoc defines the JSON layout of the index file. An address's
// position in the list is its id.
type indexDoc struct {
	Addrs []string `json:"addrs"`
}

// Open returns the index stored at path, or a fresh empty index when
// no file exists there yet.
func Open(path string) (*Index, error) {
	ix := &Index{
		path: path,
	}
	var doc indexDoc
	if err := jsonfile.Read(path, &doc); err != nil {
		if os.IsNotExist(errgo.Cause(err)) {
			return ix, nil
		}
		return nil, errgo.Notef(err, "cannot read address index from %q", path)
	}
	ix.addrs = doc.Addrs
	return ix, nil
}

// Addr returns the address string with the given id.
func (ix *Index) Addr(id probedata.AddrID) (string, bool) {
	if int(id) >= len(ix.addrs) {
		return "", false
	}
	return ix.addrs[id], true
}

// Len returns the number of indexed addresses. Valid ids are exactly
// those below Len.
func (ix *Index) Len() int {
	return len(ix.addrs)
}

// Addrs returns a copy of all indexed addresses, in id order.
func (ix *Index) Addrs() []string {
	return append([]string(nil), ix.addrs...)
}

// Add returns the id for addr, assigning a fresh one if the address
// is not yet indexed. A fresh assignment is persisted to the index
// file before Add returns; if the write fails, the in-memory index
// is left unchanged.
func (ix *Index) Add(addr string) (probedata.AddrID, error) {
	for i, a := range ix.addrs {
		if a == addr {
			return probedata.AddrID(i), nil
		}
	}
	addrs := append(ix.addrs[:len(ix.addrs):len(ix.addrs)], addr)
	if err := jsonfile.Write(ix.path, indexDoc{Addrs: addrs}); err != nil {
		return 0, errgo.Notef(err, "cannot write address index to %q", ix.path)
	}
	ix.addrs = addrs
	return probedata.AddrID(len(addrs) - 1), nil
}

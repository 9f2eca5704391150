package targetstore

import (
	"os"
	"sync"

	errgo "gopkg.in/errgo.v1"

	"github.com/netwninja/stabping/probedata"
)

// A DataFile is the append-only binary log of measurement records
// for one (target kind, feed) pair. It is only ever appended to,
// never rewritten or compacted.
type DataFile struct {
	feed probedata.Feed
	path string

	// mu serializes appends so records from concurrent rounds never
	// interleave within a record.
	mu sync.Mutex
	f  *os.File
}

func openDataFile(path string, feed probedata.Feed) (*DataFile, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return nil, errgo.Notef(err, "cannot open data file %q", path)
	}
	return &DataFile{
		feed: feed,
		path: path,
		f:    f,
	}, nil
}

// appendPackage appends every record in pkg in ascending address-id
// order, each in the feed's on-disk layout. The first failed write
// aborts the remaining records; whatever was already appended stays,
// so after an error the file may end with a truncated round.
func (df *DataFile) appendPackage(pkg *probedata.TimePackage) error {
	df.mu.Lock()
	defer df.mu.Unlock()
	buf := make([]byte, 0, df.feed.RecordSize())
	for _, p := range pkg.Points() {
		buf = p.AppendRecord(buf[:0], df.feed)
		if _, err := df.f.Write(buf); err != nil {
			return errgo.Notef(err, "cannot append record to %q", df.path)
		}
	}
	return nil
}

func (df *DataFile) close() error {
	df.mu.Lock()
	defer df.mu.Unlock()
	return df.f.Close()
}

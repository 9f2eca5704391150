package probedata

import (
	"sort"

	errgo "gopkg.in/errgo.v1"
)

// ErrIncompatibleTimes is the cause of errors reported by AppendWire
// when a package holds records with differing timestamps.
var ErrIncompatibleTimes = errgo.New("incompatible times in package")

// TimePackage holds the set of measurements produced by one probing
// round, ordered and deduplicated by address id alone. All members
// of a valid package share one timestamp; that invariant is checked
// at serialization time, not at insertion time, so assembling a
// package is always best-effort.
type TimePackage struct {
	feed   Feed
	points []Point
}

// NewTimePackage returns an empty package whose records belong to
// the given feed.
func NewTimePackage(feed Feed) *TimePackage {
	return &TimePackage{
		feed: feed,
	}
}

// Feed returns the feed the package's records belong to.
func (pkg *TimePackage) Feed() Feed {
	return pkg.feed
}

// Insert adds p to the package. A package holds at most one point
// per address id: if a point with the same id is already present,
// Insert keeps the existing point and reports false, whatever the
// two points' other fields hold.
func (pkg *TimePackage) Insert(p Point) bool {
	i := sort.Search(len(pkg.points), func(i int) bool {
		return pkg.points[i].Index >= p.Index
	})
	if i < len(pkg.points) && pkg.points[i].Index == p.Index {
		return false
	}
	pkg.points = append(pkg.points, Point{})
	copy(pkg.points[i+1:], pkg.points[i:])
	pkg.points[i] = p
	return true
}

// Len returns the number of points in the package.
func (pkg *TimePackage) Len() int {
	return len(pkg.points)
}

// Points returns the package's points in ascending address-id order.
// The caller must not mutate the returned slice.
func (pkg *TimePackage) Points() []Point {
	return pkg.points
}

// SpaceNecessary returns the number of bytes needed to hold the
// package's records, counting each record at its full on-disk size.
// For the payload-only wire form it is an upper bound.
func (pkg *TimePackage) SpaceNecessary() int {
	return len(pkg.points) * pkg.feed.RecordSize()
}

// AppendWire appends the wire form of the package to buf: every
// record's value payload, and nothing else, in ascending address-id
// order. The first record's timestamp is latched as the round's
// timestamp; if a later record disagrees AppendWire stops with
// ErrIncompatibleTimes as the cause. On error the returned buffer is
// partially appended and must be discarded by the caller.
func (pkg *TimePackage) AppendWire(buf []byte) ([]byte, error) {
	haveTime := false
	var roundTime uint32
	for _, p := range pkg.points {
		if !haveTime {
			roundTime = p.Time
			haveTime = true
		} else if p.Time != roundTime {
			return buf, errgo.WithCausef(nil, ErrIncompatibleTimes, "record for address %d has time %d; round has time %d", p.Index, p.Time, roundTime)
		}
		buf = p.AppendPayload(buf, pkg.feed)
	}
	return buf, nil
}

// Package probedata defines the fixed-layout measurement records
// produced by the probing workers, the per-round collection of those
// records, and their on-disk and wire serializations.
package probedata

import (
	"encoding/binary"
	"fmt"
	"math"

	errgo "gopkg.in/errgo.v1"
)

// AddrID is the stable numeric handle for a probed address.
// Ids are assigned by the address index, monotonically, and are
// never reused.
type AddrID uint32

// Feed identifies a stored-data variant for a target: raw per-probe
// measurements or time-averaged ones.
type Feed int

const (
	FeedRaw Feed = iota
	FeedAveraged
)

func (f Feed) String() string {
	switch f {
	case FeedRaw:
		return "raw"
	case FeedAveraged:
		return "averaged"
	}
	return fmt.Sprintf("feed%d", int(f))
}

const (
	// headerSize is the size of the time and index fields shared by
	// every record layout.
	headerSize = 8

	rawPayloadSize      = 4
	averagedPayloadSize = 8
)

// RecordSize returns the size in bytes of one of the feed's records
// in its on-disk form.
func (f Feed) RecordSize() int {
	return headerSize + f.PayloadSize()
}

// PayloadSize returns the size in bytes of one of the feed's records
// in its wire form, which carries the value payload only.
func (f Feed) PayloadSize() int {
	if f == FeedAveraged {
		return averagedPayloadSize
	}
	return rawPayloadSize
}

// NaN returns the sentinel value recorded in place of a latency when
// a probe fails. A failed probe is data, not an error.
func NaN() float32 {
	return float32(math.NaN())
}

// Point holds one measurement for one address at one point in time.
// Value holds the measured latency in milliseconds, or the NaN
// sentinel when the probe failed. Stddev is meaningful only on the
// averaged feed; raw-feed points always carry NaN there.
type Point struct {
	Time   uint32
	Index  AddrID
	Value  float32
	Stddev float32
}

// AppendRecord appends the on-disk form of p for the given feed to
// buf and returns the extended buffer. Each field is written
// individually, in declared order, little-endian, so no padding
// bytes ever reach the file.
func (p Point) AppendRecord(buf []byte, feed Feed) []byte {
	buf = appendUint32(buf, p.Time)
	buf = appendUint32(buf, uint32(p.Index))
	return p.AppendPayload(buf, feed)
}

// AppendPayload appends the wire-form value payload of p for the
// given feed to buf: the value alone for the raw feed, the value
// and standard deviation for the averaged feed.
func (p Point) AppendPayload(buf []byte, feed Feed) []byte {
	buf = appendUint32(buf, math.Float32bits(p.Value))
	if feed == FeedAveraged {
		buf = appendUint32(buf, math.Float32bits(p.Stddev))
	}
	return buf
}

// ParseRecord decodes one on-disk record of the given feed from the
// start of data. Raw-feed records decode with a NaN standard
// deviation.
func ParseRecord(feed Feed, data []byte) (Point, error) {
	if len(data) < feed.RecordSize() {
		return Point{}, errgo.Newf("truncated %s record: need %d bytes, have %d", feed, feed.RecordSize(), len(data))
	}
	p := Point{
		Time:   binary.LittleEndian.Uint32(data),
		Index:  AddrID(binary.LittleEndian.Uint32(data[4:])),
		Value:  math.Float32frombits(binary.LittleEndian.Uint32(data[8:])),
		Stddev: NaN(),
	}
	if feed == FeedAveraged {
		p.Stddev = math.Float32frombits(binary.LittleEndian.Uint32(data[12:]))
	}
	return p, nil
}

func appendUint32(buf []byte, x uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], x)
	return append(buf, b[:]...)
}

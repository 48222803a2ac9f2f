package tle

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/cespare/xxhash/v2"
)

// SatelliteID identifies an element set's object.
type SatelliteID struct {
	CatalogNumber  int
	Classification byte // 'U', 'C' or 'S'
}

func (id SatelliteID) String() string {
	return fmt.Sprintf("%05d%c", id.CatalogNumber, id.Classification)
}

// ExpField is a TLE field with an assumed leading decimal point and a
// one-digit power of ten, e.g. " 28098-4" = 0.28098e-4.
type ExpField struct {
	Mantissa int // signed, five digits
	Exponent int
	PlusZero bool // a zero exponent was written "+0" rather than "-0"
}

// Value returns the field as a float.
func (f ExpField) Value() float64 {
	return float64(f.Mantissa) * 1e-5 * math.Pow10(f.Exponent)
}

// OrbitalElements is a validated two-line element set. Angles are in
// degrees, mean motion in revolutions per day.
type OrbitalElements struct {
	ID             SatelliteID
	IntlDesignator string

	Epoch     time.Time
	EpochYear int     // two-digit year as written
	EpochDay  float64 // fractional day of year, 1-based

	MeanMotionDot  float64  // first derivative of mean motion / 2, rev/day^2
	MeanMotionDDot ExpField // second derivative of mean motion / 6, rev/day^3
	BStar          ExpField // drag term, 1/earth radii

	EphemerisType    int
	ElementSetNumber int

	Inclination      float64
	RAAN             float64
	Eccentricity     float64
	ArgPerigee       float64
	MeanAnomaly      float64
	MeanMotion       float64
	RevolutionNumber int

	Line1 string
	Line2 string
}

// Fingerprint hashes every field that feeds propagation plus the raw lines.
// Element sets that share a catalog number and epoch but differ anywhere
// else get different fingerprints.
func (el OrbitalElements) Fingerprint() uint64 {
	d := xxhash.New()
	var buf [8]byte
	put := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		d.Write(buf[:])
	}

	put(uint64(el.ID.CatalogNumber))
	put(uint64(el.Epoch.UnixNano()))
	for _, f := range [...]float64{
		el.MeanMotionDot, el.MeanMotionDDot.Value(), el.BStar.Value(),
		el.Inclination, el.RAAN, el.Eccentricity,
		el.ArgPerigee, el.MeanAnomaly, el.MeanMotion,
	} {
		put(math.Float64bits(f))
	}
	d.WriteString(el.Line1)
	d.WriteString(el.Line2)
	return d.Sum64()
}

// Entry is one satellite of a catalog file.
type Entry struct {
	Name     string
	Elements OrbitalElements
}

// NORADID returns the entry's catalog number.
func (e Entry) NORADID() int { return e.Elements.ID.CatalogNumber }

// EpochRange represents the minimum and maximum epoch times in a catalog.
type EpochRange struct {
	Min time.Time
	Max time.Time
}

// Catalog is a complete set of element sets loaded from one source.
type Catalog struct {
	Source     string
	LoadedAt   time.Time
	EpochRange EpochRange
	Satellites []Entry

	byID map[int]int
}

// NewCatalog indexes entries by catalog number. When a number appears more
// than once, the entry with the latest epoch wins the index.
func NewCatalog(source string, loadedAt time.Time, entries []Entry) *Catalog {
	c := &Catalog{
		Source:     source,
		LoadedAt:   loadedAt,
		Satellites: entries,
		byID:       make(map[int]int, len(entries)),
	}
	for i, e := range entries {
		ep := e.Elements.Epoch
		if i == 0 || ep.Before(c.EpochRange.Min) {
			c.EpochRange.Min = ep
		}
		if i == 0 || ep.After(c.EpochRange.Max) {
			c.EpochRange.Max = ep
		}
		if j, ok := c.byID[e.NORADID()]; ok && !ep.After(entries[j].Elements.Epoch) {
			continue
		}
		c.byID[e.NORADID()] = i
	}
	return c
}

// Lookup returns the entry for a catalog number.
func (c *Catalog) Lookup(noradID int) (Entry, bool) {
	i, ok := c.byID[noradID]
	if !ok {
		return Entry{}, false
	}
	return c.Satellites[i], true
}

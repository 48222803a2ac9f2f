package tle

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Format writes el back out as two fixed-width element lines with fresh
// checksums. Formatting a set returned by ParseElements reproduces its
// input lines.
func Format(el OrbitalElements) (line1, line2 string) {
	line1 = fmt.Sprintf("1 %05d%c %-8s %02d%012.8f %s %s %s %d %4d",
		el.ID.CatalogNumber, el.ID.Classification, el.IntlDesignator,
		el.EpochYear, el.EpochDay,
		formatDot(el.MeanMotionDot),
		formatExp(el.MeanMotionDDot),
		formatExp(el.BStar),
		el.EphemerisType, el.ElementSetNumber)
	line2 = fmt.Sprintf("2 %05d %8.4f %8.4f %07d %8.4f %8.4f %11.8f%5d",
		el.ID.CatalogNumber,
		el.Inclination, el.RAAN,
		int(math.Round(el.Eccentricity*1e7)),
		el.ArgPerigee, el.MeanAnomaly, el.MeanMotion,
		el.RevolutionNumber)
	return withChecksum(line1), withChecksum(line2)
}

func withChecksum(body string) string {
	return body + strconv.Itoa(Checksum(body))
}

// formatDot writes a signed value below one without its leading zero,
// e.g. " .00016717" or "-.00002182".
func formatDot(v float64) string {
	sign := " "
	if math.Signbit(v) {
		sign = "-"
	}
	s := strconv.FormatFloat(math.Abs(v), 'f', 8, 64)
	return sign + strings.TrimPrefix(s, "0")
}

func formatExp(f ExpField) string {
	sign := byte(' ')
	m := f.Mantissa
	if m < 0 {
		sign, m = '-', -m
	}
	expSign := byte('-')
	e := f.Exponent
	switch {
	case e > 0, e == 0 && f.PlusZero:
		expSign = '+'
	case e < 0:
		e = -e
	}
	return fmt.Sprintf("%c%05d%c%d", sign, m, expSign, e)
}

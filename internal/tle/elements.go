package tle

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// LineLength is the fixed width of each element line, checksum included.
const LineLength = 69

// ParseElements validates a two-line element set and decodes its fields.
// Structural problems fail with ErrMalformedElementSet, physically invalid
// values with ErrOutOfRangeElement.
func ParseElements(line1, line2 string) (OrbitalElements, error) {
	line1 = strings.TrimRight(line1, "\r\n \t")
	line2 = strings.TrimRight(line2, "\r\n \t")

	for i, l := range []string{line1, line2} {
		n := i + 1
		if len(l) != LineLength {
			return OrbitalElements{}, malformed(n, "length", l, "want "+strconv.Itoa(LineLength)+" columns, got "+strconv.Itoa(len(l)))
		}
		if l[0] != byte('0'+n) || l[1] != ' ' {
			return OrbitalElements{}, malformed(n, "line number", l[:2], "unexpected line number")
		}
		want := Checksum(l)
		if got := int(l[68] - '0'); l[68] < '0' || l[68] > '9' || got != want {
			return OrbitalElements{}, malformed(n, "checksum", l[68:], "want "+strconv.Itoa(want))
		}
	}

	p := fieldParser{}
	el := OrbitalElements{Line1: line1, Line2: line2}

	cat1 := p.integer(1, "catalog number", line1[2:7])
	cat2 := p.integer(2, "catalog number", line2[2:7])
	if p.err != nil {
		return OrbitalElements{}, p.err
	}
	if cat1 != cat2 {
		return OrbitalElements{}, malformed(0, "catalog number", "", "line 1 has "+strconv.Itoa(cat1)+", line 2 has "+strconv.Itoa(cat2))
	}
	el.ID = SatelliteID{CatalogNumber: cat1, Classification: line1[7]}
	el.IntlDesignator = strings.TrimSpace(line1[9:17])

	el.EpochYear = p.integer(1, "epoch year", line1[18:20])
	el.EpochDay = p.decimal(1, "epoch day", line1[20:32])
	el.MeanMotionDot = p.decimal(1, "mean motion dot", line1[33:43])
	el.MeanMotionDDot = p.exp(1, "mean motion ddot", line1[44:52])
	el.BStar = p.exp(1, "bstar", line1[53:61])
	el.EphemerisType = p.integer(1, "ephemeris type", line1[62:63])
	el.ElementSetNumber = p.integer(1, "element set number", line1[64:68])

	el.Inclination = p.decimal(2, "inclination", line2[8:16])
	el.RAAN = p.decimal(2, "raan", line2[17:25])
	el.Eccentricity = float64(p.digits(2, "eccentricity", line2[26:33])) / 1e7
	el.ArgPerigee = p.decimal(2, "argument of perigee", line2[34:42])
	el.MeanAnomaly = p.decimal(2, "mean anomaly", line2[43:51])
	el.MeanMotion = p.decimal(2, "mean motion", line2[52:63])
	el.RevolutionNumber = p.integer(2, "revolution number", line2[63:68])
	if p.err != nil {
		return OrbitalElements{}, p.err
	}

	if err := checkRanges(&el); err != nil {
		return OrbitalElements{}, err
	}
	el.Epoch = epochTime(el.EpochYear, el.EpochDay)
	return el, nil
}

// Checksum returns the modulo-10 checksum of the first 68 columns of line:
// the sum of all digits, with each minus sign counting as one.
func Checksum(line string) int {
	sum := 0
	for i := 0; i < len(line) && i < LineLength-1; i++ {
		switch c := line[i]; {
		case c >= '0' && c <= '9':
			sum += int(c - '0')
		case c == '-':
			sum++
		}
	}
	return sum % 10
}

func checkRanges(el *OrbitalElements) error {
	switch el.ID.Classification {
	case 'U', 'C', 'S':
	default:
		return outOfRange(1, "classification", string(el.ID.Classification), "want U, C or S")
	}
	if el.EpochDay < 1 || el.EpochDay >= 367 {
		return outOfRange(1, "epoch day", el.Line1[20:32], "want [1, 367)")
	}
	if el.Eccentricity < 0 || el.Eccentricity >= 1 {
		return outOfRange(2, "eccentricity", el.Line2[26:33], "want [0, 1)")
	}
	if el.Inclination < 0 || el.Inclination > 180 {
		return outOfRange(2, "inclination", el.Line2[8:16], "want [0, 180]")
	}
	for _, a := range []struct {
		name string
		v    float64
		raw  string
	}{
		{"raan", el.RAAN, el.Line2[17:25]},
		{"argument of perigee", el.ArgPerigee, el.Line2[34:42]},
		{"mean anomaly", el.MeanAnomaly, el.Line2[43:51]},
	} {
		if a.v < 0 || a.v >= 360 {
			return outOfRange(2, a.name, a.raw, "want [0, 360)")
		}
	}
	if math.Abs(el.MeanMotionDot) >= 1 {
		return outOfRange(1, "mean motion dot", el.Line1[33:43], "want |value| < 1")
	}
	if el.MeanMotion <= 0 {
		return outOfRange(2, "mean motion", el.Line2[52:63], "must be positive")
	}
	return nil
}

// epochTime converts a two-digit year and 1-based fractional day of year to
// UTC. Years 57-99 are 19xx, 00-56 are 20xx.
func epochTime(yy int, day float64) time.Time {
	year := yy + 2000
	if yy >= 57 {
		year = yy + 1900
	}
	t := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	return t.Add(time.Duration(math.Round((day - 1) * float64(24*time.Hour))))
}

// fieldParser records the first field failure so a run of field reads can
// be checked once.
type fieldParser struct {
	err error
}

func (p *fieldParser) integer(line int, name, raw string) int {
	if p.err != nil {
		return 0
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		p.err = malformed(line, name, raw, "not an integer")
		return 0
	}
	return v
}

func (p *fieldParser) decimal(line int, name, raw string) float64 {
	if p.err != nil {
		return 0
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		p.err = malformed(line, name, raw, "not a decimal number")
		return 0
	}
	return v
}

// digits parses a run of decimal digits with no sign or padding.
func (p *fieldParser) digits(line int, name, raw string) int {
	if p.err != nil {
		return 0
	}
	v := 0
	for i := 0; i < len(raw); i++ {
		if raw[i] < '0' || raw[i] > '9' {
			p.err = malformed(line, name, raw, "want digits only")
			return 0
		}
		v = v*10 + int(raw[i]-'0')
	}
	return v
}

// exp parses an assumed-decimal exponent field: sign, five mantissa digits,
// exponent sign, exponent digit.
func (p *fieldParser) exp(line int, name, raw string) ExpField {
	if p.err != nil {
		return ExpField{}
	}
	if len(raw) != 8 {
		p.err = malformed(line, name, raw, "want 8 columns")
		return ExpField{}
	}
	var f ExpField
	sign := 1
	switch raw[0] {
	case ' ', '+':
	case '-':
		sign = -1
	default:
		p.err = malformed(line, name, raw, "bad mantissa sign")
		return ExpField{}
	}
	f.Mantissa = sign * p.digits(line, name, raw[1:6])
	f.Exponent = p.digits(line, name, raw[7:8])
	if p.err != nil {
		return ExpField{}
	}
	switch raw[6] {
	case '-':
		f.Exponent = -f.Exponent
	case '+':
		f.PlusZero = f.Exponent == 0
	default:
		p.err = malformed(line, name, raw, "bad exponent sign")
		return ExpField{}
	}
	return f
}

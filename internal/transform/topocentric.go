package transform

import "math"

// WGS-84 ellipsoid.
const (
	wgs84A  = 6378.137 // km
	wgs84F  = 1 / 298.257223563
	wgs84E2 = wgs84F * (2 - wgs84F)
)

const (
	deg2rad = math.Pi / 180
	rad2deg = 180 / math.Pi

	latTolerance = 1e-12 // rad
	latMaxIter   = 10
)

// GeodeticPoint is a WGS-84 position. Longitude is in (-180, 180].
type GeodeticPoint struct {
	LatDeg, LonDeg float64
	AltKm          float64
}

// ObserverPosition is a ground site with its Earth-fixed position
// precomputed for repeated look-angle evaluation.
type ObserverPosition struct {
	LatRad, LonRad, AltKm float64
	ECEF                  [3]float64 // km
}

// LookAngles locate a satellite in an observer's sky.
type LookAngles struct {
	AzimuthDeg   float64 // clockwise from north, [0, 360)
	ElevationDeg float64 // above the local horizon
	RangeKm      float64
}

// primeVertical is the ellipsoid's radius of curvature normal to the
// meridian at a latitude with the given sine.
func primeVertical(sinLat float64) float64 {
	return wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)
}

// NewObserverPosition places an observer at geodetic latitude and longitude
// in degrees, altKm above the ellipsoid.
func NewObserverPosition(latDeg, lonDeg, altKm float64) ObserverPosition {
	lat, lon := latDeg*deg2rad, lonDeg*deg2rad
	sinLat, cosLat := math.Sincos(lat)
	sinLon, cosLon := math.Sincos(lon)
	n := primeVertical(sinLat)

	horiz := (n + altKm) * cosLat
	return ObserverPosition{
		LatRad: lat,
		LonRad: lon,
		AltKm:  altKm,
		ECEF:   [3]float64{horiz * cosLon, horiz * sinLon, (n*(1-wgs84E2) + altKm) * sinLat},
	}
}

// ECEFToGeodetic converts an Earth-fixed position in km to WGS-84 geodetic
// coordinates. Latitude is refined by fixed-point iteration; orbital
// altitudes settle in a few rounds.
func ECEFToGeodetic(x, y, z float64) GeodeticPoint {
	p := math.Hypot(x, y)
	lat := math.Atan2(z, p*(1-wgs84E2))
	for range latMaxIter {
		s := math.Sin(lat)
		next := math.Atan2(z+wgs84E2*primeVertical(s)*s, p)
		delta := math.Abs(next - lat)
		lat = next
		if delta < latTolerance {
			break
		}
	}

	sinLat, cosLat := math.Sincos(lat)
	n := primeVertical(sinLat)
	var alt float64
	if math.Abs(cosLat) > 1e-10 {
		alt = p/cosLat - n
	} else {
		// Over a pole the horizontal distance carries no height.
		alt = math.Abs(z/sinLat) - n*(1-wgs84E2)
	}

	lon := math.Atan2(y, x)
	if lon <= -math.Pi {
		lon = math.Pi
	}
	return GeodeticPoint{LatDeg: lat * rad2deg, LonDeg: lon * rad2deg, AltKm: alt}
}

// ECEFToLookAngles returns the azimuth, elevation and range from obs to a
// satellite at the Earth-fixed position sat (km), via the observer's local
// east-north-up frame.
func ECEFToLookAngles(obs ObserverPosition, sat [3]float64) LookAngles {
	d := [3]float64{sat[0] - obs.ECEF[0], sat[1] - obs.ECEF[1], sat[2] - obs.ECEF[2]}

	sinLat, cosLat := math.Sincos(obs.LatRad)
	sinLon, cosLon := math.Sincos(obs.LonRad)

	east := -sinLon*d[0] + cosLon*d[1]
	north := -sinLat*cosLon*d[0] - sinLat*sinLon*d[1] + cosLat*d[2]
	up := cosLat*cosLon*d[0] + cosLat*sinLon*d[1] + sinLat*d[2]

	rng := math.Sqrt(east*east + north*north + up*up)
	if rng == 0 {
		return LookAngles{ElevationDeg: 90}
	}

	az := math.Mod(math.Atan2(east, north)*rad2deg+360, 360)
	return LookAngles{
		AzimuthDeg:   az,
		ElevationDeg: math.Asin(up/rng) * rad2deg,
		RangeKm:      rng,
	}
}

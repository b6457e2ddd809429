// Package solar computes the sun's position, used to pick the map theme for
// an instant on the timeline.
package solar

import (
	"math"
	"time"

	"github.com/soniakeys/meeus/v3/julian"
)

// CivilTwilightDeg is the solar elevation below which the sky is dark enough
// for the night theme.
const CivilTwilightDeg = -6.0

// Position is the apparent position of the sun for an observer.
type Position struct {
	EqOfTimeMin    float64
	DeclinationDeg float64
	AzimuthDeg     float64
	ElevationDeg   float64
}

func degToRad(deg float64) float64 { return deg * math.Pi / 180.0 }
func radToDeg(rad float64) float64 { return rad * 180.0 / math.Pi }
func fixAngle(a float64) float64   { return a - 360.0*math.Floor(a/360.0) }

// SunPosition returns the sun's position at t for an observer at lat/lon
// (degrees, east positive). Elevation includes a standard refraction term.
func SunPosition(lat, lon float64, t time.Time) Position {
	t = t.UTC()
	jd := julian.TimeToJD(t)
	T := (jd - 2451545.0) / 36525.0

	L0 := fixAngle(280.46646 + T*(36000.76983+T*0.0003032))
	M := fixAngle(357.52911 + T*(35999.05029-T*0.0001537))
	e := 0.016708634 - T*(0.000042037+T*0.0000001267)
	C := math.Sin(degToRad(M))*(1.914602-T*(0.004817+T*0.000014)) +
		math.Sin(degToRad(2*M))*(0.019993-T*0.000101) +
		math.Sin(degToRad(3*M))*0.000289
	omega := 125.04 - 1934.136*T
	lambda := L0 + C - 0.00569 - 0.00478*math.Sin(degToRad(omega))
	eps0 := 23 + (26+(21.448-T*(46.815+T*(0.00059-T*0.001813)))/60)/60
	decl := math.Asin(math.Sin(degToRad(eps0)) * math.Sin(degToRad(lambda)))

	y := math.Tan(degToRad(eps0)/2) * math.Tan(degToRad(eps0)/2)
	eqTimeMin := radToDeg(y*math.Sin(degToRad(2*L0))-
		2*e*math.Sin(degToRad(M))+
		4*e*y*math.Sin(degToRad(M))*math.Cos(degToRad(2*L0))-
		0.5*y*y*math.Sin(degToRad(4*L0))-
		1.25*e*e*math.Sin(degToRad(2*M))) * 4

	utcMin := float64(t.Hour()*60+t.Minute()) + float64(t.Second())/60.0
	trueSolarMin := utcMin + 4*lon + eqTimeMin
	ha := trueSolarMin/4 - 180

	latRad := degToRad(lat)
	cosZen := math.Sin(latRad)*math.Sin(decl) + math.Cos(latRad)*math.Cos(decl)*math.Cos(degToRad(ha))
	cosZen = math.Max(-1, math.Min(1, cosZen))
	zen := math.Acos(cosZen)
	elDeg := 90 - radToDeg(zen) + 0.5667

	var azDeg float64
	if den := math.Cos(latRad) * math.Sin(zen); den != 0 {
		cosAz := (math.Sin(decl) - math.Sin(latRad)*cosZen) / den
		azDeg = radToDeg(math.Acos(math.Max(-1, math.Min(1, cosAz))))
		if fixAngle(ha) < 180 {
			azDeg = 360 - azDeg
		}
	}

	return Position{
		EqOfTimeMin:    eqTimeMin,
		DeclinationDeg: radToDeg(decl),
		AzimuthDeg:     azDeg,
		ElevationDeg:   elDeg,
	}
}

// IsDark reports whether the sun is below civil twilight at lat/lon at t.
func IsDark(lat, lon float64, t time.Time) bool {
	return SunPosition(lat, lon, t).ElevationDeg < CivilTwilightDeg
}

// Package projection converts between WGS84 and a fixed UTM zone and builds
// the metric area of interest around a geocoded point.
package projection

import (
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// WGS84 ellipsoid.
const (
	wgs84A = 6378137.0
	wgs84F = 1 / 298.257223563

	utmK0            = 0.9996
	utmFalseEasting  = 500000.0
	utmFalseNorthing = 10000000.0
)

// UTM is a single Universal Transverse Mercator zone on WGS84.
type UTM struct {
	Zone  int
	South bool

	lon0  float64
	e     float64
	a     float64 // rectifying radius A
	alpha [6]float64
	beta  [6]float64
}

// NewUTM returns the projection for zone (1-60) in the given hemisphere.
func NewUTM(zone int, south bool) (*UTM, error) {
	if zone < 1 || zone > 60 {
		return nil, eris.Errorf("projection: invalid utm zone %d", zone)
	}

	n := wgs84F / (2 - wgs84F)
	n2, n3 := n*n, n*n*n
	n4, n5, n6 := n3*n, n3*n2, n3*n3

	u := &UTM{
		Zone:  zone,
		South: south,
		lon0:  radians(float64(zone-1)*6 - 180 + 3),
		e:     math.Sqrt(wgs84F * (2 - wgs84F)),
		a:     wgs84A / (1 + n) * (1 + n2/4 + n4/64 + n6/256),
	}

	// Krüger series coefficients to sixth order (Karney 2011).
	u.alpha = [6]float64{
		n/2 - 2*n2/3 + 5*n3/16 + 41*n4/180 - 127*n5/288 + 7891*n6/37800,
		13*n2/48 - 3*n3/5 + 557*n4/1440 + 281*n5/630 - 1983433*n6/1935360,
		61*n3/240 - 103*n4/140 + 15061*n5/26880 + 167603*n6/181440,
		49561*n4/161280 - 179*n5/168 + 6601661*n6/7257600,
		34729*n5/80640 - 3418889*n6/1995840,
		212378941 * n6 / 319334400,
	}
	u.beta = [6]float64{
		n/2 - 2*n2/3 + 37*n3/96 - n4/360 - 81*n5/512 + 96199*n6/604800,
		n2/48 + n3/15 - 437*n4/1440 + 46*n5/105 - 1118711*n6/3870720,
		17*n3/480 - 37*n4/840 - 209*n5/4480 + 5569*n6/90720,
		4397*n4/161280 - 11*n5/504 - 830251*n6/7257600,
		4583*n5/161280 - 108847*n6/3991680,
		20648693 * n6 / 638668800,
	}
	return u, nil
}

// ParseEPSG parses a WGS84 UTM identifier such as "EPSG:32644" (north) or
// "EPSG:32744" (south). A bare code without the prefix is accepted.
func ParseEPSG(id string) (*UTM, error) {
	s := strings.TrimSpace(strings.ToUpper(id))
	s = strings.TrimPrefix(s, "EPSG:")
	code, err := strconv.Atoi(s)
	if err != nil {
		return nil, eris.Wrapf(err, "projection: parse crs %q", id)
	}
	switch {
	case code >= 32601 && code <= 32660:
		return NewUTM(code-32600, false)
	case code >= 32701 && code <= 32760:
		return NewUTM(code-32700, true)
	default:
		return nil, eris.Errorf("projection: unsupported crs %q (want a WGS84 UTM zone)", id)
	}
}

// EPSG returns the numeric EPSG code of the zone.
func (u *UTM) EPSG() int {
	if u.South {
		return 32700 + u.Zone
	}
	return 32600 + u.Zone
}

// String returns the "EPSG:xxxxx" identifier.
func (u *UTM) String() string {
	return "EPSG:" + strconv.Itoa(u.EPSG())
}

// Forward projects a WGS84 longitude/latitude in degrees to easting and
// northing in metres.
func (u *UTM) Forward(lon, lat float64) (x, y float64) {
	phi := radians(lat)
	lambda := radians(lon) - u.lon0

	cosL, sinL := math.Cos(lambda), math.Sin(lambda)
	tau := math.Tan(phi)
	sigma := math.Sinh(u.e * math.Atanh(u.e*tau/math.Sqrt(1+tau*tau)))
	tauP := tau*math.Sqrt(1+sigma*sigma) - sigma*math.Sqrt(1+tau*tau)

	xiP := math.Atan2(tauP, cosL)
	etaP := math.Asinh(sinL / math.Sqrt(tauP*tauP+cosL*cosL))

	xi, eta := xiP, etaP
	for j := 1; j <= 6; j++ {
		a := u.alpha[j-1]
		k := 2 * float64(j)
		xi += a * math.Sin(k*xiP) * math.Cosh(k*etaP)
		eta += a * math.Cos(k*xiP) * math.Sinh(k*etaP)
	}

	x = utmK0*u.a*eta + utmFalseEasting
	y = utmK0 * u.a * xi
	if u.South {
		y += utmFalseNorthing
	}
	return x, y
}

// Inverse converts easting and northing in metres back to WGS84
// longitude/latitude in degrees.
func (u *UTM) Inverse(x, y float64) (lon, lat float64) {
	x -= utmFalseEasting
	if u.South {
		y -= utmFalseNorthing
	}

	eta := x / (utmK0 * u.a)
	xi := y / (utmK0 * u.a)

	xiP, etaP := xi, eta
	for j := 1; j <= 6; j++ {
		b := u.beta[j-1]
		k := 2 * float64(j)
		xiP -= b * math.Sin(k*xi) * math.Cosh(k*eta)
		etaP -= b * math.Cos(k*xi) * math.Sinh(k*eta)
	}

	sinhEtaP := math.Sinh(etaP)
	sinXiP, cosXiP := math.Sin(xiP), math.Cos(xiP)
	tauP := sinXiP / math.Sqrt(sinhEtaP*sinhEtaP+cosXiP*cosXiP)

	e2 := u.e * u.e
	tau := tauP
	for range 15 {
		sigma := math.Sinh(u.e * math.Atanh(u.e*tau/math.Sqrt(1+tau*tau)))
		tauI := tau*math.Sqrt(1+sigma*sigma) - sigma*math.Sqrt(1+tau*tau)
		delta := (tauP - tauI) / math.Sqrt(1+tauI*tauI) *
			(1 + (1-e2)*tau*tau) / ((1 - e2) * math.Sqrt(1+tau*tau))
		tau += delta
		if math.Abs(delta) < 1e-12 {
			break
		}
	}

	lat = degrees(math.Atan(tau))
	lon = degrees(math.Atan2(sinhEtaP, cosXiP) + u.lon0)
	return lon, lat
}

func radians(d float64) float64 { return d * math.Pi / 180 }
func degrees(r float64) float64 { return r * 180 / math.Pi }

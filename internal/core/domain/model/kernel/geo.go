package kernel

import (
	"errors"
	"fmt"
	"math"

	"dispatch/internal/pkg/errs"
	"dispatch/internal/pkg/guard"
)

const (
	// GeoLatitudeMin is the minimum valid latitude in degrees.
	GeoLatitudeMin = -90.0
	// GeoLatitudeMax is the maximum valid latitude in degrees.
	GeoLatitudeMax = 90.0
	// GeoLongitudeMin is the minimum valid longitude in degrees.
	GeoLongitudeMin = -180.0
	// GeoLongitudeMax is the maximum valid longitude in degrees.
	GeoLongitudeMax = 180.0

	// earthRadiusKm is the mean Earth radius used for distance calculations.
	earthRadiusKm = 6371.0
)

// ErrGeoPointIsNotConstructed is returned when attempting to use an
// improperly initialized GeoPoint. GeoPoints must be created via NewGeoPoint.
var ErrGeoPointIsNotConstructed = errs.NewValueIsRequiredError(
	"geo point must be created via NewGeoPoint constructor")

// GeoPoint represents a validated geographic coordinate pair in degrees.
// It is an immutable value object: the zero value is invalid and fails
// Validate, so a GeoPoint in circulation is always finite and in range.
//
// Example:
//
//	point, err := kernel.NewGeoPoint(41.3, 69.28)
//	if err != nil {
//	    // Handle validation error
//	}
//	fmt.Println(point) // GeoPoint(41.300000,69.280000)
type GeoPoint struct { //nolint:recvcheck //using for validation
	latitude  float64
	longitude float64
	guard     guard.ConstructorGuard
}

// NewGeoPoint creates a GeoPoint from latitude and longitude in degrees.
// Both values must be finite; latitude must be within [-90, 90] and
// longitude within [-180, 180]. Returns an aggregated validation error
// otherwise.
func NewGeoPoint(latitude, longitude float64) (GeoPoint, error) {
	point := GeoPoint{
		guard: guard.NewConstructorGuard(),
	}

	if err := errors.Join(
		point.setLatitude(latitude),
		point.setLongitude(longitude),
	); err != nil {
		return GeoPoint{}, err
	}

	return point, nil
}

// Validate checks that the GeoPoint was created via NewGeoPoint.
// The zero value fails this check.
func (p GeoPoint) Validate() error {
	return p.guard.Validate(ErrGeoPointIsNotConstructed)
}

// Latitude returns the latitude in degrees.
func (p GeoPoint) Latitude() float64 {
	return p.latitude
}

// Longitude returns the longitude in degrees.
func (p GeoPoint) Longitude() float64 {
	return p.longitude
}

// String implements fmt.Stringer.
func (p GeoPoint) String() string {
	return fmt.Sprintf("GeoPoint(%f,%f)", p.latitude, p.longitude)
}

// IsEqual reports whether two points have identical coordinates.
// Both points must be properly constructed.
func (p GeoPoint) IsEqual(other GeoPoint) (bool, error) {
	if err := errors.Join(p.Validate(), other.Validate()); err != nil {
		return false, err
	}

	return p.latitude == other.latitude && p.longitude == other.longitude, nil
}

// DistanceKm returns the great-circle distance to another point in
// kilometers, computed with the haversine formula. Both points must be
// properly constructed.
func (p GeoPoint) DistanceKm(other GeoPoint) (float64, error) {
	if err := errors.Join(p.Validate(), other.Validate()); err != nil {
		return 0, err
	}

	lat1 := p.latitude * math.Pi / 180
	lat2 := other.latitude * math.Pi / 180
	dLat := (other.latitude - p.latitude) * math.Pi / 180
	dLng := (other.longitude - p.longitude) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c, nil
}

// setLatitude sets the latitude with validation.
// Pointer receiver is intentional for self-encapsulated construction-time
// validation; all public methods use value receivers.
func (p *GeoPoint) setLatitude(latitude float64) error {
	if math.IsNaN(latitude) || math.IsInf(latitude, 0) {
		return errs.NewValueIsInvalidError("latitude")
	}
	if latitude < GeoLatitudeMin || latitude > GeoLatitudeMax {
		return errs.NewValueIsOutOfRangeError("latitude", latitude, GeoLatitudeMin, GeoLatitudeMax)
	}

	p.latitude = latitude
	return nil
}

// setLongitude sets the longitude with validation.
func (p *GeoPoint) setLongitude(longitude float64) error {
	if math.IsNaN(longitude) || math.IsInf(longitude, 0) {
		return errs.NewValueIsInvalidError("longitude")
	}
	if longitude < GeoLongitudeMin || longitude > GeoLongitudeMax {
		return errs.NewValueIsOutOfRangeError("longitude", longitude, GeoLongitudeMin, GeoLongitudeMax)
	}

	p.longitude = longitude
	return nil
}

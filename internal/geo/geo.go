// Package geo computes delivery distance and delivery fees.
package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/pufftown/delivery-backend/internal/money"
)

const earthRadiusMiles = 3958.8

// ErrNoCoordinates is returned when a customer has no usable geocoded
// location. The zone check fails closed in that case.
var ErrNoCoordinates = errors.New("address has no verified coordinates")

// Distance returns the haversine great-circle distance in miles.
func Distance(lat1, lng1, lat2, lng2 float64) float64 {
	toRad := func(d float64) float64 { return d * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMiles * c
}

// Zone is a delivery zone anchored at the store.
type Zone struct {
	StoreLat    float64
	StoreLng    float64
	RadiusMiles float64
}

// Check returns the distance from the store to the given point and whether
// the point is inside the zone. The boundary is inclusive. Missing or NaN
// coordinates fail closed with ErrNoCoordinates.
func (z Zone) Check(lat, lng float64) (float64, bool, error) {
	if math.IsNaN(lat) || math.IsNaN(lng) || (lat == 0 && lng == 0) {
		return 0, false, ErrNoCoordinates
	}
	d := Distance(z.StoreLat, z.StoreLng, lat, lng)
	return d, d <= z.RadiusMiles, nil
}

// FeeType enumerates how the delivery fee is computed. Adding a variant
// forces the switch in DeliveryFee to be extended.
type FeeType int

const (
	FeeFlat FeeType = iota
	FeePerMile
	FeePerItem
	FeeCombined
)

func (t FeeType) String() string {
	switch t {
	case FeeFlat:
		return "flat"
	case FeePerMile:
		return "per_mile"
	case FeePerItem:
		return "per_item"
	case FeeCombined:
		return "combined"
	}
	return "unknown"
}

func ParseFeeType(s string) (FeeType, error) {
	switch s {
	case "flat":
		return FeeFlat, nil
	case "per_mile":
		return FeePerMile, nil
	case "per_item":
		return FeePerItem, nil
	case "combined":
		return FeeCombined, nil
	}
	return 0, fmt.Errorf("unknown fee type %q", s)
}

// FeeSchedule carries the configured fee parameters, all in cents.
type FeeSchedule struct {
	Type            FeeType
	FlatFeeCents    int64
	PerMileFeeCents int64
	PerItemFeeCents int64
}

// DeliveryFee computes the fee in cents for a delivery at the given distance
// with the given total item count.
func (s FeeSchedule) DeliveryFee(distanceMiles float64, itemCount int) int64 {
	perMile := money.RoundHalfUp(float64(s.PerMileFeeCents) * distanceMiles)
	perItem := s.PerItemFeeCents * int64(itemCount)

	switch s.Type {
	case FeeFlat:
		return s.FlatFeeCents
	case FeePerMile:
		return perMile
	case FeePerItem:
		return perItem
	case FeeCombined:
		return s.FlatFeeCents + perMile + perItem
	}
	return s.FlatFeeCents
}

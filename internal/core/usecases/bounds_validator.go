package usecases

import (
	"hash/fnv"
	"math"

	"github.com/samirrijal/surgemap/internal/core/domain"
)

// BoundsValidator keeps resolved points inside the operational region,
// substituting a fallback near the regional centre when a candidate is
// missing or lands elsewhere.
type BoundsValidator struct {
	region domain.Bounds
	center domain.GeoPoint
	spread float64
}

// NewBoundsValidator creates a BoundsValidator. spread is the maximum
// fallback offset from center on each axis, in degrees.
func NewBoundsValidator(region domain.Bounds, center domain.GeoPoint, spread float64) *BoundsValidator {
	return &BoundsValidator{region: region, center: region.Clamp(center), spread: math.Abs(spread)}
}

// Region returns the operational bounding box.
func (v *BoundsValidator) Region() domain.Bounds { return v.region }

// Center returns the regional default centre.
func (v *BoundsValidator) Center() domain.GeoPoint { return v.center }

// Validate returns the point to use for the entity identified by key. The
// error is nil when the candidate passed through unchanged; otherwise it
// explains why the fallback was used.
func (v *BoundsValidator) Validate(c domain.Candidate, key string) (domain.ResolvedPoint, error) {
	if !c.OK {
		reason := c.Err
		if reason == nil {
			reason = domain.ErrNoResultFound
		}
		return v.Fallback(key), reason
	}
	if !v.region.Contains(c.Point.Point()) {
		return v.Fallback(key), domain.ErrOutOfRegion
	}
	return c.Point, nil
}

// Fallback returns a point near the regional centre. The offset is derived
// from key so the same entity always lands on the same spot and different
// entities do not stack on one pixel.
func (v *BoundsValidator) Fallback(key string) domain.ResolvedPoint {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	sum := h.Sum64()

	p := domain.GeoPoint{
		Lat: v.center.Lat + unitOffset(uint32(sum))*v.spread,
		Lon: v.center.Lon + unitOffset(uint32(sum>>32))*v.spread,
	}
	p = v.region.Clamp(p)

	return domain.ResolvedPoint{Lat: p.Lat, Lon: p.Lon, Provenance: domain.ProvenanceFallback}
}

// unitOffset maps x uniformly onto [-1, 1].
func unitOffset(x uint32) float64 {
	return float64(x)/math.MaxUint32*2 - 1
}

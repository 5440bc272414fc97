package geo

import (
	"math"

	"github.com/crisisgrid/backend/internal/models"
)

const earthRadiusM = 6371000.0

// HaversineM returns the great-circle distance between two points in meters.
func HaversineM(a, b models.Waypoint) float64 {
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)

	latA := degreesToRadians(a.Lat)
	latB := degreesToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Sin(dLng/2)*math.Sin(dLng/2)*math.Cos(latA)*math.Cos(latB)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusM * c
}

// Bearing returns the initial heading from a to b in degrees [0, 360).
func Bearing(a, b models.Waypoint) float64 {
	dLng := degreesToRadians(b.Lng - a.Lng)
	latA := degreesToRadians(a.Lat)
	latB := degreesToRadians(b.Lat)

	y := math.Sin(dLng) * math.Cos(latB)
	x := math.Cos(latA)*math.Sin(latB) - math.Sin(latA)*math.Cos(latB)*math.Cos(dLng)
	return math.Mod(math.Atan2(y, x)*180/math.Pi+360, 360)
}

// Lerp interpolates linearly between two points, t in [0, 1].
func Lerp(a, b models.Waypoint, t float64) models.Waypoint {
	return models.Waypoint{
		Lat: a.Lat + (b.Lat-a.Lat)*t,
		Lng: a.Lng + (b.Lng-a.Lng)*t,
	}
}

// PathLengthM sums the haversine length of a polyline in meters.
func PathLengthM(path []models.Waypoint) float64 {
	var total float64
	for i := 1; i < len(path); i++ {
		total += HaversineM(path[i-1], path[i])
	}
	return total
}

// Coordinates are treated as planar for intersection tests; routes and
// hazards are regional, so projection error is negligible at this scale.
// Lng maps to x and Lat to y.

func orientation(p, q, r models.Waypoint) int {
	v := (q.Lat-p.Lat)*(r.Lng-q.Lng) - (q.Lng-p.Lng)*(r.Lat-q.Lat)
	if v > 0 {
		return 1
	}
	if v < 0 {
		return -1
	}
	return 0
}

func onSegment(p, q, r models.Waypoint) bool {
	return math.Min(p.Lng, r.Lng) <= q.Lng && q.Lng <= math.Max(p.Lng, r.Lng) &&
		math.Min(p.Lat, r.Lat) <= q.Lat && q.Lat <= math.Max(p.Lat, r.Lat)
}

// SegmentsIntersect reports whether segments p1-p2 and p3-p4 intersect,
// including collinear overlap and shared endpoints.
func SegmentsIntersect(p1, p2, p3, p4 models.Waypoint) bool {
	o1 := orientation(p1, p2, p3)
	o2 := orientation(p1, p2, p4)
	o3 := orientation(p3, p4, p1)
	o4 := orientation(p3, p4, p2)

	if o1 != o2 && o3 != o4 {
		return true
	}
	if o1 == 0 && onSegment(p1, p3, p2) {
		return true
	}
	if o2 == 0 && onSegment(p1, p4, p2) {
		return true
	}
	if o3 == 0 && onSegment(p3, p1, p4) {
		return true
	}
	if o4 == 0 && onSegment(p3, p2, p4) {
		return true
	}
	return false
}

// PointInRing reports whether p lies inside the polygon ring using the
// even-odd rule. The ring need not repeat its first point.
func PointInRing(p models.Waypoint, ring []models.Waypoint) bool {
	inside := false
	n := len(ring)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := ring[i], ring[j]
		if (a.Lat > p.Lat) != (b.Lat > p.Lat) {
			x := (b.Lng-a.Lng)*(p.Lat-a.Lat)/(b.Lat-a.Lat) + a.Lng
			if p.Lng < x {
				inside = !inside
			}
		}
	}
	return inside
}

// PathIntersectsRing reports whether any part of the path crosses or lies
// within the polygon ring.
func PathIntersectsRing(path, ring []models.Waypoint) bool {
	if len(path) == 0 || len(ring) < 3 {
		return false
	}
	for _, p := range path {
		if PointInRing(p, ring) {
			return true
		}
	}
	n := len(ring)
	for i := 1; i < len(path); i++ {
		for j := 0; j < n; j++ {
			if SegmentsIntersect(path[i-1], path[i], ring[j], ring[(j+1)%n]) {
				return true
			}
		}
	}
	return false
}

// PathIntersectsLine reports whether two polylines cross.
func PathIntersectsLine(path, line []models.Waypoint) bool {
	for i := 1; i < len(path); i++ {
		for j := 1; j < len(line); j++ {
			if SegmentsIntersect(path[i-1], path[i], line[j-1], line[j]) {
				return true
			}
		}
	}
	return false
}

// BBox is an axis-aligned bounding box in degrees.
type BBox struct {
	MinLat, MinLng, MaxLat, MaxLng float64
}

// BoundsOf returns the bounding box of a point set.
func BoundsOf(points []models.Waypoint) BBox {
	b := BBox{
		MinLat: math.Inf(1), MinLng: math.Inf(1),
		MaxLat: math.Inf(-1), MaxLng: math.Inf(-1),
	}
	for _, p := range points {
		b.MinLat = math.Min(b.MinLat, p.Lat)
		b.MinLng = math.Min(b.MinLng, p.Lng)
		b.MaxLat = math.Max(b.MaxLat, p.Lat)
		b.MaxLng = math.Max(b.MaxLng, p.Lng)
	}
	return b
}

// Pad grows the box by d degrees on every side.
func (b BBox) Pad(d float64) BBox {
	return BBox{
		MinLat: b.MinLat - d, MinLng: b.MinLng - d,
		MaxLat: b.MaxLat + d, MaxLng: b.MaxLng + d,
	}
}

// Corners returns the box corners in SW, NW, SE, NE order.
func (b BBox) Corners() [4]models.Waypoint {
	return [4]models.Waypoint{
		{Lat: b.MinLat, Lng: b.MinLng},
		{Lat: b.MaxLat, Lng: b.MinLng},
		{Lat: b.MinLat, Lng: b.MaxLng},
		{Lat: b.MaxLat, Lng: b.MaxLng},
	}
}

func degreesToRadians(d float64) float64 {
	return d * math.Pi / 180
}

package geom

import "math"

// Vec3 represents a position or direction in world units. The simulation keeps
// all authoritative coordinates in float64 so a single type serves positions,
// velocities, and ray directions alike.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Add returns the component-wise sum of two vectors.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

// Sub returns the component-wise difference v - o.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

// Scale returns the vector multiplied by s.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

// Dot returns the dot product of two vectors.
func (v Vec3) Dot(o Vec3) float64 {
	return v.X*o.X + v.Y*o.Y + v.Z*o.Z
}

// Length returns the Euclidean magnitude of the vector.
func (v Vec3) Length() float64 {
	return math.Sqrt(v.Dot(v))
}

// Normalized returns a unit-length copy of the vector. The zero vector is
// returned unchanged so callers never divide by zero.
func (v Vec3) Normalized() Vec3 {
	length := v.Length()
	if length == 0 {
		return Vec3{}
	}
	return v.Scale(1 / length)
}

// DistanceTo returns the Euclidean distance between two points.
func (v Vec3) DistanceTo(o Vec3) float64 {
	return v.Sub(o).Length()
}

// Lerp linearly interpolates between a and b by alpha in [0,1]. Values outside
// the unit interval extrapolate, which callers clamp when that matters.
func Lerp(a, b Vec3, alpha float64) Vec3 {
	return Vec3{
		X: a.X + (b.X-a.X)*alpha,
		Y: a.Y + (b.Y-a.Y)*alpha,
		Z: a.Z + (b.Z-a.Z)*alpha,
	}
}

// LerpAngle interpolates between two angles in degrees following the shortest
// arc, so a yaw sweep from 350° to 10° passes through 0° instead of unwinding
// 340° the long way.
func LerpAngle(a, b, alpha float64) float64 {
	delta := math.Mod(b-a, 360)
	if delta > 180 {
		delta -= 360
	} else if delta < -180 {
		delta += 360
	}
	return a + delta*alpha
}

// Ray is a half-line with a normalized direction.
type Ray struct {
	Origin    Vec3
	Direction Vec3
}

// NewRay constructs a ray, normalizing the direction.
func NewRay(origin, direction Vec3) Ray {
	return Ray{Origin: origin, Direction: direction.Normalized()}
}

// At returns the point at parameter t along the ray.
func (r Ray) At(t float64) Vec3 {
	return r.Origin.Add(r.Direction.Scale(t))
}

// DistanceToPoint returns the shortest distance from the point to the ray,
// treating the ray as a half-line: points behind the origin measure to the
// origin itself.
func (r Ray) DistanceToPoint(p Vec3) float64 {
	toPoint := p.Sub(r.Origin)
	t := toPoint.Dot(r.Direction)
	if t < 0 {
		return toPoint.Length()
	}
	return p.Sub(r.At(t)).Length()
}

// Box is an axis-aligned hitbox described by its center and half-extents.
type Box struct {
	Center Vec3
	Half   Vec3
}

// NewBox builds a hitbox from a center point and full dimensions.
func NewBox(center Vec3, width, height, depth float64) Box {
	return Box{Center: center, Half: Vec3{X: width / 2, Y: height / 2, Z: depth / 2}}
}

// Translated returns a copy of the box re-centered at the given point.
func (b Box) Translated(center Vec3) Box {
	return Box{Center: center, Half: b.Half}
}

// Contains reports whether the point lies inside the box. Faces count as
// inside so touching geometry still registers, matching the inclusive
// collision policy used across the simulation.
func (b Box) Contains(p Vec3) bool {
	d := p.Sub(b.Center)
	return math.Abs(d.X) <= b.Half.X &&
		math.Abs(d.Y) <= b.Half.Y &&
		math.Abs(d.Z) <= b.Half.Z
}

// IntersectRay performs a slab test of the ray against the box and returns the
// entry parameter t ≥ 0 when the ray hits. Rays originating inside the box hit
// at t = 0.
func (b Box) IntersectRay(r Ray) (float64, bool) {
	tMin := math.Inf(-1)
	tMax := math.Inf(1)

	min := b.Center.Sub(b.Half)
	max := b.Center.Add(b.Half)

	origins := [3]float64{r.Origin.X, r.Origin.Y, r.Origin.Z}
	dirs := [3]float64{r.Direction.X, r.Direction.Y, r.Direction.Z}
	mins := [3]float64{min.X, min.Y, min.Z}
	maxs := [3]float64{max.X, max.Y, max.Z}

	for axis := 0; axis < 3; axis++ {
		if dirs[axis] == 0 {
			if origins[axis] < mins[axis] || origins[axis] > maxs[axis] {
				return 0, false
			}
			continue
		}
		inv := 1 / dirs[axis]
		t0 := (mins[axis] - origins[axis]) * inv
		t1 := (maxs[axis] - origins[axis]) * inv
		if t0 > t1 {
			t0, t1 = t1, t0
		}
		if t0 > tMin {
			tMin = t0
		}
		if t1 < tMax {
			tMax = t1
		}
		if tMin > tMax {
			return 0, false
		}
	}

	if tMax < 0 {
		return 0, false
	}
	if tMin < 0 {
		return 0, true
	}
	return tMin, true
}

// Clamp bounds value to [min, max].
func Clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

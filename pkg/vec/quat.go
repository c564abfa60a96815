package vec

import "math"

const (
	degToRad = math.Pi / 180
	radToDeg = 180 / math.Pi
)

// Quat is a unit quaternion rotation, stored x, y, z, w.
type Quat struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// Identity returns the no-rotation quaternion.
func Identity() Quat {
	return Quat{W: 1}
}

// FromAxisAngle builds a rotation of angleRad radians about axis.
func FromAxisAngle(axis Vec3, angleRad float64) Quat {
	axis = axis.Normalize()
	half := angleRad / 2
	s := math.Sin(half)
	return Quat{axis.X * s, axis.Y * s, axis.Z * s, math.Cos(half)}
}

// FromYawDeg builds a rotation of deg degrees about +Y.
func FromYawDeg(deg float64) Quat {
	return FromAxisAngle(Vec3{Y: 1}, deg*degToRad)
}

func (q Quat) Dot(o Quat) float64 {
	return q.X*o.X + q.Y*o.Y + q.Z*o.Z + q.W*o.W
}

func (q Quat) Len() float64 {
	return math.Sqrt(q.Dot(q))
}

// Normalize returns the unit quaternion, or identity for a degenerate one.
func (q Quat) Normalize() Quat {
	l := q.Len()
	if l == 0 {
		return Identity()
	}
	inv := 1 / l
	return Quat{q.X * inv, q.Y * inv, q.Z * inv, q.W * inv}
}

// Mul composes two rotations: applying q.Mul(o) rotates by o first, then q.
func (q Quat) Mul(o Quat) Quat {
	return Quat{
		q.W*o.X + q.X*o.W + q.Y*o.Z - q.Z*o.Y,
		q.W*o.Y - q.X*o.Z + q.Y*o.W + q.Z*o.X,
		q.W*o.Z + q.X*o.Y - q.Y*o.X + q.Z*o.W,
		q.W*o.W - q.X*o.X - q.Y*o.Y - q.Z*o.Z,
	}
}

// Rotate applies the rotation to a vector.
func (q Quat) Rotate(v Vec3) Vec3 {
	u := Vec3{q.X, q.Y, q.Z}
	t := u.Cross(v).Scale(2)
	return v.Add(t.Scale(q.W)).Add(u.Cross(t))
}

// Forward returns the rotated +Z basis vector.
func (q Quat) Forward() Vec3 {
	return q.Rotate(Vec3{Z: 1})
}

// Right returns the rotated +X basis vector.
func (q Quat) Right() Vec3 {
	return q.Rotate(Vec3{X: 1})
}

// Up returns the rotated +Y basis vector.
func (q Quat) Up() Vec3 {
	return q.Rotate(Vec3{Y: 1})
}

// YawDeg extracts the heading of the rotated forward vector in [0, 360).
func (q Quat) YawDeg() float64 {
	f := q.Forward()
	return NormalizeHeading(math.Atan2(f.X, f.Z) * radToDeg)
}

// AngleToDeg returns the absolute angular distance to o in degrees.
func (q Quat) AngleToDeg(o Quat) float64 {
	d := math.Abs(q.Dot(o))
	if d > 1 {
		d = 1
	}
	return 2 * math.Acos(d) * radToDeg
}

// Slerp interpolates between a and b by t in [0, 1], taking the short
// arc. Falls back to normalized lerp when the quaternions are nearly
// parallel.
func Slerp(a, b Quat, t float64) Quat {
	d := a.Dot(b)
	if d < 0 {
		b = Quat{-b.X, -b.Y, -b.Z, -b.W}
		d = -d
	}
	if d > 0.9995 {
		return Quat{
			a.X + (b.X-a.X)*t,
			a.Y + (b.Y-a.Y)*t,
			a.Z + (b.Z-a.Z)*t,
			a.W + (b.W-a.W)*t,
		}.Normalize()
	}
	theta := math.Acos(d)
	sinTheta := math.Sin(theta)
	wa := math.Sin((1-t)*theta) / sinTheta
	wb := math.Sin(t*theta) / sinTheta
	return Quat{
		a.X*wa + b.X*wb,
		a.Y*wa + b.Y*wb,
		a.Z*wa + b.Z*wb,
		a.W*wa + b.W*wb,
	}.Normalize()
}

// RotateTowards rotates q toward target by at most maxDeg degrees.
func (q Quat) RotateTowards(target Quat, maxDeg float64) Quat {
	angle := q.AngleToDeg(target)
	if angle <= maxDeg || angle == 0 {
		return target
	}
	return Slerp(q, target, maxDeg/angle)
}

// LookRotation builds the rotation whose forward axis points along dir,
// keeping the rotated up axis as close to up as possible. A zero dir
// returns identity.
func LookRotation(dir, up Vec3) Quat {
	f := dir.Normalize()
	if f.IsZero() {
		return Identity()
	}
	if up.IsZero() {
		up = Vec3{Y: 1}
	}
	r := up.Cross(f).Normalize()
	if r.IsZero() {
		// dir is parallel to up; pick an arbitrary perpendicular.
		r = Vec3{Z: 1}.Cross(f).Normalize()
		if r.IsZero() {
			r = Vec3{X: 1}
		}
	}
	u := f.Cross(r)

	// Basis matrix (r, u, f columns) to quaternion, Shepperd's method.
	m00, m01, m02 := r.X, u.X, f.X
	m10, m11, m12 := r.Y, u.Y, f.Y
	m20, m21, m22 := r.Z, u.Z, f.Z

	trace := m00 + m11 + m22
	var q Quat
	switch {
	case trace > 0:
		s := math.Sqrt(trace+1) * 2
		q = Quat{(m21 - m12) / s, (m02 - m20) / s, (m10 - m01) / s, s / 4}
	case m00 > m11 && m00 > m22:
		s := math.Sqrt(1+m00-m11-m22) * 2
		q = Quat{s / 4, (m01 + m10) / s, (m02 + m20) / s, (m21 - m12) / s}
	case m11 > m22:
		s := math.Sqrt(1+m11-m00-m22) * 2
		q = Quat{(m01 + m10) / s, s / 4, (m12 + m21) / s, (m02 - m20) / s}
	default:
		s := math.Sqrt(1+m22-m00-m11) * 2
		q = Quat{(m02 + m20) / s, (m12 + m21) / s, s / 4, (m10 - m01) / s}
	}
	return q.Normalize()
}

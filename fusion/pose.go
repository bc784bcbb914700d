package fusion

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"

	"go.viam.com/rdk/spatialmath"
)

var nan = math.NaN()

// mat3 is a 3x3 rotation matrix stored row-major.
type mat3 [3][3]float64

// IdentityMat3 returns the 3x3 identity rotation.
func IdentityMat3() mat3 {
	return mat3{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
	}
}

func (m mat3) mulVec(v r3.Vector) r3.Vector {
	return r3.Vector{
		X: m[0][0]*v.X + m[0][1]*v.Y + m[0][2]*v.Z,
		Y: m[1][0]*v.X + m[1][1]*v.Y + m[1][2]*v.Z,
		Z: m[2][0]*v.X + m[2][1]*v.Y + m[2][2]*v.Z,
	}
}

func (m mat3) mulMat3(o mat3) mat3 {
	var out mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			var sum float64
			for k := 0; k < 3; k++ {
				sum += m[i][k] * o[k][j]
			}
			out[i][j] = sum
		}
	}
	return out
}

func (m mat3) transpose() mat3 {
	var out mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[j][i] = m[i][j]
		}
	}
	return out
}

// rotX/rotY/rotZ build small-angle rotation matrices about the world axes.
func rotX(a float64) mat3 {
	c, s := math.Cos(a), math.Sin(a)
	return mat3{
		{1, 0, 0},
		{0, c, -s},
		{0, s, c},
	}
}

func rotY(a float64) mat3 {
	c, s := math.Cos(a), math.Sin(a)
	return mat3{
		{c, 0, s},
		{0, 1, 0},
		{-s, 0, c},
	}
}

func rotZ(a float64) mat3 {
	c, s := math.Cos(a), math.Sin(a)
	return mat3{
		{c, -s, 0},
		{s, c, 0},
		{0, 0, 1},
	}
}

// Pose is a rigid camera pose: p_world = R*p_cam + t.
type Pose struct {
	R mat3
	T r3.Vector
}

// IdentityPose returns the identity pose (R=I, t=0).
func IdentityPose() Pose {
	return Pose{R: IdentityMat3()}
}

// Apply transforms a camera-frame point into world coordinates.
func (p Pose) Apply(v r3.Vector) r3.Vector {
	return p.R.mulVec(v).Add(p.T)
}

// ApplyRotation rotates a camera-frame direction (e.g. a normal) into world coordinates.
func (p Pose) ApplyRotation(v r3.Vector) r3.Vector {
	return p.R.mulVec(v)
}

// Inverse returns the pose mapping world coordinates back to the camera frame:
// p_cam = R^T*(p_world - t).
func (p Pose) Inverse() Pose {
	rt := p.R.transpose()
	return Pose{R: rt, T: rt.mulVec(p.T).Mul(-1)}
}

// ToCameraFromWorld projects a world point into this pose's camera frame.
func (p Pose) ToCameraFromWorld(worldPoint r3.Vector) r3.Vector {
	inv := p.Inverse()
	return inv.Apply(worldPoint)
}

// composeIncrement applies the ICP small-angle update: R_inc = Rz(g)*Ry(b)*Rx(a),
// t_curr <- R_inc*t_curr + (tx,ty,tz), R_curr <- R_inc*R_curr.
func composeIncrement(cur Pose, alpha, beta, gamma, tx, ty, tz float64) Pose {
	rInc := rotZ(gamma).mulMat3(rotY(beta)).mulMat3(rotX(alpha))
	newT := rInc.mulVec(cur.T).Add(r3.Vector{X: tx, Y: ty, Z: tz})
	newR := rInc.mulMat3(cur.R)
	return Pose{R: newR, T: newT}
}

// ToSpatialmath converts to the go.viam.com/rdk/spatialmath.Pose used at the
// public API boundary. The full rotation matrix is handed to
// spatialmath.NewRotationMatrix column by column (handing it row by row
// yields the inverse rotation), and OrientationVectorRadians derives a
// correctly populated Theta — the rotation-about-the-pointing-axis component
// a bare OX/OY/OZ direction vector cannot express.
func (p Pose) ToSpatialmath() spatialmath.Pose {
	point := r3.Vector{X: p.T.X * 1000, Y: p.T.Y * 1000, Z: p.T.Z * 1000} // meters -> mm, rdk convention
	colMajor := make([]float64, 0, 9)
	for j := 0; j < 3; j++ {
		colMajor = append(colMajor, p.R[0][j], p.R[1][j], p.R[2][j])
	}
	rm, err := spatialmath.NewRotationMatrix(colMajor)
	if err != nil {
		// p.R is always a product of elementary rotations (or identity), so
		// it is orthonormal by construction; this can only fire on a broken
		// invariant upstream.
		panic(fmt.Errorf("tracked rotation is not a valid rotation matrix: %w", err))
	}
	return spatialmath.NewPose(point, rm.OrientationVectorRadians())
}

// PoseFromSpatialmath converts an external affine pose back into the internal
// R+t representation used by the tracking hot path. Each stored triple of
// the spatialmath rotation matrix is one column of R, mirroring the
// column-by-column construction in ToSpatialmath.
func PoseFromSpatialmath(sp spatialmath.Pose) Pose {
	point := sp.Point()
	t := r3.Vector{X: point.X / 1000, Y: point.Y / 1000, Z: point.Z / 1000}
	rm := sp.Orientation().RotationMatrix()
	var m mat3
	for j := 0; j < 3; j++ {
		col := rm.Row(j)
		m[0][j], m[1][j], m[2][j] = col.X, col.Y, col.Z
	}
	return Pose{R: m, T: t}
}

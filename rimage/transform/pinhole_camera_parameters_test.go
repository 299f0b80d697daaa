package transform

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

func TestCheckValid(t *testing.T) {
	var nilIntrinsics *PinholeCameraIntrinsics
	test.That(t, errors.Is(nilIntrinsics.CheckValid(), ErrNoIntrinsics), test.ShouldBeTrue)

	test.That(t, testIntrinsics.CheckValid(), test.ShouldBeNil)

	sized := &PinholeCameraIntrinsics{Width: 640, Height: 480, Fx: 540, Fy: 540, Ppx: 320, Ppy: 240}
	test.That(t, sized.CheckValid(), test.ShouldBeNil)

	for _, bad := range []*PinholeCameraIntrinsics{
		{Width: -1, Fx: 1, Fy: 1},
		{Fx: 0, Fy: 1},
		{Fx: 1, Fy: -3},
		{Fx: 1, Fy: 1, Ppx: -1},
		{Fx: 1, Fy: 1, Ppy: -1},
	} {
		err := bad.CheckValid()
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, errors.Is(err, ErrNoIntrinsics), test.ShouldBeTrue)
	}
}

func TestCameraMatrix(t *testing.T) {
	k := testIntrinsics.GetCameraMatrix()
	test.That(t, mat.Equal(k, mat.NewDense(3, 3, []float64{
		540, 0, 320,
		0, 520, 240,
		0, 0, 1,
	})), test.ShouldBeTrue)

	back, err := NewPinholeCameraIntrinsicsFromCameraMatrix(k)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, back, test.ShouldResemble, testIntrinsics)

	_, err = NewPinholeCameraIntrinsicsFromCameraMatrix(mat.NewDense(2, 3, nil))
	test.That(t, err, test.ShouldNotBeNil)

	var noMatrix *mat.Dense
	_, err = NewPinholeCameraIntrinsicsFromCameraMatrix(noMatrix)
	test.That(t, errors.Is(err, ErrNoIntrinsics), test.ShouldBeTrue)
	_, err = NewPinholeCameraIntrinsicsFromCameraMatrix(nil)
	test.That(t, errors.Is(err, ErrNoIntrinsics), test.ShouldBeTrue)

	var nilIntrinsics *PinholeCameraIntrinsics
	test.That(t, nilIntrinsics.GetCameraMatrix(), test.ShouldBeNil)
}

func TestIntrinsicsVector(t *testing.T) {
	v := testIntrinsics.Vector()
	test.That(t, v, test.ShouldResemble, []float64{540, 520, 320, 240})
	back, err := NewPinholeCameraIntrinsicsFromVector(v)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, back, test.ShouldResemble, testIntrinsics)

	_, err = NewPinholeCameraIntrinsicsFromVector(v[:3])
	test.That(t, err, test.ShouldNotBeNil)
}

func TestPixelToPoint(t *testing.T) {
	x, y, z := testIntrinsics.PixelToPoint(347, 188, 2)
	px, err := testIntrinsics.Project(r3.Vector{X: x, Y: y, Z: z})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, px.X, test.ShouldAlmostEqual, 347)
	test.That(t, px.Y, test.ShouldAlmostEqual, 188)
}

func TestIntrinsicsFromJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "intrinsics.json")
	contents := `{"width_px": 640, "height_px": 480, "fx": 540, "fy": 540, "ppx": 320, "ppy": 240}`
	test.That(t, os.WriteFile(path, []byte(contents), 0o600), test.ShouldBeNil)

	intrinsics, err := NewPinholeCameraIntrinsicsFromJSONFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, intrinsics, test.ShouldResemble,
		&PinholeCameraIntrinsics{Width: 640, Height: 480, Fx: 540, Fy: 540, Ppx: 320, Ppy: 240})

	_, err = NewPinholeCameraIntrinsicsFromJSONFile(filepath.Join(t.TempDir(), "missing.json"))
	test.That(t, err, test.ShouldNotBeNil)

	test.That(t, os.WriteFile(path, []byte("{"), 0o600), test.ShouldBeNil)
	_, err = NewPinholeCameraIntrinsicsFromJSONFile(path)
	test.That(t, err, test.ShouldNotBeNil)
}

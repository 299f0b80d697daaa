package calibration

import (
	"encoding/json"
	"io"
	"math"
	"os"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/calib/rimage/transform"
	"go.viam.com/calib/spatialmath"
)

// Dataset is a calibration problem as stored on disk: a planar target, the images observing it and
// reference values for the camera and the poses.
type Dataset struct {
	// CameraMatrix is the reference K. It is not used to seed the solver.
	CameraMatrix *mat.Dense
	// TargetPoints are the target corners in the target frame. They all have z = 0.
	TargetPoints []r3.Vector
	// Extrinsics are the reference target poses in the camera frame, one per image when present.
	Extrinsics []spatialmath.Pose
	// Observations holds, per image, the pixel position of every target point.
	Observations [][]r2.Point
}

// isometryJSON is a rigid transform with the quaternion stored as [i, j, k, w].
type isometryJSON struct {
	Rotation    [4]float64 `json:"rotation"`
	Translation [3]float64 `json:"translation"`
}

type datasetJSON struct {
	// K is stored column major.
	K           []float64      `json:"K"`
	WorldPoints [][2]float64   `json:"world_points"`
	Extrinsics  []isometryJSON `json:"extrinsics"`
	ImagePoints [][][2]float64 `json:"image_points"`
}

// LoadDataset reads a dataset from a JSON file.
func LoadDataset(path string) (*Dataset, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "error opening dataset")
	}
	defer utils.UncheckedErrorFunc(f.Close)
	return ReadDataset(f)
}

// ReadDataset decodes a dataset from JSON.
func ReadDataset(r io.Reader) (*Dataset, error) {
	var raw datasetJSON
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "error parsing dataset")
	}
	if len(raw.K) != 9 {
		return nil, errors.Errorf("camera matrix K must have 9 entries, got %d", len(raw.K))
	}
	k := mat.NewDense(3, 3, nil)
	for col := 0; col < 3; col++ {
		for row := 0; row < 3; row++ {
			k.Set(row, col, raw.K[3*col+row])
		}
	}

	extrinsics := make([]spatialmath.Pose, 0, len(raw.Extrinsics))
	for i, iso := range raw.Extrinsics {
		q := quat.Number{Real: iso.Rotation[3], Imag: iso.Rotation[0], Jmag: iso.Rotation[1], Kmag: iso.Rotation[2]}
		norm := quat.Abs(q)
		if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
			return nil, errors.Errorf("extrinsic %d has an invalid rotation", i)
		}
		orientation := spatialmath.Quaternion(quat.Scale(1/norm, q))
		translation := r3.Vector{X: iso.Translation[0], Y: iso.Translation[1], Z: iso.Translation[2]}
		extrinsics = append(extrinsics, spatialmath.NewPose(translation, &orientation))
	}

	return &Dataset{
		CameraMatrix: k,
		TargetPoints: lo.Map(raw.WorldPoints, func(p [2]float64, _ int) r3.Vector {
			return r3.Vector{X: p[0], Y: p[1]}
		}),
		Extrinsics: extrinsics,
		Observations: lo.Map(raw.ImagePoints, func(image [][2]float64, _ int) []r2.Point {
			return lo.Map(image, func(p [2]float64, _ int) r2.Point {
				return r2.Point{X: p[0], Y: p[1]}
			})
		}),
	}, nil
}

// Write encodes the dataset in the format read by ReadDataset. Target points are written without
// their z coordinate.
func (d *Dataset) Write(w io.Writer) error {
	raw := datasetJSON{
		K: make([]float64, 0, 9),
		WorldPoints: lo.Map(d.TargetPoints, func(p r3.Vector, _ int) [2]float64 {
			return [2]float64{p.X, p.Y}
		}),
		Extrinsics: lo.Map(d.Extrinsics, func(p spatialmath.Pose, _ int) isometryJSON {
			q := p.Orientation().Quaternion()
			t := p.Point()
			return isometryJSON{
				Rotation:    [4]float64{q.Imag, q.Jmag, q.Kmag, q.Real},
				Translation: [3]float64{t.X, t.Y, t.Z},
			}
		}),
		ImagePoints: lo.Map(d.Observations, func(image []r2.Point, _ int) [][2]float64 {
			return lo.Map(image, func(p r2.Point, _ int) [2]float64 {
				return [2]float64{p.X, p.Y}
			})
		}),
	}
	if d.CameraMatrix != nil {
		for col := 0; col < 3; col++ {
			for row := 0; row < 3; row++ {
				raw.K = append(raw.K, d.CameraMatrix.At(row, col))
			}
		}
	} else {
		raw.K = append(raw.K, 0, 0, 0, 0, 0, 0, 0, 0, 1)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(raw)
}

// Take returns a dataset limited to the first n images. A non-positive n or one past the number
// of images keeps them all. The target and camera matrix are shared with d.
func (d *Dataset) Take(n int) *Dataset {
	if n <= 0 || n > len(d.Observations) {
		n = len(d.Observations)
	}
	out := &Dataset{
		CameraMatrix: d.CameraMatrix,
		TargetPoints: d.TargetPoints,
		Observations: d.Observations[:n],
		Extrinsics:   d.Extrinsics,
	}
	if len(out.Extrinsics) > n {
		out.Extrinsics = out.Extrinsics[:n]
	}
	return out
}

// Intrinsics reads the reference camera model out of the camera matrix.
func (d *Dataset) Intrinsics() (*transform.PinholeCameraIntrinsics, error) {
	if d.CameraMatrix == nil {
		return nil, transform.NewNoIntrinsicsError("problem file has no camera matrix")
	}
	return transform.NewPinholeCameraIntrinsicsFromCameraMatrix(d.CameraMatrix)
}

// NewProblem builds the calibration problem for every image in the dataset.
func (d *Dataset) NewProblem(opts ...ProblemOption) (*Problem, error) {
	return NewProblem(d.TargetPoints, d.Observations, opts...)
}

package calibration

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/calib/rimage/transform"
	"go.viam.com/calib/spatialmath"
)

// SceneIntrinsics is the camera used for synthetic scenes.
func SceneIntrinsics() *transform.PinholeCameraIntrinsics {
	return &transform.PinholeCameraIntrinsics{
		Width:  640,
		Height: 480,
		Fx:     540,
		Fy:     540,
		Ppx:    320,
		Ppy:    240,
	}
}

// SceneTwists are three views of a target about a meter in front of the camera.
func SceneTwists() []spatialmath.Twist {
	return []spatialmath.Twist{
		{-0.1, -0.1, 1.0, 0.1, -0.2, 0.05},
		{0.05, -0.12, 1.2, -0.25, 0.1, 0.1},
		{-0.15, 0.02, 0.9, 0.2, 0.25, -0.15},
	}
}

// NewPlanarGrid returns rows×cols points spaced evenly on the z = 0 plane and centered on the
// origin, row by row.
func NewPlanarGrid(rows, cols int, spacing float64) ([]r3.Vector, error) {
	if rows < 1 || cols < 1 {
		return nil, errors.Errorf("grid must have at least one row and column, got %dx%d", rows, cols)
	}
	if !(spacing > 0) {
		return nil, errors.Errorf("grid spacing must be positive, got %v", spacing)
	}
	x0 := -spacing * float64(cols-1) / 2
	y0 := -spacing * float64(rows-1) / 2
	grid := make([]r3.Vector, 0, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			grid = append(grid, r3.Vector{X: x0 + spacing*float64(c), Y: y0 + spacing*float64(r)})
		}
	}
	return grid, nil
}

// Synthesize projects the target through each pose to produce noiseless observations.
func Synthesize(
	intrinsics *transform.PinholeCameraIntrinsics,
	poses []spatialmath.Pose,
	target []r3.Vector,
) (*Dataset, error) {
	if err := intrinsics.CheckValid(); err != nil {
		return nil, err
	}
	observations := make([][]r2.Point, len(poses))
	for i, pose := range poses {
		observations[i] = make([]r2.Point, len(target))
		for j, pt := range target {
			projected, err := intrinsics.Project(spatialmath.TransformPoint(pose, pt))
			if err != nil {
				return nil, errors.Wrapf(err, "image %d point %d", i, j)
			}
			observations[i][j] = projected
		}
	}
	return &Dataset{
		CameraMatrix: intrinsics.GetCameraMatrix(),
		TargetPoints: target,
		Extrinsics:   poses,
		Observations: observations,
	}, nil
}

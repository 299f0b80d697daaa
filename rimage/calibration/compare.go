package calibration

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"

	"go.viam.com/calib/spatialmath"
)

// PoseError is how far an estimated pose is from its reference.
type PoseError struct {
	Translation float64 `json:"translation"`
	Rotation    float64 `json:"rotation_rad"`
}

// ComparePoses measures each estimated pose against the reference pose with the same index.
func ComparePoses(estimated, reference []spatialmath.Pose) ([]PoseError, error) {
	if len(estimated) != len(reference) {
		return nil, NewDimensionMismatchError(
			"%d estimated poses for %d reference poses", len(estimated), len(reference))
	}
	out := make([]PoseError, len(estimated))
	for i := range estimated {
		out[i] = PoseError{
			Translation: estimated[i].Point().Distance(reference[i].Point()),
			Rotation:    spatialmath.AngleBetween(estimated[i].Orientation(), reference[i].Orientation()),
		}
	}
	return out, nil
}

// PoseTable renders one row per image with its twist and, when errs lines up with twists, its
// error against the reference pose.
func PoseTable(twists []spatialmath.Twist, errs []PoseError) string {
	withErrors := len(errs) == len(twists)
	t := table.NewWriter()
	header := table.Row{"#", "Translation", "Rotation"}
	if withErrors {
		header = append(header, "Translation Error", "Rotation Error (rad)")
	}
	t.AppendHeader(header)
	for i, xi := range twists {
		tr, rot := xi.Translation(), xi.Rotation()
		row := table.Row{
			i,
			fmt.Sprintf("(%.4f, %.4f, %.4f)", tr.X, tr.Y, tr.Z),
			fmt.Sprintf("(%.4f, %.4f, %.4f)", rot.X, rot.Y, rot.Z),
		}
		if withErrors {
			row = append(row, fmt.Sprintf("%.3g", errs[i].Translation), fmt.Sprintf("%.3g", errs[i].Rotation))
		}
		t.AppendRow(row)
	}
	return t.Render()
}

package calibration

import (
	"math"
	"strings"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/calib/spatialmath"
)

func TestComparePoses(t *testing.T) {
	reference := []spatialmath.Pose{
		spatialmath.NewPoseFromPoint(r3.Vector{Z: 1}),
		spatialmath.ExpMap(spatialmath.Twist{0.1, 0.2, 1, 0, 0, 0.3}),
	}
	estimated := []spatialmath.Pose{
		spatialmath.NewPoseFromPoint(r3.Vector{X: 0.3, Z: 1.4}),
		spatialmath.Compose(spatialmath.ExpMap(spatialmath.Twist{0, 0, 0, 0.1, 0, 0}), reference[1]),
	}

	errs, err := ComparePoses(estimated, reference)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(errs), test.ShouldEqual, 2)
	test.That(t, errs[0].Translation, test.ShouldAlmostEqual, 0.5, 1e-12)
	test.That(t, errs[0].Rotation, test.ShouldAlmostEqual, 0, 1e-12)
	test.That(t, errs[1].Rotation, test.ShouldAlmostEqual, 0.1, 1e-9)

	same, err := ComparePoses(reference, reference)
	test.That(t, err, test.ShouldBeNil)
	for _, pe := range same {
		test.That(t, pe.Translation, test.ShouldEqual, 0.)
		test.That(t, math.Abs(pe.Rotation), test.ShouldBeLessThan, 1e-7)
	}

	_, err = ComparePoses(estimated[:1], reference)
	test.That(t, errors.Is(err, ErrDimensionMismatch), test.ShouldBeTrue)
}

func TestPoseTable(t *testing.T) {
	twists := []spatialmath.Twist{{0.1, 0.2, 1, 0, 0, 0.3}, {0, 0, 2, 0.1, 0, 0}}
	plain := PoseTable(twists, nil)
	test.That(t, plain, test.ShouldContainSubstring, "TRANSLATION")
	test.That(t, plain, test.ShouldContainSubstring, "(0.1000, 0.2000, 1.0000)")
	test.That(t, plain, test.ShouldContainSubstring, "(0.1000, 0.0000, 0.0000)")
	test.That(t, plain, test.ShouldNotContainSubstring, "ERROR")

	withErrors := PoseTable(twists, []PoseError{{Translation: 0.5}, {Rotation: 0.25}})
	test.That(t, withErrors, test.ShouldContainSubstring, "ROTATION ERROR (RAD)")
	test.That(t, withErrors, test.ShouldContainSubstring, "0.25")
	test.That(t, strings.Count(withErrors, "\n"), test.ShouldEqual, strings.Count(plain, "\n"))
}

package calibration

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/multierr"
	"go.viam.com/test"

	"go.viam.com/calib/spatialmath"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	test.That(t, cfg.Validate(), test.ShouldBeNil)
	test.That(t, cfg.InitialPose, test.ShouldResemble, spatialmath.Twist{0, 0, 3, 0, 0, 0})
	test.That(t, cfg.InitialIntrinsics.Vector(), test.ShouldResemble, []float64{550, 550, 320, 240})
	test.That(t, cfg.NumImages, test.ShouldEqual, 3)
}

func TestReadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "calibration.json")
	contents := `{
  "solver": {"max_iterations": 50, "strict_acceptance": true},
  "initial_pose": [0, 0, 2, 0, 0, 0],
  "num_images": 0
}`
	test.That(t, os.WriteFile(path, []byte(contents), 0o600), test.ShouldBeNil)

	cfg, err := ReadConfig(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Solver.MaxIterations, test.ShouldEqual, 50)
	test.That(t, cfg.Solver.StrictAcceptance, test.ShouldBeTrue)
	test.That(t, cfg.Solver.Tolerance, test.ShouldEqual, 1e-8)
	test.That(t, cfg.InitialPose, test.ShouldResemble, spatialmath.Twist{0, 0, 2, 0, 0, 0})
	test.That(t, cfg.NumImages, test.ShouldEqual, 0)
	test.That(t, cfg.InitialIntrinsics.Fx, test.ShouldEqual, 550.)

	bad := filepath.Join(dir, "bad.json")
	test.That(t, os.WriteFile(bad, []byte(`{"solver": {"damping_growth": 1}, "num_images": -1,
		"initial_intrinsics": {"fx": 0, "fy": 500}}`), 0o600), test.ShouldBeNil)
	_, err = ReadConfig(bad)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, len(multierr.Errors(err)), test.ShouldEqual, 3)

	_, err = ReadConfig(filepath.Join(dir, "missing.json"))
	test.That(t, err, test.ShouldNotBeNil)
}

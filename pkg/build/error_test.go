package build_test

import (
	"testing"

	"github.com/censor-ci/censor/pkg/build"
	"github.com/censor-ci/censor/pkg/types"
)

func TestReportError(t *testing.T) {
	rec, _ := build.New(nil)

	rec.ReportError("php_mess_detector", "Avoid unused variables", types.SeverityHigh, "src/a.php", 3, 4)
	rec.ReportError("php_mess_detector", "Long method", types.SeverityHigh, "src/b.php", 10, 80)
	rec.ReportError("shell", "failed", types.SeverityNormal, "", 0, 0)

	if rec.ErrorsTotal() != 3 {
		t.Errorf("errors_total = %d, want 3", rec.ErrorsTotal())
	}
	if got := len(rec.ErrorsFor("php_mess_detector")); got != 2 {
		t.Errorf("ErrorsFor = %d, want 2", got)
	}

	errs := rec.Errors()
	errs[0].Message = "mutated"
	if rec.Errors()[0].Message != "Avoid unused variables" {
		t.Error("Errors must return a copy")
	}
}

func TestComputeNewErrors(t *testing.T) {
	prev, _ := build.New(nil)
	prev.ReportError("lint", "a", types.SeverityLow, "x.go", 1, 1)
	prev.ReportError("lint", "b", types.SeverityLow, "x.go", 2, 2)

	cur, _ := build.New(nil)
	cur.ReportError("lint", "a", types.SeverityLow, "x.go", 1, 1)
	cur.ReportError("lint", "c", types.SeverityLow, "y.go", 5, 5)
	cur.ReportError("lint", "d", types.SeverityLow, "y.go", 6, 6)

	cur.ComputeNewErrors(prev)

	if cur.ErrorsTotal() != 3 {
		t.Errorf("errors_total = %d, want 3", cur.ErrorsTotal())
	}
	if cur.ErrorsTotalPrevious() != 2 {
		t.Errorf("errors_total_previous = %d, want 2", cur.ErrorsTotalPrevious())
	}
	if cur.ErrorsNew() != 2 {
		t.Errorf("errors_new = %d, want 2", cur.ErrorsNew())
	}
}

func TestComputeNewErrors_NoPrevious(t *testing.T) {
	cur, _ := build.New(nil)
	cur.ReportError("lint", "a", types.SeverityLow, "x.go", 1, 1)
	cur.ComputeNewErrors(nil)

	if cur.ErrorsNew() != 1 {
		t.Errorf("errors_new = %d, want 1", cur.ErrorsNew())
	}
	if v, _ := cur.Get("errors_total_previous"); v != nil {
		t.Errorf("errors_total_previous = %v, want nil", v)
	}
}

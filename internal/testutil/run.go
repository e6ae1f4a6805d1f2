package testutil

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/calvinalkan/recdb/pkg/recdb"
)

// RunConfig configures a behavior test run.
type RunConfig struct {
	// MaxOps is the maximum number of operations to execute.
	MaxOps int

	// CompareStateEveryN runs a full state comparison every N operations.
	// Set to 0 to check only at the end.
	CompareStateEveryN int
}

// DefaultRunConfig returns a balanced configuration for behavior tests.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		MaxOps:             100,
		CompareStateEveryN: 10,
	}
}

// RunBehaviorWithSeed executes the operations derived from seed against a
// fresh data file and the model, failing on the first divergence.
func RunBehaviorWithSeed(tb testing.TB, seed []byte, cfg RunConfig) {
	tb.Helper()

	if cfg.MaxOps <= 0 {
		tb.Fatalf("RunBehaviorWithSeed requires MaxOps > 0")
	}

	h := NewHarness(tb)
	gen := NewOpGenerator(seed, h.Model, h.Schema, DefaultOpGenConfig())
	history := make([]string, 0, cfg.MaxOps)

	for opIndex := 1; opIndex <= cfg.MaxOps && gen.HasMore(); opIndex++ {
		op := gen.NextOp()
		history = append(history, op.String())

		realRes := op.ApplyReal(h)
		modelRes := op.ApplyModel(h)

		if err := compareResults(op, modelRes, realRes); err != nil {
			tb.Fatalf("%v\n%s", err, FormatOps(history))
		}

		if cfg.CompareStateEveryN > 0 && opIndex%cfg.CompareStateEveryN == 0 {
			if err := CompareState(h); err != nil {
				tb.Fatalf("%v\n%s", err, FormatOps(history))
			}
		}
	}

	if err := CompareState(h); err != nil {
		tb.Fatalf("%v\n%s", err, FormatOps(history))
	}
}

func compareResults(op Op, modelRes, realRes Result) error {
	if (modelRes.Err == nil) != (realRes.Err == nil) {
		return fmt.Errorf("%s: model err=%v, real err=%v", op, modelRes.Err, realRes.Err)
	}

	if modelRes.Err != nil {
		if errorKind(modelRes.Err) != errorKind(realRes.Err) {
			return fmt.Errorf("%s: model err=%v, real err=%v", op, modelRes.Err, realRes.Err)
		}

		return nil
	}

	if modelRes.Value == nil || realRes.Value == nil {
		return nil
	}

	if diff := cmp.Diff(modelRes.Value, realRes.Value); diff != "" {
		return fmt.Errorf("%s: result mismatch (-model +real):\n%s", op, diff)
	}

	return nil
}

// CompareState checks every slot of the file against the model and the
// file size against the slot count.
func CompareState(h *Harness) error {
	info, err := os.Stat(h.Path)
	if err != nil {
		return fmt.Errorf("stat data file: %w", err)
	}

	wantSize := h.Schema.RowOffset + h.Model.Rows()*h.Schema.RecordLength()
	if info.Size() != wantSize {
		return fmt.Errorf("file size %d, model implies %d", info.Size(), wantSize)
	}

	for row := range h.Model.Rows() {
		want, wantErr := h.Model.Read(row)
		got, gotErr := h.DB.Read(row)

		if wantErr != nil {
			if !errors.Is(gotErr, recdb.ErrRecordNotFound) {
				return fmt.Errorf("row %d: deleted in model, real read err=%v", row, gotErr)
			}

			continue
		}

		if gotErr != nil {
			return fmt.Errorf("row %d: live in model, real read err=%w", row, gotErr)
		}

		if diff := cmp.Diff(want, got); diff != "" {
			return fmt.Errorf("row %d mismatch (-model +real):\n%s", row, diff)
		}
	}

	return nil
}

// FormatOps renders an operation history for failure messages.
func FormatOps(history []string) string {
	var b strings.Builder

	b.WriteString("operations:\n")

	for i, op := range history {
		fmt.Fprintf(&b, "  %3d: %s\n", i+1, op)
	}

	return b.String()
}

package orchestrator

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/grapheneaffiliate/plogic-core/internal/evaluation"
)

// TruthTableResult carries the parsed table and the CSV it was read from.
type TruthTableResult struct {
	RunID     string              `json:"run_id"`
	Timestamp time.Time           `json:"timestamp"`
	Path      string              `json:"path"`
	Rows      []map[string]string `json:"rows"`
}

// TruthTable sweeps the control inputs and returns the simulator's truth
// table. With an empty outCSV the table lands in a temp file whose path is
// still reported, so callers can fetch the artifact later.
func (o *Orchestrator) TruthTable(ctx context.Context, ctrl []float64, outCSV string) (*TruthTableResult, error) {
	if len(ctrl) == 0 {
		return nil, fmt.Errorf("%w: at least one ctrl value is required", evaluation.ErrInvalidArgument)
	}

	path := outCSV
	if path == "" {
		f, err := os.CreateTemp("", "plogic_truth_*.csv")
		if err != nil {
			return nil, fmt.Errorf("create truth table output: %w", err)
		}
		path = f.Name()
		f.Close()
	}

	args := []string{"truth-table"}
	for _, v := range ctrl {
		args = append(args, "--ctrl", strconv.FormatFloat(v, 'g', -1, 64))
	}
	args = append(args, "--out", path)

	ctx, cancel := context.WithTimeout(ctx, o.cfg.TruthTableTimeout())
	defer cancel()

	out, err := o.runner.Run(ctx, args)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: truth table exceeded %s", evaluation.ErrTimeout, o.cfg.TruthTableTimeout())
		}
		return nil, err
	}
	if out.ExitCode != 0 {
		stderr := strings.TrimSpace(out.Stderr)
		if stderr == "" {
			stderr = "plogic truth-table failed"
		}
		return nil, &evaluation.SimulationError{Stderr: stderr}
	}

	rows, err := readCSVRows(path)
	if err != nil {
		return nil, fmt.Errorf("read truth table: %w", err)
	}
	return &TruthTableResult{
		RunID:     uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Path:      path,
		Rows:      rows,
	}, nil
}

// readCSVRows maps each data row onto the header. Short rows keep only the
// columns they have.
func readCSVRows(path string) ([]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return []map[string]string{}, nil
	}

	header := records[0]
	rows := make([]map[string]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// plogicd exposes the photonic-logic evaluation operations on the command
// line: one-shot cascade runs, batch sweeps, parameter optimization and the
// simulator health and capability probes. All results print as JSON.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/grapheneaffiliate/plogic-core/internal/evaluation"
	"github.com/grapheneaffiliate/plogic-core/internal/optimize"
	"github.com/grapheneaffiliate/plogic-core/internal/orchestrator"
	"github.com/grapheneaffiliate/plogic-core/pkg/config"
	"github.com/grapheneaffiliate/plogic-core/pkg/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "plogicd",
		Short:         "Cached evaluation and optimization for the photonic logic simulator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML configuration")

	root.AddCommand(
		newCascadeCmd(&configPath),
		newCharacterizeCmd(&configPath),
		newTruthTableCmd(&configPath),
		newSweepCmd(&configPath),
		newOptimizeCmd(&configPath),
		newHealthCmd(&configPath),
		newSchemaCmd(&configPath),
	)
	return root
}

// withOrchestrator loads config, wires the stack and runs fn with a context
// that ends on SIGINT/SIGTERM.
func withOrchestrator(configPath string, fn func(ctx context.Context, orc *orchestrator.Orchestrator) (any, error)) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger.SetDefault(logger.New(cfg.LogLevel, os.Stderr))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	orc, err := orchestrator.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer orc.Close()

	payload, err := fn(ctx, orc)
	if err != nil {
		return err
	}
	return printJSON(payload)
}

func printJSON(payload any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

func newCascadeCmd(configPath *string) *cobra.Command {
	var (
		threshold string
		beta      float64
		xpmMode   string
		n2        float64
		aEff      float64
		nEff      float64
		gGeom     float64
		extra     []string
	)
	cmd := &cobra.Command{
		Use:   "cascade",
		Short: "Evaluate one cascade configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withOrchestrator(*configPath, func(ctx context.Context, orc *orchestrator.Orchestrator) (any, error) {
				p := evaluation.DefaultParams()
				p.Threshold = evaluation.Threshold(threshold)
				p.Beta = beta
				p.XPMMode = evaluation.XPMMode(xpmMode)
				p.Extra = extra
				if cmd.Flags().Changed("n2") {
					p.N2 = &n2
				}
				if cmd.Flags().Changed("a-eff") {
					p.AEff = &aEff
				}
				if cmd.Flags().Changed("n-eff") {
					p.NEff = &nEff
				}
				if cmd.Flags().Changed("g-geom") {
					p.GGeom = &gGeom
				}
				return orc.Cascade(ctx, p)
			})
		},
	}
	cmd.Flags().StringVar(&threshold, "threshold", "soft", "threshold model (hard|soft)")
	cmd.Flags().Float64Var(&beta, "beta", 30.0, "soft threshold steepness")
	cmd.Flags().StringVar(&xpmMode, "xpm-mode", "physics", "cross-phase modulation model (linear|physics)")
	cmd.Flags().Float64Var(&n2, "n2", 0, "nonlinear index n2")
	cmd.Flags().Float64Var(&aEff, "a-eff", 0, "effective mode area")
	cmd.Flags().Float64Var(&nEff, "n-eff", 0, "effective refractive index")
	cmd.Flags().Float64Var(&gGeom, "g-geom", 0, "geometric factor")
	cmd.Flags().StringSliceVar(&extra, "extra", nil, "extra --flag[=value] arguments for the simulator")
	return cmd
}

func newCharacterizeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "characterize",
		Short: "Report the simulator's device characterization",
		RunE: func(_ *cobra.Command, _ []string) error {
			return withOrchestrator(*configPath, func(ctx context.Context, orc *orchestrator.Orchestrator) (any, error) {
				return orc.Characterize(ctx)
			})
		},
	}
}

func newTruthTableCmd(configPath *string) *cobra.Command {
	var (
		ctrl []float64
		out  string
	)
	cmd := &cobra.Command{
		Use:   "truth-table",
		Short: "Sweep control inputs and print the logic truth table",
		RunE: func(_ *cobra.Command, _ []string) error {
			return withOrchestrator(*configPath, func(ctx context.Context, orc *orchestrator.Orchestrator) (any, error) {
				return orc.TruthTable(ctx, ctrl, out)
			})
		},
	}
	cmd.Flags().Float64SliceVar(&ctrl, "ctrl", nil, "control input values")
	cmd.Flags().StringVar(&out, "out", "", "CSV output path (temp file when empty)")
	return cmd
}

func newSweepCmd(configPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Evaluate a batch of configurations from a JSON file",
		Long: `Evaluate a batch of configurations in parallel.

The input is a JSON array of cascade configurations, read from --file or
from stdin when --file is "-". Omitted fields take the cascade defaults.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			configs, err := readSweepConfigs(file)
			if err != nil {
				return err
			}
			return withOrchestrator(*configPath, func(ctx context.Context, orc *orchestrator.Orchestrator) (any, error) {
				return orc.Sweep(ctx, configs)
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "-", "JSON file with the configuration array, - for stdin")
	return cmd
}

func readSweepConfigs(file string) ([]evaluation.Params, error) {
	var data []byte
	var err error
	if file == "-" || file == "" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return nil, fmt.Errorf("read sweep input: %w", err)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("sweep input must be a JSON array: %w", err)
	}
	configs := make([]evaluation.Params, len(raw))
	for i, r := range raw {
		p := evaluation.DefaultParams()
		if err := json.Unmarshal(r, &p); err != nil {
			return nil, fmt.Errorf("sweep config %d: %w", i, err)
		}
		configs[i] = p
	}
	return configs, nil
}

func newOptimizeCmd(configPath *string) *cobra.Command {
	var (
		nCalls       int
		threshold    string
		xpmMode      string
		marginWeight float64
		randomStarts int
		boundsJSON   string
		fixedJSON    string
	)
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Search the physics parameter space for the lowest objective",
		RunE: func(_ *cobra.Command, _ []string) error {
			req := optimize.Request{
				NCalls:                nCalls,
				Threshold:             evaluation.Threshold(threshold),
				XPMMode:               evaluation.XPMMode(xpmMode),
				ObjectiveMarginWeight: marginWeight,
				RandomStarts:          randomStarts,
			}
			if boundsJSON != "" {
				if err := json.Unmarshal([]byte(boundsJSON), &req.SpaceBounds); err != nil {
					return fmt.Errorf("parse --space-bounds: %w", err)
				}
			}
			if fixedJSON != "" {
				if err := json.Unmarshal([]byte(fixedJSON), &req.FixedParams); err != nil {
					return fmt.Errorf("parse --fixed-params: %w", err)
				}
			}
			return withOrchestrator(*configPath, func(ctx context.Context, orc *orchestrator.Orchestrator) (any, error) {
				return orc.Optimize(ctx, req)
			})
		},
	}
	cmd.Flags().IntVar(&nCalls, "n-calls", 25, "objective evaluation budget")
	cmd.Flags().StringVar(&threshold, "threshold", "soft", "threshold model held fixed")
	cmd.Flags().StringVar(&xpmMode, "xpm-mode", "physics", "cross-phase modulation model held fixed")
	cmd.Flags().Float64Var(&marginWeight, "margin-weight", 0, "logic margin weight in the objective (default 0.1)")
	cmd.Flags().IntVar(&randomStarts, "random-starts", 0, "random probes before the model-guided phase (default 8)")
	cmd.Flags().StringVar(&boundsJSON, "space-bounds", "", `per-dimension bounds as JSON, e.g. {"beta":[20,40]}`)
	cmd.Flags().StringVar(&fixedJSON, "fixed-params", "", `pinned parameters as JSON, e.g. {"n_eff":2.0}`)
	return cmd
}

func newHealthCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probe the simulator CLI",
		RunE: func(_ *cobra.Command, _ []string) error {
			return withOrchestrator(*configPath, func(ctx context.Context, orc *orchestrator.Orchestrator) (any, error) {
				return orc.Health(ctx), nil
			})
		},
	}
}

func newSchemaCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Describe the configured instance and its operations",
		RunE: func(_ *cobra.Command, _ []string) error {
			return withOrchestrator(*configPath, func(ctx context.Context, orc *orchestrator.Orchestrator) (any, error) {
				return orc.Schema(), nil
			})
		},
	}
}

package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/grapheneaffiliate/plogic-core/internal/evaluation"
	"github.com/grapheneaffiliate/plogic-core/internal/optimize"
	"github.com/grapheneaffiliate/plogic-core/internal/registry"
)

// decode maps loosely-typed call arguments onto a typed request. Fields the
// caller omits keep whatever defaults into already carries.
func decode(args map[string]any, into any) error {
	if len(args) == 0 {
		return nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("%w: %v", evaluation.ErrInvalidArgument, err)
	}
	if err := json.Unmarshal(data, into); err != nil {
		return fmt.Errorf("%w: %v", evaluation.ErrInvalidArgument, err)
	}
	return nil
}

func objectSchema(props map[string]any, required ...string) map[string]any {
	schema := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

var paramProperties = map[string]any{
	"threshold": map[string]any{"type": "string", "enum": []string{"hard", "soft"}},
	"beta":      map[string]any{"type": "number", "exclusiveMinimum": 0},
	"xpm_mode":  map[string]any{"type": "string", "enum": []string{"linear", "physics"}},
	"n2":        map[string]any{"type": "number"},
	"a_eff":     map[string]any{"type": "number"},
	"n_eff":     map[string]any{"type": "number"},
	"g_geom":    map[string]any{"type": "number"},
	"extra":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
}

// registerOperations publishes every operation with its descriptor. The
// catalog is what transports advertise, so names and parameters here are the
// public contract.
func (o *Orchestrator) registerOperations() error {
	ops := []struct {
		spec    registry.Spec
		handler registry.Handler
	}{
		{
			spec: registry.Spec{
				Name:        "cascade",
				Description: "Evaluate one photonic logic cascade configuration.",
				Parameters:  objectSchema(paramProperties),
			},
			handler: func(ctx context.Context, args map[string]any) (any, error) {
				p := evaluation.DefaultParams()
				if err := decode(args, &p); err != nil {
					return nil, err
				}
				return o.Cascade(ctx, p)
			},
		},
		{
			spec: registry.Spec{
				Name:        "characterize",
				Description: "Report the simulator's device characterization.",
				Parameters:  objectSchema(map[string]any{}),
			},
			handler: func(ctx context.Context, _ map[string]any) (any, error) {
				return o.Characterize(ctx)
			},
		},
		{
			spec: registry.Spec{
				Name:        "truth_table",
				Description: "Sweep control inputs and return the logic truth table.",
				Parameters: objectSchema(map[string]any{
					"ctrl":    map[string]any{"type": "array", "items": map[string]any{"type": "number"}},
					"out_csv": map[string]any{"type": "string"},
				}, "ctrl"),
			},
			handler: func(ctx context.Context, args map[string]any) (any, error) {
				var req struct {
					Ctrl   []float64 `json:"ctrl"`
					OutCSV string    `json:"out_csv"`
				}
				if err := decode(args, &req); err != nil {
					return nil, err
				}
				return o.TruthTable(ctx, req.Ctrl, req.OutCSV)
			},
		},
		{
			spec: registry.Spec{
				Name:        "sweep",
				Description: "Evaluate a batch of cascade configurations in parallel.",
				Parameters: objectSchema(map[string]any{
					"configs": map[string]any{"type": "array", "items": objectSchema(paramProperties)},
				}, "configs"),
			},
			handler: func(ctx context.Context, args map[string]any) (any, error) {
				var req struct {
					Configs []json.RawMessage `json:"configs"`
				}
				if err := decode(args, &req); err != nil {
					return nil, err
				}
				configs := make([]evaluation.Params, len(req.Configs))
				for i, raw := range req.Configs {
					p := evaluation.DefaultParams()
					if err := json.Unmarshal(raw, &p); err != nil {
						return nil, fmt.Errorf("%w: config %d: %v", evaluation.ErrInvalidArgument, i, err)
					}
					configs[i] = p
				}
				return o.Sweep(ctx, configs)
			},
		},
		{
			spec: registry.Spec{
				Name:        "bo_run",
				Description: "Search the physics parameter space for the lowest objective.",
				Parameters: objectSchema(map[string]any{
					"n_calls":   map[string]any{"type": "integer", "minimum": 1},
					"threshold": paramProperties["threshold"],
					"xpm_mode":  paramProperties["xpm_mode"],
					"space_bounds": map[string]any{
						"type": "object",
						"additionalProperties": map[string]any{
							"type": "array", "items": map[string]any{"type": "number"},
						},
					},
					"fixed_params": map[string]any{
						"type":                 "object",
						"additionalProperties": map[string]any{"type": "number"},
					},
					"objective_margin_weight": map[string]any{"type": "number"},
					"random_starts":           map[string]any{"type": "integer", "minimum": 1},
				}, "n_calls"),
			},
			handler: func(ctx context.Context, args map[string]any) (any, error) {
				var req optimize.Request
				if err := decode(args, &req); err != nil {
					return nil, err
				}
				return o.Optimize(ctx, req)
			},
		},
		{
			spec: registry.Spec{
				Name:        "health",
				Description: "Probe the simulator CLI.",
				Parameters:  objectSchema(map[string]any{}),
			},
			handler: func(ctx context.Context, _ map[string]any) (any, error) {
				return o.Health(ctx), nil
			},
		},
		{
			spec: registry.Spec{
				Name:        "schema",
				Description: "Describe the running instance and its operations.",
				Parameters:  objectSchema(map[string]any{}),
			},
			handler: func(ctx context.Context, _ map[string]any) (any, error) {
				return o.Schema(), nil
			},
		},
	}

	for _, op := range ops {
		if err := o.reg.Register(op.spec, op.handler); err != nil {
			return err
		}
	}
	return nil
}

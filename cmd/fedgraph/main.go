package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	stdlog "log"
	"os"

	"github.com/go-logr/stdr"
	"github.com/goccy/go-yaml"
	"github.com/hashicorp/go-multierror"
	"github.com/urfave/cli/v2"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vvakame/fedgraph/internal/gqlfun"
	"github.com/vvakame/fedgraph/internal/log"
	"github.com/vvakame/fedgraph/internal/plan"
	"github.com/vvakame/fedgraph/internal/planner"
	"github.com/vvakame/fedgraph/internal/satisfiability"
	"github.com/vvakame/fedgraph/internal/supergraph"
	"golang.org/x/xerrors"
)

const (
	exitLoadFailure     = 1
	exitPlanningFailure = 2
)

// Config is the file given by --config. Flags take precedence over it.
type Config struct {
	ErrorLimit     int  `yaml:"errorLimit"`
	PrintSubgraphs bool `yaml:"printSubgraphs"`
	PrintAPISchema bool `yaml:"printAPISchema"`
}

func main() {
	err := newApp().Run(os.Args)
	if err != nil {
		stdlog.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:      "fedgraph",
		Usage:     "validate a federated supergraph and plan operations against it",
		UsageText: "fedgraph --schema supergraph.graphqls [--query operation.graphql]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "schema",
				Usage:    "supergraph SDL `FILE`",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "query",
				Usage: "operation `FILE` to plan",
			},
			&cli.StringFlag{
				Name:  "operation-name",
				Usage: "operation to plan when the query document has more than one",
			},
			&cli.StringFlag{
				Name:  "variables",
				Usage: "variable values of the operation, as a JSON or YAML object",
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "YAML config `FILE`",
			},
			&cli.IntFlag{
				Name:  "error-limit",
				Usage: "stop the satisfiability check after `N` errors, 0 means no limit",
			},
			&cli.BoolFlag{
				Name:  "print-subgraphs",
				Usage: "print the SDL of every extracted subgraph",
			},
			&cli.BoolFlag{
				Name:  "print-api-schema",
				Usage: "print the API schema of the supergraph",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "log per type and per edge detail",
			},
		},
		Action: realMain,
	}
}

func realMain(cCtx *cli.Context) error {
	ctx := cCtx.Context
	if ctx == nil {
		ctx = context.Background()
	}

	logger := stdr.New(stdlog.New(cCtx.App.ErrWriter, "", stdlog.LstdFlags))
	if cCtx.Bool("verbose") {
		stdr.SetVerbosity(1)
	}
	ctx = log.WithLogger(ctx, logger)

	cfg, err := loadConfig(cCtx)
	if err != nil {
		logger.Error(err, "failed to load config")
		return cli.Exit(err.Error(), exitLoadFailure)
	}

	schemaPath := cCtx.String("schema")
	b, err := os.ReadFile(schemaPath)
	if err != nil {
		err = xerrors.Errorf("failed to read schema %s: %w", schemaPath, err)
		logger.Error(err, "failed to load supergraph")
		return cli.Exit(err.Error(), exitLoadFailure)
	}

	sg, err := supergraph.Load(ctx, schemaPath, string(b))
	if err != nil {
		printErrors(cCtx.App.ErrWriter, err)
		return cli.Exit("failed to load supergraph", exitLoadFailure)
	}

	result, err := satisfiability.Validate(ctx, sg, &satisfiability.Options{ErrorLimit: cfg.ErrorLimit})
	if err != nil {
		printErrors(cCtx.App.ErrWriter, err)
		return cli.Exit("failed to extract subgraphs", exitLoadFailure)
	}
	for _, hint := range result.Hints {
		fmt.Fprintf(cCtx.App.ErrWriter, "hint: %s\n", hint.Error())
	}
	if err := result.Err(); err != nil {
		printErrors(cCtx.App.ErrWriter, err)
		return cli.Exit(fmt.Sprintf("supergraph is not satisfiable: %d error(s)", len(result.Errors)), exitLoadFailure)
	}

	w := cCtx.App.Writer
	if cfg.PrintSubgraphs {
		for _, subgraph := range result.Subgraphs.List() {
			fmt.Fprintf(w, "# subgraph: %s\n%s\n", subgraph.Name, subgraph.Schema.Source)
		}
	}
	if cfg.PrintAPISchema {
		fmt.Fprintf(w, "# api schema\n%s\n", result.API.Source)
	}

	queryPath := cCtx.String("query")
	if queryPath == "" {
		logger.Info("supergraph is satisfiable", "subgraphs", result.Subgraphs.Len())
		return nil
	}

	qp, err := planQuery(ctx, cCtx, result, queryPath)
	if err != nil {
		printErrors(cCtx.App.ErrWriter, err)
		return cli.Exit("failed to plan the operation", exitPlanningFailure)
	}
	fmt.Fprint(w, plan.Format(qp))

	return nil
}

func loadConfig(cCtx *cli.Context) (*Config, error) {
	cfg := &Config{}
	if path := cCtx.String("config"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, xerrors.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, xerrors.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if cCtx.IsSet("error-limit") {
		cfg.ErrorLimit = cCtx.Int("error-limit")
	}
	if cCtx.IsSet("print-subgraphs") {
		cfg.PrintSubgraphs = cCtx.Bool("print-subgraphs")
	}
	if cCtx.IsSet("print-api-schema") {
		cfg.PrintAPISchema = cCtx.Bool("print-api-schema")
	}
	if cfg.ErrorLimit < 0 {
		return nil, xerrors.Errorf("error limit must not be negative: %d", cfg.ErrorLimit)
	}

	return cfg, nil
}

func planQuery(ctx context.Context, cCtx *cli.Context, result *satisfiability.Result, queryPath string) (*plan.QueryPlan, error) {
	b, err := os.ReadFile(queryPath)
	if err != nil {
		return nil, xerrors.Errorf("failed to read query %s: %w", queryPath, err)
	}

	var variables map[string]interface{}
	if raw := cCtx.String("variables"); raw != "" {
		if err := yaml.Unmarshal([]byte(raw), &variables); err != nil {
			return nil, xerrors.Errorf("failed to parse variables: %w", err)
		}
	}

	opctx, gErrs := gqlfun.CreateOperationContext(ctx, result.API.AST, queryPath, string(b), cCtx.String("operation-name"), variables)
	if len(gErrs) != 0 {
		return nil, gErrs
	}

	return planner.Plan(ctx, result.Graph, opctx)
}

// printErrors writes one line per GraphQL error folded into err.
func printErrors(w io.Writer, err error) {
	var list gqlerror.List
	var merr *multierror.Error
	switch {
	case errors.As(err, &list):
	case errors.As(err, &merr):
		for _, e := range merr.Errors {
			printErrors(w, e)
		}
		return
	default:
		fmt.Fprintln(w, err.Error())
		return
	}
	for _, gErr := range list {
		fmt.Fprintln(w, gErr.Error())
	}
}

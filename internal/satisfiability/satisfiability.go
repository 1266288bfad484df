package satisfiability

import (
	"context"

	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vvakame/fedgraph/internal/federation"
	"github.com/vvakame/fedgraph/internal/log"
	"github.com/vvakame/fedgraph/internal/querygraph"
	"github.com/vvakame/fedgraph/internal/supergraph"
)

const (
	CodeUnreachableField            = "UNREACHABLE_FIELD"
	CodeKeyNotSatisfiable           = "KEY_NOT_SATISFIABLE"
	CodeExternalFieldUnresolved     = "EXTERNAL_FIELD_UNRESOLVED"
	CodeAbstractTypeRuntimeMismatch = "ABSTRACT_TYPE_RUNTIME_MISMATCH"
)

type Options struct {
	// ErrorLimit stops the traversal once that many errors are found. 0 means no limit.
	ErrorLimit int
}

type Result struct {
	Subgraphs *federation.Subgraphs
	API       *federation.Schema
	Graph     *querygraph.Graph

	// Errors are in discovery order.
	Errors gqlerror.List
	// Hints hold the extraction hints followed by the traversal ones.
	Hints gqlerror.List
}

// Err folds Errors into one error, nil when the supergraph is satisfiable.
func (r *Result) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	return federation.JoinErrors(r.Errors)
}

// Validate checks that every query the supergraph API accepts can be answered by the subgraphs
// extracted from it. Extraction failures are returned as error, unsatisfiable queries
// land in Result.Errors.
func Validate(ctx context.Context, sg *supergraph.Supergraph, opts *Options) (*Result, error) {
	if opts == nil {
		opts = &Options{}
	}
	ctx = log.WithName(ctx, "satisfiability")
	logger := log.FromContext(ctx)

	extracted, err := supergraph.Extract(ctx, sg, nil)
	if err != nil {
		return nil, err
	}
	if err := extracted.Err(); err != nil {
		return nil, err
	}

	api, err := supergraph.APISchema(ctx, sg)
	if err != nil {
		return nil, err
	}

	g, err := querygraph.Build(ctx, api, extracted.Subgraphs)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Subgraphs: extracted.Subgraphs,
		API:       api,
		Graph:     g,
		Hints:     append(gqlerror.List(nil), extracted.Hints...),
	}

	v := newTraverser(NewValidationContext(sg), g, opts)
	v.run(ctx)

	result.Errors = v.errs
	result.Hints = append(result.Hints, v.hints...)

	logger.Info("satisfiability validated", "errors", len(result.Errors), "hints", len(result.Hints))

	return result, nil
}

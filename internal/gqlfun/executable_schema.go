package gqlfun

import (
	"context"
	"errors"

	"github.com/99designs/gqlgen/graphql"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/parser"
	"github.com/vektah/gqlparser/v2/validator"
	_ "github.com/vektah/gqlparser/v2/validator/rules"
	"github.com/vvakame/fedgraph/internal/log"
)

// CreateOperationContext parses query as sourceName and validates it against schema.
// operationName picks the operation of a document with more than one.
func CreateOperationContext(ctx context.Context, schema *ast.Schema, sourceName, query, operationName string, variables map[string]interface{}) (*graphql.OperationContext, gqlerror.List) {
	logger := log.FromContext(ctx)

	queryDoc, parseErr := parser.ParseQuery(&ast.Source{
		Name:    sourceName,
		Input:   query,
		BuiltIn: false,
	})
	if parseErr != nil {
		return nil, gqlerror.List{toGQLError(parseErr)}
	}
	gErrs := validator.Validate(schema, queryDoc)
	if len(gErrs) != 0 {
		return nil, gErrs
	}

	operation, gErr := selectOperation(queryDoc, operationName)
	if gErr != nil {
		return nil, gqlerror.List{gErr}
	}

	vars, varsErr := validator.VariableValues(schema, operation, variables)
	if varsErr != nil {
		return nil, gqlerror.List{toGQLError(varsErr)}
	}

	logger.V(1).Info("operation selected", "source", sourceName, "operation", operation.Name)

	oc := &graphql.OperationContext{
		RawQuery:             query,
		Variables:            vars,
		OperationName:        operationName,
		Doc:                  queryDoc,
		Operation:            operation,
		DisableIntrospection: false,
		RecoverFunc:          nil,
		ResolverMiddleware: func(ctx context.Context, next graphql.Resolver) (res interface{}, err error) {
			return next(ctx)
		},
		Stats: graphql.Stats{},
	}

	return oc, nil
}

func selectOperation(queryDoc *ast.QueryDocument, operationName string) (*ast.OperationDefinition, *gqlerror.Error) {
	if operationName == "" {
		if len(queryDoc.Operations) != 1 {
			return nil, gqlerror.Errorf("operation name is required when the document has %d operations", len(queryDoc.Operations))
		}
		return queryDoc.Operations[0], nil
	}

	operation := queryDoc.Operations.ForName(operationName)
	if operation == nil {
		return nil, gqlerror.Errorf("operation %s not found", operationName)
	}
	return operation, nil
}

func toGQLError(err error) *gqlerror.Error {
	var gErr *gqlerror.Error
	if errors.As(err, &gErr) {
		return gErr
	}
	return gqlerror.Errorf("%s", err.Error())
}

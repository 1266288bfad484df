package federation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

func logServiceAndType(serviceName, typeName, fieldName string) string {
	if fieldName != "" {
		fieldName = fmt.Sprintf(".%s", fieldName)
	}
	return fmt.Sprintf("[%s] %s%s ->", serviceName, typeName, fieldName)
}

// asErrors flattens err into a list of diagnostics.
func asErrors(err error) gqlerror.List {
	if err == nil {
		return nil
	}
	var merr *multierror.Error
	if errors.As(err, &merr) {
		var result gqlerror.List
		for _, err := range merr.Errors {
			result = append(result, asErrors(err)...)
		}
		return result
	}
	var gErrs gqlerror.List
	if errors.As(err, &gErrs) {
		return gErrs
	}
	var gErr *gqlerror.Error
	if errors.As(err, &gErr) {
		return gqlerror.List{gErr}
	}
	return gqlerror.List{gqlerror.WrapPath(nil, err)}
}

// AsErrors flattens err into a list of diagnostics. It sees through
// *multierror.Error values built by JoinErrors.
func AsErrors(err error) gqlerror.List {
	return asErrors(err)
}

// HumanReadableList renders values as `"A", "B" and "C"`.
func HumanReadableList(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, v := range values {
		quoted = append(quoted, fmt.Sprintf("%q", v))
	}
	switch len(quoted) {
	case 0:
		return ""
	case 1:
		return quoted[0]
	default:
		return strings.Join(quoted[:len(quoted)-1], ", ") + " and " + quoted[len(quoted)-1]
	}
}

// PrintSubgraphNames renders subgraph names for messages: `subgraph "A"` or `subgraphs "A" and "B"`.
func PrintSubgraphNames(names []string) string {
	if len(names) == 1 {
		return "subgraph " + HumanReadableList(names)
	}
	return "subgraphs " + HumanReadableList(names)
}

// JoinErrors folds errs into one error, nil when errs is empty.
func JoinErrors(errs ...error) error {
	var result *multierror.Error
	for _, err := range errs {
		for _, gErr := range asErrors(err) {
			result = multierror.Append(result, gErr)
		}
	}
	return result.ErrorOrNil()
}

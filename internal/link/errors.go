package link

import (
	"fmt"
	"sort"

	"github.com/agnivade/levenshtein"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

const (
	CodeInvalidLinkIdentifier     = "INVALID_LINK_IDENTIFIER"
	CodeUnknownSpec               = "UNKNOWN_SPEC"
	CodeUnsupportedVersion        = "UNSUPPORTED_VERSION"
	CodeUnknownImport             = "UNKNOWN_IMPORT"
	CodeImportConflict            = "IMPORT_CONFLICT"
	CodeInvalidLinkDirectiveUsage = "INVALID_LINK_DIRECTIVE_USAGE"
)

func newError(pos *ast.Position, code string, format string, args ...interface{}) *gqlerror.Error {
	var gErr *gqlerror.Error
	if pos == nil || pos.Src == nil {
		gErr = gqlerror.Errorf(format, args...)
	} else {
		gErr = gqlerror.ErrorPosf(pos, format, args...)
	}
	if gErr.Extensions == nil {
		gErr.Extensions = make(map[string]interface{})
	}
	gErr.Extensions["code"] = code
	return gErr
}

// suggestion returns ` Did you mean "x"?` for the closest candidate, or "".
func suggestion(input string, candidates []string) string {
	best := ""
	bestDistance := -1
	sorted := append([]string{}, candidates...)
	sort.Strings(sorted)
	for _, candidate := range sorted {
		distance := levenshtein.ComputeDistance(input, candidate)
		if distance > len(input)/2+1 {
			continue
		}
		if bestDistance == -1 || distance < bestDistance {
			best = candidate
			bestDistance = distance
		}
	}
	if best == "" {
		return ""
	}
	return fmt.Sprintf(" Did you mean %q?", best)
}

package testutils

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Fixtures carry their options as comment lines.
//
//	# schema: products.graphqls
//	# option:codes: UNREACHABLE_FIELD,KEY_NOT_SATISFIABLE
var schemaDirective = regexp.MustCompile(`(?m)^# schema:[ \t]*(\S+)$`)

func FindSchemaFileName(t TestingT, source string) string {
	t.Helper()

	ss := schemaDirective.FindStringSubmatch(source)
	if len(ss) != 2 {
		t.Fatal("schema file directive mismatch")
	}

	return ss[1]
}

func findOption(t TestingT, optionName, source string) (string, bool) {
	t.Helper()

	pattern := fmt.Sprintf(`(?m)^# option:%s:[ \t]*(\S*)[ \t]*$`, regexp.QuoteMeta(optionName))
	re, err := regexp.Compile(pattern)
	if err != nil {
		t.Fatal(err)
	}

	ss := re.FindStringSubmatch(source)
	if len(ss) != 2 {
		t.Logf("option %s value is not found", optionName)
		return "", false
	}

	return ss[1], true
}

func FindOptionString(t TestingT, optionName, source string) string {
	t.Helper()

	v, _ := findOption(t, optionName, source)
	return v
}

// FindOptionStrings splits a comma separated option. A missing or empty option is nil.
func FindOptionStrings(t TestingT, optionName, source string) []string {
	t.Helper()

	v, _ := findOption(t, optionName, source)
	if v == "" {
		return nil
	}
	return strings.Split(v, ",")
}

func FindOptionBool(t TestingT, optionName, source string) bool {
	t.Helper()

	v, _ := findOption(t, optionName, source)
	return v == "true"
}

func FindOptionInt(t TestingT, optionName, source string, defaultValue int) int {
	t.Helper()

	v, ok := findOption(t, optionName, source)
	if !ok || v == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		t.Fatalf("option %s: %s", optionName, err.Error())
	}
	return i
}

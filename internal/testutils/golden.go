package testutils

import (
	"os"
	"path"

	"github.com/pmezard/go-difflib/difflib"
)

// UpdateGoldenEnv names the environment variable that makes CheckGoldenFile
// write golden files instead of comparing against them.
const UpdateGoldenEnv = "UPDATE_GOLDEN"

// CheckGoldenFile compares actual with the file at expectFilePath.
// A missing golden file fails the test unless UpdateGoldenEnv is set,
// which writes actual as the new golden file.
func CheckGoldenFile(t TestingT, actual []byte, expectFilePath string) {
	t.Helper()

	if os.Getenv(UpdateGoldenEnv) != "" {
		if err := os.MkdirAll(path.Dir(expectFilePath), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(expectFilePath, actual, 0644); err != nil {
			t.Fatal(err)
		}
		t.Logf("golden file %s is written", expectFilePath)
		return
	}

	expect, err := os.ReadFile(expectFilePath)
	if os.IsNotExist(err) {
		t.Errorf("golden file %s is missing, run the test with %s=1 to create it", expectFilePath, UpdateGoldenEnv)
		return
	} else if err != nil {
		t.Error(err)
		return
	}

	if string(expect) == string(actual) {
		return
	}

	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(expect)),
		B:        difflib.SplitLines(string(actual)),
		FromFile: expectFilePath,
		ToFile:   "actual",
		Context:  5,
	}
	d, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		t.Fatal(err)
	}
	t.Errorf("%s mismatch\n%s", expectFilePath, d)
}

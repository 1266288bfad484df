package testutils

import (
	"fmt"
	"os"
	"path"
	"strings"
	"testing"
)

type recorder struct {
	testing.TB
	errors []string
}

func (r *recorder) Helper() {}

func (r *recorder) Logf(format string, args ...interface{}) {}

func (r *recorder) Error(args ...interface{}) {
	r.errors = append(r.errors, fmt.Sprint(args...))
}

func (r *recorder) Errorf(format string, args ...interface{}) {
	r.errors = append(r.errors, fmt.Sprintf(format, args...))
}

func TestCheckGoldenFile(t *testing.T) {
	dir := t.TempDir()
	golden := path.Join(dir, "expected", "case.txt")

	t.Run("missing golden file fails", func(t *testing.T) {
		r := &recorder{TB: t}
		CheckGoldenFile(r, []byte("a\n"), golden)
		if len(r.errors) != 1 || !strings.Contains(r.errors[0], UpdateGoldenEnv) {
			t.Errorf("unexpected errors: %v", r.errors)
		}
		if _, err := os.Stat(golden); !os.IsNotExist(err) {
			t.Errorf("golden file must not be written: %v", err)
		}
	})

	t.Run("update writes the golden file", func(t *testing.T) {
		t.Setenv(UpdateGoldenEnv, "1")

		r := &recorder{TB: t}
		CheckGoldenFile(r, []byte("a\n"), golden)
		if len(r.errors) != 0 {
			t.Errorf("unexpected errors: %v", r.errors)
		}
		b, err := os.ReadFile(golden)
		if err != nil {
			t.Fatal(err)
		}
		if string(b) != "a\n" {
			t.Errorf("unexpected golden file: %q", string(b))
		}
	})

	t.Run("match", func(t *testing.T) {
		r := &recorder{TB: t}
		CheckGoldenFile(r, []byte("a\n"), golden)
		if len(r.errors) != 0 {
			t.Errorf("unexpected errors: %v", r.errors)
		}
	})

	t.Run("mismatch shows a diff", func(t *testing.T) {
		r := &recorder{TB: t}
		CheckGoldenFile(r, []byte("b\n"), golden)
		if len(r.errors) != 1 || !strings.Contains(r.errors[0], "-a\n+b") {
			t.Errorf("unexpected errors: %v", r.errors)
		}
	})
}

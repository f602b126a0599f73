package testutil

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
)

var updateGolden = flag.Bool("update", false, "rewrite testdata/*.golden with the current output")

// GoldenString compares rendered output with testdata/<name>.golden.
// Run the tests with -update to rewrite the file instead.
func GoldenString(t *testing.T, name, got string) {
	t.Helper()
	path := filepath.Join("testdata", name+".golden")

	if *updateGolden {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("create testdata: %v", err)
		}
		if err := os.WriteFile(path, []byte(got), 0644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
		return
	}

	want, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v (run with -update to create it)\ngot:\n%s", path, err, got)
	}
	if got != string(want) {
		t.Errorf("%s mismatch\nwant:\n%s\ngot:\n%s", name, want, got)
	}
}

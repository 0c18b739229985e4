// Package testutils provides test helpers shared by the registry packages.
package testutils

import (
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

var update = flag.Bool("update", false, "update golden files")

// UpdateEnabled reports whether golden files should be rewritten.
func UpdateEnabled() bool {
	return *update
}

// GoldenPath returns the golden path for the current test.
func GoldenPath(t *testing.T) string {
	t.Helper()

	path := filepath.Join("testdata", "golden")
	result := strings.ReplaceAll(t.Name(), "/", "_")
	if result != "" {
		path = filepath.Join(path, result)
	}

	return path
}

// LoadWithUpdateFromGolden loads the element from a plaintext golden file.
// It will update the file if the update flag is used prior to loading it.
func LoadWithUpdateFromGolden(t *testing.T, data string) string {
	t.Helper()

	goldenPath := GoldenPath(t)

	if UpdateEnabled() {
		t.Logf("updating golden file %s", goldenPath)
		err := os.MkdirAll(filepath.Dir(goldenPath), 0750)
		require.NoError(t, err, "Cannot create directory for updating golden files")
		err = os.WriteFile(goldenPath, []byte(data), 0600)
		require.NoError(t, err, "Cannot write golden file")
	}

	want, err := os.ReadFile(goldenPath)
	require.NoError(t, err, "Cannot load golden file")

	return string(want)
}

// LoadWithUpdateFromGoldenYAML loads the element from a YAML serialized golden
// file. It will update the file if the update flag is used prior to deserializing it.
func LoadWithUpdateFromGoldenYAML[E any](t *testing.T, got E) E {
	t.Helper()

	t.Logf("Golden file: %s", GoldenPath(t))

	if UpdateEnabled() {
		b, err := yaml.Marshal(got)
		require.NoError(t, err, "Cannot serialize provided object")
		LoadWithUpdateFromGolden(t, string(b))
	}

	var want E
	b, err := os.ReadFile(GoldenPath(t))
	require.NoError(t, err, "Cannot read golden file")
	err = yaml.Unmarshal(b, &want)
	require.NoError(t, err, "Cannot deserialize golden file")

	return want
}

// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.e43.eu/xdr2json/internal/logger"
)

const pointCatalog = `
types:
  Point:
    struct:
      - x: int
      - y: int
  Label: string<8>
`

type result struct {
	stdout, stderr string
	err            error
}

// run executes the command line in a scratch directory holding the Point
// catalog. In args, @schema names the catalog and @dir the directory.
func run(t *testing.T, stdin string, args ...string) result {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "point.yaml"), []byte(pointCatalog), 0644))
	return execute(t, dir, stdin, args...)
}

func execute(t *testing.T, dir, stdin string, args ...string) result {
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Cleanup(func() { logger.SetLogger(nil) })

	expanded := make([]string, len(args))
	for i, arg := range args {
		arg = strings.ReplaceAll(arg, "@schema", filepath.Join(dir, "point.yaml"))
		expanded[i] = strings.ReplaceAll(arg, "@dir", dir)
	}

	var stdout, stderr bytes.Buffer
	root := NewRootCommand()
	root.SetArgs(expanded)
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	err := root.Execute()
	return result{stdout.String(), stderr.String(), err}
}

func TestDecode(t *testing.T) {
	testcases := []struct {
		Name   string
		Stdin  string
		Args   []string
		Expect string
	}{
		{
			Name:   "base64",
			Stdin:  "AAAAAwAAAAU=\n",
			Args:   []string{"decode", "-s", "@schema", "-t", "Point", "-e", "base64"},
			Expect: `{"x":3,"y":5}` + "\n",
		}, {
			Name:   "hex",
			Stdin:  " 00000003fffffffb ",
			Args:   []string{"decode", "-s", "@schema", "-t", "Point", "--encoding", "hex", "-"},
			Expect: `{"x":3,"y":-5}` + "\n",
		}, {
			Name:   "raw",
			Stdin:  "\x00\x00\x00\x02hi\x00\x00",
			Args:   []string{"decode", "--schema", "@schema", "--type", "Label"},
			Expect: `"hi"` + "\n",
		},
	}

	for _, tc := range testcases {
		t.Run(tc.Name, func(t *testing.T) {
			r := run(t, tc.Stdin, tc.Args...)
			require.NoError(t, r.err)
			assert.Equal(t, tc.Expect, r.stdout)
			assert.Empty(t, r.stderr)
		})
	}
}

func TestDecodeFiles(t *testing.T) {
	dir := t.TempDir()
	inputs := []string{"0000000100000002", "00", "0000000300000004"}
	var paths []string
	for i, in := range inputs {
		p := filepath.Join(dir, string(rune('a'+i))+".hex")
		require.NoError(t, os.WriteFile(p, []byte(in), 0644))
		paths = append(paths, p)
	}

	args := append([]string{"decode", "-s", "@schema", "-t", "Point", "-e", "hex", "--parallelism", "2"}, paths...)
	r := run(t, "", args...)
	require.Error(t, r.err)
	assert.Equal(t, "1 of 3 inputs failed to convert", r.err.Error())
	assert.Equal(t, `{"x":1,"y":2}`+"\n"+`{"x":3,"y":4}`+"\n", r.stdout)
	assert.Contains(t, r.stderr, paths[1]+": ")
}

func TestDecodeStrictness(t *testing.T) {
	args := []string{"decode", "-s", "@schema", "-t", "Point", "-e", "hex"}

	r := run(t, "000000010000000200", args...)
	require.NoError(t, r.err)
	assert.Equal(t, `{"x":1,"y":2}`+"\n", r.stdout)

	r = run(t, "000000010000000200", append(args, "--reject-trailing")...)
	assert.Error(t, r.err)
	assert.Empty(t, r.stdout)

	r = run(t, "00000001610000ff", "decode", "-s", "@schema", "-t", "Label", "-e", "hex", "--strict-padding")
	assert.Error(t, r.err)
}

func TestDecodeStdinRepeated(t *testing.T) {
	r := run(t, "0000000100000002", "decode", "-s", "@schema", "-t", "Point", "-e", "hex", "-", "-")
	require.NoError(t, r.err)
	assert.Equal(t, `{"x":1,"y":2}`+"\n"+`{"x":1,"y":2}`+"\n", r.stdout)
}

func TestDecodeMaxInputLen(t *testing.T) {
	args := []string{"decode", "-s", "@schema", "-t", "Point", "-e", "hex"}

	r := run(t, "0000000100000002", append(args, "--max-input-len", "4")...)
	require.Error(t, r.err)
	assert.Contains(t, r.stderr, "exceeds maximum of 4")

	r = run(t, "0000000100000002", append(args, "--max-input-len", "-1")...)
	require.NoError(t, r.err)
	assert.Equal(t, `{"x":1,"y":2}`+"\n", r.stdout)
}

func TestDecodeConfigFile(t *testing.T) {
	dir := t.TempDir()
	catalog := filepath.Join(dir, "point.yaml")
	require.NoError(t, os.WriteFile(catalog, []byte(pointCatalog), 0644))
	cfg := "decode:\n  reject_trailing: true\nschema:\n  files: ['" + catalog + "']\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "custom.yaml"), []byte(cfg), 0644))

	r := execute(t, dir, "0000000100000002", "decode", "--config", "@dir/custom.yaml", "-t", "Point", "-e", "hex")
	require.NoError(t, r.err)
	assert.Equal(t, `{"x":1,"y":2}`+"\n", r.stdout)

	r = execute(t, dir, "000000010000000200", "decode", "--config", "@dir/custom.yaml", "-t", "Point", "-e", "hex")
	assert.Error(t, r.err, "trailing bytes rejected by configuration")

	// Flags take precedence over the file
	r = execute(t, dir, "000000010000000200", "decode", "--config", "@dir/custom.yaml", "-t", "Point", "-e", "hex", "--reject-trailing=false")
	assert.NoError(t, r.err)

	// As does the environment
	t.Setenv("XDR2JSON_DECODE_REJECT_TRAILING", "false")
	r = execute(t, dir, "000000010000000200", "decode", "--config", "@dir/custom.yaml", "-t", "Point", "-e", "hex")
	assert.NoError(t, r.err)
}

func TestDecodeErrors(t *testing.T) {
	testcases := map[string][]string{
		"no type":      {"decode", "-s", "@schema"},
		"no schema":    {"decode", "-t", "Point"},
		"bad encoding": {"decode", "-s", "@schema", "-t", "Point", "-e", "base32"},
		"bad base64":   {"decode", "-s", "@schema", "-t", "Point", "-e", "base64"},
		"missing file": {"decode", "-s", "@schema", "-t", "Point", "@dir/missing.xdr"},
		"bad level":    {"decode", "-s", "@schema", "-t", "Point", "--log-level", "loud"},
		"unknown type": {"decode", "-s", "@schema", "-t", "Line"},
	}

	for name, args := range testcases {
		t.Run(name, func(t *testing.T) {
			r := run(t, "!!!", args...)
			assert.Error(t, r.err)
			assert.Empty(t, r.stdout)
		})
	}
}

func TestTypes(t *testing.T) {
	r := run(t, "", "types", "-s", "@schema")
	require.NoError(t, r.err)
	assert.Equal(t, "Label\nPoint\n", r.stdout)

	r = run(t, "", "types", "-s", "@schema", "--verbose")
	require.NoError(t, r.err)
	lines := strings.Split(strings.TrimSpace(r.stdout), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "Label = "))
	assert.True(t, strings.HasPrefix(lines[1], "Point = "))
}

func TestValidate(t *testing.T) {
	r := run(t, "", "validate", "-s", "@schema", "--log-level", "debug", "--log-format", "json")
	require.NoError(t, r.err)
	assert.Equal(t, "ok: 2 types\n", r.stdout)

	r = run(t, "", "validate")
	assert.Error(t, r.err)
}

func TestVersion(t *testing.T) {
	r := run(t, "", "version", "--config", "@dir/does-not-matter.yaml")
	require.NoError(t, r.err)
	assert.Equal(t, "xdr2json dev (commit: none, built: unknown)\n", r.stdout)
}

package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestExtractDeclarations(t *testing.T) {
	text := "\nHello\n## foo: abc\nThere\n## bar: 1\nHow are you?\n## bar: 2\n## bar:3\n"

	decls := extractDeclarations(text)

	got := map[string][]string{}
	for _, d := range decls {
		got[d.Key] = append(got[d.Key], d.Value)
	}

	assert.Equal(t, map[string][]string{
		"foo": {"abc"},
		"bar": {"1", "2", "3"},
	}, got)
}

func TestParseArgument(t *testing.T) {
	cases := []struct {
		spec string
		want Argument
	}{
		{"int", Argument{Type: "int"}},
		{"int    ", Argument{Type: "int"}},
		{"str Foobar", Argument{Type: "str", Description: strPtr("Foobar")}},
		{"str   Foo bar baz  ", Argument{Type: "str", Description: strPtr("Foo bar baz")}},
	}

	for _, c := range cases {
		got := parseArgument(c.spec)
		assert.Equal(t, c.want.Type, got.Type, c.spec)
		if c.want.Description == nil {
			assert.Nil(t, got.Description, c.spec)
		} else {
			require.NotNil(t, got.Description, c.spec)
			assert.Equal(t, *c.want.Description, *got.Description, c.spec)
		}
	}
}

func writeExecutable(t *testing.T, dir, name, contents string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o777))
}

func TestEnumerateScripts(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "not_executable.txt"), []byte("Not me!"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "not_a_file"), 0o777))

	writeExecutable(t, dir, "no_declarations.sh", "Nothing\nhere.")
	writeExecutable(t, dir, "no_extension", "Nothing\nhere.")
	writeExecutable(t, dir, "two.extensions.sh", "Nothing\nhere.")
	writeExecutable(t, dir, "with_declarations.sh", "\n"+
		"Foo\n"+
		"## name: With Declarations\n"+
		"## description: Has some declarations\n"+
		"## arg: str\n"+
		"## arg: int Arg description\n")

	scripts, err := Enumerate(dir)
	require.NoError(t, err)

	byBasename := map[string]Script{}
	for _, s := range scripts {
		byBasename[s.Basename] = s
	}

	assert.ElementsMatch(t, []string{
		"no_declarations.sh", "no_extension", "two.extensions.sh", "with_declarations.sh",
	}, keys(byBasename))

	assert.Equal(t, "no_declarations", byBasename["no_declarations.sh"].DisplayName)
	assert.Nil(t, byBasename["no_declarations.sh"].Description)
	assert.Empty(t, byBasename["no_declarations.sh"].Args)

	assert.Equal(t, "no_extension", byBasename["no_extension"].DisplayName)

	assert.Equal(t, "two.extensions", byBasename["two.extensions.sh"].DisplayName)

	wd := byBasename["with_declarations.sh"]
	assert.Equal(t, "With Declarations", wd.DisplayName)
	require.NotNil(t, wd.Description)
	assert.Equal(t, "Has some declarations", *wd.Description)
	require.Len(t, wd.Args, 2)
	assert.Equal(t, "str", wd.Args[0].Type)
	assert.Nil(t, wd.Args[0].Description)
	assert.Equal(t, "int", wd.Args[1].Type)
	require.NotNil(t, wd.Args[1].Description)
	assert.Equal(t, "Arg description", *wd.Args[1].Description)
}

func keys(m map[string]Script) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestLookupIdentityIsBasename(t *testing.T) {
	dir := t.TempDir()
	writeExecutable(t, dir, "foo.sh", "## name: Not The Basename\n")

	script, ok, err := Lookup(dir, "foo.sh")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Not The Basename", script.DisplayName)

	_, ok, err = Lookup(dir, "Not The Basename")
	require.NoError(t, err)
	assert.False(t, ok)
}

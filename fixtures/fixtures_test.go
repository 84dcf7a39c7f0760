package fixtures

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

func TestWriteAndReadPackageJSON(t *testing.T) {
	path := t.TempDir()
	d := &Dir{Path: path}
	pkg := ldvalue.ObjectBuild().
		Set("name", ldvalue.String("foo")).
		Set("dependencies", ldvalue.ObjectBuild().Set("basic-1", ldvalue.String("1.0.0")).Build()).
		Build()
	require.NoError(t, d.WritePackageJSON(pkg))
	assert.True(t, d.Exists("package.json"))

	v, err := d.ReadJSON("package.json")
	require.NoError(t, err)
	assert.True(t, pkg.Equal(v), "got %s", v.JSONString())

	version, err := d.QueryString("package.json", `.dependencies["basic-1"]`)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", version)

	keys, err := d.Query("package.json", ".dependencies | keys[]")
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"basic-1"}, keys)
}

func TestWriteFileCreatesParents(t *testing.T) {
	path := t.TempDir()
	d := &Dir{Path: path}
	require.NoError(t, d.WriteFile("packages/a/index.js", "x"))
	s, err := d.ReadFile("packages/a/index.js")
	require.NoError(t, err)
	assert.Equal(t, "x", s)

	require.NoError(t, d.RemoveAll("packages"))
	assert.False(t, d.Exists("packages/a/index.js"))
	assert.NoError(t, d.RemoveAll("packages"))
}

func TestSub(t *testing.T) {
	d := &Dir{Path: t.TempDir()}
	sub, err := d.Sub("packages/b")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(d.Path, "packages", "b"), sub.Path)

	require.NoError(t, sub.WritePackageJSON(map[string]string{"name": "b"}))
	name, err := d.QueryString("packages/b/package.json", ".name")
	require.NoError(t, err)
	assert.Equal(t, "b", name)

	_, err = d.Sub("packages/b/package.json/nested")
	assert.Error(t, err)
}

func TestWriteExecutable(t *testing.T) {
	path := t.TempDir()
	d := &Dir{Path: path}
	require.NoError(t, d.WriteExecutable("bin/run", "#!/bin/sh\n"))
	info, err := os.Stat(filepath.Join(path, "bin", "run"))
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&0o100)
}

func TestQueryReportsBadExpression(t *testing.T) {
	_, err := QueryValue(map[string]interface{}{}, ".[")
	assert.Error(t, err)
}

func TestBunfigStringAndObjectRegistry(t *testing.T) {
	yes := true
	b := Bunfig{Install: InstallConfig{
		Registry: &RegistryConfig{URL: "http://localhost:4873/"},
		Scopes: map[string]RegistryConfig{
			"private": {URL: "http://localhost:4873/private/", Token: "abc"},
		},
		Cache:            "/tmp/cache",
		SaveTextLockfile: &yes,
	}}
	s, err := b.Encode()
	require.NoError(t, err)

	var decoded map[string]interface{}
	_, err = toml.Decode(s, &decoded)
	require.NoError(t, err)
	install := decoded["install"].(map[string]interface{})
	assert.Equal(t, "http://localhost:4873/", install["registry"])
	assert.Equal(t, "/tmp/cache", install["cache"])
	assert.Equal(t, true, install["saveTextLockfile"])
	assert.Equal(t, map[string]interface{}{"url": "http://localhost:4873/private/", "token": "abc"},
		install["scopes"].(map[string]interface{})["private"])
	assert.NotContains(t, install, "cafile")
}

func TestBunfigObjectRegistryWithoutCredentials(t *testing.T) {
	b := Bunfig{Install: InstallConfig{Registry: &RegistryConfig{URL: "http://r/", ForceObject: true}}}
	s, err := b.Encode()
	require.NoError(t, err)
	var decoded struct {
		Install struct {
			Registry struct {
				URL string `toml:"url"`
			} `toml:"registry"`
		} `toml:"install"`
	}
	_, err = toml.Decode(s, &decoded)
	require.NoError(t, err)
	assert.Equal(t, "http://r/", decoded.Install.Registry.URL)
}

func TestNpmrc(t *testing.T) {
	n := Npmrc{}.
		Registry("http://localhost:4873/").
		ScopeRegistry("@foo", "http://localhost:4873/foo/").
		AuthToken("http://localhost:4873/", "${TOKEN}").
		UsernamePassword("http://localhost:4873/foo", "bob", "pw")

	assert.Equal(t, "registry=http://localhost:4873/\n"+
		"@foo:registry=http://localhost:4873/foo/\n"+
		"//localhost:4873/:_authToken=${TOKEN}\n"+
		"//localhost:4873/foo/:username=bob\n"+
		"//localhost:4873/foo/:_password=cHc=\n", n.String())

	expanded := n.ExpandEnv(map[string]string{"TOKEN": "secret"})
	token, ok := expanded.Get("//localhost:4873/:_authToken")
	assert.True(t, ok)
	assert.Equal(t, "secret", token)

	original, _ := n.Get("//localhost:4873/:_authToken")
	assert.Equal(t, "${TOKEN}", original)
}

func TestNpmrcExpandEnvUnsetVariables(t *testing.T) {
	n := Npmrc{}.Set("a", "${MISSING}").Set("b", "x${MISSING?}y")
	expanded := n.ExpandEnv(nil)
	a, _ := expanded.Get("a")
	b, _ := expanded.Get("b")
	assert.Equal(t, "${MISSING}", a)
	assert.Equal(t, "xy", b)
}

func TestNpmrcAuth(t *testing.T) {
	n := Npmrc{}.Auth("http://h:1", "u", "p")
	assert.Equal(t, "//h:1/:_auth=dTpw\n", n.String())
}

func TestNerfDart(t *testing.T) {
	assert.Equal(t, "//localhost:4873/", NerfDart("http://localhost:4873"))
	assert.Equal(t, "//localhost:4873/npm/", NerfDart("https://localhost:4873/npm/"))
	assert.Equal(t, "//localhost:4873/npm/", NerfDart("//localhost:4873/npm"))
}

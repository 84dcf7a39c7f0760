package registry

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTarballIsDeterministic(t *testing.T) {
	files := map[string]string{"package.json": `{}`, "index.js": "module.exports = 1"}
	a, err := BuildTarball(files, nil)
	require.NoError(t, err)
	b, err := BuildTarball(files, nil)
	require.NoError(t, err)
	assert.Equal(t, Integrity(a), Integrity(b))
}

func TestTarballLayoutAndModes(t *testing.T) {
	data, err := BuildTarball(map[string]string{"./bin/run.js": "x", "package.json": "{}"},
		map[string]bool{"bin/run.js": true})
	require.NoError(t, err)

	gz, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	tr := tar.NewReader(gz)
	modes := map[string]int64{}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		modes[hdr.Name] = hdr.Mode
	}
	assert.Equal(t, map[string]int64{"package/bin/run.js": 0o755, "package/package.json": 0o644}, modes)

	files, err := ReadTarball(data)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"bin/run.js": "x", "package.json": "{}"}, files)
}

func TestTarballRejectsEscapingPaths(t *testing.T) {
	_, err := BuildTarball(map[string]string{"../evil": "x"}, nil)
	assert.Error(t, err)
}

func TestTarballFilename(t *testing.T) {
	assert.Equal(t, "basic-1-1.0.0.tgz", TarballFilename("basic-1", "1.0.0"))
	assert.Equal(t, "pkg-2.0.0.tgz", TarballFilename("@scope/pkg", "2.0.0"))
}

func TestGeneratedPackageJSONIsMinimal(t *testing.T) {
	p := PackageVersion{Name: "basic-1", Version: "1.0.0"}
	assert.Equal(t, `{"name":"basic-1","version":"1.0.0"}`, p.PackageJSON())

	p.Dependencies = map[string]string{"dep": "^1.0.0"}
	assert.Equal(t, `{"name":"basic-1","version":"1.0.0","dependencies":{"dep":"^1.0.0"}}`, p.PackageJSON())
}

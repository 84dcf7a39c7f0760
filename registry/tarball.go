package registry

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"crypto/sha1" //nolint:gosec // npm's legacy shasum field is defined as SHA-1
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"
)

// Tarballs use a fixed modification time so that the same files always produce the same bytes,
// and therefore the same integrity hash.
var tarballModTime = time.Date(1985, time.October, 26, 8, 15, 0, 0, time.UTC)

// BuildTarball creates a gzipped npm package tarball. Every file is placed under the "package/"
// directory, as npm does. Paths listed in executables get mode 0755.
func BuildTarball(files map[string]string, executables map[string]bool) ([]byte, error) {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, name := range names {
		clean := path.Clean(strings.TrimPrefix(name, "./"))
		if strings.HasPrefix(clean, "../") || clean == ".." {
			return nil, fmt.Errorf("tarball path %q escapes the package directory", name)
		}
		mode := int64(0o644)
		if executables[clean] {
			mode = 0o755
		}
		content := files[name]
		hdr := &tar.Header{
			Name:     "package/" + clean,
			Mode:     mode,
			Size:     int64(len(content)),
			ModTime:  tarballModTime,
			Typeflag: tar.TypeReg,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, err
		}
		if _, err := io.WriteString(tw, content); err != nil {
			return nil, err
		}
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadTarball extracts the files from a gzipped npm tarball, stripping the leading directory
// component (usually "package/").
func ReadTarball(data []byte) (map[string]string, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("tarball is not gzipped: %w", err)
	}
	defer gz.Close()
	tr := tar.NewReader(gz)
	files := make(map[string]string)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("malformed tarball: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		name := hdr.Name
		if i := strings.Index(name, "/"); i >= 0 {
			name = name[i+1:]
		}
		content, err := io.ReadAll(tr)
		if err != nil {
			return nil, err
		}
		files[name] = string(content)
	}
	return files, nil
}

// Integrity returns the Subresource Integrity string that npm stores in dist.integrity.
func Integrity(data []byte) string {
	sum := sha512.Sum512(data)
	return "sha512-" + base64.StdEncoding.EncodeToString(sum[:])
}

// Shasum returns the hex SHA-1 digest that npm stores in dist.shasum.
func Shasum(data []byte) string {
	sum := sha1.Sum(data) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

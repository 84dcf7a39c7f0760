package pmtests

import (
	"github.com/jsconformance/contract-tests/fixtures"
	"github.com/jsconformance/contract-tests/registry"
)

const (
	selfSignedError = "DEPTH_ZERO_SELF_SIGNED_CERT"
	caFileError     = `(?i)CA file`
)

func DoCAFileTests(t *T) {
	// Writes a package directory that installs basic-1 from the TLS registry.
	setup := func(t *T, reg *registry.Registry, caFile string) {
		t.WriteBunfig(fixtures.Bunfig{Install: fixtures.InstallConfig{
			Registry: &fixtures.RegistryConfig{URL: reg.URL()},
			CAFile:   caFile,
		}})
		t.WritePackageJSON(packageJSON("name", "foo", "dependencies", deps("basic-1", "1.0.0")))
	}

	t.Run("self-signed certificate is rejected without a CA", func(t *T) {
		t.WithTLSRegistry(registry.Options{}, func(reg *registry.Registry, _ []byte) {
			setup(t, reg, "")
			t.RequireFailure(t.RunPM("install"), selfSignedError)
			t.RequireNoFile("node_modules/basic-1")
		})
	})

	t.Run("--cafile", func(t *T) {
		t.WithTLSRegistry(registry.Options{}, func(reg *registry.Registry, certPEM []byte) {
			setup(t, reg, "")
			t.WriteFile("certs/ca.pem", string(certPEM))

			result := t.RunPM("install", "--cafile", t.Dir().Join("certs/ca.pem"))
			t.RequireSuccess(result)
			t.RequireNoErrors(result)
			t.RequireFile("node_modules/basic-1/package.json")
		})
	})

	t.Run("--ca", func(t *T) {
		t.WithTLSRegistry(registry.Options{}, func(reg *registry.Registry, certPEM []byte) {
			setup(t, reg, "")

			result := t.RunPM("install", "--ca", string(certPEM))
			t.RequireSuccess(result)
			t.RequireNoErrors(result)
			t.RequireFile("node_modules/basic-1/package.json")
		})
	})

	t.Run("cafile in bunfig", func(t *T) {
		t.WithTLSRegistry(registry.Options{}, func(reg *registry.Registry, certPEM []byte) {
			t.WriteFile("certs/ca.pem", string(certPEM))
			setup(t, reg, t.Dir().Join("certs/ca.pem"))

			result := t.RunPM("install")
			t.RequireSuccess(result)
			t.RequireNoErrors(result)
			t.RequireFile("node_modules/basic-1/package.json")
		})
	})

	t.Run("ca in bunfig", func(t *T) {
		t.WithTLSRegistry(registry.Options{}, func(reg *registry.Registry, certPEM []byte) {
			t.WriteBunfig(fixtures.Bunfig{Install: fixtures.InstallConfig{
				Registry: &fixtures.RegistryConfig{URL: reg.URL()},
				CA:       string(certPEM),
			}})
			t.WritePackageJSON(packageJSON("name", "foo", "dependencies", deps("basic-1", "1.0.0")))

			result := t.RunPM("install")
			t.RequireSuccess(result)
			t.RequireNoErrors(result)
			t.RequireFile("node_modules/basic-1/package.json")
		})
	})

	t.Run("missing CA file", func(t *T) {
		t.WithTLSRegistry(registry.Options{}, func(reg *registry.Registry, _ []byte) {
			setup(t, reg, "")
			t.RequireFailureMatching(t.RunPM("install", "--cafile", t.Dir().Join("does-not-exist.pem")), caFileError)
		})
	})

	t.Run("invalid CA file", func(t *T) {
		t.WithTLSRegistry(registry.Options{}, func(reg *registry.Registry, _ []byte) {
			setup(t, reg, "")
			t.WriteFile("certs/bad.pem", "this is not a certificate\n")
			t.RequireFailureMatching(t.RunPM("install", "--cafile", t.Dir().Join("certs/bad.pem")), caFileError)
		})
	})
}

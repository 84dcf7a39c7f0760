package pmtests

import (
	"net/http"

	"github.com/jsconformance/contract-tests/fixtures"
	"github.com/jsconformance/contract-tests/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	publishUser     = "publisher"
	publishPassword = "publisher-password"
	publishPackage  = "publish-me"

	// The registry answers a wrong one-time password with 401 and "WWW-Authenticate: OTP".
	otpFailurePattern = `(?i)one-time password|\botp\b|401`
)

// writePublishable writes a package that can be published, and a bunfig.toml that authenticates
// as publishUser with a token.
func writePublishable(t *T, reg *registry.Registry, extraFields ...interface{}) {
	token, err := reg.CreateUser(publishUser, publishPassword)
	require.NoError(t, err)
	t.WriteBunfig(fixtures.Bunfig{Install: fixtures.InstallConfig{
		Registry: &fixtures.RegistryConfig{URL: reg.URL(), Token: token},
	}})
	fields := append([]interface{}{"name", publishPackage, "version", "1.0.0"}, extraFields...)
	t.WritePackageJSON(packageJSON(fields...))
	t.WriteFile("index.js", "module.exports = 'published';\n")
}

func countMethod(reg *registry.Registry, method string) int {
	n := 0
	for _, r := range reg.Requests() {
		if r.Method == method {
			n++
		}
	}
	return n
}

func DoPublishTests(t *T) {
	t.Run("publishes the tarball and manifest", func(t *T) {
		reg := t.Registry()
		writePublishable(t, reg)

		result := t.RunPM("publish")
		t.RequireSuccess(result)
		t.RequireNoErrors(result)

		publishes := reg.Publishes()
		require.Len(t, publishes, 1)
		p := publishes[0]
		assert.Equal(t, publishPackage, p.Name)
		assert.Equal(t, "1.0.0", p.Version)
		assert.Equal(t, "latest", p.Tag)
		assert.Equal(t, publishUser, p.User)
		files, err := registry.ReadTarball(p.Tarball)
		require.NoError(t, err)
		assert.Contains(t, files, "package.json")
		assert.Equal(t, "module.exports = 'published';\n", files["index.js"])
		assert.Equal(t, "1.0.0", reg.DistTags(publishPackage)["latest"])
		assert.True(t, reg.HasVersion(publishPackage, "1.0.0"))

		t.Run("published package can be installed", func(t2 *T) {
			t2.WriteBunfig(fixtures.Bunfig{Install: fixtures.InstallConfig{
				Registry: &fixtures.RegistryConfig{URL: reg.URL()},
			}})
			t2.WritePackageJSON(packageJSON("name", "consumer", "dependencies", deps(publishPackage, "1.0.0")))
			t2.RequireSuccess(t2.RunPM("install"))
			t2.RequireFileContent("node_modules/"+publishPackage+"/index.js", "module.exports = 'published';\n")
		})
	})

	t.Run("--tag sets a dist-tag", func(t *T) {
		reg := t.Registry()
		writePublishable(t, reg)

		t.RequireSuccess(t.RunPM("publish", "--tag", "next"))
		assert.Equal(t, "1.0.0", reg.DistTags(publishPackage)["next"])
	})

	t.Run("private package is refused", func(t *T) {
		reg := t.Registry()
		writePublishable(t, reg, "private", true)

		t.RequireFailure(t.RunPM("publish"), "attempted to publish a private package")
		assert.Empty(t, reg.Publishes())
		assert.False(t, reg.HasVersion(publishPackage, "1.0.0"))
		assert.Equal(t, 0, countMethod(reg, http.MethodPut))
	})

	t.Run("missing authentication", func(t *T) {
		reg := t.Registry()
		t.WritePackageJSON(packageJSON("name", publishPackage, "version", "1.0.0"))

		t.RequireFailure(t.RunPM("publish"), "missing authentication")
		assert.Empty(t, reg.Publishes())
	})

	t.Run("--dry-run sends nothing", func(t *T) {
		reg := t.Registry()
		writePublishable(t, reg)

		result := t.RunPM("publish", "--dry-run")
		t.RequireSuccess(result)
		assert.Empty(t, reg.Publishes())
		assert.False(t, reg.HasVersion(publishPackage, "1.0.0"))
		assert.Equal(t, 0, countMethod(reg, http.MethodPut))
	})

	t.Run("one-time password", func(t *T) {
		otps := map[string]string{publishUser: "123456"}

		t.Run("matching --otp", func(t *T) {
			reg := t.UseRegistry(registry.Options{OTP: otps})
			writePublishable(t, reg)

			t.RequireSuccess(t.RunPM("publish", "--otp", "123456"))
			assert.True(t, reg.HasVersion(publishPackage, "1.0.0"))
			publishes := reg.Publishes()
			require.Len(t, publishes, 1)
			assert.Equal(t, "123456", publishes[0].OTP)
		})

		t.Run("mismatched --otp", func(t *T) {
			reg := t.UseRegistry(registry.Options{OTP: otps})
			writePublishable(t, reg)

			t.RequireFailureMatching(t.RunPM("publish", "--otp", "000000"), otpFailurePattern)
			assert.Empty(t, reg.Publishes())
			assert.False(t, reg.HasVersion(publishPackage, "1.0.0"))
		})
	})

	t.Run("publishConfig.registry", func(t *T) {
		decoy := t.Registry()
		target := t.NewRegistry(registry.Options{})
		token, err := target.CreateUser(publishUser, publishPassword)
		require.NoError(t, err)
		t.WriteNpmrc(fixtures.Npmrc{}.Registry(decoy.URL()).AuthToken(target.URL(), token))
		t.WritePackageJSON(packageJSON("name", publishPackage, "version", "1.0.0",
			"publishConfig", map[string]interface{}{"registry": target.URL()}))
		t.WriteFile("index.js", "module.exports = 'published';\n")

		t.RequireSuccess(t.RunPM("publish"))
		assert.Len(t, target.Publishes(), 1)
		assert.Empty(t, decoy.Publishes())
	})

	t.Run("republishing a version fails", func(t *T) {
		reg := t.Registry()
		writePublishable(t, reg)

		t.RequireSuccess(t.RunPM("publish"))
		t.RequireFailure(t.RunPM("publish"), "403")
		assert.Len(t, reg.Publishes(), 1)
	})
}

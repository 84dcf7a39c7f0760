package pmtests

import (
	"encoding/base64"
	"os"

	"github.com/jsconformance/contract-tests/fixtures"
	"github.com/jsconformance/contract-tests/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scopedPackage = "@private/scoped-pkg"

func DoBunfigTests(t *T) {
	t.Run("registry as a string", func(t *T) {
		reg := t.Registry()
		t.WriteBunfig(fixtures.Bunfig{Install: fixtures.InstallConfig{
			Registry: &fixtures.RegistryConfig{URL: reg.URL()},
		}})
		t.WritePackageJSON(packageJSON("name", "foo", "dependencies", deps("basic-1", "1.0.0")))

		t.RequireSuccess(t.RunPM("install"))
		t.RequireAuthorization(reg, "/basic-1", "")
	})

	t.Run("registry as an object with only a url", func(t *T) {
		reg := t.Registry()
		bunfig := fixtures.Bunfig{Install: fixtures.InstallConfig{
			Registry: &fixtures.RegistryConfig{URL: reg.URL(), ForceObject: true},
		}}
		t.WriteBunfig(bunfig)
		t.WritePackageJSON(packageJSON("name", "foo", "dependencies", deps("basic-1", "1.0.0")))

		result := t.RunPM("install")
		t.RequireSuccess(result)
		t.RequireNoErrors(result)
		t.RequireAuthorization(reg, "/basic-1", "")
	})

	t.Run("registry as an object with a token", func(t *T) {
		reg := t.UseRegistry(registry.Options{RequireAuth: true, Tokens: map[string]string{"bunfig-token": "bunfig-user"}})
		t.WriteBunfig(fixtures.Bunfig{Install: fixtures.InstallConfig{
			Registry: &fixtures.RegistryConfig{URL: reg.URL(), Token: "bunfig-token"},
		}})
		t.WritePackageJSON(packageJSON("name", "foo", "dependencies", deps("basic-1", "1.0.0")))

		result := t.RunPM("install")
		t.RequireSuccess(result)
		t.RequireNoErrors(result)
		t.RequireAuthorization(reg, "/basic-1", "Bearer bunfig-token")
	})

	t.Run("registry as an object with username and password", func(t *T) {
		reg := t.UseRegistry(registry.Options{RequireAuth: true})
		_, err := reg.CreateUser("bunfig-user", "bunfig-password")
		require.NoError(t, err)
		t.WriteBunfig(fixtures.Bunfig{Install: fixtures.InstallConfig{
			Registry: &fixtures.RegistryConfig{URL: reg.URL(), Username: "bunfig-user", Password: "bunfig-password"},
		}})
		t.WritePackageJSON(packageJSON("name", "foo", "dependencies", deps("basic-1", "1.0.0")))

		t.RequireSuccess(t.RunPM("install"))
		t.RequireAuthorization(reg, "/basic-1",
			"Basic "+base64.StdEncoding.EncodeToString([]byte("bunfig-user:bunfig-password")))
	})

	t.Run("scoped registry", func(t *T) {
		reg := t.Registry()
		scoped := t.NewRegistry(registry.Options{})
		t.WriteBunfig(fixtures.Bunfig{Install: fixtures.InstallConfig{
			Registry: &fixtures.RegistryConfig{URL: reg.URL()},
			Scopes:   map[string]fixtures.RegistryConfig{"private": {URL: scoped.URL()}},
		}})
		t.WritePackageJSON(packageJSON("name", "foo", "dependencies", deps(scopedPackage, "1.0.0", "basic-1", "1.0.0")))

		result := t.RunPM("install")
		t.RequireSuccess(result)
		t.RequireNoErrors(result)
		assert.NotEmpty(t, scoped.RequestsFor("/"+scopedPackage))
		assert.Empty(t, reg.RequestsFor("/"+scopedPackage))
		assert.Empty(t, scoped.RequestsFor("/basic-1"))
	})

	t.Run("--config uses a custom path", func(t *T) {
		reg := t.Registry()
		decoy := t.NewRegistry(registry.Options{})
		t.WriteBunfig(fixtures.Bunfig{Install: fixtures.InstallConfig{
			Registry: &fixtures.RegistryConfig{URL: decoy.URL()},
		}})
		custom, err := fixtures.Bunfig{Install: fixtures.InstallConfig{
			Registry: &fixtures.RegistryConfig{URL: reg.URL()},
		}}.Encode()
		require.NoError(t, err)
		t.WriteFile("config/custom.toml", custom)
		t.WritePackageJSON(packageJSON("name", "foo", "dependencies", deps("basic-1", "1.0.0")))

		t.RequireSuccess(t.RunPM("install", "--config=config/custom.toml"))
		assert.NotEmpty(t, reg.RequestsFor("/basic-1"))
		assert.Empty(t, decoy.Requests())
	})

	t.Run("optional = false skips optionalDependencies", func(t *T) {
		writeProject := func(t *T, optional *bool) {
			t.WriteBunfig(fixtures.Bunfig{Install: fixtures.InstallConfig{
				Registry: &fixtures.RegistryConfig{URL: t.Registry().URL()},
				Optional: optional,
			}})
			t.WritePackageJSON(packageJSON("name", "foo",
				"dependencies", deps("basic-1", "1.0.0"),
				"optionalDependencies", deps(optionalPackage, "1.0.0")))
		}

		t.Run("by default they are installed", func(t *T) {
			writeProject(t, nil)
			t.RequireSuccess(t.RunPM("install"))
			t.RequireFile("node_modules/" + optionalPackage + "/package.json")
		})

		t.Run("disabled", func(t *T) {
			no := false
			writeProject(t, &no)
			result := t.RunPM("install")
			t.RequireSuccess(result)
			t.RequireNoErrors(result)
			t.RequireFile("node_modules/basic-1/package.json")
			t.RequireNoFile("node_modules/" + optionalPackage)
		})
	})

	t.Run("globalBinDir receives global bins", func(t *T) {
		installDir := t.NewPackageDir()
		binDir := t.NewPackageDir()
		t.SetEnv("BUN_INSTALL", installDir.Path)
		bunfig := fixtures.Bunfig{Install: fixtures.InstallConfig{
			Registry:     &fixtures.RegistryConfig{URL: t.Registry().URL()},
			GlobalBinDir: binDir.Path,
		}}
		// Global installs read the user-level file as well as the local one.
		t.WriteBunfig(bunfig)
		encoded, err := bunfig.Encode()
		require.NoError(t, err)
		require.NoError(t, t.HomeDir().WriteFile(".bunfig.toml", encoded))

		result := t.RunPM("add", "-g", "what-bin@1.0.0")
		t.RequireSuccess(result)
		t.RequireNoErrors(result)
		assert.True(t, binDir.Exists("what-bin"), "what-bin should be linked into globalBinDir")
		t.RequireNoFile("node_modules/what-bin")
	})

	t.Run("cache directory", func(t *T) {
		t.UnsetEnv("BUN_INSTALL_CACHE_DIR")
		cache := t.Dir().Join("custom-cache")
		t.WriteBunfig(fixtures.Bunfig{Install: fixtures.InstallConfig{
			Registry: &fixtures.RegistryConfig{URL: t.Registry().URL()},
			Cache:    cache,
		}})
		t.WritePackageJSON(packageJSON("name", "foo", "dependencies", deps("basic-1", "1.0.0")))

		t.RequireSuccess(t.RunPM("install"))
		entries, err := os.ReadDir(cache)
		require.NoError(t, err, "cache directory was not created")
		assert.NotEmpty(t, entries)
	})
}

func DoNpmrcTests(t *T) {
	t.Run("registry", func(t *T) {
		reg := t.Registry()
		t.WriteNpmrc(fixtures.Npmrc{}.Registry(reg.URL()))
		t.WritePackageJSON(packageJSON("name", "foo", "dependencies", deps("basic-1", "1.0.0")))

		result := t.RunPM("install")
		t.RequireSuccess(result)
		t.RequireNoErrors(result)
		assert.NotEmpty(t, reg.RequestsFor("/basic-1"))
	})

	t.Run("scoped registry", func(t *T) {
		reg := t.Registry()
		scoped := t.NewRegistry(registry.Options{})
		t.WriteNpmrc(fixtures.Npmrc{}.Registry(reg.URL()).ScopeRegistry("@private", scoped.URL()))
		t.WritePackageJSON(packageJSON("name", "foo", "dependencies", deps(scopedPackage, "1.0.0")))

		t.RequireSuccess(t.RunPM("install"))
		assert.NotEmpty(t, scoped.RequestsFor("/"+scopedPackage))
		assert.Empty(t, reg.RequestsFor("/"+scopedPackage))
	})

	t.Run("_authToken", func(t *T) {
		reg := t.UseRegistry(registry.Options{RequireAuth: true, Tokens: map[string]string{"npmrc-token": "npmrc-user"}})
		t.WriteNpmrc(fixtures.Npmrc{}.Registry(reg.URL()).AuthToken(reg.URL(), "npmrc-token"))
		t.WritePackageJSON(packageJSON("name", "foo", "dependencies", deps("basic-1", "1.0.0")))

		t.RequireSuccess(t.RunPM("install"))
		t.RequireAuthorization(reg, "/basic-1", "Bearer npmrc-token")
	})

	basicAuth := "Basic " + base64.StdEncoding.EncodeToString([]byte("npmrc-user:npmrc-password"))

	t.Run("_auth", func(t *T) {
		reg := t.UseRegistry(registry.Options{RequireAuth: true})
		_, err := reg.CreateUser("npmrc-user", "npmrc-password")
		require.NoError(t, err)
		t.WriteNpmrc(fixtures.Npmrc{}.Registry(reg.URL()).Auth(reg.URL(), "npmrc-user", "npmrc-password"))
		t.WritePackageJSON(packageJSON("name", "foo", "dependencies", deps("basic-1", "1.0.0")))

		t.RequireSuccess(t.RunPM("install"))
		t.RequireAuthorization(reg, "/basic-1", basicAuth)
	})

	t.Run("username and _password", func(t *T) {
		reg := t.UseRegistry(registry.Options{RequireAuth: true})
		_, err := reg.CreateUser("npmrc-user", "npmrc-password")
		require.NoError(t, err)
		t.WriteNpmrc(fixtures.Npmrc{}.Registry(reg.URL()).UsernamePassword(reg.URL(), "npmrc-user", "npmrc-password"))
		t.WritePackageJSON(packageJSON("name", "foo", "dependencies", deps("basic-1", "1.0.0")))

		t.RequireSuccess(t.RunPM("install"))
		t.RequireAuthorization(reg, "/basic-1", basicAuth)
	})

	t.Run("environment variable interpolation", func(t *T) {
		reg := t.UseRegistry(registry.Options{RequireAuth: true, Tokens: map[string]string{"from-env": "env-user"}})
		npmrc := fixtures.Npmrc{}.Registry(reg.URL()).AuthToken(reg.URL(), "${NPM_TEST_TOKEN}")
		env := map[string]string{"NPM_TEST_TOKEN": "from-env"}
		for k, v := range env {
			t.SetEnv(k, v)
		}
		t.WriteNpmrc(npmrc)
		t.WritePackageJSON(packageJSON("name", "foo", "dependencies", deps("basic-1", "1.0.0")))

		t.RequireSuccess(t.RunPM("install"))
		token, _ := npmrc.ExpandEnv(env).Get(fixtures.NerfDart(reg.URL()) + ":_authToken")
		t.RequireAuthorization(reg, "/basic-1", "Bearer "+token)
	})

	t.Run("user-level .npmrc in HOME", func(t *T) {
		reg := t.UseRegistry(registry.Options{RequireAuth: true, Tokens: map[string]string{"home-token": "home-user"}})
		require.NoError(t, t.HomeDir().WriteNpmrc(fixtures.Npmrc{}.AuthToken(reg.URL(), "home-token")))
		t.WriteNpmrc(fixtures.Npmrc{}.Registry(reg.URL()))
		t.WritePackageJSON(packageJSON("name", "foo", "dependencies", deps("basic-1", "1.0.0")))

		t.RequireSuccess(t.RunPM("install"))
		t.RequireAuthorization(reg, "/basic-1", "Bearer home-token")
	})
}

func DoRegistryAuthTests(t *T) {
	t.Run("install fails without credentials", func(t *T) {
		t.UseRegistry(registry.Options{RequireAuth: true})
		t.WritePackageJSON(packageJSON("name", "foo", "dependencies", deps("basic-1", "1.0.0")))

		t.RequireFailure(t.RunPM("install"), "401")
		t.RequireNoFile("node_modules/basic-1")
	})

	t.Run("restricted scope needs credentials", func(t *T) {
		t.UseRegistry(registry.Options{RestrictedScopes: []string{"@private"}})
		t.WritePackageJSON(packageJSON("name", "foo", "dependencies", deps(scopedPackage, "1.0.0")))

		t.RequireFailure(t.RunPM("install"), "401")
	})

	t.Run("user created through the registry can install", func(t *T) {
		reg := t.UseRegistry(registry.Options{RequireAuth: true, HtpasswdPath: t.NewPackageDir().Join("htpasswd")})
		token, err := reg.CreateUser("auth-user", "auth-password")
		require.NoError(t, err)
		assert.True(t, reg.UserExists("auth-user"))
		t.WriteBunfig(fixtures.Bunfig{Install: fixtures.InstallConfig{
			Registry: &fixtures.RegistryConfig{URL: reg.URL(), Token: token},
		}})
		t.WritePackageJSON(packageJSON("name", "foo", "dependencies", deps("basic-1", "1.0.0")))

		result := t.RunPM("install")
		t.RequireSuccess(result)
		t.RequireNoErrors(result)
	})

	t.Run("pm whoami prints the username", func(t *T) {
		reg := t.Registry()
		token, err := reg.CreateUser("whoami-user", "whoami-password")
		require.NoError(t, err)
		t.WriteBunfig(fixtures.Bunfig{Install: fixtures.InstallConfig{
			Registry: &fixtures.RegistryConfig{URL: reg.URL(), Token: token},
		}})
		t.WritePackageJSON(packageJSON("name", "foo"))

		result := t.RunPM("pm", "whoami")
		t.RequireSuccess(result)
		t.RequireNoErrors(result)
		t.RequireLinesInOrder(result.Stdout, "whoami-user")
		assert.NotEmpty(t, reg.RequestsFor("/-/whoami"))
	})

	t.Run("pm whoami without credentials", func(t *T) {
		t.WritePackageJSON(packageJSON("name", "foo"))

		t.RequireFailure(t.RunPM("pm", "whoami"), "missing authentication")
	})
}

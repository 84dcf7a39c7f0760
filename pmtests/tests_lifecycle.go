package pmtests

import (
	"strconv"
	"strings"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	postinstallPackage = "lifecycle-postinstall"
	postinstallOutput  = "node_modules/" + postinstallPackage + "/postinstall.txt"
	blockedMessage     = "Blocked 1 postinstall. Run `bun pm untrusted` for details."
)

func DoLifecycleTests(t *T) {
	t.Run("untrusted postinstall is blocked", func(t *T) {
		t.WritePackageJSON(packageJSON("name", "foo", "dependencies", deps(postinstallPackage, "1.0.0")))

		result := t.RunPM("install")
		t.RequireSuccess(result)
		t.RequireNoErrors(result)
		assert.Contains(t, result.Stdout, blockedMessage)
		t.RequireFile("node_modules/" + postinstallPackage + "/package.json")
		t.RequireNoFile(postinstallOutput)

		untrusted := t.RunPM("pm", "untrusted")
		t.RequireSuccess(untrusted)
		t.RequireLinesInOrder(untrusted.Stdout, postinstallPackage, "postinstall")
	})

	t.Run("trustedDependencies allows the script", func(t *T) {
		t.WritePackageJSON(packageJSON("name", "foo",
			"dependencies", deps(postinstallPackage, "1.0.0"),
			"trustedDependencies", []string{postinstallPackage}))

		result := t.RunPM("install")
		t.RequireSuccess(result)
		t.RequireNoErrors(result)
		assert.NotContains(t, result.Stdout, "Blocked")
		t.RequireFileContent(postinstallOutput, "postinstall\n")
	})

	t.Run("pm trust runs the script once", func(t *T) {
		t.WritePackageJSON(packageJSON("name", "foo", "dependencies", deps(postinstallPackage, "1.0.0")))
		t.RequireSuccess(t.RunPM("install"))
		t.RequireNoFile(postinstallOutput)

		result := t.RunPM("pm", "trust", postinstallPackage)
		t.RequireSuccess(result)
		t.RequireNoErrors(result)
		t.RequireFileContent(postinstallOutput, "postinstall\n")
		trusted, err := t.Dir().Query("package.json", ".trustedDependencies[]")
		require.NoError(t, err)
		assert.Equal(t, []interface{}{postinstallPackage}, trusted)

		// Trusting again, or reinstalling without changes, must not run it a second time.
		again := t.RunPM("pm", "trust", postinstallPackage)
		t.RequireSuccess(again)
		t.RequireNoErrors(again)
		t.RequireFileContent(postinstallOutput, "postinstall\n")
		trusted, err = t.Dir().Query("package.json", ".trustedDependencies[]")
		require.NoError(t, err)
		assert.Equal(t, []interface{}{postinstallPackage}, trusted, "trustedDependencies should not repeat")
		t.RequireSuccess(t.RunPM("install"))
		t.RequireFileContent(postinstallOutput, "postinstall\n")
	})

	t.Run("--trust on add", func(t *T) {
		t.WritePackageJSON(packageJSON("name", "foo"))

		result := t.RunPM("add", "--trust", postinstallPackage+"@1.0.0")
		t.RequireSuccess(result)
		t.RequireFileContent(postinstallOutput, "postinstall\n")
		trusted, err := t.Dir().Query("package.json", ".trustedDependencies[]")
		require.NoError(t, err)
		assert.Contains(t, trusted, postinstallPackage)
	})

	t.Run("--ignore-scripts", func(t *T) {
		t.WritePackageJSON(packageJSON("name", "foo",
			"dependencies", deps(postinstallPackage, "1.0.0"),
			"trustedDependencies", []string{postinstallPackage},
			"scripts", map[string]interface{}{"postinstall": "echo root > root.txt"}))

		t.RequireSuccess(t.RunPM("install", "--ignore-scripts"))
		t.RequireNoFile(postinstallOutput)
		t.RequireNoFile("root.txt")
	})

	t.Run("root lifecycle scripts run in order", func(t *T) {
		t.WritePackageJSON(packageJSON("name", "foo",
			"dependencies", deps("basic-1", "1.0.0"),
			"scripts", map[string]interface{}{
				"preinstall":  "echo preinstall >> root-events.txt",
				"postinstall": "echo postinstall >> root-events.txt",
			}))

		result := t.RunPM("install")
		t.RequireSuccess(result)
		t.RequireNoErrors(result)
		t.RequireLinesInOrder(t.ReadFile("root-events.txt"), "preinstall", "postinstall")
	})

	for _, limit := range []int{1, 2} {
		t.Run("--concurrent-scripts="+strconv.Itoa(limit), func(t *T) {
			pkgDeps := make(map[string]interface{})
			for _, name := range sleepPackages {
				pkgDeps[name] = "1.0.0"
			}
			t.WritePackageJSON(packageJSON("name", "foo",
				"dependencies", pkgDeps,
				"trustedDependencies", sleepPackages))

			result := t.RunPM("install", "--concurrent-scripts="+strconv.Itoa(limit))
			t.RequireSuccess(result)
			t.RequireNoErrors(result)

			log := t.ReadFile(sleepEvents)
			peak, starts, err := peakConcurrency(log)
			require.NoError(t, err, "event log:\n%s", log)
			t.Debug("peak concurrency %d; events:\n%s", peak, strings.TrimSpace(log))
			assert.Equal(t, len(sleepPackages), starts)
			assert.LessOrEqual(t, peak, limit)
		})
	}
}

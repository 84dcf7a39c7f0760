package pmtests

import (
	"context"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/jsconformance/contract-tests/fixtures"
	"github.com/jsconformance/contract-tests/framework"
	"github.com/jsconformance/contract-tests/lockfile"
	"github.com/jsconformance/contract-tests/registry"

	"github.com/launchdarkly/go-test-helpers/v2/httphelpers"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const defaultCommandTimeout = time.Second * 60

// Inherited variables that would point the package manager somewhere other than our registry.
var inheritedEnvToUnset = []string{
	"BUN_CONFIG_REGISTRY",
	"NPM_CONFIG_REGISTRY",
	"npm_config_registry",
	"BUN_CONFIG_TOKEN",
	"NPM_CONFIG_TOKEN",
	"BUN_INSTALL",
	"XDG_CONFIG_HOME",
}

var errorMarkers = []string{"error:", "panic:"}

// Config describes the package manager under test.
type Config struct {
	// Path is the package manager executable.
	Path string
	// Env is added to the environment of every invocation, as KEY=value.
	Env []string
	// Timeout applies to each invocation. Zero means one minute.
	Timeout time.Duration
}

// T represents a test or subtest in the package manager suite.
//
// Like the T of the other suites, it can be passed to the assert and require packages as if it
// were a *testing.T. It also owns the resources of one scenario: a registry, a package
// directory, and the environment the package manager runs with. These are created on first use
// and removed when the test finishes. Subtests get their own.
type T struct {
	context  *framework.Context
	harness  *framework.TestHarness
	config   Config
	registry *registry.Registry
	dir      *fixtures.Dir
	cacheDir string
	homeDir  string
	env      []string
	unset    []string
}

func newTestScope(context *framework.Context, harness *framework.TestHarness, config Config) *T {
	return &T{
		context: context,
		harness: harness,
		config:  config,
		unset:   append([]string(nil), inheritedEnvToUnset...),
	}
}

// Errorf is called by assertions to log a test failure. It does not cause an immediate exit.
func (t *T) Errorf(format string, args ...interface{}) {
	t.context.Errorf(format, args...)
}

// FailNow is called by assertions when a test should fail and immediately exit.
func (t *T) FailNow() {
	t.context.FailNow()
}

// Run runs a subtest with a fresh set of resources.
func (t *T) Run(name string, action func(*T)) {
	t.context.Run(name, func(c *framework.Context) {
		action(newTestScope(c, t.harness, t.config))
	})
}

// Debug logs some debug output for the test.
func (t *T) Debug(format string, args ...interface{}) {
	t.context.Debug(format, args...)
}

// Defer schedules an action to run when the test finishes.
func (t *T) Defer(fn func()) {
	t.context.Defer(fn)
}

// Skip skips the rest of the test, with a reason.
func (t *T) Skip(reason string) {
	t.context.SkipWithReason(reason)
}

// Registry returns the test's registry, starting one with default options and the standard
// package catalog if necessary.
func (t *T) Registry() *registry.Registry {
	if t.registry == nil {
		t.registry = t.NewRegistry(registry.Options{})
	}
	return t.registry
}

// UseRegistry starts the test's registry with specific options. It must be called before
// anything else that uses the registry, including Dir.
func (t *T) UseRegistry(opts registry.Options) *registry.Registry {
	require.Nil(t, t.registry, "test tried to configure its registry after it was started")
	t.registry = t.NewRegistry(opts)
	return t.registry
}

// NewRegistry starts an additional registry with the standard package catalog, served from its
// own mock endpoint.
func (t *T) NewRegistry(opts registry.Options) *registry.Registry {
	reg, err := registry.New(opts)
	require.NoError(t, err)
	require.NoError(t, reg.AddPackages(Catalog()...))
	logger := framework.LoggerWithPrefix(t.context.DebugLogger(), "[registry] ")
	endpoint := t.harness.NewMockEndpoint(reg, "registry", logger)
	t.Defer(endpoint.Close)
	reg.SetBaseURL(endpoint.BaseURL())
	logger.Printf("started at %s", reg.URL())
	return reg
}

// WithTLSRegistry runs an action with a registry that is served over HTTPS with a self-signed
// certificate. certPEM is that certificate, which is also its own CA.
func (t *T) WithTLSRegistry(opts registry.Options, action func(reg *registry.Registry, certPEM []byte)) {
	reg, err := registry.New(opts)
	require.NoError(t, err)
	require.NoError(t, reg.AddPackages(Catalog()...))
	httphelpers.WithSelfSignedServer(reg, func(server *httptest.Server, certPEM []byte, _ *x509.CertPool) {
		reg.SetBaseURL(server.URL)
		framework.LoggerWithPrefix(t.context.DebugLogger(), "[registry] ").Printf("started with TLS at %s", reg.URL())
		action(reg, certPEM)
	})
}

// Dir returns the package directory. When it is first created it contains a bunfig.toml that
// points at the test's registry and nothing else.
func (t *T) Dir() *fixtures.Dir {
	if t.dir == nil {
		t.dir = t.newTempDir("pm-test-")
		t.WriteBunfig(fixtures.Bunfig{Install: fixtures.InstallConfig{
			Registry: &fixtures.RegistryConfig{URL: t.Registry().URL()},
		}})
	}
	return t.dir
}

// NewPackageDir creates a separate, empty directory, for instance for a package that will be
// published or linked.
func (t *T) NewPackageDir() *fixtures.Dir {
	return t.newTempDir("pm-pkg-")
}

func (t *T) newTempDir(prefix string) *fixtures.Dir {
	d, err := fixtures.NewTempDir(prefix)
	require.NoError(t, err)
	t.Defer(d.Remove)
	return d
}

// CacheDir returns the package cache directory that the package manager is told to use.
func (t *T) CacheDir() string {
	if t.cacheDir == "" {
		t.cacheDir = t.newTempDir("pm-cache-").Path
	}
	return t.cacheDir
}

// ClearCache empties the package cache, so that the next command fetches fresh metadata.
func (t *T) ClearCache() {
	if t.cacheDir != "" {
		require.NoError(t, os.RemoveAll(t.cacheDir))
		require.NoError(t, os.MkdirAll(t.cacheDir, 0o755))
	}
}

// HomeDir returns the HOME directory that the package manager sees, so user-level
// configuration from the machine running the tests does not leak in.
func (t *T) HomeDir() *fixtures.Dir {
	if t.homeDir == "" {
		t.homeDir = t.newTempDir("pm-home-").Path
	}
	return &fixtures.Dir{Path: t.homeDir}
}

// SetEnv sets an environment variable for subsequent package manager invocations.
func (t *T) SetEnv(name, value string) {
	t.env = append(t.env, name+"="+value)
}

// UnsetEnv removes an environment variable, including one set by the harness itself.
func (t *T) UnsetEnv(name string) {
	t.unset = append(t.unset, name)
}

func (t *T) environment() []string {
	env := []string{
		"NO_COLOR=1",
		"BUN_DEBUG_QUIET_LOGS=1",
		"BUN_RUNTIME_TRANSPILER_CACHE_PATH=0",
		"BUN_INSTALL_CACHE_DIR=" + t.CacheDir(),
		"HOME=" + t.HomeDir().Path,
		"USERPROFILE=" + t.HomeDir().Path,
	}
	env = append(env, t.config.Env...)
	return append(env, t.env...)
}

// WritePackageJSON writes package.json in the package directory.
func (t *T) WritePackageJSON(value interface{}) {
	require.NoError(t, t.Dir().WritePackageJSON(value))
}

// WriteFile writes a file in the package directory.
func (t *T) WriteFile(rel, content string) {
	require.NoError(t, t.Dir().WriteFile(rel, content))
}

// WriteBunfig replaces bunfig.toml in the package directory.
func (t *T) WriteBunfig(b fixtures.Bunfig) {
	require.NoError(t, t.Dir().WriteBunfig(b))
}

// WriteNpmrc writes .npmrc in the package directory and removes the default bunfig.toml, so
// that the .npmrc is the only source of registry configuration.
func (t *T) WriteNpmrc(n fixtures.Npmrc) {
	d := t.Dir()
	require.NoError(t, d.RemoveAll("bunfig.toml"))
	require.NoError(t, d.WriteNpmrc(n))
}

// ReadFile reads a file in the package directory, failing the test if it does not exist.
func (t *T) ReadFile(rel string) string {
	s, err := t.Dir().ReadFile(rel)
	require.NoError(t, err)
	return s
}

// ReadJSON parses a JSON file in the package directory.
func (t *T) ReadJSON(rel string) ldvalue.Value {
	v, err := t.Dir().ReadJSON(rel)
	require.NoError(t, err)
	return v
}

// InstalledVersion returns the version in node_modules/<path>/package.json.
func (t *T) InstalledVersion(path string) string {
	return t.ReadJSON("node_modules/" + path + "/package.json").GetByKey("version").StringValue()
}

// RemoveNodeModules deletes node_modules, keeping the lockfile.
func (t *T) RemoveNodeModules() {
	require.NoError(t, t.Dir().RemoveAll("node_modules"))
}

// ScanTree returns the installed node_modules tree.
func (t *T) ScanTree() lockfile.Tree {
	tree, err := lockfile.ScanTree(t.Dir().Path)
	require.NoError(t, err)
	return tree
}

// ReadLockfile returns the raw content of whichever lockfile exists, text or binary.
func (t *T) ReadLockfile() []byte {
	for _, name := range []string{lockfile.TextFilename, "bun.lockb"} {
		if t.Dir().Exists(name) {
			data, err := os.ReadFile(t.Dir().Join(name))
			require.NoError(t, err)
			return data
		}
	}
	require.Fail(t, "no lockfile was written")
	return nil
}

// ReadTextLockfile parses bun.lock.
func (t *T) ReadTextLockfile() *lockfile.TextLockfile {
	lock, err := lockfile.ReadText(t.Dir().Join(lockfile.TextFilename))
	require.NoError(t, err)
	return lock
}

// RunPM runs the package manager in the package directory.
func (t *T) RunPM(args ...string) framework.CommandResult {
	return t.RunPMIn(t.Dir().Path, args...)
}

// RunPMIn runs the package manager in any directory. The test fails immediately if the command
// cannot be started or does not finish within the timeout; a non-zero exit status is returned
// to the caller.
func (t *T) RunPMIn(dir string, args ...string) framework.CommandResult {
	timeout := t.config.Timeout
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	spec := framework.CommandSpec{
		Path:  t.config.Path,
		Args:  args,
		Dir:   dir,
		Env:   t.environment(),
		Unset: t.unset,
	}
	result, err := framework.RunCommand(ctx, spec, t.context.DebugLogger())
	require.NoError(t, err)
	require.False(t, result.TimedOut, "%s timed out after %s", spec.CommandLine(), timeout)
	return result
}

// RequireSuccess fails the test immediately if the command exited with a non-zero status.
func (t *T) RequireSuccess(result framework.CommandResult) {
	require.Equal(t, 0, result.ExitCode, "command failed; stderr:\n%s", result.Stderr)
}

// RequireFailure fails the test immediately unless the command exited with a non-zero status
// and its output contains the expected text.
func (t *T) RequireFailure(result framework.CommandResult, expected string) {
	require.NotEqual(t, 0, result.ExitCode, "command should have failed; stdout:\n%s", result.Stdout)
	assert.Contains(t, result.Stdout+result.Stderr, expected)
}

// RequireFailureMatching is RequireFailure with a regular expression.
func (t *T) RequireFailureMatching(result framework.CommandResult, pattern string) {
	require.NotEqual(t, 0, result.ExitCode, "command should have failed; stdout:\n%s", result.Stdout)
	assert.Regexp(t, regexp.MustCompile(pattern), result.Stdout+result.Stderr)
}

// RequireNoErrors checks that stderr does not mention an error or a panic, which would indicate
// a problem even when the exit status is zero.
func (t *T) RequireNoErrors(result framework.CommandResult) {
	for _, marker := range errorMarkers {
		assert.NotContains(t, result.Stderr, marker)
	}
}

// RequireLinesInOrder checks that each expected string appears in its own line of the output,
// in the given order. Other lines may come in between.
func (t *T) RequireLinesInOrder(output string, expected ...string) {
	if missing, ok := linesInOrder(output, expected); !ok {
		require.Fail(t, "output is missing an expected line",
			"expected %q (line %d of %d expected lines, in order) in output:\n%s",
			expected[missing], missing+1, len(expected), output)
	}
}

// RequireFileContent checks the exact content of a file in the package directory.
func (t *T) RequireFileContent(rel, expected string) {
	assert.Equal(t, expected, t.ReadFile(rel), "content of %s", rel)
}

func (t *T) RequireFile(rel string) {
	require.True(t, t.Dir().Exists(rel), "expected %s to exist", rel)
}

func (t *T) RequireNoFile(rel string) {
	require.False(t, t.Dir().Exists(rel), "expected %s not to exist", rel)
}

// RequireAuthorization checks that every request the registry received for a path carried the
// expected Authorization header, and that there was at least one.
func (t *T) RequireAuthorization(reg *registry.Registry, path, expected string) {
	requests := reg.RequestsFor(path)
	require.NotEmpty(t, requests, "registry received no requests for %s", path)
	for _, r := range requests {
		assert.Equal(t, expected, r.Authorization, "Authorization header of %s %s", r.Method, r.Path)
	}
}

// linesInOrder returns the index of the first expected string that could not be found, or
// false if all were found in order.
func linesInOrder(output string, expected []string) (int, bool) {
	lines := strings.Split(output, "\n")
	pos := 0
	for i, e := range expected {
		found := false
		for pos < len(lines) {
			line := lines[pos]
			pos++
			if strings.Contains(line, e) {
				found = true
				break
			}
		}
		if !found {
			return i, false
		}
	}
	return 0, true
}

// peakConcurrency reads an event log in which each running script appends "start" when it
// begins and "end" when it finishes, and returns the largest number that were running at once.
func peakConcurrency(log string) (peak int, starts int, err error) {
	running := 0
	for _, line := range strings.Split(log, "\n") {
		switch strings.TrimSpace(line) {
		case "start":
			running++
			starts++
			if running > peak {
				peak = running
			}
		case "end":
			running--
			if running < 0 {
				return 0, 0, fmt.Errorf("event log has more ends than starts")
			}
		case "":
		default:
			return 0, 0, fmt.Errorf("unexpected line %q in event log", line)
		}
	}
	return peak, starts, nil
}

func packageJSON(fields ...interface{}) ldvalue.Value {
	if len(fields)%2 != 0 {
		panic("packageJSON needs key/value pairs")
	}
	b := ldvalue.ObjectBuild()
	for i := 0; i < len(fields); i += 2 {
		b.Set(fields[i].(string), jsonValue(fields[i+1]))
	}
	return b.Build()
}

// jsonValue converts any JSON-marshalable value. It panics on values that cannot be marshaled,
// since those only come from scenario literals.
func jsonValue(v interface{}) ldvalue.Value {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return ldvalue.Parse(data)
}

func deps(pairs ...string) map[string]interface{} {
	ret := make(map[string]interface{}, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		ret[pairs[i]] = pairs[i+1]
	}
	return ret
}

package registry

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/launchdarkly/go-test-helpers/v2/httphelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withRegistry(t *testing.T, opts Options, action func(*Registry, *httptest.Server)) {
	r, err := New(opts)
	require.NoError(t, err)
	httphelpers.WithServer(r, func(server *httptest.Server) {
		r.SetBaseURL(server.URL)
		action(r, server)
	})
}

func doRequest(t *testing.T, method, url, auth string, body interface{}, headers ...string) (int, http.Header, []byte) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, resp.Header, data
}

func decodeObject(t *testing.T, data []byte) map[string]interface{} {
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &m), string(data))
	return m
}

func TestPackumentAndTarball(t *testing.T) {
	withRegistry(t, Options{}, func(r *Registry, server *httptest.Server) {
		require.NoError(t, r.AddPackages(
			PackageVersion{Name: "basic-1", Version: "1.0.0"},
			PackageVersion{Name: "basic-1", Version: "1.1.0-beta.1"},
		))

		status, _, body := doRequest(t, "GET", server.URL+"/basic-1", "", nil)
		require.Equal(t, 200, status)
		doc := decodeObject(t, body)
		assert.Equal(t, "basic-1", doc["name"])
		assert.Equal(t, map[string]interface{}{"latest": "1.0.0"}, doc["dist-tags"])

		version := doc["versions"].(map[string]interface{})["1.0.0"].(map[string]interface{})
		dist := version["dist"].(map[string]interface{})
		assert.Equal(t, server.URL+"/basic-1/-/basic-1-1.0.0.tgz", dist["tarball"])

		status, _, tarball := doRequest(t, "GET", dist["tarball"].(string), "", nil)
		require.Equal(t, 200, status)
		assert.Equal(t, dist["integrity"], Integrity(tarball))
		assert.Equal(t, dist["shasum"], Shasum(tarball))

		files, err := ReadTarball(tarball)
		require.NoError(t, err)
		assert.Equal(t, `{"name":"basic-1","version":"1.0.0"}`, files["package.json"])
	})
}

func TestPackumentCarriesDeprecationAndOptionalDependencies(t *testing.T) {
	withRegistry(t, Options{}, func(r *Registry, server *httptest.Server) {
		require.NoError(t, r.AddPackages(
			PackageVersion{Name: "old", Version: "1.0.0", Deprecated: "use new instead"},
			PackageVersion{Name: "has-optional", Version: "1.0.0", OptionalDependencies: map[string]string{"old": "1.0.0"}},
		))

		status, _, body := doRequest(t, "GET", server.URL+"/old", "", nil)
		require.Equal(t, 200, status)
		version := decodeObject(t, body)["versions"].(map[string]interface{})["1.0.0"].(map[string]interface{})
		assert.Equal(t, "use new instead", version["deprecated"])

		status, _, body = doRequest(t, "GET", server.URL+"/has-optional", "", nil)
		require.Equal(t, 200, status)
		version = decodeObject(t, body)["versions"].(map[string]interface{})["1.0.0"].(map[string]interface{})
		assert.Equal(t, map[string]interface{}{"old": "1.0.0"}, version["optionalDependencies"])
		assert.Nil(t, version["deprecated"])

		status, _, tarball := doRequest(t, "GET", server.URL+"/old/-/old-1.0.0.tgz", "", nil)
		require.Equal(t, 200, status)
		files, err := ReadTarball(tarball)
		require.NoError(t, err)
		assert.Equal(t, `{"name":"old","version":"1.0.0"}`, files["package.json"])
	})
}

func TestScopedPackageEncodedOrNot(t *testing.T) {
	withRegistry(t, Options{}, func(r *Registry, server *httptest.Server) {
		require.NoError(t, r.AddPackage(PackageVersion{Name: "@scope/pkg", Version: "2.0.0"}))
		for _, path := range []string{"/@scope%2fpkg", "/@scope/pkg"} {
			status, _, body := doRequest(t, "GET", server.URL+path, "", nil)
			require.Equal(t, 200, status, path)
			assert.Equal(t, "@scope/pkg", decodeObject(t, body)["name"])
		}
		status, _, _ := doRequest(t, "GET", server.URL+"/@scope/pkg/-/pkg-2.0.0.tgz", "", nil)
		assert.Equal(t, 200, status)
	})
}

func TestUnknownPackageIs404(t *testing.T) {
	withRegistry(t, Options{}, func(r *Registry, server *httptest.Server) {
		status, _, body := doRequest(t, "GET", server.URL+"/nope", "", nil)
		assert.Equal(t, 404, status)
		assert.JSONEq(t, `{"error":"not found"}`, string(body))
	})
}

func TestVersionAndTagLookup(t *testing.T) {
	withRegistry(t, Options{}, func(r *Registry, server *httptest.Server) {
		require.NoError(t, r.AddPackages(
			PackageVersion{Name: "tagged", Version: "1.0.0"},
			PackageVersion{Name: "tagged", Version: "2.0.0-rc.1", Tags: []string{"next"}},
		))
		status, _, body := doRequest(t, "GET", server.URL+"/tagged/next", "", nil)
		require.Equal(t, 200, status)
		assert.Equal(t, "2.0.0-rc.1", decodeObject(t, body)["version"])
		assert.Equal(t, map[string]string{"latest": "1.0.0", "next": "2.0.0-rc.1"}, r.DistTags("tagged"))
	})
}

func TestRestrictedScopeRequiresCredentials(t *testing.T) {
	opts := Options{RestrictedScopes: []string{"@private"}, Tokens: map[string]string{"secret-token": "alice"}}
	withRegistry(t, opts, func(r *Registry, server *httptest.Server) {
		require.NoError(t, r.AddPackages(
			PackageVersion{Name: "@private/thing", Version: "1.0.0"},
			PackageVersion{Name: "public-thing", Version: "1.0.0"},
		))

		status, _, _ := doRequest(t, "GET", server.URL+"/@private/thing", "", nil)
		assert.Equal(t, 401, status)
		status, _, _ = doRequest(t, "GET", server.URL+"/@private/thing", "Bearer wrong", nil)
		assert.Equal(t, 401, status)
		status, _, _ = doRequest(t, "GET", server.URL+"/@private/thing", "Bearer secret-token", nil)
		assert.Equal(t, 200, status)
		status, _, _ = doRequest(t, "GET", server.URL+"/public-thing", "", nil)
		assert.Equal(t, 200, status)

		records := r.RequestsFor("/@private/thing")
		require.Len(t, records, 3)
		assert.Equal(t, "Bearer secret-token", records[2].Authorization)
		assert.Equal(t, 200, records[2].Status)
	})
}

func TestUserCreationLoginAndWhoami(t *testing.T) {
	htpasswd := filepath.Join(t.TempDir(), "htpasswd")
	withRegistry(t, Options{HtpasswdPath: htpasswd}, func(r *Registry, server *httptest.Server) {
		userURL := server.URL + "/-/user/org.couchdb.user:bob"
		status, _, body := doRequest(t, "PUT", userURL, "", map[string]string{"name": "bob", "password": "hunter2"})
		require.Equal(t, 201, status)
		created := decodeObject(t, body)
		token := created["token"].(string)
		assert.Equal(t, "org.couchdb.user:bob", created["id"])

		status, _, body = doRequest(t, "GET", server.URL+"/-/whoami", "Bearer "+token, nil)
		require.Equal(t, 200, status)
		assert.JSONEq(t, `{"username":"bob"}`, string(body))

		basic := "Basic " + base64.StdEncoding.EncodeToString([]byte("bob:hunter2"))
		status, _, _ = doRequest(t, "GET", server.URL+"/-/whoami", basic, nil)
		assert.Equal(t, 200, status)

		status, _, _ = doRequest(t, "PUT", userURL, "", map[string]string{"name": "bob", "password": "wrong"})
		assert.Equal(t, 401, status)

		status, _, _ = doRequest(t, "GET", server.URL+"/-/whoami", "", nil)
		assert.Equal(t, 401, status)
	})

	data, err := os.ReadFile(htpasswd)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "bob:$2"))

	r2, err := New(Options{HtpasswdPath: htpasswd})
	require.NoError(t, err)
	assert.True(t, r2.UserExists("bob"))
}

func publishBody(t *testing.T, name, version string, manifestExtra map[string]interface{}) map[string]interface{} {
	tarball, err := BuildTarball(map[string]string{"package.json": `{"name":"` + name + `","version":"` + version + `"}`}, nil)
	require.NoError(t, err)
	manifest := map[string]interface{}{"name": name, "version": version,
		"dist": map[string]interface{}{"integrity": Integrity(tarball)}}
	for k, v := range manifestExtra {
		manifest[k] = v
	}
	return map[string]interface{}{
		"name":      name,
		"dist-tags": map[string]string{"latest": version},
		"versions":  map[string]interface{}{version: manifest},
		"_attachments": map[string]interface{}{
			TarballFilename(name, version): map[string]interface{}{
				"content_type": "application/octet-stream",
				"data":         base64.StdEncoding.EncodeToString(tarball),
				"length":       len(tarball),
			},
		},
	}
}

func TestPublish(t *testing.T) {
	withRegistry(t, Options{}, func(r *Registry, server *httptest.Server) {
		token, err := r.CreateUser("carol", "pw")
		require.NoError(t, err)

		status, _, _ := doRequest(t, "PUT", server.URL+"/new-pkg", "", publishBody(t, "new-pkg", "1.0.0", nil))
		assert.Equal(t, 401, status)

		status, _, body := doRequest(t, "PUT", server.URL+"/new-pkg", "Bearer "+token, publishBody(t, "new-pkg", "1.0.0", nil))
		require.Equal(t, 201, status, string(body))
		assert.True(t, r.HasVersion("new-pkg", "1.0.0"))
		pubs := r.Publishes()
		require.Len(t, pubs, 1)
		assert.Equal(t, "carol", pubs[0].User)
		assert.Equal(t, "latest", pubs[0].Tag)

		status, _, _ = doRequest(t, "PUT", server.URL+"/new-pkg", "Bearer "+token, publishBody(t, "new-pkg", "1.0.0", nil))
		assert.Equal(t, 403, status)

		status, _, _ = doRequest(t, "PUT", server.URL+"/secret-pkg", "Bearer "+token,
			publishBody(t, "secret-pkg", "1.0.0", map[string]interface{}{"private": true}))
		assert.Equal(t, 403, status)
		assert.False(t, r.HasVersion("secret-pkg", "1.0.0"))
	})
}

func TestPublishWithOTP(t *testing.T) {
	withRegistry(t, Options{OTP: map[string]string{"dave": "123456"}}, func(r *Registry, server *httptest.Server) {
		token, err := r.CreateUser("dave", "pw")
		require.NoError(t, err)
		auth := "Bearer " + token

		status, headers, _ := doRequest(t, "PUT", server.URL+"/otp-pkg", auth, publishBody(t, "otp-pkg", "1.0.0", nil))
		assert.Equal(t, 401, status)
		assert.Equal(t, "OTP", headers.Get("WWW-Authenticate"))

		status, _, body := doRequest(t, "PUT", server.URL+"/otp-pkg", auth, publishBody(t, "otp-pkg", "1.0.0", nil), "npm-otp", "000000")
		assert.Equal(t, 401, status)
		assert.Contains(t, string(body), "invalid one-time password")

		status, _, _ = doRequest(t, "PUT", server.URL+"/otp-pkg", auth, publishBody(t, "otp-pkg", "1.0.0", nil), "npm-otp", "123456")
		assert.Equal(t, 201, status)
		assert.Equal(t, "123456", r.Publishes()[0].OTP)
	})
}

func TestOverrideInjectsFailures(t *testing.T) {
	withRegistry(t, Options{}, func(r *Registry, server *httptest.Server) {
		require.NoError(t, r.AddPackage(PackageVersion{Name: "flaky", Version: "1.0.0"}))
		r.Override("/flaky", httphelpers.SequentialHandler(httphelpers.HandlerWithStatus(503), r.PassThrough()))

		status, _, _ := doRequest(t, "GET", server.URL+"/flaky", "", nil)
		assert.Equal(t, 503, status)
		status, _, _ = doRequest(t, "GET", server.URL+"/flaky", "", nil)
		assert.Equal(t, 200, status)
	})
}

func TestSplitPackagePath(t *testing.T) {
	for _, tc := range []struct{ path, name, rest string }{
		{"/basic-1", "basic-1", ""},
		{"/basic-1/-/basic-1-1.0.0.tgz", "basic-1", "/-/basic-1-1.0.0.tgz"},
		{"/@s/n", "@s/n", ""},
		{"/@s/n/1.0.0", "@s/n", "/1.0.0"},
	} {
		name, rest, ok := splitPackagePath(tc.path)
		assert.True(t, ok, tc.path)
		assert.Equal(t, tc.name, name, tc.path)
		assert.Equal(t, tc.rest, rest, tc.path)
	}
	_, _, ok := splitPackagePath("/@scopeonly")
	assert.False(t, ok)
}

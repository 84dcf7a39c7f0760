package expresstests

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jsconformance/contract-tests/framework"
	"github.com/jsconformance/contract-tests/servicedef"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const requestTimeout = time.Second * 10

var AllCapabilities = []string{
	servicedef.CapabilityNamedCaptureGroups,
	servicedef.CapabilityOptionalSegments,
	servicedef.CapabilityRepeatedSegments,
	servicedef.CapabilityPromiseErrors,
}

// T represents a test or subtest in the Express conformance suite.
//
// As in the other suites, it can be passed to the assert and require packages as if it were a
// *testing.T. Each T can start one application in the test service; the application is closed
// when the test finishes.
type T struct {
	context *framework.Context
	harness *framework.TestHarness
	app     *framework.TestServiceEntity
	appURL  string
	client  *http.Client
}

// Response is a fully read HTTP response from an application. Transfer-Encoding and
// Content-Length are not in Header; net/http moves them to the fields below.
type Response struct {
	Status           int
	Header           http.Header
	Body             string
	TransferEncoding []string
	// ContentLength is -1 if the response did not declare a length.
	ContentLength int64
}

func newTestScope(context *framework.Context, harness *framework.TestHarness) *T {
	return &T{
		context: context,
		harness: harness,
		client: &http.Client{
			Timeout: requestTimeout,
			// Redirects are part of what is being tested.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// close runs as a deferred action of the test, so a failure to close is recorded as a failure
// of the test that started the app.
func (t *T) close() {
	if t.app != nil {
		app := t.app
		t.app = nil
		if err := app.Close(); err != nil {
			t.Errorf("error closing app at %s: %s", app.ResourceURL(), err)
		}
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

// Run runs a subtest, which can start its own application.
func (t *T) Run(name string, action func(*T)) {
	t.context.Run(name, func(c *framework.Context) {
		t1 := newTestScope(c, t.harness)
		c.Defer(t1.close)
		action(t1)
	})
}

func (t *T) Debug(format string, args ...interface{}) {
	t.context.Debug(format, args...)
}

// RequireCapability skips this test if the test service did not declare that it supports the
// specified capability.
func (t *T) RequireCapability(capability string) {
	if !t.harness.TestServiceHasCapability(capability) {
		t.context.SkipWithReason(fmt.Sprintf("test service does not have capability %q", capability))
	}
}

// StartApp tells the test service to create an application. Subsequent requests go to it.
func (t *T) StartApp(params servicedef.AppParams) {
	require.Nil(t, t.app, "test tried to start a second app")
	if params.Tag == "" {
		params.Tag = t.context.ID().String()
	}
	app, err := t.harness.NewTestServiceEntity(params, "app", t.context.DebugLogger())
	require.NoError(t, err)
	t.app = app
	var created servicedef.AppCreated
	require.NoError(t, app.DecodeCreationResponse(&created))
	require.NotEmpty(t, created.URL, "test service did not return the app URL")
	t.appURL = strings.TrimSuffix(created.URL, "/")
	t.Debug("app %s started at %s", app.ResourceURL(), t.appURL)
}

// StartRoutes is StartApp with nothing but routes.
func (t *T) StartRoutes(routes ...servicedef.RouteParams) {
	t.StartApp(servicedef.AppParams{Routes: routes})
}

// Get makes a GET request to the application. Headers are given as name, value pairs.
func (t *T) Get(path string, headers ...string) Response {
	return t.Request(http.MethodGet, path, "", headers...)
}

func (t *T) Head(path string, headers ...string) Response {
	return t.Request(http.MethodHead, path, "", headers...)
}

// Request makes a request to the application and reads the whole response. The test fails
// immediately if the request cannot be made.
func (t *T) Request(method, path, body string, headers ...string) Response {
	require.NotEmpty(t, t.appURL, "test made a request before starting an app")
	require.True(t, len(headers)%2 == 0, "headers must be name/value pairs")
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, t.appURL+path, bodyReader)
	require.NoError(t, err)
	for i := 0; i < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := t.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	t.Debug("%s %s -> %d %v %q", method, path, resp.StatusCode, resp.Header, string(data))
	return Response{
		Status:           resp.StatusCode,
		Header:           resp.Header,
		Body:             string(data),
		TransferEncoding: resp.TransferEncoding,
		ContentLength:    resp.ContentLength,
	}
}

// RequireResponse checks the status and body of a response.
func (t *T) RequireResponse(resp Response, status int, body string) {
	require.Equal(t, status, resp.Status, "status; body was %q", resp.Body)
	assert.Equal(t, body, resp.Body)
}

// RequireHeader checks one header value of a response.
func (t *T) RequireHeader(resp Response, name, value string) {
	assert.Equal(t, value, resp.Header.Get(name), "header %s", name)
}

// RequireNoHeader checks that a response does not have a header. Use the Response fields for
// Transfer-Encoding and Content-Length.
func (t *T) RequireNoHeader(resp Response, name string) {
	_, ok := resp.Header[http.CanonicalHeaderKey(name)]
	assert.False(t, ok, "unexpected header %s: %s", name, resp.Header.Get(name))
}

// RequireEcho parses the body of a response from an echo handler.
func (t *T) RequireEcho(resp Response) servicedef.EchoResponse {
	require.Equal(t, http.StatusOK, resp.Status, "status; body was %q", resp.Body)
	var echo servicedef.EchoResponse
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &echo), "echo response was %q", resp.Body)
	return echo
}

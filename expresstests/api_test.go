package expresstests

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jsconformance/contract-tests/framework"
	"github.com/jsconformance/contract-tests/servicedef"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

// fakeService is a test service whose apps ignore their routes: "/" redirects, "/chunked"
// streams, and anything else is echoed.
type fakeService struct {
	lock        sync.Mutex
	created     []servicedef.AppParams
	apps        []*httptest.Server
	closed      int
	closeStatus int
}

func (s *fakeService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "":
		_, _ = w.Write([]byte(`{"description":"fake","capabilities":["optional-segments"]}`))
	case r.Method == http.MethodPost && r.URL.Path == "":
		var params servicedef.AppParams
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			w.WriteHeader(400)
			return
		}
		app := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/":
				http.Redirect(w, r, "http://google.com", http.StatusFound)
				return
			case "/chunked":
				_, _ = w.Write([]byte("a"))
				w.(http.Flusher).Flush()
				_, _ = w.Write([]byte("b"))
				return
			}
			_ = json.NewEncoder(w).Encode(servicedef.EchoResponse{
				Path:        r.URL.Path,
				OriginalURL: r.URL.RequestURI(),
				Method:      r.Method,
			})
		}))
		s.lock.Lock()
		s.created = append(s.created, params)
		s.apps = append(s.apps, app)
		s.lock.Unlock()
		w.Header().Set("Location", "/apps/1")
		w.WriteHeader(201)
		_ = json.NewEncoder(w).Encode(servicedef.AppCreated{URL: app.URL + "/"})
	case r.Method == http.MethodDelete && r.URL.Path == "/apps/1":
		s.lock.Lock()
		s.closed++
		status := s.closeStatus
		s.lock.Unlock()
		if status != 0 {
			w.WriteHeader(status)
		}
	default:
		w.WriteHeader(404)
	}
}

func (s *fakeService) close() {
	for _, app := range s.apps {
		app.Close()
	}
}

func withFakeService(t *testing.T, action func(*framework.TestHarness, *fakeService)) {
	h, err := framework.NewTestHarness("localhost", 0, nil)
	require.NoError(t, err)
	defer h.Close()
	service := &fakeService{}
	defer service.close()
	endpoint := h.NewMockEndpoint(service, "test service", nil)
	defer endpoint.Close()
	require.NoError(t, h.ConnectTestService(endpoint.BaseURL(), time.Second, io.Discard))
	action(h, service)
}

func runOne(h *framework.TestHarness, action func(*T)) framework.Results {
	return framework.Run(nil, nil, func(c *framework.Context) {
		t := newTestScope(c, h)
		t.Run("test", action)
	})
}

func TestStartAppAndRequest(t *testing.T) {
	withFakeService(t, func(h *framework.TestHarness, service *fakeService) {
		var redirected, echoed Response
		results := runOne(h, func(t *T) {
			t.StartRoutes(get("/", redirect("http://google.com")))
			redirected = t.Get("/")
			echoed = t.Request(http.MethodPut, "/x?y=1", "body", "X-Test", "1")
		})
		require.True(t, results.OK(), "%+v", results.Failures)

		assert.Equal(t, 302, redirected.Status)
		assert.Equal(t, "http://google.com", redirected.Header.Get("Location"))

		var e servicedef.EchoResponse
		require.NoError(t, json.Unmarshal([]byte(echoed.Body), &e))
		assert.Equal(t, "/x", e.Path)
		assert.Equal(t, "/x?y=1", e.OriginalURL)
		assert.Equal(t, http.MethodPut, e.Method)

		require.Len(t, service.created, 1)
		assert.Equal(t, "test", service.created[0].Tag)
		assert.Equal(t, []servicedef.RouteParams{get("/", redirect("http://google.com"))}, service.created[0].Routes)
		assert.Equal(t, 1, service.closed)
	})
}

func TestMissingCapabilitySkips(t *testing.T) {
	withFakeService(t, func(h *framework.TestHarness, service *fakeService) {
		results := runOne(h, func(t *T) {
			t.RequireCapability(servicedef.CapabilityPromiseErrors)
			t.StartRoutes(get("/", send("unreachable")))
		})
		assert.True(t, results.OK())
		assert.Equal(t, 1, results.SkippedCount())
		assert.Empty(t, service.created)
	})
}

func TestFailedAssertionIsRecorded(t *testing.T) {
	withFakeService(t, func(h *framework.TestHarness, service *fakeService) {
		results := runOne(h, func(t *T) {
			t.StartRoutes(get("/", send("x")))
			t.RequireResponse(t.Get("/"), 200, "x")
		})
		assert.False(t, results.OK())
		assert.Equal(t, 1, service.closed)
	})
}

func TestCloseErrorFailsTest(t *testing.T) {
	withFakeService(t, func(h *framework.TestHarness, service *fakeService) {
		service.closeStatus = 500
		results := runOne(h, func(t *T) {
			t.StartRoutes(get("/x", echo()))
			t.RequireEcho(t.Get("/x"))
		})
		assert.False(t, results.OK())
		require.Len(t, results.Failures, 1)
		require.Len(t, results.Failures[0].Errors, 1)
		assert.Contains(t, results.Failures[0].Errors[0].Error(), "error closing app")
		assert.Equal(t, 1, service.closed)
	})
}

func TestAppIsClosedWhenTestFailsImmediately(t *testing.T) {
	withFakeService(t, func(h *framework.TestHarness, service *fakeService) {
		results := runOne(h, func(t *T) {
			t.StartRoutes(get("/", send("x")))
			require.Fail(t, "stop here")
		})
		assert.False(t, results.OK())
		assert.Equal(t, 1, service.closed)
	})
}

func TestResponseKeepsTransferEncodingAndLength(t *testing.T) {
	withFakeService(t, func(h *framework.TestHarness, service *fakeService) {
		var chunked, echoed Response
		results := runOne(h, func(t *T) {
			t.StartRoutes(get("/", echo()))
			chunked = t.Get("/chunked")
			echoed = t.Get("/echo")
		})
		require.True(t, results.OK(), "%+v", results.Failures)

		assert.Equal(t, "ab", chunked.Body)
		assert.Equal(t, []string{"chunked"}, chunked.TransferEncoding)
		assert.Equal(t, int64(-1), chunked.ContentLength)
		assert.Empty(t, chunked.Header.Get("Transfer-Encoding"))

		assert.Empty(t, echoed.TransferEncoding)
		assert.Equal(t, int64(len(echoed.Body)), echoed.ContentLength)
	})
}

func TestOnlyKnownGapsAreCapabilities(t *testing.T) {
	assert.ElementsMatch(t, []string{
		servicedef.CapabilityNamedCaptureGroups,
		servicedef.CapabilityOptionalSegments,
		servicedef.CapabilityRepeatedSegments,
		servicedef.CapabilityPromiseErrors,
	}, AllCapabilities)
}

func TestSendFileRunsWithoutCapabilities(t *testing.T) {
	withFakeService(t, func(h *framework.TestHarness, service *fakeService) {
		results := runOne(h, func(t *T) {
			t.startFileApp(get("/x", sendFile("name.txt", nil)))
			t.RequireEcho(t.Get("/x"))
		})
		assert.True(t, results.OK(), "%+v", results.Failures)
		assert.Zero(t, results.SkippedCount())
		require.Len(t, service.created, 1)
		assert.Equal(t, sendFileFixtures, service.created[0].Files)
	})
}

func TestHandlerShorthands(t *testing.T) {
	assert.Equal(t, ldvalue.String("hi"), send("hi").Body)
	assert.True(t, send(nil).Body.IsNull())
	assert.JSONEq(t, `{"name":"tobi"}`, send(tobi).Body.JSONString())
	assert.Equal(t, ldvalue.NewOptionalInt(201), sendWithStatus(201, "x").Status)
	assert.False(t, send("x").Status.IsDefined())

	f := sendRootedFile("a.txt", map[string]interface{}{"maxAge": 1000})
	assert.Equal(t, servicedef.ActionSendFile, f.Action)
	assert.True(t, f.Root)
	assert.Equal(t, ldvalue.Int(1000), f.Options.GetByKey("maxAge"))

	e := errorHandler(echo())
	assert.True(t, e.ErrorHandler)
	assert.Equal(t, "use", e.Method)

	r := regexpRoute("get", `^/x$`, echo())
	assert.True(t, r.PathRegexp)
}

func TestToValue(t *testing.T) {
	assert.Equal(t, ldvalue.Int(3), toValue(3))
	assert.Equal(t, ldvalue.ArrayOf(ldvalue.String("a"), ldvalue.String("b")), toValue([]string{"a", "b"}))
	assert.JSONEq(t, `{"maxAge":1000,"headers":{"X-A":"1"}}`,
		toValue(map[string]interface{}{"maxAge": 1000, "headers": map[string]string{"X-A": "1"}}).JSONString())
	assert.Panics(t, func() { toValue(func() {}) })
}

func TestHandlerParamsJSON(t *testing.T) {
	data, err := json.Marshal(sendWithStatus(404, "nope"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"send","status":404,"body":"nope","options":null}`, string(data))

	data, err = json.Marshal(next())
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"next","status":null,"body":null,"options":null}`, string(data))
}

package framework

import (
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/launchdarkly/go-test-helpers/v2/httphelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func withHarness(t *testing.T, action func(*TestHarness)) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	h, err := NewTestHarness("localhost", 0, nil)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, h.Close())
		http.DefaultClient.CloseIdleConnections()
	}()
	action(h)
}

func TestMockEndpointReceivesRewrittenPath(t *testing.T) {
	withHarness(t, func(h *TestHarness) {
		handler, requestsCh := httphelpers.RecordingHandler(httphelpers.HandlerWithStatus(202))
		e := h.NewMockEndpoint(handler, "recorder", nil)
		defer e.Close()

		resp, err := http.Post(e.BaseURL()+"/some/subpath?x=1", "text/plain", strings.NewReader("hello"))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, 202, resp.StatusCode)

		r := <-requestsCh
		assert.Equal(t, "/some/subpath", r.Request.URL.Path)
		assert.Equal(t, "x=1", r.Request.URL.RawQuery)
		assert.Equal(t, "hello", string(r.Body))

		info, err := e.AwaitConnection(time.Second)
		require.NoError(t, err)
		assert.Equal(t, "POST", info.Method)
		assert.Equal(t, "/some/subpath", info.Path)
	})
}

func TestMockEndpointPreservesEncodedSlash(t *testing.T) {
	withHarness(t, func(h *TestHarness) {
		var rawPath string
		e := h.NewMockEndpoint(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawPath = r.URL.EscapedPath()
		}), "raw", nil)
		defer e.Close()

		resp, err := http.Get(e.BaseURL() + "/@scope%2fname")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, "/@scope%2fname", rawPath)
	})
}

func TestClosedEndpointReturns404(t *testing.T) {
	withHarness(t, func(h *TestHarness) {
		e := h.NewMockEndpoint(httphelpers.HandlerWithStatus(200), "closing", nil)
		e.Close()

		resp, err := http.Get(e.BaseURL())
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, 404, resp.StatusCode)

		_, err = e.AwaitConnection(time.Millisecond * 10)
		assert.Error(t, err)
	})
}

func TestAwaitConnectionTimesOut(t *testing.T) {
	withHarness(t, func(h *TestHarness) {
		e := h.NewMockEndpoint(httphelpers.HandlerWithStatus(200), "idle", nil)
		defer e.Close()
		_, err := e.AwaitConnection(time.Millisecond * 50)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "timed out")
	})
}

func TestTestServiceEntityLifecycle(t *testing.T) {
	withHarness(t, func(h *TestHarness) {
		var deleted bool
		service := h.NewMockEndpoint(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch {
			case r.Method == "GET" && r.URL.Path == "":
				_, _ = w.Write([]byte(`{"description":"fake","capabilities":["optional-segments"]}`))
			case r.Method == "POST" && r.URL.Path == "":
				w.Header().Set("Location", "/apps/1")
				w.WriteHeader(201)
				_, _ = w.Write([]byte(`{"url":"http://localhost:9999"}`))
			case r.Method == "DELETE" && r.URL.Path == "/apps/1":
				deleted = true
			default:
				w.WriteHeader(404)
			}
		}), "test service", nil)
		defer service.Close()

		require.NoError(t, h.ConnectTestService(service.BaseURL(), time.Second, io.Discard))
		assert.True(t, h.TestServiceHasCapability("optional-segments"))
		assert.False(t, h.TestServiceHasCapability("promise-errors"))
		var missing strings.Builder
		DescribeMissingCapabilities(&missing, h, []string{"optional-segments", "promise-errors"})
		assert.Contains(t, missing.String(), "  promise-errors\n")
		assert.NotContains(t, missing.String(), "optional-segments")

		entity, err := h.NewTestServiceEntity(map[string]string{"tag": "x"}, "app", nil)
		require.NoError(t, err)
		assert.Equal(t, service.BaseURL()+"/apps/1", entity.ResourceURL())

		var created struct {
			URL string `json:"url"`
		}
		require.NoError(t, entity.DecodeCreationResponse(&created))
		assert.Equal(t, "http://localhost:9999", created.URL)

		require.NoError(t, entity.Close())
		assert.True(t, deleted)
	})
}

func TestNewTestServiceEntityWithoutServiceFails(t *testing.T) {
	withHarness(t, func(h *TestHarness) {
		_, err := h.NewTestServiceEntity(map[string]string{}, "app", nil)
		assert.Error(t, err)
	})
}

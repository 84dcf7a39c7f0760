package framework

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const endpointPathPrefix = "/endpoints/"
const shutdownTimeout = time.Second * 5

type TestHarness struct {
	testServiceBaseURL         string
	testHarnessExternalBaseURL string
	testServiceInfo            TestServiceInfo
	endpoints                  map[string]*MockEndpoint
	lastEndpointID             int
	server                     *http.Server
	listener                   net.Listener
	logger                     Logger
	lock                       sync.Mutex
}

// NewTestHarness starts an HTTP listener on the specified port to receive requests for mock
// endpoints. If port is zero, an unused port is chosen; BaseURL reports the actual address.
//
// The listener is accepting connections by the time this function returns.
func NewTestHarness(
	testHarnessExternalHostname string,
	testHarnessPort int,
	debugLogger Logger,
) (*TestHarness, error) {
	if debugLogger == nil {
		debugLogger = NullLogger()
	}

	h := &TestHarness{
		endpoints: make(map[string]*MockEndpoint),
		logger:    debugLogger,
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", testHarnessPort))
	if err != nil {
		return nil, fmt.Errorf("could not start test harness listener: %w", err)
	}
	h.listener = listener
	actualPort := listener.Addr().(*net.TCPAddr).Port
	h.testHarnessExternalBaseURL = fmt.Sprintf("http://%s:%d", testHarnessExternalHostname, actualPort)

	h.server = &http.Server{
		Handler:           http.HandlerFunc(h.serveHTTP),
		ReadHeaderTimeout: httpListenerTimeout,
	}
	go func() {
		if err := h.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Printf("Test harness listener stopped unexpectedly: %s", err)
		}
	}()

	return h, nil
}

const httpListenerTimeout = time.Second * 10

// ConnectTestService verifies that the test service is responding by querying its status
// resource, and remembers the capabilities it reports. Until this is called, the harness has
// no test service and TestServiceHasCapability always returns false.
func (h *TestHarness) ConnectTestService(
	testServiceBaseURL string,
	statusQueryTimeout time.Duration,
	startupOutput io.Writer,
) error {
	info, err := queryTestServiceInfo(testServiceBaseURL, statusQueryTimeout, startupOutput)
	if err != nil {
		return err
	}
	h.lock.Lock()
	h.testServiceBaseURL = strings.TrimSuffix(testServiceBaseURL, "/")
	h.testServiceInfo = info
	h.lock.Unlock()
	return nil
}

// BaseURL returns the externally visible base URL of the harness listener.
func (h *TestHarness) BaseURL() string {
	return h.testHarnessExternalBaseURL
}

func (h *TestHarness) HasTestService() bool {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.testServiceBaseURL != ""
}

func (h *TestHarness) TestServiceInfo() TestServiceInfo {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.testServiceInfo
}

func (h *TestHarness) TestServiceHasCapability(desired string) bool {
	for _, capability := range h.TestServiceInfo().Capabilities {
		if capability == desired {
			return true
		}
	}
	return false
}

// Close stops the harness listener. Any mock endpoints that are still open are closed first,
// which cancels their in-flight requests.
func (h *TestHarness) Close() error {
	h.lock.Lock()
	endpoints := make([]*MockEndpoint, 0, len(h.endpoints))
	for _, e := range h.endpoints {
		endpoints = append(endpoints, e)
	}
	h.lock.Unlock()
	for _, e := range endpoints {
		e.Close()
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.server.Shutdown(ctx)
}

func (h *TestHarness) serveHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method == "HEAD" && req.URL.Path == "/" {
		w.WriteHeader(200) // we use this to test whether our own listener is active yet
		return
	}

	if !strings.HasPrefix(req.URL.Path, endpointPathPrefix) {
		h.logger.Printf("Received request for unrecognized URL path %s", req.URL.Path)
		w.WriteHeader(404)
		return
	}
	path := strings.TrimPrefix(req.URL.Path, endpointPathPrefix)
	var endpointID string
	slashPos := strings.Index(path, "/")
	if slashPos >= 0 {
		endpointID = path[0:slashPos]
		path = path[slashPos:]
	} else {
		endpointID = path
		path = ""
	}

	h.lock.Lock()
	e := h.endpoints[endpointID]
	h.lock.Unlock()
	if e == nil {
		h.logger.Printf("Received request for unrecognized endpoint %s", req.URL.Path)
		w.WriteHeader(404)
		return
	}

	var body []byte
	if req.Body != nil {
		data, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			h.logger.Printf("Unexpected error trying to read request body: %s", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		body = data
	}

	e.lock.Lock()
	if e.closed {
		e.lock.Unlock()
		w.WriteHeader(404)
		return
	}
	ctx, canceller := context.WithCancel(req.Context())
	cancellerPtr := &canceller
	e.cancels = append(e.cancels, cancellerPtr)
	incoming := IncomingRequestInfo{
		Headers: req.Header,
		Method:  req.Method,
		Path:    path,
		Body:    body,
		Context: ctx,
	}
	select { // non-blocking push
	case e.newConns <- incoming:
	default:
		e.logger.Printf("Incoming connection channel was full for %s", req.URL)
	}
	e.lock.Unlock()

	transformedReq := req.WithContext(ctx)
	u := *req.URL
	u.Path = path
	u.RawPath = rawSubpath(req.URL, endpointID)
	transformedReq.URL = &u
	transformedReq.RequestURI = u.RequestURI()
	if body != nil {
		transformedReq.Body = io.NopCloser(bytes.NewBuffer(body))
	}

	e.handler.ServeHTTP(w, transformedReq)

	e.lock.Lock()
	for i, c := range e.cancels {
		if c == cancellerPtr { // can't compare functions with ==, but can compare pointers
			e.cancels = append(e.cancels[:i], e.cancels[i+1:]...)
			break
		}
	}
	e.lock.Unlock()
	canceller()
}

// rawSubpath keeps percent-encoding of the subpath intact, so that a handler can tell the
// difference between "/@scope%2fname" and "/@scope/name".
func rawSubpath(u *url.URL, endpointID string) string {
	return strings.TrimPrefix(u.EscapedPath(), endpointPathPrefix+endpointID)
}

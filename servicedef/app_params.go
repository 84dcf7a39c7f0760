package servicedef

import "gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"

// Capabilities that a test service may report in its status resource. Each one is a behavior
// that some Express-compatible frameworks lack; everything else is always tested.
const (
	CapabilityNamedCaptureGroups = "named-capture-groups"
	CapabilityOptionalSegments   = "optional-segments"
	CapabilityRepeatedSegments   = "repeated-segments"
	CapabilityPromiseErrors      = "promise-errors"
)

// Handler actions. Each corresponds to one call an Express handler makes.
const (
	// ActionSend calls res.send(body), or res.status(status).send(body) if status is set. A null
	// body is passed as null.
	ActionSend = "send"
	// ActionJSON calls res.json(body).
	ActionJSON = "json"
	// ActionSendStatus calls res.sendStatus(status).
	ActionSendStatus = "sendStatus"
	// ActionRedirect calls res.redirect(url), or res.redirect(status, url) if status is set.
	ActionRedirect = "redirect"
	// ActionSendFile calls res.sendFile(path, options). If Root is set, options.root is the
	// app's files directory and path is passed unchanged; otherwise path is made absolute by
	// joining it to that directory.
	ActionSendFile = "sendFile"
	// ActionSet calls res.set(headers) and then next().
	ActionSet = "set"
	// ActionNext calls next().
	ActionNext = "next"
	// ActionNextRoute calls next('route').
	ActionNextRoute = "nextRoute"
	// ActionError calls next(new Error(body)), with err.status set if status is set.
	ActionError = "error"
	// ActionReject returns a rejected promise instead of calling next.
	ActionReject = "reject"
	// ActionEcho responds with EchoResponse as JSON, always with status 200.
	ActionEcho = "echo"
)

// AppParams is the body of the POST request that creates an application in the test service.
type AppParams struct {
	Tag string `json:"tag"`
	// Settings are passed to app.set(name, value), for instance "strict routing" or
	// "json spaces".
	Settings map[string]ldvalue.Value `json:"settings,omitempty"`
	// Files are written to a fresh directory before the app starts, keyed by relative path.
	// Handlers refer to that directory as the root for sendFile.
	Files  map[string]string `json:"files,omitempty"`
	Routes []RouteParams     `json:"routes"`
}

// RouteParams is one app.METHOD(path, ...handlers) or app.use(path, ...handlers) call.
type RouteParams struct {
	// Method is a lowercase HTTP method, "all", or "use".
	Method string `json:"method"`
	Path   string `json:"path"`
	// PathRegexp means Path is a regular expression source, passed as new RegExp(path).
	PathRegexp bool            `json:"pathRegexp,omitempty"`
	Handlers   []HandlerParams `json:"handlers"`
	// ErrorHandler registers the handlers with the four-argument error handler signature.
	ErrorHandler bool `json:"errorHandler,omitempty"`
}

type HandlerParams struct {
	Action  string              `json:"action"`
	Status  ldvalue.OptionalInt `json:"status,omitempty"`
	Body    ldvalue.Value       `json:"body"`
	URL     string              `json:"url,omitempty"`
	Path    string              `json:"path,omitempty"`
	Root    bool                `json:"root,omitempty"`
	Options ldvalue.Value       `json:"options"`
	Headers map[string]string   `json:"headers,omitempty"`
}

// AppCreated is the body of the response to a successful POST.
type AppCreated struct {
	URL string `json:"url"`
}

// EchoResponse is what the echo action responds with. ErrorMessage is filled in when the
// echo handler is an error handler.
type EchoResponse struct {
	Params       map[string]ldvalue.Value `json:"params"`
	Query        map[string]ldvalue.Value `json:"query"`
	Path         string                   `json:"path"`
	BaseURL      string                   `json:"baseUrl"`
	OriginalURL  string                   `json:"originalUrl"`
	Method       string                   `json:"method"`
	ErrorMessage string                   `json:"errorMessage,omitempty"`
	ErrorStatus  ldvalue.OptionalInt      `json:"errorStatus,omitempty"`
}

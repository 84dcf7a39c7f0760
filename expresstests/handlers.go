package expresstests

import (
	"encoding/json"

	"github.com/jsconformance/contract-tests/servicedef"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

// Shorthands for building applications. These are deliberately thin: each one is a single
// route or a single handler action.

func get(path string, handlers ...servicedef.HandlerParams) servicedef.RouteParams {
	return route("get", path, handlers...)
}

func use(path string, handlers ...servicedef.HandlerParams) servicedef.RouteParams {
	return route("use", path, handlers...)
}

func route(method, path string, handlers ...servicedef.HandlerParams) servicedef.RouteParams {
	return servicedef.RouteParams{Method: method, Path: path, Handlers: handlers}
}

func regexpRoute(method, pattern string, handlers ...servicedef.HandlerParams) servicedef.RouteParams {
	r := route(method, pattern, handlers...)
	r.PathRegexp = true
	return r
}

func errorHandler(handlers ...servicedef.HandlerParams) servicedef.RouteParams {
	r := use("/", handlers...)
	r.ErrorHandler = true
	return r
}

// send responds with res.send(body). Strings are sent as strings, nil as null, and anything
// else as the JSON value it marshals to.
func send(body interface{}) servicedef.HandlerParams {
	return servicedef.HandlerParams{Action: servicedef.ActionSend, Body: toValue(body)}
}

func sendWithStatus(status int, body interface{}) servicedef.HandlerParams {
	h := send(body)
	h.Status = ldvalue.NewOptionalInt(status)
	return h
}

func jsonBody(body interface{}) servicedef.HandlerParams {
	return servicedef.HandlerParams{Action: servicedef.ActionJSON, Body: toValue(body)}
}

func sendStatus(status int) servicedef.HandlerParams {
	return servicedef.HandlerParams{Action: servicedef.ActionSendStatus, Status: ldvalue.NewOptionalInt(status)}
}

func redirect(url string) servicedef.HandlerParams {
	return servicedef.HandlerParams{Action: servicedef.ActionRedirect, URL: url}
}

func redirectWithStatus(status int, url string) servicedef.HandlerParams {
	h := redirect(url)
	h.Status = ldvalue.NewOptionalInt(status)
	return h
}

func sendFile(path string, options map[string]interface{}) servicedef.HandlerParams {
	h := servicedef.HandlerParams{Action: servicedef.ActionSendFile, Path: path}
	if options != nil {
		h.Options = toValue(options)
	}
	return h
}

// sendRootedFile passes path unchanged with the files directory as the root option.
func sendRootedFile(path string, options map[string]interface{}) servicedef.HandlerParams {
	h := sendFile(path, options)
	h.Root = true
	return h
}

func setHeaders(headers map[string]string) servicedef.HandlerParams {
	return servicedef.HandlerParams{Action: servicedef.ActionSet, Headers: headers}
}

func next() servicedef.HandlerParams {
	return servicedef.HandlerParams{Action: servicedef.ActionNext}
}

func nextRoute() servicedef.HandlerParams {
	return servicedef.HandlerParams{Action: servicedef.ActionNextRoute}
}

func fail(message string) servicedef.HandlerParams {
	return servicedef.HandlerParams{Action: servicedef.ActionError, Body: ldvalue.String(message)}
}

func failWithStatus(status int, message string) servicedef.HandlerParams {
	h := fail(message)
	h.Status = ldvalue.NewOptionalInt(status)
	return h
}

func reject(message string) servicedef.HandlerParams {
	return servicedef.HandlerParams{Action: servicedef.ActionReject, Body: ldvalue.String(message)}
}

func echo() servicedef.HandlerParams {
	return servicedef.HandlerParams{Action: servicedef.ActionEcho}
}

func toValue(v interface{}) ldvalue.Value {
	switch x := v.(type) {
	case nil:
		return ldvalue.Null()
	case string:
		return ldvalue.String(x)
	case ldvalue.Value:
		return x
	default:
		data, err := json.Marshal(v)
		if err != nil {
			panic(err)
		}
		return ldvalue.Parse(data)
	}
}

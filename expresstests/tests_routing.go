package expresstests

import (
	"net/http"

	"github.com/jsconformance/contract-tests/servicedef"

	"github.com/stretchr/testify/assert"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

func DoRoutingTests(t *T) {
	t.Run("static path", func(t *T) {
		t.StartRoutes(get("/users", send("users")))

		t.RequireResponse(t.Get("/users"), 200, "users")
	})

	t.Run("unmatched path is a 404", func(t *T) {
		t.StartRoutes(get("/users", send("users")))

		resp := t.Get("/other")
		assert.Equal(t, 404, resp.Status)
		assert.Contains(t, resp.Body, "Cannot GET /other")
	})

	t.Run("method must match", func(t *T) {
		t.StartRoutes(get("/users", send("users")))

		resp := t.Request(http.MethodPost, "/users", "")
		assert.Equal(t, 404, resp.Status)
		assert.Contains(t, resp.Body, "Cannot POST /users")
	})

	t.Run("path matching is case-insensitive by default", func(t *T) {
		t.StartRoutes(get("/USER", send("tj")))

		t.RequireResponse(t.Get("/user"), 200, "tj")
	})

	t.Run("case sensitive routing", func(t *T) {
		t.StartApp(servicedef.AppParams{
			Settings: map[string]ldvalue.Value{"case sensitive routing": ldvalue.Bool(true)},
			Routes:   []servicedef.RouteParams{get("/USER", send("tj"))},
		})

		t.RequireResponse(t.Get("/USER"), 200, "tj")
		assert.Equal(t, 404, t.Get("/user").Status)
	})

	t.Run("trailing slash is optional by default", func(t *T) {
		t.StartRoutes(get("/user", send("tj")))

		t.RequireResponse(t.Get("/user/"), 200, "tj")
	})

	t.Run("strict routing", func(t *T) {
		t.StartApp(servicedef.AppParams{
			Settings: map[string]ldvalue.Value{"strict routing": ldvalue.Bool(true)},
			Routes:   []servicedef.RouteParams{get("/user/", send("tj"))},
		})

		t.RequireResponse(t.Get("/user/"), 200, "tj")
		assert.Equal(t, 404, t.Get("/user").Status)
	})

	t.Run("params", func(t *T) {
		t.StartRoutes(get("/user/:name", echo()))

		echoed := t.RequireEcho(t.Get("/user/tj"))
		assert.Equal(t, map[string]ldvalue.Value{"name": ldvalue.String("tj")}, echoed.Params)
	})

	t.Run("multiple params", func(t *T) {
		t.StartRoutes(get("/user/:uid/posts/:pid", echo()))

		echoed := t.RequireEcho(t.Get("/user/tj/posts/42"))
		assert.Equal(t, map[string]ldvalue.Value{
			"uid": ldvalue.String("tj"),
			"pid": ldvalue.String("42"),
		}, echoed.Params)
	})

	t.Run("params are decoded", func(t *T) {
		t.StartRoutes(get("/files/:name", echo()))

		echoed := t.RequireEcho(t.Get("/files/foo%20bar%2Fbaz"))
		assert.Equal(t, ldvalue.String("foo bar/baz"), echoed.Params["name"])
	})

	t.Run("query string", func(t *T) {
		t.StartRoutes(get("/search", echo()))

		echoed := t.RequireEcho(t.Get("/search?q=tobi&page=2"))
		assert.Equal(t, ldvalue.String("tobi"), echoed.Query["q"])
		assert.Equal(t, ldvalue.String("2"), echoed.Query["page"])
		assert.Equal(t, "/search", echoed.Path)
		assert.Equal(t, "/search?q=tobi&page=2", echoed.OriginalURL)
	})

	t.Run("regexp route", func(t *T) {
		t.StartRoutes(regexpRoute("get", `^\/commits\/(\w+)(?:\.\.(\w+))?$`, echo()))

		echoed := t.RequireEcho(t.Get("/commits/71dbb9c..4c084f9"))
		assert.Equal(t, ldvalue.String("71dbb9c"), echoed.Params["0"])
		assert.Equal(t, ldvalue.String("4c084f9"), echoed.Params["1"])
		assert.Equal(t, 404, t.Get("/commits").Status)
	})

	t.Run("next passes to the following handler", func(t *T) {
		t.StartRoutes(get("/", next(), send("second")))

		t.RequireResponse(t.Get("/"), 200, "second")
	})

	t.Run("next('route') skips the rest of the route", func(t *T) {
		t.StartRoutes(
			get("/user/:id", nextRoute(), send("skipped")),
			get("/user/:id", send("next route")),
		)

		t.RequireResponse(t.Get("/user/1"), 200, "next route")
	})

	t.Run("app.all matches every method", func(t *T) {
		t.StartRoutes(route("all", "/anything", echo()))

		for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch} {
			echoed := t.RequireEcho(t.Request(method, "/anything", ""))
			assert.Equal(t, method, echoed.Method)
		}
	})

	t.Run("HEAD is served by the GET route without a body", func(t *T) {
		t.StartRoutes(get("/", send("tobi")))

		resp := t.Head("/")
		t.RequireResponse(resp, 200, "")
		t.RequireHeader(resp, "Content-Length", "4")
		t.RequireHeader(resp, "Content-Type", "text/html; charset=utf-8")
	})

	t.Run("mounted middleware sees a stripped path", func(t *T) {
		t.StartRoutes(use("/blog", echo()))

		echoed := t.RequireEcho(t.Get("/blog/post/1"))
		assert.Equal(t, "/blog", echoed.BaseURL)
		assert.Equal(t, "/post/1", echoed.Path)
		assert.Equal(t, "/blog/post/1", echoed.OriginalURL)
	})

	t.Run("middleware runs before routes in order", func(t *T) {
		t.StartRoutes(
			use("/", setHeaders(map[string]string{"X-Middleware": "1"})),
			get("/", send("ok")),
		)

		resp := t.Get("/")
		t.RequireResponse(resp, 200, "ok")
		t.RequireHeader(resp, "X-Middleware", "1")
	})
}

func DoErrorHandlingTests(t *T) {
	t.Run("next(err) reaches the error handler", func(t *T) {
		t.StartRoutes(get("/", fail("boom")), errorHandler(echo()))

		echoed := t.RequireEcho(t.Get("/"))
		assert.Equal(t, "boom", echoed.ErrorMessage)
	})

	t.Run("unhandled error is a 500", func(t *T) {
		t.StartRoutes(get("/", fail("boom")))

		assert.Equal(t, 500, t.Get("/").Status)
	})

	t.Run("error status is used by the default handler", func(t *T) {
		t.StartRoutes(get("/", failWithStatus(403, "forbidden")))

		assert.Equal(t, 403, t.Get("/").Status)
	})

	t.Run("error handler can respond", func(t *T) {
		t.StartRoutes(get("/", fail("boom")), errorHandler(sendWithStatus(503, "handled")))

		t.RequireResponse(t.Get("/"), 503, "handled")
	})

	t.Run("error skips regular handlers", func(t *T) {
		t.StartRoutes(
			get("/", fail("boom")),
			get("/", send("not reached")),
			errorHandler(sendWithStatus(500, "handled")),
		)

		t.RequireResponse(t.Get("/"), 500, "handled")
	})
}

// The following behaviors are not supported by every framework that claims Express
// compatibility. A test service that does not declare the capability has them skipped.
func DoKnownGapTests(t *T) {
	t.Run("named capture groups", func(t *T) {
		t.RequireCapability(servicedef.CapabilityNamedCaptureGroups)
		t.StartRoutes(regexpRoute("get", `^\/user\/(?<id>\d+)$`, echo()))

		echoed := t.RequireEcho(t.Get("/user/42"))
		assert.Equal(t, ldvalue.String("42"), echoed.Params["id"])
	})

	t.Run("optional segments", func(t *T) {
		t.RequireCapability(servicedef.CapabilityOptionalSegments)
		t.StartRoutes(get("/user/:id?", echo()))

		echoed := t.RequireEcho(t.Get("/user/42"))
		assert.Equal(t, ldvalue.String("42"), echoed.Params["id"])
		echoed = t.RequireEcho(t.Get("/user"))
		assert.False(t, echoed.Params["id"].IsString())
	})

	t.Run("repeated segments", func(t *T) {
		t.RequireCapability(servicedef.CapabilityRepeatedSegments)
		t.StartRoutes(get("/files/:path+", echo()))

		echoed := t.RequireEcho(t.Get("/files/a/b/c"))
		assert.Equal(t, ldvalue.String("a/b/c"), echoed.Params["path"])
		assert.Equal(t, 404, t.Get("/files").Status)
	})

	t.Run("rejected promise reaches the error handler", func(t *T) {
		t.RequireCapability(servicedef.CapabilityPromiseErrors)
		t.StartRoutes(get("/", reject("async boom")), errorHandler(echo()))

		echoed := t.RequireEcho(t.Get("/"))
		assert.Equal(t, "async boom", echoed.ErrorMessage)
	})
}

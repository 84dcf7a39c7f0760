package expresstests

import (
	"strconv"

	"github.com/jsconformance/contract-tests/servicedef"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

const (
	htmlContentType  = "text/html; charset=utf-8"
	jsonContentType  = "application/json; charset=utf-8"
	plainContentType = "text/plain; charset=utf-8"
)

var tobi = map[string]interface{}{"name": "tobi"}

func DoResponseTests(t *T) {
	t.Run("send(string) is HTML", func(t *T) {
		t.StartRoutes(get("/", send("<p>hey</p>")))

		resp := t.Get("/")
		t.RequireResponse(resp, 200, "<p>hey</p>")
		t.RequireHeader(resp, "Content-Type", htmlContentType)
		t.RequireHeader(resp, "Content-Length", "10")
		assert.Equal(t, int64(10), resp.ContentLength)
		assert.Empty(t, resp.TransferEncoding)
	})

	t.Run("send(object) is JSON", func(t *T) {
		t.StartRoutes(get("/", send(tobi)))

		resp := t.Get("/")
		t.RequireResponse(resp, 200, `{"name":"tobi"}`)
		t.RequireHeader(resp, "Content-Type", jsonContentType)
	})

	t.Run("send(null) is empty", func(t *T) {
		t.StartRoutes(get("/", send(nil)))

		resp := t.Get("/")
		t.RequireResponse(resp, 200, "")
		t.RequireHeader(resp, "Content-Length", "0")
	})

	t.Run("send keeps an explicit Content-Type", func(t *T) {
		t.StartRoutes(get("/",
			setHeaders(map[string]string{"Content-Type": "text/plain"}),
			send("hey")))

		resp := t.Get("/")
		t.RequireResponse(resp, 200, "hey")
		t.RequireHeader(resp, "Content-Type", plainContentType)
	})

	t.Run("status().send()", func(t *T) {
		t.StartRoutes(get("/", sendWithStatus(201, "created")))

		t.RequireResponse(t.Get("/"), 201, "created")
	})

	for _, status := range []int{204, 304} {
		status := status
		t.Run("status "+strconv.Itoa(status)+" strips the body", func(t *T) {
			t.StartRoutes(get("/", sendWithStatus(status, "tobi")))

			resp := t.Get("/")
			t.RequireResponse(resp, status, "")
			t.RequireNoHeader(resp, "Content-Type")
			t.RequireNoHeader(resp, "Content-Length")
			assert.Empty(t, resp.TransferEncoding, "Transfer-Encoding")
			assert.LessOrEqual(t, resp.ContentLength, int64(0))
		})
	}

	t.Run("json", func(t *T) {
		t.StartRoutes(get("/", jsonBody(tobi)))

		resp := t.Get("/")
		t.RequireResponse(resp, 200, `{"name":"tobi"}`)
		t.RequireHeader(resp, "Content-Type", jsonContentType)
	})

	t.Run("json(null)", func(t *T) {
		t.StartRoutes(get("/", jsonBody(nil)))

		resp := t.Get("/")
		t.RequireResponse(resp, 200, "null")
		t.RequireHeader(resp, "Content-Type", jsonContentType)
	})

	t.Run("json spaces setting", func(t *T) {
		t.StartApp(servicedef.AppParams{
			Settings: map[string]ldvalue.Value{"json spaces": ldvalue.Int(2)},
			Routes:   []servicedef.RouteParams{get("/", jsonBody(tobi))},
		})

		t.RequireResponse(t.Get("/"), 200, "{\n  \"name\": \"tobi\"\n}")
	})

	t.Run("sendStatus", func(t *T) {
		t.StartRoutes(get("/missing", sendStatus(404)), get("/created", sendStatus(201)))

		resp := t.Get("/missing")
		t.RequireResponse(resp, 404, "Not Found")
		t.RequireHeader(resp, "Content-Type", plainContentType)
		t.RequireResponse(t.Get("/created"), 201, "Created")
	})

	t.Run("set", func(t *T) {
		t.StartRoutes(get("/",
			setHeaders(map[string]string{"X-Foo": "bar", "X-Number": "42"}),
			send("ok")))

		resp := t.Get("/")
		t.RequireHeader(resp, "X-Foo", "bar")
		t.RequireHeader(resp, "X-Number", "42")
	})

	t.Run("ETag and conditional GET", func(t *T) {
		t.StartRoutes(get("/", send("hello, world")))

		resp := t.Get("/")
		t.RequireResponse(resp, 200, "hello, world")
		etag := resp.Header.Get("ETag")
		require.NotEmpty(t, etag)
		assert.Regexp(t, `^W/"[0-9a-f]+-.+"$`, etag)

		again := t.Get("/")
		assert.Equal(t, etag, again.Header.Get("ETag"), "ETag should be stable")

		notModified := t.Get("/", "If-None-Match", etag)
		t.RequireResponse(notModified, 304, "")
		t.RequireNoHeader(notModified, "Content-Type")
	})

	t.Run("ETag differs when the body does", func(t *T) {
		t.StartRoutes(get("/a", send("one")), get("/b", send("two")))

		assert.NotEqual(t, t.Get("/a").Header.Get("ETag"), t.Get("/b").Header.Get("ETag"))
	})
}

package expresstests

import (
	"github.com/jsconformance/contract-tests/servicedef"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sendFileFixtures = map[string]string{
	"name.txt":        "tobi",
	"todo.html":       "<p>todo</p>",
	"user.json":       `{"name":"tobi"}`,
	"nums.txt":        "123456789",
	".name":           "loki",
	"pets/names.txt":  "tobi\nloki\njane\n",
	"pets/.secret/id": "x",
}

func (t *T) startFileApp(routes ...servicedef.RouteParams) {
	t.StartApp(servicedef.AppParams{Files: sendFileFixtures, Routes: routes})
}

func DoSendFileTests(t *T) {
	contentTypes := map[string]string{
		"name.txt":  plainContentType,
		"todo.html": htmlContentType,
		"user.json": jsonContentType,
	}
	for file, contentType := range contentTypes {
		file, contentType := file, contentType
		t.Run("content and type of "+file, func(t *T) {
			t.startFileApp(get("/", sendFile(file, nil)))

			resp := t.Get("/")
			t.RequireResponse(resp, 200, sendFileFixtures[file])
			t.RequireHeader(resp, "Content-Type", contentType)
		})
	}

	t.Run("missing file is a 404", func(t *T) {
		t.startFileApp(get("/", sendFile("does-not-exist.txt", nil)))

		assert.Equal(t, 404, t.Get("/").Status)
	})

	t.Run("root option", func(t *T) {
		t.startFileApp(get("/", sendRootedFile("pets/names.txt", nil)))

		t.RequireResponse(t.Get("/"), 200, sendFileFixtures["pets/names.txt"])
	})

	t.Run("root option refuses traversal", func(t *T) {
		t.startFileApp(get("/", sendRootedFile("pets/../../name.txt", nil)))

		assert.Equal(t, 403, t.Get("/").Status)
	})

	t.Run("dotfiles are ignored by default", func(t *T) {
		t.startFileApp(
			get("/file", sendRootedFile(".name", nil)),
			get("/dir", sendRootedFile("pets/.secret/id", nil)),
		)

		assert.Equal(t, 404, t.Get("/file").Status)
		assert.Equal(t, 404, t.Get("/dir").Status)
	})

	t.Run("dotfiles allow", func(t *T) {
		t.startFileApp(get("/", sendRootedFile(".name", map[string]interface{}{"dotfiles": "allow"})))

		t.RequireResponse(t.Get("/"), 200, "loki")
	})

	t.Run("headers option", func(t *T) {
		t.startFileApp(get("/", sendFile("name.txt", map[string]interface{}{
			"headers": map[string]string{"X-Success": "yes", "X-Other": "ok"},
		})))

		resp := t.Get("/")
		t.RequireResponse(resp, 200, "tobi")
		t.RequireHeader(resp, "X-Success", "yes")
		t.RequireHeader(resp, "X-Other", "ok")
	})

	t.Run("maxAge option", func(t *T) {
		t.startFileApp(get("/", sendFile("name.txt", map[string]interface{}{"maxAge": 60000})))

		t.RequireHeader(t.Get("/"), "Cache-Control", "public, max-age=60")
	})

	t.Run("default Cache-Control", func(t *T) {
		t.startFileApp(get("/", sendFile("name.txt", nil)))

		t.RequireHeader(t.Get("/"), "Cache-Control", "public, max-age=0")
	})

	t.Run("range request", func(t *T) {
		t.startFileApp(get("/", sendFile("nums.txt", nil)))

		resp := t.Get("/", "Range", "bytes=0-4")
		t.RequireResponse(resp, 206, "12345")
		t.RequireHeader(resp, "Content-Range", "bytes 0-4/9")
		t.RequireHeader(resp, "Accept-Ranges", "bytes")
	})

	t.Run("suffix range", func(t *T) {
		t.startFileApp(get("/", sendFile("nums.txt", nil)))

		resp := t.Get("/", "Range", "bytes=-3")
		t.RequireResponse(resp, 206, "789")
		t.RequireHeader(resp, "Content-Range", "bytes 6-8/9")
	})

	t.Run("unsatisfiable range", func(t *T) {
		t.startFileApp(get("/", sendFile("nums.txt", nil)))

		resp := t.Get("/", "Range", "bytes=9-50")
		assert.Equal(t, 416, resp.Status)
		t.RequireHeader(resp, "Content-Range", "bytes */9")
	})

	t.Run("conditional GET", func(t *T) {
		t.startFileApp(get("/", sendFile("name.txt", nil)))

		first := t.Get("/")
		t.RequireResponse(first, 200, "tobi")
		etag := first.Header.Get("ETag")
		require.NotEmpty(t, etag)
		require.NotEmpty(t, first.Header.Get("Last-Modified"))

		t.RequireResponse(t.Get("/", "If-None-Match", etag), 304, "")
		t.RequireResponse(t.Get("/", "If-Modified-Since", first.Header.Get("Last-Modified")), 304, "")
	})
}

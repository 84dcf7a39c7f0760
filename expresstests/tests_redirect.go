package expresstests

import (
	"github.com/stretchr/testify/assert"
)

func DoRedirectTests(t *T) {
	t.Run("default status is 302", func(t *T) {
		t.StartRoutes(get("/", redirect("http://google.com")))

		resp := t.Get("/")
		assert.Equal(t, 302, resp.Status)
		t.RequireHeader(resp, "Location", "http://google.com")
	})

	t.Run("explicit status", func(t *T) {
		t.StartRoutes(get("/", redirectWithStatus(303, "http://google.com")))

		resp := t.Get("/")
		assert.Equal(t, 303, resp.Status)
		t.RequireHeader(resp, "Location", "http://google.com")
	})

	t.Run("relative URL", func(t *T) {
		t.StartRoutes(get("/", redirect("/login")))

		resp := t.Get("/")
		assert.Equal(t, 302, resp.Status)
		t.RequireHeader(resp, "Location", "/login")
	})

	t.Run("Location is encoded", func(t *T) {
		t.StartRoutes(get("/", redirect(`http://example.com/?param=<script>alert("hello")</script>`)))

		resp := t.Get("/")
		assert.Equal(t, 302, resp.Status)
		t.RequireHeader(resp, "Location", "http://example.com/?param=%3Cscript%3Ealert(%22hello%22)%3C/script%3E")
	})

	t.Run("already encoded Location is kept", func(t *T) {
		t.StartRoutes(get("/", redirect("http://example.com/?q=a%20b")))

		t.RequireHeader(t.Get("/"), "Location", "http://example.com/?q=a%20b")
	})

	t.Run("HTML body when accepted", func(t *T) {
		t.StartRoutes(get("/", redirect("http://google.com")))

		resp := t.Get("/", "Accept", "text/html")
		assert.Equal(t, 302, resp.Status)
		t.RequireHeader(resp, "Content-Type", htmlContentType)
		assert.Contains(t, resp.Body, "Redirecting to")
		assert.Contains(t, resp.Body, "http://google.com")
	})

	t.Run("HTML body is escaped", func(t *T) {
		t.StartRoutes(get("/", redirect("<la'me>")))

		resp := t.Get("/", "Accept", "text/html")
		assert.Equal(t, 302, resp.Status)
		assert.NotContains(t, resp.Body, "<la'me>")
	})

	t.Run("plain text body when accepted", func(t *T) {
		t.StartRoutes(get("/", redirect("http://google.com")))

		resp := t.Get("/", "Accept", "text/plain, */*")
		assert.Equal(t, 302, resp.Status)
		t.RequireHeader(resp, "Content-Type", plainContentType)
		assert.Contains(t, resp.Body, "Redirecting to http://google.com")
	})

	t.Run("empty body when nothing acceptable", func(t *T) {
		t.StartRoutes(get("/", redirect("http://google.com")))

		resp := t.Get("/", "Accept", "application/octet-stream")
		t.RequireResponse(resp, 302, "")
		t.RequireHeader(resp, "Location", "http://google.com")
	})

	t.Run("HEAD has no body", func(t *T) {
		t.StartRoutes(get("/", redirect("http://google.com")))

		resp := t.Head("/", "Accept", "text/html")
		t.RequireResponse(resp, 302, "")
		t.RequireHeader(resp, "Location", "http://google.com")
	})
}

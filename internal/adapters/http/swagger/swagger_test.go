package swagger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/smartystreets/goconvey/convey"
)

func serve(mux *http.ServeMux, method, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, http.NoBody)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestDocsRoutes(t *testing.T) {
	convey.Convey("Given a mux with the docs routes", t, func() {
		mux := http.NewServeMux()
		Register(context.Background(), mux)

		convey.Convey("When the spec is fetched", func() {
			w := serve(mux, http.MethodGet, "/openapi.yaml", nil)

			convey.Convey("Then it should list the log and session endpoints", func() {
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(w.Header().Get("Content-Type"), convey.ShouldEqual, "application/yaml; charset=utf-8")
				convey.So(w.Body.String(), convey.ShouldContainSubstring, "/api/log:")
				convey.So(w.Body.String(), convey.ShouldContainSubstring, "/api/logs:")
				convey.So(w.Body.String(), convey.ShouldContainSubstring, "/api/session:")
			})

			convey.Convey("Then a revalidation with its ETag should be answered with 304", func() {
				etag := w.Header().Get("ETag")
				convey.So(etag, convey.ShouldNotBeEmpty)
				again := serve(mux, http.MethodGet, "/openapi.yaml", http.Header{"If-None-Match": {etag}})
				convey.So(again.Code, convey.ShouldEqual, http.StatusNotModified)
				convey.So(again.Body.Len(), convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When the viewer page is requested", func() {
			w := serve(mux, http.MethodGet, "/api-docs", nil)

			convey.Convey("Then it should load ReDoc against the embedded spec", func() {
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(w.Header().Get("Content-Type"), convey.ShouldEqual, "text/html; charset=utf-8")
				convey.So(w.Body.String(), convey.ShouldContainSubstring, "redoc-container")
				convey.So(w.Body.String(), convey.ShouldContainSubstring, "/openapi.yaml")
			})
		})

		convey.Convey("When a docs route is posted to", func() {
			w := serve(mux, http.MethodPost, "/api-docs", nil)

			convey.Convey("Then it should be rejected", func() {
				convey.So(w.Code, convey.ShouldEqual, http.StatusMethodNotAllowed)
				convey.So(w.Header().Get("Allow"), convey.ShouldEqual, "GET, HEAD")
			})
		})
	})

	convey.Convey("Given a nil mux", t, func() {
		convey.So(func() { Register(context.Background(), nil) }, convey.ShouldPanic)
	})
}

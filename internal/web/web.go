// Package web serves the embedded single-page dashboard. All charting
// happens client-side against the JSON API.
package web

import (
	"embed"
	"net/http"

	"github.com/labstack/echo/v4"
)

//go:embed static
var assets embed.FS

// Register mounts the dashboard page at /.
func Register(e *echo.Echo) {
	e.GET("/", func(c echo.Context) error {
		page, err := assets.ReadFile("static/index.html")
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "dashboard page missing")
		}
		return c.HTMLBlob(http.StatusOK, page)
	})
}

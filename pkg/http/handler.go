package http

import "github.com/labstack/echo/v4"

// Handler mounts routes on the Echo instance. The server itself stays
// route-agnostic; wiring decides what gets served.
type Handler interface {
	RegisterRoutes(e *echo.Echo)
}

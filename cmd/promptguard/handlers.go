package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

type GenericError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type GenericStatus struct {
	Daemon  string `json:"daemon"`
	Status  string `json:"status"`
	Message string `json:"msg,omitempty"`
}

type EvaluateRequest struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

func (srv *Server) HandleEvaluate(c echo.Context) error {
	ctx := c.Request().Context()

	var req EvaluateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, GenericError{
			Error:   "InvalidRequest",
			Message: fmt.Sprintf("%s", err),
		})
	}
	if req.UserID == "" {
		return c.JSON(http.StatusBadRequest, GenericError{
			Error:   "InvalidRequest",
			Message: "user_id is required",
		})
	}

	v, err := srv.gate.Evaluate(ctx, req.UserID, req.Text, time.Now(), srv.settings.Current())
	if err != nil {
		// never admit when state can't be read or written; the error itself was logged by the gate
		return c.JSON(http.StatusServiceUnavailable, v)
	}
	return c.JSON(http.StatusOK, v)
}

func (srv *Server) HandleGetUser(c echo.Context) error {
	ctx := c.Request().Context()

	rec, err := srv.gate.Inspect(ctx, c.Param("userID"))
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, GenericError{
			Error:   "LedgerUnavailable",
			Message: "user state could not be loaded",
		})
	}
	return c.JSON(http.StatusOK, rec)
}

func (srv *Server) errorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	var errorMessage string
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		errorMessage = fmt.Sprintf("%s", he.Message)
	}
	if code >= 500 {
		srv.logger.Warn("promptguard-http-internal-error", "err", err)
	}
	c.JSON(code, GenericStatus{Status: "error", Daemon: "promptguard", Message: errorMessage})
}

func (srv *Server) HandleHealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, GenericStatus{Status: "ok", Daemon: "promptguard"})
}

package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/datallboy/newsflow/internal/engine"
	"github.com/datallboy/newsflow/internal/store"
	"github.com/labstack/echo/v5"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type AddedResponse struct {
	ID    int64  `json:"id"`
	SID   string `json:"sid"`
	Name  string `json:"name"`
	Files int    `json:"files"`
}

type AddServerRequest struct {
	Name        string `json:"name"`
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	TLS         bool   `json:"tls"`
	Connections int    `json:"connections"`
	Priority    string `json:"priority"`
}

type SendRequest struct {
	Group string   `json:"group"`
	Lines []string `json:"lines"`
}

type SendResponse struct {
	Response string `json:"response"`
}

func fail(c *echo.Context, code int, err error) error {
	return c.JSON(code, ErrorResponse{Error: err.Error()})
}

// errorStatus maps engine and store errors onto HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, engine.ErrNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrNoServers), errors.Is(err, engine.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, engine.ErrPaused):
		return http.StatusConflict
	}
	return http.StatusBadRequest
}

func paramID(c *echo.Context) (int64, error) {
	return strconv.ParseInt(c.Param("id"), 10, 64)
}

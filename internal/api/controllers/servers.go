package controllers

import (
	"net/http"

	"github.com/datallboy/newsflow/internal/app"
	"github.com/datallboy/newsflow/internal/domain"
	"github.com/labstack/echo/v5"
)

// ServerController exposes the server registry. Add and remove change the
// running engine only, the config file is left alone.
type ServerController struct {
	App *app.Context
}

func (ctrl *ServerController) List(c *echo.Context) error {
	return c.JSON(http.StatusOK, ctrl.App.Engine.Status().Servers)
}

func (ctrl *ServerController) Get(c *echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, err)
	}
	snap, ok := ctrl.App.Engine.ServerStatus(id)
	if !ok {
		return c.NoContent(http.StatusNotFound)
	}
	return c.JSON(http.StatusOK, snap)
}

func (ctrl *ServerController) Add(c *echo.Context) error {
	var req AddServerRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, err)
	}
	prio, err := domain.ParsePriority(req.Priority)
	if err != nil {
		return fail(c, http.StatusBadRequest, err)
	}
	cfg := domain.ServerConfig{
		Name:        req.Name,
		Host:        req.Host,
		Port:        req.Port,
		Username:    req.Username,
		Password:    req.Password,
		TLS:         req.TLS,
		Connections: req.Connections,
		Priority:    prio,
	}
	if cfg.Port == 0 {
		cfg.Port = 119
		if cfg.TLS {
			cfg.Port = 563
		}
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Host
	}

	id, err := ctrl.App.Engine.AddServer(cfg)
	if err != nil {
		return fail(c, errorStatus(err), err)
	}
	snap, _ := ctrl.App.Engine.ServerStatus(id)
	return c.JSON(http.StatusCreated, snap)
}

func (ctrl *ServerController) Remove(c *echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, err)
	}
	if err := ctrl.App.Engine.RemoveServer(id); err != nil {
		return fail(c, errorStatus(err), err)
	}
	return c.NoContent(http.StatusNoContent)
}

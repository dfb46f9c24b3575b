package controllers

import (
	"net/http"
	"strconv"

	"github.com/datallboy/newsflow/internal/app"
	"github.com/datallboy/newsflow/internal/store"
	"github.com/labstack/echo/v5"
)

type HistoryController struct {
	App *app.Context
}

func (ctrl *HistoryController) List(c *echo.Context) error {
	if ctrl.App.History == nil {
		return c.JSON(http.StatusOK, []store.Record{})
	}
	limit := 50
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fail(c, http.StatusBadRequest, err)
		}
		limit = n
	}
	records, err := ctrl.App.History.ListRecords(c.Request().Context(), limit)
	if err != nil {
		return fail(c, http.StatusInternalServerError, err)
	}
	if records == nil {
		records = []store.Record{}
	}
	return c.JSON(http.StatusOK, records)
}

func (ctrl *HistoryController) Get(c *echo.Context) error {
	if ctrl.App.History == nil {
		return c.NoContent(http.StatusNotFound)
	}
	r, err := ctrl.App.History.GetRecord(c.Request().Context(), c.Param("sid"))
	if err != nil {
		return fail(c, errorStatus(err), err)
	}
	return c.JSON(http.StatusOK, r)
}

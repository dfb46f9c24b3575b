package controllers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/datallboy/newsflow/internal/app"
	"github.com/datallboy/newsflow/internal/nzb"
	"github.com/labstack/echo/v5"
)

type QueueController struct {
	App *app.Context
}

// List returns every slot with the aggregate speed and time left.
func (ctrl *QueueController) List(c *echo.Context) error {
	return c.JSON(http.StatusOK, ctrl.App.Engine.Status())
}

func (ctrl *QueueController) Get(c *echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, err)
	}
	snap, ok := ctrl.App.Engine.SlotStatus(id)
	if !ok {
		return c.NoContent(http.StatusNotFound)
	}
	return c.JSON(http.StatusOK, snap)
}

// Add queues an NZB sent either as the multipart field "nzb" or as the raw
// request body.
func (ctrl *QueueController) Add(c *echo.Context) error {
	r, filename, err := nzbSource(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, err)
	}
	defer r.Close()

	p := nzb.NewParser()
	model, err := p.Parse(r)
	if err != nil {
		return fail(c, http.StatusBadRequest, err)
	}
	inputs, err := p.Inputs(model)
	if err != nil {
		return fail(c, http.StatusUnprocessableEntity, err)
	}

	name := c.QueryParam("name")
	if name == "" {
		name = model.Meta("title")
	}
	if name == "" {
		name = strings.TrimSuffix(filename, filepath.Ext(filename))
	}
	if name == "" {
		name = inputs[0].Name
	}

	slot, err := ctrl.App.Engine.Add(name, inputs, ctrl.App.JobOptions())
	if err != nil {
		return fail(c, errorStatus(err), err)
	}
	return c.JSON(http.StatusCreated, AddedResponse{
		ID:    slot.ID,
		SID:   slot.SID,
		Name:  slot.Name,
		Files: len(inputs),
	})
}

func (ctrl *QueueController) Pause(c *echo.Context) error {
	return ctrl.apply(c, ctrl.App.Engine.Pause)
}

func (ctrl *QueueController) Resume(c *echo.Context) error {
	return ctrl.apply(c, ctrl.App.Engine.Resume)
}

func (ctrl *QueueController) Remove(c *echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, err)
	}
	if err := ctrl.App.Engine.Remove(id); err != nil {
		return fail(c, errorStatus(err), err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Send runs a one-off request, such as XOVER, and returns the raw answer.
func (ctrl *QueueController) Send(c *echo.Context) error {
	var req SendRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, err)
	}
	out, err := ctrl.App.Engine.Send(c.Request().Context(), req.Group, req.Lines)
	if err != nil {
		return fail(c, errorStatus(err), err)
	}
	return c.JSON(http.StatusOK, SendResponse{Response: string(out)})
}

func (ctrl *QueueController) apply(c *echo.Context, fn func(int64) error) error {
	id, err := paramID(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, err)
	}
	if err := fn(id); err != nil {
		return fail(c, errorStatus(err), err)
	}
	snap, _ := ctrl.App.Engine.SlotStatus(id)
	return c.JSON(http.StatusOK, snap)
}

func nzbSource(c *echo.Context) (io.ReadCloser, string, error) {
	ct := c.Request().Header.Get(echo.HeaderContentType)
	if strings.HasPrefix(ct, echo.MIMEMultipartForm) {
		fh, err := c.FormFile("nzb")
		if err != nil {
			return nil, "", fmt.Errorf("missing nzb file: %w", err)
		}
		f, err := fh.Open()
		if err != nil {
			return nil, "", err
		}
		return f, fh.Filename, nil
	}
	if c.Request().Body == nil || c.Request().ContentLength == 0 {
		return nil, "", errors.New("empty request body")
	}
	return c.Request().Body, "", nil
}

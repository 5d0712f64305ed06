package handler

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func pathID(c echo.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	return id, err == nil
}

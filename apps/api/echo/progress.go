package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/maendeleo/core/progress"
)

type progressApi struct {
	agg       *progress.Aggregator
	refresher *progress.Refresher
	validate  *validator.Validate
}

func registerProgressAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps Deps) {
	api := progressApi{
		agg:       deps.Aggregator,
		refresher: deps.Refresher,
		validate:  deps.Validate,
	}

	g.POST("/courses/:course/progress/refresh", api.refresh, jwt)
	g.GET("/users/:user/progress", api.dashboard, jwt, ctxUserOrAdminMiddleware())
}

// Handlers

// refresh recomputes the caller's progress on a course. A newer refresh of the same course cancels this one.
func (api *progressApi) refresh(ctx echo.Context) error {
	userID, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	courseID := ctx.Param("course")
	if err := api.validate.Var(courseID, "identifier"); err != nil {
		return err
	}

	res, err := api.refresher.Refresh(ctx.Request().Context(), userID, courseID)
	if err != nil {
		return errors.Wrap(err, "refreshing course progress")
	}
	return ctx.JSON(http.StatusOK, res)
}

// dashboard recomputes the progress of a user on every requested course at once.
func (api *progressApi) dashboard(ctx echo.Context) error {
	courseIDs, err := bindCourseIDs(ctx, api.validate)
	if err != nil {
		return err
	}

	res, err := api.agg.RecomputeCourses(ctx.Request().Context(), ctx.Param("user"), courseIDs, progress.ModeSafe)
	if err != nil {
		return errors.Wrap(err, "recomputing dashboard")
	}
	return ctx.JSON(http.StatusOK, res)
}

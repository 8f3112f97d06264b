package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/maendeleo/core/completion"
	"github.com/trezcool/maendeleo/core/progress"
)

type adminApi struct {
	svc      *completion.Service
	agg      *progress.Aggregator
	validate *validator.Validate
}

func registerAdminAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps Deps) {
	api := adminApi{
		svc:      deps.Completion,
		agg:      deps.Aggregator,
		validate: deps.Validate,
	}

	ag := g.Group("/admin", jwt, adminMiddleware())
	ag.POST("/progress/recalculate", api.recalculateAll)
	ag.POST("/progress/users", api.recomputeUsers)
	ag.GET("/quiz-completions", api.analyzeQuizCompletions)
	ag.POST("/quiz-completions/fix", api.fixQuizCompletions)
	ag.POST("/completions", api.complete)
	ag.POST("/courses/:course/structure/invalidate", api.invalidateStructure)
}

// Handlers

func (api *adminApi) recalculateAll(ctx echo.Context) error {
	res, err := api.agg.RecalculateAll(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "recalculating course progress")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *adminApi) recomputeUsers(ctx echo.Context) error {
	var data UsersProgressRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UsersProgressRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	mode := progress.ModeSafe
	if data.Strict {
		mode = progress.ModeStrict
	}
	res, err := api.agg.RecomputeUsers(ctx.Request().Context(), data.CourseID, data.UserIDs, mode)
	if err != nil {
		return errors.Wrap(err, "recomputing course progress")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *adminApi) analyzeQuizCompletions(ctx echo.Context) error {
	report, err := api.svc.AnalyzeMissingQuizCompletions(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "analyzing quiz completions")
	}
	return ctx.JSON(http.StatusOK, report)
}

func (api *adminApi) fixQuizCompletions(ctx echo.Context) error {
	report, err := api.svc.FixMissingQuizCompletions(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "fixing quiz completions")
	}
	return ctx.JSON(http.StatusOK, report)
}

func (api *adminApi) complete(ctx echo.Context) error {
	var data CompletionRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CompletionRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	res, err := api.svc.AdminOverride(ctx.Request().Context(), data.UserID, data.UnitID)
	if err != nil {
		return errors.Wrap(err, "completing unit")
	}
	code := http.StatusOK
	if !res.Success {
		code = http.StatusAccepted
	}
	return ctx.JSON(code, newWriteResponse(res))
}

func (api *adminApi) invalidateStructure(ctx echo.Context) error {
	if err := api.agg.Invalidate(ctx.Request().Context(), ctx.Param("course")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

package echoapi

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/maendeleo/core"
	"github.com/trezcool/maendeleo/core/completion"
)

type completionApi struct {
	svc       *completion.Service
	debouncer *completion.Debouncer
	validate  *validator.Validate
}

func registerCompletionAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps Deps) {
	api := completionApi{
		svc:       deps.Completion,
		debouncer: deps.Debouncer,
		validate:  deps.Validate,
	}

	ug := g.Group("/units/:unit", jwt)
	ug.GET("/status", api.status)
	ug.POST("/triggers", api.trigger)
	ug.POST("/video-progress", api.videoProgress)
	ug.POST("/override", api.override)

	pg := g.Group("/pending", jwt)
	pg.GET("", api.pending)
	pg.POST("/retry", api.retryPending)
	pg.DELETE("", api.clearPending)
}

// Handlers

func (api *completionApi) status(ctx echo.Context) error {
	userID, err := contextUserID(ctx)
	if err != nil {
		return err
	}

	unit, key, err := api.svc.UnitKey(ctx.Request().Context(), userID, ctx.Param("unit"))
	if err != nil {
		return errors.Wrap(err, "resolving unit")
	}
	status, err := api.svc.ReadStatus(ctx.Request().Context(), key)
	if err != nil {
		return errors.Wrap(err, "reading unit status")
	}

	return ctx.JSON(http.StatusOK, echo.Map{
		"key":                 key,
		"strategy":            unit.Strategy(),
		"status":              status,
		"can_manual_override": api.svc.CanManualOverride(key),
	})
}

func (api *completionApi) trigger(ctx echo.Context) error {
	userID, err := contextUserID(ctx)
	if err != nil {
		return err
	}

	var data TriggerRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to TriggerRequest")
	}
	data.UnitID = ctx.Param("unit")
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	trigger, err := completion.ParseTrigger(data.Trigger)
	if err != nil {
		return core.NewValidationError(nil, core.FieldError{Field: "trigger", Error: err.Error()})
	}

	out, err := api.svc.HandleTrigger(ctx.Request().Context(), userID, data.UnitID, trigger)
	if err != nil {
		return errors.Wrap(err, "handling trigger")
	}
	return ctx.JSON(http.StatusOK, out)
}

// videoProgress accepts player ticks. Ticks of a unit are coalesced and written once the player goes quiet.
func (api *completionApi) videoProgress(ctx echo.Context) error {
	userID, err := contextUserID(ctx)
	if err != nil {
		return err
	}

	var data VideoProgressRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to VideoProgressRequest")
	}
	data.UnitID = ctx.Param("unit")
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	// unknown units and units without video are rejected now rather than at flush time
	unit, _, err := api.svc.UnitKey(ctx.Request().Context(), userID, data.UnitID)
	if err != nil {
		return errors.Wrap(err, "resolving unit")
	}
	if !unit.HasVideo() {
		return errors.Wrapf(completion.ErrInvalidState, "unit %s has no video", unit.ID)
	}

	tick := completion.VideoTick{UserID: userID, UnitID: data.UnitID, Percent: data.Percent}
	if !api.debouncer.Submit(tick) {
		return core.NewShutdownError("video progress debouncer stopped")
	}
	return ctx.JSON(http.StatusAccepted, QueuedResponse{Queued: true, Pending: api.debouncer.Pending()})
}

func (api *completionApi) override(ctx echo.Context) error {
	userID, err := contextUserID(ctx)
	if err != nil {
		return err
	}

	res, err := api.svc.ManualOverride(ctx.Request().Context(), userID, ctx.Param("unit"))
	if err != nil {
		return errors.Wrap(err, "overriding unit completion")
	}

	code := http.StatusOK
	if !res.Success {
		code = http.StatusAccepted // queued for retry
	}
	return ctx.JSON(code, newWriteResponse(res))
}

func (api *completionApi) pending(ctx echo.Context) error {
	userID, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, api.svc.PendingCompletions(userID))
}

func (api *completionApi) retryPending(ctx echo.Context) error {
	userID, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	results := api.svc.RetryPending(ctx.Request().Context(), userID)
	return ctx.JSON(http.StatusOK, newWriteResponses(results))
}

func (api *completionApi) clearPending(ctx echo.Context) error {
	userID, err := contextUserID(ctx)
	if err != nil {
		return err
	}

	confirmed, _ := strconv.ParseBool(ctx.QueryParam("confirm"))
	n, err := api.svc.ClearPending(userID, confirmed)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, ClearResponse{Cleared: n})
}

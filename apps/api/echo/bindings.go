package echoapi

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/maendeleo/core"
	"github.com/trezcool/maendeleo/core/completion"
)

type (
	TriggerRequest struct {
		UnitID  string `json:"unit_id" validate:"required,identifier"`
		Trigger string `json:"trigger" validate:"required,trigger"`
	}

	VideoProgressRequest struct {
		UnitID  string `json:"unit_id" validate:"required,identifier"`
		Percent int    `json:"percent" validate:"percent"`
	}

	CompletionRequest struct {
		UserID string `json:"user_id" validate:"required,identifier"`
		UnitID string `json:"unit_id" validate:"required,identifier"`
	}

	UsersProgressRequest struct {
		CourseID string   `json:"course_id" validate:"required,identifier"`
		UserIDs  []string `json:"user_ids" validate:"required,min=1,dive,identifier"`
		Strict   bool     `json:"strict"`
	}

	// WriteResponse is a completion.WriteResult with its error rendered.
	WriteResponse struct {
		completion.WriteResult
		Error string `json:"error,omitempty"`
	}

	ClearResponse struct {
		Cleared int `json:"cleared"`
	}

	QueuedResponse struct {
		Queued  bool `json:"queued"`
		Pending int  `json:"pending"`
	}
)

func newWriteResponse(res completion.WriteResult) WriteResponse {
	resp := WriteResponse{WriteResult: res}
	if res.Err != nil {
		resp.Error = errors.Cause(res.Err).Error()
	}
	return resp
}

func newWriteResponses(results []completion.WriteResult) []WriteResponse {
	out := make([]WriteResponse, len(results))
	for i, res := range results {
		out[i] = newWriteResponse(res)
	}
	return out
}

func (r *TriggerRequest) Validate(validate *validator.Validate) error {
	r.UnitID = core.CleanString(r.UnitID)
	r.Trigger = core.CleanString(r.Trigger, true)
	return validate.Struct(r)
}

func (r *VideoProgressRequest) Validate(validate *validator.Validate) error {
	r.UnitID = core.CleanString(r.UnitID)
	return validate.Struct(r)
}

func (r *CompletionRequest) Validate(validate *validator.Validate) error {
	r.UserID = core.CleanString(r.UserID)
	r.UnitID = core.CleanString(r.UnitID)
	return validate.Struct(r)
}

func (r *UsersProgressRequest) Validate(validate *validator.Validate) error {
	r.CourseID = core.CleanString(r.CourseID)
	for i := range r.UserIDs {
		r.UserIDs[i] = core.CleanString(r.UserIDs[i])
	}
	return validate.Struct(r)
}

// bindCourseIDs reads the course ids of a dashboard request: ?course=a&course=b or ?course=a,b.
func bindCourseIDs(ctx echo.Context, validate *validator.Validate) ([]string, error) {
	var ids []string
	for _, val := range ctx.QueryParams()["course"] {
		for _, id := range strings.Split(val, ",") {
			if id = core.CleanString(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	if len(ids) == 0 {
		return nil, core.NewValidationError(nil, core.FieldError{Field: "course", Error: "at least one course is required"})
	}
	for _, id := range ids {
		if err := validate.Var(id, "identifier"); err != nil {
			return nil, core.NewValidationError(nil, core.FieldError{Field: "course", Error: "invalid course id: " + id})
		}
	}
	return ids, nil
}

package pkg

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/simp-lee/advocatedir/internal/domain"
	"github.com/simp-lee/pagination"
)

// Response is the standard JSON envelope for API responses.
// Exactly one of Data or Error is set.
type Response struct {
	Success    bool               `json:"success"`
	Data       any                `json:"data,omitempty"`
	Pagination *domain.Pagination `json:"pagination,omitempty"`
	Error      *ErrorBody         `json:"error,omitempty"`
}

// ErrorBody is the error half of the envelope.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Success sends a 200 JSON response with the given data.
func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

// Created sends a 201 JSON response with the given data.
func Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, Response{Success: true, Data: data})
}

// List sends a 200 JSON response carrying one page of results. The page's
// metadata is flattened into the envelope's pagination block.
func List[T any](c *gin.Context, result *pagination.Pagination[T]) {
	p := domain.PageInfo(result)
	var data []T
	if result != nil {
		data = result.Items
	}
	if data == nil {
		data = []T{}
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: data, Pagination: &p})
}

// Error sends a JSON error response. If err is a *domain.AppError, its code is
// mapped to the appropriate HTTP status; otherwise 500 is returned.
func Error(c *gin.Context, err error) {
	status, body := errorBody(err)
	c.JSON(status, Response{Success: false, Error: body})
}

// Abort writes the error envelope and stops the handler chain.
func Abort(c *gin.Context, err error) {
	status, body := errorBody(err)
	c.AbortWithStatusJSON(status, Response{Success: false, Error: body})
}

func errorBody(err error) (int, *ErrorBody) {
	appErr := domain.AsAppError(err)
	if appErr == nil {
		appErr = domain.ErrInternal
	}
	body := &ErrorBody{Code: appErr.Code, Message: appErr.Message}
	if appErr.Details != "" {
		body.Details = appErr.Details
	}
	// Never echo unexpected internal failures to the caller.
	if appErr.Code == domain.CodeInternal {
		body.Message = "internal error"
		body.Details = nil
	}
	return domain.HTTPStatusCode(appErr), body
}

// ValidationError sends a 400 JSON response with per-field validation error details.
// It detects validator.ValidationErrors and extracts field-level messages.
func ValidationError(c *gin.Context, err error) {
	validationErrorWithType(c, err, nil)
}

// BindAndValidate binds the request body to obj and validates it.
// On failure it automatically sends a ValidationError response and returns false.
// Because obj is available, JSON struct tags are used for field names when possible.
// Usage in handlers:
//
//	if !pkg.BindAndValidate(c, &req) { return }
func BindAndValidate(c *gin.Context, obj any) bool {
	if err := c.ShouldBind(obj); err != nil {
		validationErrorWithType(c, err, obj)
		return false
	}
	return true
}

// validationErrorWithType sends a 400 validation error response.
// When obj is non-nil, it reflects on the struct to prefer JSON tag names.
func validationErrorWithType(c *gin.Context, err error, obj any) {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error: &ErrorBody{
				Code:    domain.CodeValidation,
				Message: "invalid request body",
				Details: err.Error(),
			},
		})
		return
	}

	jsonTags := buildJSONTagMap(obj)

	fieldErrors := make(map[string]string, len(ve))
	for _, fe := range ve {
		name := fieldName(fe, jsonTags)
		msg := fe.Tag()
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		fieldErrors[name] = msg
	}

	c.JSON(http.StatusBadRequest, Response{
		Success: false,
		Error: &ErrorBody{
			Code:    domain.CodeValidation,
			Message: "validation error",
			Details: fieldErrors,
		},
	})
}

// fieldName reports fe under its JSON name. Element errors from dive keep
// their index: specialtyIds[0].
func fieldName(fe validator.FieldError, jsonTags map[string]string) string {
	field, index, hasIndex := strings.Cut(fe.StructField(), "[")
	name, ok := jsonTags[field]
	if !ok {
		name = strings.ToLower(field)
	}
	if hasIndex {
		name += "[" + index
	}
	return name
}

// buildJSONTagMap returns a map from struct field name to its JSON tag name.
// If obj is nil or not a struct (pointer), it returns an empty map.
func buildJSONTagMap(obj any) map[string]string {
	if obj == nil {
		return nil
	}
	t := reflect.TypeOf(obj)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}
	m := make(map[string]string, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if name := parseJSONTagName(f.Tag.Get("json")); name != "" {
			m[f.Name] = name
		}
	}
	return m
}

// parseJSONTagName extracts the field name from a JSON struct tag value.
func parseJSONTagName(tag string) string {
	if tag == "" || tag == "-" {
		return ""
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" || name == "-" {
		return ""
	}
	return name
}

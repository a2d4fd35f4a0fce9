package apierror

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToJSON(t *testing.T) {
	err := ValidationError("invalid submission", FieldError{Field: "price", Message: "must be a positive amount"})

	var body struct {
		Success bool `json:"success"`
		Error   struct {
			Code    string       `json:"code"`
			Message string       `json:"message"`
			Details []FieldError `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(err.ToJSON(), &body))

	assert.False(t, body.Success)
	assert.Equal(t, "VALIDATION_ERROR", body.Error.Code)
	assert.Equal(t, "invalid submission", body.Error.Message)
	assert.Equal(t, []FieldError{{Field: "price", Message: "must be a positive amount"}}, body.Error.Details)
}

func TestToJSON_OmitsEmptyDetails(t *testing.T) {
	body := string(Conflict("dup").ToJSON())
	assert.NotContains(t, body, "details")
	assert.NotContains(t, body, "meta")
}

func TestToJSON_Meta(t *testing.T) {
	err := UnprocessableEntity("INSUFFICIENT_DATA", "x").WithMeta(map[string]int{"sample_size": 0, "required": 5})

	var body struct {
		Error struct {
			Meta map[string]int `json:"meta"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(err.ToJSON(), &body))
	assert.Equal(t, map[string]int{"sample_size": 0, "required": 5}, body.Error.Meta)
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		err    *Error
		status int
		code   string
	}{
		{BadRequest("x"), http.StatusBadRequest, "BAD_REQUEST"},
		{Unauthorized(""), http.StatusUnauthorized, "UNAUTHORIZED"},
		{NotFound(""), http.StatusNotFound, "NOT_FOUND"},
		{Conflict("x"), http.StatusConflict, "CONFLICT"},
		{UnprocessableEntity("INSUFFICIENT_DATA", "x"), http.StatusUnprocessableEntity, "INSUFFICIENT_DATA"},
		{TooManyRequests(""), http.StatusTooManyRequests, "QUOTA_EXCEEDED"},
		{InternalError(""), http.StatusInternalServerError, "INTERNAL_ERROR"},
		{ServiceUnavailable(""), http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.status, tt.err.StatusCode)
			assert.Equal(t, tt.code, tt.err.Code)
			assert.NotEmpty(t, tt.err.Error())
		})
	}
}

package response

import (
	"encoding/json"
	"testing"

	"github.com/go-playground/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOK(t *testing.T) {
	body, err := json.Marshal(OK())
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
}

func TestError(t *testing.T) {
	body, err := json.Marshal(Error("product"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":false,"error":"product"}`, string(body))
}

func TestValidationError(t *testing.T) {
	type req struct {
		TripID string `validate:"required"`
	}

	err := validator.New().Struct(req{})
	require.Error(t, err)

	resp := ValidationError(err.(validator.ValidationErrors))
	assert.False(t, resp.OK)
	assert.Equal(t, "missing", resp.Error)
}

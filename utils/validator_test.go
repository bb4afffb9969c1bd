package utils

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signupInput struct {
	Username string `json:"username" validate:"required,max=150,username"`
	Password string `json:"password" validate:"required"`
	Points   *int64 `json:"points" validate:"required,gte=0"`
}

func fieldsOf(t *testing.T, err error) map[string]string {
	t.Helper()
	var appErr *AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, KindValidation, appErr.Kind)
	return appErr.Fields
}

func TestValidateStruct(t *testing.T) {
	zero, neg := int64(0), int64(-1)

	assert.NoError(t, ValidateStruct(&signupInput{Username: "alice.b+c@x-y_z", Password: "pw", Points: &zero}))

	fields := fieldsOf(t, ValidateStruct(&signupInput{}))
	assert.Contains(t, fields, "username")
	assert.Contains(t, fields, "password")
	assert.Contains(t, fields, "points")

	fields = fieldsOf(t, ValidateStruct(&signupInput{Username: "bad name!", Password: "pw", Points: &zero}))
	assert.Contains(t, fields["username"], "valid username")

	fields = fieldsOf(t, ValidateStruct(&signupInput{Username: strings.Repeat("a", 151), Password: "pw", Points: &zero}))
	assert.Contains(t, fields["username"], "150")

	fields = fieldsOf(t, ValidateStruct(&signupInput{Username: "a", Password: "pw", Points: &neg}))
	assert.Contains(t, fields, "points")
}

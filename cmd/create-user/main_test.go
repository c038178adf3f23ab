package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewUserValidate(t *testing.T) {
	valid := newUser{Username: "sam", Email: "sam@example.com", Password: "longenough", CalorieTarget: 2000}
	assert.NoError(t, valid.validate())

	bad := valid
	bad.Email = "not-an-email"
	assert.Error(t, bad.validate())

	bad = valid
	bad.Password = "short"
	assert.Error(t, bad.validate())

	bad = valid
	bad.CalorieTarget = 0
	assert.Error(t, bad.validate())
}

func TestMacroTargets(t *testing.T) {
	protein, carbs, fat := macroTargets(2000)
	assert.Equal(t, 150, protein)
	assert.Equal(t, 200, carbs)
	assert.Equal(t, 66, fat)
}

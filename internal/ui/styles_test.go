package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetStyles_NoColor(t *testing.T) {
	s := GetStyles(true)
	assert.Equal(t, "ok", s.Success.Render("ok"))
	assert.Equal(t, "title", s.Header.Render("title"))
}

func TestGetStyles_HonoursNoColorEnv(t *testing.T) {
	t.Setenv("NO_COLOR", "")
	s := GetStyles(false)
	assert.Equal(t, "warn", s.Warning.Render("warn"))
}

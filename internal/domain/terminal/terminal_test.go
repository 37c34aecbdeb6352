package terminal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDenied(t *testing.T) {
	assert.True(t, Denied("/system   reboot"))
	assert.True(t, Denied("/SYSTEM reset-configuration no-defaults=yes"))
	assert.False(t, Denied("/ip hotspot active print"))
}

func TestExecuteRequestValidate(t *testing.T) {
	assert.NoError(t, ExecuteRequest{HotspotID: 1, Command: "/interface print"}.Validate())
	assert.Error(t, ExecuteRequest{HotspotID: 1, Command: "/file remove x"}.Validate())
	assert.Error(t, ExecuteRequest{Command: " "}.Validate())
}

package notify

import (
	"bytes"
	"errors"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"mnetifi-service/internal/dashboard/client"
)

func TestConsole(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	c := NewConsole(&buf)

	c.Notify(Notification{Level: Success, Title: "Plan created"})
	c.Notify(Notification{Level: Error, Title: "Failed", Description: "price must be greater than 0"})

	assert.Equal(t, "Plan created\nFailed: price must be greater than 0\n", buf.String())
}

func TestFromError(t *testing.T) {
	n := FromError("Failed to delete plan", &client.APIError{Status: 409, Message: "plan is in use"})
	assert.Equal(t, Error, n.Level)
	assert.Equal(t, "plan is in use", n.Description)

	n = FromError("Failed to delete plan", &client.NetworkError{Err: errors.New("dial tcp: refused")})
	assert.Contains(t, n.Description, "Could not reach the server")
}

func TestRecorder(t *testing.T) {
	var r Recorder
	_, ok := r.Last()
	assert.False(t, ok)

	r.Notify(Notification{Title: "a"})
	r.Notify(Notification{Title: "b"})
	last, ok := r.Last()
	assert.True(t, ok)
	assert.Equal(t, "b", last.Title)
	assert.Len(t, r.All(), 2)
	assert.Equal(t, "warning", Warning.String())
}

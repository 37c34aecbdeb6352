// Package notify delivers short user-facing notifications from dashboard
// operations.
package notify

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"

	"mnetifi-service/internal/dashboard/client"
)

type Level int

const (
	Info Level = iota
	Success
	Warning
	Error
)

func (l Level) String() string {
	switch l {
	case Success:
		return "success"
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "info"
	}
}

type Notification struct {
	Level       Level
	Title       string
	Description string
}

type Notifier interface {
	Notify(n Notification)
}

// Func adapts a function to Notifier.
type Func func(Notification)

func (f Func) Notify(n Notification) { f(n) }

// Discard drops every notification.
var Discard Notifier = Func(func(Notification) {})

// FromError builds an error notification. Network failures get a fixed
// description; API errors show the server's message.
func FromError(title string, err error) Notification {
	n := Notification{Level: Error, Title: title, Description: err.Error()}
	var netErr *client.NetworkError
	if errors.As(err, &netErr) {
		n.Description = "Could not reach the server. Check your connection and try again."
	}
	return n
}

// Console prints notifications to a terminal, coloured by level.
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

func (c *Console) Notify(n Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var title *color.Color
	switch n.Level {
	case Success:
		title = color.New(color.FgGreen, color.Bold)
	case Warning:
		title = color.New(color.FgYellow, color.Bold)
	case Error:
		title = color.New(color.FgRed, color.Bold)
	default:
		title = color.New(color.FgCyan, color.Bold)
	}
	title.Fprint(c.out, n.Title)
	if n.Description != "" {
		fmt.Fprintf(c.out, ": %s", n.Description)
	}
	fmt.Fprintln(c.out)
}

// Recorder keeps every notification in memory.
type Recorder struct {
	mu  sync.Mutex
	all []Notification
}

func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	r.all = append(r.all, n)
	r.mu.Unlock()
}

func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.all...)
}

// Last returns the most recent notification, or false when none arrived.
func (r *Recorder) Last() (Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.all) == 0 {
		return Notification{}, false
	}
	return r.all[len(r.all)-1], true
}

// Package terminal keeps the dashboard's RouterOS console log. Entries are
// numbered when a command is dispatched and stay in that order however the
// router responses interleave.
package terminal

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"mnetifi-service/internal/dashboard/client"
	domain "mnetifi-service/internal/domain/terminal"
)

type Entry struct {
	Seq       int64
	HotspotID int64
	Command   string
	Output    string
	Success   bool
	Pending   bool
	Timestamp time.Time
	// ServerSeq is the tenant-wide sequence the API assigned, 0 until known.
	ServerSeq int64
}

type Executor interface {
	ExecuteCommand(ctx context.Context, hotspotID int64, command string) (*client.CommandResult, error)
}

type Console struct {
	mu       sync.Mutex
	api      Executor
	next     int64
	entries  []Entry
	onChange func([]Entry)
	now      func() time.Time
}

func NewConsole(api Executor) *Console {
	return &Console{api: api, now: time.Now}
}

// OnChange registers fn to receive a snapshot after every change.
func (c *Console) OnChange(fn func([]Entry)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// Run dispatches one command and blocks until the router answers. The
// entry is visible as pending from the moment of dispatch. Commands that
// fail validation are rejected without an entry.
func (c *Console) Run(ctx context.Context, hotspotID int64, command string) (Entry, error) {
	command = strings.TrimSpace(command)
	if err := (domain.ExecuteRequest{HotspotID: hotspotID, Command: command}).Validate(); err != nil {
		return Entry{}, err
	}

	c.mu.Lock()
	c.next++
	e := Entry{
		Seq:       c.next,
		HotspotID: hotspotID,
		Command:   command,
		Pending:   true,
		Timestamp: c.now(),
	}
	c.entries = append(c.entries, e)
	c.notifyLocked()
	c.mu.Unlock()

	res, err := c.api.ExecuteCommand(ctx, hotspotID, command)
	if err != nil {
		e.Output = err.Error()
		e.Success = false
	} else {
		e.Output = res.Output
		e.Success = res.Success
		e.ServerSeq = res.Sequence
		if !res.Timestamp.IsZero() {
			e.Timestamp = res.Timestamp
		}
	}
	e.Pending = false

	c.mu.Lock()
	c.replaceLocked(e)
	c.notifyLocked()
	c.mu.Unlock()
	return e, err
}

// Entries returns the log ordered by dispatch sequence.
func (c *Console) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Entry(nil), c.entries...)
}

// Clear empties the log. Sequence numbers keep counting.
func (c *Console) Clear() {
	c.mu.Lock()
	c.entries = nil
	c.notifyLocked()
	c.mu.Unlock()
}

func (c *Console) replaceLocked(e Entry) {
	i := sort.Search(len(c.entries), func(i int) bool { return c.entries[i].Seq >= e.Seq })
	if i < len(c.entries) && c.entries[i].Seq == e.Seq {
		c.entries[i] = e
	}
}

func (c *Console) notifyLocked() {
	if c.onChange != nil {
		c.onChange(append([]Entry(nil), c.entries...))
	}
}

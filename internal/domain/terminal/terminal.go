package terminal

import (
	"strings"
	"time"

	"mnetifi-service/internal/pkg/validate"
)

type ExecuteRequest struct {
	HotspotID int64  `json:"hotspot_id"`
	Command   string `json:"command"`
}

func (r ExecuteRequest) Validate() error {
	fe := validate.FieldErrors{}
	fe.Check(r.HotspotID > 0, "hotspot_id", "choose a router")
	cmd := strings.TrimSpace(r.Command)
	if cmd == "" {
		fe.Add("command", "command is required")
	} else if Denied(cmd) {
		fe.Add("command", "this command is not allowed from the dashboard")
	} else {
		fe.Check(len(cmd) <= 1024, "command", "command is too long")
	}
	return fe.Err()
}

// Result is one executed command. Sequence is assigned before the command
// is sent to the router so concurrent results can be ordered by dispatch.
type Result struct {
	ID         int64     `json:"id" db:"id"`
	TenantID   int64     `json:"tenant_id" db:"tenant_id"`
	HotspotID  int64     `json:"hotspot_id" db:"hotspot_id"`
	Sequence   int64     `json:"sequence" db:"sequence"`
	Command    string    `json:"command" db:"command"`
	Output     string    `json:"output" db:"output"`
	Success    bool      `json:"success" db:"success"`
	ExecutedBy int64     `json:"executed_by" db:"executed_by"`
	ExecutedAt time.Time `json:"executed_at" db:"executed_at"`
}

type HistoryFilters struct {
	HotspotID *int64 `form:"hotspot_id"`
	Page      int    `form:"page"`
	PageSize  int    `form:"page_size"`
}

var deniedPrefixes = []string{
	"/system reset-configuration",
	"/system reboot",
	"/system shutdown",
	"/file remove",
	"/user remove",
	"/system package uninstall",
}

// Denied reports commands that could brick or lock out the router.
func Denied(cmd string) bool {
	c := strings.Join(strings.Fields(strings.ToLower(cmd)), " ")
	for _, p := range deniedPrefixes {
		if strings.HasPrefix(c, p) {
			return true
		}
	}
	return false
}

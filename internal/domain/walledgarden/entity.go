package walledgarden

import (
	"strings"
	"time"

	"mnetifi-service/internal/pkg/validate"
)

// Entry is a host reachable from the captive portal before login.
type Entry struct {
	ID          int64     `json:"id" db:"id"`
	TenantID    int64     `json:"tenant_id" db:"tenant_id"`
	Domain      string    `json:"domain" db:"domain"`
	Description *string   `json:"description,omitempty" db:"description"`
	IsActive    bool      `json:"is_active" db:"is_active"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

func NormalizeDomain(d string) string {
	return strings.ToLower(strings.TrimSuffix(strings.TrimSpace(d), "."))
}

type CreateEntryRequest struct {
	Domain      string  `json:"domain"`
	Description *string `json:"description,omitempty"`
}

func (r CreateEntryRequest) Validate() error {
	fe := validate.FieldErrors{}
	fe.Check(validate.Hostname(NormalizeDomain(r.Domain)), "domain", "enter a host name such as example.com or *.example.com")
	return fe.Err()
}

type UpdateEntryRequest struct {
	Domain      *string `json:"domain,omitempty"`
	Description *string `json:"description,omitempty"`
	IsActive    *bool   `json:"is_active,omitempty"`
}

func (r UpdateEntryRequest) Validate() error {
	fe := validate.FieldErrors{}
	if r.Domain != nil {
		fe.Check(validate.Hostname(NormalizeDomain(*r.Domain)), "domain", "enter a host name such as example.com or *.example.com")
	}
	return fe.Err()
}

// SyncTask is the payload of the router sync job.
type SyncTask struct {
	TenantID  int64  `json:"tenant_id"`
	HotspotID *int64 `json:"hotspot_id,omitempty"`
}

// RouterCommands renders the RouterOS commands that replace the router's
// walled garden with the active entries.
func RouterCommands(entries []Entry) []string {
	cmds := []string{`/ip hotspot walled-garden remove [find comment="mnetifi"]`}
	for _, e := range entries {
		if !e.IsActive {
			continue
		}
		cmds = append(cmds, `/ip hotspot walled-garden add dst-host=`+e.Domain+` comment="mnetifi"`)
	}
	return cmds
}

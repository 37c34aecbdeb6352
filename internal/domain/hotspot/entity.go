package hotspot

import (
	"time"

	"mnetifi-service/internal/pkg/validate"
)

// Hotspot is a MikroTik router serving a tenant's captive portal.
type Hotspot struct {
	ID             int64     `json:"id" db:"id"`
	TenantID       int64     `json:"tenant_id" db:"tenant_id"`
	Name           string    `json:"name" db:"name"`
	Location       *string   `json:"location,omitempty" db:"location"`
	RouterHost     string    `json:"router_host" db:"router_host"`
	RouterPort     int       `json:"router_port" db:"router_port"`
	RouterUsername string    `json:"router_username" db:"router_username"`
	RouterPassword string    `json:"-" db:"router_password"`
	HostKey        *string   `json:"host_key,omitempty" db:"host_key"`
	IsActive       bool      `json:"is_active" db:"is_active"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

const DefaultSSHPort = 22

type CreateHotspotRequest struct {
	Name           string  `json:"name"`
	Location       *string `json:"location,omitempty"`
	RouterHost     string  `json:"router_host"`
	RouterPort     int     `json:"router_port,omitempty"`
	RouterUsername string  `json:"router_username"`
	RouterPassword string  `json:"router_password"`
	HostKey        *string `json:"host_key,omitempty"`
}

func (r CreateHotspotRequest) Validate() error {
	fe := validate.FieldErrors{}
	fe.Check(validate.Length(r.Name, 1, 100), "name", "name is required")
	fe.Check(validate.Required(r.RouterHost), "router_host", "router address is required")
	fe.Check(r.RouterPort >= 0 && r.RouterPort <= 65535, "router_port", "port must be between 1 and 65535")
	fe.Check(validate.Required(r.RouterUsername), "router_username", "router username is required")
	fe.Check(validate.Required(r.RouterPassword), "router_password", "router password is required")
	return fe.Err()
}

type UpdateHotspotRequest struct {
	Name           *string `json:"name,omitempty"`
	Location       *string `json:"location,omitempty"`
	RouterHost     *string `json:"router_host,omitempty"`
	RouterPort     *int    `json:"router_port,omitempty"`
	RouterUsername *string `json:"router_username,omitempty"`
	RouterPassword *string `json:"router_password,omitempty"`
	HostKey        *string `json:"host_key,omitempty"`
	IsActive       *bool   `json:"is_active,omitempty"`
}

func (r UpdateHotspotRequest) Validate() error {
	fe := validate.FieldErrors{}
	if r.Name != nil {
		fe.Check(validate.Length(*r.Name, 1, 100), "name", "name is required")
	}
	if r.RouterPort != nil {
		fe.Check(*r.RouterPort > 0 && *r.RouterPort <= 65535, "router_port", "port must be between 1 and 65535")
	}
	return fe.Err()
}

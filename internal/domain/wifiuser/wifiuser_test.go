package wifiuser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExtendFrom(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	later := now.Add(30 * time.Minute)

	active := &WifiUser{Status: StatusActive, ExpiryTime: &later}
	assert.Equal(t, later.Add(time.Hour), active.ExtendFrom(now, time.Hour))
	assert.True(t, active.Online(now))

	expired := &WifiUser{Status: StatusExpired, ExpiryTime: &later}
	assert.Equal(t, now.Add(time.Hour), expired.ExtendFrom(now, time.Hour))
	assert.False(t, expired.Online(now))
}

func TestCreateWifiUserRequest(t *testing.T) {
	req := CreateWifiUserRequest{PhoneNumber: "0712 345 678"}
	req.Normalize()
	assert.Equal(t, "254712345678", req.PhoneNumber)
	assert.Equal(t, AccountHotspot, req.AccountType)
	assert.NoError(t, req.Validate())

	bad := CreateWifiUserRequest{PhoneNumber: "123", AccountType: AccountPPPoE}
	assert.Error(t, bad.Validate())
}

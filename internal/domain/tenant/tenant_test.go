package tenant

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTier(t *testing.T) {
	assert.True(t, TierTrial.Valid())
	assert.False(t, TierTrial.Paid())
	assert.True(t, TierPro.Paid())
	assert.False(t, Tier("GOLD").Valid())
}

func TestMergeCredentialsKeepsUnsetFields(t *testing.T) {
	current := Credentials{MpesaShortcode: "174379", MpesaPasskey: "old", SMSAPIKey: "sms"}
	req := UpdateCredentialsRequest{Credentials{MpesaPasskey: "new", MpesaEnvironment: "sandbox"}}

	got := req.Merge(current)
	assert.Equal(t, "174379", got.MpesaShortcode)
	assert.Equal(t, "new", got.MpesaPasskey)
	assert.Equal(t, "sandbox", got.MpesaEnvironment)
	assert.Equal(t, "sms", got.SMSAPIKey)
	assert.NoError(t, req.Validate())
	assert.False(t, got.HasMpesa())
}

func TestUpdateTenantValidate(t *testing.T) {
	bad := "not-a-phone"
	err := UpdateTenantRequest{Phone: &bad}.Validate()
	assert.Error(t, err)
	assert.NoError(t, UpdateTenantRequest{}.Validate())
}

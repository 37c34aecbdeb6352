package voucher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatusTransitions(t *testing.T) {
	assert.True(t, StatusAvailable.CanTransition(StatusUsed))
	assert.True(t, StatusDisabled.CanTransition(StatusAvailable))
	assert.False(t, StatusUsed.CanTransition(StatusAvailable))
	assert.False(t, StatusExpired.CanTransition(StatusAvailable))
}

func TestCreateBatchRequest(t *testing.T) {
	now := time.Now()
	req := CreateBatchRequest{PlanID: 1, Quantity: 100, Prefix: "kilimani"}
	req.Normalize()
	assert.Equal(t, "KILIMA", req.Prefix)
	assert.NoError(t, req.Validate(now))

	past := now.Add(-time.Hour)
	bad := CreateBatchRequest{Quantity: 5001, Prefix: "a-b", ValidUntil: &past}
	assert.Error(t, bad.Validate(now))

	assert.Error(t, CreateBatchRequest{PlanID: 1, Quantity: 0}.Validate(now))
}

func TestVoucherExpired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	assert.True(t, (&Voucher{ValidUntil: &past}).Expired(now))
	assert.False(t, (&Voucher{}).Expired(now))
}

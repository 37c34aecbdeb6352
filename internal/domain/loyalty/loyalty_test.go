package loyalty

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestPointsForAmount(t *testing.T) {
	assert.Equal(t, int64(5), PointsForAmount(decimal.NewFromInt(50)))
	assert.Equal(t, int64(4), PointsForAmount(decimal.RequireFromString("49.99")))
	assert.Equal(t, int64(0), PointsForAmount(decimal.NewFromInt(9)))
	assert.Equal(t, int64(0), PointsForAmount(decimal.NewFromInt(-100)))
}

func TestRedeemValidate(t *testing.T) {
	assert.NoError(t, RedeemRequest{Points: 10, Reason: "free hour"}.Validate(10))
	assert.Error(t, RedeemRequest{Points: 11, Reason: "free hour"}.Validate(10))
	assert.Error(t, RedeemRequest{Points: 0, Reason: "x"}.Validate(10))
	assert.Error(t, EarnRequest{Points: 5}.Validate())
}

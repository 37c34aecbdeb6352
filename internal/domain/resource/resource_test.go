package resource

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFamilies(t *testing.T) {
	got := Families(Transaction)
	paths := make([]string, 0, len(got))
	for _, f := range got {
		paths = append(paths, f.Path())
	}
	assert.Equal(t, []string{"/api/transactions", "/api/wifi-users", "/api/loyalty", "/api/reports"}, paths)
}

func TestFamiliesDeduplicates(t *testing.T) {
	got := Families(Voucher, VoucherBatch)
	assert.Len(t, got, 3)
	assert.Equal(t, []string{"api", "vouchers"}, []string(got[0]))
}

func TestEveryEntityHasFamilies(t *testing.T) {
	for _, e := range All() {
		assert.True(t, e.Valid(), e)
		assert.NotEmpty(t, Families(e), e)
	}
	assert.False(t, Entity("nope").Valid())
}

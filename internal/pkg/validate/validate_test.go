package validate

import (
	"errors"
	"testing"
	"time"
	"unicode/utf8"

	xerrors "mnetifi-service/internal/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldErrors(t *testing.T) {
	fe := FieldErrors{}
	require.NoError(t, fe.Err())

	fe.Add("price", "price must be greater than zero")
	fe.Add("price", "second message is ignored")
	fe.Check(false, "name", "name is required")
	fe.Check(true, "duration", "never recorded")

	err := fe.Err()
	require.Error(t, err)
	assert.True(t, errors.Is(err, xerrors.ErrValidation))
	assert.Equal(t, "name: name is required; price: price must be greater than zero", err.Error())

	var got FieldErrors
	require.True(t, errors.As(err, &got))
	assert.Len(t, got, 2)
}

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"0712345678":     "254712345678",
		"0112345678":     "254112345678",
		"+254712345678":  "254712345678",
		"254 712 345 678": "254712345678",
		"712345678":      "254712345678",
	}
	for in, want := range cases {
		got, ok := NormalizePhone(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "12345", "0812345678", "2547123456789", "abc"} {
		_, ok := NormalizePhone(bad)
		assert.False(t, ok, bad)
	}
}

func TestPasswordStrength(t *testing.T) {
	assert.Equal(t, 0, PasswordStrength(""))
	assert.Equal(t, 1, PasswordStrength("abc"))
	assert.Equal(t, 2, PasswordStrength("abcdefgh"))
	assert.Equal(t, 3, PasswordStrength("abcdefgH"))
	assert.Equal(t, 5, PasswordStrength("Abcdef1!"))

	assert.NotEmpty(t, Password("Ab1!"))
	assert.NotEmpty(t, Password("abcdefgh"))
	assert.Empty(t, Password("abcdefg1H"))
}

func TestSubdomain(t *testing.T) {
	assert.True(t, Subdomain("kilimani-wifi"))
	assert.True(t, Subdomain("abc"))
	assert.False(t, Subdomain("ab"))
	assert.False(t, Subdomain("-abc"))
	assert.False(t, Subdomain("Abc"))
	assert.False(t, Subdomain("admin"))
}

func TestHostname(t *testing.T) {
	assert.True(t, Hostname("safaricom.co.ke"))
	assert.True(t, Hostname("*.mpesa.com"))
	assert.False(t, Hostname("localhost"))
	assert.False(t, Hostname("bad_host.com"))
	assert.False(t, Hostname("*."))
}

func TestPrefixAndMisc(t *testing.T) {
	assert.Equal(t, "KILIMA", NormalizePrefix(" kilimani "))
	assert.True(t, VoucherPrefix("WIFI24"))
	assert.False(t, VoucherPrefix("WI-FI"))

	assert.True(t, OTPCode("123456"))
	assert.False(t, OTPCode("12345a"))
	assert.True(t, MAC("aa:bb:cc:dd:ee:ff"))
	assert.False(t, MAC("aa:bb"))
	assert.True(t, Email("owner@example.co.ke"))
	assert.False(t, Email("owner@"))

	now := time.Now()
	past := now.Add(-time.Hour)
	assert.True(t, FutureTime(nil, now))
	assert.False(t, FutureTime(&past, now))
	assert.True(t, Length("abc", 3, 200))
}

func TestSuggestSubdomain(t *testing.T) {
	assert.Equal(t, "kilimani-wi-fi-co", SuggestSubdomain("Kilimani Wi-Fi & Co."))
	assert.Equal(t, "juja-hotspot", SuggestSubdomain("  Juja_Hotspot "))
	assert.Equal(t, "", SuggestSubdomain("!!!"))
	assert.True(t, Subdomain(SuggestSubdomain("Kilimani Wi-Fi & Co.")))
}

func TestNormalizePrefixCountsCharacters(t *testing.T) {
	got := NormalizePrefix("abcdeé1")
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "ABCDEÉ", got)
	assert.False(t, VoucherPrefix(got))

	assert.Equal(t, "ÑANDÚ", NormalizePrefix("ñandú"))
}

// internal/identity/identity_test.go
package identity

import (
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmailFormat(t *testing.T) {
	for i := 0; i < 50; i++ {
		email := Email("tempmail.com")
		assert.True(t, strings.HasPrefix(email, "signup_"), "unexpected prefix: %s", email)
		assert.True(t, strings.HasSuffix(email, "@tempmail.com"), "unexpected domain: %s", email)

		local := strings.TrimSuffix(strings.TrimPrefix(email, "signup_"), "@tempmail.com")
		require.Len(t, local, 6)
		_, err := strconv.Atoi(local)
		require.NoError(t, err)
	}
}

func TestPasswordAlphabetAndLength(t *testing.T) {
	for i := 0; i < 100; i++ {
		pw := Password()
		require.Len(t, pw, 12)
		for _, c := range pw {
			assert.Contains(t, passwordChars, string(c))
		}
	}
}

func TestBirthdayRanges(t *testing.T) {
	for i := 0; i < 200; i++ {
		day, month, year := Birthday()

		d, err := strconv.Atoi(day)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, d, 1)
		assert.LessOrEqual(t, d, 28)

		require.Len(t, month, 2, "month must be zero padded: %s", month)
		m, err := strconv.Atoi(month)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, m, 1)
		assert.LessOrEqual(t, m, 12)

		y, err := strconv.Atoi(year)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, y, 1990)
		assert.LessOrEqual(t, y, 2005)
	}
}

func TestGenderValues(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		g := Gender()
		assert.Contains(t, []string{"male", "female"}, g)
		seen[g] = true
	}
	// With 100 draws both values should show up.
	assert.Len(t, seen, 2)
}

func TestProxyForRotation(t *testing.T) {
	proxies := []string{"http://p0:8080", "http://p1:8080", "http://p2:8080"}

	for bot := 0; bot < 9; bot++ {
		got := ProxyFor(bot, proxies)
		assert.Equal(t, proxies[bot%3], got, "bot %d", bot)
	}

	assert.Equal(t, "", ProxyFor(5, nil))
	assert.Equal(t, "", ProxyFor(5, []string{}))
}

func TestNewIdentityComplete(t *testing.T) {
	id := New("example.org")
	assert.Contains(t, id.Email, "@example.org")
	assert.Len(t, id.Password, 12)
	assert.True(t, strings.HasPrefix(id.Username, "user_"), "username: %s", id.Username)
	assert.NotEmpty(t, id.Day)
	assert.NotEmpty(t, id.Month)
	assert.NotEmpty(t, id.Year)
	assert.NotEmpty(t, id.Gender)
}

func TestUsernameFormat(t *testing.T) {
	u := Username()
	var n int
	_, err := fmt.Sscanf(u, "user_%06d", &n)
	require.NoError(t, err)
}

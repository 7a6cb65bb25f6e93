// internal/identity/identity.go

// Package identity generates the throwaway values a signup bot types into
// the form: email, password, display name, birthday, and gender.
package identity

import (
	"fmt"
	mrand "math/rand"
	"sync"
	"time"
)

// passwordChars is the alphabet for generated passwords.
const passwordChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%"

const passwordLength = 12

var (
	mu  sync.Mutex
	rng = mrand.New(mrand.NewSource(time.Now().UnixNano()))
)

func intn(n int) int {
	mu.Lock()
	defer mu.Unlock()
	return rng.Intn(n)
}

// Identity is one bot's worth of generated signup data.
type Identity struct {
	Email    string
	Password string
	Username string
	Day      string
	Month    string
	Year     string
	Gender   string
}

// New generates a fresh identity. The email's local part carries a random
// six-digit suffix so concurrent bots do not collide.
func New(emailDomain string) Identity {
	day, month, year := Birthday()
	return Identity{
		Email:    Email(emailDomain),
		Password: Password(),
		Username: Username(),
		Day:      day,
		Month:    month,
		Year:     year,
		Gender:   Gender(),
	}
}

// Email generates a random signup email under the given domain.
func Email(domain string) string {
	return fmt.Sprintf("signup_%06d@%s", 100000+intn(900000), domain)
}

// Password generates a 12-character password over letters, digits and a
// small symbol set.
func Password() string {
	b := make([]byte, passwordLength)
	for i := range b {
		b[i] = passwordChars[intn(len(passwordChars))]
	}
	return string(b)
}

// Username generates a random display name.
func Username() string {
	return fmt.Sprintf("user_%06d", 100000+intn(900000))
}

// Birthday generates a random date of birth: day 1-28 (valid in every
// month), zero-padded month, year 1990-2005.
func Birthday() (day, month, year string) {
	day = fmt.Sprintf("%d", 1+intn(28))
	month = fmt.Sprintf("%02d", 1+intn(12))
	year = fmt.Sprintf("%d", 1990+intn(16))
	return day, month, year
}

// Gender picks male or female at random.
func Gender() string {
	if intn(2) == 0 {
		return "male"
	}
	return "female"
}

// ProxyFor deterministically rotates a bot onto a proxy from the configured
// list: proxies[botID mod len(proxies)]. An empty list means no proxy.
func ProxyFor(botID int, proxies []string) string {
	if len(proxies) == 0 {
		return ""
	}
	return proxies[botID%len(proxies)]
}

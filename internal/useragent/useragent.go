// Package useragent assigns each account a stable mobile user agent.
package useragent

import (
	"context"
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
)

// SessionStore is the key-value store user agents are persisted in.
type SessionStore interface {
	GetSession(ctx context.Context, key string) (string, bool, error)
	PutSession(ctx context.Context, key, value string) error
}

var agents = []string{
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_5 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Mobile/15E148",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 16_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Mobile/15E148",
	"Mozilla/5.0 (iPad; CPU OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Mobile/15E148",
	"Mozilla/5.0 (Linux; Android 14; Pixel 8 Build/UQ1A.240205.004; wv) AppleWebKit/537.36 (KHTML, like Gecko) Version/4.0 Chrome/127.0.6533.103 Mobile Safari/537.36",
	"Mozilla/5.0 (Linux; Android 13; SM-S911B Build/TP1A.220624.014; wv) AppleWebKit/537.36 (KHTML, like Gecko) Version/4.0 Chrome/127.0.6533.64 Mobile Safari/537.36",
	"Mozilla/5.0 (Linux; Android 12; Redmi Note 11 Build/SKQ1.211103.001; wv) AppleWebKit/537.36 (KHTML, like Gecko) Version/4.0 Chrome/126.0.6478.134 Mobile Safari/537.36",
}

var platformPatterns = []struct {
	re       *regexp.Regexp
	platform string
}{
	{regexp.MustCompile(`(?i)iPhone`), "ios"},
	{regexp.MustCompile(`(?i)Android`), "android"},
	{regexp.MustCompile(`(?i)iPad`), "ios"},
}

// Platform maps a user agent to the client-hint platform name.
func Platform(ua string) string {
	for _, p := range platformPatterns {
		if p.re.MatchString(ua) {
			return p.platform
		}
	}
	return "Unknown"
}

// Pick returns a random user agent from the built-in pool.
func Pick(rng *rand.Rand) string {
	if rng == nil {
		return agents[rand.Intn(len(agents))]
	}
	return agents[rng.Intn(len(agents))]
}

// Key is the session store key for an account index.
func Key(index int) string { return "ua:" + strconv.Itoa(index) }

// Resolve returns the stored user agent for the account, creating and
// persisting a new one on first use.
func Resolve(ctx context.Context, store SessionStore, index int, rng *rand.Rand) (string, bool, error) {
	key := Key(index)
	if ua, ok, err := store.GetSession(ctx, key); err != nil {
		return "", false, fmt.Errorf("load user agent: %w", err)
	} else if ok && strings.TrimSpace(ua) != "" {
		return ua, false, nil
	}
	ua := Pick(rng)
	if err := store.PutSession(ctx, key, ua); err != nil {
		return "", false, fmt.Errorf("save user agent: %w", err)
	}
	return ua, true, nil
}

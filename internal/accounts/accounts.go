// Package accounts loads the fixed account set and assigns egress proxies.
package accounts

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

var (
	ErrNoAccounts       = errors.New("no accounts loaded")
	ErrNotEnoughProxies = errors.New("not enough proxies for accounts")
)

// Account is one identity the sweeper works on.
type Account struct {
	Index int
	Token string
	// Proxy is empty when proxies are disabled.
	Proxy string
}

// Label is the 1-based display name used in logs.
func (a Account) Label() string { return "Account" + strconv.Itoa(a.Index+1) }

// LoadLines reads non-empty, trimmed lines. Lines starting with '#' are skipped.
// A missing file yields an empty list.
func LoadLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return out, nil
}

// Build pairs tokens with proxies round-robin. With proxies enabled there must
// be at least as many proxies as tokens.
func Build(tokens, proxies []string, useProxy bool) ([]Account, error) {
	if len(tokens) == 0 {
		return nil, ErrNoAccounts
	}
	if useProxy && len(tokens) > len(proxies) {
		return nil, fmt.Errorf("%w: accounts=%d proxies=%d", ErrNotEnoughProxies, len(tokens), len(proxies))
	}
	out := make([]Account, len(tokens))
	for i, tok := range tokens {
		out[i] = Account{Index: i, Token: tok}
		if useProxy {
			out[i].Proxy = proxies[i%len(proxies)]
		}
	}
	return out, nil
}

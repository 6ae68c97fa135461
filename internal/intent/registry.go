package intent

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Coin is one entry of the supported-coin registry. Name and Symbol are
// matched against the lowercased query.
type Coin struct {
	ID     string `yaml:"id"`
	Symbol string `yaml:"symbol"`
	Name   string `yaml:"name"`
}

// Registry is the ordered list of coins the chat parser recognises.
// The first coin whose name or symbol occurs in the query wins.
type Registry struct {
	coins []Coin
}

var defaultCoins = []Coin{
	{ID: "bitcoin", Symbol: "btc", Name: "bitcoin"},
	{ID: "ethereum", Symbol: "eth", Name: "ethereum"},
	{ID: "binancecoin", Symbol: "bnb", Name: "binance coin"},
	{ID: "cardano", Symbol: "ada", Name: "cardano"},
	{ID: "solana", Symbol: "sol", Name: "solana"},
	{ID: "ripple", Symbol: "xrp", Name: "ripple"},
	{ID: "polkadot", Symbol: "dot", Name: "polkadot"},
	{ID: "dogecoin", Symbol: "doge", Name: "dogecoin"},
	{ID: "avalanche-2", Symbol: "avax", Name: "avalanche"},
	{ID: "chainlink", Symbol: "link", Name: "chainlink"},
}

// DefaultRegistry returns the built-in top ten coins
func DefaultRegistry() *Registry {
	reg, _ := NewRegistry(defaultCoins)
	return reg
}

// NewRegistry validates and normalises coins, keeping their order
func NewRegistry(coins []Coin) (*Registry, error) {
	if len(coins) == 0 {
		return nil, fmt.Errorf("coin registry is empty")
	}

	seen := make(map[string]bool, len(coins))
	out := make([]Coin, 0, len(coins))
	for i, c := range coins {
		c.ID = strings.TrimSpace(c.ID)
		c.Symbol = strings.ToLower(strings.TrimSpace(c.Symbol))
		c.Name = strings.ToLower(strings.TrimSpace(c.Name))

		if c.ID == "" {
			return nil, fmt.Errorf("coin %d: id is required", i)
		}
		if c.Symbol == "" && c.Name == "" {
			return nil, fmt.Errorf("coin %s: name or symbol is required", c.ID)
		}
		if seen[c.ID] {
			return nil, fmt.Errorf("coin %s: duplicate id", c.ID)
		}
		seen[c.ID] = true
		out = append(out, c)
	}
	return &Registry{coins: out}, nil
}

type registryFile struct {
	Coins []Coin `yaml:"coins"`
}

// LoadRegistry reads a YAML registry file of the form
//
//	coins:
//	  - id: bitcoin
//	    symbol: btc
//	    name: bitcoin
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path) // #nosec G304 - operator supplied path
	if err != nil {
		return nil, fmt.Errorf("failed to read coin registry: %w", err)
	}

	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse coin registry %s: %w", path, err)
	}
	return NewRegistry(file.Coins)
}

// Match returns the first coin whose name or symbol is a substring of
// query, or nil. query must already be lowercased.
func (r *Registry) Match(query string) *Coin {
	for i := range r.coins {
		c := r.coins[i]
		if (c.Name != "" && strings.Contains(query, c.Name)) ||
			(c.Symbol != "" && strings.Contains(query, c.Symbol)) {
			return &c
		}
	}
	return nil
}

// Coins returns a copy of the registry entries in match order
func (r *Registry) Coins() []Coin {
	out := make([]Coin, len(r.coins))
	copy(out, r.coins)
	return out
}

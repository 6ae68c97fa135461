// Package intent turns a free-text market question into a classified
// query. Classification is an ordered rule list; the first rule that
// matches decides the intent.
package intent

import (
	"regexp"
	"strconv"
	"strings"
)

// Intent is the classified purpose of a query
type Intent string

const (
	Price     Intent = "PRICE"
	Trend     Intent = "TREND"
	Top       Intent = "TOP"
	MarketCap Intent = "MARKET_CAP"
	Volume    Intent = "VOLUME"
	Change    Intent = "CHANGE"
	Unknown   Intent = "UNKNOWN"

	// Help is reported for queries no rule matched
	Help Intent = "HELP"
)

const (
	DefaultDays  = 7
	DefaultCount = 5
)

// Query is a parsed chat question
type Query struct {
	Text   string
	Intent Intent
	Coin   *Coin
	Days   int
	Count  int
}

// CoinID returns the resolved coin id, or "" when none was found
func (q Query) CoinID() string {
	if q.Coin == nil {
		return ""
	}
	return q.Coin.ID
}

type rule struct {
	intent  Intent
	matches func(query string) bool
}

var (
	priceRe     = regexp.MustCompile(`\b(price|cost|worth|value|how much)\b`)
	trendRe     = regexp.MustCompile(`\b(trend|chart|graph|history|historical|\d+[\s-]?day)\b`)
	topRe       = regexp.MustCompile(`\b(top|best|leading|highest)\b`)
	marketCapRe = regexp.MustCompile(`\b(market cap|marketcap|cap)\b`)
	volumeRe    = regexp.MustCompile(`\b(volume|trading volume)\b`)
	changeRe    = regexp.MustCompile(`\b(change|performance|gain|loss|up|down)\b`)
	dailyRe     = regexp.MustCompile(`\b(24h|24 hour)\b`)

	daysRe     = regexp.MustCompile(`(\d+)[\s-]?day`)
	topCountRe = regexp.MustCompile(`top\s+(\d+)`)
	numberRe   = regexp.MustCompile(`(\d+)`)
)

// rules is evaluated in order. PRICE outranks TOP, so
// "what is the top price of bitcoin" is a price question.
var rules = []rule{
	{Price, priceRe.MatchString},
	{Trend, trendRe.MatchString},
	{Top, topRe.MatchString},
	{MarketCap, marketCapRe.MatchString},
	{Volume, volumeRe.MatchString},
	{Change, func(q string) bool { return changeRe.MatchString(q) && !dailyRe.MatchString(q) }},
}

// Parser classifies queries against a coin registry
type Parser struct {
	registry *Registry
}

// NewParser creates a parser. A nil registry uses DefaultRegistry.
func NewParser(registry *Registry) *Parser {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Parser{registry: registry}
}

// Registry returns the coin registry in use
func (p *Parser) Registry() *Registry {
	return p.registry
}

// Normalize lowercases and trims a raw query
func Normalize(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// Parse classifies raw and extracts the parameters its intent needs
func (p *Parser) Parse(raw string) Query {
	text := Normalize(raw)
	q := Query{Text: text, Intent: Unknown}

	for _, r := range rules {
		if r.matches(text) {
			q.Intent = r.intent
			break
		}
	}

	switch q.Intent {
	case Price, MarketCap, Volume, Change:
		q.Coin = p.registry.Match(text)
	case Trend:
		q.Coin = p.registry.Match(text)
		q.Days = ExtractDays(text)
	case Top:
		q.Count = ExtractCount(text)
	}
	return q
}

// ExtractDays reads "<N> day"/"<N>-day", then "week" or "month". Anything
// else, including a non-positive N, yields DefaultDays.
func ExtractDays(query string) int {
	if m := daysRe.FindStringSubmatch(query); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			return n
		}
		return DefaultDays
	}
	if strings.Contains(query, "week") {
		return 7
	}
	if strings.Contains(query, "month") {
		return 30
	}
	return DefaultDays
}

// ExtractCount reads "top <N>", then the first number in the query,
// falling back to DefaultCount
func ExtractCount(query string) int {
	m := topCountRe.FindStringSubmatch(query)
	if m == nil {
		m = numberRe.FindStringSubmatch(query)
	}
	if m == nil {
		return DefaultCount
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return DefaultCount
	}
	return n
}

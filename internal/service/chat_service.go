package service

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/crypto-assistant/internal/errors"
	"github.com/crypto-assistant/internal/intent"
	"github.com/crypto-assistant/internal/logging"
	"github.com/crypto-assistant/internal/metrics"
	"github.com/crypto-assistant/internal/models"
)

// Reasons a chat response could not answer the question
const (
	ReasonCoinUnspecified    = "coin_unspecified"
	ReasonCoinNotFound       = "coin_not_found"
	ReasonHistoryUnavailable = "history_unavailable"
	ReasonNoMarketData       = "no_market_data"
	ReasonUnrecognized       = "unrecognized_query"
	ReasonInternalError      = "internal_error"
)

const (
	helpAnswer = "I can help you with:\n" +
		"• Cryptocurrency prices (e.g., 'What is the price of Bitcoin?')\n" +
		"• Price trends (e.g., 'Show me 7-day trend of Ethereum')\n" +
		"• Top coins (e.g., 'Top 5 cryptocurrencies')\n" +
		"• Market cap and volume information"

	fallbackAnswer = "Sorry, I couldn't understand your question. " +
		"Try asking about cryptocurrency prices, trends, or top coins."
)

var unspecifiedAnswers = map[intent.Intent]string{
	intent.Price:     "Please specify which cryptocurrency you'd like to know about.",
	intent.Trend:     "Please specify which cryptocurrency trend you'd like to see.",
	intent.MarketCap: "Please specify which cryptocurrency's market cap you'd like to know.",
	intent.Volume:    "Please specify which cryptocurrency's volume you'd like to know.",
	intent.Change:    "Please specify which cryptocurrency's change you'd like to know.",
}

// ChatResponse is the answer to one chat query. Answered is false when
// the question was understood but could not be answered; Reason says why.
type ChatResponse struct {
	Answer    string              `json:"answer"`
	Intent    intent.Intent       `json:"intent"`
	Coin      string              `json:"coin,omitempty"`
	Data      interface{}         `json:"data,omitempty"`
	ChartData []models.PricePoint `json:"chartData,omitempty"`
	Answered  bool                `json:"answered"`
	Reason    string              `json:"reason,omitempty"`
	Error     bool                `json:"error,omitempty"`
}

// CoinQuote is the data payload of price and top answers
type CoinQuote struct {
	Name      string  `json:"name"`
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Change24h float64 `json:"change24h"`
}

// ChatService answers natural-language market questions
type ChatService struct {
	parser *intent.Parser
	market *MarketService
	logger *logging.Logger
}

// NewChatService creates a chat service. A nil parser uses the built-in
// coin registry.
func NewChatService(parser *intent.Parser, market *MarketService) *ChatService {
	if parser == nil {
		parser = intent.NewParser(nil)
	}
	return &ChatService{
		parser: parser,
		market: market,
		logger: logging.WithComponent("chat_service"),
	}
}

// ProcessQuery parses and answers a question. Only a blank query is an
// error; failures while answering become a generic UNKNOWN response.
func (s *ChatService) ProcessQuery(ctx context.Context, raw string) (resp *ChatResponse, err error) {
	if strings.TrimSpace(raw) == "" {
		return nil, apperrors.NewValidationError("query", "query is required")
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.WithField("panic", fmt.Sprint(r)).Error("Chat query panicked")
			resp, err = fallbackResponse(), nil
		}
		if resp != nil {
			metrics.RecordChatQuery(string(resp.Intent), resp.Answered)
		}
	}()

	q := s.parser.Parse(raw)
	s.logger.WithFields(map[string]interface{}{
		"query":  q.Text,
		"intent": q.Intent,
		"coin":   q.CoinID(),
	}).Info("Processing chat query")

	resp, err = s.respond(ctx, q)
	if err != nil {
		s.logger.WithError(err).Error("Failed to answer chat query")
		return fallbackResponse(), nil
	}
	return resp, nil
}

func fallbackResponse() *ChatResponse {
	return &ChatResponse{
		Answer: fallbackAnswer,
		Intent: intent.Unknown,
		Reason: ReasonInternalError,
		Error:  true,
	}
}

func unanswered(in intent.Intent, reason, answer string) *ChatResponse {
	return &ChatResponse{Answer: answer, Intent: in, Reason: reason}
}

func (s *ChatService) respond(ctx context.Context, q intent.Query) (*ChatResponse, error) {
	switch q.Intent {
	case intent.Top:
		return s.answerTop(ctx, q.Count)
	case intent.Unknown:
		return unanswered(intent.Help, ReasonUnrecognized, helpAnswer), nil
	}

	if q.Coin == nil {
		return unanswered(q.Intent, ReasonCoinUnspecified, unspecifiedAnswers[q.Intent]), nil
	}

	coin, _, err := s.market.Coin(ctx, q.Coin.ID)
	if apperrors.IsNotFound(err) {
		answer := fmt.Sprintf("Sorry, I couldn't find data for %s.", q.Coin.ID)
		if q.Intent == intent.Price {
			answer += " Try one of the top 10 cryptocurrencies."
		}
		return unanswered(q.Intent, ReasonCoinNotFound, answer), nil
	}
	if err != nil {
		return nil, err
	}

	switch q.Intent {
	case intent.Price:
		return answerPrice(coin), nil
	case intent.Trend:
		return s.answerTrend(ctx, coin, q.Days)
	case intent.MarketCap:
		return answered(q.Intent, coin,
			fmt.Sprintf("%s has a market cap of $%s", label(coin), intent.FormatLargeNumber(coin.MarketCap)),
			map[string]float64{"marketCap": coin.MarketCap}), nil
	case intent.Volume:
		return answered(q.Intent, coin,
			fmt.Sprintf("%s has a 24h trading volume of $%s", label(coin), intent.FormatLargeNumber(coin.TotalVolume)),
			map[string]float64{"volume": coin.TotalVolume}), nil
	case intent.Change:
		pct := coin.PriceChangePercentage24h
		return answered(q.Intent, coin,
			fmt.Sprintf("%s is %s %s%% in the last 24 hours", label(coin), intent.ChangeIndicator(pct), intent.FormatPercent(pct)),
			map[string]float64{"change24h": pct}), nil
	}
	return nil, fmt.Errorf("unhandled intent %s", q.Intent)
}

func label(coin *models.CoinSnapshot) string {
	return fmt.Sprintf("%s (%s)", coin.Name, strings.ToUpper(coin.Symbol))
}

func quote(coin *models.CoinSnapshot) CoinQuote {
	return CoinQuote{
		Name:      coin.Name,
		Symbol:    coin.Symbol,
		Price:     coin.CurrentPrice,
		Change24h: coin.PriceChangePercentage24h,
	}
}

func answered(in intent.Intent, coin *models.CoinSnapshot, answer string, data interface{}) *ChatResponse {
	return &ChatResponse{
		Answer:   answer,
		Intent:   in,
		Coin:     coin.CoinID,
		Data:     data,
		Answered: true,
	}
}

func answerPrice(coin *models.CoinSnapshot) *ChatResponse {
	pct := coin.PriceChangePercentage24h
	answer := fmt.Sprintf("The current price of %s is %s. %s 24h change: %s%%",
		label(coin), intent.FormatPrice(coin.CurrentPrice), intent.ChangeIndicator(pct), intent.FormatPercent(pct))
	return answered(intent.Price, coin, answer, quote(coin))
}

func (s *ChatService) answerTrend(ctx context.Context, coin *models.CoinSnapshot, days int) (*ChatResponse, error) {
	if days <= 0 {
		days = intent.DefaultDays
	}

	series, _, err := s.market.History(ctx, coin.CoinID, days)
	if apperrors.IsNotFound(err) || (err == nil && len(series.Prices) == 0) {
		return unanswered(intent.Trend, ReasonHistoryUnavailable,
			fmt.Sprintf("Historical data for %s is not available yet.", coin.Name)), nil
	}
	if err != nil {
		return nil, err
	}

	resp := answered(intent.Trend, coin,
		fmt.Sprintf("Here's the %d-day price trend for %s", days, label(coin)), nil)
	resp.ChartData = series.Prices
	return resp, nil
}

func (s *ChatService) answerTop(ctx context.Context, count int) (*ChatResponse, error) {
	if count <= 0 {
		count = intent.DefaultCount
	}
	// The header reports what TopCoins will actually return
	count = min(count, MaxTopCount)

	coins, _, err := s.market.TopCoins(ctx, count)
	if apperrors.IsNotFound(err) {
		return unanswered(intent.Top, ReasonNoMarketData, "No cryptocurrency data available."), nil
	}
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Top %d cryptocurrencies by market cap:\n\n", count)
	quotes := make([]CoinQuote, 0, len(coins))
	for i := range coins {
		c := &coins[i]
		pct := c.PriceChangePercentage24h
		fmt.Fprintf(&b, "%d. %s - %s %s %s%%\n",
			i+1, label(c), intent.FormatPrice(c.CurrentPrice), intent.ChangeIndicator(pct), intent.FormatPercent(pct))
		quotes = append(quotes, quote(c))
	}

	return &ChatResponse{
		Answer:   b.String(),
		Intent:   intent.Top,
		Data:     quotes,
		Answered: true,
	}, nil
}

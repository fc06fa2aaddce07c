// Package analyst asks an LLM for a market read over recent bars and
// indicator values. The model's answer is advisory input to the strategy,
// never an order by itself.
package analyst

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"tradedeck/internal/indicator"
	"tradedeck/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// Advice actions.
const (
	ActionBuy  = "BUY"
	ActionSell = "SELL"
	ActionHold = "HOLD"
)

// Advice is the parsed model response.
type Advice struct {
	Action     string  `json:"action"`     // BUY, SELL, or HOLD
	Confidence float64 `json:"confidence"` // 0..1
	Reasoning  string  `json:"reasoning"`
}

// completionAPI is the slice of the OpenAI client the analyst needs.
// Narrowed for testability.
type completionAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Analyst produces trading advice from market context via an LLM.
type Analyst struct {
	client completionAPI
	model  string
	log    *slog.Logger
}

// New creates an Analyst with the given OpenAI API key.
func New(apiKey string, log *slog.Logger) *Analyst {
	return &Analyst{
		client: openai.NewClient(apiKey),
		model:  openai.GPT4oMini,
		log:    log,
	}
}

// Analyze sends recent closes plus the latest indicator values to the LLM
// and parses its structured answer. Returns HOLD with zero confidence when
// the response cannot be parsed.
func (a *Analyst) Analyze(ctx context.Context, product string, bars []model.Bar, outputs []indicator.Output) (Advice, error) {
	prompt := BuildPrompt(product, bars, outputs)

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return Advice{}, fmt.Errorf("llm completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Advice{Action: ActionHold}, nil
	}

	advice := ParseAdvice(resp.Choices[0].Message.Content)
	a.log.Info("llm advice",
		slog.String("product", product),
		slog.String("action", advice.Action),
		slog.Float64("confidence", advice.Confidence),
	)
	return advice, nil
}

// BuildPrompt renders the market context the model sees: recent closes and
// the newest defined value of each requested indicator line.
func BuildPrompt(product string, bars []model.Bar, outputs []indicator.Output) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are a trading assistant. Recent %s bars (oldest first):\n", product)

	start := len(bars) - 10
	if start < 0 {
		start = 0
	}
	for _, b := range bars[start:] {
		fmt.Fprintf(&sb, "%s open=%.2f close=%.2f volume=%.4f\n",
			b.TS.Format("2006-01-02 15:04"), b.Open, b.Close, b.Volume)
	}

	sb.WriteString("\nLatest indicator values:\n")
	for _, out := range outputs {
		for name, line := range out.Lines {
			if v, ok := lastDefined(line); ok {
				fmt.Fprintf(&sb, "%s %s=%.4f\n", out.Name, name, v)
			}
		}
	}

	sb.WriteString(`
Answer with exactly three lines:
Action: BUY, SELL, or HOLD
Confidence: a number from 0 to 100
Reasoning: one or two sentences
`)
	return sb.String()
}

func lastDefined(line []float64) (float64, bool) {
	for i := len(line) - 1; i >= 0; i-- {
		if !indicator.IsUndefined(line[i]) {
			return line[i], true
		}
	}
	return 0, false
}

// ParseAdvice extracts the Action/Confidence/Reasoning lines. Parsing is
// lenient: unknown actions or garbage confidence degrade to HOLD / 0.
func ParseAdvice(text string) Advice {
	advice := Advice{Action: ActionHold}

	for _, line := range strings.Split(text, "\n") {
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "action", "direction":
			action := strings.ToUpper(strings.Trim(value, " ."))
			if action == ActionBuy || action == ActionSell || action == ActionHold {
				advice.Action = action
			}
		case "confidence":
			value = strings.TrimSuffix(value, "%")
			if v, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil && v >= 0 && v <= 100 {
				advice.Confidence = v / 100.0
			}
		case "reasoning", "explanation":
			advice.Reasoning = value
		}
	}
	return advice
}

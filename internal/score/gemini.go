package score

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"google.golang.org/genai"

	"github.com/contaflux/bankrecon/internal/domain"
)

// Gemini scores matches and proposes adjustments through the Gemini API.
// It expects the model to answer with STRICT JSON; markdown fences are
// stripped defensively when the model ignores instructions.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates the oracle. Credentials come from the environment, the
// same way the rest of the platform authenticates to Google APIs.
func NewGemini(ctx context.Context, model string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

const scorePrompt = "You are a bank reconciliation assistant for a Brazilian accounting platform.\n\n" +
	"Task:\n" +
	"- Rate how likely the bank statement line and the ledger entry below describe the SAME cash movement.\n" +
	"- Consider date proximity, description similarity (abbreviations, company suffixes like Ltda/SA/ME) and context.\n" +
	"- Output STRICT JSON only (no comments, no extra text).\n\n" +
	"Output exactly: {\"confidence\": <number between 0 and 1>}\n" +
	"Do NOT wrap the response in code fences.\n"

const proposePrompt = "You are a bank reconciliation assistant for a Brazilian accounting platform.\n\n" +
	"Task:\n" +
	"- The record below could not be matched. Propose ONE corrective ledger posting that resolves it.\n" +
	"- For an unmatched bank movement, propose the missing ledger entry mirroring it.\n" +
	"- For an unmatched ledger entry, propose a reversing entry flagging it for review.\n" +
	"- Output STRICT JSON only (no comments, no extra text).\n\n" +
	"Output exactly:\n" +
	"{\"date\": \"YYYY-MM-DD\", \"amount\": <signed integer minor units>, \"description\": string, \"account_hint\": string, \"confidence\": <number between 0 and 1>}\n" +
	"Do NOT wrap the response in code fences.\n"

// Score implements Scorer.
func (g *Gemini) Score(ctx context.Context, line domain.BankLine, entry domain.LedgerEntry) (float64, error) {
	payload := fmt.Sprintf(
		"Bank line: date=%s amount=%d description=%q\nLedger entry: date=%s amount=%d description=%q\n",
		line.Date, line.Amount, line.Description,
		entry.Date, entry.Amount, entry.Description,
	)

	raw, err := g.generate(ctx, scorePrompt+"\n"+payload)
	if err != nil {
		return 0, err
	}

	var out struct {
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return 0, fmt.Errorf("gemini score: unmarshal %q: %w", raw, err)
	}
	return clamp(out.Confidence), nil
}

// ProposeAdjustment implements Scorer.
func (g *Gemini) ProposeAdjustment(ctx context.Context, d domain.Discrepancy) (domain.ProposedEntry, float64, error) {
	payload := fmt.Sprintf(
		"Unmatched record: kind=%s date=%s amount=%d description=%q\n",
		d.Kind, d.Date, d.Amount, d.Description,
	)

	raw, err := g.generate(ctx, proposePrompt+"\n"+payload)
	if err != nil {
		return domain.ProposedEntry{}, 0, err
	}

	var out struct {
		Date        string  `json:"date"`
		Amount      int64   `json:"amount"`
		Description string  `json:"description"`
		AccountHint string  `json:"account_hint"`
		Confidence  float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return domain.ProposedEntry{}, 0, fmt.Errorf("gemini propose: unmarshal %q: %w", raw, err)
	}

	date, err := time.Parse("2006-01-02", out.Date)
	if err != nil {
		return domain.ProposedEntry{}, 0, fmt.Errorf("gemini propose: invalid date %q: %w", out.Date, err)
	}

	return domain.ProposedEntry{
		Date:        civil.DateOf(date),
		Amount:      out.Amount,
		Description: out.Description,
		AccountHint: out.AccountHint,
	}, clamp(out.Confidence), nil
}

func (g *Gemini) generate(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: prompt},
			},
		},
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}

	rawText := resp.Text()
	if rawText == "" {
		return "", fmt.Errorf("gemini: empty response from model")
	}
	return cleanModelJSON(rawText), nil
}

// cleanModelJSON strips Markdown fences and surrounding junk when the
// model ignores the strict-JSON instruction.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}

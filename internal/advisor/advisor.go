// Package advisor answers shopper questions through a hosted generative
// language model. It is advisory only: every failure path degrades to a
// polite canned reply so the shop never depends on the model being up.
package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"hivestore/backend/internal/domain"
)

// Fallback is returned whenever the model cannot produce an answer.
const Fallback = "Sorry, I cannot answer right now. Please try again shortly or contact the store directly."

// Message is one turn of the shopper/assistant conversation.
type Message struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

type Client struct {
	endpoint string
	apiKey   string
	model    string
	http     *http.Client
}

func New(endpoint string, apiKey string, model string) *Client {
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		model:    model,
		http:     &http.Client{Timeout: 20 * time.Second},
	}
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Advise answers one shopper question against the current catalog, with the
// prior conversation turns as context.
func (c *Client) Advise(ctx context.Context, query string, products []domain.Product, history []Message) string {
	if c.apiKey == "" {
		return Fallback
	}

	payload := generateRequest{
		Contents: []content{{Parts: []part{{Text: c.buildPrompt(query, products, history)}}}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Fallback
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.endpoint, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Fallback
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		log.Printf("[advisor] WARN: model call failed: %v", err)
		return Fallback
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Printf("[advisor] WARN: model returned status %d", resp.StatusCode)
		return Fallback
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Fallback
	}
	var decoded generateResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return Fallback
	}
	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return Fallback
	}
	answer := strings.TrimSpace(decoded.Candidates[0].Content.Parts[0].Text)
	if answer == "" {
		return Fallback
	}
	return answer
}

// buildPrompt folds the catalog and conversation into a single instruction
// block: persona first, then the product summary the model may recommend
// from, then the prior turns, then the new question.
func (c *Client) buildPrompt(query string, products []domain.Product, history []Message) string {
	var b strings.Builder
	b.WriteString("You are a friendly shopping assistant for an online store. ")
	b.WriteString("Recommend only products from the catalog below, mention prices, and keep answers short. ")
	b.WriteString("If nothing in the catalog fits, say so honestly.\n\nCatalog:\n")

	for _, p := range products {
		if p.Stock <= 0 {
			continue
		}
		fmt.Fprintf(&b, "- %s (%.2f): %s\n", p.Name, p.EffectivePrice(), p.Description)
	}

	if len(history) > 0 {
		b.WriteString("\nConversation so far:\n")
		for _, m := range history {
			fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Text)
		}
	}

	b.WriteString("\nCustomer question: ")
	b.WriteString(query)
	return b.String()
}

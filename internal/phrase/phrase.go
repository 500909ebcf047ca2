// Package phrase fetches the cosmetic booking-confirmation message from an
// external text-generation service. The message is decorative: when the
// service is unconfigured, slow or failing, a deterministic default is
// used instead and booking proceeds normally.
package phrase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type Generator interface {
	ConfirmationMessage(ctx context.Context, fare float64, lang string) string
}

// Client posts a prompt to a completion-style HTTP endpoint.
type Client struct {
	Endpoint string
	APIKey   string
	HTTP     *http.Client
}

func NewClient(endpoint, apiKey string) *Client {
	return &Client{Endpoint: endpoint, APIKey: apiKey, HTTP: &http.Client{Timeout: 3 * time.Second}}
}

func (c *Client) ConfirmationMessage(ctx context.Context, fare float64, lang string) string {
	if c == nil || c.Endpoint == "" {
		return DefaultMessage(fare, lang)
	}
	body, _ := json.Marshal(map[string]any{
		"prompt": fmt.Sprintf(
			"Write a short, friendly confirmation message in %s for a user who just booked a ride for Bs. %.2f. Mention the ride is confirmed and on its way. Keep it under 40 words.",
			languageName(lang), fare),
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return DefaultMessage(fare, lang)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return DefaultMessage(fare, lang)
	}
	defer resp.Body.Close()
	var out struct {
		Text string `json:"text"`
	}
	if resp.StatusCode != http.StatusOK || json.NewDecoder(resp.Body).Decode(&out) != nil || out.Text == "" {
		return DefaultMessage(fare, lang)
	}
	return out.Text
}

// DefaultMessage is the deterministic fallback, per display language.
func DefaultMessage(fare float64, lang string) string {
	switch lang {
	case "es":
		return fmt.Sprintf("¡Tu viaje por Bs. %.2f está confirmado! Tu conductor ya está en camino.", fare)
	case "pt":
		return fmt.Sprintf("Sua viagem de Bs. %.2f está confirmada! Seu motorista está a caminho.", fare)
	default:
		return fmt.Sprintf("Your ride for Bs. %.2f is confirmed! Your driver is on the way.", fare)
	}
}

func languageName(lang string) string {
	switch lang {
	case "es":
		return "Spanish"
	case "pt":
		return "Brazilian Portuguese"
	default:
		return "English"
	}
}

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// Telegram sends bot messages via the Bot API. An empty token turns it into a
// logger, which keeps dev setups working without credentials.
type Telegram struct {
	Token  string
	Client *http.Client
}

func NewTelegram(token string) *Telegram {
	return &Telegram{
		Token:  token,
		Client: &http.Client{Timeout: 10 * time.Second},
	}
}

type tgSendReq struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

func (t *Telegram) Notify(ctx context.Context, recipient, text string) error {
	if t.Token == "" {
		log.Printf("notify (no bot token) chat=%s: %s", recipient, text)
		return nil
	}

	body, err := json.Marshal(tgSendReq{ChatID: recipient, Text: text})
	if err != nil {
		return err
	}

	u := "https://api.telegram.org/bot" + t.Token + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram: status %d", resp.StatusCode)
	}
	return nil
}

// Recorder captures notifications for tests.
type Recorder struct {
	Sent []string
}

func (r *Recorder) Notify(_ context.Context, recipient, text string) error {
	r.Sent = append(r.Sent, recipient+": "+text)
	return nil
}

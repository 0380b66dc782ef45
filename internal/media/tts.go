package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/studioforge/media-platform/internal/queue"
)

// TTSEngine drives an F5-TTS style inference server over HTTP. The server
// reads source blobs and writes the result through the blob gateway itself;
// only references cross this boundary.
type TTSEngine struct {
	BaseURL string
	Speed   float64
	Client  *http.Client
}

func NewTTSEngine(baseURL string) *TTSEngine {
	if baseURL == "" {
		baseURL = "http://localhost:7860"
	}
	return &TTSEngine{
		BaseURL: baseURL,
		Speed:   1.0,
		// GPU synthesis of a long script can take minutes
		Client: &http.Client{Timeout: 15 * time.Minute},
	}
}

type ttsReq struct {
	Text          string  `json:"text"`
	ReferenceRef  string  `json:"reference_ref,omitempty"`
	Speed         float64 `json:"speed"`
	RemoveSilence bool    `json:"remove_silence"`
}

type ttsResp struct {
	AudioRef string `json:"audio_ref"`
	Error    string `json:"error,omitempty"`
}

func (e *TTSEngine) Execute(ctx context.Context, job *queue.Job) (string, error) {
	body, err := json.Marshal(ttsReq{
		Text:          job.ScriptText,
		ReferenceRef:  job.ReferenceRef,
		Speed:         e.Speed,
		RemoveSilence: true,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.BaseURL+"/synthesize", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out ttsResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("tts: decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if out.Error != "" {
			return "", fmt.Errorf("tts: %s", out.Error)
		}
		return "", fmt.Errorf("tts: status %d", resp.StatusCode)
	}
	if out.AudioRef == "" {
		return "", fmt.Errorf("tts: empty audio_ref in response")
	}
	return out.AudioRef, nil
}

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

// EncoderEngine drives the video encoder service: one audio track plus a
// still image plus burned-in subtitles in, one video reference out.
type EncoderEngine struct {
	BaseURL string
	Client  *http.Client
}

func NewEncoderEngine(baseURL string) *EncoderEngine {
	if baseURL == "" {
		baseURL = "http://localhost:7870"
	}
	return &EncoderEngine{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 30 * time.Minute},
	}
}

type encodeReq struct {
	AudioRef      string `json:"audio_ref"`
	ImageRef      string `json:"image_ref"`
	SubtitleStyle string `json:"subtitle_style,omitempty"`
}

type encodeResp struct {
	VideoRef string `json:"video_ref"`
	Error    string `json:"error,omitempty"`
}

func (e *EncoderEngine) Execute(ctx context.Context, job *queue.Job) (string, error) {
	body, err := json.Marshal(encodeReq{
		AudioRef:      job.AudioRef,
		ImageRef:      job.ImageRef,
		SubtitleStyle: job.SubtitleStyle,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.BaseURL+"/encode", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out encodeResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("encoder: decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if out.Error != "" {
			return "", fmt.Errorf("encoder: %s", out.Error)
		}
		return "", fmt.Errorf("encoder: status %d", resp.StatusCode)
	}
	if out.VideoRef == "" {
		return "", fmt.Errorf("encoder: empty video_ref in response")
	}
	return out.VideoRef, nil
}

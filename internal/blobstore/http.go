package blobstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// HTTPStore talks to the drive-gateway sidecar, which fronts the actual cloud
// drive and hands out opaque file references.
type HTTPStore struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPStore(baseURL string) *HTTPStore {
	if baseURL == "" {
		baseURL = "http://localhost:9000"
	}
	return &HTTPStore{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 5 * time.Minute},
	}
}

type refResp struct {
	Ref   string `json:"ref"`
	Error string `json:"error,omitempty"`
}

func (s *HTTPStore) Upload(ctx context.Context, data []byte, destination string) (string, error) {
	u := s.BaseURL + "/blobs?dest=" + url.QueryEscape(destination)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := s.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out refResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("blobstore: decode upload response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || out.Ref == "" {
		return "", fmt.Errorf("blobstore: upload failed (status %d): %s", resp.StatusCode, out.Error)
	}
	return out.Ref, nil
}

func (s *HTTPStore) Download(ctx context.Context, ref string) ([]byte, error) {
	u := s.BaseURL + "/blobs/" + url.PathEscape(ref)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("blobstore: download %s: status %d", ref, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (s *HTTPStore) Copy(ctx context.Context, ref, destination string) (string, error) {
	u := s.BaseURL + "/blobs/" + url.PathEscape(ref) + "/copy?dest=" + url.QueryEscape(destination)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return "", err
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out refResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("blobstore: decode copy response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || out.Ref == "" {
		return "", fmt.Errorf("blobstore: copy %s failed (status %d): %s", ref, resp.StatusCode, out.Error)
	}
	return out.Ref, nil
}

func (s *HTTPStore) Delete(ctx context.Context, ref string) error {
	u := s.BaseURL + "/blobs/" + url.PathEscape(ref)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return err
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("blobstore: delete %s: status %d", ref, resp.StatusCode)
	}
	return nil
}

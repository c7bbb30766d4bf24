package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const wahaSession = "default"

// WahaService sends WhatsApp messages through a WAHA gateway
type WahaService struct {
	baseURL     string
	apiKey      string
	countryCode string
	client      *http.Client
	// pauses between seen, typing, stop typing and send
	pauses [3]time.Duration
}

func NewWahaService(baseURL, apiKey, countryCode string) *WahaService {
	if baseURL == "" {
		baseURL = "http://waha:3000"
	}
	if countryCode == "" {
		countryCode = "44"
	}
	return &WahaService{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		countryCode: countryCode,
		client:      &http.Client{Timeout: 10 * time.Second},
		pauses:      [3]time.Duration{100 * time.Millisecond, 150 * time.Millisecond, 50 * time.Millisecond},
	}
}

func (s *WahaService) makeRequest(ctx context.Context, method, endpoint string, payload interface{}) error {
	var bodyReader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		bodyReader = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+endpoint, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

func (s *WahaService) chatAction(ctx context.Context, endpoint, chatID string) error {
	return s.makeRequest(ctx, http.MethodPost, endpoint, map[string]string{
		"chatId":  chatID,
		"session": wahaSession,
	})
}

func (s *WahaService) sendText(ctx context.Context, chatID, text string) error {
	return s.makeRequest(ctx, http.MethodPost, "/api/sendText", map[string]string{
		"chatId":  chatID,
		"text":    text,
		"session": wahaSession,
	})
}

// NormalizeChatID adds the @c.us suffix and replaces a leading trunk 0 with the
// country code. Group ids are returned unchanged.
func NormalizeChatID(chatID, countryCode string) string {
	chatID = strings.TrimSpace(chatID)

	if strings.HasSuffix(chatID, "@g.us") {
		return chatID
	}

	chatID = strings.TrimSuffix(chatID, "@c.us")
	chatID = strings.TrimPrefix(chatID, "+")

	if strings.HasPrefix(chatID, "0") {
		chatID = countryCode + strings.TrimPrefix(chatID, "0")
	}

	return chatID + "@c.us"
}

// SendMessage sends a message the way a person would: seen, typing, stop typing, send
func (s *WahaService) SendMessage(ctx context.Context, chatID, text string) error {
	chatID = NormalizeChatID(chatID, s.countryCode)

	steps := []struct {
		endpoint string
		name     string
	}{
		{"/api/sendSeen", "send seen"},
		{"/api/startTyping", "start typing"},
		{"/api/stopTyping", "stop typing"},
	}
	for i, step := range steps {
		if err := s.chatAction(ctx, step.endpoint, chatID); err != nil {
			return fmt.Errorf("failed to %s: %w", step.name, err)
		}
		if err := pause(ctx, s.pauses[i]); err != nil {
			return err
		}
	}

	if err := s.sendText(ctx, chatID, text); err != nil {
		return fmt.Errorf("failed to send text: %w", err)
	}
	return nil
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

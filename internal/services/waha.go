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

// DefaultCountryCode replaces the trunk prefix 0 of local mobile numbers
const DefaultCountryCode = "91"

// WahaService sends WhatsApp messages through a WAHA (WhatsApp HTTP API) instance
type WahaService struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewWahaService(baseURL, apiKey string) *WahaService {
	if baseURL == "" {
		baseURL = "http://waha:3000"
	}
	return &WahaService{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
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

	req, err := http.NewRequestWithContext(ctx, method, fmt.Sprintf("%s%s", s.baseURL, endpoint), bodyReader)
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

func (s *WahaService) sendSeen(ctx context.Context, chatId string) error {
	return s.makeRequest(ctx, "POST", "/api/sendSeen", map[string]string{
		"chatId":  chatId,
		"session": "default",
	})
}

func (s *WahaService) startTyping(ctx context.Context, chatId string) error {
	return s.makeRequest(ctx, "POST", "/api/startTyping", map[string]string{
		"chatId":  chatId,
		"session": "default",
	})
}

func (s *WahaService) stopTyping(ctx context.Context, chatId string) error {
	return s.makeRequest(ctx, "POST", "/api/stopTyping", map[string]string{
		"chatId":  chatId,
		"session": "default",
	})
}

func (s *WahaService) sendText(ctx context.Context, chatId, text string) error {
	return s.makeRequest(ctx, "POST", "/api/sendText", map[string]string{
		"chatId":  chatId,
		"text":    text,
		"session": "default",
	})
}

// NormalizeChatID normalizes WhatsApp chat IDs by adding required suffixes and standardizing country codes
func NormalizeChatID(chatId string) string {
	chatId = strings.TrimSpace(chatId)

	// If it's already a group ID, it's correct
	if strings.HasSuffix(chatId, "@g.us") {
		return chatId
	}

	// Remove @c.us suffix temporarily if it exists for easier processing
	chatId = strings.TrimSuffix(chatId, "@c.us")

	// Drop formatting characters and a leading '+'
	chatId = strings.NewReplacer(" ", "", "-", "", "+", "").Replace(chatId)

	// Local numbers starting with '0' get the default country code
	if strings.HasPrefix(chatId, "0") {
		chatId = DefaultCountryCode + strings.TrimPrefix(chatId, "0")
	}

	// Re-add required suffix
	return chatId + "@c.us"
}

// SendMessage sends a message with authentic behavior (seen -> typing -> stop typing -> send)
func (s *WahaService) SendMessage(ctx context.Context, chatId, text string) error {
	chatId = NormalizeChatID(chatId)

	// a. sendSeen request, wait for 100ms
	if err := s.sendSeen(ctx, chatId); err != nil {
		return fmt.Errorf("failed to send seen: %w", err)
	}
	sleepCtx(ctx, 100*time.Millisecond)

	// b. send startTyping request, wait for 150ms
	if err := s.startTyping(ctx, chatId); err != nil {
		return fmt.Errorf("failed to start typing: %w", err)
	}
	sleepCtx(ctx, 150*time.Millisecond)

	// c. send stopTyping request, wait for 50ms
	if err := s.stopTyping(ctx, chatId); err != nil {
		return fmt.Errorf("failed to stop typing: %w", err)
	}
	sleepCtx(ctx, 50*time.Millisecond)

	// d. send sendText request
	if err := s.sendText(ctx, chatId, text); err != nil {
		return fmt.Errorf("failed to send text: %w", err)
	}

	return nil
}

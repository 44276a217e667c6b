package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// WebhookSink 以 HMAC 签名的 JSON POST 推送事件
type WebhookSink struct {
	Client   *http.Client
	Endpoint string
	APIKey   string
	Secret   string
	Retries  int
	Backoff  []time.Duration
	now      func() time.Time
}

func NewWebhookSink(client *http.Client, endpoint, apiKey, secret string) *WebhookSink {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &WebhookSink{
		Client:   client,
		Endpoint: endpoint,
		APIKey:   apiKey,
		Secret:   secret,
		Retries:  3,
		Backoff:  []time.Duration{100 * time.Millisecond, 500 * time.Millisecond, time.Second},
		now:      time.Now,
	}
}

func (w *WebhookSink) Name() string { return "webhook" }

// SignHMAC 生成 HMAC-SHA256 签名（hex）
func SignHMAC(secret, canonical string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil))
}

// canonicalString: method\npath\ntimestamp\nnonce\nsha256(body)
func canonicalString(method, path string, ts int64, nonce string, body []byte) string {
	sum := sha256.Sum256(body)
	return fmt.Sprintf("%s\n%s\n%d\n%s\n%s", strings.ToUpper(method), path, ts, nonce, hex.EncodeToString(sum[:]))
}

// Send 仅对网络错误与 5xx 重试
func (w *WebhookSink) Send(ctx context.Context, n Notification) error {
	if w == nil || w.Client == nil {
		return errors.New("nil webhook sink")
	}
	u, err := url.Parse(w.Endpoint)
	if err != nil {
		return fmt.Errorf("parse webhook url: %w", err)
	}
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= w.Retries; attempt++ {
		code, err := w.post(ctx, u, body)
		switch {
		case err == nil && code >= 200 && code < 300:
			return nil
		case err == nil && code < 500:
			return fmt.Errorf("webhook http %d", code)
		case err == nil:
			lastErr = fmt.Errorf("webhook http %d", code)
		default:
			lastErr = err
		}
		if attempt == w.Retries {
			break
		}
		backoff := w.Backoff[min(attempt, len(w.Backoff)-1)]
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return lastErr
}

// post 每次重试重新生成时间戳与 nonce
func (w *WebhookSink) post(ctx context.Context, u *url.URL, body []byte) (int, error) {
	ts := w.now().Unix()
	nonce := fmt.Sprintf("%08x", rand.Uint32())
	sig := SignHMAC(w.Secret, canonicalString(http.MethodPost, u.Path, ts, nonce, body))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", w.APIKey)
	req.Header.Set("X-Signature", sig)
	req.Header.Set("X-Timestamp", strconv.FormatInt(ts, 10))
	req.Header.Set("X-Nonce", nonce)

	resp, err := w.Client.Do(req)
	if err != nil {
		return 0, err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}

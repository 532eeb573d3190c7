// Package telegram is a minimal Telegram Bot API client: the three methods
// the notifier and the query bot need, form-encoded over HTTPS.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"parcelwatch/internal/meta"
	"parcelwatch/internal/textutil"
)

// DefaultBaseURL is the public Bot API endpoint.
const DefaultBaseURL = "https://api.telegram.org"

// APIError is a response with "ok": false.
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

// Chat identifies a conversation.
type Chat struct {
	ID int64 `json:"id"`
}

// Message is an incoming message.
type Message struct {
	MessageID int64  `json:"message_id"`
	Chat      *Chat  `json:"chat"`
	Text      string `json:"text"`
}

// CallbackQuery is a tap on an inline keyboard button.
type CallbackQuery struct {
	ID      string   `json:"id"`
	Data    string   `json:"data"`
	Message *Message `json:"message"`
}

// Update is one item returned by getUpdates.
type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message"`
	CallbackQuery *CallbackQuery `json:"callback_query"`
}

// Button is an inline keyboard button.
type Button struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

// SendOptions are optional sendMessage parameters.
type SendOptions struct {
	ReplyTo  int64      // 0: not a reply
	Keyboard [][]Button // inline keyboard rows
}

// Client talks to the Bot API for one bot token.
type Client struct {
	base   string
	http   *http.Client
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another API root (tests, proxies).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.base = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets the HTTP client. Its timeout must exceed the long-poll
// timeout passed to GetUpdates.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New returns a client for token.
func New(token string, opts ...Option) *Client {
	c := &Client{
		base:   DefaultBaseURL,
		http:   &http.Client{Timeout: 60 * time.Second},
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	c.base = c.base + "/bot" + token
	return c
}

// SendMessage posts text to chatID. Text longer than the API limit is clamped.
func (c *Client) SendMessage(ctx context.Context, chatID string, text string, opt SendOptions) error {
	form := url.Values{}
	form.Set("chat_id", chatID)
	form.Set("text", textutil.Clamp(text, textutil.MaxMessageRunes))
	if opt.ReplyTo != 0 {
		form.Set("reply_to_message_id", strconv.FormatInt(opt.ReplyTo, 10))
	}
	if len(opt.Keyboard) > 0 {
		markup, err := json.Marshal(map[string]any{"inline_keyboard": opt.Keyboard})
		if err != nil {
			return fmt.Errorf("encode keyboard: %w", err)
		}
		form.Set("reply_markup", string(markup))
	}
	_, err := c.call(ctx, "sendMessage", form)
	return err
}

// AnswerCallbackQuery acknowledges a button tap.
func (c *Client) AnswerCallbackQuery(ctx context.Context, id, text string) error {
	form := url.Values{}
	form.Set("callback_query_id", id)
	if text != "" {
		form.Set("text", text)
	}
	_, err := c.call(ctx, "answerCallbackQuery", form)
	return err
}

// GetUpdates long-polls for message and callback_query updates. offset < 0
// means "no offset".
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	form := url.Values{}
	form.Set("timeout", strconv.Itoa(int(timeout/time.Second)))
	form.Set("allowed_updates", `["message","callback_query"]`)
	if offset >= 0 {
		form.Set("offset", strconv.FormatInt(offset, 10))
	}
	body, err := c.call(ctx, "getUpdates", form)
	if err != nil {
		return nil, err
	}
	result := gjson.GetBytes(body, "result")
	if !result.Exists() {
		return nil, nil
	}
	var updates []Update
	if err := json.Unmarshal([]byte(result.Raw), &updates); err != nil {
		return nil, fmt.Errorf("telegram getUpdates: decode result: %w", err)
	}
	return updates, nil
}

func (c *Client) call(ctx context.Context, method string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/"+method, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("telegram %s: new request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", meta.UserAgent())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram %s: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("telegram %s: read body: %w", method, err)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("telegram %s: http %d: invalid JSON response", method, resp.StatusCode)
	}
	res := gjson.ParseBytes(body)
	if !res.Get("ok").Bool() {
		code := int(res.Get("error_code").Int())
		if code == 0 {
			code = resp.StatusCode
		}
		return nil, &APIError{Method: method, Code: code, Description: res.Get("description").String()}
	}
	c.logger.Debug("telegram: call ok", "method", method)
	return body, nil
}

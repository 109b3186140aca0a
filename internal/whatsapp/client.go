package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"whatsapp-automation/internal/config"
	"whatsapp-automation/internal/logging"
	"whatsapp-automation/internal/models"
)

const (
	maxButtons     = 3
	maxListRows    = 10
	buttonTitleLen = 20
	rowTitleLen    = 24
	listButtonText = "Select an option"
)

var ErrNoMessageID = errors.New("response carried no message id")

// APIError is a non-2xx answer of the Graph API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: %d - %s", e.StatusCode, e.Body)
}

// Temporary reports whether the request may succeed when retried.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Client sends messages through the WhatsApp Cloud API.
type Client struct {
	baseURL       string
	token         string
	phoneNumberID string
	maxAttempts   int
	backoff       time.Duration
	http          *http.Client
	log           *logging.Logger
}

func NewClient(cfg *config.Config, log *logging.Logger) *Client {
	attempts := cfg.SendMaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &Client{
		baseURL:       strings.TrimRight(cfg.GraphAPIURL, "/"),
		token:         cfg.WhatsAppToken,
		phoneNumberID: cfg.PhoneNumberID,
		maxAttempts:   attempts,
		backoff:       500 * time.Millisecond,
		http:          &http.Client{Timeout: 15 * time.Second},
		log:           log.Sub("whatsapp"),
	}
}

// --- Message Structures ---

type GenericMessage struct {
	MessagingProduct string          `json:"messaging_product"`
	RecipientType    string          `json:"recipient_type,omitempty"`
	To               string          `json:"to"`
	Type             string          `json:"type"`
	Text             *TextObj        `json:"text,omitempty"`
	Image            *MediaObj       `json:"image,omitempty"`
	Video            *MediaObj       `json:"video,omitempty"`
	Audio            *MediaObj       `json:"audio,omitempty"`
	Document         *MediaObj       `json:"document,omitempty"`
	Interactive      *InteractiveObj `json:"interactive,omitempty"`
}

type TextObj struct {
	Body       string `json:"body"`
	PreviewUrl bool   `json:"preview_url,omitempty"`
}

type MediaObj struct {
	Link     string `json:"link,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"` // For documents
}

type InteractiveObj struct {
	Type   string    `json:"type"`
	Body   BodyObj   `json:"body"`
	Action ActionObj `json:"action"`
}

type BodyObj struct {
	Text string `json:"text"`
}

type ActionObj struct {
	Button   string       `json:"button,omitempty"`
	Buttons  []ButtonObj  `json:"buttons,omitempty"`
	Sections []SectionObj `json:"sections,omitempty"`
}

type ButtonObj struct {
	Type  string   `json:"type"`
	Reply ReplyObj `json:"reply"`
}

type ReplyObj struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type SectionObj struct {
	Title string   `json:"title,omitempty"`
	Rows  []RowObj `json:"rows"`
}

type RowObj struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// --- Messaging ---

// Send delivers one outbound message and returns the provider message id.
// Rate limits, server errors and network failures are retried.
func (c *Client) Send(ctx context.Context, out models.Outbound) (string, error) {
	msg := BuildMessage(out)
	url := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneNumberID)

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		body, err := c.sendRequest(ctx, http.MethodPost, url, msg)
		if err == nil {
			var resp sendResponse
			if err := json.Unmarshal(body, &resp); err != nil {
				return "", fmt.Errorf("decode send response: %w", err)
			}
			if len(resp.Messages) == 0 || resp.Messages[0].ID == "" {
				return "", ErrNoMessageID
			}
			return resp.Messages[0].ID, nil
		}

		lastErr = err
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Temporary() {
			return "", err
		}
		if attempt == c.maxAttempts {
			break
		}

		c.log.Warn().Err(err).Str("to", out.Phone).Int("attempt", attempt).Msg("Send failed, retrying")
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.backoff * time.Duration(attempt)):
		}
	}
	return "", fmt.Errorf("send to %s after %d attempts: %w", out.Phone, c.maxAttempts, lastErr)
}

// BuildMessage maps an outbound command onto the Cloud API payload: media
// by file type, reply buttons for up to three options, a list for up to
// ten, and a numbered text otherwise.
func BuildMessage(out models.Outbound) GenericMessage {
	msg := GenericMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               out.Phone,
	}

	if out.Link != "" {
		media := &MediaObj{Link: out.Link, Caption: out.Text}
		msg.Type = mediaKind(out.FileType, out.Link)
		switch msg.Type {
		case "video":
			msg.Video = media
		case "audio":
			media.Caption = ""
			msg.Audio = media
		case "document":
			media.Filename = path.Base(out.Link)
			msg.Document = media
		default:
			msg.Image = media
		}
		return msg
	}

	switch n := len(out.Options); {
	case n > 0 && n <= maxButtons && out.Text != "":
		buttons := make([]ButtonObj, n)
		for i, title := range out.Options {
			buttons[i] = ButtonObj{
				Type:  "reply",
				Reply: ReplyObj{ID: strconv.Itoa(i + 1), Title: truncate(title, buttonTitleLen)},
			}
		}
		msg.Type = "interactive"
		msg.Interactive = &InteractiveObj{
			Type:   "button",
			Body:   BodyObj{Text: out.Text},
			Action: ActionObj{Buttons: buttons},
		}
		return msg

	case n > 0 && n <= maxListRows && out.Text != "":
		rows := make([]RowObj, n)
		for i, title := range out.Options {
			rows[i] = RowObj{ID: strconv.Itoa(i + 1), Title: truncate(title, rowTitleLen)}
			if len([]rune(title)) > rowTitleLen {
				rows[i].Description = title
			}
		}
		msg.Type = "interactive"
		msg.Interactive = &InteractiveObj{
			Type: "list",
			Body: BodyObj{Text: out.Text},
			Action: ActionObj{
				Button:   listButtonText,
				Sections: []SectionObj{{Rows: rows}},
			},
		}
		return msg

	case n > 0:
		var b strings.Builder
		b.WriteString(out.Text)
		for i, title := range out.Options {
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "%d. %s", i+1, title)
		}
		msg.Type = "text"
		msg.Text = &TextObj{Body: b.String()}
		return msg
	}

	msg.Type = "text"
	msg.Text = &TextObj{Body: out.Text, PreviewUrl: strings.Contains(out.Text, "https://")}
	return msg
}

func mediaKind(fileType, link string) string {
	ft := strings.ToLower(fileType)
	switch {
	case strings.HasPrefix(ft, "image"), ft == "png", ft == "jpg", ft == "jpeg", ft == "webp":
		return "image"
	case strings.HasPrefix(ft, "video"), ft == "mp4", ft == "3gp":
		return "video"
	case strings.HasPrefix(ft, "audio"), ft == "mp3", ft == "ogg", ft == "aac":
		return "audio"
	case ft != "":
		return "document"
	}
	switch strings.ToLower(path.Ext(link)) {
	case ".mp4", ".3gp":
		return "video"
	case ".mp3", ".ogg", ".aac":
		return "audio"
	case ".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx", ".txt", ".csv":
		return "document"
	}
	return "image"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// --- Helper Functions ---

func (c *Client) sendRequest(ctx context.Context, method, url string, body any) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return respBody, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	return respBody, nil
}

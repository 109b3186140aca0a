package webhook

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"whatsapp-automation/internal/config"
	"whatsapp-automation/internal/dispatcher"
	"whatsapp-automation/internal/logging"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDispatcher struct {
	mu  sync.Mutex
	got []dispatcher.Inbound
}

func (f *fakeDispatcher) Handle(_ context.Context, in dispatcher.Inbound) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, in)
	return nil
}

type fakeStatuses struct {
	updates map[string]string
}

func (f *fakeStatuses) UpdateStatusByProviderID(_ context.Context, id, status string) error {
	f.updates[id] = status
	return nil
}

type fakeResolver struct {
	workspaces map[string]string
	err        error
}

func (f *fakeResolver) WorkspaceFor(_ context.Context, phoneNumberID, fallback string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if ws, ok := f.workspaces[phoneNumberID]; ok {
		return ws, nil
	}
	return fallback, nil
}

func setup(resolver *fakeResolver) (*gin.Engine, *Handler, *fakeDispatcher, *fakeStatuses) {
	gin.SetMode(gin.TestMode)
	d := &fakeDispatcher{}
	st := &fakeStatuses{updates: map[string]string{}}
	if resolver == nil {
		resolver = &fakeResolver{workspaces: map[string]string{"pn-1": "ws-acme"}}
	}
	cfg := &config.Config{VerifyToken: "secret", DefaultWorkspaceID: "default"}
	h := NewHandler(cfg, d, st, resolver, logging.Nop())

	r := gin.New()
	r.GET("/webhook", h.VerifyWebhook)
	r.POST("/webhook", h.HandleMessage)
	return r, h, d, st
}

func TestVerifyWebhook(t *testing.T) {
	r, _, _, _ := setup(nil)

	tests := []struct {
		name  string
		query string
		code  int
		body  string
	}{
		{"valid", "hub.mode=subscribe&hub.verify_token=secret&hub.challenge=42", http.StatusOK, "42"},
		{"wrong token", "hub.mode=subscribe&hub.verify_token=nope&hub.challenge=42", http.StatusForbidden, ""},
		{"missing params", "", http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/webhook?"+tt.query, nil))
			assert.Equal(t, tt.code, w.Code)
			assert.Equal(t, tt.body, w.Body.String())
		})
	}
}

const deliveryJSON = `{
  "object": "whatsapp_business_account",
  "entry": [{
    "id": "waba-1",
    "changes": [{
      "field": "messages",
      "value": {
        "messaging_product": "whatsapp",
        "metadata": {"display_phone_number": "15550000", "phone_number_id": "pn-1"},
        "messages": [
          {"from": "1555", "id": "wamid.a", "timestamp": "1", "type": "text", "text": {"body": "/start"}},
          {"from": "1555", "id": "wamid.b", "timestamp": "2", "type": "interactive",
           "interactive": {"type": "button_reply", "button_reply": {"id": "2", "title": "No"}}},
          {"from": "1555", "id": "wamid.c", "timestamp": "3", "type": "image",
           "image": {"id": "media-1", "mime_type": "image/jpeg", "caption": "my receipt"}}
        ],
        "statuses": [{"id": "wamid.out.1", "status": "delivered", "timestamp": "4", "recipient_id": "1555"}]
      }
    }]
  }]
}`

func TestHandleMessage_DispatchesInOrder(t *testing.T) {
	r, h, d, st := setup(nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(deliveryJSON)))
	require.Equal(t, http.StatusOK, w.Code)
	h.Wait()

	require.Len(t, d.got, 3)
	assert.Equal(t, dispatcher.Inbound{WorkspaceID: "ws-acme", Phone: "1555", ProviderMessageID: "wamid.a", Text: "/start"}, d.got[0])
	assert.Equal(t, dispatcher.Inbound{WorkspaceID: "ws-acme", Phone: "1555", ProviderMessageID: "wamid.b", Text: "2", Interactive: true}, d.got[1])
	assert.Equal(t, "my receipt", d.got[2].Text)
	assert.Equal(t, "delivered", st.updates["wamid.out.1"])
}

func TestHandleMessage_FallsBackToDefaultWorkspace(t *testing.T) {
	r, h, d, _ := setup(&fakeResolver{err: errors.New("db down")})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(deliveryJSON)))
	require.Equal(t, http.StatusOK, w.Code)
	h.Wait()

	require.NotEmpty(t, d.got)
	assert.Equal(t, "default", d.got[0].WorkspaceID)
}

func TestHandleMessage_BadJSON(t *testing.T) {
	r, _, _, _ := setup(nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("{not json")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestToInbound_ListReplyAndUnknownTypes(t *testing.T) {
	r, h, d, _ := setup(nil)
	body := `{"entry":[{"changes":[{"value":{"metadata":{"phone_number_id":"pn-x"},"messages":[
		{"from":"1","id":"w1","type":"interactive","interactive":{"type":"list_reply","list_reply":{"id":"4","title":"Billing"}}},
		{"from":"1","id":"w2","type":"location"},
		{"from":"1","id":"w3","type":"audio","audio":{"id":"m"}}
	]}}]}]}`

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, w.Code)
	h.Wait()

	require.Len(t, d.got, 3)
	assert.Equal(t, "default", d.got[0].WorkspaceID)
	assert.Equal(t, "4", d.got[0].Text)
	assert.True(t, d.got[0].Interactive)
	assert.Equal(t, "[location]", d.got[1].Text)
	assert.Equal(t, "[audio]", d.got[2].Text)
}

package webhook

import (
	"context"
	"net/http"
	"sync"
	"time"

	"whatsapp-automation/internal/config"
	"whatsapp-automation/internal/dispatcher"
	"whatsapp-automation/internal/logging"
	wamodels "whatsapp-automation/pkg/models"

	"github.com/gin-gonic/gin"
)

const dispatchTimeout = 2 * time.Minute

type Dispatcher interface {
	Handle(ctx context.Context, in dispatcher.Inbound) error
}

type StatusStore interface {
	UpdateStatusByProviderID(ctx context.Context, providerMessageID, status string) error
}

type WorkspaceResolver interface {
	WorkspaceFor(ctx context.Context, phoneNumberID, fallback string) (string, error)
}

type Handler struct {
	cfg        *config.Config
	dispatcher Dispatcher
	statuses   StatusStore
	workspaces WorkspaceResolver
	log        *logging.Logger
	wg         sync.WaitGroup
}

func NewHandler(cfg *config.Config, d Dispatcher, statuses StatusStore, workspaces WorkspaceResolver, log *logging.Logger) *Handler {
	return &Handler{
		cfg:        cfg,
		dispatcher: d,
		statuses:   statuses,
		workspaces: workspaces,
		log:        log.Sub("webhook"),
	}
}

func (h *Handler) VerifyWebhook(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode != "" && token != "" {
		if mode == "subscribe" && token == h.cfg.VerifyToken {
			h.log.Info().Msg("Webhook verified successfully!")
			c.String(http.StatusOK, challenge)
		} else {
			c.Status(http.StatusForbidden)
		}
	} else {
		c.Status(http.StatusBadRequest)
	}
}

// HandleMessage acknowledges the delivery right away and dispatches its
// messages in the background, in delivery order.
func (h *Handler) HandleMessage(c *gin.Context) {
	var payload wamodels.WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.log.Warn().Err(err).Msg("Error binding webhook JSON")
		c.Status(http.StatusBadRequest)
		return
	}

	ctx := c.Request.Context()
	var batch []dispatcher.Inbound
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			value := change.Value

			for _, st := range value.Statuses {
				if err := h.statuses.UpdateStatusByProviderID(ctx, st.ID, st.Status); err != nil {
					h.log.Error().Err(err).Str("provider_message_id", st.ID).Msg("Error applying status receipt")
				}
			}

			if len(value.Messages) == 0 {
				continue
			}
			workspaceID, err := h.workspaces.WorkspaceFor(ctx, value.Metadata.PhoneNumberID, h.cfg.DefaultWorkspaceID)
			if err != nil {
				h.log.Error().Err(err).Str("phone_number_id", value.Metadata.PhoneNumberID).Msg("Error resolving workspace")
				workspaceID = h.cfg.DefaultWorkspaceID
			}
			for _, msg := range value.Messages {
				in := ToInbound(msg)
				in.WorkspaceID = workspaceID
				h.log.Debug().Str("from", msg.From).Str("type", msg.Type).Msg("Received message")
				batch = append(batch, in)
			}
		}
	}

	if len(batch) > 0 {
		h.wg.Add(1)
		go h.dispatch(batch)
	}

	c.Status(http.StatusOK)
}

func (h *Handler) dispatch(batch []dispatcher.Inbound) {
	defer h.wg.Done()
	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	for _, in := range batch {
		if err := h.dispatcher.Handle(ctx, in); err != nil {
			h.log.Error().Err(err).Str("phone", in.Phone).Str("provider_message_id", in.ProviderMessageID).
				Msg("Error dispatching message")
		}
	}
}

// Wait blocks until every background dispatch has finished.
func (h *Handler) Wait() {
	h.wg.Wait()
}

// ToInbound flattens a webhook message. Button and list replies carry the
// id we assigned when sending the options.
func ToInbound(msg wamodels.Message) dispatcher.Inbound {
	in := dispatcher.Inbound{Phone: msg.From, ProviderMessageID: msg.ID}

	switch msg.Type {
	case "text":
		if msg.Text != nil {
			in.Text = msg.Text.Body
		}
	case "interactive":
		in.Interactive = true
		if r := msg.Interactive; r != nil {
			switch {
			case r.ButtonReply != nil:
				in.Text = firstNonEmpty(r.ButtonReply.ID, r.ButtonReply.Title)
			case r.ListReply != nil:
				in.Text = firstNonEmpty(r.ListReply.ID, r.ListReply.Title)
			}
		}
	case "button":
		in.Interactive = true
		if msg.Button != nil {
			in.Text = firstNonEmpty(msg.Button.Text, msg.Button.Payload)
		}
	case "image", "video", "audio", "document":
		in.Text = mediaText(msg)
	default:
		in.Text = "[" + msg.Type + "]"
	}
	return in
}

func mediaText(msg wamodels.Message) string {
	var media *wamodels.MediaMessage
	switch msg.Type {
	case "image":
		media = msg.Image
	case "video":
		media = msg.Video
	case "audio":
		media = msg.Audio
	case "document":
		media = msg.Document
	}
	if media != nil && media.Caption != "" {
		return media.Caption
	}
	return "[" + msg.Type + "]"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

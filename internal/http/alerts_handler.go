package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/EricMovillaSanolivar/ai-fall-prevent/internal/channel"
	"github.com/EricMovillaSanolivar/ai-fall-prevent/internal/dispatch"

	"go.uber.org/zap"
)

// AlertDispatcher 远程通道分发
type AlertDispatcher interface {
	SendMail(ctx context.Context, scriptID string, data json.RawMessage) (channel.Response, error)
	SendTelegram(ctx context.Context, req channel.PhotoRequest) (channel.Response, error)
	SendForAlert(ctx context.Context, req dispatch.AlertRequest) (channel.Response, error)
}

// AlertsHandler 邮件中继 / Telegram 图片 / 按定义分发
type AlertsHandler struct {
	dispatcher AlertDispatcher
	logger     *zap.Logger
}

// NewAlertsHandler 创建告警转发处理器
func NewAlertsHandler(d AlertDispatcher, logger *zap.Logger) *AlertsHandler {
	return &AlertsHandler{dispatcher: d, logger: logger}
}

// SendMail POST /alerts/mail {id, data}
func (h *AlertsHandler) SendMail(w http.ResponseWriter, r *http.Request) {
	fields, err := readBodyFields(r)
	if err != nil {
		userError(w, "Invalid JSON body.")
		return
	}

	rawID, hasID := fields["id"]
	data, hasData := fields["data"]
	if !hasID || !hasData {
		missing := "id"
		if hasID {
			missing = "data"
		}
		userError(w, fmt.Sprintf("Missing required parameter %s.", missing))
		return
	}
	var scriptID string
	if err := json.Unmarshal(rawID, &scriptID); err != nil || scriptID == "" {
		userError(w, `Parameter "id" must be a non-empty string.`)
		return
	}

	resp, err := h.dispatcher.SendMail(r.Context(), scriptID, data)
	h.respond(w, "Send mail error", resp, err)
}

// SendTelegram POST /alerts/telegram multipart {image, id, chat_id, content}
func (h *AlertsHandler) SendTelegram(w http.ResponseWriter, r *http.Request) {
	if err := parseMultipart(w, r); err != nil {
		userError(w, `Missing required parameter "image".`)
		return
	}

	image, mimeType, ok, err := formFile(r, "image")
	if err != nil {
		userError(w, fmt.Sprintf("Invalid image upload: %v", err))
		return
	}
	if !ok {
		userError(w, `Missing required parameter "image".`)
		return
	}
	for _, field := range []string{"id", "chat_id", "content"} {
		if !formHas(r, field) {
			userError(w, fmt.Sprintf("Missing required parameter %s.", field))
			return
		}
	}

	resp, err := h.dispatcher.SendTelegram(r.Context(), channel.PhotoRequest{
		BotPath:  r.PostForm.Get("id"),
		ChatID:   r.PostForm.Get("chat_id"),
		Caption:  r.PostForm.Get("content"),
		Image:    image,
		MimeType: mimeType,
	})
	h.respond(w, "Telegram send error", resp, err)
}

// Dispatch POST /alerts/dispatch：按已保存的告警定义分发
// JSON {alert_id, data} 用于 mail；multipart {alert_id, image, content} 用于 telegram
func (h *AlertsHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	var req dispatch.AlertRequest

	if isMultipart(r) {
		if err := parseMultipart(w, r); err != nil {
			userError(w, "Invalid multipart body.")
			return
		}
		req.AlertID = r.PostForm.Get("alert_id")
		req.Caption = r.PostForm.Get("content")
		image, mimeType, _, err := formFile(r, "image")
		if err != nil {
			userError(w, fmt.Sprintf("Invalid image upload: %v", err))
			return
		}
		req.Image = image
		req.MimeType = mimeType
		if raw := r.PostForm.Get("data"); raw != "" {
			if !json.Valid([]byte(raw)) {
				userError(w, `Parameter "data" must be valid JSON.`)
				return
			}
			req.Data = json.RawMessage(raw)
		}
	} else {
		fields, err := readBodyFields(r)
		if err != nil {
			userError(w, "Invalid JSON body.")
			return
		}
		if raw, ok := fields["alert_id"]; ok {
			_ = json.Unmarshal(raw, &req.AlertID)
		}
		req.Data = fields["data"]
	}

	if req.AlertID == "" {
		userError(w, "Missing required parameter alert_id.")
		return
	}

	resp, err := h.dispatcher.SendForAlert(r.Context(), req)
	h.respond(w, "Alert dispatch error", resp, err)
}

// respond 将分发结果映射为响应信封
func (h *AlertsHandler) respond(w http.ResponseWriter, prefix string, resp channel.Response, err error) {
	if err != nil {
		var upstream *channel.UpstreamError
		switch {
		case errors.Is(err, channel.ErrInvalidRequest),
			errors.Is(err, dispatch.ErrAlertNotFound),
			errors.Is(err, dispatch.ErrUnsupportedChannel):
			userError(w, err.Error())
		case errors.As(err, &upstream):
			serverError(w, fmt.Sprintf("%s: %v", prefix, upstream.Err))
		default:
			h.logger.Error(prefix, zap.Error(err))
			serverError(w, fmt.Sprintf("%s: %v", prefix, err))
		}
		return
	}
	success(w, resp)
}

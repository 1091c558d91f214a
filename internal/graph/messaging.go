// Messenger Platform sends. All calls target POST /me/messages with the page
// token as a query parameter and a JSON body, per the Send API contract.
// Recipients are addressed by PSID (Page-Scoped user ID).

package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/rs/zerolog/log"
)

// Sender actions accepted by SenderAction.
const (
	ActionMarkSeen  = "mark_seen"
	ActionTypingOn  = "typing_on"
	ActionTypingOff = "typing_off"
)

// QuickReply is one quick-reply button offered with a message.
type QuickReply struct {
	Title   string `json:"title"`
	Payload string `json:"payload"`
}

// MessageResult reports a successful Send API call.
type MessageResult struct {
	MessageID   string `json:"message_id"`
	RecipientID string `json:"recipient_id"`
}

type sendResponse struct {
	MessageID   string `json:"message_id"`
	RecipientID string `json:"recipient_id"`
}

type messageRecipient struct {
	ID string `json:"id"`
}

// SendMessage sends a plain text message to a PSID.
func (c *Client) SendMessage(ctx context.Context, recipientID, messageText, accessToken string) (*MessageResult, error) {
	payload := map[string]interface{}{
		"recipient":      messageRecipient{ID: recipientID},
		"message":        map[string]string{"text": messageText},
		"messaging_type": "RESPONSE",
	}
	return c.sendMessagePayload(ctx, recipientID, accessToken, payload)
}

// SendAttachment sends a media attachment (image, video, audio, file) by URL.
func (c *Client) SendAttachment(ctx context.Context, recipientID, attachmentType, attachmentURL, accessToken string) (*MessageResult, error) {
	payload := map[string]interface{}{
		"recipient": messageRecipient{ID: recipientID},
		"message": map[string]interface{}{
			"attachment": map[string]interface{}{
				"type":    attachmentType,
				"payload": map[string]string{"url": attachmentURL},
			},
		},
		"messaging_type": "RESPONSE",
	}
	return c.sendMessagePayload(ctx, recipientID, accessToken, payload)
}

// SendQuickReplies sends a text message with quick-reply buttons.
func (c *Client) SendQuickReplies(ctx context.Context, recipientID, messageText string, replies []QuickReply, accessToken string) (*MessageResult, error) {
	formatted := make([]map[string]string, 0, len(replies))
	for _, r := range replies {
		formatted = append(formatted, map[string]string{
			"content_type": "text",
			"title":        r.Title,
			"payload":      r.Payload,
		})
	}
	payload := map[string]interface{}{
		"recipient": messageRecipient{ID: recipientID},
		"message": map[string]interface{}{
			"text":          messageText,
			"quick_replies": formatted,
		},
		"messaging_type": "RESPONSE",
	}
	return c.sendMessagePayload(ctx, recipientID, accessToken, payload)
}

// SendTemplate sends a structured template message (generic, button, ...).
// elements is passed through to the template payload untouched.
func (c *Client) SendTemplate(ctx context.Context, recipientID, templateType string, elements json.RawMessage, accessToken string) (*MessageResult, error) {
	payload := map[string]interface{}{
		"recipient": messageRecipient{ID: recipientID},
		"message": map[string]interface{}{
			"attachment": map[string]interface{}{
				"type": "template",
				"payload": map[string]interface{}{
					"template_type": templateType,
					"elements":      elements,
				},
			},
		},
		"messaging_type": "RESPONSE",
	}
	return c.sendMessagePayload(ctx, recipientID, accessToken, payload)
}

// SenderAction sets a conversation-level action: mark_seen, typing_on, or typing_off.
func (c *Client) SenderAction(ctx context.Context, recipientID, action, accessToken string) error {
	switch action {
	case ActionMarkSeen, ActionTypingOn, ActionTypingOff:
	default:
		return fmt.Errorf("invalid sender action %q", action)
	}
	payload := map[string]interface{}{
		"recipient":     messageRecipient{ID: recipientID},
		"sender_action": action,
	}
	query := url.Values{"access_token": {accessToken}}
	var resp sendResponse
	if err := c.postJSON(ctx, "/me/messages", query, payload, &resp); err != nil {
		return fmt.Errorf("sender action %s: %w", action, err)
	}
	if resp.RecipientID == "" {
		return fmt.Errorf("sender action %s: no recipient_id in response", action)
	}
	log.Debug().Str("recipientId", recipientID).Str("action", action).Msg("Sender action set")
	return nil
}

// UserProfile fetches profile fields for a PSID. An empty fields string
// selects first_name,last_name,profile_pic.
func (c *Client) UserProfile(ctx context.Context, userID, accessToken, fields string) (json.RawMessage, error) {
	if fields == "" {
		fields = "first_name,last_name,profile_pic"
	}
	params := url.Values{
		"access_token": {accessToken},
		"fields":       {fields},
	}
	var raw json.RawMessage
	if err := c.getJSON(ctx, "/"+userID, params, &raw); err != nil {
		return nil, fmt.Errorf("user profile %s: %w", userID, err)
	}
	return raw, nil
}

func (c *Client) sendMessagePayload(ctx context.Context, recipientID, accessToken string, payload map[string]interface{}) (*MessageResult, error) {
	query := url.Values{"access_token": {accessToken}}
	var resp sendResponse
	if err := c.postJSON(ctx, "/me/messages", query, payload, &resp); err != nil {
		return nil, fmt.Errorf("send message to %s: %w", recipientID, err)
	}
	if resp.MessageID == "" {
		return nil, fmt.Errorf("send message to %s: no message_id in response", recipientID)
	}
	log.Info().Str("recipientId", recipientID).Str("messageId", resp.MessageID).Msg("Message sent")
	return &MessageResult{MessageID: resp.MessageID, RecipientID: recipientID}, nil
}

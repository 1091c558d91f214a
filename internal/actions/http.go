package actions

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"pagebridge/internal/graph"
	"pagebridge/internal/tokenstore"
)

// NewMux builds the HTTP surface for operator-facing page management and
// messaging calls. Webhook traffic has its own handler; this mux covers
// everything an operator drives directly over API Gateway.
func (d *Dispatcher) NewMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /page-subscriptions", d.handlePageSubscriptions)
	mux.HandleFunc("POST /subscribe-to-page", d.handleSubscribeToPage)
	mux.HandleFunc("POST /unsubscribe-from-page", d.handleUnsubscribeFromPage)
	mux.HandleFunc("POST /reply-to-comment", d.handleReplyToComment)
	mux.HandleFunc("POST /send-message", d.handleSendMessage)
	mux.HandleFunc("POST /send-message-attachment", d.handleSendAttachment)
	mux.HandleFunc("POST /send-quick-reply", d.handleSendQuickReply)
	mux.HandleFunc("GET /get-user-profile", d.handleGetUserProfile)
	mux.HandleFunc("POST /set-typing", d.handleSetTyping)
	return mux
}

// writeJSON writes v as a JSON response body.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Response encode failed")
	}
}

// writeError writes a JSON error body with the given status.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeResult maps an operation outcome to the response: platform errors
// pass through with their payload, everything else is a 200.
func writeResult(w http.ResponseWriter, result interface{}, err error) {
	if err != nil {
		writeJSON(w, http.StatusBadGateway, platformError(err))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// decodeBody parses the request body into dst, reporting malformed JSON to
// the client. Returns false when the handler should stop.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON in request body")
		return false
	}
	return true
}

func (d *Dispatcher) handlePageSubscriptions(w http.ResponseWriter, r *http.Request) {
	pageID := r.URL.Query().Get("page_id")
	token := r.URL.Query().Get("page_access_token")
	if pageID == "" || token == "" {
		writeError(w, http.StatusBadRequest, "Missing required parameters: page_id and page_access_token")
		return
	}
	subs, err := d.graph.PageSubscriptions(r.Context(), pageID, token)
	writeResult(w, subs, err)
}

// handleSubscribeToPage subscribes the app to a page's webhook fields. The
// supplied page token is extended to a long-lived one and stored, so later
// webhook events for the page can be enriched without a token in hand.
func (d *Dispatcher) handleSubscribeToPage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PageID          string          `json:"page_id"`
		PageAccessToken string          `json:"page_access_token"`
		Fields          json.RawMessage `json:"fields,omitempty"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.PageID == "" || body.PageAccessToken == "" {
		writeError(w, http.StatusBadRequest, "Missing required parameters: page_id and page_access_token")
		return
	}

	if err := d.graph.SubscribePage(r.Context(), body.PageID, body.PageAccessToken, fieldList(body.Fields)); err != nil {
		writeJSON(w, http.StatusBadGateway, platformError(err))
		return
	}

	extended, err := d.graph.ExtendPageToken(r.Context(), body.PageAccessToken)
	if err != nil {
		log.Warn().Err(err).Str("pageId", body.PageID).Msg("Page token extension failed")
	} else {
		err = d.tokens.Put(r.Context(), tokenstore.PageToken{
			PageID:      body.PageID,
			AccessToken: extended.AccessToken,
		})
		if err != nil {
			log.Warn().Err(err).Str("pageId", body.PageID).Msg("Page token store failed")
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "page_id": body.PageID})
}

func (d *Dispatcher) handleUnsubscribeFromPage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PageID          string          `json:"page_id"`
		PageAccessToken string          `json:"page_access_token"`
		Fields          json.RawMessage `json:"fields"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.PageID == "" || body.PageAccessToken == "" {
		writeError(w, http.StatusBadRequest, "Missing required parameters: page_id and page_access_token")
		return
	}
	fields := fieldList(body.Fields)
	if len(fields) == 0 {
		writeError(w, http.StatusBadRequest, "Missing required parameter: fields")
		return
	}

	remaining, err := d.graph.UnsubscribeFields(r.Context(), body.PageID, body.PageAccessToken, fields)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, platformError(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":          true,
		"page_id":          body.PageID,
		"remaining_fields": remaining,
	})
}

// fieldList accepts the fields parameter as a JSON array, a comma-separated
// string, or absent.
func fieldList(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil && single != "" {
		parts := strings.Split(single, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return nil
}

func (d *Dispatcher) handleReplyToComment(w http.ResponseWriter, r *http.Request) {
	var body struct {
		OriginalCommentID string `json:"original_comment_id"`
		PageAccessToken   string `json:"page_access_token"`
		ReplyText         string `json:"reply_text"`
		CommenterID       string `json:"commenter_id,omitempty"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	switch {
	case body.OriginalCommentID == "":
		writeError(w, http.StatusBadRequest, "Missing original_comment_id parameter")
		return
	case body.PageAccessToken == "":
		writeError(w, http.StatusBadRequest, "Missing page_access_token parameter")
		return
	case body.ReplyText == "":
		writeError(w, http.StatusBadRequest, "Missing reply_text parameter")
		return
	}

	replyID, err := d.graph.ReplyToComment(r.Context(), body.OriginalCommentID, body.PageAccessToken, body.ReplyText, body.CommenterID)
	writeResult(w, map[string]string{"status": "success", "reply_id": replyID}, err)
}

func (d *Dispatcher) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RecipientID     string `json:"recipient_id"`
		MessageText     string `json:"message_text"`
		PageAccessToken string `json:"page_access_token"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.RecipientID == "" || body.MessageText == "" || body.PageAccessToken == "" {
		writeError(w, http.StatusBadRequest, "Missing required parameters")
		return
	}
	result, err := d.graph.SendMessage(r.Context(), body.RecipientID, body.MessageText, body.PageAccessToken)
	writeResult(w, result, err)
}

func (d *Dispatcher) handleSendAttachment(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RecipientID     string `json:"recipient_id"`
		AttachmentType  string `json:"attachment_type"`
		AttachmentURL   string `json:"attachment_url"`
		PageAccessToken string `json:"page_access_token"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.RecipientID == "" || body.AttachmentType == "" || body.AttachmentURL == "" || body.PageAccessToken == "" {
		writeError(w, http.StatusBadRequest, "Missing required parameters")
		return
	}
	result, err := d.graph.SendAttachment(r.Context(), body.RecipientID, body.AttachmentType, body.AttachmentURL, body.PageAccessToken)
	writeResult(w, result, err)
}

func (d *Dispatcher) handleSendQuickReply(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RecipientID     string             `json:"recipient_id"`
		MessageText     string             `json:"message_text"`
		QuickReplies    []graph.QuickReply `json:"quick_replies"`
		PageAccessToken string             `json:"page_access_token"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.RecipientID == "" || body.MessageText == "" || body.PageAccessToken == "" {
		writeError(w, http.StatusBadRequest, "Missing required parameters")
		return
	}
	result, err := d.graph.SendQuickReplies(r.Context(), body.RecipientID, body.MessageText, body.QuickReplies, body.PageAccessToken)
	writeResult(w, result, err)
}

func (d *Dispatcher) handleGetUserProfile(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	token := r.URL.Query().Get("page_access_token")
	fields := r.URL.Query().Get("fields")
	if userID == "" || token == "" {
		writeError(w, http.StatusBadRequest, "Missing required parameters")
		return
	}
	profile, err := d.graph.UserProfile(r.Context(), userID, token, fields)
	writeResult(w, profile, err)
}

func (d *Dispatcher) handleSetTyping(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RecipientID     string `json:"recipient_id"`
		Action          string `json:"action"`
		PageAccessToken string `json:"page_access_token"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.RecipientID == "" || body.PageAccessToken == "" {
		writeError(w, http.StatusBadRequest, "Missing required parameters")
		return
	}
	action := body.Action
	if action == "" {
		action = graph.ActionTypingOn
	}
	if action != graph.ActionTypingOn && action != graph.ActionTypingOff {
		writeError(w, http.StatusBadRequest, "Invalid action. Use 'typing_on' or 'typing_off'")
		return
	}
	if err := d.graph.SenderAction(r.Context(), body.RecipientID, action, body.PageAccessToken); err != nil {
		writeJSON(w, http.StatusBadGateway, platformError(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "action": action})
}

package graph

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
)

// AppSubscription is one app subscribed to a page's webhook fields.
type AppSubscription struct {
	AppID            string   `json:"app_id"`
	AppName          string   `json:"app_name"`
	SubscribedFields []string `json:"subscribed_fields"`
}

type subscribedAppsResponse struct {
	Data []struct {
		ID               string   `json:"id"`
		Name             string   `json:"name"`
		SubscribedFields []string `json:"subscribed_fields"`
	} `json:"data"`
}

type successResponse struct {
	Success bool `json:"success"`
}

// PageSubscriptions lists the apps subscribed to a page's webhook updates.
func (c *Client) PageSubscriptions(ctx context.Context, pageID, accessToken string) ([]AppSubscription, error) {
	params := url.Values{"access_token": {accessToken}}
	var resp subscribedAppsResponse
	if err := c.getJSON(ctx, fmt.Sprintf("/%s/subscribed_apps", pageID), params, &resp); err != nil {
		return nil, fmt.Errorf("page subscriptions %s: %w", pageID, err)
	}
	subs := make([]AppSubscription, 0, len(resp.Data))
	for _, app := range resp.Data {
		name := app.Name
		if name == "" {
			name = "Unknown"
		}
		subs = append(subs, AppSubscription{
			AppID:            app.ID,
			AppName:          name,
			SubscribedFields: app.SubscribedFields,
		})
	}
	return subs, nil
}

// SubscribePage subscribes the configured app to a page's webhook updates for
// the given fields. An empty field list subscribes to "feed".
func (c *Client) SubscribePage(ctx context.Context, pageID, accessToken string, fields []string) error {
	if len(fields) == 0 {
		fields = []string{"feed"}
	}
	params := url.Values{
		"access_token":      {accessToken},
		"subscribed_fields": {strings.Join(fields, ",")},
	}
	var resp successResponse
	if err := c.postForm(ctx, fmt.Sprintf("/%s/subscribed_apps", pageID), params, &resp); err != nil {
		return fmt.Errorf("subscribe page %s: %w", pageID, err)
	}
	if !resp.Success {
		return fmt.Errorf("subscribe page %s: platform reported failure", pageID)
	}
	log.Info().Str("pageId", pageID).Strs("fields", fields).Msg("Page subscription created")
	return nil
}

// UnsubscribeFields removes the given webhook fields from this app's
// subscription on the page. The subscription to modify is the one whose app
// id matches the configured app id — never a positional pick, which would
// silently edit another app's subscription on pages with several apps
// installed. When no fields remain the app is unsubscribed entirely.
// Returns the fields still subscribed after the update.
func (c *Client) UnsubscribeFields(ctx context.Context, pageID, accessToken string, fieldsToRemove []string) ([]string, error) {
	subs, err := c.PageSubscriptions(ctx, pageID, accessToken)
	if err != nil {
		return nil, err
	}

	var current []string
	found := false
	for _, sub := range subs {
		if sub.AppID == c.app.AppID {
			current = sub.SubscribedFields
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("unsubscribe fields: app %s is not subscribed to page %s", c.app.AppID, pageID)
	}

	remove := make(map[string]bool, len(fieldsToRemove))
	for _, f := range fieldsToRemove {
		remove[f] = true
	}
	var remaining []string
	for _, f := range current {
		if !remove[f] {
			remaining = append(remaining, f)
		}
	}

	path := fmt.Sprintf("/%s/subscribed_apps", pageID)
	var resp successResponse
	if len(remaining) > 0 {
		params := url.Values{
			"access_token":      {accessToken},
			"subscribed_fields": {strings.Join(remaining, ",")},
		}
		err = c.postForm(ctx, path, params, &resp)
	} else {
		// No fields left: a DELETE removes the app subscription entirely.
		params := url.Values{"access_token": {accessToken}}
		err = c.deleteJSON(ctx, path, params, &resp)
	}
	if err != nil {
		return nil, fmt.Errorf("unsubscribe fields on page %s: %w", pageID, err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("unsubscribe fields on page %s: platform reported failure", pageID)
	}

	log.Info().Str("pageId", pageID).Strs("removed", fieldsToRemove).Strs("remaining", remaining).Msg("Page subscription fields updated")
	return remaining, nil
}

package graph

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/rs/zerolog/log"
)

// Actor identifies the author of a post or comment.
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// ThreadComment is one comment in a thread-context fetch, optionally carrying
// its own replies (one level deep, matching the Graph API comments edge).
type ThreadComment struct {
	ID          string          `json:"id,omitempty"`
	Message     string          `json:"message,omitempty"`
	CreatedTime string          `json:"created_time,omitempty"`
	From        *Actor          `json:"from,omitempty"`
	Replies     []ThreadComment `json:"replies,omitempty"`
}

type commentWithRepliesResponse struct {
	ID          string `json:"id"`
	Message     string `json:"message"`
	CreatedTime string `json:"created_time"`
	From        *Actor `json:"from"`
	Comments    *struct {
		Data []ThreadComment `json:"data"`
	} `json:"comments"`
}

type commentsListResponse struct {
	Data []ThreadComment `json:"data"`
}

type postContentResponse struct {
	Message     string `json:"message"`
	CreatedTime string `json:"created_time"`
}

type createdObjectResponse struct {
	ID string `json:"id"`
}

// ReplyToComment posts a reply under the given comment. When mentionID is
// non-empty the reply is prefixed with an @mention of that user.
// Returns the id of the created reply.
func (c *Client) ReplyToComment(ctx context.Context, commentID, accessToken, replyText, mentionID string) (string, error) {
	message := replyText
	if mentionID != "" {
		message = fmt.Sprintf("@[%s] %s", mentionID, replyText)
	}
	params := url.Values{
		"message":      {message},
		"access_token": {accessToken},
	}
	var resp createdObjectResponse
	if err := c.postForm(ctx, fmt.Sprintf("/%s/comments", commentID), params, &resp); err != nil {
		return "", fmt.Errorf("reply to comment %s: %w", commentID, err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("reply to comment %s: no id in response", commentID)
	}
	log.Info().Str("commentId", commentID).Str("replyId", resp.ID).Msg("Comment reply posted")
	return resp.ID, nil
}

// PostContent fetches the message text of a post.
func (c *Client) PostContent(ctx context.Context, postID, accessToken string) (string, error) {
	params := url.Values{
		"access_token": {accessToken},
		"fields":       {"message,created_time"},
	}
	var resp postContentResponse
	if err := c.getJSON(ctx, "/"+postID, params, &resp); err != nil {
		return "", fmt.Errorf("post content %s: %w", postID, err)
	}
	return resp.Message, nil
}

// CommentWithReplies fetches a comment along with its direct replies.
// Used when enriching a reply event with its parent thread.
func (c *Client) CommentWithReplies(ctx context.Context, commentID, accessToken string) (*ThreadComment, error) {
	params := url.Values{
		"access_token": {accessToken},
		"fields":       {"message,created_time,from,comments{message,created_time,from}"},
	}
	var resp commentWithRepliesResponse
	if err := c.getJSON(ctx, "/"+commentID, params, &resp); err != nil {
		return nil, fmt.Errorf("comment thread %s: %w", commentID, err)
	}
	comment := &ThreadComment{
		ID:          commentID,
		Message:     resp.Message,
		CreatedTime: resp.CreatedTime,
		From:        resp.From,
	}
	if resp.Comments != nil {
		comment.Replies = resp.Comments.Data
	}
	return comment, nil
}

// PostComments fetches up to limit top-level comments on a post, each with a
// bounded window of its replies. Used when enriching a top-level comment
// event with its siblings.
func (c *Client) PostComments(ctx context.Context, postID, accessToken string, limit int) ([]ThreadComment, error) {
	params := url.Values{
		"access_token": {accessToken},
		"fields":       {fmt.Sprintf("message,created_time,from,comments.limit(%d){message,created_time,from}", limit)},
		"limit":        {strconv.Itoa(limit)},
	}
	var resp commentsListResponse
	if err := c.getJSON(ctx, fmt.Sprintf("/%s/comments", postID), params, &resp); err != nil {
		return nil, fmt.Errorf("post comments %s: %w", postID, err)
	}
	return resp.Data, nil
}

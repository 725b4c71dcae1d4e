// Package rest is the client side of the fallback channel: plain
// request/response against the chat server's HTTP API, used whenever the
// push connection is not in the connected state.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gochat/internal/common"
)

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: timeout,
		},
	}
}

type apiResponse struct {
	Success  bool              `json:"success"`
	Message  *common.Message   `json:"message,omitempty"`
	Messages []*common.Message `json:"messages,omitempty"`
	Users    []string          `json:"users,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// Send posts a message over the fallback channel. Validation happens
// server-side; the response error maps onto the same taxonomy the push
// channel uses, so callers never special-case the channel.
func (c *Client) Send(ctx context.Context, senderID, receiverID, content string) (*common.Message, error) {
	body, err := json.Marshal(map[string]string{
		"senderId":   senderID,
		"receiverId": receiverID,
		"content":    content,
	})
	if err != nil {
		return nil, err
	}

	resp, err := c.doJSON(ctx, http.MethodPost, "/messages/send/"+url.PathEscape(senderID), body)
	if err != nil {
		return nil, err
	}
	if resp.Message == nil {
		return nil, common.NewTransportError("send response missing message", nil)
	}
	return resp.Message, nil
}

// Fetch returns the pair history ordered by createdAt ascending.
func (c *Client) Fetch(ctx context.Context, senderID, receiverID string) ([]*common.Message, error) {
	q := url.Values{}
	q.Set("senderId", senderID)
	q.Set("receiverId", receiverID)

	resp, err := c.doJSON(ctx, http.MethodGet, "/messages?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// Peers returns the users the given user has exchanged messages with.
func (c *Client) Peers(ctx context.Context, userID string) ([]string, error) {
	q := url.Values{}
	q.Set("currentUserId", userID)

	resp, err := c.doJSON(ctx, http.MethodGet, "/messages/users?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	return resp.Users, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload []byte) (*apiResponse, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, common.NewTransportError(fmt.Sprintf("%s %s", method, path), err)
	}
	defer httpResp.Body.Close()

	blob, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, common.NewTransportError("read response body", err)
	}

	var resp apiResponse
	if err := json.Unmarshal(blob, &resp); err != nil {
		return nil, common.NewTransportError("decode response", err)
	}

	if httpResp.StatusCode >= 400 || !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = fmt.Sprintf("%s %s failed with status %d", method, path, httpResp.StatusCode)
		}
		return nil, &common.Error{Kind: common.KindFromHTTPStatus(httpResp.StatusCode), Msg: msg}
	}

	return &resp, nil
}

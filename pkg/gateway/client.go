// DiceRobot - QQ dice and chat assistant
// License: MIT
//
// Copyright (c) 2026 DiceRobot contributors

package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"

	"github.com/dicerobot/dicerobot/pkg/logger"
	"github.com/dicerobot/dicerobot/pkg/report"
)

const (
	DefaultTimeout = 30 * time.Second
	downloadChunk  = 8 * 1024
)

type Config struct {
	BaseURL     string
	AccessToken string
	UserAgent   string
	Timeout     time.Duration
}

// Client calls the gateway HTTP API. One client is shared by every task.
// Downloads go through a second client without an overall timeout, so
// only the caller's context bounds them.
type Client struct {
	http     *resty.Client
	download *resty.Client

	mu      sync.RWMutex
	baseURL string
	token   string
}

type envelope struct {
	Status  string          `json:"status"`
	RetCode int             `json:"retcode"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Wording string          `json:"wording"`
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	rc := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	dc := resty.New().SetHeader("Accept", "*/*")
	if cfg.UserAgent != "" {
		rc.SetHeader("User-Agent", cfg.UserAgent)
		dc.SetHeader("User-Agent", cfg.UserAgent)
	}

	return &Client{
		http:     rc,
		download: dc,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		token:    cfg.AccessToken,
	}
}

// SetBaseURL points the client at another gateway, e.g. after a settings change.
func (c *Client) SetBaseURL(baseURL string) {
	c.mu.Lock()
	c.baseURL = strings.TrimRight(baseURL, "/")
	c.mu.Unlock()
}

func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) endpoint() (string, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL, c.token
}

func (c *Client) call(ctx context.Context, action string, params interface{}, out interface{}, required ...string) error {
	baseURL, token := c.endpoint()
	req := c.http.R().SetContext(ctx)
	if token != "" {
		req.SetAuthToken(token)
	}
	if params != nil {
		req.SetBody(params)
	} else {
		req.SetBody(map[string]interface{}{})
	}

	resp, err := req.Post(baseURL + "/" + action)
	if err != nil {
		return &NetworkError{Action: action, Err: err}
	}

	status := resp.StatusCode()
	switch {
	case status >= 500:
		return &NetworkServerError{Action: action, StatusCode: status}
	case status >= 400:
		return &NetworkClientError{Action: action, StatusCode: status}
	}

	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return &NetworkInvalidContentError{Action: action, Err: err}
	}
	if env.RetCode != 0 {
		logger.WarnCF("gateway", "Gateway returned non-zero retcode", map[string]interface{}{
			"action":  action,
			"retcode": env.RetCode,
			"status":  env.Status,
			"message": env.Message,
			"wording": env.Wording,
		})
	}

	if out == nil {
		return nil
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return &NetworkInvalidContentError{Action: action, Err: fmt.Errorf("missing data")}
	}
	for _, path := range required {
		if !gjson.GetBytes(env.Data, path).Exists() {
			return &NetworkInvalidContentError{Action: action, Err: fmt.Errorf("missing field %s", path)}
		}
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &NetworkInvalidContentError{Action: action, Err: err}
	}
	return nil
}

func (c *Client) GetLoginInfo(ctx context.Context) (*LoginInfo, error) {
	var info LoginInfo
	if err := c.call(ctx, "get_login_info", nil, &info, "user_id", "nickname"); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) GetFriendList(ctx context.Context) ([]Friend, error) {
	var friends []Friend
	if err := c.call(ctx, "get_friend_list", nil, &friends); err != nil {
		return nil, err
	}
	return friends, nil
}

func (c *Client) GetGroupList(ctx context.Context) ([]Group, error) {
	var groups []Group
	if err := c.call(ctx, "get_group_list", nil, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

func (c *Client) GetGroupMemberInfo(ctx context.Context, groupID, userID int64, noCache bool) (*GroupMember, error) {
	var member GroupMember
	params := getGroupMemberInfoParams{GroupID: groupID, UserID: userID, NoCache: noCache}
	if err := c.call(ctx, "get_group_member_info", params, &member, "user_id", "role"); err != nil {
		return nil, err
	}
	return &member, nil
}

// SendPrivateMessage sends to a user. A non-zero groupID sends a
// group-temporary message through that group.
func (c *Client) SendPrivateMessage(ctx context.Context, userID, groupID int64, message report.Segments) (*MessageResult, error) {
	var result MessageResult
	params := sendPrivateMsgParams{UserID: userID, GroupID: groupID, Message: message}
	if err := c.call(ctx, "send_private_msg", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) SendGroupMessage(ctx context.Context, groupID int64, message report.Segments) (*MessageResult, error) {
	var result MessageResult
	params := sendGroupMsgParams{GroupID: groupID, Message: message}
	if err := c.call(ctx, "send_group_msg", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) SetGroupCard(ctx context.Context, groupID, userID int64, card string) error {
	return c.call(ctx, "set_group_card", setGroupCardParams{GroupID: groupID, UserID: userID, Card: card}, nil)
}

func (c *Client) SetGroupLeave(ctx context.Context, groupID int64, dismiss bool) error {
	return c.call(ctx, "set_group_leave", setGroupLeaveParams{GroupID: groupID, IsDismiss: dismiss}, nil)
}

func (c *Client) SetFriendAddRequest(ctx context.Context, flag string, approve bool, remark string) error {
	return c.call(ctx, "set_friend_add_request", setFriendAddRequestParams{Flag: flag, Approve: approve, Remark: remark}, nil)
}

func (c *Client) SetGroupAddRequest(ctx context.Context, flag, subType string, approve bool, reason string) error {
	params := setGroupAddRequestParams{Flag: flag, SubType: subType, Approve: approve, Reason: reason}
	return c.call(ctx, "set_group_add_request", params, nil)
}

func (c *Client) GetImage(ctx context.Context, file string) (*Image, error) {
	var image Image
	if err := c.call(ctx, "get_image", getImageParams{File: file}, &image); err != nil {
		return nil, err
	}
	return &image, nil
}

// Download streams url into path in fixed-size chunks. The file is written to
// a temporary name first and renamed once complete. Cancel ctx to abort.
func (c *Client) Download(ctx context.Context, url, path string) error {
	const action = "download"

	resp, err := c.download.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(url)
	if err != nil {
		return &NetworkError{Action: action, Err: err}
	}
	body := resp.RawBody()
	defer body.Close()

	status := resp.StatusCode()
	switch {
	case status >= 500:
		return &NetworkServerError{Action: action, StatusCode: status}
	case status >= 400:
		return &NetworkClientError{Action: action, StatusCode: status}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create download directory: %w", err)
	}

	tmp := path + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}

	written, err := copyChunks(f, body, downloadChunk)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp)
		return &NetworkError{Action: action, Err: err}
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to move download into place: %w", err)
	}

	logger.DebugCF("gateway", "Download finished", map[string]interface{}{
		"url":   url,
		"path":  path,
		"bytes": written,
	})
	return nil
}

func copyChunks(dst io.Writer, src io.Reader, size int) (int64, error) {
	buf := make([]byte, size)
	var written int64
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return written, err
			}
			written += int64(n)
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
	}
}

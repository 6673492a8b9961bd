package plugins

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"

	"github.com/dicerobot/dicerobot/pkg/config"
	"github.com/dicerobot/dicerobot/pkg/gateway"
	"github.com/dicerobot/dicerobot/pkg/logger"
	"github.com/dicerobot/dicerobot/pkg/plugin"
	"github.com/dicerobot/dicerobot/pkg/report"
	"github.com/dicerobot/dicerobot/pkg/session"
	"github.com/dicerobot/dicerobot/pkg/utils"
)

const (
	varChatContent       = "对话内容"
	chatCompletionAction = "chat/completions"
)

var (
	errInvalidJSON   = errors.New("response is not valid json")
	errMissingChoice = errors.New("response has no choices")
)

// Chat forwards a prompt, with any attached images, to an OpenAI-compatible
// chat completion API: .chat <prompt>. The last exchanges of each chat are
// sent along as context; .chat reset forgets them.
type Chat struct {
	client   *resty.Client
	sessions *session.Manager
}

func NewChat(userAgent string) *Chat {
	return &Chat{
		client: resty.New().
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "application/json").
			SetHeader("User-Agent", userAgent),
		sessions: session.NewManager(""),
	}
}

func (c *Chat) Initialize(pctx *plugin.Context) error {
	if data := pctx.Store.Settings().Dirs.Data; data != "" {
		c.sessions = session.NewManager(filepath.Join(data, "chat"))
	}
	return nil
}

func (*Chat) Descriptor() plugin.Descriptor {
	return plugin.Descriptor{
		Name:          "chat",
		DisplayName:   "对话",
		Description:   "调用大语言模型进行对话，支持图片",
		Version:       "1.1.0",
		Orders:        []string{"chat"},
		Priority:      1,
		MaxRepetition: 1,
		DefaultSettings: config.Object{
			"base_url":      "https://api.openai.com/v1",
			"api_key":       "",
			"model":         "gpt-4o-mini",
			"system_prompt": "你是一个友善的 QQ 群聊助手，回答尽量简短。",
			"timeout":       60,
			"history":       10,
		},
		DefaultReplies: map[string]string{
			"reply":           "{&对话内容}",
			"api_key_missing": "对话功能尚未配置",
			"empty_response":  "……（对方陷入了沉默）",
			"history_cleared": "好的，之前聊过的内容我已经忘掉了",
		},
	}
}

type chatContentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL string `json:"url"`
}

type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

func (c *Chat) HandleOrder(ctx context.Context, rt *plugin.OrderRuntime) error {
	prompt := strings.TrimSpace(rt.Content)
	key := session.Key(rt.Chat.Type, rt.Chat.ID)
	if prompt == "reset" {
		c.sessions.Reset(key)
		return rt.ReplyToSender(ctx, rt.Reply("history_cleared"))
	}

	images, err := c.imageURLs(ctx, rt)
	if err != nil {
		return err
	}
	if prompt == "" && len(images) == 0 {
		return plugin.ErrOrderInvalid
	}

	apiKey := config.String(rt.Settings, "api_key", "")
	if apiKey == "" {
		return rt.ReplyError("api_key_missing")
	}

	parts := []chatContentPart{}
	if prompt != "" {
		parts = append(parts, chatContentPart{Type: "text", Text: prompt})
	}
	for _, url := range images {
		parts = append(parts, chatContentPart{Type: "image_url", ImageURL: &chatImageURL{URL: url}})
	}

	req := chatRequest{Model: config.String(rt.Settings, "model", "gpt-4o-mini")}
	if system := config.String(rt.Settings, "system_prompt", ""); system != "" {
		req.Messages = append(req.Messages, chatMessage{Role: "system", Content: system})
	}
	for _, msg := range c.sessions.History(key) {
		req.Messages = append(req.Messages, chatMessage{Role: msg.Role, Content: msg.Content})
	}
	req.Messages = append(req.Messages, chatMessage{Role: "user", Content: parts})

	answer, err := c.complete(ctx, rt.Settings, apiKey, req)
	if err != nil {
		return err
	}
	if answer == "" {
		return rt.ReplyError("empty_response")
	}
	logger.DebugCF("chat", "Completion received", map[string]interface{}{
		"chat":   key,
		"answer": utils.Truncate(answer, 80),
	})

	c.remember(key, config.Int(rt.Settings, "history", 10), prompt, len(images), answer)

	rt.UpdateReplyVariables(map[string]interface{}{varChatContent: answer})
	return rt.ReplyToSender(ctx, rt.Reply("reply"))
}

// remember stores the exchange without image data; images are noted in the
// text so later turns know they existed.
func (c *Chat) remember(key string, keep int, prompt string, images int, answer string) {
	for i := 0; i < images; i++ {
		prompt += " [图片]"
	}
	c.sessions.Append(key, keep,
		session.Message{Role: "user", Content: strings.TrimSpace(prompt)},
		session.Message{Role: "assistant", Content: answer},
	)
	if err := c.sessions.Save(key); err != nil {
		logger.WarnCF("chat", "Failed to save chat history", map[string]interface{}{
			"chat":  key,
			"error": err.Error(),
		})
	}
}

// imageURLs resolves image segments to fetchable URLs through the gateway
// when the report did not carry one.
func (c *Chat) imageURLs(ctx context.Context, rt *plugin.OrderRuntime) ([]string, error) {
	var urls []string
	for _, seg := range rt.Message.Header().Message {
		img, ok := seg.(*report.Image)
		if !ok {
			continue
		}
		if img.URL != "" {
			urls = append(urls, img.URL)
			continue
		}
		resolved, err := rt.Gateway().GetImage(ctx, img.File)
		if err != nil {
			return nil, err
		}
		urls = append(urls, resolved.URL)
	}
	return urls, nil
}

func (c *Chat) complete(ctx context.Context, settings config.Object, apiKey string, body chatRequest) (string, error) {
	url := strings.TrimRight(config.String(settings, "base_url", ""), "/") + "/" + chatCompletionAction
	timeout := time.Duration(config.Int(settings, "timeout", 60)) * time.Second

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := c.client.R().
		SetContext(ctx).
		SetAuthToken(apiKey).
		SetBody(body).
		Post(url)
	if err != nil {
		return "", &gateway.NetworkError{Action: chatCompletionAction, Err: err}
	}

	switch status := resp.StatusCode(); {
	case status >= 500:
		return "", &gateway.NetworkServerError{Action: chatCompletionAction, StatusCode: status}
	case status >= 400:
		logger.WarnCF("chat", "Completion request rejected", map[string]interface{}{
			"status": status,
			"body":   resp.String(),
		})
		return "", &gateway.NetworkClientError{Action: chatCompletionAction, StatusCode: status}
	}

	if !gjson.ValidBytes(resp.Body()) {
		return "", &gateway.NetworkInvalidContentError{Action: chatCompletionAction, Err: errInvalidJSON}
	}
	content := gjson.GetBytes(resp.Body(), "choices.0.message.content")
	if !content.Exists() {
		return "", &gateway.NetworkInvalidContentError{Action: chatCompletionAction, Err: errMissingChoice}
	}
	return strings.TrimSpace(content.String()), nil
}

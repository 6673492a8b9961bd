// DiceRobot - QQ dice and chat assistant
// License: MIT
//
// Copyright (c) 2026 DiceRobot contributors

package report

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// Post types.
const (
	PostTypeMetaEvent = "meta_event"
	PostTypeMessage   = "message"
	PostTypeNotice    = "notice"
	PostTypeRequest   = "request"
)

var (
	// ErrIgnored means the report was understood but is not dispatched.
	ErrIgnored = errors.New("report ignored")
	// ErrMessageInvalid means the report is malformed.
	ErrMessageInvalid = errors.New("message invalid")
)

// Report is a decoded gateway report.
type Report interface {
	// Kind returns the post_type of the report.
	Kind() string
}

// Event is implemented by every notice and request. EventType is the key
// event plugins subscribe to.
type Event interface {
	Report
	EventType() string
}

type reportKey struct {
	postType  string
	innerType string
}

type reportSpec struct {
	new      func() Report
	required []string
}

var messageFields = []string{"time", "self_id", "message_type", "sub_type", "message_id", "user_id", "message", "sender"}

var noticeFields = []string{"time", "self_id", "notice_type"}

var requestFields = []string{"time", "self_id", "request_type"}

func fields(base []string, extra ...string) []string {
	out := make([]string, 0, len(base)+len(extra))
	out = append(out, base...)
	return append(out, extra...)
}

var reportTable = map[reportKey]reportSpec{
	{PostTypeMessage, "private"}: {func() Report { return &PrivateMessage{} }, messageFields},
	{PostTypeMessage, "group"}:   {func() Report { return &GroupMessage{} }, fields(messageFields, "group_id")},

	{PostTypeNotice, "friend_add"}:     {func() Report { return &FriendAddNotice{} }, fields(noticeFields, "user_id")},
	{PostTypeNotice, "friend_recall"}:  {func() Report { return &FriendRecallNotice{} }, fields(noticeFields, "user_id", "message_id")},
	{PostTypeNotice, "group_admin"}:    {func() Report { return &GroupAdminNotice{} }, fields(noticeFields, "sub_type", "group_id", "user_id")},
	{PostTypeNotice, "group_ban"}:      {func() Report { return &GroupBanNotice{} }, fields(noticeFields, "sub_type", "group_id", "operator_id", "user_id", "duration")},
	{PostTypeNotice, "group_card"}:     {func() Report { return &GroupCardNotice{} }, fields(noticeFields, "group_id", "user_id", "card_new", "card_old")},
	{PostTypeNotice, "group_decrease"}: {func() Report { return &GroupDecreaseNotice{} }, fields(noticeFields, "sub_type", "group_id", "operator_id", "user_id")},
	{PostTypeNotice, "group_increase"}: {func() Report { return &GroupIncreaseNotice{} }, fields(noticeFields, "sub_type", "group_id", "operator_id", "user_id")},
	{PostTypeNotice, "group_recall"}:   {func() Report { return &GroupRecallNotice{} }, fields(noticeFields, "group_id", "user_id", "operator_id", "message_id")},
	{PostTypeNotice, "group_upload"}:   {func() Report { return &GroupUploadNotice{} }, fields(noticeFields, "group_id", "user_id", "file")},
	{PostTypeNotice, "group_msg_emoji_like"}: {
		func() Report { return &GroupMessageEmojiLikeNotice{} }, fields(noticeFields, "group_id", "user_id", "message_id", "likes"),
	},
	{PostTypeNotice, "group_message_emoji_like"}: {
		func() Report { return &GroupMessageEmojiLikeNotice{} }, fields(noticeFields, "group_id", "user_id", "message_id", "likes"),
	},
	{PostTypeNotice, "essence"}:       {func() Report { return &GroupEssenceNotice{} }, fields(noticeFields, "sub_type", "group_id", "message_id")},
	{PostTypeNotice, "group_essence"}: {func() Report { return &GroupEssenceNotice{} }, fields(noticeFields, "sub_type", "group_id", "message_id")},
	{PostTypeNotice, "notify"}:        {func() Report { return &NotifyNotice{} }, fields(noticeFields, "sub_type", "user_id")},

	{PostTypeRequest, "friend"}: {func() Report { return &FriendRequest{} }, fields(requestFields, "user_id", "flag")},
	{PostTypeRequest, "group"}:  {func() Report { return &GroupRequest{} }, fields(requestFields, "sub_type", "group_id", "user_id", "flag")},
}

// Notices the gateway sends that are never dispatched.
var ignoredNotices = map[string]bool{
	"offline_file":  true,
	"client_status": true,
}

func innerTypeField(postType string) string {
	switch postType {
	case PostTypeMessage:
		return "message_type"
	case PostTypeNotice:
		return "notice_type"
	case PostTypeRequest:
		return "request_type"
	default:
		return ""
	}
}

// Decode discriminates a raw report by (post_type, inner type) and decodes it
// into its concrete type. Reports that are not dispatched yield ErrIgnored;
// malformed ones yield ErrMessageInvalid.
func Decode(body []byte) (Report, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: body is not valid JSON", ErrMessageInvalid)
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: body is not a JSON object", ErrMessageInvalid)
	}

	postType := root.Get("post_type")
	if !postType.Exists() {
		return nil, fmt.Errorf("%w: missing post_type", ErrMessageInvalid)
	}
	if postType.String() == PostTypeMetaEvent {
		return nil, ErrIgnored
	}

	field := innerTypeField(postType.String())
	if field == "" {
		return nil, fmt.Errorf("%w: unknown post_type %q", ErrIgnored, postType.String())
	}
	innerType := root.Get(field).String()
	if postType.String() == PostTypeNotice && ignoredNotices[innerType] {
		return nil, ErrIgnored
	}

	spec, ok := reportTable[reportKey{postType.String(), innerType}]
	if !ok {
		return nil, fmt.Errorf("%w: unknown report (%s, %s)", ErrIgnored, postType.String(), innerType)
	}

	for _, path := range spec.required {
		if !root.Get(path).Exists() {
			return nil, fmt.Errorf("%w: missing field %s", ErrMessageInvalid, path)
		}
	}

	r := spec.new()
	if err := json.Unmarshal(body, r); err != nil {
		if errors.Is(err, ErrIgnored) || errors.Is(err, ErrMessageInvalid) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrMessageInvalid, err)
	}
	return r, nil
}

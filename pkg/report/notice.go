package report

type NoticeHeader struct {
	Time       int64  `json:"time"`
	SelfID     int64  `json:"self_id"`
	PostType   string `json:"post_type"`
	NoticeType string `json:"notice_type"`
}

func (*NoticeHeader) Kind() string { return PostTypeNotice }

type FriendAddNotice struct {
	NoticeHeader
	UserID int64 `json:"user_id"`
}

func (*FriendAddNotice) EventType() string { return "FriendAddNotice" }

type FriendRecallNotice struct {
	NoticeHeader
	UserID    int64 `json:"user_id"`
	MessageID int64 `json:"message_id"`
}

func (*FriendRecallNotice) EventType() string { return "FriendRecallNotice" }

type GroupAdminNotice struct {
	NoticeHeader
	SubType string `json:"sub_type"`
	GroupID int64  `json:"group_id"`
	UserID  int64  `json:"user_id"`
}

func (*GroupAdminNotice) EventType() string { return "GroupAdminNotice" }

type GroupBanNotice struct {
	NoticeHeader
	SubType    string `json:"sub_type"`
	GroupID    int64  `json:"group_id"`
	OperatorID int64  `json:"operator_id"`
	UserID     int64  `json:"user_id"`
	Duration   int64  `json:"duration"`
}

func (*GroupBanNotice) EventType() string { return "GroupBanNotice" }

type GroupCardNotice struct {
	NoticeHeader
	GroupID int64  `json:"group_id"`
	UserID  int64  `json:"user_id"`
	CardNew string `json:"card_new"`
	CardOld string `json:"card_old"`
}

func (*GroupCardNotice) EventType() string { return "GroupCardNotice" }

type GroupDecreaseNotice struct {
	NoticeHeader
	SubType    string `json:"sub_type"`
	GroupID    int64  `json:"group_id"`
	OperatorID int64  `json:"operator_id"`
	UserID     int64  `json:"user_id"`
}

func (*GroupDecreaseNotice) EventType() string { return "GroupDecreaseNotice" }

type GroupIncreaseNotice struct {
	NoticeHeader
	SubType    string `json:"sub_type"`
	GroupID    int64  `json:"group_id"`
	OperatorID int64  `json:"operator_id"`
	UserID     int64  `json:"user_id"`
}

func (*GroupIncreaseNotice) EventType() string { return "GroupIncreaseNotice" }

type GroupRecallNotice struct {
	NoticeHeader
	GroupID    int64 `json:"group_id"`
	UserID     int64 `json:"user_id"`
	OperatorID int64 `json:"operator_id"`
	MessageID  int64 `json:"message_id"`
}

func (*GroupRecallNotice) EventType() string { return "GroupRecallNotice" }

type UploadedFile struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Size  int64  `json:"size"`
	BusID int64  `json:"busid"`
}

type GroupUploadNotice struct {
	NoticeHeader
	GroupID int64        `json:"group_id"`
	UserID  int64        `json:"user_id"`
	File    UploadedFile `json:"file"`
}

func (*GroupUploadNotice) EventType() string { return "GroupUploadNotice" }

type EmojiLike struct {
	EmojiID string `json:"emoji_id"`
	Count   int    `json:"count"`
}

type GroupMessageEmojiLikeNotice struct {
	NoticeHeader
	GroupID   int64       `json:"group_id"`
	UserID    int64       `json:"user_id"`
	MessageID int64       `json:"message_id"`
	Likes     []EmojiLike `json:"likes"`
}

func (*GroupMessageEmojiLikeNotice) EventType() string { return "GroupMessageEmojiLikeNotice" }

type GroupEssenceNotice struct {
	NoticeHeader
	SubType    string `json:"sub_type"`
	GroupID    int64  `json:"group_id"`
	MessageID  int64  `json:"message_id"`
	SenderID   int64  `json:"sender_id"`
	OperatorID int64  `json:"operator_id"`
}

func (*GroupEssenceNotice) EventType() string { return "GroupEssenceNotice" }

// NotifyNotice covers poke, lucky king, honor and the other notify sub types.
type NotifyNotice struct {
	NoticeHeader
	SubType   string `json:"sub_type"`
	GroupID   int64  `json:"group_id,omitempty"`
	UserID    int64  `json:"user_id"`
	TargetID  int64  `json:"target_id,omitempty"`
	SenderID  int64  `json:"sender_id,omitempty"`
	HonorType string `json:"honor_type,omitempty"`
}

func (*NotifyNotice) EventType() string { return "NotifyNotice" }

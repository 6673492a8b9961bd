package gateway

import "github.com/dicerobot/dicerobot/pkg/report"

type LoginInfo struct {
	UserID   int64  `json:"user_id"`
	Nickname string `json:"nickname"`
}

type Friend struct {
	UserID   int64  `json:"user_id"`
	Nickname string `json:"nickname"`
	Remark   string `json:"remark"`
}

type Group struct {
	GroupID        int64  `json:"group_id"`
	GroupName      string `json:"group_name"`
	MemberCount    int    `json:"member_count"`
	MaxMemberCount int    `json:"max_member_count"`
}

type GroupMember struct {
	GroupID  int64  `json:"group_id"`
	UserID   int64  `json:"user_id"`
	Nickname string `json:"nickname"`
	Card     string `json:"card"`
	Role     string `json:"role"`
	Title    string `json:"title"`
	JoinTime int64  `json:"join_time"`
}

type MessageResult struct {
	MessageID int64 `json:"message_id"`
}

type Image struct {
	File     string `json:"file"`
	URL      string `json:"url"`
	FileSize string `json:"file_size"`
	FileName string `json:"file_name"`
}

type sendPrivateMsgParams struct {
	UserID  int64           `json:"user_id"`
	GroupID int64           `json:"group_id,omitempty"`
	Message report.Segments `json:"message"`
}

type sendGroupMsgParams struct {
	GroupID int64           `json:"group_id"`
	Message report.Segments `json:"message"`
}

type getGroupMemberInfoParams struct {
	GroupID int64 `json:"group_id"`
	UserID  int64 `json:"user_id"`
	NoCache bool  `json:"no_cache"`
}

type setGroupCardParams struct {
	GroupID int64  `json:"group_id"`
	UserID  int64  `json:"user_id"`
	Card    string `json:"card"`
}

type setGroupLeaveParams struct {
	GroupID   int64 `json:"group_id"`
	IsDismiss bool  `json:"is_dismiss"`
}

type setFriendAddRequestParams struct {
	Flag    string `json:"flag"`
	Approve bool   `json:"approve"`
	Remark  string `json:"remark,omitempty"`
}

type setGroupAddRequestParams struct {
	Flag    string `json:"flag"`
	SubType string `json:"sub_type"`
	Approve bool   `json:"approve"`
	Reason  string `json:"reason,omitempty"`
}

type getImageParams struct {
	File string `json:"file"`
}

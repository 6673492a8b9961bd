package report

type RequestHeader struct {
	Time        int64  `json:"time"`
	SelfID      int64  `json:"self_id"`
	PostType    string `json:"post_type"`
	RequestType string `json:"request_type"`
}

func (*RequestHeader) Kind() string { return PostTypeRequest }

type FriendRequest struct {
	RequestHeader
	UserID  int64  `json:"user_id"`
	Comment string `json:"comment"`
	Flag    string `json:"flag"`
}

func (*FriendRequest) EventType() string { return "FriendRequest" }

// GroupRequest is either a join request (sub_type add) or an invitation of
// the bot (sub_type invite).
type GroupRequest struct {
	RequestHeader
	SubType string `json:"sub_type"`
	GroupID int64  `json:"group_id"`
	UserID  int64  `json:"user_id"`
	Comment string `json:"comment"`
	Flag    string `json:"flag"`
}

func (*GroupRequest) EventType() string { return "GroupRequest" }

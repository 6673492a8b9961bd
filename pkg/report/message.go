package report

// Chat types.
const (
	ChatFriend = "friend"
	ChatGroup  = "group"
	ChatTemp   = "temp"
)

// Chat identifies a conversation.
type Chat struct {
	Type string
	ID   int64
}

// MessageHeader holds the fields shared by private and group messages.
type MessageHeader struct {
	Time        int64    `json:"time"`
	SelfID      int64    `json:"self_id"`
	PostType    string   `json:"post_type"`
	MessageType string   `json:"message_type"`
	SubType     string   `json:"sub_type"`
	MessageID   int64    `json:"message_id"`
	UserID      int64    `json:"user_id"`
	Message     Segments `json:"message"`
	RawMessage  string   `json:"raw_message"`
	Font        int      `json:"font"`
}

// Message is implemented by *PrivateMessage and *GroupMessage.
type Message interface {
	Report
	Header() *MessageHeader
	// Chat reports false when the message cannot be attributed to a chat.
	Chat() (Chat, bool)
	SenderName() string
	SenderRole() string
}

type PrivateSender struct {
	UserID   int64  `json:"user_id"`
	Nickname string `json:"nickname"`
	Sex      string `json:"sex,omitempty"`
	Age      int    `json:"age,omitempty"`
	// GroupID is set for group-temporary messages.
	GroupID int64 `json:"group_id,omitempty"`
}

type PrivateMessage struct {
	MessageHeader
	Sender PrivateSender `json:"sender"`
}

func (*PrivateMessage) Kind() string { return PostTypeMessage }

func (m *PrivateMessage) Header() *MessageHeader { return &m.MessageHeader }

func (m *PrivateMessage) Chat() (Chat, bool) {
	switch m.SubType {
	case "friend":
		return Chat{Type: ChatFriend, ID: m.UserID}, true
	case "group":
		return Chat{Type: ChatTemp, ID: m.UserID}, true
	default:
		return Chat{}, false
	}
}

func (m *PrivateMessage) SenderName() string { return m.Sender.Nickname }

func (m *PrivateMessage) SenderRole() string { return "" }

type GroupSender struct {
	UserID   int64  `json:"user_id"`
	Nickname string `json:"nickname"`
	Card     string `json:"card,omitempty"`
	Sex      string `json:"sex,omitempty"`
	Age      int    `json:"age,omitempty"`
	Area     string `json:"area,omitempty"`
	Level    string `json:"level,omitempty"`
	Role     string `json:"role,omitempty"`
	Title    string `json:"title,omitempty"`
}

type Anonymous struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Flag string `json:"flag"`
}

type GroupMessage struct {
	MessageHeader
	GroupID   int64       `json:"group_id"`
	Anonymous *Anonymous  `json:"anonymous,omitempty"`
	Sender    GroupSender `json:"sender"`
}

func (*GroupMessage) Kind() string { return PostTypeMessage }

func (m *GroupMessage) Header() *MessageHeader { return &m.MessageHeader }

func (m *GroupMessage) Chat() (Chat, bool) {
	return Chat{Type: ChatGroup, ID: m.GroupID}, true
}

// SenderName prefers the group card over the nickname.
func (m *GroupMessage) SenderName() string {
	if m.Sender.Card != "" {
		return m.Sender.Card
	}
	return m.Sender.Nickname
}

func (m *GroupMessage) SenderRole() string { return m.Sender.Role }

package plugintest

import "github.com/dicerobot/dicerobot/pkg/report"

// Fixed ids used by test messages.
const (
	SelfID  int64 = 10000
	UserID  int64 = 20000
	GroupID int64 = 114514
)

// GroupMessage builds a group text message from a member with the given role.
func GroupMessage(text, role string) *report.GroupMessage {
	return &report.GroupMessage{
		MessageHeader: report.MessageHeader{
			Time:        1700000000,
			SelfID:      SelfID,
			PostType:    report.PostTypeMessage,
			MessageType: "group",
			SubType:     "normal",
			MessageID:   1,
			UserID:      UserID,
			Message:     report.TextSegments(text),
			RawMessage:  text,
		},
		GroupID: GroupID,
		Sender: report.GroupSender{
			UserID:   UserID,
			Nickname: "Alice",
			Role:     role,
		},
	}
}

// FriendMessage builds a private text message from a friend.
func FriendMessage(text string) *report.PrivateMessage {
	return &report.PrivateMessage{
		MessageHeader: report.MessageHeader{
			Time:        1700000000,
			SelfID:      SelfID,
			PostType:    report.PostTypeMessage,
			MessageType: "private",
			SubType:     "friend",
			MessageID:   1,
			UserID:      UserID,
			Message:     report.TextSegments(text),
			RawMessage:  text,
		},
		Sender: report.PrivateSender{
			UserID:   UserID,
			Nickname: "Alice",
		},
	}
}

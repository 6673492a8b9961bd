package plugintest

import (
	"context"

	"github.com/dicerobot/dicerobot/pkg/bot"
	"github.com/dicerobot/dicerobot/pkg/gateway"
)

// BotNickname is the account nickname reported by RunningStatus.
const BotNickname = "DiceBot"

type loginGateway struct{}

func (loginGateway) GetLoginInfo(ctx context.Context) (*gateway.LoginInfo, error) {
	return &gateway.LoginInfo{UserID: SelfID, Nickname: BotNickname}, nil
}

func (loginGateway) GetFriendList(ctx context.Context) ([]gateway.Friend, error) {
	return []gateway.Friend{{UserID: UserID, Nickname: "Alice"}}, nil
}

func (loginGateway) GetGroupList(ctx context.Context) ([]gateway.Group, error) {
	return []gateway.Group{{GroupID: GroupID, GroupName: "Test Group"}}, nil
}

type noopScheduler struct{}

func (noopScheduler) PauseJob(id string) error  { return nil }
func (noopScheduler) ResumeJob(id string) error { return nil }

// RunningStatus returns a bot status that went through a successful login.
func RunningStatus() *bot.Status {
	status := bot.NewStatus()
	bot.NewLifecycle(status, loginGateway{}, noopScheduler{}).CheckStatus(context.Background())
	return status
}

// Package plugins holds the plugins shipped with DiceRobot.
package plugins

import "github.com/dicerobot/dicerobot/pkg/plugin"

// All returns a fresh instance of every built-in plugin, in registration
// order.
func All(version string) []plugin.Plugin {
	return []plugin.Plugin{
		Bot{Version: version},
		Dice{},
		BPDice{},
		SkillCheck{},
		NewChat("DiceRobot/" + version),
		NewDaily60s(),
		FriendRequest{},
		GroupInvite{},
	}
}

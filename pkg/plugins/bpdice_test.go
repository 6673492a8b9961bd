package plugins

import "testing"

func TestRollBP(t *testing.T) {
	fixRolls(t, 47, 2, 7)
	if got := rollBP(true, 2); got != "B2=D100(47)[奖励骰:1 6]=17" {
		t.Fatalf("bonus = %q", got)
	}

	fixRolls(t, 47, 2, 7)
	if got := rollBP(false, 2); got != "P2=D100(47)[惩罚骰:1 6]=67" {
		t.Fatalf("penalty = %q", got)
	}
}

func TestRollBP_Hundred(t *testing.T) {
	// 100 reads as tens 0 units 0; an extra 0 tens keeps it at 100.
	fixRolls(t, 100, 1)
	if got := rollBP(true, 1); got != "B1=D100(100)[奖励骰:0]=100" {
		t.Fatalf("bonus = %q", got)
	}
}

func TestBPDice_Order(t *testing.T) {
	h := newHarness(t, nil, Dice{}, BPDice{})

	fixRolls(t, 47, 2)
	sent := h.group(t, ".rb 潜行", "member")
	if len(sent) != 1 || sent[0] != "由于潜行，Alice骰出了：B1=D100(47)[奖励骰:1]=17" {
		t.Fatalf("reply = %q", sent)
	}

	if sent := h.group(t, ".rp123456", "member"); len(sent) != 0 {
		t.Fatalf("suspicious count answered: %q", sent)
	}
	if sent := h.group(t, ".rp101", "member"); len(sent) != 1 || sent[0] != "被骰子淹没，不知所措……" {
		t.Fatalf("count exceeded reply = %q", sent)
	}
}

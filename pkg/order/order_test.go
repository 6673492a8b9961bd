package order

import (
	"math"
	"testing"

	"github.com/dicerobot/dicerobot/pkg/report"
)

func TestContent(t *testing.T) {
	tests := []struct {
		name     string
		segments report.Segments
		want     string
		ok       bool
	}{
		{"text trimmed", report.Segments{&report.Text{Text: "  .r  "}}, ".r", true},
		{"at self kept", report.Segments{&report.At{QQ: "10000"}, &report.Text{Text: " .bot on"}}, ".bot on", true},
		{"at other filters", report.Segments{&report.At{QQ: "20000"}, &report.Text{Text: ".r"}}, "", false},
		{"at all filters", report.Segments{&report.At{QQ: "all"}, &report.Text{Text: ".r"}}, "", false},
		{"image and reply inert", report.Segments{&report.Reply{ID: "1"}, &report.Text{Text: ".chat"}, &report.Image{File: "a.jpg"}, &report.Text{Text: "hi"}}, ".chathi", true},
	}
	for _, tt := range tests {
		got, ok := Content(tt.segments, 10000)
		if got != tt.want || ok != tt.ok {
			t.Fatalf("%s: Content() = %q, %v; want %q, %v", tt.name, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		in         string
		order      string
		repetition int
		ok         bool
	}{
		{".r", "r", 1, true},
		{"。r", "r", 1, true},
		{" . r10d100k2 Some Reason #3", "r10d100k2 Some Reason", 3, true},
		{".r#2", "r", 2, true},
		{".r #0", "r #0", 1, true},
		{"r", "", 0, false},
		{".", "", 0, false},
		{".bot\non", "bot\non", 1, true},
	}
	for _, tt := range tests {
		order, repetition, ok := Parse(tt.in)
		if order != tt.order || repetition != tt.repetition || ok != tt.ok {
			t.Fatalf("Parse(%q) = %q, %d, %v; want %q, %d, %v", tt.in, order, repetition, ok, tt.order, tt.repetition, tt.ok)
		}
	}
}

func TestParse_OverflowingRepetition(t *testing.T) {
	_, repetition, ok := Parse(".r #99999999999999999999999")
	if !ok || repetition != math.MaxInt {
		t.Fatalf("Parse() repetition = %d, %v; want MaxInt", repetition, ok)
	}
}

func TestMatcher_PriorityAndOrder(t *testing.T) {
	m := NewMatcher()
	m.Register("dice", 1, "roll", "r")
	m.Register("bp_dice", 10, "rb", "rp")
	m.Register("skill_check", 10, "ra", "rc")
	m.Register("bot", 100, "bot")

	tests := []struct {
		in      string
		plugin  string
		order   string
		content string
		rep     int
	}{
		{".r", "dice", "r", "", 1},
		{".R10d100k2 Some Reason #3", "dice", "r", "10d100k2 Some Reason", 3},
		{".rb2", "bp_dice", "rb", "2", 1},
		{".RA 侦查 60", "skill_check", "ra", "侦查 60", 1},
		{".ROLL 2d6", "dice", "roll", "2d6", 1},
		{"。bot off", "bot", "bot", "off", 1},
	}
	for _, tt := range tests {
		got, ok := m.Match(tt.in)
		if !ok {
			t.Fatalf("Match(%q) found nothing", tt.in)
		}
		want := Match{Plugin: tt.plugin, Order: tt.order, Content: tt.content, Repetition: tt.rep}
		if got != want {
			t.Fatalf("Match(%q) = %+v, want %+v", tt.in, got, want)
		}
	}

	if _, ok := m.Match(".unknown"); ok {
		t.Fatal("Match(.unknown) matched")
	}
	if _, ok := m.Match("r"); ok {
		t.Fatal("Match without dot matched")
	}
}

func TestMatcher_RegistrationOrderBreaksTies(t *testing.T) {
	m := NewMatcher()
	m.Register("first", 5, "x")
	m.Register("second", 5, "x")

	got, ok := m.Match(".x")
	if !ok || got.Plugin != "first" {
		t.Fatalf("Match() = %+v, %v; want first", got, ok)
	}
}

func TestMatcher_Deterministic(t *testing.T) {
	m := NewMatcher()
	m.Register("dice", 1, "r")
	first, _ := m.Match(".r 3d6 #2")
	for i := 0; i < 10; i++ {
		if got, _ := m.Match(".r 3d6 #2"); got != first {
			t.Fatalf("Match() = %+v, want %+v", got, first)
		}
	}
}

// DiceRobot - QQ dice and chat assistant
// License: MIT
//
// Copyright (c) 2026 DiceRobot contributors

package order

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/dicerobot/dicerobot/pkg/report"
)

var orderPattern = regexp.MustCompile(`^\s*[.\x{3002}]\s*([\S\s]+?)\s*(?:#([1-9]\d*))?$`)

// Content builds the text an order is matched against. It reports false when
// the message must be filtered: an at segment targets someone other than the
// bot.
func Content(segments report.Segments, selfID int64) (string, bool) {
	self := strconv.FormatInt(selfID, 10)

	var sb strings.Builder
	for _, seg := range segments {
		switch s := seg.(type) {
		case *report.Text:
			sb.WriteString(strings.TrimSpace(s.Text))
		case *report.At:
			if s.QQ != self {
				return "", false
			}
		case *report.Image, *report.Reply:
			// inert
		}
	}
	return sb.String(), true
}

// Parse strips the leading dot and the optional repetition suffix. An
// overflowing repetition is clamped to math.MaxInt so that it exceeds every
// limit.
func Parse(content string) (orderAndContent string, repetition int, ok bool) {
	m := orderPattern.FindStringSubmatch(content)
	if m == nil {
		return "", 0, false
	}

	repetition = 1
	if m[2] != "" {
		n, err := strconv.Atoi(m[2])
		if err != nil {
			n = math.MaxInt
		}
		repetition = n
	}
	return m[1], repetition, true
}

type Match struct {
	Plugin     string
	Order      string
	Content    string
	Repetition int
}

type entry struct {
	pattern  *regexp.Regexp
	plugin   string
	priority int
	seq      int
}

// Matcher selects the plugin for an order. Orders are tried by descending
// priority, then in registration order.
type Matcher struct {
	mu      sync.RWMutex
	entries []entry
	seq     int
}

func NewMatcher() *Matcher {
	return &Matcher{}
}

func (m *Matcher) Register(plugin string, priority int, orders ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, order := range orders {
		m.entries = append(m.entries, entry{
			pattern:  regexp.MustCompile(`(?i)^(` + regexp.QuoteMeta(order) + `)\s*([\S\s]*)$`),
			plugin:   plugin,
			priority: priority,
			seq:      m.seq,
		})
		m.seq++
	}

	sort.SliceStable(m.entries, func(i, j int) bool {
		if m.entries[i].priority != m.entries[j].priority {
			return m.entries[i].priority > m.entries[j].priority
		}
		return m.entries[i].seq < m.entries[j].seq
	})
}

// Match parses content and finds the first registered order matching it.
func (m *Matcher) Match(content string) (Match, bool) {
	orderAndContent, repetition, ok := Parse(content)
	if !ok {
		return Match{}, false
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, e := range m.entries {
		sub := e.pattern.FindStringSubmatch(orderAndContent)
		if sub == nil {
			continue
		}
		return Match{
			Plugin:     e.plugin,
			Order:      strings.ToLower(sub[1]),
			Content:    sub[2],
			Repetition: repetition,
		}, true
	}
	return Match{}, false
}

// Len returns the number of registered orders.
func (m *Matcher) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

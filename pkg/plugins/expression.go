package plugins

import (
	"errors"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/dicerobot/dicerobot/pkg/plugin"
)

// Digit limits past which an input is considered hostile rather than wrong.
const (
	suspiciousCountDigits   = 5
	suspiciousSurfaceDigits = 100
	maxNumberDigits         = 9

	// Largest result magnitude an expression may reach.
	maxResultMagnitude = 1e15
)

var (
	errCountExceeded   = errors.New("dice count exceeded")
	errSurfaceExceeded = errors.New("dice surface exceeded")
)

// rollDie returns a value in [1, surface]. Tests replace it.
var rollDie = func(surface int) int {
	return rand.IntN(surface) + 1
}

// DiceLimits bounds a single dice term.
type DiceLimits struct {
	MaxCount       int
	MaxSurface     int
	DefaultSurface int
}

// Expression is a parsed dice expression such as 3D6+2 or (2D10K1)*5.
type Expression struct {
	root node
	text string
}

// Roll is the outcome of rolling an Expression once.
type Roll struct {
	Detail string
	Value  int
}

func (e *Expression) String() string {
	return e.text
}

func (e *Expression) Roll() Roll {
	detail, value := e.root.eval()
	return Roll{Detail: detail, Value: value}
}

// Format renders a roll as EXPR=DETAIL=VALUE, eliding repeated parts.
func (e *Expression) Format(r Roll) string {
	value := strconv.Itoa(r.Value)
	var sb strings.Builder
	sb.WriteString(e.text)
	if r.Detail != e.text {
		sb.WriteString("=")
		sb.WriteString(r.Detail)
	}
	if r.Detail != value {
		sb.WriteString("=")
		sb.WriteString(value)
	}
	return sb.String()
}

type node interface {
	eval() (string, int)
	text() string
}

type numberNode struct {
	value int
}

func (n *numberNode) eval() (string, int) { return strconv.Itoa(n.value), n.value }
func (n *numberNode) text() string        { return strconv.Itoa(n.value) }

type diceNode struct {
	count   int
	surface int
	keep    int
	written string
}

func (n *diceNode) eval() (string, int) {
	rolls := make([]int, n.count)
	for i := range rolls {
		rolls[i] = rollDie(n.surface)
	}
	kept := rolls
	if n.keep > 0 && n.keep < n.count {
		kept = keepHighest(rolls, n.keep)
	}

	sum := 0
	parts := make([]string, len(kept))
	for i, v := range kept {
		sum += v
		parts[i] = strconv.Itoa(v)
	}
	if len(kept) == 1 {
		return parts[0], sum
	}
	return "(" + strings.Join(parts, "+") + ")", sum
}

func (n *diceNode) text() string { return n.written }

// keepHighest returns the k highest rolls in their original order.
func keepHighest(rolls []int, k int) []int {
	dropped := make([]bool, len(rolls))
	for drop := len(rolls) - k; drop > 0; drop-- {
		lowest := -1
		for i, v := range rolls {
			if dropped[i] {
				continue
			}
			if lowest < 0 || v < rolls[lowest] {
				lowest = i
			}
		}
		dropped[lowest] = true
	}
	kept := make([]int, 0, k)
	for i, v := range rolls {
		if !dropped[i] {
			kept = append(kept, v)
		}
	}
	return kept
}

type binaryNode struct {
	op          byte
	left, right node
}

func (n *binaryNode) eval() (string, int) {
	ld, lv := n.left.eval()
	rd, rv := n.right.eval()
	var v int
	switch n.op {
	case '+':
		v = lv + rv
	case '-':
		v = lv - rv
	case '*':
		v = lv * rv
	case '/':
		if rv == 0 {
			v = 0
		} else {
			v = lv / rv
		}
	}
	return ld + string(n.op) + rd, v
}

func (n *binaryNode) text() string {
	return n.left.text() + string(n.op) + n.right.text()
}

type parenNode struct {
	inner node
}

func (n *parenNode) eval() (string, int) {
	d, v := n.inner.eval()
	return "(" + d + ")", v
}

func (n *parenNode) text() string { return "(" + n.inner.text() + ")" }

// ParseExpression parses a dice expression. An empty input rolls one die
// with the default surface. Errors wrap plugin.ErrOrderInvalid or
// plugin.ErrOrderSuspicious, or are errCountExceeded / errSurfaceExceeded.
func ParseExpression(input string, limits DiceLimits) (*Expression, error) {
	input = normalizeExpression(input)
	if input == "" {
		input = "D"
	}

	p := &exprParser{input: input, limits: limits}
	root, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.input) {
		return nil, plugin.ErrOrderInvalid
	}
	if hasDivisionByZero(root) {
		return nil, plugin.ErrOrderInvalid
	}
	if magnitude(root) > maxResultMagnitude {
		return nil, plugin.ErrOrderSuspicious
	}
	return &Expression{root: root, text: root.text()}, nil
}

func normalizeExpression(s string) string {
	s = strings.NewReplacer("×", "*", "x", "*", "X", "*", "（", "(", "）", ")", " ", "").Replace(s)
	return strings.ToUpper(s)
}

func hasDivisionByZero(n node) bool {
	switch t := n.(type) {
	case *binaryNode:
		if num, ok := t.right.(*numberNode); ok && t.op == '/' && num.value == 0 {
			return true
		}
		return hasDivisionByZero(t.left) || hasDivisionByZero(t.right)
	case *parenNode:
		return hasDivisionByZero(t.inner)
	}
	return false
}

// magnitude bounds the absolute value any roll of n can evaluate to.
func magnitude(n node) float64 {
	switch t := n.(type) {
	case *numberNode:
		return float64(t.value)
	case *diceNode:
		return float64(t.count) * float64(t.surface)
	case *parenNode:
		return magnitude(t.inner)
	case *binaryNode:
		l, r := magnitude(t.left), magnitude(t.right)
		switch t.op {
		case '+', '-':
			return l + r
		case '*':
			return l * r
		default:
			return l
		}
	}
	return 0
}

type exprParser struct {
	input  string
	pos    int
	depth  int
	limits DiceLimits
}

const maxExpressionDepth = 16

func (p *exprParser) peek() byte {
	if p.pos < len(p.input) {
		return p.input[p.pos]
	}
	return 0
}

func (p *exprParser) parseExpr() (node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for c := p.peek(); c == '+' || c == '-'; c = p.peek() {
		p.pos++
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: c, left: left, right: right}
	}
	return left, nil
}

func (p *exprParser) parseTerm() (node, error) {
	left, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	for c := p.peek(); c == '*' || c == '/'; c = p.peek() {
		p.pos++
		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: c, left: left, right: right}
	}
	return left, nil
}

func (p *exprParser) parseFactor() (node, error) {
	if p.peek() == '(' {
		p.depth++
		if p.depth > maxExpressionDepth {
			return nil, plugin.ErrOrderSuspicious
		}
		p.pos++
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.peek() != ')' {
			return nil, plugin.ErrOrderInvalid
		}
		p.pos++
		p.depth--
		return &parenNode{inner: inner}, nil
	}

	count := p.digits()
	if p.peek() != 'D' {
		if count == "" {
			return nil, plugin.ErrOrderInvalid
		}
		if len(count) > maxNumberDigits {
			return nil, plugin.ErrOrderSuspicious
		}
		v, _ := strconv.Atoi(count)
		return &numberNode{value: v}, nil
	}
	p.pos++
	surface := p.digits()

	var keep string
	if p.peek() == 'K' {
		p.pos++
		keep = p.digits()
		if keep == "" {
			return nil, plugin.ErrOrderInvalid
		}
	}
	return p.dice(count, surface, keep)
}

func (p *exprParser) digits() string {
	start := p.pos
	for c := p.peek(); c >= '0' && c <= '9'; c = p.peek() {
		p.pos++
	}
	return p.input[start:p.pos]
}

func (p *exprParser) dice(countText, surfaceText, keepText string) (node, error) {
	if len(countText) > suspiciousCountDigits || len(surfaceText) > suspiciousSurfaceDigits || len(keepText) > suspiciousCountDigits {
		return nil, plugin.ErrOrderSuspicious
	}

	count := 1
	if countText != "" {
		count, _ = strconv.Atoi(countText)
	}
	surface := p.limits.DefaultSurface
	if surfaceText != "" {
		n, err := strconv.Atoi(surfaceText)
		if err != nil {
			return nil, errSurfaceExceeded
		}
		surface = n
	}
	keep := 0
	if keepText != "" {
		keep, _ = strconv.Atoi(keepText)
	}

	if count < 1 || surface < 1 || (keepText != "" && keep < 1) {
		return nil, plugin.ErrOrderInvalid
	}
	if count > p.limits.MaxCount {
		return nil, errCountExceeded
	}
	if surface > p.limits.MaxSurface {
		return nil, errSurfaceExceeded
	}
	if keep > count {
		keep = count
	}

	written := strconv.Itoa(count) + "D" + strconv.Itoa(surface)
	if countText == "" {
		written = "D" + strconv.Itoa(surface)
	}
	if keepText != "" {
		written += "K" + strconv.Itoa(keep)
	}
	return &diceNode{count: count, surface: surface, keep: keep, written: written}, nil
}

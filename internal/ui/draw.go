package ui

import (
	"strings"
	"unicode/utf8"

	"github.com/gdamore/tcell/v2"
)

// segment is a run of text drawn in one style.
type segment struct {
	text  string
	style tcell.Style
}

func plain(text string) segment { return segment{text: text, style: tcell.StyleDefault} }

// line is one dashboard row.
type line []segment

func (l line) String() string {
	var b strings.Builder
	for _, seg := range l {
		b.WriteString(seg.text)
	}
	return b.String()
}

func (l line) width() int {
	n := 0
	for _, seg := range l {
		n += utf8.RuneCountInString(seg.text)
	}
	return n
}

// clip cuts l so that it spans at most width cells.
func (l line) clip(width int) line {
	out := make(line, 0, len(l))
	left := width
	for _, seg := range l {
		if left <= 0 {
			break
		}
		runes := []rune(seg.text)
		if len(runes) > left {
			seg.text = string(runes[:left])
		}
		out = append(out, seg)
		left -= len(runes)
	}
	return out
}

type canvas struct {
	screen tcell.Screen
}

func (c canvas) put(x, y int, r rune, style tcell.Style) {
	c.screen.SetContent(x, y, r, nil, style)
}

// row draws l at (x, y) and blanks the rest of the width.
func (c canvas) row(x, y, width int, l line) {
	col := x
	for _, seg := range l.clip(width) {
		for _, r := range seg.text {
			c.put(col, y, r, seg.style)
			col++
		}
	}
	for ; col < x+width; col++ {
		c.put(col, y, ' ', tcell.StyleDefault)
	}
}

func (c canvas) text(x, y, width int, text string, style tcell.Style) {
	if width > 0 {
		c.row(x, y, width, line{{text: text, style: style}})
	}
}

// frame draws an ASCII border with title set into the top edge.
func (c canvas) frame(x, y, width, height int, title string) {
	if width < 2 || height < 2 {
		return
	}
	right, bottom := x+width-1, y+height-1
	for col := x; col <= right; col++ {
		edge := '-'
		if col == x || col == right {
			edge = '+'
		}
		c.put(col, y, edge, tcell.StyleDefault)
		c.put(col, bottom, edge, tcell.StyleDefault)
	}
	for r := y + 1; r < bottom; r++ {
		c.put(x, r, '|', tcell.StyleDefault)
		c.put(right, r, '|', tcell.StyleDefault)
	}
	if title != "" && width > 4 {
		c.row(x+2, y, min(width-4, utf8.RuneCountInString(title)), line{{text: title, style: tcell.StyleDefault.Bold(true)}})
	}
}

// fit pads or cuts value to exactly width runes.
func fit(value string, width int) string {
	if width <= 0 {
		return ""
	}
	runes := []rune(value)
	if len(runes) >= width {
		return string(runes[:width])
	}
	return value + strings.Repeat(" ", width-len(runes))
}

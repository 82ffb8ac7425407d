package report

import (
	"os"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// MessageType selects the colour and marker of a Box
type MessageType int

const (
	InfoMessage MessageType = iota
	SuccessMessage
	WarningMessage
	ErrorMessage
)

type tone struct {
	marker string
	color  lipgloss.Color
}

var tones = map[MessageType]tone{
	InfoMessage:    {marker: "ℹ", color: "86"},
	SuccessMessage: {marker: "✓", color: "42"},
	WarningMessage: {marker: "⚠", color: "178"},
	ErrorMessage:   {marker: "✗", color: "196"},
}

const minContentWidth = 20

// Box is a rounded, coloured frame around a title and body lines
type Box struct {
	tone  tone
	title string
	lines []string
	width int
}

// NewBox sizes the box to the terminal
func NewBox(messageType MessageType, title string) *Box {
	t, ok := tones[messageType]
	if !ok {
		t = tones[InfoMessage]
	}
	return &Box{tone: t, title: title, width: terminalWidth() - 8}
}

// WithWidth caps the outer width of the box
func (b *Box) WithWidth(width int) *Box {
	b.width = width
	return b
}

func (b *Box) AddLine(text string) *Box {
	b.lines = append(b.lines, text)
	return b
}

func (b *Box) AddBullet(text string) *Box {
	b.lines = append(b.lines, "• "+text)
	return b
}

// Render lays out the title after the marker and indents the body under it
func (b *Box) Render() string {
	// border and padding take 4 columns, the marker column 2 more
	inner := max(b.width-6, minContentWidth)

	var body []string
	for _, text := range append([]string{b.title}, b.lines...) {
		for _, line := range strings.Split(text, "\n") {
			wrapped := []string{line}
			if utf8.RuneCountInString(line) > inner {
				wrapped = wrapText(line, inner)
			}
			for _, w := range wrapped {
				lead := "  "
				if len(body) == 0 {
					lead = b.tone.marker + " "
				}
				body = append(body, lead+w)
			}
		}
	}

	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(b.tone.color).
		Padding(0, 1)
	return style.Render(strings.Join(body, "\n"))
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return 80
	}
	return width
}

// wrapText breaks text on spaces into lines of at most maxWidth runes.
// Words longer than maxWidth get a line of their own.
func wrapText(text string, maxWidth int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return []string{""}
	}

	lines := []string{words[0]}
	width := utf8.RuneCountInString(words[0])
	for _, word := range words[1:] {
		n := utf8.RuneCountInString(word)
		if width+1+n > maxWidth {
			lines = append(lines, word)
			width = n
			continue
		}
		lines[len(lines)-1] += " " + word
		width += 1 + n
	}
	return lines
}

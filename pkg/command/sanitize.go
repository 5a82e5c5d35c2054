package command

import (
	"regexp"
	"strings"
)

var (
	// CSI sequences (ESC [ ... final byte) and OSC sequences (ESC ] ... BEL
	// or ESC \). Tools like mdadm and mkfs emit both when they believe they
	// are attached to a terminal.
	csiPattern = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)
	oscPattern = regexp.MustCompile(`\x1b\][^\x07\x1b]*(?:\x07|\x1b\\)`)
)

// Sanitize removes terminal control bytes from captured command output:
// ANSI CSI/OSC sequences, carriage-return progress redraws, and
// char+backspace pairs. CRLF is normalised to LF and trailing whitespace is
// stripped. Only control bytes (and the characters they erase) are removed.
func Sanitize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = csiPattern.ReplaceAllString(s, "")
	s = oscPattern.ReplaceAllString(s, "")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		line = resolveCarriageReturns(line)
		line = resolveBackspaces(line)
		lines[i] = strings.TrimRight(line, " \t\r")
	}

	out := strings.Join(lines, "\n")
	return strings.TrimRight(out, " \t\n")
}

// resolveCarriageReturns keeps the final redraw of a progress line: the text
// after the last carriage return, or the last non-empty segment when the
// line ends in a bare CR.
func resolveCarriageReturns(line string) string {
	if !strings.Contains(line, "\r") {
		return line
	}
	segments := strings.Split(line, "\r")
	for i := len(segments) - 1; i >= 0; i-- {
		if segments[i] != "" {
			return segments[i]
		}
	}
	return ""
}

// resolveBackspaces applies char+BS erasure. A backspace with nothing before
// it is dropped.
func resolveBackspaces(line string) string {
	if !strings.Contains(line, "\b") {
		return line
	}
	out := make([]rune, 0, len(line))
	for _, r := range line {
		if r == '\b' {
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
			continue
		}
		out = append(out, r)
	}
	return string(out)
}

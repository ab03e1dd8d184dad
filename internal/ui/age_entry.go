package ui

import (
	"strconv"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/driver/mobile"
	"fyne.io/fyne/v2/widget"
	"github.com/tartampluch/photo-time-sleuth/internal/config"
)

// AgeEntry is an Entry that only takes whole years.
type AgeEntry struct {
	widget.Entry
}

// NewAgeEntry creates an empty AgeEntry.
func NewAgeEntry() *AgeEntry {
	entry := &AgeEntry{}
	entry.ExtendBaseWidget(entry)
	entry.SetPlaceHolder("0")
	return entry
}

// TypedRune drops anything that is not a digit.
func (e *AgeEntry) TypedRune(r rune) {
	if r >= '0' && r <= '9' {
		e.Entry.TypedRune(r)
	}
}

// TypedShortcut filters pasted text down to its digits.
func (e *AgeEntry) TypedShortcut(s fyne.Shortcut) {
	paste, ok := s.(*fyne.ShortcutPaste)
	if !ok || paste.Clipboard == nil {
		e.Entry.TypedShortcut(s)
		return
	}

	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, paste.Clipboard.Content())
	if digits == "" {
		return
	}
	for _, r := range digits {
		e.Entry.TypedRune(r)
	}
}

// Keyboard asks mobile drivers for a numeric keypad.
func (e *AgeEntry) Keyboard() mobile.KeyboardType {
	return mobile.NumberKeyboard
}

// Age returns the entered age; an empty entry counts as 0.
func (e *AgeEntry) Age() (int, bool) {
	text := strings.TrimSpace(e.Text)
	if text == "" {
		return 0, true
	}
	age, err := strconv.Atoi(text)
	if err != nil || age < 0 || age > config.MaxAgeYears {
		return 0, false
	}
	return age, true
}

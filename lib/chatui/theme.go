// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import "github.com/charmbracelet/lipgloss"

// Theme defines the color palette for the chat TUI. All colors use
// ANSI 256-color codes for broad terminal compatibility.
type Theme struct {
	// Text colors.
	NormalText lipgloss.Color
	FaintText  lipgloss.Color

	// Selected room row.
	SelectedBackground lipgloss.Color
	SelectedForeground lipgloss.Color

	// Unread marker on room rows.
	UnreadAccent lipgloss.Color

	// Message rendering.
	SenderForeground lipgloss.Color
	NoticeForeground lipgloss.Color
	StateForeground  lipgloss.Color

	// UI chrome.
	HeaderForeground lipgloss.Color
	BorderColor      lipgloss.Color
	HelpText         lipgloss.Color
	ErrorText        lipgloss.Color
	TypingText       lipgloss.Color
}

// DefaultTheme returns the standard dark-terminal palette.
func DefaultTheme() Theme {
	return Theme{
		NormalText:         lipgloss.Color("252"),
		FaintText:          lipgloss.Color("243"),
		SelectedBackground: lipgloss.Color("24"),
		SelectedForeground: lipgloss.Color("231"),
		UnreadAccent:       lipgloss.Color("214"),
		SenderForeground:   lipgloss.Color("75"),
		NoticeForeground:   lipgloss.Color("180"),
		StateForeground:    lipgloss.Color("108"),
		HeaderForeground:   lipgloss.Color("231"),
		BorderColor:        lipgloss.Color("238"),
		HelpText:           lipgloss.Color("243"),
		ErrorText:          lipgloss.Color("203"),
		TypingText:         lipgloss.Color("114"),
	}
}

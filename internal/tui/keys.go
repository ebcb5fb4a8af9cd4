package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Send       key.Binding
	Reset      key.Binding
	NextRegion key.Binding
	NextVoice  key.Binding
	CopyLast   key.Binding
	Quit       key.Binding
}

var defaultKeyMap = keyMap{
	Send:       key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send")),
	Reset:      key.NewBinding(key.WithKeys("ctrl+l"), key.WithHelp("ctrl+l", "clear")),
	NextRegion: key.NewBinding(key.WithKeys("ctrl+r"), key.WithHelp("ctrl+r", "region")),
	NextVoice:  key.NewBinding(key.WithKeys("ctrl+v"), key.WithHelp("ctrl+v", "voice")),
	CopyLast:   key.NewBinding(key.WithKeys("ctrl+y"), key.WithHelp("ctrl+y", "copy reply")),
	Quit:       key.NewBinding(key.WithKeys("ctrl+c", "esc"), key.WithHelp("esc", "quit")),
}

func (k keyMap) help() []key.Binding {
	return []key.Binding{k.Send, k.Reset, k.NextRegion, k.NextVoice, k.CopyLast, k.Quit}
}

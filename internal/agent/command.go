package agent

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Command is the classified form of an inbound text message. The concrete
// types below are the only implementations.
type Command interface {
	name() string
}

// RegisterCommand binds a backend credential to the sender.
type RegisterCommand struct{ Token string }

// HelpCommand asks for the command summary.
type HelpCommand struct{}

// SystemCommand replaces the sender's system instruction.
type SystemCommand struct{ Text string }

// ClearCommand empties the sender's history.
type ClearCommand struct{}

// ImageCommand generates an image from Prompt.
type ImageCommand struct{ Prompt string }

// ChatCommand is free text for the chat model.
type ChatCommand struct{ Text string }

func (RegisterCommand) name() string { return "register" }
func (HelpCommand) name() string     { return "help" }
func (SystemCommand) name() string   { return "system" }
func (ClearCommand) name() string    { return "clear" }
func (ImageCommand) name() string    { return "image" }
func (ChatCommand) name() string     { return "chat" }

// Parse classifies text. Command prefixes are case-sensitive and must be the
// whole message or be followed by whitespace, so "/helpme" is chat text.
func Parse(text string) Command {
	text = strings.TrimSpace(text)

	if arg, ok := cutCommand(text, "/register"); ok {
		return RegisterCommand{Token: arg}
	}
	if _, ok := cutCommand(text, "/help"); ok {
		return HelpCommand{}
	}
	if arg, ok := cutCommand(text, "/system"); ok {
		return SystemCommand{Text: arg}
	}
	if _, ok := cutCommand(text, "/clear"); ok {
		return ClearCommand{}
	}
	if arg, ok := cutCommand(text, "/image"); ok {
		return ImageCommand{Prompt: arg}
	}
	return ChatCommand{Text: text}
}

func cutCommand(text, prefix string) (string, bool) {
	rest, ok := strings.CutPrefix(text, prefix)
	if !ok {
		return "", false
	}
	if rest == "" {
		return "", true
	}
	if r, _ := utf8.DecodeRuneInString(rest); !unicode.IsSpace(r) {
		return "", false
	}
	return strings.TrimSpace(rest), true
}

package protocol

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// QuitCommand ends the console session.
const QuitCommand = "quit"

// ErrInvalidCommand is returned for input that is neither an AT command nor quit.
var ErrInvalidCommand = errors.New("Invalid Input, can only be AT command or quit")

// ValidateCommand accepts the literal "quit" or any string starting with "AT".
func ValidateCommand(line string) error {
	if line == QuitCommand || strings.HasPrefix(line, "AT") {
		return nil
	}
	return ErrInvalidCommand
}

// DecodeNotification renders a notification payload for display. Valid
// UTF-8 is returned as is; anything else becomes a hex dump. ok is false
// for empty payloads, which should not be printed.
func DecodeNotification(payload []byte) (text string, ok bool) {
	if len(payload) == 0 {
		return "", false
	}
	if utf8.Valid(payload) {
		return string(payload), true
	}
	return fmt.Sprintf("Failed to decode message: % x", payload), true
}

package console

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/chaz8081/hm-remote/internal/ble/protocol"
	"github.com/chaz8081/hm-remote/internal/ui"
)

// Command is one validated line from the user, or the error that ended input.
type Command struct {
	Text string
	Err  error
}

// Input is a source of user commands that takes turns with the session:
// after publishing a command it waits for GoAhead before reading the next.
type Input interface {
	Start()
	Commands() <-chan Command
	GoAhead()
	Stop()
}

// Prompt reads commands line by line. Invalid lines are rejected and
// re-prompted here and never reach the session. End of input is published
// as the quit command.
type Prompt struct {
	scanner     *bufio.Scanner
	out         io.Writer
	prompt      string
	interactive bool

	commands chan Command
	goAhead  chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewPrompt returns a prompt reading from in. The prompt string is only
// written when interactive is set; validation errors are always written.
func NewPrompt(in io.Reader, out io.Writer, prompt string, interactive bool) *Prompt {
	return &Prompt{
		scanner:     bufio.NewScanner(in),
		out:         out,
		prompt:      prompt,
		interactive: interactive,
		commands:    make(chan Command),
		goAhead:     make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
}

// Start begins reading in a goroutine.
func (p *Prompt) Start() {
	go p.loop()
}

func (p *Prompt) Commands() <-chan Command {
	return p.commands
}

// GoAhead lets the prompt read the next command.
func (p *Prompt) GoAhead() {
	select {
	case p.goAhead <- struct{}{}:
	default:
	}
}

// Stop releases the reading goroutine from any rendezvous. A read already
// blocked on the underlying reader finishes on its own.
func (p *Prompt) Stop() {
	p.stopOnce.Do(func() {
		close(p.done)
	})
}

func (p *Prompt) loop() {
	for {
		cmd := p.read()
		select {
		case p.commands <- cmd:
		case <-p.done:
			return
		}
		if cmd.Err != nil || cmd.Text == protocol.QuitCommand {
			return
		}

		select {
		case <-p.goAhead:
		case <-p.done:
			return
		}
	}
}

func (p *Prompt) read() Command {
	for {
		if p.interactive {
			fmt.Fprint(p.out, ui.Prompt.Render(p.prompt)+" ")
		}
		if !p.scanner.Scan() {
			if err := p.scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
				return Command{Err: fmt.Errorf("console: read input: %w", err)}
			}
			if p.interactive {
				fmt.Fprintln(p.out)
			}
			return Command{Text: protocol.QuitCommand}
		}

		line := strings.TrimRight(p.scanner.Text(), "\r")
		if err := protocol.ValidateCommand(line); err != nil {
			fmt.Fprintln(p.out, ui.Error.Render(err.Error()))
			continue
		}
		return Command{Text: line}
	}
}

var _ Input = (*Prompt)(nil)

// Package shell implements the interactive read-eval-print session that
// feeds user lines to the assistant and prints the streamed reply.
package shell

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/hupe1980/weathermesh/core"
	"github.com/hupe1980/weathermesh/flow"
	"github.com/hupe1980/weathermesh/logging"
)

// ExitCommand ends the session. Matching is exact and case-sensitive.
const ExitCommand = "exit"

// Assistant is the part of the assistant the shell drives.
type Assistant interface {
	Chat(ctx context.Context, text string, sink flow.Sink) (string, error)
}

// Options configures a Shell.
type Options struct {
	In      io.Reader
	Out     io.Writer
	Name    string // shown before each reply
	Verbose bool   // print tool calls and results
	NoColor bool
	Logger  logging.Logger
}

// Shell reads one line per turn and hands it to the assistant.
type Shell struct {
	assistant Assistant
	opts      Options

	userColor  *color.Color
	replyColor *color.Color
	toolColor  *color.Color
	errColor   *color.Color
}

// New creates a shell around the assistant.
func New(a Assistant, optFns ...func(o *Options)) *Shell {
	opts := Options{
		In:     os.Stdin,
		Out:    os.Stdout,
		Name:   "WeatherAssistant",
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Shell{
		assistant:  a,
		opts:       opts,
		userColor:  color.New(color.FgGreen, color.Bold),
		replyColor: color.New(color.FgCyan, color.Bold),
		toolColor:  color.New(color.FgYellow),
		errColor:   color.New(color.FgRed),
	}
	if opts.NoColor {
		for _, c := range []*color.Color{s.userColor, s.replyColor, s.toolColor, s.errColor} {
			c.DisableColor()
		}
	}
	return s
}

// Run drives the session until the user types exit, input ends or ctx is
// canceled. None of these is an error.
func (s *Shell) Run(ctx context.Context) error {
	lines := readLines(ctx, s.opts.In)
	out := s.opts.Out

	fmt.Fprintln(out, "Welcome to your weather assistant.")
	fmt.Fprintln(out, "  Type 'exit' to exit.")
	fmt.Fprintln(out, "  Please enter the following information to get the weather: the location.")

	for {
		fmt.Fprintln(out)
		s.userColor.Fprint(out, "User:> ")

		var (
			line string
			ok   bool
		)
		select {
		case <-ctx.Done():
			return s.exit()
		case line, ok = <-lines:
		}
		if !ok || line == ExitCommand {
			return s.exit()
		}
		if line == "" {
			continue
		}

		if err := s.exchange(ctx, line); err != nil {
			if ctx.Err() != nil {
				return s.exit()
			}
			s.opts.Logger.Warn("shell.exchange.failed", "error", err)
			s.errColor.Fprintf(out, "\nError: %v\n", err)
		}
	}
}

func (s *Shell) exit() error {
	fmt.Fprint(s.opts.Out, "\n\nExiting chat...\n")
	return nil
}

func (s *Shell) exchange(ctx context.Context, line string) error {
	out := s.opts.Out
	s.replyColor.Fprint(out, "Assistant:> ")

	started := false
	header := func() {
		if !started {
			started = true
			s.replyColor.Fprintf(out, "# %s: ", s.opts.Name)
		}
	}

	sink := flow.SinkFuncs{
		Text: func(chunk string) {
			header()
			fmt.Fprint(out, chunk)
		},
		ToolCall: func(call core.FunctionCall) {
			if s.opts.Verbose {
				s.toolColor.Fprintf(out, "\nFunction Call:> %s with arguments: %s\n", call.Name, call.Arguments)
			}
		},
		ToolResult: func(res core.FunctionResponse) {
			if s.opts.Verbose {
				s.toolColor.Fprintf(out, "Function Result:> %s for function: %s\n", res.Text(), res.Name)
			}
		},
		Final: func(text string) {
			// Non-streaming backends deliver the whole answer here.
			if !started && text != "" {
				header()
				fmt.Fprint(out, text)
			}
			fmt.Fprintln(out)
		},
	}

	_, err := s.assistant.Chat(ctx, line, sink)
	return err
}

// readLines feeds scanned lines to the returned channel until EOF or ctx ends.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			select {
			case lines <- strings.TrimSuffix(sc.Text(), "\r"):
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

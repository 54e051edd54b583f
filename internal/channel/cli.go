// Package channel contains the chat frontends: an interactive terminal REPL
// and a Telegram bot. Channels publish inbound requests to the bus and
// render the answers routed back to them.
package channel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"agribot/internal/domain"
)

// CLI implements domain.Channel for interactive terminal chat.
type CLI struct {
	bus       domain.RequestBus
	logger    *slog.Logger
	in        io.Reader
	out       io.Writer
	location  string
	crop      string
	language  string
	thinking  bool
	thinkMu   sync.Mutex
	thinkStop chan struct{}
}

type CLIConfig struct {
	Logger   *slog.Logger
	In       io.Reader
	Out      io.Writer
	Location string // default location for the session
	Language string
}

func NewCLI(cfg CLIConfig) *CLI {
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	return &CLI{
		logger:   cfg.Logger,
		in:       cfg.In,
		out:      cfg.Out,
		location: cfg.Location,
		language: cfg.Language,
	}
}

func (c *CLI) Name() string { return "cli" }

// Start runs the interactive REPL and blocks until context is cancelled.
func (c *CLI) Start(ctx context.Context, bus domain.RequestBus) error {
	c.bus = bus
	defer c.stopThinking()

	bus.OnOutbound("cli", func(ans domain.OutboundAnswer) {
		c.stopThinking()
		_, _ = fmt.Fprintln(c.out, "\r\033[K") // Clear spinner line
		_, _ = fmt.Fprintln(c.out, "--- AgriBot ---")
		_, _ = fmt.Fprintln(c.out, ans.Text)
		_, _ = fmt.Fprintln(c.out, "---------------")
		_, _ = fmt.Fprint(c.out, "You> ")
	})

	_, _ = fmt.Fprintln(c.out, "AgriBot CLI. Ask about weather, prices, pests or schemes. Type /quit to exit.")
	_, _ = fmt.Fprint(c.out, "You> ")

	scanner := bufio.NewScanner(c.in)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return err
			}
			return nil // EOF
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			_, _ = fmt.Fprint(c.out, "You> ")
			continue
		}
		if line == "/quit" || line == "/exit" || line == "/q" {
			c.logger.Info("user requested quit")
			return nil
		}
		if c.handleCommand(line) {
			_, _ = fmt.Fprint(c.out, "You> ")
			continue
		}

		c.startThinking()
		c.bus.Publish(domain.InboundRequest{
			Channel:  "cli",
			ChatID:   "direct",
			SenderID: "user",
			Text:     line,
			Modality: domain.ModalityText,
			Language: c.language,
			Location: c.location,
			Crop:     c.crop,
		})
	}
}

// handleCommand processes session-context commands. Returns true when the
// line was a command.
func (c *CLI) handleCommand(line string) bool {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/location":
		c.location = arg
		fmt.Fprintf(c.out, "Location set to %q.\n", arg)
	case "/crop":
		c.crop = arg
		fmt.Fprintf(c.out, "Crop set to %q.\n", arg)
	case "/lang":
		if arg == "en" || arg == "hi" {
			c.language = arg
			fmt.Fprintf(c.out, "Language set to %q.\n", arg)
		} else {
			fmt.Fprintln(c.out, "Supported languages: en, hi.")
		}
	case "/help":
		fmt.Fprintln(c.out, "Commands: /location <place>, /crop <crop>, /lang en|hi, /quit")
	default:
		return false
	}
	return true
}

func (c *CLI) startThinking() {
	c.thinkMu.Lock()
	defer c.thinkMu.Unlock()
	if c.thinking {
		return
	}
	c.thinking = true
	c.thinkStop = make(chan struct{})
	go func() {
		frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
		i := 0
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-c.thinkStop:
				return
			case <-ticker.C:
				fmt.Fprintf(c.out, "\r%s Thinking...", frames[i%len(frames)])
				i++
			}
		}
	}()
}

func (c *CLI) stopThinking() {
	c.thinkMu.Lock()
	defer c.thinkMu.Unlock()
	if !c.thinking {
		return
	}
	c.thinking = false
	close(c.thinkStop)
}

// Stop is a no-op for CLI (we exit when Start returns).
func (c *CLI) Stop() error { return nil }

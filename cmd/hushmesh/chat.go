package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/baderanaas/hushmesh/pkg/overlay"
	"github.com/urfave/cli/v2"
)

const inboxPollInterval = 500 * time.Millisecond

var chatCommand = &cli.Command{
	Name:  "chat",
	Usage: "run a node with an interactive prompt on stdin",
	Flags: nodeFlags,
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		ctx, cancel := signalContext(c.Context)
		defer cancel()

		node, bus, err := startNode(ctx, cfg, nil)
		if err != nil {
			return err
		}
		defer func() {
			if err := node.Close(); err != nil {
				log.Warnw("error closing node", "error", err)
			}
		}()

		fmt.Fprintf(c.App.Writer, "Listening on:\n")
		for _, addr := range bus.Addrs() {
			fmt.Fprintf(c.App.Writer, "   %s\n", addr)
		}
		return newChat(node, bus, c.App.Writer).run(ctx, c.App.Reader, inboxPollInterval)
	},
}

type chatNode interface {
	Name() string
	SendTo(ctx context.Context, peer string, plaintext []byte) overlay.SendReport
	Broadcast(ctx context.Context, plaintext []byte) overlay.SendReport
	DrainInbox() []overlay.InboundMessage
	Peers() []overlay.PeerRecord
}

type dialer interface {
	Connect(ctx context.Context, addr string) error
}

// chat is the interactive prompt. Output from the prompt and from the inbox
// poller is serialized through lock.
type chat struct {
	node   chatNode
	dialer dialer
	out    io.Writer
	lock   sync.Mutex
}

func newChat(node chatNode, d dialer, out io.Writer) *chat {
	return &chat{node: node, dialer: d, out: out}
}

func (c *chat) printf(format string, args ...any) {
	c.lock.Lock()
	defer c.lock.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func (c *chat) printHelp() {
	c.printf("Commands:\n")
	c.printf("  /to <peer> <msg>   - Send an encrypted message to one peer\n")
	c.printf("  /peers             - List peers that announced a public key\n")
	c.printf("  /inbox             - Show messages not yet displayed\n")
	c.printf("  /connect <addr>    - Dial a peer multiaddr\n")
	c.printf("  /quit              - Exit\n")
	c.printf("  <message>          - Encrypt and send to every known peer\n")
}

// run reads commands from in until /quit, EOF or ctx is done. Received messages
// are printed every poll interval.
func (c *chat) run(ctx context.Context, in io.Reader, poll time.Duration) error {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(poll)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.printInbox()
			}
		}
	}()

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
		close(lines)
	}()

	c.printf("\nEncrypted chat started as %q.\n", c.node.Name())
	c.printHelp()
	for {
		c.printf("> ")
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				c.printInbox()
				return <-scanErr
			}
			if quit := c.handle(ctx, strings.TrimSpace(line)); quit {
				return nil
			}
		}
	}
}

// handle executes one input line and reports whether the prompt should exit.
func (c *chat) handle(ctx context.Context, input string) bool {
	switch {
	case input == "":
	case input == "/quit":
		c.printf("Shutting down...\n")
		return true

	case input == "/help":
		c.printHelp()

	case input == "/peers":
		peers := c.node.Peers()
		if len(peers) == 0 {
			c.printf("No peers yet.\n")
		}
		for _, p := range peers {
			c.printf("  - %s (announced %s)\n", p.Name, p.UpdatedAt.Format(time.RFC3339))
		}

	case input == "/inbox":
		if !c.printInbox() {
			c.printf("No new messages.\n")
		}

	case strings.HasPrefix(input, "/connect "):
		addr := strings.TrimSpace(input[len("/connect "):])
		if err := c.dialer.Connect(ctx, addr); err != nil {
			c.printf("Connection failed: %v\n", err)
		} else {
			c.printf("Connected.\n")
		}

	case strings.HasPrefix(input, "/to "):
		parts := strings.SplitN(strings.TrimSpace(input[len("/to "):]), " ", 2)
		if len(parts) < 2 || parts[1] == "" {
			c.printf("Usage: /to <peer> <message>\n")
			return false
		}
		c.printReport(c.node.SendTo(ctx, parts[0], []byte(parts[1])))

	case strings.HasPrefix(input, "/"):
		c.printf("Unknown command %q. Type /help.\n", input)

	default:
		report := c.node.Broadcast(ctx, []byte(input))
		if len(report.Outcomes) == 0 {
			c.printf("No peers to send to yet.\n")
			return false
		}
		c.printReport(report)
	}
	return false
}

func (c *chat) printReport(report overlay.SendReport) {
	for _, o := range report.Failed() {
		c.printf("Failed to send to %s: %v\n", o.Peer, o.Err)
	}
	if delivered := report.Delivered(); len(delivered) > 0 {
		c.printf("Sent to %s\n", strings.Join(delivered, ", "))
	}
}

// printInbox prints and drains received messages. It reports whether any were printed.
func (c *chat) printInbox() bool {
	msgs := c.node.DrainInbox()
	for _, m := range msgs {
		c.printf("\r[%s] %s: %s\n", m.ReceivedAt.Format("15:04"), m.From, m.Plaintext)
	}
	return len(msgs) > 0
}

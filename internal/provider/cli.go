package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// CLI invokes the external provider command once per operation. The tool
// holds the OAuth context; the wrapper never sees provider credentials.
type CLI struct {
	command []string
	account string
	logger  zerolog.Logger
}

// NewCLI returns a CLI provider. command is the base argv (binary plus any
// fixed flags); account is the Gmail account identifier passed on mail
// operations.
func NewCLI(command []string, account string, logger zerolog.Logger) *CLI {
	return &CLI{
		command: command,
		account: account,
		logger:  logger.With().Str("component", "provider-cli").Logger(),
	}
}

// run executes the tool with the base argv plus args, returning stdout.
// Stderr goes to the log only; it must never reach an API response.
func (c *CLI) run(ctx context.Context, args ...string) ([]byte, error) {
	argv := append(append([]string{}, c.command...), args...)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...) // #nosec G204 -- argv comes from operator config, not request input

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		c.logger.Error().
			Err(err).
			Str("op", strings.Join(args[:2], " ")).
			Str("stderr", strings.TrimSpace(stderr.String())).
			Msg("provider command failed")
		return nil, fmt.Errorf("provider command: %w", err)
	}
	return stdout.Bytes(), nil
}

func (c *CLI) UnreadEmails(ctx context.Context, days int) ([]EmailItem, error) {
	out, err := c.run(ctx, "gmail", "unread", "--account", c.account, "--days", strconv.Itoa(days), "--json")
	if err != nil {
		return nil, err
	}
	return parseEmailList(out), nil
}

func (c *CLI) CalendarEvents(ctx context.Context, calendarID string, start, end time.Time) ([]Event, error) {
	out, err := c.run(ctx, "calendar", "events", "--calendar", calendarID,
		"--start", start.UTC().Format(time.RFC3339),
		"--end", end.UTC().Format(time.RFC3339),
		"--json")
	if err != nil {
		return nil, err
	}
	return parseEventList(out), nil
}

func (c *CLI) CreateEvent(ctx context.Context, in CreateEventInput) (string, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("marshal event payload: %w", err)
	}
	out, err := c.run(ctx, "calendar", "create", "--calendar", in.CalendarID, "--payload", string(payload))
	if err != nil {
		return "", err
	}
	return writeID(out, "event"), nil
}

func (c *CLI) UpdateEvent(ctx context.Context, in UpdateEventInput) (string, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("marshal event payload: %w", err)
	}
	out, err := c.run(ctx, "calendar", "update", "--calendar", in.CalendarID, "--event", in.EventID, "--payload", string(payload))
	if err != nil {
		return "", err
	}
	return writeID(out, "event"), nil
}

func (c *CLI) ReplyEmail(ctx context.Context, in ReplyInput) (string, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("marshal reply payload: %w", err)
	}
	out, err := c.run(ctx, "gmail", "reply", "--account", c.account, "--payload", string(payload))
	if err != nil {
		return "", err
	}
	return writeID(out, "message"), nil
}

func (c *CLI) SendEmail(ctx context.Context, in SendInput) (string, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("marshal send payload: %w", err)
	}
	out, err := c.run(ctx, "gmail", "send", "--account", c.account, "--payload", string(payload))
	if err != nil {
		return "", err
	}
	return writeID(out, "message"), nil
}

// decodeItems accepts a bare array, {"messages":[...]}, or {"items":[...]}.
// Anything else, including bare text, yields nothing. Items are never
// synthesized from unexpected stdout.
func decodeItems(data []byte) []json.RawMessage {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(trimmed, &arr); err == nil {
		return arr
	}
	var wrapper struct {
		Messages []json.RawMessage `json:"messages"`
		Items    []json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(trimmed, &wrapper); err == nil {
		if len(wrapper.Messages) > 0 {
			return wrapper.Messages
		}
		return wrapper.Items
	}
	return nil
}

// parseEmailList keeps only objects carrying a non-empty id.
func parseEmailList(data []byte) []EmailItem {
	var items []EmailItem
	for _, raw := range decodeItems(data) {
		var item EmailItem
		if err := json.Unmarshal(raw, &item); err != nil || item.ID == "" {
			continue
		}
		items = append(items, item)
	}
	return items
}

// parseEventList keeps only objects carrying a non-empty id.
func parseEventList(data []byte) []Event {
	var events []Event
	for _, raw := range decodeItems(data) {
		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil || ev.ID == "" {
			continue
		}
		events = append(events, ev)
	}
	return events
}

// writeID returns the tool's printed identifier, or a synthetic one when
// the tool printed nothing.
func writeID(stdout []byte, kind string) string {
	id := strings.TrimSpace(string(stdout))
	if id == "" {
		return fmt.Sprintf("%s-%d", kind, time.Now().UnixMilli())
	}
	return id
}

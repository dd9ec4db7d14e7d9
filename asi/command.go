package asi

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Command is a single ASI serial command: a verb, ordered positional arguments
// and ordered "label=value" pairs, rendered as one ASCII line.
//
// Build a fresh Command per call with NewCommand and the With* chainers, then
// render it with Encode. The dialect supplies the address prefix and the
// terminator unless WithAddress or WithTerminator override them, which is how
// multi-card chassis route a command to one card.
type Command struct {
	verb     string
	args     []string
	axisArgs []axisArg

	address    string
	hasAddress bool
	term       []byte
}

// axisArg is one "label=value" pair. Pairs keep their insertion order so the
// rendered wire bytes are deterministic.
type axisArg struct {
	label string
	value string
}

// NewCommand creates a command with the given verb and optional positional
// arguments. Arguments are stringified the same way axis values are.
func NewCommand(verb string, args ...any) *Command {
	cmd := &Command{verb: verb}
	for _, arg := range args {
		cmd.args = append(cmd.args, formatValue(arg))
	}

	return cmd
}

// WithArg appends a positional argument.
func (c *Command) WithArg(v any) *Command {
	c.args = append(c.args, formatValue(v))
	return c
}

// WithAxisArg appends a "label=value" pair. Order is preserved.
func (c *Command) WithAxisArg(label string, value any) *Command {
	c.axisArgs = append(c.axisArgs, axisArg{label: label, value: formatValue(value)})
	return c
}

// WithAddress overrides the dialect's address prefix for this command.
// An empty address suppresses the prefix entirely.
func (c *Command) WithAddress(address string) *Command {
	c.address = address
	c.hasAddress = true

	return c
}

// WithTerminator overrides the dialect's command terminator for this command.
func (c *Command) WithTerminator(term []byte) *Command {
	c.term = term
	return c
}

// Verb returns the command verb.
func (c *Command) Verb() string { return c.verb }

// String renders the command body without address prefix or terminator,
// which is the form used in logs.
func (c *Command) String() string {
	var sb strings.Builder
	sb.WriteString(c.verb)
	for _, arg := range c.args {
		sb.WriteByte(' ')
		sb.WriteString(arg)
	}
	for _, kv := range c.axisArgs {
		sb.WriteByte(' ')
		sb.WriteString(kv.label)
		sb.WriteByte('=')
		sb.WriteString(kv.value)
	}

	return sb.String()
}

// Encode renders the command to wire bytes:
//
//	[address_prefix]verb[ arg]*[ label=value]*[terminator]
//
// using the dialect's framing for the prefix and terminator unless overridden
// on the command. Encode fails if the verb is empty or the rendered line is
// not pure ASCII.
func (c *Command) Encode(d *Dialect) ([]byte, error) {
	if c.verb == "" {
		return nil, fmt.Errorf("%w: empty verb", ErrInvalidCommand)
	}

	prefix := d.addressPrefix
	if c.hasAddress {
		prefix = c.address
	}
	term := d.commandTerm
	if c.term != nil {
		term = c.term
	}

	var buf bytes.Buffer
	buf.WriteString(prefix)
	buf.WriteString(c.String())
	buf.Write(term)

	out := buf.Bytes()
	for _, b := range out {
		if b > unicode.MaxASCII {
			return nil, fmt.Errorf("%w: %q is not ASCII", ErrInvalidCommand, c.String())
		}
	}

	return out, nil
}

// formatValue stringifies a command argument. Floats render in plain decimal
// notation and integers without any decoration, matching what the firmware
// parses.
func formatValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case int:
		return strconv.Itoa(t)
	case int8, int16, int32:
		return fmt.Sprintf("%d", t)
	case int64:
		return strconv.FormatInt(t, 10)
	case uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", t)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		if t {
			return "1"
		}
		return "0"
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}

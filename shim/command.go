package shim

import (
	"strings"
	"time"

	"github.com/ugorji/go/codec"

	"github.com/bluetuith-org/btprofiles/api/errorkinds"
)

// CommandReplyTimeout is the default timeout to stop waiting for a
// command's result from the helper.
const CommandReplyTimeout = 30 * time.Second

type (
	// ExecuteFunc describes an external function that is used to send
	// the command to the helper.
	ExecuteFunc func(params []string) (chan CommandResponse, error)

	// OptionMap describes a map of options to a command.
	OptionMap = map[Option]string

	// NoResult describes an empty result.
	NoResult = struct{}

	// RequestID describes a unique ID that is attached to a request
	// by the client to track the status of the invoked command.
	RequestID int64
)

// Command describes an entire command and its options.
// T is the return value type of the command; NoResult means the
// command only reports errors.
type Command[T any] struct {
	cmd    string
	optmap OptionMap
}

// CommandResponse is the raw result for an invoked command sent from
// the helper.
type CommandResponse struct {
	Status string `json:"status"`

	RequestId RequestID    `json:"request_id,omitempty"`
	Error     CommandError `json:"error"`
	Data      codec.Raw    `json:"data"`
}

// CommandError describes an error that occurred while invoking the
// command, as sent from the helper.
type CommandError struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata"`
}

// Error returns a string representation of the underlying error.
func (c CommandError) Error() string {
	sb := strings.Builder{}

	sb.WriteString(c.Name)
	sb.WriteString(": ")
	if c.Description == "" {
		sb.WriteString("No information is provided for this error")
	} else {
		sb.WriteString(c.Description)
	}

	if len(c.Metadata) > 0 {
		count := 0

		sb.WriteString(" (")
		for _, v := range c.Metadata {
			count++
			sb.WriteString(v)

			if count < len(c.Metadata) {
				sb.WriteString(", ")
			}
		}
		sb.WriteString(")")
	}

	return sb.String()
}

// String returns a string representation of a command and its options.
func (c *Command[T]) String() string {
	sb := strings.Builder{}
	sb.Grow(len(c.cmd) + (len(c.optmap) * 2))

	sb.WriteString(c.cmd)
	for param, value := range c.optmap {
		sb.WriteString(" ")
		sb.WriteString(string(param))
		sb.WriteString(" ")
		sb.WriteString(value)
	}

	return sb.String()
}

// Slice returns a slice of each of the space-separated elements in a
// command-options string.
func (c *Command[T]) Slice() []string {
	return strings.Split(c.String(), " ")
}

// WithOption appends a single option type and value to the command's
// option map.
func (c *Command[T]) WithOption(opt Option, value string) *Command[T] {
	if c.optmap == nil {
		c.optmap = make(OptionMap)
	}

	c.optmap[opt] = value

	return c
}

// WithOptions provides a function to append multiple option-value
// types to the command's option map.
func (c *Command[T]) WithOptions(fn func(OptionMap)) *Command[T] {
	if c.optmap == nil {
		c.optmap = make(OptionMap)
	}

	fn(c.optmap)

	return c
}

// ExecuteWith invokes a command on the helper, and listens for and
// returns the result of the command invocation.
func (c *Command[T]) ExecuteWith(fn ExecuteFunc, timeout ...time.Duration) (T, error) {
	var result T

	replyTimeout := CommandReplyTimeout
	if timeout != nil {
		replyTimeout = timeout[0]
	}

	responseChan, commandErr := fn(c.Slice())
	if commandErr != nil {
		return result, commandErr
	}

	commandErr = errorkinds.ErrShimNotStarted

	select {
	case response, ok := <-responseChan:
		if !ok {
			break
		}

		if response.Status == "error" {
			return result, response.Error
		}

		if response.Status == "ok" {
			switch any(result).(type) {
			case NoResult:
				return result, nil
			}

			reply := make(map[string]T, 1)
			if err := unmarshalJSON(response.Data, &reply); err != nil {
				return result, err
			}

			for _, mv := range reply {
				result = mv
			}

			commandErr = nil
		}

	case <-time.After(replyTimeout):
		commandErr = errorkinds.ErrCommandTimeout
	}

	return result, commandErr
}

package commands

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/vxi11/internal/cli/output"
	"github.com/marmos91/vxi11/pkg/vxi11"
)

// MessageResult is the outcome of query, write and read.
type MessageResult struct {
	Host     string        `json:"host" yaml:"host"`
	Device   string        `json:"device" yaml:"device"`
	Command  string        `json:"command,omitempty" yaml:"command,omitempty"`
	Response string        `json:"response,omitempty" yaml:"response,omitempty"`
	Bytes    int           `json:"bytes" yaml:"bytes"`
	Duration time.Duration `json:"duration" yaml:"duration"`

	raw []byte
}

// Raw implements output.RawRenderer.
func (r MessageResult) Raw() []byte {
	return r.raw
}

// Headers implements output.TableRenderer.
func (r MessageResult) Headers() []string {
	return []string{"HOST", "DEVICE", "RESPONSE", "BYTES", "DURATION"}
}

// Rows implements output.TableRenderer.
func (r MessageResult) Rows() [][]string {
	return [][]string{{
		r.Host,
		r.Device,
		r.Response,
		strconv.Itoa(r.Bytes),
		r.Duration.Round(time.Microsecond).String(),
	}}
}

func newMessageResult(s *vxi11.Session, command string, data []byte, n int, start time.Time) MessageResult {
	return MessageResult{
		Host:     s.Host(),
		Device:   s.Options().Device,
		Command:  strings.TrimRight(command, "\r\n"),
		Response: strings.TrimRight(string(data), "\r\n"),
		Bytes:    n,
		Duration: time.Since(start),
		raw:      data,
	}
}

// terminate appends a newline unless cmd already ends with one.
func terminate(cmd string) string {
	if strings.HasSuffix(cmd, "\n") {
		return cmd
	}
	return cmd + "\n"
}

// messageArg joins args into one message; "-" reads it from stdin.
func messageArg(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 && args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}
	return strings.Join(args, " "), nil
}

func newQueryCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "query HOST COMMAND...",
		Short: "Send a command and read the response",
		Long: `Send a command to the instrument and read its response.

A newline is appended to the command unless it already ends with one.

Examples:
  # Identify an instrument
  vxi11ctl query 192.168.1.50 '*IDN?'

  # Query a channel behind a GPIB gateway, printing raw bytes
  vxi11ctl query gw.lab -d gpib0,5 -o raw 'MEAS:VOLT:DC?'`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			printer, err := app.printer(cmd)
			if err != nil {
				return err
			}
			command, err := messageArg(cmd, args[1:])
			if err != nil {
				return err
			}

			return app.withSession(cmd, args[0], func(ctx context.Context, s *vxi11.Session) error {
				start := time.Now()
				data, err := s.Query(ctx, []byte(terminate(command)))
				if err != nil {
					return err
				}
				return printer.Print(newMessageResult(s, command, data, len(data), start))
			})
		},
	}
}

func newWriteCmd(app *App) *cobra.Command {
	var noNewline bool

	cmd := &cobra.Command{
		Use:   "write HOST DATA...",
		Short: "Send a message to the instrument",
		Long: `Send a message to the instrument without reading a response.

Use "-" as DATA to send standard input.

Examples:
  vxi11ctl write 192.168.1.50 '*RST'
  vxi11ctl write 192.168.1.50 - < setup.scpi`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			printer, err := app.printer(cmd)
			if err != nil {
				return err
			}
			data, err := messageArg(cmd, args[1:])
			if err != nil {
				return err
			}
			if !noNewline {
				data = terminate(data)
			}

			return app.withSession(cmd, args[0], func(ctx context.Context, s *vxi11.Session) error {
				start := time.Now()
				n, err := s.Write(ctx, []byte(data))
				if err != nil {
					return err
				}
				return printer.Print(newMessageResult(s, data, nil, n, start))
			})
		},
	}

	cmd.Flags().BoolVarP(&noNewline, "no-newline", "n", false, "Do not append a newline")
	return cmd
}

func newReadCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "read HOST",
		Short: "Read one complete response from the instrument",
		Long: `Read until the instrument signals the end of a message (or the
termination character when --term-char is set).

Examples:
  vxi11ctl read 192.168.1.50 -o raw > waveform.bin`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			printer, err := app.printer(cmd)
			if err != nil {
				return err
			}

			return app.withSession(cmd, args[0], func(ctx context.Context, s *vxi11.Session) error {
				start := time.Now()
				data, err := s.Read(ctx)
				if err != nil {
					return err
				}
				return printer.Print(newMessageResult(s, "", data, len(data), start))
			})
		},
	}
}

// controlActions maps control verbs to session operations.
var controlActions = map[string]func(s *vxi11.Session, ctx context.Context) error{
	"trigger": (*vxi11.Session).Trigger,
	"clear":   (*vxi11.Session).Clear,
	"remote":  (*vxi11.Session).Remote,
	"local":   (*vxi11.Session).Local,
	"lock":    (*vxi11.Session).Lock,
	"unlock":  (*vxi11.Session).Unlock,
}

// ControlResult is the outcome of a control action.
type ControlResult struct {
	Host   string `json:"host" yaml:"host"`
	Device string `json:"device" yaml:"device"`
	Action string `json:"action" yaml:"action"`
	STB    *byte  `json:"stb,omitempty" yaml:"stb,omitempty"`
}

// Headers implements output.TableRenderer.
func (r ControlResult) Headers() []string {
	return []string{"HOST", "DEVICE", "ACTION", "RESULT"}
}

// Rows implements output.TableRenderer.
func (r ControlResult) Rows() [][]string {
	result := "ok"
	if r.STB != nil {
		result = fmt.Sprintf("0x%02X", *r.STB)
	}
	return [][]string{{r.Host, r.Device, r.Action, result}}
}

func newControlCmd(app *App) *cobra.Command {
	validArgs := []string{"stb", "trigger", "clear", "remote", "local", "lock", "unlock"}

	return &cobra.Command{
		Use:   "control HOST ACTION",
		Short: "Read the status byte or send a device control",
		Long: `Perform a device control operation on the instrument.

Actions:
  stb      Read the status byte
  trigger  Send a group execute trigger
  clear    Send a device clear
  remote   Place the device in remote state
  local    Return the device to local state
  lock     Acquire the device lock
  unlock   Release the device lock

Examples:
  vxi11ctl control 192.168.1.50 stb
  vxi11ctl control gw.lab -d gpib0,5 clear`,
		Args: cobra.ExactArgs(2),
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			if len(args) == 1 {
				return validArgs, cobra.ShellCompDirectiveNoFileComp
			}
			return nil, cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			action := strings.ToLower(args[1])
			fn, ok := controlActions[action]
			if !ok && action != "stb" {
				return fmt.Errorf("unknown action %q (valid: %s)", args[1], strings.Join(validArgs, ", "))
			}
			printer, err := app.printer(cmd)
			if err != nil {
				return err
			}

			return app.withSession(cmd, args[0], func(ctx context.Context, s *vxi11.Session) error {
				result := ControlResult{Host: s.Host(), Device: s.Options().Device, Action: action}
				if action == "stb" {
					stb, err := s.ReadSTB(ctx)
					if err != nil {
						return err
					}
					result.STB = &stb
				} else if err := fn(s, ctx); err != nil {
					return err
				}
				return printer.Print(result)
			})
		},
	}
}

var (
	_ output.TableRenderer = MessageResult{}
	_ output.RawRenderer   = MessageResult{}
	_ output.TableRenderer = ControlResult{}
)

package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	pmap "github.com/marmos91/vxi11/internal/protocol/portmap"
	core "github.com/marmos91/vxi11/internal/protocol/vxi11"
	"github.com/marmos91/vxi11/pkg/portmap"
)

// ResolveResult is the outcome of resolve.
type ResolveResult struct {
	Host     string `json:"host" yaml:"host"`
	Program  uint32 `json:"program" yaml:"program"`
	Version  uint32 `json:"version" yaml:"version"`
	Protocol string `json:"protocol" yaml:"protocol"`
	Port     uint16 `json:"port" yaml:"port"`
}

// Headers implements output.TableRenderer.
func (r ResolveResult) Headers() []string {
	return []string{"HOST", "PROGRAM", "VERSION", "PROTOCOL", "PORT"}
}

// Rows implements output.TableRenderer.
func (r ResolveResult) Rows() [][]string {
	return [][]string{{
		r.Host,
		programName(r.Program),
		strconv.FormatUint(uint64(r.Version), 10),
		r.Protocol,
		strconv.FormatUint(uint64(r.Port), 10),
	}}
}

// MappingList is the outcome of dump.
type MappingList struct {
	Host     string            `json:"host" yaml:"host"`
	Mappings []portmap.Mapping `json:"mappings" yaml:"mappings"`
}

// Headers implements output.TableRenderer.
func (l MappingList) Headers() []string {
	return []string{"PROGRAM", "VERSION", "PROTOCOL", "PORT"}
}

// Rows implements output.TableRenderer.
func (l MappingList) Rows() [][]string {
	rows := make([][]string, 0, len(l.Mappings))
	for _, m := range l.Mappings {
		rows = append(rows, []string{
			programName(m.Program),
			strconv.FormatUint(uint64(m.Version), 10),
			m.Protocol.String(),
			strconv.FormatUint(uint64(m.Port), 10),
		})
	}
	return rows
}

func programName(prog uint32) string {
	switch prog {
	case pmap.Program:
		return "portmapper"
	case core.Program:
		return "vxi11-core"
	case core.AbortProgram:
		return "vxi11-abort"
	case core.InterruptProgram:
		return "vxi11-intr"
	default:
		return fmt.Sprintf("0x%x", prog)
	}
}

func parseProtocol(s string) (portmap.Protocol, error) {
	switch s {
	case "tcp":
		return portmap.TCP, nil
	case "udp":
		return portmap.UDP, nil
	default:
		return 0, fmt.Errorf("invalid protocol %q (valid: tcp, udp)", s)
	}
}

func newResolveCmd(app *App) *cobra.Command {
	var (
		program  uint32
		version  uint32
		protocol string
	)

	cmd := &cobra.Command{
		Use:   "resolve HOST",
		Short: "Ask the port mapper for the port of a program",
		Long: `Ask the port mapper on HOST:111 which port serves an RPC program.

Defaults to the VXI-11 core channel (program 0x0607AF version 1 over TCP).

Examples:
  vxi11ctl resolve 192.168.1.50
  vxi11ctl resolve 192.168.1.50 --program 0x0607B0`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			proto, err := parseProtocol(protocol)
			if err != nil {
				return err
			}
			printer, err := app.printer(cmd)
			if err != nil {
				return err
			}
			opts, err := app.dialOptions()
			if err != nil {
				return err
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, app.cfg.Connection.DialTimeout)
			defer cancel()

			port, err := portmap.Resolve(ctx, args[0], program, version, proto, opts)
			if err != nil {
				return err
			}

			return printer.Print(ResolveResult{
				Host:     args[0],
				Program:  program,
				Version:  version,
				Protocol: proto.String(),
				Port:     port,
			})
		},
	}

	cmd.Flags().Uint32Var(&program, "program", core.Program, "RPC program number")
	cmd.Flags().Uint32Var(&version, "version", core.Version, "RPC program version")
	cmd.Flags().StringVar(&protocol, "protocol", "tcp", "Transport protocol (tcp|udp)")
	return cmd
}

func newDumpCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "dump HOST",
		Short: "List every program registered with the port mapper",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			printer, err := app.printer(cmd)
			if err != nil {
				return err
			}
			opts, err := app.dialOptions()
			if err != nil {
				return err
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, app.cfg.Connection.DialTimeout)
			defer cancel()

			c, err := portmap.Dial(ctx, args[0], opts)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			mappings, err := c.Dump(ctx)
			if err != nil {
				return err
			}
			return printer.Print(MappingList{Host: args[0], Mappings: mappings})
		},
	}
}

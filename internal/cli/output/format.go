// Package output renders vxi11ctl results as tables, JSON, YAML or raw
// instrument bytes.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Format is an output format selected with --output.
type Format string

const (
	// FormatTable renders TableRenderer values as aligned columns.
	FormatTable Format = "table"
	// FormatJSON renders values as indented JSON.
	FormatJSON Format = "json"
	// FormatYAML renders values as YAML.
	FormatYAML Format = "yaml"
	// FormatRaw writes instrument responses byte for byte.
	FormatRaw Format = "raw"
)

// ParseFormat parses a --output value. The empty string selects the table
// format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "table", "":
		return FormatTable, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "raw":
		return FormatRaw, nil
	default:
		return "", fmt.Errorf("invalid output format: %q (valid: table, json, yaml, raw)", s)
	}
}

func (f Format) String() string {
	return string(f)
}

// RawRenderer is implemented by results carrying instrument bytes.
type RawRenderer interface {
	Raw() []byte
}

// Printer writes results in one format.
type Printer struct {
	out    io.Writer
	format Format
	color  bool
}

// NewPrinter creates a Printer.
func NewPrinter(out io.Writer, format Format, color bool) *Printer {
	return &Printer{out: out, format: format, color: color}
}

// DefaultPrinter writes tables to stdout.
func DefaultPrinter() *Printer {
	return NewPrinter(os.Stdout, FormatTable, true)
}

func (p *Printer) Format() Format {
	return p.format
}

func (p *Printer) Writer() io.Writer {
	return p.out
}

// Print renders data in the printer's format.
//
// Table output falls back to JSON for values that are not TableRenderers,
// and raw output to the table format for values that are not RawRenderers.
func (p *Printer) Print(data any) error {
	switch p.format {
	case FormatRaw:
		if r, ok := data.(RawRenderer); ok {
			_, err := p.out.Write(r.Raw())
			return err
		}
		fallthrough
	case FormatTable:
		if renderer, ok := data.(TableRenderer); ok {
			return PrintTable(p.out, renderer)
		}
		return PrintJSON(p.out, data)
	case FormatJSON:
		return PrintJSON(p.out, data)
	case FormatYAML:
		return PrintYAML(p.out, data)
	default:
		return fmt.Errorf("unknown format: %s", p.format)
	}
}

// Printf prints a formatted message.
func (p *Printer) Printf(format string, args ...any) {
	_, _ = fmt.Fprintf(p.out, format, args...)
}

// Success prints msg in green when color is enabled.
func (p *Printer) Success(msg string) {
	p.colored("32", msg)
}

// Warning prints msg in yellow when color is enabled.
func (p *Printer) Warning(msg string) {
	p.colored("33", msg)
}

func (p *Printer) colored(code, msg string) {
	if p.color {
		_, _ = fmt.Fprintf(p.out, "\033[%sm%s\033[0m\n", code, msg)
		return
	}
	_, _ = fmt.Fprintln(p.out, msg)
}

// Package output renders command results as aligned text or indented JSON.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// Format represents the output format type
type Format string

const (
	// FormatText is the default human-readable format
	FormatText Format = "text"
	// FormatJSON is the JSON output format
	FormatJSON Format = "json"
)

// Formatter writes results in one format
type Formatter struct {
	format Format
	writer io.Writer
}

// New creates a Formatter writing to w
func New(format Format, w io.Writer) *Formatter {
	return &Formatter{format: format, writer: w}
}

// FromCmd builds a Formatter from the command's --output flag, writing to
// the command's output stream
func FromCmd(cmd *cobra.Command) (*Formatter, error) {
	format, err := GetFormatFromCmd(cmd)
	if err != nil {
		return nil, err
	}
	return New(format, cmd.OutOrStdout()), nil
}

// IsJSON returns true if the format is JSON
func (f *Formatter) IsJSON() bool {
	return f.format == FormatJSON
}

// Writer returns the destination
func (f *Formatter) Writer() io.Writer {
	return f.writer
}

// JSON writes data as indented JSON
func (f *Formatter) JSON(data any) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// Fields writes label/value pairs, aligned, or data as JSON
func (f *Formatter) Fields(data any, pairs ...Field) error {
	if f.IsJSON() {
		return f.JSON(data)
	}

	w := tabwriter.NewWriter(f.writer, 0, 0, 2, ' ', 0)
	for _, p := range pairs {
		fmt.Fprintf(w, "%s:\t%v\n", p.Label, p.Value)
	}
	return w.Flush()
}

// Table writes rows under a header, or data as JSON
func (f *Formatter) Table(data any, header []string, rows [][]string) error {
	if f.IsJSON() {
		return f.JSON(data)
	}

	w := tabwriter.NewWriter(f.writer, 0, 0, 2, ' ', 0)
	writeRow(w, header)
	for _, row := range rows {
		writeRow(w, row)
	}
	return w.Flush()
}

func writeRow(w io.Writer, cells []string) {
	for i, cell := range cells {
		if i > 0 {
			fmt.Fprint(w, "\t")
		}
		fmt.Fprint(w, cell)
	}
	fmt.Fprintln(w)
}

// Field is one labelled value of a text rendering
type Field struct {
	Label string
	Value any
}

// F is shorthand for a Field
func F(label string, value any) Field {
	return Field{Label: label, Value: value}
}

// AddFormatFlag adds a --output flag to a cobra command
func AddFormatFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", "text", "Output format (text|json)")
}

// GetFormatFromCmd extracts the output format from a cobra command's flags
func GetFormatFromCmd(cmd *cobra.Command) (Format, error) {
	formatStr, err := cmd.Flags().GetString("output")
	if err != nil {
		return FormatText, err
	}

	format := Format(formatStr)
	switch format {
	case FormatText, FormatJSON:
		return format, nil
	default:
		return FormatText, fmt.Errorf("invalid output format: %s (must be 'text' or 'json')", formatStr)
	}
}

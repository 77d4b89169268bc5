package formatter

import (
	"fmt"
	"io"

	"github.com/bytedance/sonic"
)

// JSONFormatter renders the merged timeline as indented JSON.
type JSONFormatter struct {
	out io.Writer
}

// NewJSONFormatter creates a JSON formatter writing to out.
func NewJSONFormatter(out io.Writer) *JSONFormatter {
	return &JSONFormatter{out: out}
}

func (f *JSONFormatter) Format(view View) error {
	data, err := sonic.ConfigDefault.MarshalIndent(view, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(f.out, string(data))
	return err
}

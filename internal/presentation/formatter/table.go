package formatter

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"golang.org/x/term"

	"github.com/rvoll/timelinehub/internal/util"
)

const timeLayout = "2006-01-02 15:04:05"

// TableFormatter renders the merged timeline as a bordered table.
type TableFormatter struct {
	out     io.Writer
	headers []string
}

// NewTableFormatter creates a table formatter writing to out.
func NewTableFormatter(out io.Writer) *TableFormatter {
	return &TableFormatter{
		out:     out,
		headers: []string{"Time", "Source", "Label", "Description", "Tag"},
	}
}

// Format renders the view. The description column shrinks to keep rows
// within the terminal width.
func (f *TableFormatter) Format(view View) error {
	tp := util.GetTimeProvider()

	rows := make([][]string, 0, len(view.Items))
	for _, item := range view.Items {
		rows = append(rows, []string{
			tp.FormatMillis(item.Timestamp, timeLayout),
			item.Source,
			item.Label,
			item.Description,
			item.ContextTag,
		})
	}

	widths := f.calculateColumnWidths(rows)

	f.printBorder(widths, "top")
	f.printRow(f.headers, widths)
	f.printBorder(widths, "middle")
	for _, row := range rows {
		row[3] = util.TruncateString(row[3], widths[3])
		f.printRow(row, widths)
	}
	f.printBorder(widths, "bottom")

	f.printPaging(view.HasMore)
	return nil
}

// calculateColumnWidths sizes each column to its content, then caps the
// description column so the table fits the terminal.
func (f *TableFormatter) calculateColumnWidths(rows [][]string) []int {
	widths := make([]int, len(f.headers))
	for i, header := range f.headers {
		widths[i] = util.GetDisplayWidth(header)
	}
	for _, row := range rows {
		for i, value := range row {
			if w := util.GetDisplayWidth(value); w > widths[i] {
				widths[i] = w
			}
		}
	}

	// Borders and padding: "│ " + " │ " per column + " │".
	overhead := 3*len(widths) + 1
	fixed := 0
	for i, w := range widths {
		if i != 3 {
			fixed += w
		}
	}
	if room := f.maxWidth() - overhead - fixed; widths[3] > room {
		if room < 10 {
			room = 10
		}
		widths[3] = room
	}
	return widths
}

func (f *TableFormatter) maxWidth() int {
	termWidth, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || termWidth < 60 {
		termWidth = 120 // Default fallback
	}
	return termWidth
}

// printBorder prints table borders (top, middle, bottom)
func (f *TableFormatter) printBorder(widths []int, borderType string) {
	var left, middle, right string
	switch borderType {
	case "top":
		left, middle, right = "┌", "┬", "┐"
	case "middle":
		left, middle, right = "├", "┼", "┤"
	case "bottom":
		left, middle, right = "└", "┴", "┘"
	}

	fmt.Fprint(f.out, left)
	for i, width := range widths {
		fmt.Fprint(f.out, strings.Repeat("─", width+2)) // +2 for padding spaces
		if i < len(widths)-1 {
			fmt.Fprint(f.out, middle)
		}
	}
	fmt.Fprintln(f.out, right)
}

// printRow prints one left-aligned row, padding by display width so wide
// characters keep the borders straight.
func (f *TableFormatter) printRow(values []string, widths []int) {
	fmt.Fprint(f.out, "│")
	for i, value := range values {
		fmt.Fprintf(f.out, " %s │", util.PadString(value, widths[i], true))
	}
	fmt.Fprintln(f.out)
}

// printPaging summarizes which providers still have more pages.
func (f *TableFormatter) printPaging(hasMore map[string]bool) {
	var pending []string
	for source, more := range hasMore {
		if more {
			pending = append(pending, source)
		}
	}
	if len(pending) == 0 {
		return
	}
	sort.Strings(pending)
	fmt.Fprintf(f.out, "More items available from: %s\n", strings.Join(pending, ", "))
}

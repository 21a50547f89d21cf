package cli

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
)

type printer struct {
	w       io.Writer
	heading *color.Color
	ok      *color.Color
	faint   *color.Color
}

func newPrinter(w io.Writer, noColor bool) *printer {
	p := &printer{
		w:       w,
		heading: color.New(color.FgCyan, color.Bold),
		ok:      color.New(color.FgGreen),
		faint:   color.New(color.Faint),
	}
	if noColor {
		p.heading.DisableColor()
		p.ok.DisableColor()
		p.faint.DisableColor()
	}
	return p
}

func (p *printer) section(format string, a ...any) {
	fmt.Fprintln(p.w)
	p.heading.Fprintf(p.w, format, a...)
	fmt.Fprintln(p.w)
}

func (p *printer) success(format string, a ...any) {
	p.ok.Fprintf(p.w, format, a...)
	fmt.Fprintln(p.w)
}

func (p *printer) line(format string, a ...any) {
	fmt.Fprintf(p.w, format, a...)
	fmt.Fprintln(p.w)
}

func (p *printer) note(format string, a ...any) {
	p.faint.Fprintf(p.w, format, a...)
	fmt.Fprintln(p.w)
}

func (p *printer) table(header []string, rows [][]string) {
	t := tablewriter.NewWriter(p.w)
	t.SetHeader(header)
	t.SetAutoFormatHeaders(false)
	t.SetAutoWrapText(false)
	t.SetAlignment(tablewriter.ALIGN_LEFT)
	t.AppendBulk(rows)
	t.Render()
}

func money(v float64) string {
	return "$" + strconv.FormatFloat(v, 'f', 2, 64)
}

func decimal(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}

func millis(d time.Duration) string {
	return strconv.FormatFloat(float64(d.Microseconds())/1000, 'f', 3, 64) + "ms"
}

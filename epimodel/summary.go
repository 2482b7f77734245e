package epimodel

import (
	"bytes"
	"fmt"
	"strings"
)

// SummaryTable holds a rendered summary of a fitted model, one row per
// parameter or derived quantity.
type SummaryTable struct {

	// Title
	Title string

	// Column names
	ColNames []string

	// Cols[j] is the j^th column.  Its concrete type should be an
	// array, e.g. of numbers or strings.
	Cols []interface{}

	// Formatters for the column values
	ColFmt []Fmter

	// Values at the top of the summary
	Top []string

	// Messages displayed below the table
	Msg []string

	// Total width of the table
	tw int
}

// Fmter formats the elements of an array of values.
type Fmter func(interface{}, string) []string

// StringFmt formats a column of strings.
func StringFmt(v interface{}, name string) []string {
	x := v.([]string)
	w := len(name)
	for _, s := range x {
		if len(s) > w {
			w = len(s)
		}
	}
	out := make([]string, len(x))
	for i, s := range x {
		out[i] = fmt.Sprintf("%*s", w+2, s)
	}
	return out
}

// FloatFmt formats a column of numbers with four significant figures.
func FloatFmt(v interface{}, name string) []string {
	x := v.([]float64)
	out := make([]string, len(x))
	w := len(name)
	for i, u := range x {
		out[i] = fmt.Sprintf("%.4g", u)
		if len(out[i]) > w {
			w = len(out[i])
		}
	}
	for i := range out {
		out[i] = fmt.Sprintf("%*s", w+2, out[i])
	}
	return out
}

// line returns a horizontal rule filling the width of the table.
func (s *SummaryTable) line(c string) string {
	return strings.Repeat(c, s.tw) + "\n"
}

// top renders the key/value pairs above the table, two pairs per line.
func (s *SummaryTable) top() string {

	w := 0
	for _, x := range s.Top {
		if len(x) > w {
			w = len(x)
		}
	}

	var b bytes.Buffer
	for j, x := range s.Top {
		b.WriteString(fmt.Sprintf("%-*s", w+4, x))
		if j%2 == 1 {
			b.WriteString("\n")
		}
	}
	if len(s.Top)%2 == 1 {
		b.WriteString("\n")
	}

	return b.String()
}

// String returns the table as a string.
func (s *SummaryTable) String() string {

	var tab [][]string
	var wx []int
	for j, c := range s.Cols {
		u := s.ColFmt[j](c, s.ColNames[j])
		tab = append(tab, u)
		w := len(s.ColNames[j])
		if len(u) > 0 && len(u[0]) > w {
			w = len(u[0])
		}
		wx = append(wx, w)
	}

	s.tw = 0
	for _, w := range wx {
		s.tw += w
	}
	if s.tw < len(s.Title) {
		s.tw = len(s.Title)
	}

	var buf bytes.Buffer

	// Center the title
	kr := (s.tw - len(s.Title)) / 2
	if kr < 0 {
		kr = 0
	}
	buf.WriteString(strings.Repeat(" ", kr))
	buf.WriteString(s.Title)
	buf.WriteString("\n")

	buf.WriteString(s.line("="))
	if len(s.Top) > 0 {
		buf.WriteString(s.top())
		buf.WriteString(s.line("-"))
	}

	for j, c := range s.ColNames {
		buf.WriteString(fmt.Sprintf("%*s", wx[j], c))
	}
	buf.WriteString("\n")
	buf.WriteString(s.line("-"))

	if len(tab) > 0 {
		for i := 0; i < len(tab[0]); i++ {
			for j := 0; j < len(tab); j++ {
				buf.WriteString(fmt.Sprintf("%*s", wx[j], tab[j][i]))
			}
			buf.WriteString("\n")
		}
	}
	buf.WriteString(s.line("-"))

	for _, msg := range s.Msg {
		buf.WriteString(msg + "\n")
	}

	return buf.String()
}

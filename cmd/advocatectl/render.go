package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/simp-lee/advocatedir/internal/criteria"
	"github.com/simp-lee/advocatedir/internal/domain"
	"github.com/simp-lee/advocatedir/internal/table"
)

var (
	colorAccent  = lipgloss.Color("#2196F3")
	colorMuted   = lipgloss.Color("#8A8F98")
	colorSuccess = lipgloss.Color("#8BC34A")
	colorError   = lipgloss.Color("#E53935")
)

type styles struct {
	Title   lipgloss.Style
	Header  lipgloss.Style
	Cell    lipgloss.Style
	Muted   lipgloss.Style
	Current lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
}

// newStyles binds styles to w so color is only emitted for terminals.
func newStyles(w io.Writer, noColor bool) styles {
	r := lipgloss.NewRenderer(w)
	if noColor {
		plain := r.NewStyle()
		return styles{
			Title: plain, Header: plain, Cell: plain, Muted: plain,
			Current: plain, Success: plain, Error: plain,
		}
	}
	return styles{
		Title:   r.NewStyle().Bold(true).Foreground(colorAccent),
		Header:  r.NewStyle().Bold(true),
		Cell:    r.NewStyle(),
		Muted:   r.NewStyle().Foreground(colorMuted),
		Current: r.NewStyle().Bold(true).Underline(true),
		Success: r.NewStyle().Foreground(colorSuccess),
		Error:   r.NewStyle().Bold(true).Foreground(colorError),
	}
}

// renderTable writes a padded, pipe-separated table.
func renderTable(w io.Writer, st styles, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], lipgloss.Width(cell))
			}
		}
	}
	// one space of padding each side
	for i := range widths {
		widths[i] += 2
	}

	var sb strings.Builder
	writeRow := func(cells []string, style lipgloss.Style) {
		for i, cell := range cells {
			if i >= len(widths) {
				break
			}
			if i > 0 {
				sb.WriteString(st.Muted.Render("|"))
			}
			sb.WriteString(style.Padding(0, 1).Width(widths[i]).Render(cell))
		}
		sb.WriteString("\n")
	}

	writeRow(headers, st.Header)
	total := len(widths) - 1
	for _, w := range widths {
		total += w
	}
	sb.WriteString(st.Muted.Render(strings.Repeat("-", total)) + "\n")
	for _, row := range rows {
		writeRow(row, st.Cell)
	}
	fmt.Fprint(w, sb.String())
}

var advocateHeaders = []string{"ID", "Name", "City", "Degree", "Specialties", "Years", "Phone"}

func advocateRows(advocates []domain.AdvocateWithRelations) [][]string {
	rows := make([][]string, 0, len(advocates))
	for _, a := range advocates {
		city, degree := "", ""
		if a.City != nil {
			city = a.City.Name + ", " + a.City.State
		}
		if a.Degree != nil {
			degree = a.Degree.Code
		}
		names := make([]string, 0, len(a.Specialties))
		for _, s := range a.Specialties {
			names = append(names, s.Name)
		}
		rows = append(rows, []string{
			strconv.FormatUint(uint64(a.ID), 10),
			a.FirstName + " " + a.LastName,
			city,
			degree,
			strings.Join(names, ", "),
			strconv.Itoa(a.YearsOfExperience),
			formatPhone(a.PhoneNumber),
		})
	}
	return rows
}

// formatPhone renders ten-digit numbers as (303) 555-0101.
func formatPhone(phone string) string {
	d := criteria.NormalizePhone(phone)
	if len(d) != 10 {
		return phone
	}
	return "(" + d[:3] + ") " + d[3:6] + "-" + d[6:]
}

func renderAdvocates(w io.Writer, st styles, advocates []domain.AdvocateWithRelations) {
	if len(advocates) == 0 {
		fmt.Fprintln(w, st.Muted.Render("No advocates found."))
		return
	}
	renderTable(w, st, advocateHeaders, advocateRows(advocates))
}

func renderPagination(w io.Writer, st styles, p domain.Pagination) {
	if p.TotalPages == 0 {
		return
	}
	fmt.Fprintln(w, st.Muted.Render(fmt.Sprintf("Page %d of %d, %d advocates", p.CurrentPage, p.TotalPages, p.TotalRecords)))
}

// renderPager writes the condensed page list with the current page marked.
func renderPager(w io.Writer, st styles, current int, pages []int) {
	if len(pages) == 0 {
		return
	}
	parts := make([]string, len(pages))
	for i, p := range pages {
		switch {
		case p == table.Ellipsis:
			parts[i] = st.Muted.Render("…")
		case p == current:
			parts[i] = st.Current.Render("[" + strconv.Itoa(p) + "]")
		default:
			parts[i] = strconv.Itoa(p)
		}
	}
	fmt.Fprintln(w, strings.Join(parts, " "))
}

func renderActiveFilters(w io.Writer, st styles, filters []table.ActiveFilter) {
	if len(filters) == 0 {
		return
	}
	labels := make([]string, len(filters))
	for i, f := range filters {
		labels[i] = f.Label
	}
	fmt.Fprintln(w, st.Muted.Render("Filters: ")+strings.Join(labels, "  "))
}

func renderNotice(w io.Writer, st styles, n table.Notice) {
	style := st.Success
	if n.Level == table.NoticeError {
		style = st.Error
	}
	fmt.Fprintln(w, style.Render(n.Message))
}

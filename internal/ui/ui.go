// Package ui renders CLI output. Styling is dropped automatically when the
// output is not a terminal.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/restreviews/restsync/internal/engine"
	"github.com/restreviews/restsync/internal/schema"
)

// Printer writes styled output to w.
type Printer struct {
	w io.Writer
	r *lipgloss.Renderer

	title   lipgloss.Style
	ok      lipgloss.Style
	warn    lipgloss.Style
	err     lipgloss.Style
	muted   lipgloss.Style
	label   lipgloss.Style
	favored lipgloss.Style
}

// NewPrinter returns a Printer for w. Colors are used only when w is a
// terminal and NO_COLOR is unset.
func NewPrinter(w io.Writer) *Printer {
	r := lipgloss.NewRenderer(w)
	if !IsTerminal(w) || os.Getenv("NO_COLOR") != "" {
		r.SetColorProfile(termenv.Ascii)
	}

	return &Printer{
		w:       w,
		r:       r,
		title:   r.NewStyle().Bold(true),
		ok:      r.NewStyle().Foreground(lipgloss.Color("2")),
		warn:    r.NewStyle().Foreground(lipgloss.Color("3")),
		err:     r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		muted:   r.NewStyle().Foreground(lipgloss.Color("8")),
		label:   r.NewStyle().Foreground(lipgloss.Color("6")),
		favored: r.NewStyle().Foreground(lipgloss.Color("5")),
	}
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Width returns the terminal width of w, or 80.
func Width(w io.Writer) int {
	if f, ok := w.(*os.File); ok {
		if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 0 {
			return width
		}
	}
	return 80
}

// Title prints a heading.
func (p *Printer) Title(s string) {
	fmt.Fprintln(p.w, p.title.Render(s))
}

// Line prints a plain line.
func (p *Printer) Line(format string, args ...any) {
	fmt.Fprintf(p.w, format+"\n", args...)
}

// Muted prints a de-emphasized line.
func (p *Printer) Muted(format string, args ...any) {
	fmt.Fprintln(p.w, p.muted.Render(fmt.Sprintf(format, args...)))
}

// Restaurants prints one line per restaurant.
func (p *Printer) Restaurants(restaurants []schema.Restaurant) {
	if len(restaurants) == 0 {
		p.Muted("No restaurants.")
		return
	}
	for _, r := range restaurants {
		fav := "  "
		if r.IsFavorite {
			fav = p.favored.Render("♥ ")
		}
		fmt.Fprintf(p.w, "%s%s %s  %s\n",
			fav,
			p.label.Render(fmt.Sprintf("%3d", r.ID)),
			p.title.Render(r.Name),
			p.muted.Render(r.CuisineType+" · "+r.Neighborhood),
		)
	}
}

// Restaurant prints the details of one restaurant.
func (p *Printer) Restaurant(r schema.Restaurant) {
	p.Title(r.Name)
	p.field("id", fmt.Sprint(r.ID))
	p.field("cuisine", r.CuisineType)
	p.field("neighborhood", r.Neighborhood)
	p.field("address", r.Address)
	p.field("favorite", fmt.Sprint(bool(r.IsFavorite)))
	p.field("page", schema.URLForRestaurant(r))
	if r.Photograph != "" {
		p.field("image", schema.ImageURLForRestaurant(r))
	}
	for _, day := range []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"} {
		if hours, ok := r.OperatingHours[day]; ok {
			p.field(strings.ToLower(day[:3]), hours)
		}
	}
}

func (p *Printer) field(name, value string) {
	fmt.Fprintf(p.w, "  %s %s\n", p.label.Render(fmt.Sprintf("%-13s", name)), value)
}

// Reviews prints reviews. pending reviews are marked as not yet posted.
func (p *Printer) Reviews(reviews, pending []schema.Review) {
	if len(reviews) == 0 && len(pending) == 0 {
		p.Muted("No reviews yet!")
		return
	}
	for _, r := range reviews {
		p.review(r, "")
	}
	for _, r := range pending {
		p.review(r, p.warn.Render(" (pending)"))
	}
}

func (p *Printer) review(r schema.Review, suffix string) {
	date := ""
	if r.CreatedAt != nil && !r.CreatedAt.IsZero() {
		date = r.CreatedAt.Format("January 2, 2006")
	}
	fmt.Fprintf(p.w, "%s%s  %s\n", p.title.Render(r.Name), suffix, p.muted.Render(date))
	fmt.Fprintf(p.w, "  %s\n", p.ok.Render(Stars(r.Rating)))
	if r.Comments != "" {
		wrapped := p.r.NewStyle().Width(min(Width(p.w), 100) - 2).Render(r.Comments)
		for _, line := range strings.Split(wrapped, "\n") {
			fmt.Fprintf(p.w, "  %s\n", strings.TrimRight(line, " "))
		}
	}
}

// Stars renders a 1-5 rating.
func Stars(rating int) string {
	rating = max(0, min(rating, 5))
	return strings.Repeat("★", rating) + strings.Repeat("☆", 5-rating)
}

// Outcome prints the user-facing result of a write.
func Outcome[T any](p *Printer, o engine.Outcome[T]) {
	msg := o.Message
	switch o.Kind {
	case engine.KindOK:
		if msg == "" {
			msg = "Done."
		}
		fmt.Fprintln(p.w, p.ok.Render("✓ "+msg))
	case engine.KindQueued:
		fmt.Fprintln(p.w, p.warn.Render("… "+msg))
	default:
		if msg == "" && o.Err != nil {
			msg = o.Err.Error()
		}
		fmt.Fprintln(p.w, p.err.Render("✗ "+msg))
		if o.Err != nil && msg != o.Err.Error() {
			p.Muted("  %v", o.Err)
		}
	}
}

// Drain prints a queue replay summary.
func (p *Printer) Drain(queue string, o engine.Outcome[engine.DrainResult]) {
	res := o.Value
	if res.Attempted == 0 && o.Err == nil {
		p.Muted("%s: nothing queued", queue)
		return
	}
	Outcome(p, o)
	p.Muted("  %s: %d attempted, %d sent, %d failed, %d dropped, %d remaining",
		queue, res.Attempted, res.Succeeded, res.Failed, res.Dropped, res.Remaining)
}

// QueueStats prints queue counts.
func (p *Printer) QueueStats(stats engine.QueueStats, online *bool) {
	if online != nil {
		state := p.ok.Render("online")
		if !*online {
			state = p.warn.Render("offline")
		}
		p.field("connectivity", state)
	}
	if !stats.StoreAvailable {
		p.field("store", p.err.Render("unavailable (network-only)"))
		return
	}
	p.field("store", p.ok.Render("available"))
	p.field("reviews", countStyle(p, stats.PendingReviews))
	p.field("favorites", countStyle(p, stats.PendingFavorites))
}

func countStyle(p *Printer, n int) string {
	s := fmt.Sprintf("%d pending", n)
	if n > 0 {
		return p.warn.Render(s)
	}
	return p.muted.Render(s)
}

// Error prints an error line.
func (p *Printer) Error(err error) {
	fmt.Fprintln(p.w, p.err.Render("Error: "+err.Error()))
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/fortune402/fortune"
	"github.com/fortune402/fortune/config"
)

var (
	colorPrimary   = lipgloss.Color("86")  // Cyan
	colorSecondary = lipgloss.Color("243") // Gray
	colorSuccess   = lipgloss.Color("82")  // Green
	colorWarning   = lipgloss.Color("214") // Orange
	colorError     = lipgloss.Color("196") // Red
	colorMuted     = lipgloss.Color("240") // Dark gray
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary)

	fortuneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorSuccess).
			Padding(1, 2).
			Italic(true)

	pendingStyle = lipgloss.NewStyle().
			Foreground(colorWarning).
			SetString("○")

	doneStyle = lipgloss.NewStyle().
			Foreground(colorSuccess).
			SetString("●")

	errorStyle = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(colorSecondary)

	mutedStyle = lipgloss.NewStyle().
			Foreground(colorMuted)
)

// snapshotView is the JSON form of a settled snapshot.
type snapshotView struct {
	State       string `json:"state"`
	Fortune     string `json:"fortune,omitempty"`
	Timestamp   string `json:"timestamp,omitempty"`
	Transaction string `json:"transaction,omitempty"`
	Network     string `json:"network,omitempty"`
	Explorer    string `json:"explorer,omitempty"`
	Wallet      string `json:"wallet,omitempty"`
	Error       string `json:"error,omitempty"`
	Hint        string `json:"hint,omitempty"`
}

type renderer struct {
	out    io.Writer
	json   bool
	wallet string
}

func newRenderer(out io.Writer, format string) (*renderer, error) {
	switch format {
	case "", "text":
		return &renderer{out: out}, nil
	case "json":
		return &renderer{out: out, json: true}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}

// progress prints the busy states as they happen.
func (r *renderer) progress(s fortune.Snapshot) {
	if r.json {
		return
	}
	switch s.State {
	case fortune.StateLoading:
		fmt.Fprintln(r.out, pendingStyle.String(), "Cracking open your fortune cookie...")
	case fortune.StateAwaitingPayment:
		fmt.Fprintln(r.out, pendingStyle.String(), "Payment required, signing with your wallet...")
	}
}

// result prints the settled snapshot.
func (r *renderer) result(s fortune.Snapshot) error {
	if r.json {
		enc := json.NewEncoder(r.out)
		enc.SetIndent("", "  ")
		return enc.Encode(r.view(s))
	}
	_, err := io.WriteString(r.out, r.text(s))
	return err
}

func (r *renderer) view(s fortune.Snapshot) snapshotView {
	v := snapshotView{
		State:       s.State.String(),
		Fortune:     s.Fortune,
		Timestamp:   s.Timestamp,
		Transaction: s.Transaction,
		Network:     s.Network,
		Explorer:    config.ExplorerURL(s.Network, s.Transaction),
		Wallet:      r.wallet,
	}
	if s.Err != nil {
		v.Error = s.Err.Error()
		v.Hint = s.Err.Hint()
	}
	return v
}

func (r *renderer) text(s fortune.Snapshot) string {
	var b strings.Builder

	switch s.State {
	case fortune.StateRevealed:
		b.WriteString(doneStyle.String() + " " + titleStyle.Render("Your fortune") + "\n")
		b.WriteString(fortuneStyle.Render(s.Fortune) + "\n")
		b.WriteString(labelStyle.Render("Revealed at ") + s.Timestamp + "\n")
		if s.Transaction != "" {
			b.WriteString(labelStyle.Render("Transaction ") + s.Transaction + "\n")
			if link := config.ExplorerURL(s.Network, s.Transaction); link != "" {
				b.WriteString(labelStyle.Render("Explorer    ") + mutedStyle.Render(link) + "\n")
			}
		}
	case fortune.StateFailed:
		if s.Err != nil {
			b.WriteString(errorStyle.Render("✗ "+s.Err.Hint()) + "\n")
		}
	default:
		b.WriteString(mutedStyle.Render("No fortune yet.") + "\n")
	}

	if r.wallet != "" {
		b.WriteString(labelStyle.Render("Wallet      ") + r.wallet + "\n")
	}
	return b.String()
}

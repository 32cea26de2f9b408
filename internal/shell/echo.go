package shell

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// TracePrefix precedes every echoed command, as in `set -x` output.
const TracePrefix = "+ "

// Echo prints commands before they run. Output is styled only when the
// destination is a terminal, so CI logs stay plain text.
type Echo struct {
	mu     sync.Mutex
	w      io.Writer
	styled bool
	style  lipgloss.Style
}

// NewEcho creates an Echo writing to w. Styling is enabled when w is an
// *os.File attached to a terminal (including Cygwin/MSYS terminals).
func NewEcho(w io.Writer) *Echo {
	return &Echo{
		w:      w,
		styled: isTerminal(w),
		style:  lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true),
	}
}

// Command echoes argv joined by single spaces.
func (e *Echo) Command(argv []string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	line := TracePrefix + strings.Join(argv, " ")
	if e.styled {
		line = e.style.Render(line)
	}
	_, _ = fmt.Fprintln(e.w, line)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

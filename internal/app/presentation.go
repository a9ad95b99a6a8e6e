package app

import (
	"strings"

	"github.com/NeonKnightOA/KMQuake2/internal/telemetry"
)

// consolePresentation prints server text; everything else is for a
// renderer this tool does not have.
type consolePresentation struct {
	logger telemetry.Logger
}

func (p consolePresentation) EndLoadingPlaque() {}

func (p consolePresentation) Print(level int, text string) {
	p.logger.Printf("[print %d] %s", level, strings.TrimRight(text, "\n"))
}

func (p consolePresentation) CenterPrint(text string) {
	p.logger.Printf("[center] %s", strings.TrimRight(text, "\n"))
}

func (p consolePresentation) StuffText(string) {}

func (p consolePresentation) Layout(string) {}

func (p consolePresentation) Inventory([]int16) {}

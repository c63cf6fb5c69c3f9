package common

import (
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application banner for long-running modes.
func PrintBanner(mode string) {
	banner.PrintSimple("Rankwatch "+mode, Version)
}

package logging

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
)

// ANSI color codes.
const (
	reset  = "\033[0m"
	bold   = "\033[1m"
	cyan   = "\033[36m"
	green  = "\033[32m"
	yellow = "\033[33m"
	dim    = "\033[2m"
)

// Logo lines — base Traceline ASCII art.
var logoLines = [5]string{
	`  _____                    _ _            `,
	` |_   _| __ __ _  ___ ___| (_)_ __   ___  `,
	`   | || '__/ _` + "`" + ` |/ __/ _ \ | | '_ \ / _ \ `,
	`   | || | | (_| | (_|  __/ | | | | |  __/ `,
	`   |_||_|  \__,_|\___\___|_|_|_| |_|\___| `,
}

// Mode-specific ASCII art (right side, same height as the logo).
var chatArt = [5]string{
	`   ____ _           _   `,
	`  / ___| |__   __ _| |_ `,
	` | |   | '_ \ / _` + "`" + ` | __|`,
	` | |___| | | | (_| | |_ `,
	`  \____|_| |_|\__,_|\__|`,
}

var serveArt = [5]string{
	`  ____                      `,
	` / ___|  ___ _ ____   _____ `,
	` \___ \ / _ \ '__\ \ / / _ \`,
	`  ___) |  __/ |   \ V /  __/`,
	` |____/ \___|_|    \_/ \___|`,
}

// PrintBanner prints the Traceline ASCII art logo with mode-specific
// art appended to the right, then the version and target address.
// Colors are used only when stderr is a TTY.
func PrintBanner(mode, ver, addr string) {
	color := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())

	modeArt := &chatArt
	modeColor := yellow
	if mode == "serve" {
		modeArt = &serveArt
		modeColor = green
	}

	for i := 0; i < 5; i++ {
		if color {
			fmt.Fprintf(os.Stderr, "%s%s%s%s%s%s\n",
				bold+cyan, logoLines[i], reset,
				bold+modeColor, modeArt[i], reset)
		} else {
			fmt.Fprintf(os.Stderr, "%s%s\n", logoLines[i], modeArt[i])
		}
	}

	if color {
		fmt.Fprintf(os.Stderr, "\n  %sversion%s %s   %saddr%s %s\n\n",
			dim, reset, ver, dim, reset, addr)
	} else {
		fmt.Fprintf(os.Stderr, "\n  version %s   addr %s\n\n", ver, addr)
	}
}

package theme

import (
	"fmt"
)

// Banner returns the startup banner.
func Banner() string {
	const magenta = "\033[35m"
	const cyan = "\033[36m"
	const reset = "\033[0m"

	art := "" +
		"   ✂  " + magenta + "TRIMGRAM" + reset + "  ✂\n" +
		cyan + "  ──────────────────────────────\n" + reset +
		"   find who doesn't follow back,\n" +
		"   trim the quiet ones first ✂\n"
	return art
}

// PrintBanner prints the banner to stdout.
func PrintBanner() {
	fmt.Print(Banner())
}

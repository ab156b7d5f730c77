package pprint

import "fmt"

// PrintBanner prints the sensorhub banner with version and tagline.
func PrintBanner(version, buildDate string) {
	lines := []string{
		StylePrimary.Render(`  ___ ___ _ __  ___ ___  _ __| |__  _  _| |__ `),
		StylePrimary.Render(` (_-</ -_) '  \(_-</ _ \| '_ | '_ \| || | '_ \`),
		StyleAccent.Render(` /__/\___|_||_|/__/\___/|_|  |_.__/ \_,_|_.__/`),
	}
	fmt.Fprintln(Out)
	for _, l := range lines {
		fmt.Fprintln(Out, l)
	}
	fmt.Fprintln(Out)

	versionStr := StyleAccent.Render("  " + version)
	if buildDate != "" {
		versionStr += StyleMuted.Render("  built " + buildDate)
	}
	fmt.Fprintln(Out, StyleMuted.Render("  Remote management for home sensor nodes"))
	fmt.Fprintln(Out, versionStr)
	fmt.Fprintln(Out)
}

// PrintBannerSmall prints a compact single-line brand prefix.
func PrintBannerSmall() {
	fmt.Fprint(Out, StylePrimary.Render("◉ SENSORHUB")+" ")
}

package tui

// Keymap defines the dashboard keyboard shortcuts.
type Keymap struct {
	Quit       string
	ForceQuit  string
	TabNext    string
	TabPrev    string
	NavUp      string
	NavDown    string
	Regenerate string
	Remove     string
	Refresh    string
	Help       string
}

func defaultKeymap() Keymap {
	return Keymap{
		Quit:       "q",
		ForceQuit:  "ctrl+c",
		TabNext:    "tab",
		TabPrev:    "shift+tab",
		NavUp:      "up",
		NavDown:    "down",
		Regenerate: "enter",
		Remove:     "x",
		Refresh:    "r",
		Help:       "?",
	}
}

// HelpText is the keyboard reference shown in the help modal.
func HelpText() string {
	return `
  PANELS
  ──────────────────────────────────────
  Tab / Shift+Tab    Nodes, artifacts, live, events
  ↑↓  /  j k         Move selection

  ACTIONS
  ──────────────────────────────────────
  Enter              Regenerate selected report or archive
  x                  Remove selected node
  r                  Reload nodes

  MISC
  ──────────────────────────────────────
  ?                  Toggle this help
  q / Ctrl+C         Quit
`
}

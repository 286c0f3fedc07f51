package ui

// Key bindings handled in handleKey.
const (
	KeyStart        = "r"
	KeySpace        = " "
	KeyStop         = "s"
	KeyCycleMode    = "m"
	KeyToggleSilent = "d"
	KeyQuit         = "q"
	KeyCtrlC        = "ctrl+c"
)

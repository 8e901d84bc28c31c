package main

const (
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Cyan   = "\033[36m"
	Gray   = "\033[90m" // Bright black, often appears as gray

	GreenInverse = "\033[7;32m"
	RedInverse   = "\033[7;31m"

	ResetColor = "\033[0m" // Reset to default color
)

var stateColors = map[string]string{
	"authenticated": Green,
	"stale":         Yellow,
	"absent":        Red,
}

func coloured(colour, s string) string {
	return colour + s + ResetColor
}

package main

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

// openBrowser launches the system browser and always prints the URL as well.
func openBrowser(url string) error {
	fmt.Fprintf(os.Stderr, "Opening %s%s%s\n", Cyan, url, ResetColor)

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		fmt.Fprintln(os.Stderr, "Could not start a browser, open the URL above manually")
	}
	return nil
}

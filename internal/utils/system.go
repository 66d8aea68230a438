package utils

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// --------------------------------------
// PRINT SPOOLER
// --------------------------------------

// ListSpoolerQueues returns the printer queue names known to the OS print
// spooler, in the order the spooler reports them.
func ListSpoolerQueues(ctx context.Context) ([]string, error) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.CommandContext(ctx, "powershell", "-NoProfile", "-Command",
			"Get-Printer | Select-Object -ExpandProperty Name")
	default:
		if _, err := exec.LookPath("lpstat"); err != nil {
			return nil, fmt.Errorf("lpstat not available: %w", err)
		}
		cmd = exec.CommandContext(ctx, "lpstat", "-e")
	}

	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("listing spooler queues: %w", err)
	}
	return ParseQueueList(string(output)), nil
}

// ParseQueueList splits spooler output into queue names, skipping blank
// lines and duplicates.
func ParseQueueList(output string) []string {
	seen := map[string]bool{}
	var queues []string
	for _, line := range strings.Split(output, "\n") {
		name := strings.TrimSpace(line)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		queues = append(queues, name)
	}
	return queues
}

// MatchesHint reports whether name contains any of the lowercase hints.
func MatchesHint(name string, hints []string) bool {
	lower := strings.ToLower(name)
	for _, hint := range hints {
		if hint != "" && strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

// --------------------------------------
// LOCAL PORTS
// --------------------------------------

// CommonPrinterPorts returns the well-known local device identifiers a
// directly attached receipt printer usually shows up as.
func CommonPrinterPorts() []string {
	switch runtime.GOOS {
	case "linux":
		return []string{
			"/dev/usb/lp0",
			"/dev/usb/lp1",
			"/dev/ttyUSB0",
			"/dev/ttyACM0",
			"/dev/ttyS0",
		}

	case "darwin": // macOS
		return []string{
			"/dev/cu.usbserial",
			"/dev/tty.usbserial",
		}

	case "windows":
		return []string{
			`\\.\COM1`,
			`\\.\COM2`,
			`\\.\COM3`,
			`\\.\USB001`,
			`\\.\LPT1`,
		}

	default:
		return []string{}
	}
}

// PortExists reports whether a local device path is present. Windows
// device namespace paths cannot be stat'ed and are always reported as
// present; opening them is the real check.
func PortExists(path string) bool {
	if strings.HasPrefix(path, `\\.\`) {
		return true
	}
	_, err := os.Stat(path)
	return err == nil
}

// --------------------------------------
// CHROME CHECK
// --------------------------------------

// CheckChrome checks if google-chrome or chromium is installed
func CheckChrome() (bool, string) {
	// Try common binary names
	binaries := []string{
		"google-chrome",
		"google-chrome-stable",
		"chromium",
		"chromium-browser",
	}

	for _, bin := range binaries {
		path, err := exec.LookPath(bin)
		if err == nil {
			return true, path
		}
	}

	for _, path := range getCommonChromePaths() {
		if _, err := os.Stat(path); err == nil {
			return true, path
		}
	}

	return false, ""
}

func getCommonChromePaths() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
		}

	case "linux":
		return []string{
			"/usr/bin/google-chrome",
			"/usr/bin/google-chrome-stable",
			"/usr/bin/chromium",
			"/usr/bin/chromium-browser",
			"/snap/bin/chromium",
		}

	case "windows":
		return []string{
			`C:\Program Files\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
		}

	default:
		return []string{}
	}
}

// ChromeVersion returns the version line printed by the browser at path,
// or "unknown".
func ChromeVersion(ctx context.Context, path string) string {
	output, err := exec.CommandContext(ctx, path, "--version").Output()
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(output))
}

// ChromeInstallHint returns a one-line installation hint for osType.
func ChromeInstallHint(osType string) string {
	switch osType {
	case "linux":
		return "install chromium (apt install chromium-browser, dnf install chromium, pacman -S chromium)"
	case "darwin":
		return "install Chrome with: brew install --cask google-chrome"
	case "windows":
		return "download Google Chrome from https://www.google.com/chrome/"
	default:
		return "install Chrome or Chromium for your OS"
	}
}

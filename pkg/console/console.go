package console

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/skip2/go-qrcode"
)

var (
	// Global writer for console output
	writer io.Writer = os.Stdout

	// Mutex for thread-safe console output
	mu sync.Mutex

	// ANSI color codes
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorRed    = "\033[31m"
	colorCyan   = "\033[36m"

	// Check if colors are supported
	colorsSupported = isTerminal()
)

// isTerminal checks if stdout is a terminal
func isTerminal() bool {
	fileInfo, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}

// SetWriter sets the output writer (useful for testing)
func SetWriter(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	writer = w
}

// color returns the colored string if colors are supported
func color(text, colorCode string) string {
	if !colorsSupported {
		return text
	}
	return colorCode + text + colorReset
}

// Print outputs a message to the console
func Print(format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(writer, msg)
}

// Info outputs an info message with optional color
func Info(format string, args ...interface{}) {
	Print("["+color("INFO", colorBlue)+"] "+format, args...)
}

// Success outputs a success message in green
func Success(format string, args ...interface{}) {
	Print("["+color("OK", colorGreen)+"] "+format, args...)
}

// Warning outputs a warning message in yellow
func Warning(format string, args ...interface{}) {
	Print("["+color("WARN", colorYellow)+"] "+format, args...)
}

// Error outputs an error message in red
func Error(format string, args ...interface{}) {
	Print("["+color("ERROR", colorRed)+"] "+format, args...)
}

// Status outputs a status message in cyan
func Status(format string, args ...interface{}) {
	Print("["+color("*", colorCyan)+"] "+format, args...)
}

// Lines prints each line verbatim, or a placeholder when there are none
func Lines(lines []string, empty string) {
	mu.Lock()
	defer mu.Unlock()
	if len(lines) == 0 {
		fmt.Fprintln(writer, empty)
		return
	}
	for _, l := range lines {
		fmt.Fprintln(writer, l)
	}
}

// QR renders text as a QR code made of half-block characters, sized for a terminal
func QR(text string) (string, error) {
	if text == "" {
		return "", errors.New("nothing to encode")
	}
	code, err := qrcode.New(text, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("failed to encode QR code: %w", err)
	}
	return code.ToSmallString(false), nil
}

// PrintQR writes the QR code of text followed by the text itself
func PrintQR(text string) error {
	qr, err := QR(text)
	if err != nil {
		return err
	}
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprint(writer, qr)
	if !strings.HasSuffix(qr, "\n") {
		fmt.Fprintln(writer)
	}
	fmt.Fprintln(writer, text)
	return nil
}

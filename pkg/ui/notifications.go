package ui

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// Sender shows a desktop notification
type Sender interface {
	Send(title, message string) error
}

// CommandSender shows notifications by running an external program
type CommandSender struct {
	Program string
	Args    func(title, message string) []string

	run func(program string, args ...string) error
}

// Send runs the program with the arguments built for title and message
func (c CommandSender) Send(title, message string) error {
	run := c.run
	if run == nil {
		run = runCommand
	}
	if err := run(c.Program, c.Args(title, message)...); err != nil {
		return fmt.Errorf("%s: %w", c.Program, err)
	}
	return nil
}

func runCommand(program string, args ...string) error {
	return exec.Command(program, args...).Run()
}

// senderFor returns the notification program for goos, if there is one
func senderFor(goos string) (CommandSender, bool) {
	switch goos {
	case "linux", "freebsd", "openbsd":
		return CommandSender{
			Program: "notify-send",
			Args: func(title, message string) []string {
				return []string{"--app-name=thingmirror", title, message}
			},
		}, true
	case "darwin":
		return CommandSender{
			Program: "osascript",
			Args: func(title, message string) []string {
				script := fmt.Sprintf("display notification %s with title %s",
					appleScriptString(message), appleScriptString(title))
				return []string{"-e", script}
			},
		}, true
	default:
		return CommandSender{}, false
	}
}

// appleScriptString quotes s as an AppleScript string literal
func appleScriptString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

// Notifier announces the end of a run on the desktop
type Notifier struct {
	sender Sender
}

// NewNotifier creates a Notifier for the current platform. On platforms
// without a notification program it does nothing.
func NewNotifier() *Notifier {
	if sender, ok := senderFor(runtime.GOOS); ok {
		return &Notifier{sender: sender}
	}
	return &Notifier{}
}

// NewNotifierWithSender creates a Notifier using sender
func NewNotifierWithSender(sender Sender) *Notifier {
	return &Notifier{sender: sender}
}

// Notify sends a desktop notification. Callers log the error; a failed
// notification never fails a run.
func (n *Notifier) Notify(title, message string) error {
	if n.sender == nil {
		return nil
	}
	return n.sender.Send(title, message)
}

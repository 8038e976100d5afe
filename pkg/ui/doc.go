// Package ui holds the terminal output helpers of the command line tool:
// coloured messages, tables, the periodic progress line and desktop
// notifications.
package ui

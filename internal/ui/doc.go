// Package ui implements a terminal job watcher using bubbletea's Elm architecture.
//
// The watcher polls the job server on an interval and renders the job status, one bubbles/progress bar per item
// (added/total) and the tail of the job log. It quits on its own once the job reaches completed or failed.
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
//
// Keyboard bindings (r, l, q) are displayed via charmbracelet/bubbles/help.
package ui

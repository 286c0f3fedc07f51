// Package ui implements the terminal interface: a bubbletea model that
// drives the pipeline controller and renders its events.
package ui

package main

import "time"

// GlobalFlags holds persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
	APIUrl     string
	APITimeout time.Duration
}

type StopFlags struct {
	Timeout time.Duration
}

type HistoryFlags struct {
	Limit int
}

type ServeFlags struct {
	ConfigPath string
	Listen     string // overrides [server].listen
}

package main

// GlobalFlags holds persistent flags shared by every command
type GlobalFlags struct {
	ConfigPath string
	LogLevel   string
}

// DevFlags Flag structs to decouple cobra from logic for testing.
type DevFlags struct {
	Port          int
	TSConfig      string
	Reinstall     bool
	Mode          string
	MetricsListen string
	NoOpen        bool
}

type InstallFlags struct {
	Version string
}

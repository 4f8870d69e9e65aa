// Package platform answers the OS questions the launcher and dependency
// checks need.
package platform

import "runtime"

// OS represents the operating system
type OS string

const (
	MacOS   OS = "darwin"
	Linux   OS = "linux"
	Windows OS = "windows"
)

// Current returns the current operating system
func Current() OS {
	return OS(runtime.GOOS)
}

// SupportsSignals reports whether child processes can be asked to stop with
// a POSIX signal. On Windows the only portable way to stop a child is to kill it.
func SupportsSignals() bool {
	return Current() != Windows
}

// ExecutableName appends the platform executable suffix to name.
func ExecutableName(name string) string {
	if Current() == Windows {
		return name + ".exe"
	}
	return name
}

// InstallHint returns how to install an external tool on target.
func InstallHint(target OS, tool string) string {
	switch target {
	case MacOS:
		return "brew install " + tool
	case Linux:
		return "install " + tool + " with your package manager"
	case Windows:
		return "winget install " + tool
	default:
		return "install " + tool
	}
}

// ClipboardHint explains how to enable clipboard support on target.
func ClipboardHint(target OS) string {
	switch target {
	case Linux:
		return "install xclip, xsel or wl-clipboard"
	case MacOS, Windows:
		return "the system clipboard should be available"
	default:
		return "clipboard is not supported on " + string(target)
	}
}

package launcher

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/soypete/safesound/pkg/config"
	"github.com/soypete/safesound/pkg/platform"
)

// ResolveServer finds the server executable and app script. Both are looked
// up next to the launcher's own executable first, then in the current
// directory; the executable may also come from $PATH.
func ResolveServer(cfg config.LauncherConfig) (executable, script string, err error) {
	var dirs []string
	if exePath, err := os.Executable(); err == nil {
		if resolved, err := filepath.EvalSymlinks(exePath); err == nil {
			exePath = resolved
		}
		dirs = append(dirs, filepath.Dir(exePath))
	}
	if cwd, err := os.Getwd(); err == nil {
		dirs = append(dirs, cwd)
	}

	executable, err = findExecutable(cfg.ServerBinary, dirs)
	if err != nil {
		return "", "", err
	}

	script, err = findFile(cfg.AppScript, dirs)
	if err != nil {
		return "", "", err
	}

	return executable, script, nil
}

func findExecutable(name string, dirs []string) (string, error) {
	if filepath.IsAbs(name) {
		return name, nil
	}

	if path, err := findFile(platform.ExecutableName(name), dirs); err == nil {
		return path, nil
	}

	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("%s not found next to the launcher, in the current directory or in $PATH", name)
}

func findFile(name string, dirs []string) (string, error) {
	if filepath.IsAbs(name) {
		if _, err := os.Stat(name); err != nil {
			return "", fmt.Errorf("%s not found: %w", name, err)
		}
		return name, nil
	}

	for _, dir := range dirs {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}

	return "", fmt.Errorf("%s not found in %v", name, dirs)
}

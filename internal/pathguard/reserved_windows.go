//go:build windows

package pathguard

import (
	"os"
	"path/filepath"
	"strings"
)

var reservedPaths = windowsReserved()

func windowsReserved() []string {
	sysRoot := os.Getenv("SystemRoot")
	if sysRoot == "" {
		sysRoot = `C:\Windows`
	}
	drive := filepath.VolumeName(sysRoot) + `\`
	paths := []string{
		drive,
		sysRoot,
		filepath.Join(sysRoot, "System32"),
		filepath.Join(drive, "Program Files"),
		filepath.Join(drive, "Program Files (x86)"),
		filepath.Join(drive, "ProgramData"),
	}
	return paths
}

func underVirtualFS(path string) bool {
	return strings.HasPrefix(path, `\\.\`) || strings.HasPrefix(path, `\\?\GLOBALROOT`)
}

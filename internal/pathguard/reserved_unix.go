//go:build !windows

package pathguard

import "strings"

// reservedPaths may never be a resolved target, nor the workspace root.
var reservedPaths = []string{
	"/",
	"/bin",
	"/boot",
	"/dev",
	"/etc",
	"/lib",
	"/lib64",
	"/proc",
	"/root",
	"/sbin",
	"/sys",
	"/usr",
	"/usr/bin",
	"/usr/lib",
	"/usr/local",
	"/usr/sbin",
	"/var",
	"/var/log",
	"/System",
	"/Library",
	"/private/etc",
}

// virtualFSPrefixes cannot host a workspace at any depth.
var virtualFSPrefixes = []string{"/proc", "/sys", "/dev"}

func underVirtualFS(path string) bool {
	for _, p := range virtualFSPrefixes {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

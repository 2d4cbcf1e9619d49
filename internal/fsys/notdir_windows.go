//go:build windows

package fsys

func isNotDir(error) bool {
	return false
}

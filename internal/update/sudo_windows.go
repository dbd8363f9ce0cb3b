//go:build windows

package update

// NeedsElevation always returns false on Windows; installs live in
// user-writable locations.
func NeedsElevation(binaryPath string) bool {
	return false
}

// ReExecWithSudo is not supported on Windows.
func ReExecWithSudo() error {
	return nil
}

//go:build !unix && !windows

package platform

func isBusy(err error) bool {
	return false
}

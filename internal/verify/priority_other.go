//go:build !linux

package verify

func lowerThreadPriority() error {
	return nil
}

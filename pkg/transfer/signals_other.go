//go:build !linux

package transfer

func blockSignals() error {
	return nil
}

//go:build !linux

package gps

import (
	"fmt"
	"os"
)

func openSerial(path string, p SerialParams) (*os.File, error) {
	return nil, fmt.Errorf("gps serial not supported on this platform")
}

func setSerialParams(fd int, p SerialParams) error {
	return fmt.Errorf("gps serial not supported on this platform")
}

func drainSerial(fd int) error {
	return nil
}

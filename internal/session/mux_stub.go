//go:build !linux

package session

import (
	"fmt"
	"os"
)

func NewMultiplexer(deviceFd, kbFd int) (Multiplexer, error) {
	return nil, fmt.Errorf("descriptor multiplexing is only supported on linux")
}

func NewKeyboard(f *os.File) (Keyboard, error) {
	return nil, fmt.Errorf("keyboard rare mode is only supported on linux")
}

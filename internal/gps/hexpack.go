package gps

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// HexPack decodes an operator-typed hex string into bytes. Surrounding
// whitespace is ignored; odd lengths and non-hex digits are rejected.
func HexPack(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty hex string")
	}
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("odd-length hex string (%d digits)", len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return b, nil
}

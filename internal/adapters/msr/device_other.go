//go:build !linux

package msr

import (
	"errors"
	"fmt"
)

func OpenDevice(core int) (Device, error) {
	return nil, fmt.Errorf("msr device for core %d: %w", core, errors.ErrUnsupported)
}

//go:build tools

// Package motionheic (this file only) pins the bool64/dev Makefile/lint
// toolchain so `go mod tidy` doesn't drop it; it is never compiled into the
// library or CLI binary.
package motionheic

import (
	_ "github.com/bool64/dev"
)

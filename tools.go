//go:build tools

package tools

// Pins the mock generator. Regenerate with:
//
//	go run github.com/vektra/mockery/v2
import (
	_ "github.com/vektra/mockery/v2"
)

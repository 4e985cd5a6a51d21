// Package guard switches binaries into test mode when imported by a test, so
// package mains built during tests never dial PostgreSQL or Redis.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("KANHA_TEST_MODE") == "" {
			_ = os.Setenv("KANHA_TEST_MODE", "1")
		}
	})
}

package types

import (
	"fmt"

	"github.com/segmentio/ksuid"
)

// GenerateTaskID generates a unique task ID with prefix
func GenerateTaskID() string {
	return fmt.Sprintf("task_%s", ksuid.New().String())
}

// GenerateSweepID generates a unique retention sweep ID with prefix
func GenerateSweepID() string {
	return fmt.Sprintf("sweep_%s", ksuid.New().String())
}

// GenerateID generates a generic unique ID
func GenerateID() string {
	return ksuid.New().String()
}

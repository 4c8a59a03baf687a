package version

import "fmt"

// Set with -ldflags "-X github.com/al002/ztracker/internal/version.Version=..."
var Version = "0.1.0"

const (
	namespace   = "al002"
	packageName = "ztracker"
)

func String() string {
	return fmt.Sprintf("%v-%v/%v", namespace, packageName, Version)
}

package channel

import "fmt"

// InvalidConfigurationError is raised by the configuration API
// (AddInput/AddOutput/Add*Stream/MapStream/ValidateConfiguration) when a
// setup call violates one of the channel's invariants. It is always
// fatal to the setup call that raised it; runtime errors never surface
// this type.
type InvalidConfigurationError struct {
	Msg string
}

func (e *InvalidConfigurationError) Error() string { return "invalid configuration: " + e.Msg }

func invalidConfig(format string, args ...any) error {
	return &InvalidConfigurationError{Msg: fmt.Sprintf(format, args...)}
}

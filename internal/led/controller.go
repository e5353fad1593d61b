// Package led drives board LEDs from session events: a status LED that
// follows the session state and an optional torch LED for FLASH.
package led

// LED roles.
const (
	RoleStatus = "status"
	RoleTorch  = "torch"
)

// Pattern is how an LED is driven.
type Pattern string

// Patterns.
const (
	PatternOff       Pattern = "off"
	PatternSolid     Pattern = "solid"
	PatternBlink     Pattern = "blink"
	PatternHeartbeat Pattern = "heartbeat"
)

// Controller sets LEDs by role.
type Controller interface {
	Set(role string, pattern Pattern) error
	// Available returns the roles this board has an LED for.
	Available() []string
}

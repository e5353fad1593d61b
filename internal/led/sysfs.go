package led

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

var sysfsLEDPath = "/sys/class/leds"

// sysfs implements Controller with the Linux LED class interface.
type sysfs struct {
	leds map[string]string // role -> sysfs name
}

func newSysfs(leds map[string]string) *sysfs {
	return &sysfs{leds: leds}
}

// Set writes the trigger and brightness of the LED for role.
func (s *sysfs) Set(role string, pattern Pattern) error {
	name, ok := s.leds[role]
	if !ok {
		return fmt.Errorf("no %s LED on this board", role)
	}

	ledPath := filepath.Join(sysfsLEDPath, name)
	if _, err := os.Stat(ledPath); err != nil {
		return fmt.Errorf("LED %q not found at %s: %w", role, ledPath, err)
	}

	trigger, brightness := "none", "0"
	switch pattern {
	case PatternOff:
	case PatternSolid:
		brightness = "1"
	case PatternBlink:
		trigger, brightness = "timer", "1"
	case PatternHeartbeat:
		trigger, brightness = "heartbeat", "1"
	default:
		return fmt.Errorf("unknown LED pattern %q", pattern)
	}

	if err := os.WriteFile(filepath.Join(ledPath, "trigger"), []byte(trigger), 0o644); err != nil {
		return fmt.Errorf("failed to set LED trigger: %w", err)
	}
	// Triggers other than none own the brightness.
	if trigger != "none" {
		return nil
	}
	if err := os.WriteFile(filepath.Join(ledPath, "brightness"), []byte(brightness), 0o644); err != nil {
		return fmt.Errorf("failed to set LED brightness: %w", err)
	}
	return nil
}

func (s *sysfs) Available() []string {
	roles := make([]string, 0, len(s.leds))
	for role := range s.leds {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}

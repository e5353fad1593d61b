package led

import (
	"log/slog"
	"os"
	"strings"
)

var deviceTreeModelPath = "/proc/device-tree/model"

// boardLEDs maps a device tree model fragment to the sysfs LED of each role.
var boardLEDs = []struct {
	model string
	leds  map[string]string
}{
	{"NanoPC-T6", map[string]string{RoleStatus: "sys_led", RoleTorch: "usr_led"}},
	{"Orange Pi", map[string]string{RoleStatus: "green_led", RoleTorch: "blue_led"}},
	{"Raspberry Pi", map[string]string{RoleStatus: "ACT"}},
}

// New returns a sysfs controller for a known board, or a no-op controller.
// Entries in overrides (role -> sysfs LED name) replace or extend the board
// mapping and enable sysfs control on unknown boards.
func New(logger *slog.Logger, overrides map[string]string) Controller {
	model := detectBoard()
	leds := make(map[string]string)
	for _, b := range boardLEDs {
		if strings.Contains(model, b.model) {
			for role, name := range b.leds {
				leds[role] = name
			}
			break
		}
	}
	for role, name := range overrides {
		if name != "" {
			leds[role] = name
		}
	}

	if len(leds) == 0 {
		logger.Info("No LED support detected, using no-op controller", "board_model", model)
		return newNoop(logger)
	}
	logger.Info("Using sysfs LED controller", "board_model", model, "leds", leds)
	return newSysfs(leds)
}

// detectBoard reads the device tree model to identify the board.
func detectBoard() string {
	data, err := os.ReadFile(deviceTreeModelPath)
	if err != nil {
		return "unknown"
	}
	return strings.TrimRight(string(data), "\x00")
}

package ffmpeg

import (
	"fmt"
	"strings"
)

// OptionType names an input tuning flag for capture subprocesses.
type OptionType string

// Capture options.
const (
	OptionWallclockTimestamp OptionType = "wallclock_ts"
	OptionThreadQueue1024    OptionType = "thread_queue_1024"
	OptionThreadQueue4096    OptionType = "thread_queue_4096"
	OptionLowLatency         OptionType = "low_latency"
	OptionIgnoreErrors       OptionType = "ignore_err"
)

// ExclusiveGroup groups options that cannot be combined.
type ExclusiveGroup string

// GroupThreadQueue holds the thread queue sizes.
const GroupThreadQueue ExclusiveGroup = "thread_queue"

// Option describes a capture option.
type Option struct {
	Key         OptionType     `json:"key"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	AppDefault  bool           `json:"app_default"`
	Group       ExclusiveGroup `json:"exclusive_group,omitempty"`
	args        []string
}

// AllOptions lists every supported capture option.
var AllOptions = []Option{
	{
		Key:         OptionWallclockTimestamp,
		Name:        "Wallclock Timestamps",
		Description: "Stamp frames with wallclock time on arrival",
		args:        []string{"-use_wallclock_as_timestamps", "1"},
	},
	{
		Key:         OptionThreadQueue1024,
		Name:        "Large Thread Queue",
		Description: "Use a 1024 packet input queue",
		AppDefault:  true,
		Group:       GroupThreadQueue,
		args:        []string{"-thread_queue_size", "1024"},
	},
	{
		Key:         OptionThreadQueue4096,
		Name:        "Extra Large Thread Queue",
		Description: "Use a 4096 packet input queue for bursty devices",
		Group:       GroupThreadQueue,
		args:        []string{"-thread_queue_size", "4096"},
	},
	{
		Key:         OptionLowLatency,
		Name:        "Low Latency Mode",
		Description: "Disable input buffering",
		AppDefault:  true,
		args:        []string{"-fflags", "nobuffer", "-flags", "low_delay"},
	},
	{
		Key:         OptionIgnoreErrors,
		Name:        "Ignore Errors",
		Description: "Keep decoding past corrupt device frames",
		args:        []string{"-err_detect", "ignore_err"},
	},
}

// GetOption returns the option with the given key, or nil.
func GetOption(key OptionType) *Option {
	for i := range AllOptions {
		if AllOptions[i].Key == key {
			return &AllOptions[i]
		}
	}
	return nil
}

// DefaultOptions returns the options enabled unless configured otherwise.
func DefaultOptions() []OptionType {
	var out []OptionType
	for _, o := range AllOptions {
		if o.AppDefault {
			out = append(out, o.Key)
		}
	}
	return out
}

// ParseOptions converts configured option names, rejecting unknown ones.
func ParseOptions(names []string) ([]OptionType, error) {
	out := make([]OptionType, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if GetOption(OptionType(n)) == nil {
			return nil, fmt.Errorf("unknown ffmpeg option %q", n)
		}
		out = append(out, OptionType(n))
	}
	return out, ValidateOptions(out)
}

// ValidateOptions rejects selections with two options from one exclusive group.
func ValidateOptions(selected []OptionType) error {
	seen := make(map[ExclusiveGroup]OptionType)
	for _, key := range selected {
		o := GetOption(key)
		if o == nil || o.Group == "" {
			continue
		}
		if prev, ok := seen[o.Group]; ok && prev != key {
			return fmt.Errorf("options %q and %q are mutually exclusive", prev, key)
		}
		seen[o.Group] = key
	}
	return nil
}

func optionArgs(selected []OptionType) []string {
	var args []string
	for _, key := range selected {
		if o := GetOption(key); o != nil {
			args = append(args, o.args...)
		}
	}
	return args
}

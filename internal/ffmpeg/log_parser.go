package ffmpeg

import "strings"

// ParseLogLevel splits an ffmpeg line printed with -loglevel level+... into
// its level and message. Lines look like "[warning] msg" or
// "[v4l2 @ 0x55d0] [error] msg"; the component prefix is kept in the message.
// Lines without a recognised level are reported as info.
func ParseLogLevel(line string) (level, msg string) {
	rest := line
	prefix := ""

	for range 2 {
		tag, tail, ok := bracketed(rest)
		if !ok {
			break
		}
		if isLogLevel(tag) {
			return tag, prefix + tail
		}
		prefix += rest[:len(rest)-len(tail)]
		rest = tail
	}
	return "info", line
}

// bracketed splits "[tag] tail".
func bracketed(s string) (tag, tail string, ok bool) {
	if len(s) < 3 || s[0] != '[' {
		return "", "", false
	}
	end := strings.Index(s, "] ")
	if end < 0 {
		return "", "", false
	}
	return s[1:end], s[end+2:], true
}

func isLogLevel(s string) bool {
	switch s {
	case "quiet", "panic", "fatal", "error", "warning", "info", "verbose", "debug", "trace":
		return true
	}
	return false
}

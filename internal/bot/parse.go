package bot

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseIDArg extracts a chat ID from a command argument string.
func ParseIDArg(args string) (int64, error) {
	s := strings.TrimSpace(args)
	if s == "" {
		return 0, fmt.Errorf("chat ID is required")
	}
	id, err := strconv.ParseInt(strings.Fields(s)[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chat ID %q", s)
	}
	return id, nil
}

// ParseToggle reads an on/off argument.
func ParseToggle(args string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(args)) {
	case "on", "start", "1", "تشغيل":
		return true, nil
	case "off", "stop", "0", "إيقاف", "ايقاف":
		return false, nil
	default:
		return false, fmt.Errorf("expected on or off, got %q", args)
	}
}

// parseCallback splits callback data of the form "action:arg".
func parseCallback(data string) (action, arg string, ok bool) {
	action, arg, ok = strings.Cut(data, ":")
	if !ok || action == "" || arg == "" {
		return "", "", false
	}
	return action, arg, true
}

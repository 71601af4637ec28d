package config

import (
	"fmt"
	"strings"
)

const (
	ArchDefault      = "default"
	ArchEnCodec24kHz = "encodec-24khz"
	ArchMimi         = "mimi"
)

func NormalizeArch(raw string) (string, error) {
	arch := strings.ToLower(strings.TrimSpace(raw))
	if arch == "" {
		arch = ArchEnCodec24kHz
	}
	switch arch {
	case ArchDefault, ArchEnCodec24kHz, ArchMimi:
		return arch, nil
	case "encodec":
		return ArchEnCodec24kHz, nil
	default:
		return "", fmt.Errorf(
			"invalid arch %q (expected %s|%s|%s|encodec)",
			raw,
			ArchDefault,
			ArchEnCodec24kHz,
			ArchMimi,
		)
	}
}

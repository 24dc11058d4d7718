package store

import "fmt"

// Type identifies the app store that is checked.
type Type uint8

const (
	TypeUndefined Type = iota
	TypePlayStore
	TypeAppStore
	TypeMacStore
)

// The string values double as the display name in webhook messages and as
// the keys of the version state file.
var typeString = [...]string{
	TypeUndefined: "undefined",
	TypePlayStore: "Google Play Store",
	TypeAppStore:  "iOS App Store",
	TypeMacStore:  "Mac App Store",
}

func (t Type) String() string {
	if int(t) > len(typeString)-1 {
		return fmt.Sprintf("unsupported Type value: %d", uint8(t))
	}

	return typeString[t]
}

// ParseType converts a configuration value to a Type.
func ParseType(val string) (Type, error) {
	switch val {
	case "play", "playstore":
		return TypePlayStore, nil
	case "ios", "appstore":
		return TypeAppStore, nil
	case "mac", "macstore":
		return TypeMacStore, nil
	default:
		return TypeUndefined, fmt.Errorf("unsupported store type: %q", val)
	}
}

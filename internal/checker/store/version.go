package store

import (
	"strconv"
	"strings"
)

// DefaultVersion is assumed when a store page could not be parsed or no
// version was recorded yet.
const DefaultVersion = "1.0.0"

// IsNewer reports whether newVer is a higher dotted numeric version than
// currentVer.
// The components are compared pairwise up to the length of the shorter
// version. Versions with non-numeric components are never considered newer.
func IsNewer(newVer, currentVer string) bool {
	newNums, err := splitNums(newVer)
	if err != nil {
		return false
	}

	currentNums, err := splitNums(currentVer)
	if err != nil {
		return false
	}

	for i := 0; i < len(newNums) && i < len(currentNums); i++ {
		if newNums[i] != currentNums[i] {
			return newNums[i] > currentNums[i]
		}
	}

	return false
}

func splitNums(version string) ([]int, error) {
	parts := strings.Split(version, ".")
	nums := make([]int, 0, len(parts))

	for _, part := range parts {
		num, err := strconv.Atoi(part)
		if err != nil {
			return nil, err
		}

		nums = append(nums, num)
	}

	return nums, nil
}

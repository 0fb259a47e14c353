// Package amt holds the AMT device identifier rules shared by configuration
// validation and topic parsing.
package amt

// IDLength is the number of ASCII digits in an AMT device identifier.
const IDLength = 14

// IsDeviceID reports whether id is exactly IDLength ASCII digits.
func IsDeviceID(id string) bool {
	if len(id) != IDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < '0' || id[i] > '9' {
			return false
		}
	}
	return true
}

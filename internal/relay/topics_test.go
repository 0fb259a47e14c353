package relay

import (
	"errors"
	"testing"
)

func TestDeviceTopic(t *testing.T) {
	if got := DeviceTopic("12345678901234"); got != "status/AMT12345678901234" {
		t.Errorf("DeviceTopic() = %q, want status/AMT12345678901234", got)
	}
	if got := SerialNumber("12345678901234"); got != "AMT12345678901234" {
		t.Errorf("SerialNumber() = %q, want AMT12345678901234", got)
	}
}

func TestDeviceIDFromTopic(t *testing.T) {
	tests := []struct {
		topic   string
		want    string
		wantErr bool
	}{
		{"status/AMT12345678901234", "12345678901234", false},
		{"status/AMT00000000000000", "00000000000000", false},
		{"status/AMT1234567890123", "", true},   // 13 digits
		{"status/AMT123456789012345", "", true}, // 15 digits
		{"status/AMT1234567890123x", "", true},
		{"status/12345678901234", "", true},
		{"STATUS/AMT12345678901234", "", true},
		{"status/AMT12345678901234/extra", "", true},
		{"status/AMT１２345678901234", "", true}, // full-width digits
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			got, err := DeviceIDFromTopic(tt.topic)
			if tt.wantErr {
				if !errors.Is(err, ErrTopicMismatch) {
					t.Errorf("DeviceIDFromTopic(%q) error = %v, want ErrTopicMismatch", tt.topic, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DeviceIDFromTopic(%q) error = %v", tt.topic, err)
			}
			if got != tt.want {
				t.Errorf("DeviceIDFromTopic(%q) = %q, want %q", tt.topic, got, tt.want)
			}
		})
	}
}

package mqtt

import "testing"

func TestValidatePublishTopic(t *testing.T) {
	tests := []struct {
		topic   string
		wantErr bool
	}{
		{"controller/stick", false},
		{"child/led", false},
		{"", true},
		{"controller/+", true},
		{"robot/#", true},
	}

	for _, tt := range tests {
		err := ValidatePublishTopic(tt.topic)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidatePublishTopic(%q) error = %v, wantErr %v", tt.topic, err, tt.wantErr)
		}
	}
}

func TestValidateSubscribeTopic(t *testing.T) {
	tests := []struct {
		filter  string
		wantErr bool
	}{
		{"robot/state", false},
		{"robot/+", false},
		{"robot/#", false},
		{"#", false},
		{"", true},
		{"robot/#/state", true},
		{"robot/st+te", true},
	}

	for _, tt := range tests {
		err := ValidateSubscribeTopic(tt.filter)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateSubscribeTopic(%q) error = %v, wantErr %v", tt.filter, err, tt.wantErr)
		}
	}
}

func TestTopicMatches(t *testing.T) {
	tests := []struct {
		filter, topic string
		want          bool
	}{
		{"robot/state", "robot/state", true},
		{"robot/state", "robot/status", false},
		{"robot/+", "robot/state", true},
		{"robot/+", "robot/state/extra", false},
		{"robot/#", "robot/state/extra", true},
		{"#", "child/led", true},
		{"robot/state/+", "robot/state", false},
	}

	for _, tt := range tests {
		if got := TopicMatches(tt.filter, tt.topic); got != tt.want {
			t.Errorf("TopicMatches(%q, %q) = %v, want %v", tt.filter, tt.topic, got, tt.want)
		}
	}
}

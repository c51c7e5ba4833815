package mqtt

import (
	"fmt"
	"strings"
)

// ValidatePublishTopic checks that topic is a concrete publish topic
func ValidatePublishTopic(topic string) error {
	if topic == "" {
		return fmt.Errorf("empty topic")
	}
	if strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("invalid publish topic %q: wildcards not allowed", topic)
	}
	return nil
}

// ValidateSubscribeTopic checks the wildcard placement in a topic filter
func ValidateSubscribeTopic(filter string) error {
	if filter == "" {
		return fmt.Errorf("empty topic filter")
	}

	levels := strings.Split(filter, "/")
	for i, level := range levels {
		switch {
		case level == "#":
			if i != len(levels)-1 {
				return fmt.Errorf("invalid topic filter %q: # must be the last level", filter)
			}
		case level == "+":
		case strings.ContainsAny(level, "+#"):
			return fmt.Errorf("invalid topic filter %q: wildcard must occupy a whole level", filter)
		}
	}
	return nil
}

// TopicMatches reports whether topic matches filter, honouring + and #
func TopicMatches(filter, topic string) bool {
	filterLevels := strings.Split(filter, "/")
	topicLevels := strings.Split(topic, "/")

	for i, level := range filterLevels {
		if level == "#" {
			return true
		}
		if i >= len(topicLevels) {
			return false
		}
		if level != "+" && level != topicLevels[i] {
			return false
		}
	}
	return len(filterLevels) == len(topicLevels)
}

package mqtt

import "strings"

const (
	TopicSeparator = "/"

	// SingleLevelWildcard matches exactly one topic level in a subscription filter.
	SingleLevelWildcard = "+"
	// MultiLevelWildcard matches any number of trailing topic levels in a subscription filter.
	MultiLevelWildcard = "#"
)

// TrimTopic trims TopicSeparator from the start and end of the specified topic.
func TrimTopic(topic string) string {
	return strings.Trim(topic, TopicSeparator)
}

// JoinTopic joins non-empty component parts with TopicSeparator, trimming each part as it is appended.
//
// JoinTopic is meant for topics owned by this process. Topics published by Flukso devices begin with a leading
// separator (an empty first level) and must be used verbatim instead.
func JoinTopic(parts ...string) string {
	var result strings.Builder

	for _, part := range parts {
		if part == "" || part == TopicSeparator {
			continue
		}

		if result.Len() > 0 {
			result.WriteString(TopicSeparator)
		}
		result.WriteString(TrimTopic(part))
	}

	return result.String()
}

// MatchTopic reports whether topic matches the subscription filter, honoring SingleLevelWildcard and
// MultiLevelWildcard. Topics starting with '$' are never matched by a wildcard in the first level.
func MatchTopic(filter, topic string) bool {
	if filter == topic {
		return true
	}

	if strings.HasPrefix(topic, "$") && (strings.HasPrefix(filter, SingleLevelWildcard) || strings.HasPrefix(filter, MultiLevelWildcard)) {
		return false
	}

	f := strings.Split(filter, TopicSeparator)
	t := strings.Split(topic, TopicSeparator)

	for i, level := range f {
		if level == MultiLevelWildcard {
			return i == len(f)-1
		}

		if i >= len(t) {
			return false
		}

		if level != SingleLevelWildcard && level != t[i] {
			return false
		}
	}

	return len(f) == len(t)
}

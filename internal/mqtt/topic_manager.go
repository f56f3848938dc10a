package mqtt

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

const (
	ReadingPattern    = "%s/readings/%s"
	ReadingSubPattern = "%s/readings/+"
	CommandPattern    = "%s/command/%s"
	CommandSubPattern = "%s/command/+"
)

type TopicManager struct {
	baseTopic string
	patterns  map[string]*regexp.Regexp
	mu        sync.RWMutex
}

func NewTopicManager(baseTopic string) *TopicManager {
	baseTopic = strings.TrimSuffix(baseTopic, "/")

	return &TopicManager{
		baseTopic: baseTopic,
		patterns:  make(map[string]*regexp.Regexp),
	}
}

func (tm *TopicManager) GetReadingTopic(sensor string) string {
	return fmt.Sprintf(ReadingPattern, tm.baseTopic, sensor)
}

func (tm *TopicManager) GetReadingSubTopic() string {
	return fmt.Sprintf(ReadingSubPattern, tm.baseTopic)
}

func (tm *TopicManager) GetCommandTopic(sensor string) string {
	return fmt.Sprintf(CommandPattern, tm.baseTopic, sensor)
}

func (tm *TopicManager) GetCommandSubTopic() string {
	return fmt.Sprintf(CommandSubPattern, tm.baseTopic)
}

func (tm *TopicManager) IsReadingTopic(topic string) bool {
	return strings.HasPrefix(topic, tm.baseTopic+"/readings/")
}

func (tm *TopicManager) IsCommandTopic(topic string) bool {
	return strings.HasPrefix(topic, tm.baseTopic+"/command/")
}

// ExtractSensorName pulls the sensor segment out of a command topic.
func (tm *TopicManager) ExtractSensorName(topic string) (string, error) {
	return tm.extractID(topic, CommandSubPattern)
}

func (tm *TopicManager) GetBaseTopic() string {
	return tm.baseTopic
}

func (tm *TopicManager) extractID(topic, pattern string) (string, error) {
	regex := tm.getOrCreateRegex(pattern)
	matches := regex.FindStringSubmatch(topic)

	if len(matches) < 2 {
		return "", fmt.Errorf("could not extract sensor name from topic '%s'", topic)
	}

	return matches[1], nil
}

func (tm *TopicManager) getOrCreateRegex(pattern string) *regexp.Regexp {
	tm.mu.RLock()
	if regex, exists := tm.patterns[pattern]; exists {
		tm.mu.RUnlock()
		return regex
	}
	tm.mu.RUnlock()

	tm.mu.Lock()
	defer tm.mu.Unlock()

	if regex, exists := tm.patterns[pattern]; exists {
		return regex
	}

	regex := tm.buildTopicRegex(pattern)
	tm.patterns[pattern] = regex
	return regex
}

func (tm *TopicManager) buildTopicRegex(pattern string) *regexp.Regexp {
	regexPattern := strings.ReplaceAll(pattern, "%s", regexp.QuoteMeta(tm.baseTopic))
	regexPattern = strings.ReplaceAll(regexPattern, "+", "([^/]+)")
	regexPattern = strings.ReplaceAll(regexPattern, "#", "(.*)")
	regexPattern = "^" + regexPattern + "$"

	return regexp.MustCompile(regexPattern)
}

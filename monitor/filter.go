package monitor

import (
	"fmt"
	"regexp"
	"strings"
)

// Filter limits which topics and groups are tracked.
type Filter struct {
	topicFilterRegexps []*regexp.Regexp
	groupFilterRegexps []*regexp.Regexp
}

// NewFilter compiles comma separated pattern lists. An empty list matches everything.
func NewFilter(topicPatterns, groupPatterns string) (*Filter, error) {
	topics, err := compilePatterns(topicPatterns)
	if err != nil {
		return nil, fmt.Errorf("topic filter: %w", err)
	}
	groups, err := compilePatterns(groupPatterns)
	if err != nil {
		return nil, fmt.Errorf("group filter: %w", err)
	}
	return &Filter{topicFilterRegexps: topics, groupFilterRegexps: groups}, nil
}

func compilePatterns(patterns string) ([]*regexp.Regexp, error) {
	if strings.TrimSpace(patterns) == "" {
		patterns = ".*"
	}
	regexps := make([]*regexp.Regexp, 0, 10)
	for _, p := range strings.Split(patterns, ",") {
		re, err := regexp.Compile(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		regexps = append(regexps, re)
	}
	return regexps, nil
}

func (f *Filter) Topic(topic string) bool {
	if f == nil {
		return true
	}
	return matchAny(f.topicFilterRegexps, topic)
}

func (f *Filter) Group(group string) bool {
	if f == nil {
		return true
	}
	return group != "" && matchAny(f.groupFilterRegexps, group)
}

func matchAny(regexps []*regexp.Regexp, s string) bool {
	for _, reg := range regexps {
		if reg.MatchString(s) {
			return true
		}
	}
	return false
}

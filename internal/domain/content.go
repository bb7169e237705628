package domain

import (
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Topic classifies a piece of daily content.
type Topic string

const (
	TopicNutrition  Topic = "nutrition"
	TopicExercise   Topic = "exercise"
	TopicSleep      Topic = "sleep"
	TopicStress     Topic = "stress"
	TopicPrevention Topic = "prevention"
	TopicLifestyle  Topic = "lifestyle"
)

// ErrUnknownTopic is returned by ParseTopic for values outside the enum.
var ErrUnknownTopic = errors.New("unknown topic")

var topicFold = cases.Lower(language.Und)

// ParseTopic normalizes s (case, surrounding space) and maps it to a Topic.
func ParseTopic(s string) (Topic, error) {
	t := Topic(topicFold.String(strings.TrimSpace(s)))
	switch t {
	case TopicNutrition, TopicExercise, TopicSleep, TopicStress, TopicPrevention, TopicLifestyle:
		return t, nil
	}
	return "", ErrUnknownTopic
}

// ContentRecord is one day's Today Feed item.
//
// ContentDate is the calendar day the content is for, relative to the
// configured timezone; freshness is a same-day comparison against the local
// wall clock. IsStale and FallbackType are annotations set on read and are
// never meaningful in storage.
type ContentRecord struct {
	ID              string     `json:"id"`
	ContentDate     civil.Date `json:"content_date"`
	Title           string     `json:"title"`
	Summary         string     `json:"summary"`
	Topic           Topic      `json:"topic"`
	ConfidenceScore float64    `json:"confidence_score"`
	CachedAt        time.Time  `json:"cached_at"`
	IsFromNetwork   bool       `json:"is_from_network"`

	IsStale      bool         `json:"is_stale,omitempty"`
	FallbackType FallbackType `json:"fallback_type,omitempty"`
}

// Validate checks the invariants a record must satisfy before caching.
func (r ContentRecord) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("content id is required")
	}
	if !r.ContentDate.IsValid() {
		return errors.New("content_date is invalid")
	}
	if strings.TrimSpace(r.Title) == "" {
		return errors.New("content title is required")
	}
	if r.ConfidenceScore < 0 || r.ConfidenceScore > 1 {
		return errors.New("confidence_score must be between 0 and 1")
	}
	if _, err := ParseTopic(string(r.Topic)); err != nil {
		return err
	}
	return nil
}

// IsForDay reports whether the record's content date equals day.
func (r ContentRecord) IsForDay(day civil.Date) bool {
	return r.ContentDate == day
}

// ContentMetadata is written alongside the today record.
type ContentMetadata struct {
	CachedAt        time.Time  `json:"cached_at"`
	ContentDate     civil.Date `json:"content_date"`
	ConfidenceScore float64    `json:"confidence_score"`
	SizeBytes       int64      `json:"size_bytes"`
}

// FallbackType tells a caller where fallback content came from.
type FallbackType string

const (
	FallbackNone        FallbackType = "none"
	FallbackPreviousDay FallbackType = "previous_day"
	FallbackHistory     FallbackType = "history"
)

// FallbackResult is the outcome of resolving the fallback chain.
type FallbackResult struct {
	Content              *ContentRecord `json:"content,omitempty"`
	FallbackType         FallbackType   `json:"fallback_type"`
	ContentAge           time.Duration  `json:"content_age"`
	IsStale              bool           `json:"is_stale"`
	ShouldShowAgeWarning bool           `json:"should_show_age_warning"`
}

package remote

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"cloud.google.com/go/civil"

	"github.com/tbourn/today-feed-cache/internal/clock"
	"github.com/tbourn/today-feed-cache/internal/domain"
)

var simulatedTopics = []domain.Topic{
	domain.TopicNutrition,
	domain.TopicExercise,
	domain.TopicSleep,
	domain.TopicStress,
	domain.TopicPrevention,
	domain.TopicLifestyle,
}

// Simulated is an in-process stand-in for the content API. Sync always
// succeeds; FetchToday returns a generated record for the local date.
type Simulated struct {
	Clock    clock.Clock
	Location *time.Location

	synced atomic.Int64
}

// NewSimulated returns a Simulated collaborator reading dates in loc.
func NewSimulated(clk clock.Clock, loc *time.Location) *Simulated {
	if loc == nil {
		loc = time.UTC
	}
	return &Simulated{Clock: clk, Location: loc}
}

// FetchToday generates a deterministic record for today.
func (s *Simulated) FetchToday(ctx context.Context) (domain.ContentRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.ContentRecord{}, err
	}
	today := civil.DateOf(s.Clock.Now().In(s.Location))
	topic := simulatedTopics[today.In(time.UTC).YearDay()%len(simulatedTopics)]
	return domain.ContentRecord{
		ID:              "sim-" + today.String(),
		ContentDate:     today,
		Title:           fmt.Sprintf("Daily %s tip", topic),
		Summary:         fmt.Sprintf("A short %s insight for %s.", topic, today),
		Topic:           topic,
		ConfidenceScore: 0.9,
	}, nil
}

// SyncBatch accepts every batch.
func (s *Simulated) SyncBatch(ctx context.Context, items []domain.PendingInteraction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.synced.Add(int64(len(items)))
	return nil
}

// Ping always succeeds.
func (s *Simulated) Ping(ctx context.Context) error { return ctx.Err() }

// Synced reports how many interactions have been accepted.
func (s *Simulated) Synced() int64 { return s.synced.Load() }

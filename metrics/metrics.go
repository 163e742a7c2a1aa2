package metrics

import (
	"context"
	"time"

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

// Distribution
var defaultMillisecondsDistribution = view.Distribution(0.1, 0.5, 1, 2, 5, 10, 20, 50, 100, 200, 500, 1000, 2000, 5000)

// Global Tags
var (
	Action, _ = tag.NewKey("action")
	Result, _ = tag.NewKey("result")
	Event, _  = tag.NewKey("event")
)

// Measures
var (
	Requests       = stats.Int64("stackflow/requests", "Counter of handled state update requests", stats.UnitDimensionless)
	Events         = stats.Int64("stackflow/events", "Counter of reconciled on-chain events", stats.UnitDimensionless)
	RequestLatency = stats.Float64("stackflow/request_latency_ms", "Latency of state update requests", stats.UnitMilliseconds)
	DeadLetters    = stats.Int64("stackflow/dead_letters", "Counter of events moved to the dead letter queue", stats.UnitDimensionless)
)

var (
	RequestsView = &view.View{
		Measure:     Requests,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{Action, Result},
	}
	EventsView = &view.View{
		Measure:     Events,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{Event, Result},
	}
	RequestLatencyView = &view.View{
		Measure:     RequestLatency,
		Aggregation: defaultMillisecondsDistribution,
		TagKeys:     []tag.Key{Action},
	}
	DeadLettersView = &view.View{
		Measure:     DeadLetters,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{Event},
	}
)

// DefaultViews is an array of OpenCensus views for metric gathering purposes
var DefaultViews = []*view.View{
	RequestsView,
	EventsView,
	RequestLatencyView,
	DeadLettersView,
}

func Register() error {
	return view.Register(DefaultViews...)
}

// SinceInMilliseconds returns the duration of time since the provide time as a float64.
func SinceInMilliseconds(startTime time.Time) float64 {
	return float64(time.Since(startTime).Nanoseconds()) / 1e6
}

func RecordRequest(ctx context.Context, action string, result string, start time.Time) {
	ctx, _ = tag.New(ctx, tag.Upsert(Action, action), tag.Upsert(Result, result))
	stats.Record(ctx, Requests.M(1), RequestLatency.M(SinceInMilliseconds(start)))
}

func RecordEvent(ctx context.Context, event string, result string) {
	ctx, _ = tag.New(ctx, tag.Upsert(Event, event), tag.Upsert(Result, result))
	stats.Record(ctx, Events.M(1))
}

func RecordDeadLetter(ctx context.Context, event string) {
	ctx, _ = tag.New(ctx, tag.Upsert(Event, event))
	stats.Record(ctx, DeadLetters.M(1))
}

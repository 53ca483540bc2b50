// Package broker fans operator alerts out over the message bus.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/felixgeelhaar/mtgate/internal/alerting/domain"
	"github.com/felixgeelhaar/mtgate/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/mtgate/pkg/observability"
)

// RoutingPrefix is the first word of every alert routing key.
const RoutingPrefix = "alerts"

// RoutingKey returns alerts.<severity>.<kind>.
func RoutingKey(a domain.Alert) string {
	return RoutingPrefix + "." + string(a.Severity) + "." + string(a.Kind)
}

// Sink publishes alerts as events.
type Sink struct {
	publisher eventbus.Publisher
	source    string
	metrics   observability.Metrics
}

// NewSink creates a broker sink. source is recorded in the event metadata.
func NewSink(publisher eventbus.Publisher, source string, metrics observability.Metrics) *Sink {
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	return &Sink{publisher: publisher, source: source, metrics: metrics}
}

func (s *Sink) Name() string { return "broker" }

// Send publishes the alert. The correlation id from ctx, if any, travels in the metadata.
func (s *Sink) Send(ctx context.Context, alert domain.Alert) error {
	event, err := eventbus.NewEvent(RoutingKey(alert), alert, alert.CreatedAt)
	if err != nil {
		return err
	}
	event.EventID = alert.ID
	event.Metadata = eventbus.EventMetadata{
		CorrelationID: observability.CorrelationIDFromContext(ctx),
		Source:        s.source,
	}
	if err := eventbus.PublishEvent(ctx, s.publisher, event); err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}
	s.metrics.Counter(observability.MetricEventsPublished, 1, observability.T("routing_key", event.RoutingKey))
	return nil
}

var _ domain.Sink = (*Sink)(nil)

// Printer writes alerts received from the bus as one line each.
type Printer struct {
	out      io.Writer
	patterns []string
}

// NewPrinter creates a consumer for the given severities; none means all alerts.
func NewPrinter(out io.Writer, severities ...domain.Severity) *Printer {
	patterns := []string{RoutingPrefix + ".#"}
	if len(severities) > 0 {
		patterns = patterns[:0]
		for _, sev := range severities {
			patterns = append(patterns, RoutingPrefix+"."+string(sev)+".*")
		}
	}
	return &Printer{out: out, patterns: patterns}
}

func (p *Printer) EventTypes() []string { return p.patterns }

func (p *Printer) Handle(ctx context.Context, event *eventbus.ConsumedEvent) error {
	alert, err := Decode(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(p.out, "%s [%s] %s: %s\n",
		alert.CreatedAt.Format("2006-01-02 15:04:05"),
		strings.ToUpper(string(alert.Severity)),
		alert.Kind,
		alert.Message,
	)
	return err
}

var _ eventbus.EventConsumer = (*Printer)(nil)

// Decode extracts the alert carried by an event.
func Decode(event *eventbus.ConsumedEvent) (domain.Alert, error) {
	var alert domain.Alert
	if err := json.Unmarshal(event.Payload, &alert); err != nil {
		return domain.Alert{}, fmt.Errorf("decode alert %s: %w", event.EventID, err)
	}
	return alert, nil
}

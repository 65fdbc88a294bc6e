package audit

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"
)

// amqpChannel is the narrow slice of *amqp.Channel this package depends
// on, mirroring the teacher's ProducerRepository split
// (components/consumer/internal/adapters/rabbitmq/producer.rabbitmq.go)
// so fanout can be exercised against a fake in tests without a broker.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// FanoutSink wraps a primary Sink (MongoStore) and additionally publishes
// every record to a RabbitMQ exchange for downstream SIEM/export
// consumers, per SPEC_FULL.md's "RabbitMQ fan-out... best-effort". The
// primary write is authoritative: a publish failure is logged through
// logErr and swallowed, never returned to the caller, so a broker outage
// cannot turn an audit write into a fail-closed masking decision.
type FanoutSink struct {
	primary  Sink
	channel  amqpChannel
	exchange string
	logErr   func(error)
}

// NewFanoutSink builds a FanoutSink. logErr may be nil.
func NewFanoutSink(primary Sink, channel *amqp.Channel, exchange string, logErr func(error)) *FanoutSink {
	if logErr == nil {
		logErr = func(error) {}
	}

	return &FanoutSink{primary: primary, channel: channel, exchange: exchange, logErr: logErr}
}

// Write persists to the primary sink first; only on success does it
// attempt the best-effort broker publish.
func (f *FanoutSink) Write(ctx context.Context, r Record) error {
	if err := f.primary.Write(ctx, r); err != nil {
		return err
	}

	f.publish(ctx, r)

	return nil
}

func (f *FanoutSink) publish(ctx context.Context, r Record) {
	body, err := json.Marshal(modelFromRecord(r))
	if err != nil {
		f.logErr(err)
		return
	}

	routingKey := "audit." + string(r.Kind)

	err = f.channel.PublishWithContext(ctx, f.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Headers: amqp.Table{
			"tenant_id":  r.TenantID,
			"request_id": r.RequestID,
		},
		Body: body,
	})
	if err != nil {
		f.logErr(err)
	}
}

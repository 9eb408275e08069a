package payout

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// ConnectNATS opens a reconnecting NATS connection and a JetStream context.
func ConnectNATS(url string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("WARN: NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Println("INFO: NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}

// NATSSink delivers payout instructions by publishing them to JetStream.
// Subjects follow the pattern: care.payouts.{role}.{payee_id}
type NATSSink struct {
	js jetstream.JetStream
}

func NewNATSSink(js jetstream.JetStream) *NATSSink {
	return &NATSSink{js: js}
}

func (s *NATSSink) Deliver(ctx context.Context, inst Instruction) error {
	data, err := json.Marshal(inst)
	if err != nil {
		return fmt.Errorf("marshal payout: %w", err)
	}

	subject := fmt.Sprintf("care.payouts.%s.%s", inst.Role, inst.PayeeID)
	_, err = s.js.Publish(ctx, subject, data)
	return err
}

// EnsurePayoutStream creates the payout instructions stream.
func EnsurePayoutStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "CARE_PAYOUTS",
		Subjects:  []string{"care.payouts.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create payout stream: %w", err)
	}
	return nil
}

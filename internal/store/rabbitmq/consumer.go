package rabbitmq

import (
	"encoding/json"
	"log"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Consumer receives job-ready nudges. Messages are acked immediately: the
// worker claims from the database regardless, so a nudge carries no state
// worth redelivering.
type Consumer struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewConsumer(url, queue string) (*Consumer, <-chan string, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	if err := declareTopology(ch, queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, err
	}

	msgs, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, err
	}

	nudges := make(chan string, 16)
	go func() {
		defer close(nudges)
		for d := range msgs {
			var m JobReadyMessage
			if err := json.Unmarshal(d.Body, &m); err != nil || m.JobID == "" {
				log.Printf("rabbitmq: bad nudge message: %v", err)
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
			select {
			case nudges <- m.JobID:
			default:
				// a poll is already due; dropping is fine
			}
		}
	}()

	return &Consumer{conn: conn, ch: ch}, nudges, nil
}

func (c *Consumer) Close() error {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

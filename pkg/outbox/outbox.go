// Package outbox is a pgx-backed transactional outbox: events are inserted
// as rows and a relay drains pending rows to Kafka, so a broker outage never
// loses an event that the service already acknowledged.
package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/nazeru/shop-backend-go/pkg/contracts"
	"github.com/nazeru/shop-backend-go/pkg/kafka"
	"github.com/nazeru/shop-backend-go/pkg/logging"
)

type Record struct {
	ID        int64           `json:"id"`
	EventID   string          `json:"event_id"`
	Topic     string          `json:"topic"`
	Key       string          `json:"key"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	SentAt    *time.Time      `json:"sent_at"`
}

func Insert(ctx context.Context, pool *pgxpool.Pool, eventID, topic, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = pool.Exec(ctx, `INSERT INTO outbox(event_id, topic, key, payload) VALUES ($1, $2, $3, $4)`, eventID, topic, key, data)
	return err
}

func MarkSent(ctx context.Context, pool *pgxpool.Pool, id int64) error {
	_, err := pool.Exec(ctx, `UPDATE outbox SET sent_at=now() WHERE id=$1`, id)
	return err
}

func FetchPending(ctx context.Context, pool *pgxpool.Pool, limit int) ([]Record, error) {
	rows, err := pool.Query(ctx, `SELECT id, event_id, topic, key, payload, created_at, sent_at FROM outbox WHERE sent_at IS NULL ORDER BY id LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.EventID, &rec.Topic, &rec.Key, &rec.Payload, &rec.CreatedAt, &rec.SentAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Publisher satisfies the service's event sink by inserting outbox rows.
type Publisher struct {
	Pool  *pgxpool.Pool
	Topic string
}

func (p *Publisher) Publish(ctx context.Context, evt contracts.Event) error {
	key := evt.OrderID
	if key == "" {
		key = evt.ProductID
	}
	return Insert(ctx, p.Pool, evt.EventID, p.Topic, key, evt)
}

// Relay drains pending rows to Kafka every interval until ctx is done.
// Writers are cached per topic; a publish failure stops the batch so row
// order per topic is preserved and retried next tick.
func Relay(ctx context.Context, pool *pgxpool.Pool, client *kafka.Client, interval time.Duration, batch int) {
	writers := map[string]*kafkago.Writer{}
	defer func() {
		for _, w := range writers {
			_ = w.Close()
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		recs, err := FetchPending(ctx, pool, batch)
		if err != nil {
			logging.Log(logging.Fields{Service: "outbox-relay", Status: "fetch_error", Error: err.Error()})
			continue
		}
		for _, rec := range recs {
			w, ok := writers[rec.Topic]
			if !ok {
				w = client.NewWriter(rec.Topic)
				writers[rec.Topic] = w
			}
			msg := kafkago.Message{Key: []byte(rec.Key), Value: rec.Payload, Time: rec.CreatedAt}
			if err := w.WriteMessages(ctx, msg); err != nil {
				logging.Log(logging.Fields{Service: "outbox-relay", Status: "publish_error", Error: err.Error()})
				break
			}
			if err := MarkSent(ctx, pool, rec.ID); err != nil {
				logging.Log(logging.Fields{Service: "outbox-relay", Status: "mark_sent_error", Error: err.Error()})
			}
		}
	}
}

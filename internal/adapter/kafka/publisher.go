package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/couchcryptid/nexrad-reflectivity-service/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// messageWriter is the subset of *kafkago.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher announces newly buffered snapshots on a Kafka topic.
// It implements domain.SnapshotPublisher.
type Publisher struct {
	writer messageWriter
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the snapshot topic.
func NewPublisher(brokers []string, topic string, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Publisher{writer: w, logger: logger}
}

// SnapshotNotice summarizes a buffered snapshot. The point data itself stays
// in the service.
type SnapshotNotice struct {
	SiteID   string       `json:"site_id"`
	ScanTime time.Time    `json:"scan_time"`
	Points   int          `json:"points"`
	MinDBZ   *float32     `json:"min_dbz,omitempty"`
	MaxDBZ   *float32     `json:"max_dbz,omitempty"`
	Bounds   *BoundingBox `json:"bounds,omitempty"`
}

// BoundingBox is the lat/lon extent of a snapshot's points.
type BoundingBox struct {
	MinLat float32 `json:"min_lat"`
	MinLon float32 `json:"min_lon"`
	MaxLat float32 `json:"max_lat"`
	MaxLon float32 `json:"max_lon"`
}

// Publish writes one notice keyed by site id, so a site's notices stay ordered
// within a partition.
func (p *Publisher) Publish(ctx context.Context, snap domain.ReflectivitySnapshot) error {
	msg, err := serializeToMessage(snap)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write snapshot notice: %w", err)
	}
	p.logger.Debug("snapshot published", "site_id", snap.SiteID, "scan_time", snap.Timestamp)
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// newNotice computes the summary of snap.
func newNotice(snap domain.ReflectivitySnapshot) SnapshotNotice {
	n := SnapshotNotice{SiteID: snap.SiteID, ScanTime: snap.Timestamp, Points: snap.Len()}
	if snap.Len() == 0 {
		return n
	}

	minDBZ, maxDBZ := float32(math.Inf(1)), float32(math.Inf(-1))
	box := BoundingBox{MinLat: snap.Lat[0], MinLon: snap.Lon[0], MaxLat: snap.Lat[0], MaxLon: snap.Lon[0]}
	for i := range snap.Len() {
		p := snap.Point(i)
		minDBZ, maxDBZ = min(minDBZ, p.DBZ), max(maxDBZ, p.DBZ)
		box.MinLat, box.MaxLat = min(box.MinLat, p.Lat), max(box.MaxLat, p.Lat)
		box.MinLon, box.MaxLon = min(box.MinLon, p.Lon), max(box.MaxLon, p.Lon)
	}
	n.MinDBZ, n.MaxDBZ, n.Bounds = &minDBZ, &maxDBZ, &box
	return n
}

// serializeToMessage marshals a snapshot notice into a Kafka message.
func serializeToMessage(snap domain.ReflectivitySnapshot) (kafkago.Message, error) {
	data, err := json.Marshal(newNotice(snap))
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize snapshot notice: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(snap.SiteID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "site_id", Value: []byte(snap.SiteID)},
			{Key: "scan_time", Value: []byte(snap.Timestamp.Format(time.RFC3339))},
		},
	}, nil
}

package main

import (
	"encoding/json"
	"testing"

	"github.com/IBM/sarama"

	"github.com/prasadamconnect/engine/internal/messaging/kafka"
)

func TestParseBrokers(t *testing.T) {
	brokers := parseBrokers(" broker-1:9092 ,, broker-2:9092 ")
	if len(brokers) != 2 || brokers[0] != "broker-1:9092" || brokers[1] != "broker-2:9092" {
		t.Fatalf("parseBrokers = %v", brokers)
	}
	if got := parseBrokers(""); len(got) != 0 {
		t.Fatalf("empty input must yield no brokers, got %v", got)
	}
}

func TestExtractReplayMessage_ConsumerShape(t *testing.T) {
	value, _ := json.Marshal(map[string]any{
		"original_topic": "prasadam.order.events",
		"original_key":   "ord-1",
		"original_value": `{"orderId":"ord-1"}`,
	})

	msg, ok := extractReplayMessage(&sarama.ConsumerMessage{Value: value})
	if !ok {
		t.Fatal("consumer-shaped payload must be replayable")
	}
	if msg.topic != "prasadam.order.events" || msg.key != "ord-1" {
		t.Fatalf("unexpected replay message: %+v", msg)
	}
	if string(msg.value) != `{"orderId":"ord-1"}` {
		t.Fatalf("value = %s", msg.value)
	}
}

func TestExtractReplayMessage_WorkerShape(t *testing.T) {
	value, _ := json.Marshal(map[string]any{
		"outbox_id":      "msg-1",
		"aggregate_type": "offering",
		"aggregate_id":   "off-1",
		"event_type":     "offering.updated",
		"payload":        json.RawMessage(`{"offeringId":"off-1"}`),
		"publish_error":  "broker unavailable",
	})

	msg, ok := extractReplayMessage(&sarama.ConsumerMessage{Value: value})
	if !ok {
		t.Fatal("worker-shaped payload must be replayable")
	}
	if msg.topic != kafka.TopicOfferingEvents {
		t.Fatalf("topic = %q, want offering events", msg.topic)
	}
	if msg.key != "off-1" {
		t.Fatalf("key = %q", msg.key)
	}

	var envelope replayEnvelope
	if err := json.Unmarshal(msg.value, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.ID != "msg-1" || envelope.EventType != "offering.updated" {
		t.Fatalf("envelope = %+v", envelope)
	}
}

func TestExtractReplayMessage_Unsupported(t *testing.T) {
	if _, ok := extractReplayMessage(&sarama.ConsumerMessage{Value: []byte(`"just a string"`)}); ok {
		t.Fatal("unsupported payload must be skipped")
	}
	if _, ok := extractReplayMessage(&sarama.ConsumerMessage{Value: []byte(`{}`)}); ok {
		t.Fatal("empty object must be skipped")
	}
}

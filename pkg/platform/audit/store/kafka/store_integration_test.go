//go:build integration

package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	id "hashplanet/pkg/domain"
	"hashplanet/pkg/platform/audit"
	"hashplanet/pkg/testutil/containers"
)

type KafkaStoreSuite struct {
	suite.Suite
	redpanda *containers.RedpandaContainer
	client   *kgo.Client
}

func TestKafkaStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaStoreSuite))
}

func (s *KafkaStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redpanda = mgr.GetRedpanda(s.T())
	client, err := NewClient(s.redpanda.Brokers)
	s.Require().NoError(err)
	s.client = client
}

func (s *KafkaStoreSuite) TearDownSuite() {
	if s.client != nil {
		s.client.Close()
	}
}

func (s *KafkaStoreSuite) TestAppendRoundTrip() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	topic := "audit-" + uuid.NewString()
	s.Require().NoError(EnsureTopic(ctx, s.client, topic, 1, 1))
	s.Require().NoError(EnsureTopic(ctx, s.client, topic, 1, 1), "existing topic is not an error")

	store := New(s.client, topic)
	event := audit.Event{ID: uuid.New(), Type: audit.EventClaimed, TokenID: id.Identifier{0x04}, To: "alice", Timestamp: time.Now()}
	s.Require().NoError(store.Append(ctx, event))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.redpanda.Brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	s.Require().NoError(fetches.Err())
	records := fetches.Records()
	s.Require().Len(records, 1)

	var got payload
	s.Require().NoError(json.Unmarshal(records[0].Value, &got))
	s.Equal(event.ID.String(), got.ID)
	s.Equal("claimed", got.Type)
	s.Equal("alice", got.To)
}

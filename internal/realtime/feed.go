package realtime

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"gotrip-be/internal/domain"
	"gotrip-be/pkg/redis"
)

// defaultPollInterval is used when no poll interval is configured
const defaultPollInterval = 5 * time.Second

// EventApprovalStatus is the type tag of approval snapshot events
const EventApprovalStatus = "approval_status"

// Event is the envelope every payload on the feed is wrapped in. Each event
// carries a complete snapshot, never a delta, so clients can apply any event
// in isolation.
type Event struct {
	Type    string                 `json:"type"`
	GroupID string                 `json:"group_id"`
	Data    *domain.ApprovalStatus `json:"data"`
}

// SnapshotSource loads a fresh approval status for a group
type SnapshotSource interface {
	Snapshot(ctx context.Context, groupID string) (*domain.ApprovalStatus, error)
}

// Feed turns vote changes into snapshot broadcasts. Change notifications
// arrive over Redis pub/sub; a poll ticker backstops them so subscribers
// converge even when notifications are lost or Redis is absent. Identical
// consecutive snapshots are suppressed by content hash.
type Feed struct {
	hub      *Hub
	source   SnapshotSource
	redis    *redis.Client
	interval time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	hashes map[string]string

	cancel context.CancelFunc
	done   chan struct{}
}

// NewFeed creates a feed broadcasting through the given hub. A nil Redis
// client leaves the feed in polling-only mode.
func NewFeed(hub *Hub, source SnapshotSource, redisClient *redis.Client, interval time.Duration, logger *zap.Logger) *Feed {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Feed{
		hub:      hub,
		source:   source,
		redis:    redisClient,
		interval: interval,
		logger:   logger,
		hashes:   make(map[string]string),
	}
}

// Start launches the broadcast loop
func (f *Feed) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	f.done = make(chan struct{})

	var pubsub *goredis.PubSub
	var msgs <-chan *goredis.Message
	if f.redis != nil {
		channel := f.redis.KeyBuilder.ChannelPlanChanges()
		pubsub = f.redis.Subscribe(ctx, channel)
		msgs = pubsub.Channel()
		f.logger.Info("Realtime feed started",
			zap.String("channel", channel),
			zap.Duration("poll_interval", f.interval))
	} else {
		f.logger.Warn("Realtime feed started without Redis, polling only",
			zap.Duration("poll_interval", f.interval))
	}

	go f.run(ctx, pubsub, msgs)
}

// Stop shuts the broadcast loop down and waits for it to exit
func (f *Feed) Stop() {
	if f.cancel == nil {
		return
	}
	f.cancel()
	<-f.done
	f.logger.Info("Realtime feed stopped")
}

// Subscribe registers a client for a group's snapshot stream and queues the
// current snapshot as its first event
func (f *Feed) Subscribe(ctx context.Context, groupID string) (*Subscriber, error) {
	sub := f.hub.Subscribe(groupID)

	payload, _, err := f.snapshotPayload(ctx, groupID)
	if err != nil {
		f.hub.Unsubscribe(sub)
		return nil, err
	}

	select {
	case sub.ch <- payload:
	default:
		// Broadcasts already filled the queue, and those are newer
	}

	// A subscriber registering mid-broadcast can end up holding a snapshot
	// older than the one last broadcast. Dropping the dedupe hash makes the
	// next poll tick rebroadcast and converge everyone.
	f.forget(groupID)

	return sub, nil
}

// Unsubscribe removes a subscriber from the feed
func (f *Feed) Unsubscribe(sub *Subscriber) {
	f.hub.Unsubscribe(sub)
}

func (f *Feed) run(ctx context.Context, pubsub *goredis.PubSub, msgs <-chan *goredis.Message) {
	defer close(f.done)
	if pubsub != nil {
		defer pubsub.Close()
	}

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-msgs:
			if !ok {
				// Subscription lost. The poll ticker still covers us.
				f.logger.Warn("Change notification channel closed, relying on polling")
				msgs = nil
				continue
			}
			f.publishGroup(ctx, msg.Payload)

		case <-ticker.C:
			for _, groupID := range f.hub.ActiveGroups() {
				f.publishGroup(ctx, groupID)
			}
		}
	}
}

// publishGroup snapshots a group and broadcasts the result unless it matches
// what was last broadcast
func (f *Feed) publishGroup(ctx context.Context, groupID string) {
	if f.hub.SubscriberCount(groupID) == 0 {
		f.forget(groupID)
		return
	}

	payload, hash, err := f.snapshotPayload(ctx, groupID)
	if err != nil {
		f.logger.Error("Failed to snapshot group for broadcast",
			zap.String("group_id", groupID),
			zap.Error(err))
		return
	}

	f.mu.Lock()
	if f.hashes[groupID] == hash {
		f.mu.Unlock()
		return
	}
	f.hashes[groupID] = hash
	f.mu.Unlock()

	delivered := f.hub.Broadcast(groupID, payload)
	f.logger.Debug("Snapshot broadcast",
		zap.String("group_id", groupID),
		zap.Int("delivered", delivered))
}

// snapshotPayload loads a fresh snapshot and returns it as a marshaled
// event together with its content hash
func (f *Feed) snapshotPayload(ctx context.Context, groupID string) ([]byte, string, error) {
	status, err := f.source.Snapshot(ctx, groupID)
	if err != nil {
		return nil, "", err
	}

	event := Event{
		Type:    EventApprovalStatus,
		GroupID: groupID,
		Data:    status,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal snapshot event: %w", err)
	}

	sum := md5.Sum(payload)
	return payload, hex.EncodeToString(sum[:]), nil
}

func (f *Feed) forget(groupID string) {
	f.mu.Lock()
	delete(f.hashes, groupID)
	f.mu.Unlock()
}

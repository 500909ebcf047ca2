package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/example/charity-drive/internal/broadcast"
	"github.com/example/charity-drive/internal/models"
	"github.com/example/charity-drive/internal/store"
)

// ErrRideClosed means the target ride was cancelled; its chat room no
// longer accepts messages.
var ErrRideClosed = errors.New("ride is cancelled")

// Relay keeps a per-ride ordered message log and publishes each message
// to the ride's room. The log lives only as long as the ride session;
// Reset discards it wholesale.
type Relay struct {
	Store  store.RideStore
	Hub    *broadcast.Hub
	Logger *slog.Logger

	// AutoReplyDelay > 0 enables a SIMULATED peer reply to rider
	// messages. This is a placeholder for a human response on the other
	// end of the room and carries no product meaning.
	AutoReplyDelay time.Duration

	mu   sync.Mutex
	logs map[string][]models.ChatMessage
	seq  map[string]int
}

func NewRelay(st store.RideStore, hub *broadcast.Hub, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		Store:  st,
		Hub:    hub,
		Logger: logger,
		logs:   make(map[string][]models.ChatMessage),
		seq:    make(map[string]int),
	}
}

// Send appends a message to the ride's log and broadcasts it to the
// ride's room. Messages to unknown or cancelled rides are rejected.
func (r *Relay) Send(ctx context.Context, rideID string, sender models.Role, text string) (models.ChatMessage, error) {
	ride, err := r.Store.Get(ctx, rideID)
	if err != nil {
		return models.ChatMessage{}, err
	}
	if ride.Status == models.StatusCancelled {
		return models.ChatMessage{}, ErrRideClosed
	}

	msg := r.append(rideID, sender, text)
	r.Hub.Publish(broadcast.RideRoom(rideID), broadcast.KindChatMessage, msg)

	if r.AutoReplyDelay > 0 && sender == models.RoleRider {
		go r.simulatePeerReply(rideID, msg.Seq)
	}
	return msg, nil
}

func (r *Relay) append(rideID string, sender models.Role, text string) models.ChatMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq[rideID]++
	msg := models.ChatMessage{
		ID:        fmt.Sprintf("%s-%d", rideID, r.seq[rideID]),
		RideID:    rideID,
		Sender:    sender,
		Text:      text,
		Seq:       r.seq[rideID],
		Timestamp: time.Now().UTC(),
	}
	r.logs[rideID] = append(r.logs[rideID], msg)
	return msg
}

// History returns the ride's messages in submission order.
func (r *Relay) History(rideID string) []models.ChatMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	log := r.logs[rideID]
	out := make([]models.ChatMessage, len(log))
	copy(out, log)
	return out
}

// Reset discards the ride's log. Called when the ride session ends; there
// is no retention beyond the ride's lifetime.
func (r *Relay) Reset(rideID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.logs, rideID)
	delete(r.seq, rideID)
}

// simulatePeerReply stands in for the other party typing an answer. Swap
// for real peer messaging without touching Send.
func (r *Relay) simulatePeerReply(rideID string, inReplyTo int) {
	time.Sleep(r.AutoReplyDelay)
	r.mu.Lock()
	_, alive := r.logs[rideID]
	r.mu.Unlock()
	if !alive {
		return // session was reset while the reply was pending
	}
	msg := r.append(rideID, models.RoleDriver, "Ok!")
	r.Hub.Publish(broadcast.RideRoom(rideID), broadcast.KindChatMessage, msg)
	r.Logger.Debug("simulated chat reply", "ride_id", rideID, "in_reply_to", inReplyTo)
}

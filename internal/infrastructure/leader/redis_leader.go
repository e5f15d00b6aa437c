package leader

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

const leaderKey = "auction_sweep_leader"

// RedisLeaderElection holds a TTL lease so only one instance drives the
// closing sweep.
type RedisLeaderElection struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisLeaderElection(client *redis.Client, ttl time.Duration) *RedisLeaderElection {
	return &RedisLeaderElection{
		client: client,
		ttl:    ttl,
	}
}

func (r *RedisLeaderElection) BecomeLeader(ctx context.Context, instanceID string) (bool, error) {
	acquired, err := r.client.SetNX(ctx, leaderKey, instanceID, r.ttl).Result()
	if err != nil {
		return false, err
	}

	if acquired {
		go r.maintainLeadership(instanceID)
	}

	return acquired, nil
}

func (r *RedisLeaderElection) IsLeader(ctx context.Context, instanceID string) (bool, error) {
	current, err := r.client.Get(ctx, leaderKey).Result()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, err
	}

	return current == instanceID, nil
}

func (r *RedisLeaderElection) ReleaseLeadership(ctx context.Context, instanceID string) error {
	// Atomic compare-and-delete so an instance never drops another's lease.
	luaScript := `
        if redis.call("GET", KEYS[1]) == ARGV[1] then
            return redis.call("DEL", KEYS[1])
        else
            return 0
        end
    `

	_, err := r.client.Eval(ctx, luaScript, []string{leaderKey}, instanceID).Result()
	return err
}

func (r *RedisLeaderElection) maintainLeadership(instanceID string) {
	ticker := time.NewTicker(r.ttl / 3)
	defer ticker.Stop()

	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		still, err := r.IsLeader(ctx, instanceID)
		if err == nil && still {
			r.client.Expire(ctx, leaderKey, r.ttl)
		}
		cancel()
		if err != nil || !still {
			return
		}
	}
}

// AlwaysLeader satisfies the election interface for single-instance
// deployments and tests.
type AlwaysLeader struct{}

func (AlwaysLeader) BecomeLeader(ctx context.Context, instanceID string) (bool, error) {
	return true, nil
}

func (AlwaysLeader) IsLeader(ctx context.Context, instanceID string) (bool, error) {
	return true, nil
}

func (AlwaysLeader) ReleaseLeadership(ctx context.Context, instanceID string) error {
	return nil
}

package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"

	"microrpc/rpcerr"
)

const (
	startingPort  = 9000
	portBatchSize = 100

	// maxWatchRetries bounds how many times a transaction re-runs after
	// losing the optimistic-concurrency race on its watched keys, the
	// way the original's redis.transaction() retries on WatchError.
	maxWatchRetries = 10
)

// Redis is the directory's storage backend. A *redis.Client satisfies
// it directly; tests may substitute a smaller fake.
type Redis interface {
	redis.Cmdable
	Watch(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error
}

// RedisRegistry is the Redis backed implementation of the service
// directory described in spec §3/§4.1.
type RedisRegistry struct {
	rdb Redis
}

// Options configure the connection to the directory's backing Redis
// instance. Defaults mirror the original registry's DEFAULT_REDIS_CONFIG.
type Options struct {
	Host string
	Port int
	DB   int
}

// DefaultOptions holds the original registry's default connection
// settings. config.Load fills in the same host and port when a config
// omits them, but leaves the db at 0.
var DefaultOptions = Options{Host: "127.0.0.1", Port: 6379, DB: 9}

// NewRedisRegistry dials a Redis client tuned the way a registry client
// should be: bounded pool, retried dials, explicit timeouts — a blip in
// the directory must not take down every instance's first heartbeat.
func NewRedisRegistry(opts Options) *RedisRegistry {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", opts.Host, opts.Port),
		DB:           opts.DB,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5_000_000_000,
		ReadTimeout:  5_000_000_000,
		WriteTimeout: 5_000_000_000,
	})
	return &RedisRegistry{rdb: client}
}

// NewRedisRegistryFrom wraps an already-constructed client, letting
// tests inject a miniredis-backed or mock client.
func NewRedisRegistryFrom(rdb Redis) *RedisRegistry {
	return &RedisRegistry{rdb: rdb}
}

// watchWithRetry runs txFn under a WATCH on keys, retrying when the
// transaction loses the optimistic-concurrency race. go-redis does not
// retry TxFailedErr itself — the caller is expected to loop, the same
// way the original's redis.StrictRedis.transaction() retried internally
// on WatchError.
func (r *RedisRegistry) watchWithRetry(ctx context.Context, txFn func(*redis.Tx) error, keys ...string) error {
	for attempt := 0; attempt < maxWatchRetries; attempt++ {
		err := r.rdb.Watch(ctx, txFn, keys...)
		if err == nil {
			return nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("registry: transaction on %v lost the optimistic-concurrency race %d times in a row", keys, maxWatchRetries)
}

// RegisterService atomically adds the instance to the services set, its
// guid set, and writes the instance mapping, per spec §4.1.
func (r *RedisRegistry) RegisterService(ctx context.Context, cfg *ServiceConfig) error {
	if err := validateMandatoryFields(cfg); err != nil {
		return err
	}

	functionsJSON, err := json.Marshal(cfg.FunctionNames())
	if err != nil {
		return err
	}
	portJSON, _ := json.Marshal(cfg.Port)
	pidJSON, _ := json.Marshal(cfg.PID)
	startTimeJSON, _ := json.Marshal(cfg.StartTime)
	aliveJSON, _ := json.Marshal(cfg.Alive)

	servicesKey := servicesKey()
	guidsKey := serviceGUIDsKey(cfg.Name)
	instanceKey := serviceInstanceKey(cfg.Name, cfg.GUID)

	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, servicesKey, cfg.Name)
		pipe.SAdd(ctx, guidsKey, cfg.GUID)
		pipe.HSet(ctx, instanceKey, map[string]interface{}{
			"name":           cfg.Name,
			"env":            cfg.Env,
			"guid":           cfg.GUID,
			"host":           cfg.Host,
			"socket_type":    string(cfg.SocketType),
			"connect_method": string(cfg.ConnectMethod),
			"port":           string(portJSON),
			"pid":            string(pidJSON),
			"functions":      string(functionsJSON),
			"start_time":     string(startTimeJSON),
			"alive":          string(aliveJSON),
		})
		return nil
	})
	return err
}

func validateMandatoryFields(cfg *ServiceConfig) error {
	if cfg.Name == "" {
		return &rpcerr.ServiceRegistrationError{Field: "name"}
	}
	if cfg.Host == "" {
		return &rpcerr.ServiceRegistrationError{Field: "host"}
	}
	if cfg.Port == 0 {
		return &rpcerr.ServiceRegistrationError{Field: "port"}
	}
	if cfg.GUID == "" {
		return &rpcerr.ServiceRegistrationError{Field: "guid"}
	}
	if len(cfg.Functions) == 0 {
		return &rpcerr.ServiceRegistrationError{Field: "functions"}
	}
	if cfg.SocketType == "" {
		return &rpcerr.ServiceRegistrationError{Field: "socket_type"}
	}
	if cfg.ConnectMethod == "" {
		return &rpcerr.ServiceRegistrationError{Field: "connect_method"}
	}
	return nil
}

// NextAvailablePort allocates the smallest free port from the host's
// pool, seeding or extending the pool with a fresh batch of 100
// sequential ports when it runs low, per spec §3/§4.1.
func (r *RedisRegistry) NextAvailablePort(ctx context.Context, serviceName, serviceGUID, host string) (int, error) {
	key := hostPortsKey(host)
	var allocated int

	txFn := func(tx *redis.Tx) error {
		count, err := tx.ZCard(ctx, key).Result()
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			switch count {
			case 0:
				seedPortBatch(ctx, pipe, key, startingPort)
			case 1:
				members, err := tx.ZRangeWithScores(ctx, key, 0, 0).Result()
				if err != nil {
					return err
				}
				base := int(members[0].Score)
				seedPortBatch(ctx, pipe, key, base+1)
			}
			return nil
		})
		if err != nil {
			return err
		}

		lowest, err := tx.ZRangeWithScores(ctx, key, 0, 0).Result()
		if err != nil {
			return err
		}
		if len(lowest) == 0 {
			return fmt.Errorf("registry: port pool for host %s is empty after seeding", host)
		}
		allocated = int(lowest[0].Score)

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.ZRem(ctx, key, lowest[0].Member)
			return nil
		})
		return err
	}

	if err := r.watchWithRetry(ctx, txFn, key); err != nil {
		return 0, err
	}
	return allocated, nil
}

func seedPortBatch(ctx context.Context, pipe redis.Pipeliner, key string, base int) {
	members := make([]redis.Z, 0, portBatchSize)
	for p := base; p < base+portBatchSize; p++ {
		members = append(members, redis.Z{Score: float64(p), Member: strconv.Itoa(p)})
	}
	pipe.ZAdd(ctx, key, members...)
}

// DeregisterService removes the instance mapping, evicts the guid from
// its service's set, cleans up empty sets, and returns the port to the
// host pool. A missing port is tolerated silently, per spec §4.1.
func (r *RedisRegistry) DeregisterService(ctx context.Context, serviceName, serviceGUID, host string) error {
	servicesKey := servicesKey()
	guidsKey := serviceGUIDsKey(serviceName)
	instanceKey := serviceInstanceKey(serviceName, serviceGUID)
	portsKey := hostPortsKey(host)

	txFn := func(tx *redis.Tx) error {
		servicesCard, err := tx.SCard(ctx, servicesKey).Result()
		if err != nil {
			return err
		}
		guidsCard, err := tx.SCard(ctx, guidsKey).Result()
		if err != nil {
			return err
		}
		instance, err := tx.HGetAll(ctx, instanceKey).Result()
		if err != nil {
			return err
		}
		portStr, havePort := instance["port"]

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, instanceKey)
			pipe.SRem(ctx, guidsKey, serviceGUID)
			if guidsCard <= 1 {
				pipe.Del(ctx, guidsKey)
				pipe.SRem(ctx, servicesKey, serviceName)
				if servicesCard <= 1 {
					pipe.Del(ctx, servicesKey)
				}
			}
			if havePort {
				var port int
				if jsonErr := json.Unmarshal([]byte(portStr), &port); jsonErr == nil {
					pipe.ZAdd(ctx, portsKey, redis.Z{Score: float64(port), Member: strconv.Itoa(port)})
				}
			}
			return nil
		})
		return err
	}

	return r.watchWithRetry(ctx, txFn, servicesKey, guidsKey, instanceKey, portsKey)
}

// DiscoverService returns up to num randomly chosen configs for live
// instances of name, with socket_type/connect_method flipped to their
// client-side counterparts and collection fields decoded, per spec §4.1.
func (r *RedisRegistry) DiscoverService(ctx context.Context, name string, num int) ([]*ServiceConfig, error) {
	isMember, err := r.rdb.SIsMember(ctx, servicesKey(), name).Result()
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, &rpcerr.ServiceNotAvailableError{Name: name}
	}

	guidsKey := serviceGUIDsKey(name)
	allGUIDs, err := r.rdb.SMembers(ctx, guidsKey).Result()
	if err != nil {
		return nil, err
	}

	sampled := sampleWithoutReplacement(allGUIDs, num)

	configs := make([]*ServiceConfig, 0, len(sampled))
	for _, guid := range sampled {
		instanceKey := serviceInstanceKey(name, guid)
		raw, err := r.rdb.HGetAll(ctx, instanceKey).Result()
		if err != nil {
			return nil, err
		}
		if len(raw) == 0 {
			continue
		}
		cfg, err := decodeClientConfig(raw)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

func sampleWithoutReplacement(items []string, num int) []string {
	if num >= len(items) {
		out := make([]string, len(items))
		copy(out, items)
		return out
	}
	shuffled := make([]string, len(items))
	copy(shuffled, items)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	out := shuffled[:num]
	sort.Strings(out) // deterministic ordering for equal-weight callers/tests
	return out
}

func decodeClientConfig(raw map[string]string) (*ServiceConfig, error) {
	serviceSocketType := SocketType(raw["socket_type"])
	clientSocketType, err := ClientSocketType(serviceSocketType)
	if err != nil {
		return nil, err
	}

	var functionNames []string
	if err := json.Unmarshal([]byte(raw["functions"]), &functionNames); err != nil {
		return nil, fmt.Errorf("registry: decoding functions: %w", err)
	}
	functions := make(map[string]struct{}, len(functionNames))
	for _, fn := range functionNames {
		functions[fn] = struct{}{}
	}

	var port int
	if err := json.Unmarshal([]byte(raw["port"]), &port); err != nil {
		return nil, fmt.Errorf("registry: decoding port: %w", err)
	}
	var pid int
	_ = json.Unmarshal([]byte(raw["pid"]), &pid)
	var startTime int64
	_ = json.Unmarshal([]byte(raw["start_time"]), &startTime)
	var alive bool
	_ = json.Unmarshal([]byte(raw["alive"]), &alive)

	return &ServiceConfig{
		Name:          raw["name"],
		Env:           raw["env"],
		GUID:          raw["guid"],
		PID:           pid,
		Host:          raw["host"],
		Port:          port,
		SocketType:    clientSocketType,
		ConnectMethod: FlipConnectMethod(ConnectMethod(raw["connect_method"])),
		Functions:     functions,
		StartTime:     startTime,
		Alive:         alive,
	}, nil
}

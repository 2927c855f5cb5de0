// Package caller implements the method caller: a façade over one
// resourcepool.Pool per discovered instance of each managed service,
// so application code can call a remote function by name without
// touching registry discovery or client pooling directly.
package caller

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"sync/atomic"

	"github.com/google/uuid"

	"microrpc/registry"
	"microrpc/resourcepool"
	"microrpc/rpcerr"
	"microrpc/svcclient"
)

const (
	// DefaultPoolSize is how many discovered instances the caller
	// manages per service.
	DefaultPoolSize = 5
	// ClientsPerInstance is how many pooled clients back each
	// discovered instance, so a burst of concurrent calls to the same
	// instance doesn't serialize behind a single connection.
	ClientsPerInstance = 5

	acquireTimeout = 2 * time.Second
)

// callerIdentity is stamped as every outgoing request's client field.
var callerIdentity = func() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}()

// requestEnvelope mirrors svc.Envelope's header fields so Call can
// stamp request_guid/client without depending on svc's generic type.
type requestEnvelope struct {
	RequestGUID string          `json:"request_guid,omitempty"`
	Client      string          `json:"client,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// stampRequestGUID wraps request as the payload of a fresh envelope
// carrying a new request guid and the caller's identity, per the
// caller pipeline's "stamp a fresh request guid and serialize" step.
func stampRequestGUID(request []byte) ([]byte, error) {
	env := requestEnvelope{RequestGUID: uuid.NewString(), Client: callerIdentity}
	if len(request) > 0 {
		env.Payload = json.RawMessage(request)
	}
	return json.Marshal(env)
}

// clientResource adapts a *svcclient.Client to resourcepool.Resource.
// Clients in the caller's pools never run their own heartbeat
// supervisor and block indefinitely on a reply (timeout disabled),
// matching how the original method caller built its pooled clients.
type clientResource struct {
	client *svcclient.Client
}

func (r *clientResource) GoodToUse() bool { return r.client.Alive() }
func (r *clientResource) Close() error    { return r.client.Shutdown() }

// servicePool is the pool-of-pools for one managed service: one
// resourcepool.Pool per discovered instance.
type servicePool struct {
	poolSize int
	pools    []*resourcepool.Pool
	next     atomic.Uint64
}

// MethodCaller calls remote functions against a fixed set of managed
// services, each backed by a small fleet of pooled clients per
// discovered instance.
type MethodCaller struct {
	reg      Discoverer
	services map[string]*servicePool
}

// Discoverer is the subset of the registry a MethodCaller needs.
type Discoverer interface {
	DiscoverService(ctx context.Context, name string, num int) ([]*registry.ServiceConfig, error)
}

// New builds a MethodCaller with no managed services; call Manage for
// each service the caller should be able to invoke.
func New(reg Discoverer) *MethodCaller {
	return &MethodCaller{reg: reg, services: make(map[string]*servicePool)}
}

// Manage discovers up to poolSize instances of serviceName and builds
// ClientsPerInstance pooled clients for each, so later Call invocations
// against serviceName can proceed without a discovery round-trip.
func (m *MethodCaller) Manage(ctx context.Context, serviceName string, poolSize int) error {
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}
	configs, err := m.reg.DiscoverService(ctx, serviceName, poolSize)
	if err != nil {
		return err
	}

	sp := &servicePool{poolSize: poolSize}
	for _, cfg := range configs {
		cfg := cfg
		pool := resourcepool.New(ClientsPerInstance, func() (resourcepool.Resource, error) {
			client, err := svcclient.NewClient(serviceName, cfg, svcclient.Options{
				StartHeartbeat: false,
				Timeout:        svcclient.Blocking,
			})
			if err != nil {
				return nil, err
			}
			return &clientResource{client: client}, nil
		})
		sp.pools = append(sp.pools, pool)
	}
	m.services[serviceName] = sp
	return nil
}

// Call invokes function against a pooled client of serviceName,
// wrapping request in an envelope stamped with a fresh request guid
// before sending it. Callers should JSON-decode response
// themselves when a structured reply is expected.
func (m *MethodCaller) Call(ctx context.Context, serviceName, function string, request []byte) ([]byte, error) {
	sp, ok := m.services[serviceName]
	if !ok {
		return nil, &rpcerr.UnknownServiceError{Service: serviceName}
	}
	if len(sp.pools) == 0 {
		return nil, &rpcerr.ClientResourceNotAvailableError{Service: serviceName}
	}

	pool := sp.pools[sp.pickInstance()]
	handle, err := pool.Acquire(ctx, acquireTimeout)
	if err != nil {
		return nil, &rpcerr.ClientResourceNotAvailableError{Service: serviceName}
	}
	defer handle.Release()

	stamped, err := stampRequestGUID(request)
	if err != nil {
		return nil, &rpcerr.BadServiceRequestError{Cause: err}
	}

	client := handle.Resource().(*clientResource).client
	return client.Request(ctx, function, stamped)
}

// Close shuts down every pooled client across every managed service.
func (m *MethodCaller) Close() {
	for _, sp := range m.services {
		for _, pool := range sp.pools {
			pool.Close()
		}
	}
}

// pickInstance picks which of a service's discovered instances to use
// for the next call. Per the framework's scope, instance selection is
// a plain round robin across whatever DiscoverService returned — no
// weighting or consistent hashing.
func (sp *servicePool) pickInstance() int {
	n := sp.next.Add(1)
	return int(n % uint64(len(sp.pools)))
}

package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/ValentinKolb/binrpc/lib/util"
	"github.com/lni/dragonboat/v4/logger"
	clientv3 "go.etcd.io/etcd/client/v3"
)

var Logger = logger.GetLogger("discovery")

// ErrNoInstance is returned when a service has no announced instance
var ErrNoInstance = errors.New("no instance announced")

const (
	keyPrefix      = "/binrpc/"
	dialTimeout    = 5 * time.Second
	requestTimeout = 5 * time.Second
)

// Instance describes one announced server
type Instance struct {
	Addr      string    `json:"addr"`
	Transport string    `json:"transport"`
	Methods   []string  `json:"methods,omitempty"`
	Started   time.Time `json:"started"`
}

// Registry announces and resolves servers in etcd.
//
// Layout:
//
//	Key:   /binrpc/{service}/{instance id}
//	Value: JSON encoded Instance
//
// Announcements are bound to a lease, so the entry of a crashed server
// disappears after its TTL.
type Registry struct {
	client *clientv3.Client
}

// New connects to the given etcd endpoints
func New(endpoints []string) (*Registry, error) {
	if len(endpoints) == 0 {
		return nil, errors.New("no etcd endpoints")
	}
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}
	return &Registry{client: c}, nil
}

// Close closes the etcd client
func (r *Registry) Close() error {
	return r.client.Close()
}

// --------------------------------------------------------------------------
// Announce
// --------------------------------------------------------------------------

// Announcement is a live entry of a server
type Announcement struct {
	r      *Registry
	key    string
	lease  clientv3.LeaseID
	cancel context.CancelFunc
}

// Announce publishes inst under service. The lease is renewed in the
// background until ctx is done or the announcement is closed.
func (r *Registry) Announce(ctx context.Context, service string, inst Instance, ttl int64) (*Announcement, error) {
	if inst.Started.IsZero() {
		inst.Started = time.Now()
	}
	val, err := json.Marshal(inst)
	if err != nil {
		return nil, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	lease, err := r.client.Grant(reqCtx, ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to grant lease: %w", err)
	}

	key := keyPrefix + service + "/" + strconv.FormatUint(util.GenerateSeed(), 16)
	if _, err := r.client.Put(reqCtx, key, string(val), clientv3.WithLease(lease.ID)); err != nil {
		return nil, fmt.Errorf("failed to put %s: %w", key, err)
	}

	keepCtx, stop := context.WithCancel(ctx)
	ch, err := r.client.KeepAlive(keepCtx, lease.ID)
	if err != nil {
		stop()
		return nil, fmt.Errorf("failed to keep lease alive: %w", err)
	}

	// drain the responses so the channel never fills up
	go func() {
		for range ch {
		}
		Logger.Debugf("keep-alive of %s ended", key)
	}()

	Logger.Infof("announced %s at %s (ttl %ds)", service, inst.Addr, ttl)
	return &Announcement{r: r, key: key, lease: lease.ID, cancel: stop}, nil
}

// Key returns the etcd key of the announcement
func (a *Announcement) Key() string { return a.key }

// Close stops the renewal and removes the entry
func (a *Announcement) Close() error {
	a.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	_, err := a.r.client.Revoke(ctx, a.lease)
	return err
}

// --------------------------------------------------------------------------
// Resolve
// --------------------------------------------------------------------------

// Instances returns all announced instances of service ordered by address
func (r *Registry) Instances(ctx context.Context, service string) ([]Instance, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	resp, err := r.client.Get(ctx, keyPrefix+service+"/", clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	instances := make([]Instance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var inst Instance
		if err := json.Unmarshal(kv.Value, &inst); err != nil {
			Logger.Warningf("skipping malformed entry %s: %v", kv.Key, err)
			continue
		}
		instances = append(instances, inst)
	}
	sort.Slice(instances, func(i, j int) bool { return instances[i].Addr < instances[j].Addr })
	return instances, nil
}

// Resolve picks the endpoint of service for the given client key. The same
// key keeps its endpoint as long as that instance is announced.
func (r *Registry) Resolve(ctx context.Context, service, key string) (string, error) {
	instances, err := r.Instances(ctx, service)
	if err != nil {
		return "", err
	}
	return Pick(key, instances)
}

// Pick selects an instance address for key with rendezvous hashing
func Pick(key string, instances []Instance) (string, error) {
	if len(instances) == 0 {
		return "", ErrNoInstance
	}
	addrs := make([]string, len(instances))
	for i, inst := range instances {
		addrs[i] = inst.Addr
	}
	return util.PickRendezvous(key, addrs), nil
}

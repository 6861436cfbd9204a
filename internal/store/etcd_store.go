package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/auto-dns/docker-fleet-updater/internal/config"
	"github.com/auto-dns/docker-fleet-updater/internal/domain"
	"github.com/rs/zerolog"
	clientv3 "go.etcd.io/etcd/client/v3"
)

type etcdClient interface {
	Get(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error)
	Txn(ctx context.Context) clientv3.Txn
	Close() error
}

// EtcdStore keeps hosts and policies as JSON values under a key prefix. Every write is
// an optimistic transaction guarded by the mod revision of the keys it read.
type EtcdStore struct {
	client        etcdClient
	prefix        string
	retries       int
	retryInterval time.Duration
	now           func() time.Time
	logger        zerolog.Logger
}

func NewEtcdStore(client etcdClient, cfg *config.EtcdConfig, logger zerolog.Logger) *EtcdStore {
	retries := cfg.TxnRetries
	if retries <= 0 {
		retries = 1
	}
	return &EtcdStore{
		client:        client,
		prefix:        cfg.PathPrefix,
		retries:       retries,
		retryInterval: cfg.RetryInterval,
		now:           time.Now,
		logger:        logger,
	}
}

// retry runs attempt until it commits. A lost race is retried; after the configured
// number of attempts it becomes a ConflictError.
func (s *EtcdStore) retry(ctx context.Context, key string, attempt func() (bool, error)) error {
	for i := 0; i < s.retries; i++ {
		committed, err := attempt()
		if err != nil {
			return err
		}
		if committed {
			return nil
		}
		s.logger.Debug().Msgf("[etcd_store] Transaction on %s lost a race, retrying", key)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.retryInterval):
		}
	}
	return NewConflictError(key, "concurrent modification")
}

func (s *EtcdStore) ListHosts(ctx context.Context) ([]domain.Host, error) {
	resp, err := s.client.Get(ctx, hostsPrefix(s.prefix), clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("list hosts: %w", err)
	}
	hosts := make([]domain.Host, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		h, err := unmarshalHost(kv.Value)
		if err != nil {
			s.logger.Error().Err(err).Msgf("[etcd_store] Failed to parse key: %s", kv.Key)
			continue
		}
		hosts = append(hosts, h)
	}
	sort.Slice(hosts, func(i, j int) bool { return hosts[i].ID < hosts[j].ID })
	return hosts, nil
}

func (s *EtcdStore) ListEnabledHosts(ctx context.Context) ([]domain.Host, error) {
	hosts, err := s.ListHosts(ctx)
	if err != nil {
		return nil, err
	}
	return enabledOnly(hosts), nil
}

func (s *EtcdStore) GetHost(ctx context.Context, id int) (domain.Host, error) {
	h, _, err := s.getHost(ctx, id)
	return h, err
}

func (s *EtcdStore) getHost(ctx context.Context, id int) (domain.Host, int64, error) {
	resp, err := s.client.Get(ctx, hostKey(s.prefix, id))
	if err != nil {
		return domain.Host{}, 0, fmt.Errorf("get host %d: %w", id, err)
	}
	if len(resp.Kvs) == 0 {
		return domain.Host{}, 0, NewNotFoundError("host", strconv.Itoa(id))
	}
	h, err := unmarshalHost(resp.Kvs[0].Value)
	if err != nil {
		return domain.Host{}, 0, err
	}
	return h, resp.Kvs[0].ModRevision, nil
}

func (s *EtcdStore) checkName(ctx context.Context, name string, exceptID int) error {
	hosts, err := s.ListHosts(ctx)
	if err != nil {
		return err
	}
	for _, h := range hosts {
		if h.ID != exceptID && h.Name == name {
			return NewConflictError(name, "host name is already taken")
		}
	}
	return nil
}

func (s *EtcdStore) CreateHost(ctx context.Context, host domain.Host) (domain.Host, error) {
	seqKey := hostSeqKey(s.prefix)
	err := s.retry(ctx, seqKey, func() (bool, error) {
		if err := s.checkName(ctx, host.Name, 0); err != nil {
			return false, err
		}
		resp, err := s.client.Get(ctx, seqKey)
		if err != nil {
			return false, fmt.Errorf("get host sequence: %w", err)
		}
		next, rev := 1, int64(0)
		if len(resp.Kvs) > 0 {
			last, err := strconv.Atoi(string(resp.Kvs[0].Value))
			if err != nil {
				return false, fmt.Errorf("parse host sequence: %w", err)
			}
			next, rev = last+1, resp.Kvs[0].ModRevision
		}
		host.ID = next
		value, err := marshalHost(host)
		if err != nil {
			return false, err
		}
		txnResp, err := s.client.Txn(ctx).
			If(clientv3.Compare(clientv3.ModRevision(seqKey), "=", rev)).
			Then(
				clientv3.OpPut(seqKey, strconv.Itoa(next)),
				clientv3.OpPut(hostKey(s.prefix, next), value),
			).
			Commit()
		if err != nil {
			return false, fmt.Errorf("create host: %w", err)
		}
		return txnResp.Succeeded, nil
	})
	if err != nil {
		return domain.Host{}, err
	}
	s.logger.Info().Msgf("[etcd_store] Created host %d (%s)", host.ID, host.Name)
	return host, nil
}

func (s *EtcdStore) UpdateHost(ctx context.Context, host domain.Host) (domain.Host, error) {
	key := hostKey(s.prefix, host.ID)
	err := s.retry(ctx, key, func() (bool, error) {
		_, rev, err := s.getHost(ctx, host.ID)
		if err != nil {
			return false, err
		}
		if err := s.checkName(ctx, host.Name, host.ID); err != nil {
			return false, err
		}
		value, err := marshalHost(host)
		if err != nil {
			return false, err
		}
		txnResp, err := s.client.Txn(ctx).
			If(clientv3.Compare(clientv3.ModRevision(key), "=", rev)).
			Then(clientv3.OpPut(key, value)).
			Commit()
		if err != nil {
			return false, fmt.Errorf("update host %d: %w", host.ID, err)
		}
		return txnResp.Succeeded, nil
	})
	if err != nil {
		return domain.Host{}, err
	}
	return host, nil
}

func (s *EtcdStore) DeleteHost(ctx context.Context, id int) error {
	key := hostKey(s.prefix, id)
	return s.retry(ctx, key, func() (bool, error) {
		_, rev, err := s.getHost(ctx, id)
		if err != nil {
			return false, err
		}
		txnResp, err := s.client.Txn(ctx).
			If(clientv3.Compare(clientv3.ModRevision(key), "=", rev)).
			Then(
				clientv3.OpDelete(key),
				clientv3.OpDelete(containersPrefix(s.prefix, id), clientv3.WithPrefix()),
			).
			Commit()
		if err != nil {
			return false, fmt.Errorf("delete host %d: %w", id, err)
		}
		if txnResp.Succeeded {
			s.logger.Info().Msgf("[etcd_store] Deleted host %d", id)
		}
		return txnResp.Succeeded, nil
	})
}

func (s *EtcdStore) ListContainerPolicies(ctx context.Context, hostID int) ([]domain.ContainerPolicy, error) {
	resp, err := s.client.Get(ctx, containersPrefix(s.prefix, hostID), clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("list container policies of host %d: %w", hostID, err)
	}
	policies := make([]domain.ContainerPolicy, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		p, err := unmarshalPolicy(kv.Value)
		if err != nil {
			s.logger.Error().Err(err).Msgf("[etcd_store] Failed to parse key: %s", kv.Key)
			continue
		}
		policies = append(policies, p)
	}
	sort.Slice(policies, func(i, j int) bool { return policies[i].Name < policies[j].Name })
	return policies, nil
}

func (s *EtcdStore) UpsertContainer(ctx context.Context, patch domain.PolicyPatch) (domain.ContainerPolicy, error) {
	key := containerKey(s.prefix, patch.HostID, patch.Name)
	var policy domain.ContainerPolicy
	err := s.retry(ctx, key, func() (bool, error) {
		resp, err := s.client.Get(ctx, key)
		if err != nil {
			return false, fmt.Errorf("get container %s: %w", key, err)
		}
		policy = domain.ContainerPolicy{HostID: patch.HostID, Name: patch.Name}
		var rev int64
		if len(resp.Kvs) > 0 {
			if policy, err = unmarshalPolicy(resp.Kvs[0].Value); err != nil {
				return false, err
			}
			rev = resp.Kvs[0].ModRevision
		}
		patch.Apply(&policy)
		value, err := marshalPolicy(policy, s.now())
		if err != nil {
			return false, err
		}
		txnResp, err := s.client.Txn(ctx).
			If(clientv3.Compare(clientv3.ModRevision(key), "=", rev)).
			Then(clientv3.OpPut(key, value)).
			Commit()
		if err != nil {
			return false, fmt.Errorf("upsert container %s: %w", key, err)
		}
		return txnResp.Succeeded, nil
	})
	if err != nil {
		return domain.ContainerPolicy{}, err
	}
	return policy, nil
}

// PatchContainers commits every patch in one transaction that fails when any of the
// touched rows changed since it was read.
func (s *EtcdStore) PatchContainers(ctx context.Context, patches []domain.PolicyPatch) error {
	if len(patches) == 0 {
		return nil
	}
	return s.retry(ctx, "container patches", func() (bool, error) {
		type row struct {
			policy domain.ContainerPolicy
			rev    int64
		}
		rows := make(map[string]*row)
		var order []string
		for _, patch := range patches {
			key := containerKey(s.prefix, patch.HostID, patch.Name)
			r, seen := rows[key]
			if !seen {
				resp, err := s.client.Get(ctx, key)
				if err != nil {
					return false, fmt.Errorf("get container %s: %w", key, err)
				}
				if len(resp.Kvs) == 0 {
					rows[key] = nil
					continue
				}
				p, err := unmarshalPolicy(resp.Kvs[0].Value)
				if err != nil {
					return false, err
				}
				r = &row{policy: p, rev: resp.Kvs[0].ModRevision}
				rows[key] = r
				order = append(order, key)
			}
			if r == nil {
				continue
			}
			patch.Apply(&r.policy)
		}
		if len(order) == 0 {
			return true, nil
		}

		now := s.now()
		cmps := make([]clientv3.Cmp, 0, len(order))
		ops := make([]clientv3.Op, 0, len(order))
		for _, key := range order {
			value, err := marshalPolicy(rows[key].policy, now)
			if err != nil {
				return false, err
			}
			cmps = append(cmps, clientv3.Compare(clientv3.ModRevision(key), "=", rows[key].rev))
			ops = append(ops, clientv3.OpPut(key, value))
		}
		txnResp, err := s.client.Txn(ctx).If(cmps...).Then(ops...).Commit()
		if err != nil {
			return false, fmt.Errorf("patch containers: %w", err)
		}
		return txnResp.Succeeded, nil
	})
}

func (s *EtcdStore) Close() error {
	return s.client.Close()
}

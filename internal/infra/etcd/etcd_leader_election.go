package etcd

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"tasks-pizza/internal/domain"
	"tasks-pizza/internal/metrics"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
)

const (
	LeaderElectionKey = KeyRoot + "leader"
)

type etcdLeaderElectionManager struct {
	client   *clientv3.Client
	session  *concurrency.Session
	election *concurrency.Election
	isLeader bool
	mutex    sync.RWMutex
	nodeID   string
	ttl      time.Duration
	logger   *slog.Logger
}

// NewEtcdLeaderElectionManager creates a manager for leader election using etcd.
func NewEtcdLeaderElectionManager(client *clientv3.Client, nodeID string, ttl time.Duration, logger *slog.Logger) domain.LeaderElectionManager {
	return &etcdLeaderElectionManager{
		client: client,
		nodeID: nodeID,
		ttl:    ttl,
		logger: logger.With("component", "leader-election"),
	}
}

func (m *etcdLeaderElectionManager) Campaign(ctx context.Context) (<-chan struct{}, error) {
	var err error
	// If this node dies the session lease expires and another node takes over.
	m.session, err = concurrency.NewSession(m.client, concurrency.WithTTL(int(m.ttl.Seconds())))
	if err != nil {
		return nil, err
	}

	m.election = concurrency.NewElection(m.session, LeaderElectionKey)

	if err := m.election.Campaign(ctx, m.nodeID); err != nil {
		_ = m.session.Close()
		return nil, err
	}

	m.logger.Info("successfully campaigned and became the leader", "node_id", m.nodeID)
	m.setLeader(true)

	lost := make(chan struct{})
	go func() {
		<-m.session.Done()
		m.setLeader(false)
		close(lost)
	}()
	return lost, nil
}

func (m *etcdLeaderElectionManager) Resign(ctx context.Context) error {
	m.setLeader(false)

	if m.election != nil {
		m.logger.Info("resigning leadership", "node_id", m.nodeID)
		if err := m.election.Resign(ctx); err != nil {
			return err
		}
		return m.session.Close()
	}
	return nil
}

func (m *etcdLeaderElectionManager) IsLeader() bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.isLeader
}

func (m *etcdLeaderElectionManager) setLeader(leader bool) {
	m.mutex.Lock()
	m.isLeader = leader
	m.mutex.Unlock()

	v := 0.0
	if leader {
		v = 1
	}
	metrics.IsLeader.WithLabelValues(m.nodeID).Set(v)
}

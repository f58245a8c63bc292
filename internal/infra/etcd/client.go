package etcd

import (
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// KeyRoot prefixes every key this service writes to etcd.
const KeyRoot = "/tasks-pizza/"

// WorkerDir holds one key per live queue worker, bound to the worker's lease.
const WorkerDir = KeyRoot + "workers/"

func NewClient(endpoints []string, timeout time.Duration) (*clientv3.Client, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: timeout,
	})
	if err != nil {
		return nil, err
	}
	return cli, nil
}

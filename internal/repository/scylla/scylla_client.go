// Package scylla implements the CredentialRepository on ScyllaDB. The
// identities table is keyed by email; uniqueness is enforced with a
// lightweight transaction on insert.
package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"

	"pics-backend/internal/config"
	"pics-backend/internal/util"
)

// Statements holds the CQL the credential repository issues. Queries are
// built per call because a bound *gocql.Query is not safe for concurrent
// use; gocql keys its server-side prepare cache on the statement text, so
// per-call construction still prepares each statement once.
type Statements struct {
	GetByEmail      string
	UpdatePassword  string
	UpdateLastLogin string
}

type ScyllaClient struct {
	Session    *gocql.Session
	config     *config.ScyllaConfig
	Statements Statements
}

func NewScyllaClient(cfg *config.Config) (*ScyllaClient, error) {
	scyllaConfig := cfg.Scylla

	cluster := gocql.NewCluster(scyllaConfig.Nodes...)
	cluster.Keyspace = scyllaConfig.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 2
	cluster.SocketKeepalive = 30 * time.Second
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        time.Second,
		Max:        10 * time.Second,
		NumRetries: 3,
	}

	if scyllaConfig.Username != "" && scyllaConfig.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: scyllaConfig.Username,
			Password: scyllaConfig.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	client := &ScyllaClient{
		Session: session,
		config:  &scyllaConfig,
		Statements: Statements{
			GetByEmail: `
        SELECT email, name, role, password_hash, is_active,
            created_at, updated_at, last_login
        FROM identities WHERE email = ?`,
			UpdatePassword: `
        UPDATE identities SET password_hash = ?, updated_at = ?
        WHERE email = ?`,
			UpdateLastLogin: `
        UPDATE identities SET last_login = ? WHERE email = ?`,
		},
	}

	util.Info("ScyllaDB client initialized",
		util.String("keyspace", scyllaConfig.Keyspace),
		util.Int("nodes", len(scyllaConfig.Nodes)))

	return client, nil
}

func (s *ScyllaClient) Close() {
	if s.Session != nil {
		s.Session.Close()
		util.Info("ScyllaDB client closed")
	}
}

func (s *ScyllaClient) HealthCheck(ctx context.Context) error {
	var clusterName string
	err := s.Session.Query(`SELECT cluster_name FROM system.local`).WithContext(ctx).Scan(&clusterName)
	if err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}
	return nil
}

func (s *ScyllaClient) ExecuteWithRetry(query *gocql.Query, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if err := query.Exec(); err != nil {
			lastErr = err
			if i < maxRetries {
				time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
				continue
			}
		} else {
			return nil
		}
	}
	return lastErr
}

func (s *ScyllaClient) ScanWithRetry(query *gocql.Query, dest ...interface{}) error {
	var lastErr error
	for i := 0; i < 3; i++ {
		if err := query.Scan(dest...); err != nil {
			lastErr = err
			if err == gocql.ErrNotFound {
				return err
			}
			if i < 2 {
				time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
				continue
			}
		} else {
			return nil
		}
	}
	return lastErr
}

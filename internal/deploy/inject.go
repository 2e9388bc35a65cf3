package deploy

import (
	"context"
	"fmt"

	"github.com/dimo-network/k3sform/internal/config"
	"github.com/dimo-network/k3sform/internal/dag"
	"github.com/dimo-network/k3sform/internal/deploy/helm"
)

// Inputs are the run-time values injectors read.
type Inputs struct {
	// ReservedIP resolves to the floating IP, or "" when disabled.
	ReservedIP *dag.Future[string]
	// Nodes resolves to discovered node names. Nil when discovery is off.
	Nodes *dag.Future[[]string]
	// PostgresPassword is optional; the operator generates one otherwise.
	PostgresPassword string
}

// ReservedIPInjector points the ingress controller service at the reserved
// address.
func ReservedIPInjector(reserved *dag.Future[string]) ValueInjector {
	return func(ctx context.Context) (helm.Values, error) {
		ip, err := reserved.Await(ctx)
		if err != nil {
			return nil, err
		}
		if ip == "" {
			return nil, nil
		}
		return helm.Set("controller.service.loadBalancerIP", ip), nil
	}
}

// ReplicaNodesInjector sets the nodes that get a Postgres host path volume.
// Discovered names win; the configured list is the fallback.
func ReplicaNodesInjector(nodes *dag.Future[[]string], fallback []string) ValueInjector {
	return func(ctx context.Context) (helm.Values, error) {
		var names []string
		if nodes != nil {
			discovered, err := nodes.Await(ctx)
			if err != nil {
				return nil, err
			}
			names = discovered
		}
		if len(names) == 0 {
			names = fallback
		}
		if len(names) == 0 {
			return nil, nil
		}
		list := make([]any, len(names))
		for i, n := range names {
			list[i] = n
		}
		return helm.Set("persistentVolumes.replicaNodes", list), nil
	}
}

// PasswordInjector sets the Postgres superuser password.
func PasswordInjector(password string) ValueInjector {
	return func(context.Context) (helm.Values, error) {
		return helm.Set("superuser.password", password), nil
	}
}

// BrokerAddress is the in-cluster bootstrap address of the kafka release.
func BrokerAddress(kafka Release) string {
	return fmt.Sprintf("%s.%s.svc.cluster.local:%d", kafka.Name, kafka.Namespace, kafkaPort)
}

// DatabaseHost is the in-cluster service of the Postgres cluster.
func DatabaseHost(postgres Release) string {
	return fmt.Sprintf("%s.%s.svc.cluster.local", postgresCluster, postgres.Namespace)
}

// ConsumerInjector wires the identity API to Kafka and Postgres.
func ConsumerInjector(cfg *config.Config, kafka, postgres *Release) ValueInjector {
	return func(context.Context) (helm.Values, error) {
		env := helm.Values{}
		if kafka != nil {
			env["KAFKA_BROKERS"] = BrokerAddress(*kafka)
		}
		if postgres != nil {
			env["DB_HOST"] = DatabaseHost(*postgres)
			env["DB_PORT"] = "5432"
			env["DB_NAME"] = cfg.Postgres.Database
			env["DB_USER"] = cfg.Postgres.SuperUser
		}
		if len(env) == 0 {
			return nil, nil
		}
		return helm.Values{"env": env}, nil
	}
}

// Wire attaches the run-time injectors to the releases that consume them.
func Wire(cfg *config.Config, releases []Release, in Inputs) []Release {
	out := make([]Release, len(releases))
	copy(out, releases)

	find := func(name string) *Release {
		for i := range out {
			if out[i].Name == name {
				r := out[i]
				return &r
			}
		}
		return nil
	}
	kafka, postgres := find(Kafka), find(PostgresCluster)

	for i := range out {
		r := &out[i]
		switch r.Name {
		case NginxIngress:
			if in.ReservedIP != nil {
				r.Injectors = append(r.Injectors, ReservedIPInjector(in.ReservedIP))
			}
		case PostgresCluster:
			r.Injectors = append(r.Injectors, ReplicaNodesInjector(in.Nodes, cfg.Postgres.ReplicaNodes))
			if in.PostgresPassword != "" {
				r.Injectors = append(r.Injectors, PasswordInjector(in.PostgresPassword))
			}
		case IdentityAPI:
			r.Injectors = append(r.Injectors, ConsumerInjector(cfg, kafka, postgres))
		}
	}
	return out
}

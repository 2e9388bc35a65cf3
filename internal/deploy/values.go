package deploy

import (
	"github.com/dimo-network/k3sform/internal/config"
	"github.com/dimo-network/k3sform/internal/deploy/helm"
)

// Postgres cluster identity used by the local chart and its consumers.
const (
	postgresTeam    = "dimo"
	postgresCluster = "dimo-postgres"
	kafkaPort       = 9092
)

// IngressValues are the nginx-ingress defaults. The reserved address is
// injected at run time.
func IngressValues() helm.Values {
	return helm.Values{
		"controller": helm.Values{
			"service": helm.Values{"type": "LoadBalancer"},
		},
	}
}

// PostgresValues renders the zalando-postgres-cluster values. Replica nodes
// and the superuser password are injected at run time.
func PostgresValues(cfg *config.Config) helm.Values {
	pg := cfg.Postgres
	return helm.Values{
		"teamId":      postgresTeam,
		"clusterName": postgresCluster,
		"superuser": helm.Values{
			"user":   pg.SuperUser,
			"secret": "credentials.postgresql.acid.zalan.do",
		},
		"postgresql": helm.Values{
			"postgresql": helm.Values{"version": pg.Version},
			"users": helm.Values{
				pg.SuperUser: []any{"superuser", "createdb"},
			},
			"databases": helm.Values{
				pg.Database: pg.SuperUser,
			},
			"volume": helm.Values{
				"size":         pg.VolumeSize,
				"storageClass": pg.StorageClass,
			},
		},
		"persistentVolumes": helm.Values{
			"accessModes":    []any{"ReadWriteOnce"},
			"hostPathPrefix": pg.HostPathPrefix,
		},
	}
}

// KafkaValues renders the kafka defaults.
func KafkaValues(cfg *config.Config) helm.Values {
	return helm.Values{
		"service": helm.Values{"type": "ClusterIP"},
		"global":  helm.Values{"storageClass": cfg.Kafka.StorageClass},
	}
}

// IdentityAPIValues renders the identity-api defaults. Broker and database
// settings are injected at run time.
func IdentityAPIValues() helm.Values {
	return helm.Values{
		"image": helm.Values{
			"repository": "dimozone/identity-api",
			"tag":        "latest",
			"pullPolicy": "IfNotPresent",
		},
		"env": helm.Values{
			"DIMO_REGISTRY_CHAIN_ID": "137",
		},
	}
}

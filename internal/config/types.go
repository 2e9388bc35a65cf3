package config

// Config is the complete deployment description.
type Config struct {
	// Name prefixes every cloud resource and is stored in the project label.
	Name string `yaml:"name"`

	Location    string `yaml:"location"`
	NetworkZone string `yaml:"networkZone"`
	MachineType string `yaml:"machineType"`
	OSImage     string `yaml:"osImage"`

	// InstanceTag links the server to the firewall rules.
	InstanceTag string `yaml:"instanceTag"`

	KubePort     int      `yaml:"kubePort"`
	ExtraPorts   []int    `yaml:"extraPorts,omitempty"`
	SourceRanges []string `yaml:"sourceRanges"`

	Network         NetworkConfig         `yaml:"network"`
	SSH             SSHConfig             `yaml:"ssh"`
	ReservedAddress ReservedAddressConfig `yaml:"reservedAddress"`
	K3s             K3sConfig             `yaml:"k3s,omitempty"`
	Bootstrap       BootstrapConfig       `yaml:"bootstrap,omitempty"`

	// DiscoverNodes enables the post-bootstrap node listing that feeds
	// Postgres replica placement.
	DiscoverNodes bool `yaml:"discoverNodes,omitempty"`

	Postgres     PostgresConfig `yaml:"postgres"`
	Kafka        KafkaConfig    `yaml:"kafka,omitempty"`
	Applications []Application  `yaml:"applications,omitempty"`

	// ChartsDir holds the local charts of the default catalog.
	ChartsDir string        `yaml:"chartsDir,omitempty"`
	Outputs   OutputsConfig `yaml:"outputs,omitempty"`

	// Concurrency limits how many graph tasks run at once.
	Concurrency int `yaml:"concurrency,omitempty"`

	Labels map[string]string `yaml:"labels,omitempty"`
}

// NetworkConfig holds the private network layout.
type NetworkConfig struct {
	IPRange string `yaml:"ipRange"`
	Subnet  string `yaml:"subnet"`
}

// SSHConfig describes how the server is reached for bootstrap.
type SSHConfig struct {
	User           string `yaml:"user"`
	Port           int    `yaml:"port,omitempty"`
	PublicKeyPath  string `yaml:"publicKeyPath"`
	PrivateKeyPath string `yaml:"privateKeyPath"`
}

// ReservedAddressConfig controls the floating IP handed to the ingress
// controller.
type ReservedAddressConfig struct {
	Enabled *bool `yaml:"enabled,omitempty"`
	// UseForSSH makes bootstrap and the kubeconfig use the reserved address
	// instead of the server's primary IP.
	UseForSSH bool `yaml:"useForSSH,omitempty"`
}

// IsEnabled reports whether a reserved address is provisioned.
func (r ReservedAddressConfig) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// K3sConfig tunes the k3s installer.
type K3sConfig struct {
	Version   string   `yaml:"version,omitempty"`
	Channel   string   `yaml:"channel,omitempty"`
	ExtraArgs []string `yaml:"extraArgs,omitempty"`
}

// BootstrapConfig selects the startup script variant.
type BootstrapConfig struct {
	// InstallOnBoot also pipes the k3s installer from the startup script.
	InstallOnBoot bool `yaml:"installOnBoot,omitempty"`
}

// PostgresConfig feeds the zalando-postgres-cluster release.
type PostgresConfig struct {
	Version        string   `yaml:"version"`
	SuperUser      string   `yaml:"superUser"`
	Database       string   `yaml:"database"`
	VolumeSize     string   `yaml:"volumeSize"`
	StorageClass   string   `yaml:"storageClass"`
	HostPathPrefix string   `yaml:"hostPathPrefix,omitempty"`
	ReplicaNodes   []string `yaml:"replicaNodes,omitempty"`
}

// KafkaConfig feeds the kafka release and its consumers.
type KafkaConfig struct {
	StorageClass string `yaml:"storageClass,omitempty"`
}

// Application overrides or adds one Helm release.
type Application struct {
	Name       string `yaml:"name"`
	Enabled    *bool  `yaml:"enabled,omitempty"`
	Chart      string `yaml:"chart,omitempty"`
	Repository string `yaml:"repository,omitempty"`
	Path       string `yaml:"path,omitempty"`
	Version    string `yaml:"version,omitempty"`
	Namespace  string `yaml:"namespace,omitempty"`
	// DependsOn replaces the default dependency set when present, including
	// when it is an empty list.
	DependsOn   *[]string      `yaml:"dependsOn,omitempty"`
	Values      map[string]any `yaml:"values,omitempty"`
	ValuesFiles []string       `yaml:"valuesFiles,omitempty"`
	Timeout     string         `yaml:"timeout,omitempty"`
}

// OutputsConfig selects where apply results are stored.
type OutputsConfig struct {
	Dir string    `yaml:"dir,omitempty"`
	S3  *S3Config `yaml:"s3,omitempty"`
}

// S3Config points the outputs store at an S3 compatible bucket.
type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix,omitempty"`
	Region    string `yaml:"region,omitempty"`
	Endpoint  string `yaml:"endpoint,omitempty"`
	PathStyle bool   `yaml:"pathStyle,omitempty"`
}

// AllowedPorts returns the SSH port, the API port and the extra ports.
func (c *Config) AllowedPorts() []int {
	sshPort := c.SSH.Port
	if sshPort == 0 {
		sshPort = DefaultSSHPort
	}
	ports := []int{sshPort, c.KubePort}
	return append(ports, c.ExtraPorts...)
}

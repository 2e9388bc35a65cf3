package config

// Defaults for an empty configuration.
const (
	DefaultName           = "k3s"
	DefaultLocation       = "fsn1"
	DefaultNetworkZone    = "eu-central"
	DefaultMachineType    = "cx22"
	DefaultOSImage        = "debian-12"
	DefaultInstanceTag    = "k3s"
	DefaultKubePort       = 6443
	DefaultNetworkRange   = "10.0.0.0/16"
	DefaultSubnet         = "10.0.1.0/24"
	DefaultSSHUser        = "root"
	DefaultSSHPort        = 22
	DefaultPublicKeyPath  = "keys/id_rsa.pub"
	DefaultPrivateKeyPath = "keys/id_rsa"
	DefaultOutputsDir     = ".k3sform"
	DefaultChartsDir      = "charts"
	DefaultConcurrency    = 4
)

// ApplyDefaults fills every unset field except sourceRanges, which must be
// set explicitly.
func (c *Config) ApplyDefaults() {
	setString(&c.Name, DefaultName)
	setString(&c.Location, DefaultLocation)
	setString(&c.NetworkZone, DefaultNetworkZone)
	setString(&c.MachineType, DefaultMachineType)
	setString(&c.OSImage, DefaultOSImage)
	setString(&c.InstanceTag, DefaultInstanceTag)
	if c.KubePort == 0 {
		c.KubePort = DefaultKubePort
	}

	setString(&c.Network.IPRange, DefaultNetworkRange)
	setString(&c.Network.Subnet, DefaultSubnet)

	setString(&c.SSH.User, DefaultSSHUser)
	if c.SSH.Port == 0 {
		c.SSH.Port = DefaultSSHPort
	}
	setString(&c.SSH.PublicKeyPath, DefaultPublicKeyPath)
	setString(&c.SSH.PrivateKeyPath, DefaultPrivateKeyPath)

	setString(&c.Postgres.Version, "13")
	setString(&c.Postgres.SuperUser, "dimo_admin")
	setString(&c.Postgres.Database, "dimo")
	setString(&c.Postgres.VolumeSize, "1Gi")
	setString(&c.Postgres.StorageClass, "standard")
	setString(&c.Postgres.HostPathPrefix, "/mnt/data")
	setString(&c.Kafka.StorageClass, "standard")

	setString(&c.ChartsDir, DefaultChartsDir)
	setString(&c.Outputs.Dir, DefaultOutputsDir)
	if c.Concurrency == 0 {
		c.Concurrency = DefaultConcurrency
	}
}

func setString(field *string, def string) {
	if *field == "" {
		*field = def
	}
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

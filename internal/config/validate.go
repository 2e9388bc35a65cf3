package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"
)

// Severity of a validation finding.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// ValidLocations lists the Hetzner Cloud locations.
var ValidLocations = map[string]string{
	"fsn1": "eu-central",
	"nbg1": "eu-central",
	"hel1": "eu-central",
	"ash":  "us-east",
	"hil":  "us-west",
	"sin":  "ap-southeast",
}

// ValidationError is one configuration finding.
type ValidationError struct {
	Field    string
	Message  string
	Severity string
}

func (ve ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", ve.Severity, ve.Field, ve.Message)
}

// IsError reports whether the finding blocks the apply.
func (ve ValidationError) IsError() bool {
	return ve.Severity == SeverityError
}

// ValidationErrors is returned by Validate when at least one finding is an
// error.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	msgs := make([]string, 0, len(v))
	for _, e := range v {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "\n  ")
}

// Validate returns the blocking findings of Check as ValidationErrors.
func (c *Config) Validate() error {
	var errs ValidationErrors
	for _, f := range c.Check() {
		if f.IsError() {
			errs = append(errs, f)
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Warnings returns the non-blocking findings of Check.
func (c *Config) Warnings() []ValidationError {
	var out []ValidationError
	for _, f := range c.Check() {
		if !f.IsError() {
			out = append(out, f)
		}
	}
	return out
}

// Check runs every validation rule.
func (c *Config) Check() []ValidationError {
	var out []ValidationError
	add := func(field, severity, format string, args ...any) {
		out = append(out, ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Severity: severity})
	}

	if err := validateName(c.Name); err != nil {
		add("name", SeverityError, "%v", err)
	}
	if zone, ok := ValidLocations[c.Location]; !ok {
		add("location", SeverityError, "unknown location %q", c.Location)
	} else if c.NetworkZone != zone {
		add("networkZone", SeverityError, "location %s belongs to network zone %s, not %s", c.Location, zone, c.NetworkZone)
	}
	if c.MachineType == "" {
		add("machineType", SeverityError, "must not be empty")
	}
	if c.OSImage == "" {
		add("osImage", SeverityError, "must not be empty")
	}
	if c.InstanceTag == "" {
		add("instanceTag", SeverityError, "must not be empty")
	}

	if !validPort(c.KubePort) {
		add("kubePort", SeverityError, "port %d out of range", c.KubePort)
	}
	for i, p := range c.ExtraPorts {
		if !validPort(p) {
			add(fmt.Sprintf("extraPorts[%d]", i), SeverityError, "port %d out of range", p)
		}
	}

	if len(c.SourceRanges) == 0 {
		add("sourceRanges", SeverityError, "at least one source range is required")
	}
	for i, r := range c.SourceRanges {
		_, ipNet, err := net.ParseCIDR(r)
		if err != nil {
			add(fmt.Sprintf("sourceRanges[%d]", i), SeverityError, "invalid CIDR %q", r)
			continue
		}
		if ones, _ := ipNet.Mask.Size(); ones == 0 {
			add(fmt.Sprintf("sourceRanges[%d]", i), SeverityWarning, "%s opens SSH and the Kubernetes API to the whole internet", r)
		}
	}

	out = append(out, c.checkNetwork()...)

	if c.SSH.User == "" {
		add("ssh.user", SeverityError, "must not be empty")
	}
	if !validPort(c.SSH.Port) {
		add("ssh.port", SeverityError, "port %d out of range", c.SSH.Port)
	}
	for field, p := range map[string]string{"ssh.publicKeyPath": c.SSH.PublicKeyPath, "ssh.privateKeyPath": c.SSH.PrivateKeyPath} {
		if p == "" {
			add(field, SeverityError, "must not be empty")
		} else if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			add(field, SeverityWarning, "%s does not exist (run 'k3sform init --generate-keys')", p)
		}
	}

	out = append(out, c.checkApplications()...)

	if c.Concurrency < 1 {
		add("concurrency", SeverityError, "must be at least 1")
	}
	if c.Outputs.S3 != nil && c.Outputs.S3.Bucket == "" {
		add("outputs.s3.bucket", SeverityError, "must not be empty when outputs.s3 is set")
	}

	return out
}

func (c *Config) checkNetwork() []ValidationError {
	var out []ValidationError
	_, netRange, err := net.ParseCIDR(c.Network.IPRange)
	if err != nil {
		return append(out, ValidationError{Field: "network.ipRange", Message: fmt.Sprintf("invalid CIDR %q", c.Network.IPRange), Severity: SeverityError})
	}
	subIP, subnet, err := net.ParseCIDR(c.Network.Subnet)
	if err != nil {
		return append(out, ValidationError{Field: "network.subnet", Message: fmt.Sprintf("invalid CIDR %q", c.Network.Subnet), Severity: SeverityError})
	}
	netOnes, _ := netRange.Mask.Size()
	subOnes, _ := subnet.Mask.Size()
	if !netRange.Contains(subIP) || subOnes < netOnes {
		out = append(out, ValidationError{
			Field:    "network.subnet",
			Message:  fmt.Sprintf("subnet %s is not inside network %s", c.Network.Subnet, c.Network.IPRange),
			Severity: SeverityError,
		})
	}
	return out
}

func (c *Config) checkApplications() []ValidationError {
	var out []ValidationError
	seen := make(map[string]bool, len(c.Applications))
	for i, app := range c.Applications {
		field := fmt.Sprintf("applications[%d]", i)
		if app.Name == "" {
			out = append(out, ValidationError{Field: field + ".name", Message: "must not be empty", Severity: SeverityError})
			continue
		}
		if seen[app.Name] {
			out = append(out, ValidationError{Field: field + ".name", Message: fmt.Sprintf("duplicate application %q", app.Name), Severity: SeverityError})
		}
		seen[app.Name] = true
		if app.Path != "" && app.Repository != "" {
			out = append(out, ValidationError{Field: field, Message: "path and repository are mutually exclusive", Severity: SeverityError})
		}
		if app.Path != "" {
			if _, err := os.Stat(app.Path); errors.Is(err, os.ErrNotExist) {
				out = append(out, ValidationError{Field: field + ".path", Message: fmt.Sprintf("local chart %s does not exist", app.Path), Severity: SeverityWarning})
			}
		}
		if app.Timeout != "" {
			if d, err := time.ParseDuration(app.Timeout); err != nil || d <= 0 {
				out = append(out, ValidationError{Field: field + ".timeout", Message: fmt.Sprintf("invalid duration %q", app.Timeout), Severity: SeverityError})
			}
		}
		for _, f := range app.ValuesFiles {
			if _, err := os.Stat(f); err != nil {
				out = append(out, ValidationError{Field: field + ".valuesFiles", Message: fmt.Sprintf("values file %s is not readable", f), Severity: SeverityError})
			}
		}
	}
	return out
}

func validPort(p int) bool {
	return p > 0 && p <= 65535
}

func validateName(s string) error {
	if s == "" {
		return fmt.Errorf("name is required")
	}
	if len(s) > 50 {
		return fmt.Errorf("name must be 50 characters or less")
	}
	for _, c := range s {
		if !((c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '-') {
			return fmt.Errorf("name can only contain lowercase letters, numbers, and hyphens")
		}
	}
	if s[0] == '-' || s[len(s)-1] == '-' {
		return fmt.Errorf("name cannot start or end with a hyphen")
	}
	return nil
}

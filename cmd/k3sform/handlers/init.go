package handlers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dimo-network/k3sform/internal/config"
	"github.com/dimo-network/k3sform/internal/util/keygen"
)

// Factory function variables for init, replaced in tests.
var (
	keyBits = 4096

	fileExists = func(path string) bool {
		_, err := os.Stat(path)
		return err == nil
	}

	runWizard  = config.RunWizard
	saveConfig = config.Save
)

// Init runs the configuration wizard and writes the result. With
// generateKeys it also creates the SSH key pair the configuration points
// at, unless one already exists.
func Init(ctx context.Context, outputPath string, generateKeys bool) error {
	if fileExists(outputPath) {
		fmt.Fprintf(stdout, "Warning: %s already exists and will be overwritten.\n\n", outputPath)
	}

	result, err := runWizard(ctx)
	if err != nil {
		return err
	}
	cfg := result.ToConfig()

	if err := saveConfig(cfg, outputPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	if generateKeys {
		if err := writeKeys(filepath.Dir(outputPath), cfg.SSH); err != nil {
			return err
		}
	}

	printInitSuccess(outputPath, cfg)
	return nil
}

// writeKeys creates the key pair relative to the configuration file, the
// same way Load resolves the paths.
func writeKeys(baseDir string, ssh config.SSHConfig) error {
	resolve := func(p string) string {
		if filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(baseDir, p)
	}
	priv, pub := resolve(ssh.PrivateKeyPath), resolve(ssh.PublicKeyPath)
	if fileExists(priv) {
		fmt.Fprintf(stdout, "Keeping existing key %s\n", priv)
		return nil
	}

	kp, err := keygen.GenerateRSAKeyPair(keyBits)
	if err != nil {
		return err
	}
	if err := kp.WriteFiles(priv, pub); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "SSH key pair written to %s\n", priv)
	return nil
}

func printInitSuccess(outputPath string, cfg *config.Config) {
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "Configuration saved!")
	fmt.Fprintf(stdout, "  File:     %s\n", outputPath)
	fmt.Fprintf(stdout, "  Project:  %s\n", cfg.Name)
	fmt.Fprintf(stdout, "  Location: %s (%s)\n", cfg.Location, cfg.NetworkZone)
	fmt.Fprintf(stdout, "  Server:   %s\n", cfg.MachineType)
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "Next Steps")
	fmt.Fprintln(stdout, "----------")
	fmt.Fprintln(stdout, "  1. Set your Hetzner Cloud API token:")
	fmt.Fprintln(stdout, "     export HCLOUD_TOKEN=<your-token>")
	fmt.Fprintf(stdout, "  2. Review %s and the planned tasks:\n", outputPath)
	fmt.Fprintln(stdout, "     k3sform plan")
	fmt.Fprintln(stdout, "  3. Create the cluster:")
	fmt.Fprintln(stdout, "     k3sform apply")
}

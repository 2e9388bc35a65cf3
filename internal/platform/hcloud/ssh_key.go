package hcloud

import (
	"context"
	"fmt"
	"strings"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"
	"golang.org/x/crypto/ssh"
)

// Fingerprint returns the MD5 fingerprint Hetzner reports for an
// authorized_keys formatted public key.
func Fingerprint(publicKey string) (string, error) {
	pub, _, _, _, err := ssh.ParseAuthorizedKey([]byte(publicKey))
	if err != nil {
		return "", fmt.Errorf("failed to parse public key: %w", err)
	}
	return ssh.FingerprintLegacyMD5(pub), nil
}

// EnsureSSHKey uploads the public key under name. An existing key with the
// same name must carry the same fingerprint. When the same key is already
// uploaded under another name, that key is reused.
func (c *RealClient) EnsureSSHKey(ctx context.Context, name, publicKey string, labels map[string]string) (*hcloud.SSHKey, bool, error) {
	publicKey = strings.TrimSpace(publicKey)
	fingerprint, err := Fingerprint(publicKey)
	if err != nil {
		return nil, false, err
	}

	key, created, err := (&EnsureOperation[*hcloud.SSHKey, hcloud.SSHKeyCreateOpts, any]{
		Name:         name,
		ResourceType: "ssh key",
		Get:          c.client.SSHKey.Get,
		Create:       simpleCreate(c.client.SSHKey.Create),
		Validate: func(key *hcloud.SSHKey) error {
			if key.Fingerprint != fingerprint {
				return fmt.Errorf("ssh key %s exists with fingerprint %s, local key is %s", name, key.Fingerprint, fingerprint)
			}
			return nil
		},
		CreateOptsMapper: func() hcloud.SSHKeyCreateOpts {
			return hcloud.SSHKeyCreateOpts{Name: name, PublicKey: publicKey, Labels: labels}
		},
	}).Execute(ctx, c)
	if err == nil || !IsUniquenessError(err) {
		return key, created, err
	}

	existing, _, lookupErr := c.client.SSHKey.GetByFingerprint(ctx, fingerprint)
	if lookupErr != nil || existing == nil {
		return nil, false, err
	}
	return existing, false, nil
}

// DeleteSSHKey deletes the SSH key with the given name.
func (c *RealClient) DeleteSSHKey(ctx context.Context, name string) error {
	return (&DeleteOperation[*hcloud.SSHKey]{
		Name:         name,
		ResourceType: "ssh key",
		Get:          c.client.SSHKey.Get,
		Delete:       c.client.SSHKey.Delete,
	}).Execute(ctx, c)
}

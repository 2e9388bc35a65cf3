package outputs

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/dimo-network/k3sform/internal/config"
	"github.com/dimo-network/k3sform/internal/platform/s3"
)

// ObjectClient is the subset of the S3 client the store needs.
type ObjectClient interface {
	EnsureBucket(ctx context.Context, bucket string) error
	PutObject(ctx context.Context, bucket, key string, data []byte) error
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
	DeleteObject(ctx context.Context, bucket, key string) error
}

// S3Store keeps outputs in a bucket under <prefix>/<project>/.
type S3Store struct {
	client ObjectClient
	bucket string
	prefix string
}

// NewS3Store returns a store writing to bucket under prefix.
func NewS3Store(client ObjectClient, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3Store) key(name string) string {
	return path.Join(s.prefix, name)
}

// Location returns the document URL.
func (s *S3Store) Location() string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, s.key(DocumentFile))
}

// Save uploads the document and the kubeconfig.
func (s *S3Store) Save(ctx context.Context, o *Outputs) error {
	if err := s.client.EnsureBucket(ctx, s.bucket); err != nil {
		return err
	}
	data, err := Marshal(o)
	if err != nil {
		return err
	}
	if err := s.client.PutObject(ctx, s.bucket, s.key(DocumentFile), data); err != nil {
		return err
	}
	if len(o.Kubeconfig) > 0 {
		return s.client.PutObject(ctx, s.bucket, s.key(KubeconfigFile), o.Kubeconfig)
	}
	return nil
}

// Load downloads the document. A missing object maps to ErrNotFound.
func (s *S3Store) Load(ctx context.Context) (*Outputs, error) {
	data, err := s.client.GetObject(ctx, s.bucket, s.key(DocumentFile))
	if errors.Is(err, s3.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", s.Location(), ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	o, err := Unmarshal(data)
	if err != nil {
		return nil, err
	}
	kubeconfig, err := s.client.GetObject(ctx, s.bucket, s.key(KubeconfigFile))
	if err != nil && !errors.Is(err, s3.ErrNotFound) {
		return nil, err
	}
	o.Kubeconfig = kubeconfig
	return o, nil
}

// Delete removes both objects.
func (s *S3Store) Delete(ctx context.Context) error {
	for _, name := range []string{DocumentFile, KubeconfigFile} {
		if err := s.client.DeleteObject(ctx, s.bucket, s.key(name)); err != nil {
			return err
		}
	}
	return nil
}

// Open returns the store configured by cfg: S3 when outputs.s3 is set,
// the local directory otherwise.
func Open(ctx context.Context, cfg *config.Config, env config.Env) (Store, error) {
	if cfg.Outputs.S3 == nil {
		return NewFileStore(cfg.Outputs.Dir), nil
	}
	s3cfg := cfg.Outputs.S3
	client, err := s3.NewClient(ctx, s3.Options{
		Endpoint:  s3cfg.Endpoint,
		Region:    s3cfg.Region,
		PathStyle: s3cfg.PathStyle,
		AccessKey: env.S3AccessKey,
		SecretKey: env.S3SecretKey,
	})
	if err != nil {
		return nil, err
	}
	return NewS3Store(client, s3cfg.Bucket, path.Join(s3cfg.Prefix, cfg.Name)), nil
}

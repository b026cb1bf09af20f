package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/harrison/gpfind/internal/config"
	"github.com/harrison/gpfind/internal/volume"
	"github.com/harrison/gpfind/internal/volume/billyvol"
	"github.com/harrison/gpfind/internal/volume/miniovol"
	"github.com/harrison/gpfind/internal/volume/s3vol"
)

// newDialer selects the volume client for the configured backend.
func newDialer(cfg *config.Config) (volume.Dialer, error) {
	switch cfg.Backend {
	case config.BackendLocal:
		return billyvol.NewDialer(filepath.Join(cfg.Server, cfg.Volume)), nil

	case config.BackendMinio:
		return miniovol.NewDialer(miniovol.Options{
			Server:    cfg.Server,
			Port:      cfg.Port,
			Bucket:    cfg.Volume,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Region:    cfg.S3.Region,
			UseSSL:    cfg.S3.UseSSL,
		}), nil

	case config.BackendS3:
		var endpoint string
		if cfg.Server != "" {
			scheme := "https"
			if !cfg.S3.UseSSL {
				scheme = "http"
			}
			endpoint = fmt.Sprintf("%s://%s:%d", scheme, cfg.Server, cfg.Port)
		}
		return s3vol.NewDialer(s3vol.Options{
			Endpoint:  endpoint,
			Bucket:    cfg.Volume,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
		}), nil
	}
	return nil, fmt.Errorf("unsupported backend %q", cfg.Backend)
}

// openPool builds the session pool and verifies that one session can reach
// the volume. A failure here is a ConnectionError and aborts the run.
func openPool(ctx context.Context, cfg *config.Config) (*volume.Pool, error) {
	dial, err := newDialer(cfg)
	if err != nil {
		return nil, err
	}
	pool := volume.NewPool(dial, cfg.Target(), cfg.EffectivePoolSize())

	conn, err := pool.Acquire(ctx)
	if err != nil {
		pool.Close()
		return nil, err
	}
	pingErr := conn.Ping(ctx)
	pool.Release(conn)
	if pingErr != nil {
		pool.Close()
		return nil, volume.NewConnectionError(cfg.Target(), pingErr)
	}
	return pool, nil
}

package main

import (
	"fmt"
	"slices"
	"time"

	"github.com/dmitrymomot/printforge/pkg/entitlement"
	"github.com/dmitrymomot/printforge/pkg/importjob"
)

type appConfig struct {
	Env      string `env:"APP_ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL"`

	EntitlementStore string `env:"ENTITLEMENT_STORE" envDefault:"memory"`
	JobStore         string `env:"JOB_STORE" envDefault:"memory"`
	BlobDriver       string `env:"BLOB_DRIVER" envDefault:"none"`
	EmailDriver      string `env:"EMAIL_DRIVER" envDefault:"dev"`

	FreeQuota       int64         `env:"FREE_MONTHLY_QUOTA" envDefault:"5"`
	TrialDuration   time.Duration `env:"TRIAL_DURATION" envDefault:"168h"`
	ProviderTimeout time.Duration `env:"BILLING_PROVIDER_TIMEOUT" envDefault:"5s"`
	ResetInterval   time.Duration `env:"MONTHLY_RESET_INTERVAL" envDefault:"1h"`

	// imported and uploaded models are written here before any mirroring
	FilesDir        string        `env:"FILES_DIR" envDefault:"./data/models"`
	DownloadTimeout time.Duration `env:"IMPORT_DOWNLOAD_TIMEOUT" envDefault:"60s"`
	MaxDownloadSize int64         `env:"IMPORT_MAX_DOWNLOAD_SIZE" envDefault:"104857600"`
	JobRetention    time.Duration `env:"JOB_RETENTION" envDefault:"24h"`
	SweepInterval   time.Duration `env:"JOB_SWEEP_INTERVAL" envDefault:"1h"`
	SignedURLTTL    time.Duration `env:"BLOB_SIGNED_URL_TTL" envDefault:"168h"`
}

var (
	entitlementStores = []string{"memory", "firestore", "mongo"}
	jobStores         = []string{"memory", "redis"}
	blobDrivers       = []string{"none", "local", "s3", "gcs"}
	emailDrivers      = []string{"dev", "postmark", "sendgrid"}
)

func (c appConfig) validate() error {
	for _, sel := range []struct {
		name, value string
		allowed     []string
	}{
		{"ENTITLEMENT_STORE", c.EntitlementStore, entitlementStores},
		{"JOB_STORE", c.JobStore, jobStores},
		{"BLOB_DRIVER", c.BlobDriver, blobDrivers},
		{"EMAIL_DRIVER", c.EmailDriver, emailDrivers},
	} {
		if !slices.Contains(sel.allowed, sel.value) {
			return fmt.Errorf("%s=%q: expected one of %v", sel.name, sel.value, sel.allowed)
		}
	}
	if c.FreeQuota < 0 {
		return fmt.Errorf("FREE_MONTHLY_QUOTA must not be negative")
	}
	return nil
}

func (c appConfig) entitlementOptions() []entitlement.ServiceOption {
	return []entitlement.ServiceOption{
		entitlement.WithFreeQuota(c.FreeQuota),
		entitlement.WithTrialDuration(c.TrialDuration),
		entitlement.WithProviderTimeout(c.ProviderTimeout),
	}
}

func (c appConfig) trackerOptions() []importjob.Option {
	return []importjob.Option{
		importjob.WithDownloadTimeout(c.DownloadTimeout),
		importjob.WithMaxDownloadSize(c.MaxDownloadSize),
		importjob.WithRetention(c.JobRetention),
		importjob.WithSweepInterval(c.SweepInterval),
	}
}

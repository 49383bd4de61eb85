package engine

import (
	"path/filepath"

	"github.com/iotaledger/hive.go/app"
	"github.com/iotaledger/hive.go/kvstore"
	"github.com/iotaledger/hive.go/kvstore/mapdb"
	"go.uber.org/dig"
	"golang.org/x/time/rate"

	"github.com/veilswap/veilcore/internal/crypto"
	"github.com/veilswap/veilcore/internal/interfaces"
	"github.com/veilswap/veilcore/internal/monitoring"
	"github.com/veilswap/veilcore/internal/service"
)

func init() {
	Component = &app.Component{
		Name:     "VeilCore-Engine",
		DepsFunc: func(cDeps dependencies) { deps = cDeps },
		Params:   params,
		IsEnabled: func(_ *dig.Container) bool {
			return ParamsEngine.Enabled
		},
		Provide:   provide,
		Configure: configure,
	}
}

var (
	Component *app.Component
	deps      dependencies
	engineSvc *service.Service
)

type dependencies struct {
	dig.In

	Store   kvstore.KVStore
	Metrics *monitoring.MetricsCollector
}

func provide(c *dig.Container) error {
	if err := c.Provide(func() kvstore.KVStore {
		return mapdb.NewMapDB()
	}); err != nil {
		return err
	}

	return c.Provide(func() *monitoring.MetricsCollector {
		return monitoring.NewMetricsCollector(Component.App().NewLogger("Metrics"))
	})
}

func configure() error {
	level, err := interfaces.PrivacyLevelFromString(ParamsEngine.PrivacyLevel)
	if err != nil {
		return err
	}

	// The master secret is provisioned out of band (see tools/veil-keygen);
	// a missing secret is fatal, there is no degraded mode without it.
	keyStore, err := crypto.NewKeyStore(filepath.Join(ParamsEngine.DataDir, "keys"))
	if err != nil {
		return err
	}
	masterSecret, err := keyStore.Load()
	if err != nil {
		Component.LogErrorf("cannot load master secret from %s (provision one with veil-keygen): %s", keyStore.Path(), err)
		return err
	}

	config := &service.ServiceConfig{
		PrivacyLevel:   level,
		CodecSalt:      []byte(ParamsEngine.CodecSalt),
		SubmissionRate: rate.Limit(ParamsEngine.SubmissionsPerSecond),
		AuditLogPath:   ParamsEngine.AuditLogPath,
	}

	engineSvc, err = service.NewService(
		Component.App().NewLogger("VeilCore"),
		deps.Store,
		masterSecret,
		config,
	)
	if err != nil {
		Component.LogErrorf("failed to create engine service: %s", err)
		return err
	}

	engineSvc.WithMetrics(deps.Metrics)

	crypto.ClearBytes(masterSecret)

	Component.LogInfof("privacy engine configured (level=%s)", level)

	return nil
}

// Service returns the configured engine service.
func Service() *service.Service {
	return engineSvc
}

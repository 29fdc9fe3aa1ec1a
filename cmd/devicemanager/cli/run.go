package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sgnls/devicemanager/internal/adminstate"
	"github.com/sgnls/devicemanager/internal/cancel"
	"github.com/sgnls/devicemanager/internal/config"
	"github.com/sgnls/devicemanager/internal/domainbinder"
	"github.com/sgnls/devicemanager/internal/launcher"
	"github.com/sgnls/devicemanager/internal/logging"
	"github.com/sgnls/devicemanager/internal/profile"
	"github.com/sgnls/devicemanager/internal/profile/fixture"
	"github.com/sgnls/devicemanager/internal/registration"
	"github.com/sgnls/devicemanager/internal/registry"
	"github.com/sgnls/devicemanager/internal/remote/wsrpc"
	"github.com/sgnls/devicemanager/internal/shutdown"
	"github.com/sgnls/devicemanager/internal/shutdownsignal"
	"github.com/sgnls/devicemanager/internal/supervisor"
)

const reapChannelBuffer = 64

func runRun(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("devicemanager: loading config: %w", err)
	}
	if dcdFile != "" {
		cfg.DCDFile = dcdFile
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("devicemanager: %w", err)
	}

	log := logging.New(logVerbosity)

	if err := supervisor.CheckCache(cfg.SDRCache); err != nil {
		return fmt.Errorf("devicemanager: %w", err)
	}

	doc, err := fixture.Load(cfg.DCDFile)
	if err != nil {
		return fmt.Errorf("devicemanager: loading node profile: %w", err)
	}
	loader := fixture.NewLoader(doc)
	node := doc.NodeProfile()
	host := currentHostFacts()

	managerProfile, err := loader.LoadProgramProfile(node.ManagerSoftPkg)
	if err != nil {
		return fmt.Errorf("devicemanager: loading manager's own program profile: %w", err)
	}
	resolver := profile.NewResolver(loader)
	standalone, composite, warnings, _, err := resolver.Plan(node, managerProfile, host)
	if err != nil {
		return fmt.Errorf("devicemanager: deployment planning failed: %w", err)
	}
	for _, w := range warnings {
		log.Infof("skipping placement: %s", w.String())
	}

	reg := registry.New()
	l := launcher.New(reapChannelBuffer)
	admin := adminstate.New()
	cancelFlag := &cancel.Flag{}

	client, err := wsrpc.Dial(cfg.DomainManagerURL)
	if err != nil {
		return fmt.Errorf("devicemanager: connecting to domain manager transport: %w", err)
	}
	defer client.Close()

	profiles := registration.NewPlanProfileStore(standalone, composite)
	registrar := &registration.Service{
		Registry:       reg,
		Admin:          admin,
		Profiles:       profiles,
		NameDirectory:  client,
		RemoteRegistry: client,
		ManagerContext: node.Name,
		Log:            log,
		ClientWaitTime: cfg.ClientWaitTime(),
	}

	binder := domainbinder.New(client, client, cancelFlag, log, cfg.DomainName, node.Name)
	binder.ClientWaitTime = cfg.ClientWaitTime()
	shutdownEngine := shutdown.New(reg, l, log)
	shutdownEngine.DeviceForceQuitTime = cfg.DeviceForceQuitTime()
	shutdownEngine.NameDirectory = client
	shutdownEngine.ManagerContext = node.Name

	identity := supervisor.Identity{
		Identifier:                 node.ID,
		Label:                      node.Name,
		DeviceConfigurationProfile: node.ManagerSoftPkg,
		DomMgr:                     cfg.DomainName,
		FileSys:                    cfg.SDRCache,
	}
	sup := supervisor.New(admin, reg, l, registrar, binder, shutdownEngine, cancelFlag, log, identity)

	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	go sup.WatchReaps(watchCtx)

	if err := sup.Start(ctx, standalone, composite, os.Environ()); err != nil {
		return fmt.Errorf("devicemanager: startup failed: %w", err)
	}
	log.Infof("device manager %s registered with domain %s", node.Name, cfg.DomainName)

	sig := <-shutdownsignal.WaitForSignal()
	log.Infof("received %s, shutting down", sig)
	sup.RequestShutdown(ctx)
	log.Infof("shutdown complete")
	return nil
}

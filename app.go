package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"betsyMixer/internal/application/bmix"
	"betsyMixer/internal/application/compositor"
	"betsyMixer/internal/application/persistence"
	"betsyMixer/internal/application/processor"
	"betsyMixer/internal/application/tpm2"
	"betsyMixer/internal/config"
	"betsyMixer/internal/domain/layer"
	"betsyMixer/internal/domain/sign"
	domainTile "betsyMixer/internal/domain/tile"
	"betsyMixer/internal/infrastructure/liveness"
	"betsyMixer/internal/infrastructure/preview"
	infraTile "betsyMixer/internal/infrastructure/tile"
	"betsyMixer/internal/infrastructure/udp"
	"betsyMixer/internal/logging"
	"betsyMixer/internal/simulator"
)

// Calques fixes, sous les calques BMIX.
const (
	layerPlasma = iota
	layerVideo
	layerTPM2
	firstBMIXLayer
)

const rawQueueSize = 256

// App relie les récepteurs, la boucle de dessin et les dalles.
type App struct {
	cfg     *config.Config
	cfgFile string

	tiles     []domainTile.Descriptor
	state     *sign.State
	sender    *infraTile.Sender
	layers    []*layer.Layer
	ring      *persistence.Ring
	processor *processor.Service
	hub       *preview.Hub
	faker     *simulator.Faker
}

// setupLogging installe le logger de la configuration, marqué d'un
// identifiant de lancement.
func setupLogging(cfg *config.Config) {
	l := logging.Setup(cfg.Log.Level, cfg.Log.Format, nil)
	logging.Set(l.With("run", uuid.NewString()))
}

// loadConfig charge la configuration et renvoie le fichier à surveiller
// (vide si les valeurs par défaut s'appliquent seules).
func loadConfig(path string) (*config.Config, string, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	if path == "" {
		if _, err := os.Stat(config.DefaultFile); err == nil {
			path = config.DefaultFile
		}
	}
	return cfg, path, nil
}

// openSign charge l'inventaire et ouvre les connexions vers les dalles.
func openSign(cfg *config.Config, state *sign.State) ([]domainTile.Descriptor, *infraTile.Sender, error) {
	tiles, err := config.LoadInventory(cfg.Inventory, config.InventoryOptions{
		PanelWidth:  cfg.Panel.Width,
		PanelHeight: cfg.Panel.Height,
		Zone:        cfg.Tiles.Zone,
	})
	if err != nil {
		return nil, nil, err
	}
	sender, err := infraTile.NewSender(tiles, infraTile.Options{
		Port:      cfg.Tiles.Port,
		Broadcast: config.WithZone(cfg.Tiles.Broadcast, cfg.Tiles.Zone),
		Bind:      cfg.Tiles.Bind,
		GainScale: cfg.Tiles.GainScale,
	}, state)
	if err != nil {
		return nil, nil, err
	}
	return tiles, sender, nil
}

func tpm2Options(c config.TPM2Config) (tpm2.Options, error) {
	mode, err := tpm2.ParseSizeMode(c.Mode)
	if err != nil {
		return tpm2.Options{}, err
	}
	order, err := tpm2.ParseChannelOrder(c.ChannelOrder)
	if err != nil {
		return tpm2.Options{}, err
	}
	return tpm2.Options{
		Mode:            mode,
		ChannelOrder:    order,
		HorizontalShift: c.HorizontalShift,
		AlphaOverlay:    c.AlphaOverlay,
		LumaThreshold:   uint8(c.LumaThreshold),
		Key:             c.KeyColor(),
		KeyTolerance:    uint8(c.KeyTolerance),
	}, nil
}

func NewApp(cfgPath string) (*App, error) {
	cfg, cfgFile, err := loadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	setupLogging(cfg)
	a := &App{cfg: cfg, cfgFile: cfgFile, state: sign.NewState()}
	logging.L().Info("App: démarrage du moteur", "panneau", fmt.Sprintf("%dx%d", cfg.Panel.Width, cfg.Panel.Height),
		"config", cfgFile)

	a.tiles, a.sender, err = openSign(cfg, a.state)
	if err != nil {
		return nil, err
	}

	w, h := cfg.Panel.Width, cfg.Panel.Height
	a.layers = []*layer.Layer{
		layerPlasma: layer.New("plasma", w, h, false),
		layerVideo:  layer.New("video", w, h, false),
		layerTPM2:   layer.New("tpm2", w, h, cfg.TPM2.AlphaOverlay),
	}
	for _, l := range cfg.BMIX.Layers {
		a.layers = append(a.layers, layer.New(l.Name, w, h, l.Alpha))
	}

	a.ring = persistence.NewRing(w, h, cfg.Persistence.Capacity)
	a.applyPersistence(cfg.Persistence)

	plasma := simulator.NewPlasma(w, h, time.Now())
	plasma.SetClock(true)
	opts := processor.Options{FallbackInterval: cfg.Compositor.FallbackInterval, Filler: plasma}
	if cfg.Preview.Enabled {
		a.hub = preview.NewHub()
		opts.Preview = a.hub
	}
	a.processor = processor.NewService(a.layers, compositor.New(w, h, cfg.Compositor.Freshness), a.ring, a.sender, opts)
	a.faker = simulator.NewFaker(a.layers[layerVideo], a.processor)
	return a, nil
}

func (a *App) applyPersistence(p config.PersistenceConfig) {
	a.ring.SetEnabled(p.Enabled)
	a.ring.SetIntelligent(p.Intelligent)
	a.ring.SetLinesPerGroup(p.LinesPerGroup)
}

// applyConfig réapplique les réglages modifiables à chaud.
func (a *App) applyConfig(cfg *config.Config) {
	a.sender.SetGainScale(cfg.Tiles.GainScale)
	if level := uint8(cfg.Tiles.HardwareGain); level != a.state.GainLevel() {
		if err := a.sender.SetGain(level); err != nil {
			logging.L().Warn("App: gain matériel non appliqué", "gain", level, "err", err)
		}
	}
	a.applyPersistence(cfg.Persistence)
	a.layers[layerTPM2].SetAlpha(cfg.TPM2.AlphaOverlay)
}

// startReceivers ouvre un socket par calque BMIX et le socket TPM2.NET.
func (a *App) startReceivers(ctx context.Context) error {
	for i, lc := range a.cfg.BMIX.Layers {
		ch := make(chan udp.RawPacket, rawQueueSize)
		l, err := udp.NewListener(lc.Name, lc.Port, ch)
		if err != nil {
			return err
		}
		l.Start(ctx)
		bmix.NewService(ch, a.layers[firstBMIXLayer+i], a.processor).Start(ctx)
	}

	if !a.cfg.TPM2.Enabled {
		return nil
	}
	opts, err := tpm2Options(a.cfg.TPM2)
	if err != nil {
		return err
	}
	ch := make(chan udp.RawPacket, rawQueueSize)
	l, err := udp.NewDualStackListener("tpm2", a.cfg.TPM2.Port, ch)
	if err != nil {
		return err
	}
	l.Start(ctx)
	tpm2.NewService(ch, a.layers[layerTPM2], opts, a.processor).Start(ctx)
	return nil
}

// Run bloque jusqu'à l'annulation du contexte ou l'échec d'un composant.
// pattern lance une mire dans le calque vidéo ; console lit des mires sur
// l'entrée standard.
func (a *App) Run(ctx context.Context, pattern string, console io.Reader) error {
	defer a.sender.Close()
	defer a.faker.Stop()

	// Arrête aussi les receveurs déjà lancés si un bind échoue.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	if err := a.startReceivers(ctx); err != nil {
		return err
	}

	if err := a.sender.SetGain(uint8(a.cfg.Tiles.HardwareGain)); err != nil {
		logging.L().Warn("App: gain matériel non appliqué", "err", err)
	}

	g.Go(func() error { return a.processor.Run(ctx) })

	if a.cfg.Liveness.Enabled {
		lc := a.cfg.Liveness
		first, last := a.tiles[0].Address, a.tiles[len(a.tiles)-1].Address
		mon := liveness.NewMonitor(first, last, &liveness.ICMPPinger{Privileged: lc.Privileged}, a.sender, a.state,
			liveness.Options{Interval: lc.Interval, Timeout: lc.Timeout, Grace: lc.Grace, Settle: lc.Settle})
		g.Go(func() error { return mon.Run(ctx) })
	} else {
		logging.L().Warn("App: surveillance désactivée, panneau supposé en ligne")
		a.state.SetOnline(true)
	}

	if a.hub != nil {
		g.Go(func() error { return a.hub.Serve(ctx, a.cfg.Preview.Addr) })
	}

	if a.cfgFile != "" {
		g.Go(func() error { return config.Watch(ctx, a.cfgFile, a.applyConfig) })
	}

	if pattern == "" {
		pattern = a.cfg.Faker.Pattern
	}
	if pattern != "" {
		if err := a.faker.SendTestPattern(pattern); err != nil {
			return err
		}
	}

	if console != nil {
		go a.readConsole(ctx, console)
	}

	logging.L().Info("App: système entièrement démarré", "calques", len(a.layers), "dalles", len(a.tiles))
	err := g.Wait()
	logging.L().Info("App: arrêt terminé")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// readConsole applique une mire par ligne lue.
func (a *App) readConsole(ctx context.Context, r io.Reader) {
	fmt.Printf("Mires disponibles : %s\n", strings.Join(simulator.Patterns, ", "))
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		command := strings.TrimSpace(scanner.Text())
		if command == "" {
			continue
		}
		if err := a.faker.SendTestPattern(command); err != nil {
			fmt.Println(err)
		}
	}
}

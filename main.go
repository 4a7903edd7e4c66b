package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"betsyMixer/internal/application/tilemonitor"
	"betsyMixer/internal/config"
	"betsyMixer/internal/domain/sign"
	"betsyMixer/internal/infrastructure/liveness"
	infraTile "betsyMixer/internal/infrastructure/tile"
	"betsyMixer/internal/infrastructure/udp"
)

var (
	configPath  string
	pattern     string
	console     bool
	exportPath  string
	pingTimeout time.Duration
	monitorPort int
	reportEvery time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "betsymixer",
	Short: "Moteur de mixage pour le panneau LED Betsy",
	Long: `betsymixer reçoit des calques BMIX et un flux TPM2.NET, les superpose
et envoie l'image aux dalles du panneau.

Sans sous-commande, lance le moteur jusqu'à Ctrl-C.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		app, err := NewApp(configPath)
		if err != nil {
			return err
		}
		if console {
			return app.Run(ctx, pattern, os.Stdin)
		}
		return app.Run(ctx, pattern, nil)
	},
}

var gainCmd = &cobra.Command{
	Use:   "gain <0-255>",
	Short: "Diffuse le gain matériel aux dalles",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		level, err := strconv.ParseUint(args[0], 10, 8)
		if err != nil {
			return fmt.Errorf("gain %q: entier de 0 à 255 attendu", args[0])
		}
		sender, err := adminSender()
		if err != nil {
			return err
		}
		defer sender.Close()
		if err := sender.SetGain(uint8(level)); err != nil {
			return err
		}
		fmt.Printf("%s gain %d diffusé\n", color.GreenString("✓"), level)
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Redémarre le firmware des dalles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sender, err := adminSender()
		if err != nil {
			return err
		}
		defer sender.Close()
		if err := sender.Reset(); err != nil {
			return err
		}
		fmt.Printf("%s reset diffusé\n", color.GreenString("✓"))
		return nil
	},
}

var tilesCmd = &cobra.Command{
	Use:   "tiles",
	Short: "Affiche l'inventaire des dalles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		tiles, err := config.LoadInventory(cfg.Inventory, config.InventoryOptions{
			PanelWidth:  cfg.Panel.Width,
			PanelHeight: cfg.Panel.Height,
			Zone:        cfg.Tiles.Zone,
		})
		if err != nil {
			return err
		}

		header := color.New(color.Bold)
		header.Printf("%-4s %-32s %5s %5s %8s %s\n", "#", "Adresse", "X", "Y", "Série", "MAC")
		for i, t := range tiles {
			fmt.Printf("%-4d %-32s %5d %5d %8d %s\n", i, t.Address, t.X, t.Y, t.Serial, t.MAC)
		}

		if exportPath != "" {
			if err := config.SaveInventory(exportPath, tiles); err != nil {
				return err
			}
			fmt.Printf("%s %d dalles exportées vers %s\n", color.GreenString("✓"), len(tiles), exportPath)
		}
		return nil
	},
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Vérifie la présence de chaque dalle",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		tiles, err := config.LoadInventory(cfg.Inventory, config.InventoryOptions{
			PanelWidth:  cfg.Panel.Width,
			PanelHeight: cfg.Panel.Height,
			Zone:        cfg.Tiles.Zone,
		})
		if err != nil {
			return err
		}

		pinger := &liveness.ICMPPinger{Privileged: cfg.Liveness.Privileged}
		down := 0
		for _, t := range tiles {
			err := pinger.Ping(cmd.Context(), t.Address, pingTimeout)
			if err != nil {
				down++
				fmt.Printf("%s %-32s %v\n", color.RedString("✗"), t.Address, err)
				continue
			}
			fmt.Printf("%s %s\n", color.GreenString("✓"), t.Address)
		}
		if down > 0 {
			return fmt.Errorf("%d dalle(s) injoignable(s) sur %d", down, len(tiles))
		}
		return nil
	},
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Écoute le trafic destiné aux dalles et affiche les images reçues",
	Long: `monitor se place à la place des dalles : il reçoit les données, les
swaps et les commandes, et affiche un résumé par émetteur.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		setupLogging(cfg)
		port := monitorPort
		if port == 0 {
			port = cfg.Tiles.Port
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		ch := make(chan udp.RawPacket, rawQueueSize)
		l, err := udp.NewDualStackListener("monitor", port, ch)
		if err != nil {
			return err
		}
		l.Start(ctx)
		svc := tilemonitor.NewService(ch)
		svc.Start(ctx)

		if reportEvery <= 0 {
			reportEvery = time.Second
		}
		ticker := time.NewTicker(reportEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				printReport(svc.Report())
			}
		}
	},
}

func printReport(r tilemonitor.Report) {
	gain := "?"
	if r.Gain >= 0 {
		gain = strconv.Itoa(r.Gain)
	}
	color.New(color.Bold).Printf("swaps %d  gain %s  resets %d  ignorés %d\n", r.Swaps, gain, r.Resets, r.Invalid)
	for _, src := range r.Sources {
		mark := color.GreenString("●")
		if src.Incomplete > 0 {
			mark = color.YellowString("●")
		}
		fmt.Printf("  %s %-40s images %6d  incomplètes %4d  pixel0 %v\n",
			mark, src.Address, src.Frames, src.Incomplete, src.Level)
	}
}

// adminSender ouvre les connexions vers les dalles pour une commande
// ponctuelle, avec le logger de la configuration.
func adminSender() (*infraTile.Sender, error) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	setupLogging(cfg)
	_, sender, err := openSign(cfg, sign.NewState())
	return sender, err
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "fichier de configuration (défaut: "+config.DefaultFile+")")
	rootCmd.Flags().StringVar(&pattern, "pattern", "", "mire de test dans le calque vidéo")
	rootCmd.Flags().BoolVar(&console, "console", false, "lit des mires sur l'entrée standard")
	tilesCmd.Flags().StringVar(&exportPath, "export", "", "exporte l'inventaire vers un fichier .xlsx")
	pingCmd.Flags().DurationVar(&pingTimeout, "timeout", liveness.DefaultTimeout, "délai de réponse par dalle")
	monitorCmd.Flags().IntVar(&monitorPort, "port", 0, "port d'écoute (défaut: tiles.port)")
	monitorCmd.Flags().DurationVar(&reportEvery, "interval", time.Second, "intervalle d'affichage")

	rootCmd.AddCommand(gainCmd, resetCmd, tilesCmd, pingCmd, monitorCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Erreur:"), err)
		os.Exit(1)
	}
}

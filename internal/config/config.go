// Package config charge la configuration du moteur (viper, YAML, variables
// BETSY_*) et l'inventaire des dalles.
package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"betsyMixer/internal/logging"
)

// DefaultFile est cherché dans le répertoire courant quand aucun chemin
// n'est donné.
const DefaultFile = "betsymixer.yaml"

type Config struct {
	Panel       PanelConfig       `mapstructure:"panel"`
	Inventory   string            `mapstructure:"inventory"`
	Tiles       TilesConfig       `mapstructure:"tiles"`
	Liveness    LivenessConfig    `mapstructure:"liveness"`
	BMIX        BMIXConfig        `mapstructure:"bmix"`
	TPM2        TPM2Config        `mapstructure:"tpm2"`
	Compositor  CompositorConfig  `mapstructure:"compositor"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
	Preview     PreviewConfig     `mapstructure:"preview"`
	Faker       FakerConfig       `mapstructure:"faker"`
	Log         LogConfig         `mapstructure:"log"`
}

type PanelConfig struct {
	Width  int `mapstructure:"width"`
	Height int `mapstructure:"height"`
}

type TilesConfig struct {
	Port      int    `mapstructure:"port"`
	Broadcast string `mapstructure:"broadcast"`
	Bind      string `mapstructure:"bind"`
	// Zone est ajoutée aux adresses lien-local qui n'en ont pas.
	Zone         string  `mapstructure:"zone"`
	GainScale    float64 `mapstructure:"gain_scale"`
	HardwareGain int     `mapstructure:"hardware_gain"`
}

type LivenessConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Interval   time.Duration `mapstructure:"interval"`
	Timeout    time.Duration `mapstructure:"timeout"`
	Grace      time.Duration `mapstructure:"grace"`
	Settle     time.Duration `mapstructure:"settle"`
	Privileged bool          `mapstructure:"privileged"`
}

type BMIXConfig struct {
	Layers []BMIXLayer `mapstructure:"layers"`
}

type BMIXLayer struct {
	Name  string `mapstructure:"name"`
	Port  int    `mapstructure:"port"`
	Alpha bool   `mapstructure:"alpha"`
}

type TPM2Config struct {
	Enabled         bool   `mapstructure:"enabled"`
	Port            int    `mapstructure:"port"`
	Mode            string `mapstructure:"mode"`
	ChannelOrder    string `mapstructure:"channel_order"`
	HorizontalShift int    `mapstructure:"horizontal_shift"`
	AlphaOverlay    bool   `mapstructure:"alpha_overlay"`
	LumaThreshold   int    `mapstructure:"luma_threshold"`
	Key             []int  `mapstructure:"key"`
	KeyTolerance    int    `mapstructure:"key_tolerance"`
}

type CompositorConfig struct {
	Freshness        time.Duration `mapstructure:"freshness"`
	FallbackInterval time.Duration `mapstructure:"fallback_interval"`
}

type PersistenceConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	Intelligent   bool `mapstructure:"intelligent"`
	LinesPerGroup int  `mapstructure:"lines_per_group"`
	// Capacity à 0 : hauteur du panneau.
	Capacity int `mapstructure:"capacity"`
}

type PreviewConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

type FakerConfig struct {
	Pattern string `mapstructure:"pattern"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("panel.width", 162)
	v.SetDefault("panel.height", 108)
	v.SetDefault("inventory", "inventory.json")

	v.SetDefault("tiles.port", 48757)
	v.SetDefault("tiles.broadcast", "ff02::1")
	v.SetDefault("tiles.bind", "")
	v.SetDefault("tiles.zone", "")
	v.SetDefault("tiles.gain_scale", 0.2)
	v.SetDefault("tiles.hardware_gain", 100)

	v.SetDefault("liveness.enabled", true)
	v.SetDefault("liveness.interval", "1s")
	v.SetDefault("liveness.timeout", "120ms")
	v.SetDefault("liveness.grace", "3s")
	v.SetDefault("liveness.settle", "500ms")
	v.SetDefault("liveness.privileged", false)

	v.SetDefault("bmix.layers", []map[string]any{
		{"name": "bmix-fond", "port": 2329, "alpha": true},
		{"name": "bmix-avant", "port": 2324, "alpha": false},
		{"name": "bmix-chroma", "port": 2330, "alpha": true},
		{"name": "bmix-dessus", "port": 2331, "alpha": false},
	})

	v.SetDefault("tpm2.enabled", true)
	v.SetDefault("tpm2.port", 65506)
	v.SetDefault("tpm2.mode", "scale_nearest")
	v.SetDefault("tpm2.channel_order", "RGB")
	v.SetDefault("tpm2.horizontal_shift", 34)
	v.SetDefault("tpm2.alpha_overlay", true)
	v.SetDefault("tpm2.luma_threshold", 0)
	v.SetDefault("tpm2.key", []int{0, 0, 0})
	v.SetDefault("tpm2.key_tolerance", 6)

	v.SetDefault("compositor.freshness", "5s")
	v.SetDefault("compositor.fallback_interval", "25ms")

	v.SetDefault("persistence.enabled", false)
	v.SetDefault("persistence.intelligent", false)
	v.SetDefault("persistence.lines_per_group", 1)
	v.SetDefault("persistence.capacity", 0)

	v.SetDefault("preview.enabled", false)
	v.SetDefault("preview.addr", ":8080")

	v.SetDefault("faker.pattern", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("BETSY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("lecture de la configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load lit path, ou betsymixer.yaml dans le répertoire courant si path est
// vide. Sans fichier, les valeurs par défaut s'appliquent.
func Load(path string) (*Config, error) {
	if path != "" {
		return LoadFromPath(path)
	}
	v := newViper()
	v.SetConfigName(strings.TrimSuffix(DefaultFile, ".yaml"))
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("lecture de %s: %w", DefaultFile, err)
		}
	}
	return decode(v)
}

// LoadFromPath exige que le fichier existe.
func LoadFromPath(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("lecture de %s: %w", path, err)
	}
	return decode(v)
}

// Default renvoie les valeurs par défaut seules, sans fichier ni environnement.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	return cfg
}

func (c *Config) Validate() error {
	if c.Panel.Width <= 0 || c.Panel.Height <= 0 {
		return fmt.Errorf("config: panneau %dx%d invalide", c.Panel.Width, c.Panel.Height)
	}
	if c.Tiles.HardwareGain < 0 || c.Tiles.HardwareGain > 255 {
		return fmt.Errorf("config: tiles.hardware_gain %d hors de 0..255", c.Tiles.HardwareGain)
	}
	if len(c.TPM2.Key) != 0 && len(c.TPM2.Key) != 3 {
		return fmt.Errorf("config: tpm2.key doit avoir 3 composantes, %d reçues", len(c.TPM2.Key))
	}
	if c.TPM2.LumaThreshold < 0 || c.TPM2.LumaThreshold > 255 {
		return fmt.Errorf("config: tpm2.luma_threshold %d hors de 0..255", c.TPM2.LumaThreshold)
	}
	if c.TPM2.KeyTolerance < 0 || c.TPM2.KeyTolerance > 255 {
		return fmt.Errorf("config: tpm2.key_tolerance %d hors de 0..255", c.TPM2.KeyTolerance)
	}
	seen := make(map[int]string)
	for _, l := range c.BMIX.Layers {
		if l.Port <= 0 || l.Port > 65535 {
			return fmt.Errorf("config: port BMIX %d invalide (%s)", l.Port, l.Name)
		}
		if other, ok := seen[l.Port]; ok {
			return fmt.Errorf("config: port BMIX %d utilisé par %s et %s", l.Port, other, l.Name)
		}
		seen[l.Port] = l.Name
	}
	if c.TPM2.Enabled {
		if other, ok := seen[c.TPM2.Port]; ok {
			return fmt.Errorf("config: port TPM2 %d déjà utilisé par %s", c.TPM2.Port, other)
		}
	}
	return nil
}

// KeyColor renvoie la clé de couleur TPM2 (noir si absente).
func (c TPM2Config) KeyColor() [3]byte {
	var k [3]byte
	for i := 0; i < len(c.Key) && i < 3; i++ {
		k[i] = byte(c.Key[i])
	}
	return k
}

// Watch relit path à chaque modification et passe la nouvelle configuration
// à onChange. Une version invalide est ignorée. Bloque jusqu'à l'annulation
// du contexte.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("lecture de %s: %w", path, err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := decode(v)
		if err != nil {
			logging.L().Warn("Config: modification ignorée", "fichier", e.Name, "err", err)
			return
		}
		logging.L().Info("Config: fichier modifié, réglages réappliqués", "fichier", e.Name)
		onChange(cfg)
	})
	v.WatchConfig()

	<-ctx.Done()
	return nil
}

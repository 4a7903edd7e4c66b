package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Panel.Width != 162 || cfg.Panel.Height != 108 {
		t.Errorf("expected 162x108, got %dx%d", cfg.Panel.Width, cfg.Panel.Height)
	}
	if cfg.Tiles.GainScale != 0.2 {
		t.Errorf("expected gain scale 0.2, got %v", cfg.Tiles.GainScale)
	}
	if cfg.Liveness.Timeout != 120*time.Millisecond {
		t.Errorf("expected 120ms ping timeout, got %v", cfg.Liveness.Timeout)
	}
	if len(cfg.BMIX.Layers) != 4 {
		t.Fatalf("expected 4 BMIX layers, got %d", len(cfg.BMIX.Layers))
	}
	want := []int{2329, 2324, 2330, 2331}
	for i, l := range cfg.BMIX.Layers {
		if l.Port != want[i] {
			t.Errorf("layer %d: expected port %d, got %d", i, want[i], l.Port)
		}
	}
	if !cfg.BMIX.Layers[0].Alpha || cfg.BMIX.Layers[1].Alpha || !cfg.BMIX.Layers[2].Alpha {
		t.Errorf("unexpected alpha flags %+v", cfg.BMIX.Layers)
	}
	if cfg.TPM2.Port != 65506 || cfg.TPM2.HorizontalShift != 34 || cfg.TPM2.KeyTolerance != 6 {
		t.Errorf("unexpected TPM2 defaults %+v", cfg.TPM2)
	}
	if cfg.Compositor.Freshness != 5*time.Second {
		t.Errorf("expected 5s freshness, got %v", cfg.Compositor.Freshness)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected defaults to validate, got %v", err)
	}
}

func TestLoadFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "betsy.yaml")
	content := `
panel:
  width: 36
  height: 18
tiles:
  gain_scale: 0.5
persistence:
  enabled: true
  lines_per_group: 3
bmix:
  layers:
    - name: seul
      port: 4000
      alpha: true
tpm2:
  key: [10, 20, 30]
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.Panel.Width != 36 || cfg.Panel.Height != 18 {
		t.Errorf("expected 36x18, got %dx%d", cfg.Panel.Width, cfg.Panel.Height)
	}
	if cfg.Tiles.GainScale != 0.5 {
		t.Errorf("expected 0.5, got %v", cfg.Tiles.GainScale)
	}
	if !cfg.Persistence.Enabled || cfg.Persistence.LinesPerGroup != 3 {
		t.Errorf("unexpected persistence %+v", cfg.Persistence)
	}
	if len(cfg.BMIX.Layers) != 1 || cfg.BMIX.Layers[0].Port != 4000 {
		t.Errorf("unexpected layers %+v", cfg.BMIX.Layers)
	}
	if cfg.TPM2.KeyColor() != [3]byte{10, 20, 30} {
		t.Errorf("unexpected key %v", cfg.TPM2.KeyColor())
	}
	// Non surchargé : valeur par défaut.
	if cfg.Tiles.Port != 48757 {
		t.Errorf("expected default port, got %d", cfg.Tiles.Port)
	}
}

func TestLoadFromPathMissing(t *testing.T) {
	if _, err := LoadFromPath(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("BETSY_TILES_GAIN_SCALE", "0.7")
	path := filepath.Join(t.TempDir(), "c.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: debug\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Tiles.GainScale != 0.7 {
		t.Errorf("expected env override 0.7, got %v", cfg.Tiles.GainScale)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected debug, got %q", cfg.Log.Level)
	}
}

func TestValidateRejectsDuplicatePorts(t *testing.T) {
	cfg := Default()
	cfg.BMIX.Layers = append(cfg.BMIX.Layers, BMIXLayer{Name: "doublon", Port: 2329})
	if err := cfg.Validate(); err == nil {
		t.Error("expected duplicate BMIX port to be rejected")
	}

	cfg = Default()
	cfg.TPM2.Port = 2331
	if err := cfg.Validate(); err == nil {
		t.Error("expected TPM2 port clash to be rejected")
	}

	cfg = Default()
	cfg.Tiles.HardwareGain = 300
	if err := cfg.Validate(); err == nil {
		t.Error("expected hardware gain out of range to be rejected")
	}
}

func TestWatchReappliesChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "w.yaml")
	if err := os.WriteFile(path, []byte("tiles:\n  gain_scale: 0.1\n"), 0644); err != nil {
		t.Fatal(err)
	}

	changes := make(chan *Config, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Watch(ctx, path, func(c *Config) { changes <- c })

	// Laisser le temps au watcher de s'installer.
	time.Sleep(200 * time.Millisecond)
	if err := os.WriteFile(path, []byte("tiles:\n  gain_scale: 0.9\n"), 0644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case c := <-changes:
			if c.Tiles.GainScale == 0.9 {
				return
			}
		case <-deadline:
			t.Fatal("no change notification received")
		}
	}
}

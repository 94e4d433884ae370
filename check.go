package main

import (
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"eyetrack-go/internal/config"
	"eyetrack-go/internal/services"
	"eyetrack-go/internal/stimuli"

	"github.com/spf13/cobra"
)

var checkDataCmd = &cobra.Command{
	Use:   "check-data",
	Short: "Validate the trial lists and stimulus files",
	Long: `Load the configured trial and practice lists the way the server does,
print the counterbalancing groups and one example trial order, and check that
every picture and audio file the browser will request exists on disk.

Examples:
  eyetrack check-data --root /srv/study-2`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(projectRoot)
		if err != nil {
			return err
		}
		return checkData(cmd.OutOrStdout(), projectRoot, cfg, rand.New(rand.NewSource(time.Now().UnixNano())))
	},
}

func checkData(w io.Writer, root string, cfg *config.Config, rng *rand.Rand) error {
	d, err := services.LoadDesign(root, cfg)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "trials: %d\npractice: %d\n", len(d.Trials), len(d.Practice))

	if d.GroupField != "" {
		groups := stimuli.SplitByField(d.Trials, d.GroupField)
		fmt.Fprintf(w, "groups by %q: %d\n", d.GroupField, len(groups))
		for _, g := range groups {
			fmt.Fprintf(w, "  %v: %d trials\n", g[0][d.GroupField], len(g))
		}
	}
	if len(d.Trials) > 0 {
		group, order := d.Order(rng)
		if group != nil {
			fmt.Fprintf(w, "example group: %v\n", group)
		}
		fmt.Fprintf(w, "example order: %v\n", order)
	}

	manifest := stimuli.BuildManifest(d.Resolve, d.Practice, d.Trials)
	if cfg.Data.StimuliDir == "" {
		fmt.Fprintln(w, "stimuli_dir not set, skipping file check")
		return nil
	}
	dir := cfg.Data.StimuliDir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(root, dir)
	}
	base := cfg.Data.StimuliURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}

	var missing []string
	for _, url := range append(manifest.Images, manifest.Audio...) {
		name := strings.TrimPrefix(url, base)
		if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(name))); err != nil {
			missing = append(missing, name)
		}
	}
	fmt.Fprintf(w, "files: %d images, %d audio\n", len(manifest.Images), len(manifest.Audio))
	if len(missing) > 0 {
		sort.Strings(missing)
		for _, name := range missing {
			fmt.Fprintf(w, "  missing: %s\n", name)
		}
		return fmt.Errorf("%d stimulus files missing from %s", len(missing), dir)
	}
	fmt.Fprintln(w, "all stimulus files present")
	return nil
}

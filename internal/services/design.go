package services

import (
	"fmt"
	"math/rand"
	"path/filepath"

	"eyetrack-go/internal/config"
	"eyetrack-go/internal/options"
	"eyetrack-go/internal/stimuli"
	"eyetrack-go/internal/translate"
)

// Design is everything sessions share: the loaded trial lists, the merged
// experiment options and the message table.
type Design struct {
	Trials     []stimuli.Row
	Practice   []stimuli.Row
	Options    options.Options
	Translator *translate.Translator
	Resolve    stimuli.Resolver
	// TargetImage is the resolved custom calibration target, or "".
	TargetImage        string
	ShuffleFields      []string
	GroupField         string
	InitialCalibration bool
}

// LoadDesign reads the trial lists and translations named by cfg. Relative
// paths are taken from root.
func LoadDesign(root string, cfg *config.Config) (*Design, error) {
	opts, err := options.Merge(options.Defaults(), cfg.Experiment)
	if err != nil {
		return nil, fmt.Errorf("invalid experiment options: %w", err)
	}

	resolve := stimuli.URLResolver(cfg.Data.StimuliURL)
	d := &Design{
		Options:            opts,
		Translator:         translate.Default(),
		Resolve:            resolve,
		ShuffleFields:      cfg.Data.ShuffleFields,
		GroupField:         cfg.Data.GroupField,
		InitialCalibration: cfg.Data.InitialCalibration,
	}
	if opts.CustomCalibrationTarget != "" {
		d.TargetImage = resolve(opts.CustomCalibrationTarget)
	}

	if d.Trials, err = stimuli.Load(resolvePath(root, cfg.Data.TrialsFile), resolve); err != nil {
		return nil, fmt.Errorf("failed to load trials: %w", err)
	}
	if cfg.Data.PracticeFile != "" {
		if d.Practice, err = stimuli.Load(resolvePath(root, cfg.Data.PracticeFile), resolve); err != nil {
			return nil, fmt.Errorf("failed to load practice trials: %w", err)
		}
	}
	if cfg.Data.TranslationsFile != "" {
		if d.Translator, err = translate.LoadFile(resolvePath(root, cfg.Data.TranslationsFile), d.Translator); err != nil {
			return nil, fmt.Errorf("failed to load translations: %w", err)
		}
	}
	return d, nil
}

// Order draws a counterbalancing group, when a group field is set, and
// shuffles its trials. It returns the group value and the trial indices in
// presentation order.
func (d *Design) Order(rng *rand.Rand) (any, []int) {
	if d.GroupField == "" {
		return nil, stimuli.ShuffleIndices(d.Trials, d.ShuffleFields, rng)
	}
	group, idx := stimuli.AssignIndices(d.Trials, d.GroupField, rng)
	return group, stimuli.ShuffleSubset(d.Trials, idx, d.ShuffleFields, rng)
}

func resolvePath(root, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

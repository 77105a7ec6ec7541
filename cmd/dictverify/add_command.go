package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"dictverify/internal/fileutil"
	"dictverify/internal/volume"
)

func newAddCommand(ctx *commandContext) *cobra.Command {
	var manifest volume.Manifest
	var manifestPath string
	var copyInto bool

	cmd := &cobra.Command{
		Use:   "add FILE",
		Short: "Record a volume file's digest in a new manifest",
		Long: "Hash a dictionary volume and write its manifest. Volumes stored outside the\n" +
			"dictionary directory get a manifest inside it that points at the file.\n" +
			"Reuse the printed ID with --id when adding further volumes.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if strings.TrimSpace(manifest.Title) == "" {
				return errors.New("--title is required")
			}
			dataPath, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve volume path: %w", err)
			}
			info, err := os.Stat(dataPath)
			if err != nil {
				return fmt.Errorf("stat volume: %w", err)
			}
			if info.IsDir() {
				return fmt.Errorf("%s is a directory", dataPath)
			}

			if copyInto && !withinDir(cfg.Paths.DictionaryDir, dataPath) {
				copied := filepath.Join(cfg.Paths.DictionaryDir, filepath.Base(dataPath))
				if _, err := os.Stat(copied); err == nil {
					return fmt.Errorf("%s already exists", copied)
				}
				if _, err := fileutil.CopyFileVerified(dataPath, copied); err != nil {
					return fmt.Errorf("copy volume into dictionary directory: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Copied %s to %s\n", dataPath, copied)
				dataPath = copied
			}

			described, err := volume.Describe(dataPath, manifest)
			if err != nil {
				return err
			}
			target := strings.TrimSpace(manifestPath)
			if target == "" {
				target = volume.ManifestPathFor(dataPath)
				if !withinDir(cfg.Paths.DictionaryDir, dataPath) {
					target = filepath.Join(cfg.Paths.DictionaryDir, filepath.Base(target))
				}
			}
			if filepath.Dir(target) != filepath.Dir(dataPath) {
				described.File = dataPath
			}
			if _, err := os.Stat(target); err == nil {
				return fmt.Errorf("manifest already exists at %s", target)
			}
			if err := volume.WriteManifest(target, described); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote manifest %s\n", target)
			fmt.Fprintf(out, "Dictionary ID: %s (volume %d of %d)\n", described.DictionaryID, described.Volume, described.Of)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&manifest.Title, "title", "", "Dictionary title")
	flags.StringVar(&manifest.DictionaryID, "id", "", "Dictionary ID shared by all volumes (generated when empty)")
	flags.IntVar(&manifest.Volume, "volume", 1, "Volume number")
	flags.IntVar(&manifest.Of, "of", 0, "Total number of volumes (defaults to --volume)")
	flags.StringVar(&manifest.Version, "version", "", "Dictionary edition or version")
	flags.IntVar(&manifest.ArticleCount, "articles", 0, "Number of articles in the dictionary")
	flags.BoolVar(&copyInto, "copy", false, "Copy the volume into the dictionary directory first")
	flags.StringVar(&manifestPath, "manifest", "", "Manifest destination (defaults to the dictionary directory)")
	return cmd
}

func withinDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

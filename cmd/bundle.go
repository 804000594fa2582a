package cmd

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/gaitlab/osimctl/osim/bundle"
)

var (
	bundleProfile   string   // cmc, rra or so
	bundleReplace   []string // old=new substitutions for unresolvable references
	bundleDoNotCopy []string // roles left in place
	bundleRename    []string // role=filename
)

var bundleCmd = &cobra.Command{
	Use:   "bundle SETUP DESTINATION",
	Short: "Copy a setup file and every input it refers to into one directory",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		profile, ok := bundle.ProfileByName(bundleProfile)
		if !ok {
			logrus.Fatalf("Unknown profile %q (want cmc, rra or so)", bundleProfile)
		}
		replace, err := parseSubstitutions(bundleReplace)
		if err != nil {
			logrus.Fatalf("--replace: %v", err)
		}
		skip, err := parseRoles(bundleDoNotCopy)
		if err != nil {
			logrus.Fatalf("--do-not-copy: %v", err)
		}
		rename, err := parseRenames(bundleRename)
		if err != nil {
			logrus.Fatalf("--rename: %v", err)
		}

		m, err := bundle.Copy(args[0], args[1], bundle.Options{
			Profile:   profile,
			Replace:   replace,
			DoNotCopy: skip,
			Rename:    rename,
		})
		if err != nil {
			logrus.Fatalf("Bundling failed: %v", err)
		}
		printManifest(m)
	},
}

func printManifest(m *bundle.Manifest) {
	roles := make([]string, 0, len(m.Original))
	for r := range m.Original {
		roles = append(roles, string(r))
	}
	sort.Strings(roles)
	for _, r := range roles {
		role := bundle.Role(r)
		if dst, ok := m.Copied[role]; ok {
			fmt.Printf("%-20s %s -> %s\n", r, m.Original[role], dst)
		} else {
			fmt.Printf("%-20s %s (left in place)\n", r, m.Original[role])
		}
	}
}

func init() {
	bundleCmd.Flags().StringVar(&bundleProfile, "profile", "cmc", "Setup kind: cmc, rra or so")
	bundleCmd.Flags().StringArrayVar(&bundleReplace, "replace", nil, "old=new substitution tried on references that do not exist (can be repeated)")
	bundleCmd.Flags().StringSliceVar(&bundleDoNotCopy, "do-not-copy", nil, "Input roles to reference in place instead of copying")
	bundleCmd.Flags().StringArrayVar(&bundleRename, "rename", nil, "role=filename for a copied input (can be repeated)")

	rootCmd.AddCommand(bundleCmd)
}

package cmd

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/gaitlab/osimctl/osim/archive"
)

var (
	archiveGroup    string // slash-separated group path
	archiveTitle    string // title for created groups
	archiveAllowOne bool   // accept a single .sto file
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Store run outputs in a grouped table archive",
}

var archiveDockCmd = &cobra.Command{
	Use:   "dock ARCHIVE OUTPUT_DIR",
	Short: "Load every .sto file of a run directory as tables under --group",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		group := archive.ParseGroupPath(archiveGroup)
		if len(group) == 0 {
			logrus.Fatalf("--group is required")
		}
		a, err := archive.Open(args[0])
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		defer func() { _ = a.Close() }()

		docked, err := a.Dock(context.Background(), args[1], group, archive.DockOptions{
			AllowOne: archiveAllowOne,
			Title:    archiveTitle,
		})
		if err != nil {
			_ = a.Close()
			logrus.Fatalf("Docking failed: %v", err)
		}
		for _, ti := range docked {
			fmt.Printf("%s/%s\t%d rows\t%d columns\n", ti.Group, ti.Name, ti.Rows, len(ti.Columns))
		}
	},
}

var archiveListCmd = &cobra.Command{
	Use:   "ls ARCHIVE [GROUP]",
	Short: "List groups, or the tables in one group",
	Args:  cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := archive.Open(args[0])
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		defer func() { _ = a.Close() }()
		ctx := context.Background()

		if len(args) == 1 {
			groups, err := a.Groups(ctx)
			if err != nil {
				_ = a.Close()
				logrus.Fatalf("%v", err)
			}
			for _, g := range groups {
				fmt.Printf("%s\t%s\n", g.Path, g.Title)
			}
			return
		}
		tables, err := a.Tables(ctx, archive.ParseGroupPath(args[1]))
		if err != nil {
			_ = a.Close()
			logrus.Fatalf("%v", err)
		}
		for _, ti := range tables {
			fmt.Printf("%s\t%d rows\t%s\t%s\n", ti.Name, ti.Rows, ti.Source, ti.CreatedAt.Format("2006-01-02 15:04"))
		}
	},
}

func init() {
	archiveDockCmd.Flags().StringVar(&archiveGroup, "group", "", "Group path inside the archive, e.g. subject01/walk2/cmc")
	archiveDockCmd.Flags().StringVar(&archiveTitle, "title", "", "Title for groups created along the path")
	archiveDockCmd.Flags().BoolVar(&archiveAllowOne, "allow-one", false, "Accept a directory with a single .sto file")

	archiveCmd.AddCommand(archiveDockCmd, archiveListCmd)
	rootCmd.AddCommand(archiveCmd)
}

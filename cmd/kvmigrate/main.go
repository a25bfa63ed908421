package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ardaguler/kvmigrate/internal/config"
	"github.com/ardaguler/kvmigrate/internal/database"
	"github.com/ardaguler/kvmigrate/internal/migrate"
	"github.com/ardaguler/kvmigrate/internal/profiles"
	"github.com/ardaguler/kvmigrate/internal/schema"
	"github.com/ardaguler/kvmigrate/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:   "kvmigrate",
	Short: "Migrate key-value JSON exports into an existing SQLite schema",
	Long:  `kvmigrate reads a tree of exported JSON records, maps each record group onto a destination table, rewrites identifiers into sequential surrogate keys, and emits an idempotent SQL artifact.`,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Generate the SQL artifact from an export tree",
	RunE:  runMigrate,
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print the destination schema's foreign-key relationships",
	RunE:  runInspect,
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage saved migration configurations",
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved profiles",
	RunE:  runProfileList,
}

var profileSaveCmd = &cobra.Command{
	Use:   "save <name>",
	Short: "Save the current flags as a named profile",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfileSave,
}

var profileDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a saved profile",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfileDelete,
}

var profileManager = profiles.NewManager("")

var (
	configPath   string
	profileName  string
	databasePath string
	exportRoot   string
	outputPath   string
	noProgress   bool
	verbose      bool
)

func init() {
	for _, cmd := range []*cobra.Command{migrateCmd, inspectCmd, profileSaveCmd} {
		cmd.Flags().StringVar(&configPath, "config", "", "Path to a YAML configuration file")
		cmd.Flags().StringVar(&databasePath, "db", "", "Path to the destination SQLite database")
	}
	migrateCmd.Flags().StringVar(&profileName, "profile", "", "Name of a saved profile to load")
	migrateCmd.Flags().StringVar(&exportRoot, "export", "", "Path to the export directory tree")
	migrateCmd.Flags().StringVar(&outputPath, "output", "", "Path of the generated SQL file")
	migrateCmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable the progress bar")
	migrateCmd.Flags().BoolVar(&verbose, "verbose", false, "Enable verbose logging")

	inspectCmd.Flags().BoolVar(&verbose, "verbose", false, "Enable verbose logging")

	profileSaveCmd.Flags().StringVar(&exportRoot, "export", "", "Path to the export directory tree")
	profileSaveCmd.Flags().StringVar(&outputPath, "output", "", "Path of the generated SQL file")

	profileCmd.AddCommand(profileListCmd)
	profileCmd.AddCommand(profileSaveCmd)
	profileCmd.AddCommand(profileDeleteCmd)

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(profileCmd)

	cobra.OnInitialize(func() {
		rootCmd.SilenceUsage = true
		rootCmd.SilenceErrors = true
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func resolveConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error

	switch {
	case profileName != "":
		cfg, err = profileManager.Load(profileName)
	case configPath != "":
		cfg, err = config.LoadConfig(configPath)
	default:
		cfg = config.Default()
	}
	if err != nil {
		return nil, fmt.Errorf("cannot load config: %w", err)
	}

	if databasePath != "" {
		cfg.DatabasePath = databasePath
	}
	if exportRoot != "" {
		cfg.ExportRoot = exportRoot
	}
	if outputPath != "" {
		cfg.OutputPath = outputPath
	}

	return cfg, nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig()
	if err != nil {
		return err
	}

	log := logger.NewLogger(verbose)
	service := migrate.NewService(cfg, log, !noProgress)

	report, err := service.Run()
	if err != nil {
		return err
	}

	fmt.Println("\nFiles processed per table:")
	for _, line := range report.Lines() {
		fmt.Println(line)
	}
	if report.Fallbacks > 0 {
		fmt.Printf("\n%d values could not be coerced and were emitted as text\n", report.Fallbacks)
	}
	fmt.Printf("\nSQL statements have been generated to %s\n", report.OutputPath)
	return nil
}

func runInspect(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig()
	if err != nil {
		return err
	}

	log := logger.NewLogger(verbose)
	conn, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("%w: %v", schema.ErrSchemaUnavailable, err)
	}
	defer conn.Close()

	model, err := schema.NewExtractor(conn, log).Extract()
	if err != nil {
		return err
	}

	relationships := model.Relationships()
	fmt.Println("Database Table Relationships Summary:")
	fmt.Println("-----------------------------------")
	if len(relationships) == 0 {
		fmt.Println("No foreign key relationships found.")
	} else {
		names := make([]string, 0, len(relationships))
		for name := range relationships {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("Table: %s\n", name)
			for _, rel := range relationships[name] {
				fmt.Printf("  - %s references %s.%s\n", rel.Column, rel.ReferencedTable, rel.ReferencedColumn)
			}
		}
	}
	fmt.Println("-----------------------------------")
	return nil
}

func runProfileList(cmd *cobra.Command, args []string) error {
	saved, err := profileManager.List()
	if err != nil {
		return err
	}
	if len(saved) == 0 {
		fmt.Printf("No profiles found under %s\n", profileManager.Directory())
		return nil
	}
	for _, profile := range saved {
		fmt.Printf("%s\t%s\n", profile.Name, profile.Path)
	}
	return nil
}

func runProfileSave(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig()
	if err != nil {
		return err
	}

	profile, err := profileManager.Save(args[0], cfg)
	if err != nil {
		return err
	}
	fmt.Printf("Profile saved to %s\n", profile.Path)
	return nil
}

func runProfileDelete(cmd *cobra.Command, args []string) error {
	if err := profileManager.Delete(args[0]); err != nil {
		return err
	}
	fmt.Printf("Profile %s deleted\n", args[0])
	return nil
}

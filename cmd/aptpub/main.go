// Package main implements the aptpub command-line tool for publishing
// Debian packages to an S3-hosted APT repository.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/aptpub/aptpub/internal/blob"
	"github.com/aptpub/aptpub/internal/publish"
	"github.com/aptpub/aptpub/internal/repo"
	"github.com/aptpub/aptpub/internal/sign"
)

var (
	// Build information - can be set via build flags
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"

	// Command-line flags
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "aptpub",
	Short: "Publish Debian packages to an S3-hosted APT repository",
	Long: `aptpub publishes a directory of .deb files as a signed APT repository
in an S3 bucket. Repository credentials and the publish target are read
from environment variables; ambient options come from an optional TOML
configuration file.

Required environment variables:
  APT_SIGNING_KEY, APT_SIGNING_PASSPHRASE,
  APT_S3_REGION, APT_S3_BUCKET, APT_S3_ACL, APT_S3_PREFIX,
  AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY,
  APT_PACKAGE_DIR

Optional:
  APT_CODENAME (default "bionic")`,
}

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish the configured package directory",
	Long: `Publishes every .deb file in APT_PACKAGE_DIR to the repository for
APT_CODENAME. If the remote repository already exists, its published
packages are imported first and the result is an in-place update;
otherwise a fresh repository is created.

Usage:
  # Publish with everything taken from the environment
  aptpub publish

  # Use a custom configuration file for ambient settings
  aptpub publish --config /etc/aptpub/aptpub.toml

  # Override the log level
  aptpub publish --log-level debug

  # Suppress progress output
  aptpub publish --quiet`,
	Run: runPublish,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the environment and configuration file",
	Long:  `Checks the environment variables and the optional TOML configuration file without touching the remote repository.`,
	Run:   runValidate,
}

var statusCmd = &cobra.Command{
	Use:   "status [codename]",
	Short: "Report remote and local repository state for a codename",
	Long: `Reports whether the remote repository for the codename exists and what
the local repository holds. The codename defaults to APT_CODENAME.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runStatus,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Print version information including build details",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("aptpub %s\n", version)
		fmt.Printf("commit: %s\n", commit)
		fmt.Printf("built: %s\n", buildDate)
	},
}

func init() {
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "configuration file path")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", "override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("verbose-errors", false, "show detailed error information including stack traces")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "suppress all output except for errors")
}

// formatError returns a human-friendly error message, optionally with stack trace
func formatError(err error, verbose bool) string {
	if verbose {
		return fmt.Sprintf("%+v", err)
	}

	flattened := errors.FlattenDetails(err)
	if flattened != "" {
		return flattened
	}

	return err.Error()
}

// loadSettings reads the ambient settings and applies the logging
// configuration, honoring the command-line overrides.
func loadSettings(cmd *cobra.Command) (*publish.Settings, error) {
	settings, err := publish.LoadSettings(configPath)
	if err != nil {
		return nil, err
	}

	if logLevel != "" {
		settings.Log.Level = logLevel
	}
	if quiet, _ := cmd.Flags().GetBool("quiet"); quiet {
		settings.Log.Level = "error"
	}
	if err := settings.Log.Apply(); err != nil {
		return nil, err
	}

	return settings, nil
}

func runPublish(cmd *cobra.Command, _ []string) {
	verboseErrors, _ := cmd.Flags().GetBool("verbose-errors")
	quiet, _ := cmd.Flags().GetBool("quiet")

	settings, err := loadSettings(cmd)
	if err != nil {
		slog.Error("failed to load settings", "error", formatError(err, verboseErrors))
		os.Exit(1)
	}

	cfg := publish.FromEnv()
	if err := cfg.Check(); err != nil {
		slog.Error("configuration error", "error", formatError(err, verboseErrors))
		os.Exit(1)
	}

	signer, err := sign.New(cfg.SigningKey, cfg.SigningPassphrase)
	if err != nil {
		slog.Error("failed to load signing key", "error", formatError(err, verboseErrors))
		os.Exit(1)
	}

	ctx := cmd.Context()
	store, err := blob.New(ctx, blob.Config{
		Region:          cfg.Region,
		Bucket:          cfg.Bucket,
		Prefix:          cfg.Prefix,
		ACL:             cfg.ACL,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		MaxConns:        settings.MaxConns,
		Quiet:           quiet,
	})
	if err != nil {
		slog.Error("failed to create storage client", "error", formatError(err, verboseErrors))
		os.Exit(1)
	}

	p := &publish.Publisher{
		Config:   cfg,
		Settings: settings,
		Store:    store,
		Signer:   signer,
	}
	if err := p.Run(ctx); err != nil {
		slog.Error("publish failed", "error", formatError(err, verboseErrors))
		if !verboseErrors {
			slog.Info("run with --verbose-errors for detailed stack traces")
		}
		os.Exit(1)
	}
}

func runValidate(cmd *cobra.Command, _ []string) {
	verboseErrors, _ := cmd.Flags().GetBool("verbose-errors")

	var validationErrors []error

	if _, err := loadSettings(cmd); err != nil {
		validationErrors = append(validationErrors, errors.Wrap(err, "settings"))
	}

	cfg := publish.FromEnv()
	if err := cfg.Check(); err != nil {
		validationErrors = append(validationErrors, errors.Wrap(err, "environment"))
	} else {
		if _, err := sign.New(cfg.SigningKey, cfg.SigningPassphrase); err != nil {
			validationErrors = append(validationErrors, errors.Wrap(err, "signing key"))
		}
	}

	if len(validationErrors) > 0 {
		slog.Error("the configuration is not valid")
		for _, err := range validationErrors {
			slog.Error(formatError(err, verboseErrors))
		}
		os.Exit(1)
	}

	slog.Info("the configuration passes validation checks")
}

func runStatus(cmd *cobra.Command, args []string) {
	verboseErrors, _ := cmd.Flags().GetBool("verbose-errors")

	settings, err := loadSettings(cmd)
	if err != nil {
		slog.Error("failed to load settings", "error", formatError(err, verboseErrors))
		os.Exit(1)
	}

	cfg := publish.FromEnv()
	codename := cfg.Codename
	if len(args) == 1 {
		codename = args[0]
	}
	if !repo.IsValidCodename(codename) {
		slog.Error("invalid codename", "codename", codename)
		os.Exit(1)
	}

	if err := cfg.Check(); err != nil {
		slog.Error("configuration error", "error", formatError(err, verboseErrors))
		os.Exit(1)
	}

	ctx := cmd.Context()
	store, err := blob.New(ctx, blob.Config{
		Region:          cfg.Region,
		Bucket:          cfg.Bucket,
		Prefix:          cfg.Prefix,
		ACL:             cfg.ACL,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		Quiet:           true,
	})
	if err != nil {
		slog.Error("failed to create storage client", "error", formatError(err, verboseErrors))
		os.Exit(1)
	}

	remoteExists, err := store.DistExists(ctx, codename)
	if err != nil {
		slog.Error("failed to query remote repository", "error", formatError(err, verboseErrors))
		os.Exit(1)
	}

	fmt.Printf("Codename: %s\n", codename)
	fmt.Printf("Remote:   s3://%s/%s\n", cfg.Bucket, cfg.Prefix)
	if remoteExists {
		fmt.Println("Remote repository: exists")
	} else {
		fmt.Println("Remote repository: absent")
	}

	localRepo, created, err := repo.Open(settings.StateDir, codename)
	if err != nil {
		slog.Error("failed to open local repository", "error", formatError(err, verboseErrors))
		os.Exit(1)
	}
	if created {
		fmt.Println("Local repository:  absent")
		return
	}

	fmt.Printf("Local repository:  %s (%d packages)\n", localRepo.Dir(), localRepo.Len())
	for _, pkg := range localRepo.Packages() {
		fmt.Printf("  - %s %s %s\n", pkg.Name, pkg.Version, pkg.Architecture)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

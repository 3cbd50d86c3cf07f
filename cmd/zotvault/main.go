package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"emperror.dev/errors"
	"github.com/je4/zotvault/pkg/annotation"
	"github.com/je4/zotvault/pkg/convert"
	"github.com/je4/zotvault/pkg/export"
	"github.com/je4/zotvault/pkg/filesystem"
	"github.com/je4/zotvault/pkg/ledger"
	"github.com/je4/zotvault/pkg/note"
	"github.com/je4/zotvault/pkg/picker"
	"github.com/je4/zotvault/pkg/zotero"
	"github.com/op/go-logging"
	"github.com/spf13/cobra"
)

type globalFlags struct {
	configFile  string
	vault       string
	loglevel    string
	overwrite   bool
	force       bool
	dryRun      bool
	first       bool
	interactive bool
	allNotes    bool
}

type app struct {
	cfg    *Config
	logger *logging.Logger
	lf     *os.File
	zot    *zotero.Zotero
	fs     filesystem.FileSystem
	ledger *ledger.Ledger
	exp    *export.Exporter
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "zotvault",
		Short:         "Export zotero notes into an obsidian vault",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configFile, "config", "c", "", "location of config file (default "+DefaultConfigFile()+")")
	pf.StringVar(&flags.vault, "vault", "", "vault path, overrides the config")
	pf.StringVar(&flags.loglevel, "loglevel", "", "CRITICAL|ERROR|WARNING|NOTICE|INFO|DEBUG")
	pf.BoolVar(&flags.overwrite, "overwrite", false, "replace existing vault files")
	pf.BoolVar(&flags.force, "force", false, "export even if the ledger knows this item version")
	pf.BoolVar(&flags.dryRun, "dry-run", false, "print the document instead of writing it")
	pf.BoolVar(&flags.first, "first", false, "take the first candidate if there are several")
	pf.BoolVar(&flags.interactive, "interactive", false, "ask which candidate to take if there are several")
	pf.BoolVar(&flags.allNotes, "all-notes", false, "concatenate all notes of the item")
	root.MarkFlagsMutuallyExclusive("first", "interactive")

	root.AddCommand(
		newDOICmd(flags),
		newSearchCmd(flags),
		newKeyCmd(flags),
		newListCmd(flags),
		newHistoryCmd(flags),
		newServeCmd(flags),
	)
	return root
}

func loadConfig(flags *globalFlags) (*Config, error) {
	cfgFile := flags.configFile
	required := cfgFile != ""
	if !required {
		cfgFile = DefaultConfigFile()
	}
	cfg, err := LoadConfig(cfgFile, required)
	if err != nil {
		return nil, err
	}
	if flags.vault != "" {
		cfg.Vault.Path = expandHome(flags.vault)
	}
	if flags.loglevel != "" {
		cfg.Loglevel = strings.ToUpper(flags.loglevel)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid config %s", cfgFile)
	}
	return cfg, nil
}

func chooser(flags *globalFlags) picker.Chooser {
	switch {
	case flags.first:
		return picker.First{}
	case flags.interactive:
		return picker.Interactive{}
	default:
		return picker.Strict{}
	}
}

func openVault(ctx context.Context, cfg *Config, logger *logging.Logger) (filesystem.FileSystem, error) {
	switch cfg.Vault.Type {
	case VaultGit:
		return filesystem.NewGitFs(cfg.Vault.Path, cfg.Vault.Git.Init, cfg.Vault.Git.AuthorName, cfg.Vault.Git.AuthorEmail, logger)
	case VaultS3:
		s3 := cfg.Vault.S3
		fs, err := filesystem.NewS3Fs(s3.Endpoint, s3.AccessKeyId, s3.SecretAccessKey, s3.UseSSL, s3.Bucket, s3.Prefix, logger)
		if err != nil {
			return nil, err
		}
		if err := fs.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return fs, nil
	default:
		return filesystem.NewLocalFs(cfg.Vault.Path, logger)
	}
}

func newApp(ctx context.Context, flags *globalFlags, needVault bool) (*app, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg}
	a.logger, a.lf = CreateLogger("zotvault", cfg.Logfile, cfg.Loglevel)

	a.zot, err = zotero.NewZotero(cfg.Zotero.Endpoint, cfg.Zotero.ApiKey, zotero.LibraryType(cfg.Zotero.LibraryType), cfg.Zotero.LibraryId, cfg.CacheExpiration(), cfg.Zotero.PageSize, a.logger)
	if err != nil {
		a.Close()
		return nil, errors.Wrap(err, "cannot create zotero instance")
	}
	if err := a.zot.Init(ctx); err != nil {
		a.Close()
		return nil, errors.Wrap(err, "cannot initialize zotero")
	}
	a.logger.Infof("zotero library %s", a.zot.LibraryPath())

	if cfg.Ledger.Driver != "" {
		if a.ledger, err = ledger.Open(cfg.Ledger.Driver, cfg.Ledger.DSN, a.logger); err != nil {
			a.Close()
			return nil, err
		}
		if err := a.ledger.Init(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}
	if !needVault {
		return a, nil
	}

	if a.fs, err = openVault(ctx, cfg, a.logger); err != nil {
		a.Close()
		return nil, errors.Wrap(err, "cannot open vault")
	}
	conv, err := convert.New(convert.Options{
		Kind:       cfg.Converter.Kind,
		PandocPath: cfg.Converter.Pandoc,
		PandocArgs: cfg.Converter.Args,
		Annotations: annotation.Options{
			Link:    cfg.Converter.Link,
			Callout: cfg.Converter.Callout,
			Colors:  cfg.Converter.Colors,
		},
	}, a.logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	tmpl, err := note.LoadTemplate(cfg.Template.File)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.exp = export.NewExporter(a.zot, conv, tmpl, a.fs, a.ledger, chooser(flags), export.Options{
		Folder:        cfg.Vault.Folder,
		FilenameStyle: cfg.Vault.Filename,
		NoteType:      cfg.Vault.NoteType,
		Overwrite:     flags.overwrite,
		Force:         flags.force,
		DryRun:        flags.dryRun,
		AllNotes:      flags.allNotes,
		CommitMessage: cfg.Vault.Git.Message,
	}, a.logger)
	return a, nil
}

func (a *app) Close() {
	if a.ledger != nil {
		if err := a.ledger.Close(); err != nil {
			a.logger.Errorf("cannot close ledger: %v", err)
		}
	}
	if a.lf != nil && a.lf != os.Stderr {
		a.lf.Close()
	}
}

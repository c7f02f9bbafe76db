package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"ispledger/internal/auth"
	appcli "ispledger/internal/cli"
	"ispledger/internal/config"
	"ispledger/internal/core"
	"ispledger/internal/log"
	"ispledger/internal/report"
	"ispledger/internal/schema"
	"ispledger/internal/seed"
	"ispledger/internal/storage"
	"ispledger/internal/store"
)

type ctxKey int

const envKey ctxKey = 0

// env is what every command needs, opened once in Before.
type env struct {
	cfg    *config.Config
	logger *log.Logger
	repo   *storage.SQLiteRepository
	store  *store.Store
}

func envFrom(c *cli.Context) *env {
	return c.Context.Value(envKey).(*env)
}

func open(c *cli.Context) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := appcli.SetupLogger(cfg, log.ComponentApp)
	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	repo.SetHistoryLimit(cfg.HistoryLimit)
	st, err := appcli.OpenStore(c.Context, repo, logger)
	if err != nil {
		repo.Close()
		return fmt.Errorf("load state: %w", err)
	}
	c.Context = context.WithValue(c.Context, envKey, &env{cfg: cfg, logger: logger, repo: repo, store: st})
	return nil
}

func closeEnv(c *cli.Context) error {
	if e, ok := c.Context.Value(envKey).(*env); ok && e != nil {
		return e.repo.Close()
	}
	return nil
}

func main() {
	appcli.LoadEnvFile()

	app := &cli.App{
		Name:   "ispledger-admin",
		Usage:  "Maintenance tasks for an ispledger installation",
		Before: open,
		After:  closeEnv,
		Commands: []*cli.Command{
			{
				Name:  "rollover",
				Usage: "Generate the bills of a month",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "month", Usage: "Month to generate (YYYY-MM), default the month after the view month"},
				},
				Action: runRollover,
			},
			{
				Name:  "backup",
				Usage: "Manage backups on the configured target",
				Subcommands: []*cli.Command{
					{Name: "push", Usage: "Upload the current state", Action: runBackupPush},
					{Name: "list", Usage: "List stored backups", Action: runBackupList},
					{
						Name:   "pull",
						Usage:  "Replace the state with a stored backup",
						Flags:  []cli.Flag{&cli.StringFlag{Name: "name", Usage: "Backup name, default the latest"}},
						Action: runBackupPull,
					},
					{Name: "prune", Usage: "Delete local backups past the retention window", Action: runBackupPrune},
					{
						Name:   "log",
						Usage:  "Show recent backup attempts",
						Flags:  []cli.Flag{&cli.IntFlag{Name: "limit", Value: 20}},
						Action: runBackupLog,
					},
				},
			},
			{
				Name:  "history",
				Usage: "Inspect and restore previous saved versions of the state",
				Subcommands: []*cli.Command{
					{
						Name:   "list",
						Flags:  []cli.Flag{&cli.IntFlag{Name: "limit", Value: 20}},
						Action: runHistoryList,
					},
					{
						Name:      "restore",
						ArgsUsage: "<id>",
						Action:    runHistoryRestore,
					},
				},
			},
			{
				Name:  "import",
				Usage: "Import clients from a spreadsheet",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Required: true, Usage: "Path to an .xlsx client sheet"},
				},
				Action: runImport,
			},
			{
				Name:  "export",
				Usage: "Export the billing sheet of a month",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "month", Usage: "Month to export (YYYY-MM), default the view month"},
					&cli.StringFlag{Name: "out", Required: true, Usage: "Output .xlsx path"},
				},
				Action: runExport,
			},
			{
				Name:  "seed",
				Usage: "Fill an installation with demo clients and expenses",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "clients", Value: 25},
					&cli.IntFlag{Name: "expenses", Value: 10},
					&cli.Uint64Flag{Name: "seed", Value: 1, Usage: "Faker seed"},
				},
				Action: runSeed,
			},
			{
				Name:  "passwd",
				Usage: "Reset the access key",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "password", Required: true, EnvVars: []string{"ISPLEDGER_NEW_PASSWORD"}},
				},
				Action: runPasswd,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runRollover(c *cli.Context) error {
	e := envFrom(c)
	var err error
	if month := c.String("month"); month != "" {
		_, err = e.store.RolloverMonth(c.Context, month)
	} else {
		_, err = e.store.RolloverNext(c.Context)
	}
	if err != nil {
		return err
	}
	st := e.store.Snapshot()
	fmt.Printf("Generated %d bills for %s\n", len(st.RecordsFor(st.CurrentViewMonth)), st.CurrentViewMonth)
	return nil
}

func runBackupPush(c *cli.Context) error {
	e := envFrom(c)
	svc, err := appcli.NewBackupService(c.Context, e.cfg, e.store, e.repo, e.logger)
	if err != nil {
		return err
	}
	results, err := svc.Push(c.Context)
	for _, r := range results {
		if r.Err != nil {
			fmt.Printf("%-6s failed: %v\n", r.Target, r.Err)
			continue
		}
		fmt.Printf("%-6s %s (%d bytes)\n", r.Target, r.Object.Name, r.Object.Size)
	}
	return err
}

func runBackupList(c *cli.Context) error {
	e := envFrom(c)
	svc, err := appcli.NewBackupService(c.Context, e.cfg, e.store, e.repo, e.logger)
	if err != nil {
		return err
	}
	objects, err := svc.List(c.Context)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSIZE\tMODIFIED")
	for _, o := range objects {
		fmt.Fprintf(w, "%s\t%d\t%s\n", o.Name, o.Size, o.ModifiedAt.Format(time.DateTime))
	}
	return w.Flush()
}

func runBackupPull(c *cli.Context) error {
	e := envFrom(c)
	svc, err := appcli.NewBackupService(c.Context, e.cfg, e.store, e.repo, e.logger)
	if err != nil {
		return err
	}
	st, err := svc.Pull(c.Context, c.String("name"))
	if err != nil {
		return err
	}
	fmt.Printf("Restored %d clients and %d bills\n", len(st.Clients), len(st.Records))
	return nil
}

func runBackupPrune(c *cli.Context) error {
	e := envFrom(c)
	svc, err := appcli.NewBackupService(c.Context, e.cfg, e.store, e.repo, e.logger)
	if err != nil {
		return err
	}
	n, err := svc.Prune(c.Context, e.cfg.BackupRetention())
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d old backups\n", n)
	return nil
}

func runBackupLog(c *cli.Context) error {
	entries, err := envFrom(c).repo.RecentBackups(c.Context, c.Int("limit"))
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tTARGET\tSTATUS\tNAME\tERROR")
	for _, b := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", b.CreatedAt.Local().Format(time.DateTime), b.Target, b.Status, b.Name, b.Error)
	}
	return w.Flush()
}

func runHistoryList(c *cli.Context) error {
	entries, err := envFrom(c).repo.History(c.Context, core.StorageKey, c.Int("limit"))
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSAVED\tSCHEMA\tSIZE")
	for _, h := range entries {
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\n", h.ID, h.SavedAt.Local().Format(time.DateTime), h.SchemaVersion, h.Size)
	}
	return w.Flush()
}

func runHistoryRestore(c *cli.Context) error {
	e := envFrom(c)
	id, err := strconv.ParseInt(c.Args().First(), 10, 64)
	if err != nil {
		return fmt.Errorf("history id must be a number: %w", err)
	}
	body, err := e.repo.HistoryBody(c.Context, id)
	if err != nil {
		return err
	}
	st, err := schema.NewLoader(schema.Env{}).Load(body)
	if err != nil {
		return err
	}
	if err := e.store.Replace(c.Context, st); err != nil {
		return err
	}
	fmt.Printf("Restored version %d (%d clients)\n", id, len(st.Clients))
	return nil
}

func runImport(c *cli.Context) error {
	e := envFrom(c)
	f, err := os.Open(c.String("file"))
	if err != nil {
		return err
	}
	defer f.Close()
	rows, err := report.ParseClientSheet(f)
	if err != nil {
		return err
	}
	res, err := e.store.ImportClients(c.Context, rows)
	if err != nil {
		return err
	}
	fmt.Printf("Imported %d clients, skipped %d\n", res.Imported, res.Skipped)
	return nil
}

func runExport(c *cli.Context) error {
	e := envFrom(c)
	st := e.store.Snapshot()
	month := c.String("month")
	if month == "" {
		month = st.CurrentViewMonth
	}
	f, err := os.Create(c.String("out"))
	if err != nil {
		return err
	}
	if err := report.WriteBillingSheet(f, st.RecordsFor(month)); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func runSeed(c *cli.Context) error {
	e := envFrom(c)
	gen := seed.New(c.Uint64("seed"))
	st := e.store.Snapshot()

	res, err := e.store.ImportClients(c.Context, gen.Clients(c.Int("clients"), st.Settings.BandwidthPackages))
	if err != nil {
		return err
	}
	expenses, err := gen.Expenses(c.Int("expenses"), st.CurrentViewMonth)
	if err != nil {
		return err
	}
	for _, in := range expenses {
		if _, err := e.store.AddExpense(c.Context, in); err != nil {
			return err
		}
	}
	fmt.Printf("Seeded %d clients and %d expenses\n", res.Imported, len(expenses))
	return nil
}

func runPasswd(c *cli.Context) error {
	hash, err := auth.Hash(c.String("password"))
	if err != nil {
		return err
	}
	if err := envFrom(c).store.SetCredentials(c.Context, hash, "", ""); err != nil {
		return err
	}
	fmt.Println("Access key updated")
	return nil
}

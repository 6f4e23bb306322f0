// Command omgctl is OMG's CLI front-end: it dials the omgd daemon when one
// is running and falls back to driving the Package Engine in-process
// otherwise (§4.2 Client fallback), so every subcommand works identically
// whether or not a daemon is installed.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/PyRo1121/omg-sub002/internal/daemon"
	"github.com/PyRo1121/omg-sub002/internal/engine"
	"github.com/PyRo1121/omg-sub002/internal/fleet"
	"github.com/PyRo1121/omg-sub002/internal/paths"
	"github.com/PyRo1121/omg-sub002/internal/pkgdb"
	"github.com/PyRo1121/omg-sub002/internal/privilege"
	"github.com/PyRo1121/omg-sub002/internal/runtimes"
	"github.com/PyRo1121/omg-sub002/internal/session"
	"github.com/PyRo1121/omg-sub002/pkg/logging"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "omgctl: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		printUsage()
		return errors.New("no command specified")
	}

	cmd, rest := args[0], args[1:]
	yes, rest := extractYesFlag(rest)
	// reExecArgs is the full, untouched argument vector privilege.Elevate*
	// re-invokes the executable with — it must include --yes itself so the
	// elevated child re-derives the same non-interactive mode.
	reExecArgs := args

	switch cmd {
	case "search":
		return withClient(ctx, cmd, func(c *cliClient) error { return cmdSearch(ctx, c, rest) })
	case "info":
		return withClient(ctx, cmd, func(c *cliClient) error { return cmdInfo(ctx, c, rest) })
	case "status":
		return withClient(ctx, cmd, func(c *cliClient) error { return cmdStatus(ctx, c) })
	case "install":
		return withClient(ctx, cmd, func(c *cliClient) error { return cmdTransact(ctx, c, "install", pkgdb.OpAdd, rest, yes, reExecArgs) })
	case "remove":
		return withClient(ctx, cmd, func(c *cliClient) error { return cmdTransact(ctx, c, "remove", pkgdb.OpRemove, rest, yes, reExecArgs) })
	case "sysupgrade":
		return withClient(ctx, cmd, func(c *cliClient) error { return cmdTransact(ctx, c, "upgrade", pkgdb.OpSysUpgrade, rest, yes, reExecArgs) })
	case "update":
		return withClient(ctx, cmd, func(c *cliClient) error { return cmdUpdate(ctx, c, rest, yes, reExecArgs) })
	case "audit":
		return withClient(ctx, cmd, func(c *cliClient) error { return cmdAudit(ctx, c) })
	case "runtime":
		return cmdRuntime(rest)
	case "fleet":
		return withClient(ctx, cmd, func(c *cliClient) error { return cmdFleet(ctx, c, rest) })
	case "help", "-h", "--help":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// extractYesFlag pulls a bare "--yes" token out of args wherever it
// appears, returning whether it was present and the remaining arguments in
// their original order (§5, §8: "--yes flag selects non-interactive mode").
func extractYesFlag(args []string) (bool, []string) {
	yes := false
	rest := make([]string, 0, len(args))
	for _, a := range args {
		if a == "--yes" || a == "-y" {
			yes = true
			continue
		}
		rest = append(rest, a)
	}
	return yes, rest
}

func printUsage() {
	fmt.Println(`omg — next-generation package and developer-environment manager

Usage:
  omgctl search <query>
  omgctl info <package>
  omgctl status
  omgctl install [--yes] <package>...
  omgctl remove [--yes] <package>...
  omgctl sysupgrade [--yes]
  omgctl update [--check] [--yes]
  omgctl audit
  omgctl runtime list|use|current <language> [version]
  omgctl fleet generate|diff|hook [path]`)
}

// cliClient is the façade omgctl's subcommands call through: either a live
// daemon.Client, or (on dial failure / OMG_DISABLE_DAEMON / test mode) an
// in-process engine.Engine, per §4.2's Client fallback contract.
type cliClient struct {
	client *daemon.Client
	eng    *engine.Engine
	close  func()
}

func withClient(ctx context.Context, cmd string, fn func(*cliClient) error) error {
	c, err := newCliClient(ctx, cmd)
	if err != nil {
		return err
	}
	defer c.close()
	return fn(c)
}

func newCliClient(ctx context.Context, cmd string) (*cliClient, error) {
	p := paths.Resolve()

	sessionState, _ := session.Load(p.SessionFile())
	defer func() { _ = session.Save(p.SessionFile(), sessionState) }()

	if !paths.DaemonDisabled() {
		if client, err := daemon.Dial(ctx, p.Socket); err == nil {
			sessionState.RecordDaemonDial(cmd, true)
			return &cliClient{client: client, close: func() { client.Close() }}, nil
		}
	}
	sessionState.RecordDaemonDial(cmd, false)

	log := logging.New("omgctl", "error", "text")
	distro := pkgdb.DetectDistro()
	adapter, err := pkgdb.Open(distro, true, "/", "")
	if err != nil {
		return nil, fmt.Errorf("open package database: %w", err)
	}
	eng := engine.New(adapter, log)
	return &cliClient{eng: eng, close: func() { eng.Close() }}, nil
}

func (c *cliClient) search(ctx context.Context, query string, limit int) ([]pkgdb.Package, error) {
	if c.client != nil {
		raw, err := c.client.Search(ctx, query, limit)
		if err != nil {
			return nil, err
		}
		return decodeEach[pkgdb.Package](raw)
	}
	return c.eng.Search(ctx, query, limit)
}

func (c *cliClient) info(ctx context.Context, name string) (pkgdb.Package, bool, error) {
	if c.client != nil {
		raw, err := c.client.Info(ctx, name)
		if err != nil {
			return pkgdb.Package{}, false, err
		}
		var pkg pkgdb.Package
		if err := json.Unmarshal(raw, &pkg); err != nil {
			return pkgdb.Package{}, false, err
		}
		return pkg, true, nil
	}
	return c.eng.Info(ctx, name)
}

func (c *cliClient) status(ctx context.Context) (pkgdb.Status, error) {
	if c.client != nil {
		raw, err := c.client.Status(ctx)
		if err != nil {
			return pkgdb.Status{}, err
		}
		var status pkgdb.Status
		err = json.Unmarshal(raw, &status)
		return status, err
	}
	return c.eng.Status(ctx)
}

// transact drives one execute_transaction() call (§4.1) through whichever
// side of the fallback is live: the daemon's TransactPayload wire call, or
// the in-process engine directly.
func (c *cliClient) transact(ctx context.Context, kind pkgdb.TransactionOpKind, targets []string) (string, error) {
	if c.client != nil {
		p := daemon.TransactPayload{}
		kindStr := transactKindString(kind)
		if len(targets) == 0 {
			p.Ops = []daemon.TransactOp{{Kind: kindStr}}
		}
		for _, t := range targets {
			p.Ops = append(p.Ops, daemon.TransactOp{Kind: kindStr, Target: t})
		}
		result, err := c.client.Transact(ctx, p)
		return result.State, err
	}

	ops := make([]pkgdb.TransactionOp, 0, len(targets))
	if len(targets) == 0 {
		ops = append(ops, pkgdb.TransactionOp{Kind: kind})
	}
	for _, t := range targets {
		ops = append(ops, pkgdb.TransactionOp{Kind: kind, Target: t})
	}

	progress := make(chan pkgdb.ProgressEvent, 32)
	go func() {
		for range progress {
		}
	}()
	err := c.eng.ExecuteTransaction(ctx, ops, pkgdb.TransactionFlags{}, nil, progress)
	if err != nil {
		return "failed", err
	}
	return "committed", nil
}

func transactKindString(kind pkgdb.TransactionOpKind) string {
	switch kind {
	case pkgdb.OpAdd:
		return "add"
	case pkgdb.OpRemove:
		return "remove"
	default:
		return "sysupgrade"
	}
}

func decodeEach[T any](items []json.RawMessage) ([]T, error) {
	out := make([]T, 0, len(items))
	for _, raw := range items {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func cmdSearch(ctx context.Context, c *cliClient, args []string) error {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	limit := fs.Int("limit", 20, "maximum number of results")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: omgctl search <query>")
	}

	results, err := c.search(ctx, fs.Arg(0), *limit)
	if err != nil {
		return err
	}
	for _, pkg := range results {
		fmt.Printf("%s/%s %s — %s\n", pkg.Repo, pkg.Name, pkg.Version, pkg.Description)
	}
	return nil
}

func cmdInfo(ctx context.Context, c *cliClient, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: omgctl info <package>")
	}
	pkg, found, err := c.info(ctx, args[0])
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("package %q not found", args[0])
	}
	fmt.Printf("%s %s\n%s\nLicenses: %s\nInstalled: %v\n", pkg.Name, pkg.Version, pkg.Description, strings.Join(pkg.Licenses, ", "), pkg.Installed)
	return nil
}

func cmdStatus(ctx context.Context, c *cliClient) error {
	status, err := c.status(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("total=%d explicit=%d orphans=%d updates=%d\n", status.Total, status.Explicit, status.Orphans, status.Updates)
	return nil
}

// cmdTransact runs one install/remove/sysupgrade transaction. Every one of
// these operations is on §5's root whitelist, so it re-execs as superuser
// first (a no-op if already root or in OMG_TEST_MODE) before touching the
// package database.
func cmdTransact(ctx context.Context, c *cliClient, operation string, kind pkgdb.TransactionOpKind, targets []string, yes bool, reExecArgs []string) error {
	if kind != pkgdb.OpSysUpgrade && len(targets) == 0 {
		return errors.New("usage: omgctl install|remove <package>...")
	}
	if err := privilege.ElevateForOperation(ctx, nil, operation, yes, reExecArgs); err != nil {
		return err
	}

	state, err := c.transact(ctx, kind, targets)
	if err != nil {
		return err
	}
	fmt.Printf("transaction %s\n", state)
	return nil
}

// cmdUpdate lists available updates (--check, or by default) and, when
// --check is absent, applies them as a sysupgrade transaction. --check
// never elevates or prompts for a password (§8: "a clean boundary behavior
// ... --check mode for update never requires root and never prompts").
func cmdUpdate(ctx context.Context, c *cliClient, args []string, yes bool, reExecArgs []string) error {
	fs := flag.NewFlagSet("update", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	check := fs.Bool("check", false, "list pending updates without applying them")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if c.eng == nil {
		return errors.New("update requires the in-process engine; set OMG_DISABLE_DAEMON=1")
	}
	updates, err := c.eng.ListUpdates(ctx)
	if err != nil {
		return err
	}
	if len(updates) == 0 {
		fmt.Println("everything is up to date")
		return nil
	}
	for _, u := range updates {
		fmt.Printf("%s %s -> %s\n", u.Name, u.OldVersion, u.NewVersion)
	}
	if *check {
		return nil
	}

	if err := privilege.ElevateForOperation(ctx, nil, "update", yes, reExecArgs); err != nil {
		return err
	}
	state, err := c.transact(ctx, pkgdb.OpSysUpgrade, nil)
	if err != nil {
		return err
	}
	fmt.Printf("transaction %s\n", state)
	return nil
}

func cmdAudit(ctx context.Context, c *cliClient) error {
	if c.client == nil {
		return errors.New("security audit requires a running omgd daemon")
	}
	result, err := c.client.SecurityAudit(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("scanned=%d at_risk=%d\n", result.Scanned, result.AtRisk)
	for _, r := range result.Results {
		if !r.PolicyOK || len(r.CVEs) > 0 {
			fmt.Printf("  %s %s grade=%s policy_ok=%v %s\n", r.Name, r.Version, r.Grade, r.PolicyOK, r.Violation)
		}
	}
	return nil
}

func cmdRuntime(args []string) error {
	if len(args) < 2 {
		return errors.New("usage: omgctl runtime list|use|current <language> [version]")
	}
	p := paths.Resolve()
	mgr := runtimes.NewManager(p.DataDir + "/runtimes")
	lang := runtimes.Language(args[1])

	switch args[0] {
	case "list":
		versions, err := mgr.List(lang)
		if err != nil {
			return err
		}
		for _, v := range versions {
			fmt.Println(v.Value)
		}
		return nil
	case "use":
		if len(args) < 3 {
			return errors.New("usage: omgctl runtime use <language> <version>")
		}
		return mgr.Use(lang, args[2])
	case "current":
		v, err := mgr.Current(lang)
		if err != nil {
			return err
		}
		if v == nil {
			fmt.Println("no version selected")
			return nil
		}
		fmt.Println(v.Value)
		return nil
	default:
		return fmt.Errorf("unknown runtime subcommand %q", args[0])
	}
}

func cmdFleet(ctx context.Context, c *cliClient, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: omgctl fleet generate|diff|hook [path]")
	}
	p := paths.Resolve()

	switch args[0] {
	case "generate":
		if c.eng == nil {
			return errors.New("fleet generate requires the in-process engine; set OMG_DISABLE_DAEMON=1")
		}
		packages, err := c.eng.LocalPackages(ctx)
		if err != nil {
			return err
		}
		lock := fleet.Generate(packages)
		return fleet.Save(p.LockFile(), lock)
	case "diff":
		lock, err := fleet.Load(p.LockFile())
		if err != nil {
			return err
		}
		if c.eng == nil {
			return errors.New("fleet diff requires the in-process engine; set OMG_DISABLE_DAEMON=1")
		}
		installed, err := c.eng.LocalPackages(ctx)
		if err != nil {
			return err
		}
		for _, d := range fleet.Diff(lock, installed) {
			fmt.Printf("%s %s locked=%s actual=%s\n", d.Kind, d.Name, d.Locked, d.Actual)
		}
		return nil
	case "hook":
		hookPath := ".git/hooks/pre-commit"
		if len(args) > 1 {
			hookPath = args[1]
		}
		return fleet.WritePreCommitHook(hookPath)
	default:
		return fmt.Errorf("unknown fleet subcommand %q", args[0])
	}
}

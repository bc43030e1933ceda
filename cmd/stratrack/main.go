package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"stratrack/internal/audit"
	"stratrack/internal/engine"
	"stratrack/internal/notify"
	"stratrack/internal/plan"
	"stratrack/internal/recorder"
	"stratrack/internal/rollup"
	"stratrack/internal/store"
	"stratrack/internal/workspace"
)

const appName = "stratrack"

func main() {
	flag.String("workspace", "", "Path to workspace root")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s: strategic plan KPI aggregation engine\n\n", appName)
		fmt.Fprintf(os.Stderr, "Usage:\n  %s [command] [flags]\n\n", appName)
		fmt.Fprintln(os.Stderr, "Commands:")
		fmt.Fprintln(os.Stderr, "  init       Initialize a new workspace")
		fmt.Fprintln(os.Stderr, "  target     Inspect registered KPI targets")
		fmt.Fprintln(os.Stderr, "  record     Record an extracted document submission")
		fmt.Fprintln(os.Stderr, "  rollup     Get or recompute a KPI-period rollup")
		fmt.Fprintln(os.Stderr, "  override   Set or clear an administrative override")
		fmt.Fprintln(os.Stderr, "  reconcile  Run a reconciliation sweep")
		fmt.Fprintln(os.Stderr, "  validate   Validate a reported value against a target type")
		fmt.Fprintln(os.Stderr, "  audit      Show recent audit events")
		fmt.Fprintln(os.Stderr, "  help       Show this help")
		fmt.Fprintln(os.Stderr, "\nFlags:")
		flag.PrintDefaults()
	}

	workspacePath, remaining, err := extractWorkspaceFlag(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	args := remaining
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		flag.Usage()
		return
	}

	run := func(fn func([]string, string) error) {
		if err := fn(args[1:], workspacePath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	switch args[0] {
	case "init":
		run(runInit)
	case "target":
		run(runTarget)
	case "record":
		run(runRecord)
	case "rollup":
		run(runRollup)
	case "override":
		run(runOverride)
	case "reconcile":
		run(runReconcile)
	case "validate":
		run(runValidate)
	case "audit":
		run(runAudit)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		flag.Usage()
		os.Exit(1)
	}
}

func extractWorkspaceFlag(args []string) (string, []string, error) {
	var workspacePath string
	remaining := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--workspace" {
			if i+1 >= len(args) {
				return "", nil, fmt.Errorf("--workspace requires a value")
			}
			workspacePath = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--workspace=") {
			workspacePath = strings.TrimPrefix(arg, "--workspace=")
			continue
		}
		remaining = append(remaining, arg)
	}
	return workspacePath, remaining, nil
}

// appEnv bundles the wired engine components for one workspace.
type appEnv struct {
	Workspace    *workspace.Workspace
	Store        *store.Store
	Registry     *plan.Registry
	Audit        *audit.Logger
	Notifier     *notify.Notifier
	Materializer *rollup.Materializer
	Reader       *rollup.Reader
	Overrides    *rollup.Overrides
	Recorder     *recorder.Recorder
	Sweeper      *rollup.Sweeper
}

func openEnv(workspacePath string, notifyEnabled bool) (*appEnv, error) {
	if strings.TrimSpace(workspacePath) == "" {
		return nil, fmt.Errorf("--workspace is required")
	}
	ws, err := workspace.Resolve(workspacePath)
	if err != nil {
		return nil, err
	}

	registry, err := plan.LoadFromDir(ws.TargetsDir)
	if err != nil {
		return nil, fmt.Errorf("load targets: %w", err)
	}

	st, err := store.Open(ws.StateDBPath)
	if err != nil {
		return nil, err
	}

	auditLog := audit.NewLogger(ws.AuditDBPath)
	notifier := &notify.Notifier{Enabled: notifyEnabled}
	materializer := &rollup.Materializer{Store: st, Registry: registry, Notifier: notifier}

	return &appEnv{
		Workspace:    ws,
		Store:        st,
		Registry:     registry,
		Audit:        auditLog,
		Notifier:     notifier,
		Materializer: materializer,
		Reader:       &rollup.Reader{Store: st, Registry: registry},
		Overrides:    &rollup.Overrides{Store: st, Audit: auditLog},
		Recorder: &recorder.Recorder{
			Store:        st,
			Registry:     registry,
			Materializer: materializer,
			Audit:        auditLog,
			Notifier:     notifier,
		},
		Sweeper: &rollup.Sweeper{Materializer: materializer, Audit: auditLog},
	}, nil
}

func (e *appEnv) Close() {
	if e != nil && e.Store != nil {
		_ = e.Store.Close()
	}
}

func runInit(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	root, err := workspace.ResolveRoot(workspacePath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("create workspace root: %w", err)
	}
	ws, err := workspace.Resolve(root)
	if err != nil {
		return err
	}
	if err := ws.EnsureDirs(); err != nil {
		return err
	}
	fmt.Printf("Initialized workspace at %s\n", ws.Root)
	fmt.Printf("Place target plan YAML files under %s\n", ws.TargetsDir)
	return nil
}

func runTarget(args []string, workspacePath string) error {
	if len(args) == 0 {
		return fmt.Errorf("%s target: missing subcommand (list|show)", appName)
	}

	switch args[0] {
	case "list":
		return runTargetList(args[1:], workspacePath)
	case "show":
		return runTargetShow(args[1:], workspacePath)
	default:
		return fmt.Errorf("%s target: unknown subcommand %q", appName, args[0])
	}
}

func runTargetList(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("target list", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	env, err := openEnv(workspacePath, false)
	if err != nil {
		return err
	}
	defer env.Close()

	for _, key := range env.Registry.Keys() {
		target, err := env.Registry.Lookup(key)
		if err != nil {
			return err
		}
		fmt.Printf("%-40s %-14s %v\n", key, target.Type, target.Value)
	}
	return nil
}

func runTargetShow(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("target show", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	key := periodKeyFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	env, err := openEnv(workspacePath, false)
	if err != nil {
		return err
	}
	defer env.Close()

	target, err := env.Registry.Lookup(*key)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{
		"key":         target.Key,
		"value":       target.Value,
		"type":        target.Type,
		"description": target.Description,
		"source":      target.Source,
	})
}

func runRecord(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("record", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	filePath := fs.String("file", "", "Path to extraction result JSON")
	docID := fs.String("doc", "", "Source document id (overrides file)")
	unitID := fs.String("unit", "", "Submitting unit id (overrides file)")
	actorID := fs.String("actor", "", "Approving actor id (overrides file)")
	year := fs.Int("year", 0, "Reporting year (overrides file)")
	quarter := fs.Int("quarter", 0, "Reporting quarter (overrides file)")
	notifyEnabled := fs.Bool("notify", false, "Send desktop notifications")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *filePath == "" {
		return fmt.Errorf("--file is required")
	}

	data, err := os.ReadFile(*filePath)
	if err != nil {
		return fmt.Errorf("read submission: %w", err)
	}
	var sub recorder.Submission
	if err := json.Unmarshal(data, &sub); err != nil {
		return fmt.Errorf("parse submission: %w", err)
	}
	if *docID != "" {
		sub.DocumentID = *docID
	}
	if *unitID != "" {
		sub.UnitID = *unitID
	}
	if *actorID != "" {
		sub.ActorID = *actorID
	}
	if *year != 0 {
		sub.Year = *year
	}
	if *quarter != 0 {
		sub.Quarter = *quarter
	}

	env, err := openEnv(workspacePath, *notifyEnabled)
	if err != nil {
		return err
	}
	defer env.Close()

	receipt, err := env.Recorder.Record(context.Background(), sub)
	if err != nil {
		return err
	}
	return printJSON(receipt)
}

func runRollup(args []string, workspacePath string) error {
	if len(args) == 0 {
		return fmt.Errorf("%s rollup: missing subcommand (get|recompute)", appName)
	}

	switch args[0] {
	case "get":
		return runRollupGet(args[1:], workspacePath)
	case "recompute":
		return runRollupRecompute(args[1:], workspacePath)
	default:
		return fmt.Errorf("%s rollup: unknown subcommand %q", appName, args[0])
	}
}

func runRollupGet(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("rollup get", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	key := periodKeyFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	env, err := openEnv(workspacePath, false)
	if err != nil {
		return err
	}
	defer env.Close()

	snap, err := env.Reader.Get(context.Background(), *key)
	if err != nil {
		return err
	}
	return printSnapshot(snap)
}

func runRollupRecompute(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("rollup recompute", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	key := periodKeyFlags(fs)
	notifyEnabled := fs.Bool("notify", false, "Send desktop notifications")
	if err := fs.Parse(args); err != nil {
		return err
	}

	env, err := openEnv(workspacePath, *notifyEnabled)
	if err != nil {
		return err
	}
	defer env.Close()

	snap, err := env.Materializer.Recompute(context.Background(), *key)
	if err != nil {
		return err
	}
	return printSnapshot(snap)
}

func runOverride(args []string, workspacePath string) error {
	if len(args) == 0 {
		return fmt.Errorf("%s override: missing subcommand (set|clear)", appName)
	}

	switch args[0] {
	case "set":
		return runOverrideSet(args[1:], workspacePath)
	case "clear":
		return runOverrideClear(args[1:], workspacePath)
	default:
		return fmt.Errorf("%s override: unknown subcommand %q", appName, args[0])
	}
}

func runOverrideSet(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("override set", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	key := periodKeyFlags(fs)
	value := fs.Float64("value", 0, "Override achievement percent")
	reason := fs.String("reason", "", "Reason for the override")
	actor := fs.String("actor", "", "Administrator id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	env, err := openEnv(workspacePath, false)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx := context.Background()
	if err := env.Overrides.Set(ctx, *key, *value, *reason, *actor); err != nil {
		return err
	}
	snap, err := env.Reader.Get(ctx, *key)
	if err != nil {
		return err
	}
	return printSnapshot(snap)
}

func runOverrideClear(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("override clear", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	key := periodKeyFlags(fs)
	actor := fs.String("actor", "", "Administrator id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	env, err := openEnv(workspacePath, false)
	if err != nil {
		return err
	}
	defer env.Close()

	if err := env.Overrides.Clear(context.Background(), *key, *actor); err != nil {
		return err
	}
	fmt.Printf("Override cleared for %s\n", *key)
	return nil
}

func runReconcile(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("reconcile", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	dryRun := fs.Bool("dry-run", false, "Compute drift without writing")
	interval := fs.Duration("interval", 0, "Repeat the sweep at this interval (0 = run once)")
	notifyEnabled := fs.Bool("notify", false, "Send desktop notifications")
	if err := fs.Parse(args); err != nil {
		return err
	}

	env, err := openEnv(workspacePath, *notifyEnabled)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx := context.Background()

	sweepOnce := func() error {
		report, err := env.Sweeper.Sweep(ctx, *dryRun)
		if err != nil {
			return err
		}
		if report.Diff != "" {
			fmt.Fprintln(os.Stderr, report.Diff)
		}
		return printJSON(report)
	}

	if err := sweepOnce(); err != nil {
		return err
	}
	if *interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for range ticker.C {
		if err := sweepOnce(); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}
	return nil
}

func runValidate(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	typeRaw := fs.String("type", "", "Target type")
	value := fs.Float64("value", 0, "Reported value")
	denominator := fs.Float64("denominator", 0, "Denominator (optional)")
	hasDenominator := fs.Bool("has-denominator", false, "Whether a denominator was reported")
	label := fs.String("label", "", "Qualitative label (optional)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	targetType, err := plan.ParseTargetType(*typeRaw)
	if err != nil {
		return err
	}

	raw := engine.RawValue{Reported: *value, Label: *label}
	if *hasDenominator {
		raw.Denominator = denominator
	}

	errs, warns := engine.ValidateReported(raw, targetType)
	return printJSON(map[string]any{
		"valid":    len(errs) == 0,
		"errors":   errs,
		"warnings": warns,
	})
}

func runAudit(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("audit", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	limit := fs.Int("limit", 20, "Number of events to show")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if strings.TrimSpace(workspacePath) == "" {
		return fmt.Errorf("--workspace is required")
	}
	ws, err := workspace.Resolve(workspacePath)
	if err != nil {
		return err
	}

	events, err := audit.NewLogger(ws.AuditDBPath).ListRecent(*limit)
	if err != nil {
		return err
	}
	for _, e := range events {
		fmt.Printf("%s  %-24s  %-12s  %s\n", e.TS.Format(time.RFC3339), e.Type, e.Actor, e.PayloadJSON)
	}
	return nil
}

func periodKeyFlags(fs *flag.FlagSet) *plan.PeriodKey {
	key := &plan.PeriodKey{}
	fs.StringVar(&key.KRAID, "kra", "", "KRA identifier")
	fs.StringVar(&key.InitiativeID, "initiative", "", "Initiative/KPI identifier")
	fs.IntVar(&key.Year, "year", 0, "Reporting year")
	fs.IntVar(&key.Quarter, "quarter", 0, "Reporting quarter")
	return key
}

func printSnapshot(snap *rollup.Snapshot) error {
	return printJSON(map[string]any{
		"snapshot":              snap,
		"effective_achievement": snap.EffectiveAchievement(),
		"effective_status":      snap.EffectiveStatus(),
	})
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

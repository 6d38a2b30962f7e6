// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kraklabs/tabsync/internal/bootstrap"
	"github.com/kraklabs/tabsync/internal/errors"
	"github.com/kraklabs/tabsync/internal/output"
	"github.com/kraklabs/tabsync/internal/ui"
	"github.com/kraklabs/tabsync/pkg/caption"
	"github.com/kraklabs/tabsync/pkg/collection"
	"github.com/kraklabs/tabsync/pkg/property"
	"github.com/kraklabs/tabsync/pkg/rowsource"
	"github.com/kraklabs/tabsync/pkg/upload"
	"github.com/kraklabs/tabsync/pkg/wsapi"
)

// uploadFlags holds parsed flags for the upload command.
type uploadFlags struct {
	db         string
	parentPage string
	dbTitle    string
	token      string

	keyColumn    string
	columnTypes  []string
	delimiter    string
	failOnDupCSV bool

	merge            bool
	mergeOnlyColumns []string
	mergeSkipNew     bool

	imageColumns       []string
	imageColumnKeep    bool
	imageMode          string
	imageCaptionColumn string
	imageCaptionKeep   bool
	iconColumn         string
	iconColumnKeep     bool
	defaultIcon        string

	captionImageColumn  string
	captionTargetColumn string
	captionProvider     string
	captionModel        string

	mandatoryColumns            []string
	addMissingColumns           bool
	failOnMissingColumns        bool
	missingRelations            string
	failOnConversionError       bool
	failOnDuplicates            bool
	failOnRelationDuplicates    bool
	failOnUnsettableColumns     bool
	failOnInaccessibleRelations bool
	failOnWrongStatusValues     bool
	randomizeColors             bool

	workers     int
	searchRoot  string
	logFile     string
	metricsAddr string
	noProgress  bool
}

// runUpload executes the 'upload' CLI command: validate the source file
// against the target database, convert its records, and write them
// through the worker pool.
func runUpload(args []string, configPath string, globals GlobalFlags) {
	f, rest := parseUploadFlags(args)

	if len(rest) != 1 {
		errors.FatalError(errors.NewInputError(
			"Invalid arguments",
			"The upload command takes exactly one input file",
			"Run 'tabsync upload --help' for usage",
		), globals.JSON)
	}
	file := rest[0]

	if f.db == "" && f.parentPage == "" {
		errors.FatalError(errors.NewInputError(
			"No target database",
			"Neither --db nor --parent-page was given",
			"Pass --db to upload into an existing database, or --parent-page to create one",
		), globals.JSON)
	}

	rules, err := buildRules(f, file)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	types, err := parseColumnTypes(f.columnTypes)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	delim, err := parseDelimiter(f.delimiter)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess, err := bootstrap.Open(ctx, bootstrap.SessionConfig{
		ConfigPath: configPath,
		Token:      f.token,
		Workers:    f.workers,
		LogFile:    f.logFile,
		Verbose:    globals.Verbose,
	})
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	defer func() { _ = sess.Close() }()

	// Graceful shutdown: retry sleeps and the dispatcher observe the
	// cancelled context, so a second signal is never needed.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		sess.Log.Info("shutdown.signal", "signal", sig.String())
		cancel()
	}()

	if f.metricsAddr != "" {
		serveMetrics(f.metricsAddr, sess.Log)
	}
	rules.Logger = sess.Log

	progress := NewProgressConfig(globals)
	if f.noProgress {
		progress.Enabled = false
	}

	src, err := rowsource.Read(file, rowsource.Options{
		ColumnTypes:            types,
		KeyColumn:              f.keyColumn,
		Delimiter:              delim,
		FailOnDuplicateColumns: f.failOnDupCSV,
		Logger:                 sess.Log,
	})
	if err != nil {
		errors.FatalError(errors.NewInputError(
			"Cannot read "+filepath.Base(file),
			err.Error(),
			"tabsync reads .csv files and .json arrays of flat objects",
		), globals.JSON)
	}
	if src.Len() == 0 {
		errors.FatalError(errors.NewInputError(
			"Nothing to upload",
			fmt.Sprintf("%s has no data rows", filepath.Base(file)),
			"",
		), globals.JSON)
	}

	cache, createdTitle, err := resolveCollection(ctx, sess, src, f, file)
	if err != nil {
		errors.FatalError(promoteError("Cannot open the target database", err), globals.JSON)
	}
	if createdTitle != "" && !globals.Quiet {
		ui.Successf("Created database %q (%s)", createdTitle, cache.ID())
	}

	spin := NewSpinner(progress, stageDescription("validate"))
	err = upload.NewPreparator(cache, src, rules).Prepare(ctx)
	if spin != nil {
		_ = spin.Finish()
	}
	if err != nil {
		errors.FatalError(promoteError("Validation failed", err), globals.JSON)
	}

	spin = NewSpinner(progress, stageDescription("convert"))
	rows, err := upload.NewConverter(cache, src, rules).Convert(ctx)
	if spin != nil {
		_ = spin.Finish()
	}
	if err != nil {
		errors.FatalError(promoteError("Conversion failed", err), globals.JSON)
	}
	if len(rows) == 0 {
		if !globals.Quiet {
			ui.Info("Every row was filtered out, nothing to upload")
		}
		return
	}

	captioner, err := buildCaptioner(f, rules)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	uploader := wsapi.NewUploader(sess.Client)

	newWorker := func() *upload.Engine {
		return upload.NewEngine(upload.EngineConfig{
			Cache:        cache.Clone(),
			Uploader:     uploader,
			Captioner:    captioner,
			CaptionModel: f.captionModel,
			Merge:        rules.Merge,
			Strict:       rules.FailOnConversionError,
			Logger:       sess.Log,
		})
	}

	bar := NewProgressBar(progress, int64(len(rows)), stageDescription("upload"))
	var created, updated int
	var failures []upload.Result

	yield := func(res upload.Result) {
		if bar != nil {
			_ = bar.Add(1)
		}
		switch {
		case res.Err != nil:
			failures = append(failures, res)
		case res.Created:
			created++
		default:
			updated++
		}
		if globals.JSON {
			_ = output.JSONCompact(newRowReport(res))
		}
	}

	procErr := upload.Process(ctx, rows, sess.Config.Workers, newWorker, yield)
	if bar != nil {
		_ = bar.Finish()
	}

	printUploadSummary(globals, len(rows), created, updated, failures)

	if procErr != nil {
		errors.FatalError(promoteError("Upload interrupted", procErr), globals.JSON)
	}
	if len(failures) > 0 {
		errors.FatalError(promoteError(
			fmt.Sprintf("%d of %d rows failed", len(failures), len(rows)),
			failures[0].Err,
		), globals.JSON)
	}
}

func parseUploadFlags(args []string) (uploadFlags, []string) {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	var f uploadFlags

	fs.StringVar(&f.db, "db", "", "Database ID to upload into")
	fs.StringVar(&f.parentPage, "parent-page", "", "Parent page ID; creates a new database there when --db is not given")
	fs.StringVar(&f.dbTitle, "db-title", "", "Title for a created database (default: input file name)")
	fs.StringVar(&f.token, "token", "", "Integration token (overrides config and TABSYNC_TOKEN)")

	fs.StringVar(&f.keyColumn, "key-column", "", "Column holding row keys (default: first column; JSON inputs usually need this)")
	fs.StringSliceVar(&f.columnTypes, "column-types", nil, "Comma-separated types for the content columns, in order (default: guessed)")
	fs.StringVar(&f.delimiter, "delimiter", ",", `CSV field delimiter (use \t for tabs)`)
	fs.BoolVar(&f.failOnDupCSV, "fail-on-duplicate-csv-columns", false, "Fail when the CSV header repeats a column name")

	fs.BoolVar(&f.merge, "merge", false, "Update rows whose key already exists instead of creating duplicates")
	fs.StringArrayVar(&f.mergeOnlyColumns, "merge-only-column", nil, "Restrict a merge to this column (repeatable)")
	fs.BoolVar(&f.mergeSkipNew, "merge-skip-new", false, "Merge only: skip rows whose key is not already in the database")

	fs.StringArrayVar(&f.imageColumns, "image-column", nil, "Column holding an image URL or local path per row (repeatable)")
	fs.BoolVar(&f.imageColumnKeep, "image-column-keep", false, "Also upload image columns as text properties")
	fs.StringVar(&f.imageMode, "image-mode", "block", "Where images go: block (page body) or cover")
	fs.StringVar(&f.imageCaptionColumn, "image-caption-column", "", "Column whose text captions the first image block")
	fs.BoolVar(&f.imageCaptionKeep, "image-caption-column-keep", false, "Also upload the caption column as a text property")
	fs.StringVar(&f.iconColumn, "icon-column", "", "Column holding the page icon (emoji, URL or local path)")
	fs.BoolVar(&f.iconColumnKeep, "icon-column-keep", false, "Also upload the icon column as a text property")
	fs.StringVar(&f.defaultIcon, "default-icon", "", "Icon for rows without one (emoji, URL or local path)")

	fs.StringVar(&f.captionImageColumn, "caption-image-column", "", "Column holding a local image to describe with the caption provider")
	fs.StringVar(&f.captionTargetColumn, "caption-target-column", "", "Column that receives the generated description")
	fs.StringVar(&f.captionProvider, "caption-provider", "huggingface", "Caption provider: huggingface or mock")
	fs.StringVar(&f.captionModel, "caption-model", "", "Caption model name (default: provider default)")

	fs.StringArrayVar(&f.mandatoryColumns, "mandatory-column", nil, "Column that must exist and be non-empty in every row (repeatable)")
	fs.BoolVar(&f.addMissingColumns, "add-missing-columns", false, "Add source columns missing from the database schema instead of dropping them")
	fs.BoolVar(&f.failOnMissingColumns, "fail-on-missing-columns", false, "Fail when the source has columns the database lacks")
	fs.StringVar(&f.missingRelations, "missing-relations", "ignore", "Unresolved relation values: ignore, add or fail")
	fs.BoolVar(&f.failOnConversionError, "fail-on-conversion-error", false, "Fail on any cell that does not parse as its column type")
	fs.BoolVar(&f.failOnDuplicates, "fail-on-duplicates", false, "Fail on duplicate keys in the source or the database")
	fs.BoolVar(&f.failOnRelationDuplicates, "fail-on-relation-duplicates", false, "Fail when a related database has rows sharing a key")
	fs.BoolVar(&f.failOnUnsettableColumns, "fail-on-unsettable-columns", false, "Fail on columns whose database type cannot be written")
	fs.BoolVar(&f.failOnInaccessibleRelations, "fail-on-inaccessible-relations", false, "Fail on relation columns pointing at databases this token cannot read")
	fs.BoolVar(&f.failOnWrongStatusValues, "fail-on-wrong-status-values", false, "Fail on status values missing from the column's options")
	fs.BoolVar(&f.randomizeColors, "randomize-colors", false, "Give auto-created select options random colors instead of the default")

	fs.IntVar(&f.workers, "workers", 0, "Parallel upload workers (default from config; 1 preserves row order)")
	fs.StringVar(&f.searchRoot, "search-root", "", "Directory relative cell paths resolve against (default: the input file's directory)")
	fs.StringVar(&f.logFile, "log", "", "Mirror the run log into this rotating file")
	fs.StringVar(&f.metricsAddr, "metrics", "", "HTTP listen address for Prometheus metrics (empty to disable)")
	fs.BoolVar(&f.noProgress, "no-progress", false, "Disable the progress bar")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: tabsync upload [options] FILE

Description:
  Upload a CSV or JSON record file into a workspace database. Without
  --merge every row is created; with --merge rows whose key matches an
  existing row update it in place. Select and multi-select options the
  database lacks are added on the fly; files, images and icons are
  uploaded and attached per row.

Arguments:
  FILE    Input file: .csv, or .json holding an array of flat objects

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  tabsync upload tasks.csv --db 8f2ab31c
  tabsync upload tasks.csv --db 8f2ab31c --merge --workers 1
  tabsync upload tasks.csv --parent-page 77bc02ce --db-title "Tasks"
  tabsync upload art.csv --db 8f2ab31c --image-column Preview --image-mode cover
  tabsync upload art.csv --db 8f2ab31c --caption-image-column Preview \
      --caption-target-column Description --caption-provider huggingface
  tabsync upload big.csv --db 8f2ab31c --metrics :9090 --log /var/log/tabsync.log
`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	return f, fs.Args()
}

// buildRules maps flags onto upload rules. Pure flag validation; the
// preparation pipeline checks everything that needs the schema.
func buildRules(f uploadFlags, file string) (upload.Rules, error) {
	var mode upload.ImageMode
	switch f.imageMode {
	case "", "block":
		mode = upload.ImageModeBlock
	case "cover":
		mode = upload.ImageModeCover
	default:
		return upload.Rules{}, errors.NewInputError(
			"Invalid --image-mode",
			fmt.Sprintf("%q is not a supported image mode", f.imageMode),
			"Use block or cover",
		)
	}

	var policy upload.RelationPolicy
	switch f.missingRelations {
	case "", "ignore":
		policy = upload.RelationIgnore
	case "add":
		policy = upload.RelationAdd
	case "fail":
		policy = upload.RelationFail
	default:
		return upload.Rules{}, errors.NewInputError(
			"Invalid --missing-relations",
			fmt.Sprintf("%q is not a supported policy", f.missingRelations),
			"Use ignore, add or fail",
		)
	}

	searchRoot := f.searchRoot
	if searchRoot == "" {
		searchRoot = filepath.Dir(file)
	}
	searchRoot, err := filepath.Abs(searchRoot)
	if err != nil {
		return upload.Rules{}, errors.NewInputError(
			"Invalid --search-root",
			err.Error(),
			"Pass a directory that exists",
		)
	}

	return upload.Rules{
		Merge:            f.merge,
		MergeOnlyColumns: f.mergeOnlyColumns,
		MergeSkipNew:     f.mergeSkipNew,

		ImageColumns:       f.imageColumns,
		ImageColumnKeep:    f.imageColumnKeep,
		ImageMode:          mode,
		ImageCaptionColumn: f.imageCaptionColumn,
		ImageCaptionKeep:   f.imageCaptionKeep,
		IconColumn:         f.iconColumn,
		IconColumnKeep:     f.iconColumnKeep,
		DefaultIcon:        f.defaultIcon,

		CaptionImageColumn:  f.captionImageColumn,
		CaptionTargetColumn: f.captionTargetColumn,

		MandatoryColumns:     f.mandatoryColumns,
		AddMissingColumns:    f.addMissingColumns,
		FailOnMissingColumns: f.failOnMissingColumns,
		MissingRelations:     policy,

		FailOnConversionError:       f.failOnConversionError,
		FailOnDuplicates:            f.failOnDuplicates,
		FailOnRelationDuplicates:    f.failOnRelationDuplicates,
		FailOnUnsettableColumns:     f.failOnUnsettableColumns,
		FailOnInaccessibleRelations: f.failOnInaccessibleRelations,
		FailOnWrongStatusValues:     f.failOnWrongStatusValues,

		SearchRoot: searchRoot,
	}, nil
}

func parseColumnTypes(names []string) ([]property.Type, error) {
	if len(names) == 0 {
		return nil, nil
	}
	types := make([]property.Type, 0, len(names))
	for _, name := range names {
		t, err := property.ParseType(name)
		if err != nil {
			return nil, errors.NewInputError(
				"Invalid --column-types",
				err.Error(),
				"Pass one type per content column, e.g. --column-types text,number,select",
			)
		}
		types = append(types, t)
	}
	return types, nil
}

func parseDelimiter(s string) (rune, error) {
	if s == `\t` || s == "tab" {
		return '\t', nil
	}
	runes := []rune(s)
	if len(runes) != 1 {
		return 0, errors.NewInputError(
			"Invalid --delimiter",
			fmt.Sprintf("%q is not a single character", s),
			`Use a single character, or \t for tab-separated files`,
		)
	}
	return runes[0], nil
}

// resolveCollection opens the target database, or creates one under
// --parent-page mirroring the source's columns. The second return is
// the created database's title, empty when an existing one was opened.
func resolveCollection(ctx context.Context, sess *bootstrap.Session, src *rowsource.Source, f uploadFlags, file string) (*collection.Cache, string, error) {
	if f.db != "" {
		return sess.Collection(f.db, f.randomizeColors), "", nil
	}

	title := f.dbTitle
	if title == "" {
		base := filepath.Base(file)
		title = strings.TrimSuffix(base, filepath.Ext(base))
	}

	specs := make([]collection.ColumnSpec, 0, len(src.Columns()))
	specs = append(specs, collection.ColumnSpec{Name: src.KeyColumn(), Type: property.TypeTitle})
	for _, col := range src.ContentColumns() {
		t, _ := src.ColumnType(col)
		specs = append(specs, collection.ColumnSpec{Name: col, Type: t})
	}

	cache, err := collection.CreateDatabase(ctx, sess.Client, f.parentPage, title, specs, collection.Options{
		RandomizeColors: f.randomizeColors,
		Logger:          sess.Log,
	})
	if err != nil {
		return nil, "", err
	}
	return cache, title, nil
}

func buildCaptioner(f uploadFlags, rules upload.Rules) (caption.Captioner, error) {
	if rules.CaptionImageColumn == "" || rules.CaptionTargetColumn == "" {
		return nil, nil
	}
	captioner, err := caption.NewCaptioner(caption.ProviderConfig{
		Type:         f.captionProvider,
		DefaultModel: f.captionModel,
	})
	if err != nil {
		return nil, errors.NewInputError(
			"Cannot build the caption provider",
			err.Error(),
			"Use --caption-provider huggingface (set HUGGING_FACE_TOKEN) or mock",
		)
	}
	return captioner, nil
}

// serveMetrics exposes Prometheus metrics for long runs.
func serveMetrics(addr string, logger *slog.Logger) {
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: addr, Handler: mux}
		logger.Info("metrics.http.start", "addr", addr, "path", "/metrics")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics.http.error", "err", err)
		}
	}()
}

// rowReport is the per-row line streamed to stdout in --json mode.
type rowReport struct {
	Key     string `json:"key"`
	ID      string `json:"id,omitempty"`
	URL     string `json:"url,omitempty"`
	Created bool   `json:"created"`
	Error   string `json:"error,omitempty"`
}

func newRowReport(res upload.Result) rowReport {
	r := rowReport{
		Key:     res.Key,
		ID:      res.Row.ID,
		URL:     res.Row.URL,
		Created: res.Created,
	}
	if res.Err != nil {
		r.Error = res.Err.Error()
	}
	return r
}

// maxFailureLines bounds the per-row error lines echoed to the
// terminal. The full list still goes to the JSON stream and the log.
const maxFailureLines = 10

func printUploadSummary(globals GlobalFlags, total, created, updated int, failures []upload.Result) {
	if globals.JSON || globals.Quiet {
		return
	}
	for i, res := range failures {
		if i == maxFailureLines {
			fmt.Println(ui.DimText(fmt.Sprintf("... and %d more failed rows", len(failures)-maxFailureLines)))
			break
		}
		ui.Errorf("%s: %v", res.Key, res.Err)
	}
	if len(failures) == 0 {
		ui.Successf("Uploaded %d rows: %d created, %d updated", total, created, updated)
		return
	}
	ui.Warningf("Uploaded %d of %d rows: %d created, %d updated, %d failed",
		total-len(failures), total, created, updated, len(failures))
}

// promoteError maps a pipeline error onto the user error taxonomy.
// Packages below the command layer return plain wrapped errors plus
// typed wsapi errors; the exit-code decision happens here.
func promoteError(msg string, err error) *errors.UserError {
	var ue *errors.UserError
	if stderrors.As(err, &ue) {
		return ue
	}
	switch {
	case stderrors.Is(err, context.Canceled):
		return &errors.UserError{Message: "Interrupted", Cause: msg, ExitCode: 130, Err: err}
	case wsapi.IsUnauthorized(err), wsapi.IsForbidden(err):
		return errors.NewPermissionError(msg, err.Error(),
			"Share the database with the integration and check its capabilities", err)
	case wsapi.IsNotFound(err):
		return errors.NewNotFoundError(msg, err.Error(),
			"Check the database ID and that it is shared with the integration")
	case wsapi.IsConflict(err):
		return errors.NewDatabaseError(msg, err.Error(),
			"Another writer kept changing the database; run the upload again", err)
	case wsapi.IsValidation(err):
		return errors.NewInputError(msg, err.Error(),
			"The API rejected the payload; check the column values")
	case wsapi.IsRateLimited(err), wsapi.Retryable(err):
		return errors.NewNetworkError(msg, err.Error(),
			"The API kept failing after all retries; try again later", err)
	default:
		if _, ok := wsapi.AsError(err); ok {
			return errors.NewDatabaseError(msg, err.Error(), "", err)
		}
		return errors.NewInputError(msg, err.Error(), "")
	}
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/APIExplore/api-explore-backend/internal/executor"
	"github.com/APIExplore/api-explore-backend/internal/parser"
	"github.com/APIExplore/api-explore-backend/internal/server"
	"github.com/APIExplore/api-explore-backend/internal/testdata"
)

const usage = `Usage: api-explore <command> [flags]

Commands:
  run        run a call sequence against the system under test
  restore    replay a recorded call sequence
  paths      list the operations of an API schema
  serve      start the HTTP API
  sequences  list, rename or delete recorded call sequences

Run "api-explore <command> -h" for the flags of a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "run":
		err = runCommand(args)
	case "restore":
		err = restoreCommand(args)
	case "paths":
		err = pathsCommand(args)
	case "serve":
		err = serveCommand(args)
	case "sequences":
		err = sequencesCommand(args)
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}

	if errors.Is(err, flag.ErrHelp) {
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, executor.ErrSutUnreachable) {
			os.Exit(3)
		}
		os.Exit(1)
	}
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to the config file")
	schemaSource := fs.String("schema", "", "API schema file or service URL")
	schemaName := fs.String("schema-name", "", "Name to store the API schema under")
	sequencePath := fs.String("sequence", "", "Call sequence file (JSON or YAML)")
	name := fs.String("name", "", "Override the call sequence name")
	random := fs.Bool("random", false, "Generate parameter values instead of using the given ones")
	callByCall := fs.Bool("call-by-call", false, "Append the calls to the recorded sequence")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *schemaSource == "" || *sequencePath == "" {
		fs.Usage()
		return errors.New("-schema and -sequence are required")
	}

	req, err := testdata.NewLoader(filepath.Dir(*sequencePath)).LoadRunRequest(filepath.Base(*sequencePath))
	if err != nil {
		return err
	}
	if *name != "" {
		req.Name = *name
	}
	if *callByCall {
		req.CallByCall = true
	}

	a, err := newApp(*configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	sess, err := a.activate(ctx, *schemaSource, *schemaName)
	if err != nil {
		return err
	}
	for _, w := range sess.Warnings {
		a.logger.Warn(w.Warning)
	}

	resp, runErr := a.runner.Run(ctx, sess, req, *random)
	if resp != nil {
		if err := printJSON(resp); err != nil {
			return err
		}
	}
	if runErr != nil {
		return runErr
	}

	paths, err := a.reporter.GenerateReport(ctx, sess.SchemaName, req.Name, resp)
	if err != nil {
		return err
	}
	for _, path := range paths {
		fmt.Fprintf(os.Stderr, "Report written to %s\n", path)
	}
	return nil
}

func restoreCommand(args []string) error {
	fs := flag.NewFlagSet("restore", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to the config file")
	schemaSource := fs.String("schema", "", "API schema file or service URL")
	schemaName := fs.String("schema-name", "", "Name the API schema is stored under")
	name := fs.String("name", "", "Call sequence to replay")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *schemaSource == "" || *name == "" {
		fs.Usage()
		return errors.New("-schema and -name are required")
	}

	a, err := newApp(*configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	sess, err := a.activate(ctx, *schemaSource, *schemaName)
	if err != nil {
		return err
	}

	resp, err := a.runner.Restore(ctx, sess, *name)
	if resp != nil {
		if perr := printJSON(resp); perr != nil {
			return perr
		}
	}
	return err
}

func pathsCommand(args []string) error {
	fs := flag.NewFlagSet("paths", flag.ContinueOnError)
	schemaSource := fs.String("schema", "", "API schema file or service URL")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *schemaSource == "" {
		fs.Usage()
		return errors.New("-schema is required")
	}

	var (
		schema *parser.Schema
		err    error
	)
	if strings.HasPrefix(*schemaSource, "http://") || strings.HasPrefix(*schemaSource, "https://") {
		schema, err = parser.NewFetcher(&http.Client{Timeout: 30 * time.Second}, zap.NewNop()).
			LoadFromURL(context.Background(), *schemaSource)
	} else {
		schema, err = parser.LoadFromFile(*schemaSource)
	}
	if err != nil {
		return err
	}

	fmt.Printf("API schema %s, base URL %s\n", schema.Version, schema.BaseURL)
	paths := parser.ListPaths(schema)
	names := make([]string, 0, len(paths))
	for path := range paths {
		names = append(names, path)
	}
	sort.Strings(names)
	for _, path := range names {
		methods := make([]string, 0, len(paths[path]))
		for method := range paths[path] {
			methods = append(methods, method)
		}
		sort.Strings(methods)
		for _, method := range methods {
			fmt.Printf("  %-7s %s  %s\n", strings.ToUpper(method), path, paths[path][method])
		}
	}
	for _, w := range parser.Validate(context.Background(), schema) {
		fmt.Fprintln(os.Stderr, w.Warning)
	}
	return nil
}

func serveCommand(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to the config file")
	addr := fs.String("addr", "", "Listen address, overrides the config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := newApp(*configPath)
	if err != nil {
		return err
	}
	defer a.Close()
	if *addr == "" {
		*addr = a.cfg.Server.Addr
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	server.NewHandler(server.Deps{
		Sessions:    a.sessions,
		Runner:      a.runner,
		Store:       a.store,
		Fetcher:     a.fetcher,
		Reporter:    a.reporter,
		Live:        a.hub,
		Metrics:     a.metrics.Handler(),
		BaseURL:     a.cfg.Environment.BaseURL,
		MetricsPath: a.cfg.Server.MetricsPath,
	}, a.logger).RegisterRoutes(e)

	errCh := make(chan error, 1)
	go func() {
		if err := e.Start(*addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	a.logger.Info("API explorer started", zap.String("addr", *addr))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	a.logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(ctx)
}

func sequencesCommand(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: api-explore sequences list|rename|delete -schema-name <name> [flags]")
	}
	action := args[0]

	fs := flag.NewFlagSet("sequences "+action, flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to the config file")
	schemaName := fs.String("schema-name", "", "Name the API schema is stored under")
	name := fs.String("name", "", "Call sequence name")
	newName := fs.String("new-name", "", "New call sequence name (rename)")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	if *schemaName == "" {
		fs.Usage()
		return errors.New("-schema-name is required")
	}

	a, err := newApp(*configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	schemaID, err := a.schemaID(ctx, *schemaName)
	if err != nil {
		return err
	}

	switch action {
	case "list":
		sequences, err := a.store.ListSequences(ctx, schemaID)
		if err != nil {
			return err
		}
		for _, seq := range sequences {
			fmt.Printf("%-30s %3d calls  %s\n", seq.Name, seq.NumCalls, seq.CreatedAt.Format(time.RFC3339))
		}
		return nil
	case "rename":
		if *name == "" || *newName == "" {
			return errors.New("-name and -new-name are required")
		}
		return a.store.RenameSequence(ctx, schemaID, *name, *newName)
	case "delete":
		if *name == "" {
			return errors.New("-name is required")
		}
		return a.store.DeleteSequence(ctx, schemaID, *name)
	default:
		return fmt.Errorf("unknown sequences action %q", action)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

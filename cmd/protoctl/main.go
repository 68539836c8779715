package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/skirmish-net/skirmish/internal/protoctl"
	"github.com/skirmish-net/skirmish/internal/schema"
	"github.com/skirmish-net/skirmish/internal/shared"
	"github.com/skirmish-net/skirmish/internal/storage"
	"github.com/tidwall/pretty"
	"go.uber.org/zap"
)

var (
	format     = flag.String("format", "table", "Output format: table or json")
	schemaPath = flag.String("schema", "", "Schema document to check for drift before validating")
	dbPath     = flag.String("db", "./skirmish.db", "Violation audit database")
	peerID     = flag.String("peer", "", "Filter violations by peer id")
	kind       = flag.String("kind", "", "Filter violations by kind (syntax, envelope_shape, unknown_message_type, payload, session)")
	limit      = flag.Int("limit", 100, "Maximum rows to print")
)

func main() {
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "validate":
		handleValidate(args[1:])
	case "encode":
		handleEncode(args[1:])
	case "schema":
		handleSchema(args[1:])
	case "violations":
		handleViolations()
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n", args[0])
		os.Exit(1)
	}
}

func handleValidate(args []string) {
	var in io.Reader = os.Stdin
	if len(args) > 0 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		in = f
	}

	var artifact *schema.Artifact
	logger := zap.NewNop()
	if *schemaPath != "" {
		logger = newCLILogger()
		artifact = schema.Load(*schemaPath, logger)
	}
	validator := shared.NewValidator(artifact, logger)

	results, err := protoctl.ValidateLines(in, validator)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *format == "json" {
		printJSON(results)
	} else {
		printResultsTable(results)
	}

	if _, invalid := protoctl.Summarize(results); invalid > 0 {
		os.Exit(2)
	}
}

func handleEncode(args []string) {
	if len(args) < 3 {
		fmt.Fprintf(os.Stderr, "Error: encode requires <type> <seq> <payload>\n")
		os.Exit(1)
	}
	seq, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid seq %q\n", args[1])
		os.Exit(1)
	}
	data, err := protoctl.Encode(args[0], seq, args[2])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *format == "json" {
		os.Stdout.Write(pretty.Pretty(data))
		return
	}
	fmt.Println(string(data))
}

func handleSchema(args []string) {
	if len(args) == 0 {
		fmt.Fprintf(os.Stderr, "Error: schema requires a path\n")
		os.Exit(1)
	}
	report, err := protoctl.InspectSchema(args[0], newCLILogger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *format == "json" {
		printJSON(report)
		return
	}
	printSchemaReport(report)
}

func handleViolations() {
	violations, err := protoctl.QueryViolations(protoctl.ViolationQuery{
		DBPath: *dbPath,
		PeerID: *peerID,
		Kind:   *kind,
		Limit:  *limit,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *format == "json" {
		printJSON(violations)
		return
	}
	printViolationsTable(violations)
}

func newCLILogger() *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{"stderr"}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func printJSON(data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	os.Stdout.Write(pretty.Pretty(raw))
}

func printResultsTable(results []protoctl.Result) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LINE\tRESULT\tTYPE\tSEQ\tCODE\tDETAIL")
	for _, r := range results {
		seq := "-"
		if r.Seq != nil {
			seq = strconv.FormatInt(*r.Seq, 10)
		}
		status, detail := "ok", string(r.Canonical)
		if !r.Valid {
			status, detail = r.Kind, r.Error
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", r.Line, status, orDash(r.Type), seq, orDash(r.Code), detail)
	}
	w.Flush()

	valid, invalid := protoctl.Summarize(results)
	fmt.Printf("\n%d valid, %d invalid\n", valid, invalid)
}

func printSchemaReport(r *protoctl.SchemaReport) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "PATH\t%s\n", r.Path)
	fmt.Fprintf(w, "PROTOCOL_VERSION\t%s\n", orDash(r.ProtocolVersion))
	fmt.Fprintf(w, "SCHEMA_VERSION\t%s\n", orDash(r.SchemaVersion))
	fmt.Fprintf(w, "LOAD_MS\t%.3f\n", r.LoadDurationMs)
	w.Flush()

	fmt.Println()
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MESSAGE\tID\tCOMPILED")
	for _, m := range r.Messages {
		compiled := "-"
		if m.CompiledID != nil {
			compiled = strconv.Itoa(*m.CompiledID)
		}
		fmt.Fprintf(w, "%s\t%d\t%s\n", m.Name, m.ID, compiled)
	}
	w.Flush()

	if len(r.ErrorCodes) > 0 {
		fmt.Println()
		w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ERROR_CODE\tVALUE")
		for _, c := range r.ErrorCodes {
			fmt.Fprintf(w, "%s\t%d\n", c.Name, c.Code)
		}
		w.Flush()
	}

	fmt.Println()
	if len(r.Drift) == 0 {
		fmt.Println("no drift")
		return
	}
	for _, d := range r.Drift {
		fmt.Printf("drift: %s\n", d)
	}
}

func printViolationsTable(violations []storage.Violation) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tPEER_ID\tKIND\tTYPE\tFIELD\tCODE\tREASON")
	for _, v := range violations {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			v.CreatedAt.Format("2006-01-02 15:04:05"), v.PeerID, v.Kind, orDash(v.MessageType), orDash(v.Field), v.Code, v.Reason)
	}
	w.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: protoctl [flags] <command> [args]

Commands:
  validate [file]              Validate one envelope per line (stdin when no file or "-")
  encode <type> <seq> <json>   Build a canonical envelope
  schema <path>                Show a schema document and its drift from this build
  violations                   List recorded violations (-db, -peer or -kind)
  help                         Show this help

Flags:
`)
	flag.PrintDefaults()
}

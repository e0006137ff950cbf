package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/opensanctions/graph/pkg/datasets"
	"github.com/opensanctions/graph/pkg/datasets/cyprus"
	"github.com/opensanctions/graph/pkg/datasets/germany"
	"github.com/opensanctions/graph/pkg/datasets/moldova"
	"github.com/opensanctions/graph/pkg/graph"
	"github.com/opensanctions/graph/pkg/identity"
	"github.com/opensanctions/graph/pkg/mapping"
	"github.com/opensanctions/graph/pkg/model"
	"github.com/opensanctions/graph/pkg/reference"
	"github.com/opensanctions/graph/pkg/sink"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "graph",
		Short: "Company registry graph builder",
		Long: `Graph normalizes heterogeneous company-registry extracts into a
canonical entity-relationship graph with stable identifiers.

It ingests registry snapshots and produces:
  - Organisation, person, and legal-entity nodes
  - Directorship and ownership edges
  - Deterministic ids safe to union across runs`,
		Version: version,
	}

	rootCmd.AddCommand(ingestCmd())
	rootCmd.AddCommand(extractCmd())
	rootCmd.AddCommand(mappingsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func ingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest a registry extract",
		Long: `Ingest a registry extract and emit the normalized graph.

The cyprus dataset reads three CSV streams (organisations, officials,
registered offices); moldova reads company rows as CSV; germany reads
the register dump as JSONL.

Example:
  graph ingest --dataset de --input companies.jsonl --output graph.jsonl
  graph ingest --dataset cy --input orgs.csv --officials officials.csv \
      --addresses offices.csv --db graph.db --stats`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dataset, _ := cmd.Flags().GetString("dataset")
			input, _ := cmd.Flags().GetString("input")
			officials, _ := cmd.Flags().GetString("officials")
			addresses, _ := cmd.Flags().GetString("addresses")
			output, _ := cmd.Flags().GetString("output")
			dbPath, _ := cmd.Flags().GetString("db")
			mappingsDir, _ := cmd.Flags().GetString("mappings")
			showStats, _ := cmd.Flags().GetBool("stats")

			if input == "" {
				return fmt.Errorf("--input flag is required")
			}

			registry := mapping.NewRegistry()
			if err := registerBuiltinSpecs(registry); err != nil {
				return err
			}
			if mappingsDir != "" {
				if err := registry.LoadDirectory(mappingsDir); err != nil {
					return fmt.Errorf("loading mappings: %w", err)
				}
			}

			out, closeSinks, err := openSink(cmd.Context(), output, dbPath, dataset)
			if err != nil {
				return err
			}
			defer closeSinks()

			log := slog.New(slog.NewTextHandler(os.Stderr, nil))
			emitter := graph.NewEmitter(out)
			startTime := time.Now()

			var rc *datasets.Context
			switch dataset {
			case "cy":
				rc = datasets.NewContext(emitter, identity.New(cyprus.Meta.Prefix), registry, log)
				err = ingestCyprus(rc, input, officials, addresses)
			case "md":
				rc = datasets.NewContext(emitter, identity.New(moldova.Meta.Prefix), registry, log)
				err = ingestMoldova(rc, input)
			case "de":
				rc = datasets.NewContext(emitter, identity.New(germany.Meta.Prefix), registry, log)
				err = ingestGermany(rc, input)
			default:
				return fmt.Errorf("unknown dataset %q (want cy, md, or de)", dataset)
			}
			if err != nil {
				return err
			}

			emitted := emitter.Stats()
			read := rc.Stats()
			fmt.Printf("Ingested %d records in %s\n", read.Records, time.Since(startTime).Round(time.Millisecond))
			fmt.Printf("  entities:      %d\n", emitted.Entities)
			fmt.Printf("  relationships: %d\n", emitted.Relationships)
			if showStats {
				fmt.Printf("  merged:        %d\n", emitted.Merged)
				fmt.Printf("  suppressed:    %d\n", emitted.Suppressed)
				fmt.Printf("  skipped:       %d\n", read.Skipped)
				fmt.Printf("  warnings:      %d\n", read.Warnings)
			}
			return nil
		},
	}

	cmd.Flags().String("dataset", "", "Dataset to ingest: cy, md, or de")
	cmd.Flags().String("input", "", "Primary input file (companies stream)")
	cmd.Flags().String("officials", "", "Officials stream (cy only)")
	cmd.Flags().String("addresses", "", "Registered-office stream (cy only)")
	cmd.Flags().String("output", "", "JSONL output path, - for stdout")
	cmd.Flags().String("db", "", "SQLite output path")
	cmd.Flags().String("mappings", "", "Directory of mapping spec overrides (YAML)")
	cmd.Flags().Bool("stats", false, "Print merge and skip counters")
	cmd.MarkFlagRequired("dataset")

	return cmd
}

func ingestCyprus(rc *datasets.Context, input, officials, addresses string) error {
	lookup := map[string]string{}
	if addresses != "" {
		reader, err := openCSV(addresses)
		if err != nil {
			return err
		}
		defer reader.Close()
		if lookup, err = cyprus.LoadAddresses(reader); err != nil {
			return err
		}
		fmt.Printf("Loaded %d registered-office addresses\n", len(lookup))
	}

	orgs, err := openCSV(input)
	if err != nil {
		return err
	}
	defer orgs.Close()
	if err := cyprus.ParseOrganisations(rc, orgs, lookup); err != nil {
		return err
	}

	if officials == "" {
		return nil
	}
	offs, err := openCSV(officials)
	if err != nil {
		return err
	}
	defer offs.Close()
	return cyprus.ParseOfficials(rc, offs)
}

func ingestMoldova(rc *datasets.Context, input string) error {
	reader, err := openCSV(input)
	if err != nil {
		return err
	}
	defer reader.Close()
	return moldova.ParseCompanies(rc, reader)
}

func ingestGermany(rc *datasets.Context, input string) error {
	reader, err := openJSONL(input)
	if err != nil {
		return err
	}
	defer reader.Close()
	return germany.NewParser().ParseRecords(rc, reader)
}

// openSink builds the configured sink chain. At least one of output and
// dbPath must be set.
func openSink(ctx context.Context, output, dbPath, dataset string) (graph.Sink, func(), error) {
	var sinks multiSink
	var closers []func()

	if output == "-" {
		sinks = append(sinks, sink.NewJSONL(os.Stdout))
	} else if output != "" {
		file, err := os.Create(output)
		if err != nil {
			return nil, nil, fmt.Errorf("creating %s: %w", output, err)
		}
		closers = append(closers, func() { file.Close() })
		sinks = append(sinks, sink.NewJSONL(file))
	}

	if dbPath != "" {
		db, err := sink.OpenSQLite(ctx, dbPath, dataset)
		if err != nil {
			return nil, nil, fmt.Errorf("opening %s: %w", dbPath, err)
		}
		closers = append(closers, func() { db.Close() })
		sinks = append(sinks, db)
	}

	if len(sinks) == 0 {
		return nil, nil, fmt.Errorf("no output configured: set --output and/or --db")
	}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	return sinks, closeAll, nil
}

// multiSink fans each record out to every configured sink.
type multiSink []graph.Sink

func (m multiSink) WriteEntity(entity *model.Entity) error {
	for _, s := range m {
		if err := s.WriteEntity(entity); err != nil {
			return err
		}
	}
	return nil
}

func (m multiSink) WriteRelationship(rel *model.Relationship) error {
	for _, s := range m {
		if err := s.WriteRelationship(rel); err != nil {
			return err
		}
	}
	return nil
}

func registerBuiltinSpecs(registry *mapping.Registry) error {
	var specs []*mapping.Spec
	specs = append(specs, cyprus.Specs()...)
	specs = append(specs, moldova.Specs()...)
	specs = append(specs, germany.Specs()...)
	for _, spec := range specs {
		if err := registry.Register(spec); err != nil {
			return fmt.Errorf("registering %s: %w", spec.Name, err)
		}
	}
	return nil
}

func extractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract [text...]",
		Short: "Parse a free-text register reference",
		Long: `Parse free-text company references against the register grammars
and print the captured fields. Useful for checking why a reference did
or did not resolve to a structured key.

Example:
  graph extract "HA Invest GmbH, Hamburg (Amtsgericht Hamburg HRB 125617)."`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			extractor := reference.NewExtractor()
			for _, input := range args {
				ref, ok := extractor.Extract(input)
				if !ok {
					fmt.Printf("no match: %s\n", input)
					continue
				}
				fmt.Printf("name:     %s\n", ref.Name)
				if ref.City != "" {
					fmt.Printf("city:     %s\n", ref.City)
				}
				fmt.Printf("register: %s\n", ref.RegistrationNumber())
				if ref.Summary != "" {
					fmt.Printf("summary:  %s\n", ref.Summary)
				}
			}
			return nil
		},
	}
}

func mappingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mappings",
		Short: "List field mapping specs",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			registry := mapping.NewRegistry()
			if err := registerBuiltinSpecs(registry); err != nil {
				return err
			}
			if dir != "" {
				if err := registry.LoadDirectory(dir); err != nil {
					return fmt.Errorf("loading mappings: %w", err)
				}
			}

			for _, spec := range registry.List() {
				fmt.Printf("%-32s v%-4s %2d fields  (%s)\n",
					spec.Name, spec.Version, len(spec.Fields), spec.Dataset)
			}
			fmt.Printf("%d specs registered\n", registry.Count())
			return nil
		},
	}
	cmd.Flags().String("dir", "", "Directory of mapping spec overrides (YAML)")
	return cmd
}

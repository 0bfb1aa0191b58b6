// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/cvdb/internal/authorcache"
	"github.com/pdiddy/cvdb/internal/cachestore"
	"github.com/pdiddy/cvdb/internal/names"
	"github.com/pdiddy/cvdb/pkg/types"
)

var authorCmd = &cobra.Command{
	Use:   "author",
	Short: "Query and maintain the author identity cache",
	Long: `Author manages the cache of author identities. Use subcommands to look
names up, record sightings, ingest sighting files, merge duplicates, and
export the cache.`,
}

// --- find subcommand ---

var authorFindCmd = &cobra.Command{
	Use:   "find NAME",
	Short: "Resolve an author name to a cached identity",
	Long: `Find runs the match cascade for NAME: exact variant lookup, then a
surname-gated similarity scan, then an edit-distance fallback. Use --exact to
stop after the first phase. A hit increments the record's lookup count.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAuthorFind,
}

func runAuthorFind(cmd *cobra.Command, args []string) error {
	exact, _ := cmd.Flags().GetBool("exact")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cache, store, err := openCache()
	if err != nil {
		return err
	}
	defer store.Close()

	rec, err := cache.Find(cmd.Context(), strings.Join(args, " "), !exact)
	if err != nil {
		return err
	}
	if rec == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "No cached identity found.")
		return nil
	}
	return printValue(cmd.OutOrStdout(), rec, jsonOutput)
}

// --- cache subcommand ---

var authorCacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Record one author sighting",
	Long: `Cache folds one sighting into the cache. The sighting is matched by
Scopus ID, then ORCID, then name; without a match a new identity is created.
At least one of --name, --scopus-id, or --orcid-id is required.`,
	RunE: runAuthorCache,
}

func runAuthorCache(cmd *cobra.Command, args []string) error {
	s := sightingFromFlags(cmd)
	if s.IsEmpty() {
		return fmt.Errorf("nothing to cache: provide --name, --scopus-id, or --orcid-id")
	}
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cache, store, err := openCache()
	if err != nil {
		return err
	}
	defer store.Close()

	rec, err := cache.Upsert(cmd.Context(), s)
	if err != nil {
		return err
	}
	return printValue(cmd.OutOrStdout(), rec, jsonOutput)
}

func sightingFromFlags(cmd *cobra.Command) types.Sighting {
	f := cmd.Flags()
	name, _ := f.GetString("name")
	scopusID, _ := f.GetString("scopus-id")
	orcid, _ := f.GetString("orcid-id")
	given, _ := f.GetString("given-name")
	surname, _ := f.GetString("surname")
	affs, _ := f.GetStringArray("affiliation")
	source, _ := f.GetString("source")

	s := types.Sighting{
		Name:         name,
		ScopusID:     scopusID,
		ORCID:        orcid,
		GivenName:    given,
		Surname:      surname,
		Affiliations: affs,
		Source:       types.ParseSource(source),
	}
	if f.Changed("confidence") {
		c, _ := f.GetFloat64("confidence")
		s.Confidence = &c
	}
	return s
}

// --- components subcommand ---

var authorComponentsCmd = &cobra.Command{
	Use:   "components NAME",
	Short: "Show how a name decomposes into surname, initials, and variants",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json")

		raw := strings.Join(args, " ")
		if cfg.AuthorCache.FoldAccents {
			raw = names.FoldAccents(raw)
		}
		c := names.Extract(raw)

		out := struct {
			names.Components `yaml:",inline"`
			Normalized       string `json:"normalized" yaml:"normalized"`
			Primary          string `json:"primary" yaml:"primary"`
			Canonical        string `json:"canonical" yaml:"canonical"`
		}{c, names.Normalize(raw), c.Primary(), c.Canonical()}
		return printValue(cmd.OutOrStdout(), out, jsonOutput)
	},
}

// --- ingest subcommand ---

var authorIngestCmd = &cobra.Command{
	Use:   "ingest FILE...",
	Short: "Upsert author sightings from YAML or JSON files",
	Long: `Ingest reads sighting files produced by the ORCID, Scopus, PubMed, and
CrossRef sync jobs and upserts every sighting. A file holds a list of
sightings or publications with authors lists. Use --dry-run to report what
would change without writing.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAuthorIngest,
}

func runAuthorIngest(cmd *cobra.Command, args []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	clearFirst, _ := cmd.Flags().GetBool("clear")
	ctx := cmd.Context()

	var sightings []types.Sighting
	for _, path := range args {
		s, err := authorcache.LoadSightings(path)
		if err != nil {
			return err
		}
		logger.Debug().Str("file", path).Int("sightings", len(s)).Msg("sightings loaded")
		sightings = append(sightings, s...)
	}

	cache, store, err := openCache()
	if err != nil {
		return err
	}
	defer store.Close()

	if dryRun {
		if cache, err = cache.Snapshot(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "dry run: no changes will be written")
	}
	if clearFirst {
		if err := cache.Store().Clear(ctx); err != nil {
			return fmt.Errorf("clearing identity cache: %w", err)
		}
		logger.Info().Bool("dry_run", dryRun).Msg("identity cache cleared")
	}

	summary, err := cache.IngestSightings(ctx, sightings, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d sighting(s) failed", summary.Failed)
	}
	return nil
}

// --- consolidate subcommand ---

var authorConsolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Merge duplicate identities",
	Long: `Consolidate groups records that share a Scopus ID or ORCID, or whose
names are similar within a surname, and merges each group into one record.
Records with conflicting identifiers are never merged. Use --dry-run to list
the groups without merging.`,
	RunE: runAuthorConsolidate,
}

func runAuthorConsolidate(cmd *cobra.Command, args []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	minConf, _ := cmd.Flags().GetFloat64("min-confidence")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cache, store, err := openCache()
	if err != nil {
		return err
	}
	defer store.Close()

	report, err := cache.Consolidate(cmd.Context(), authorcache.ConsolidateOptions{
		DryRun:        dryRun,
		MinConfidence: minConf,
	})
	if err != nil {
		return err
	}

	if jsonOutput {
		if err := printValue(cmd.OutOrStdout(), report, true); err != nil {
			return err
		}
	} else {
		formatConsolidation(cmd.OutOrStdout(), report)
	}
	if report.Failed > 0 {
		return fmt.Errorf("%d group(s) failed to merge", report.Failed)
	}
	return nil
}

func formatConsolidation(w io.Writer, r *authorcache.ConsolidationReport) {
	verb := "merged"
	if r.DryRun {
		verb = "would merge"
	}
	for _, g := range r.Groups {
		if g.Err != nil {
			fmt.Fprintf(w, "failed  [%s] %s: %v\n", g.Kind, g.Canonical, g.Err)
			continue
		}
		fmt.Fprintf(w, "%s [%s] %s <- %s\n", verb, g.Kind, g.Canonical, strings.Join(g.Folded, "; "))
	}
	fmt.Fprintf(w, "\ngroups: %d, merged: %d, remaining: %d, failed: %d (run %s)\n",
		r.GroupsConsolidated, r.EntriesMerged, r.EntriesRemaining, r.Failed, r.RunID)
}

// --- verify subcommand ---

var authorVerifyCmd = &cobra.Command{
	Use:   "verify ID",
	Short: "Mark an identity as verified",
	Long: `Verify stamps the identity with a verification time and method, and
records confirmed identifiers it lacks. A confirmed identifier that differs
from a stored one is rejected.`,
	Args: cobra.ExactArgs(1),
	RunE: runAuthorVerify,
}

func runAuthorVerify(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid identity id %q: %w", args[0], err)
	}
	method, _ := cmd.Flags().GetString("method")
	scopusID, _ := cmd.Flags().GetString("scopus-id")
	orcid, _ := cmd.Flags().GetString("orcid-id")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cache, store, err := openCache()
	if err != nil {
		return err
	}
	defer store.Close()

	rec, err := cache.Verify(cmd.Context(), id, method, authorcache.VerifiedIDs{ScopusID: scopusID, ORCID: orcid})
	if err != nil {
		return err
	}
	return printValue(cmd.OutOrStdout(), rec, jsonOutput)
}

// --- list subcommand ---

var authorListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached identities by confidence and use",
	RunE:  runAuthorList,
}

func runAuthorList(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	_, store, err := openCache()
	if err != nil {
		return err
	}
	defer store.Close()

	// Every normalized name contains the empty string, so this lists the
	// whole cache in candidate order.
	records, err := store.FindByNameContaining(cmd.Context(), "", limit)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printValue(cmd.OutOrStdout(), records, true)
	}
	formatList(cmd.OutOrStdout(), records)
	return nil
}

func formatList(w io.Writer, records []*types.IdentityRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No cached identities.")
		return
	}

	fmt.Fprintf(w, "%-6s  %-30s  %-12s  %-19s  %-5s  %s\n",
		"ID", "Name", "Scopus", "ORCID", "Conf", "Lookups")
	fmt.Fprintln(w, strings.Repeat("-", 90))
	for _, r := range records {
		name := r.NormalizedName
		if len(name) > 30 {
			name = name[:27] + "..."
		}
		fmt.Fprintf(w, "%-6d  %-30s  %-12s  %-19s  %-5.2f  %d\n",
			r.ID, name, r.ScopusID, r.ORCID, r.ConfidenceScore, r.LookupCount)
	}
	fmt.Fprintf(w, "\n%d identities\n", len(records))
}

// --- stats subcommand ---

var authorStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize identifier coverage and sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json")

		_, store, err := openCache()
		if err != nil {
			return err
		}
		defer store.Close()

		st, err := cachestore.ComputeStats(cmd.Context(), store)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printValue(cmd.OutOrStdout(), st, true)
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "identities:    %d\n", st.Total)
		fmt.Fprintf(w, "with scopus:   %d\n", st.WithScopus)
		fmt.Fprintf(w, "with orcid:    %d\n", st.WithORCID)
		fmt.Fprintf(w, "with both:     %d\n", st.WithBoth)
		fmt.Fprintf(w, "verified:      %d\n", st.Verified)
		fmt.Fprintf(w, "mean lookups:  %.2f\n", st.MeanLookups)
		for _, src := range st.Sources() {
			fmt.Fprintf(w, "source %-8s %d\n", src+":", st.BySource[src])
		}
		return nil
	},
}

// --- export subcommand ---

var authorExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the identity cache to YAML or JSON",
	Long: `Export writes every cached identity to --out, or to standard output
when --out is not set.`,
	RunE: runAuthorExport,
}

func runAuthorExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	out, _ := cmd.Flags().GetString("out")

	_, store, err := openCache()
	if err != nil {
		return err
	}
	defer store.Close()

	if out == "" {
		return cachestore.Export(cmd.Context(), store, cmd.OutOrStdout(), format)
	}
	if err := cachestore.ExportFile(cmd.Context(), store, out, format); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Exported to %s\n", out)
	return nil
}

// --- shared helpers ---

// printValue writes v as indented JSON, or as YAML when asJSON is false.
func printValue(w io.Writer, v any, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func init() {
	// Find flags.
	authorFindCmd.Flags().Bool("exact", false, "only try exact variant matches")
	authorFindCmd.Flags().Bool("json", false, "output as JSON")

	// Cache flags.
	authorCacheCmd.Flags().String("name", "", "author name as written on the publication")
	authorCacheCmd.Flags().String("scopus-id", "", "Scopus author ID")
	authorCacheCmd.Flags().String("orcid-id", "", "ORCID iD")
	authorCacheCmd.Flags().String("given-name", "", "given name")
	authorCacheCmd.Flags().String("surname", "", "surname")
	authorCacheCmd.Flags().StringArray("affiliation", nil, "affiliation (repeatable)")
	authorCacheCmd.Flags().String("source", string(types.SourceManual), "provenance: scopus, orcid, manual, crossref")
	authorCacheCmd.Flags().Float64("confidence", types.DefaultSightingConfidence, "confidence in this sighting, 0 to 1")
	authorCacheCmd.Flags().Bool("json", false, "output as JSON")

	// Components flags.
	authorComponentsCmd.Flags().Bool("json", false, "output as JSON")

	// Ingest flags.
	authorIngestCmd.Flags().Bool("dry-run", false, "report outcomes without writing")
	authorIngestCmd.Flags().Bool("clear", false, "empty the cache before ingesting")

	// Consolidate flags.
	authorConsolidateCmd.Flags().Bool("dry-run", false, "list duplicate groups without merging")
	authorConsolidateCmd.Flags().Float64("min-confidence", 0.7, "minimum name similarity for name-based groups")
	authorConsolidateCmd.Flags().Bool("json", false, "output the report as JSON")

	// Verify flags.
	authorVerifyCmd.Flags().String("method", "", "how the identity was verified")
	authorVerifyCmd.Flags().String("scopus-id", "", "confirmed Scopus author ID")
	authorVerifyCmd.Flags().String("orcid-id", "", "confirmed ORCID iD")
	authorVerifyCmd.Flags().Bool("json", false, "output as JSON")
	authorVerifyCmd.MarkFlagRequired("method")

	// List and stats flags.
	authorListCmd.Flags().Int("limit", 0, "maximum identities to list (0 = all)")
	authorListCmd.Flags().Bool("json", false, "output as JSON")
	authorStatsCmd.Flags().Bool("json", false, "output as JSON")

	// Export flags.
	authorExportCmd.Flags().String("format", cachestore.FormatYAML, "export format: yaml or json")
	authorExportCmd.Flags().String("out", "", "output file (default: standard output)")

	// Wire subcommands.
	authorCmd.AddCommand(authorFindCmd)
	authorCmd.AddCommand(authorCacheCmd)
	authorCmd.AddCommand(authorComponentsCmd)
	authorCmd.AddCommand(authorIngestCmd)
	authorCmd.AddCommand(authorConsolidateCmd)
	authorCmd.AddCommand(authorVerifyCmd)
	authorCmd.AddCommand(authorListCmd)
	authorCmd.AddCommand(authorStatsCmd)
	authorCmd.AddCommand(authorExportCmd)

	rootCmd.AddCommand(authorCmd)
}

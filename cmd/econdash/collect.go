package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"econdash/internal/query"
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Fill the cache for a set of countries and indicators",
	RunE: func(cmd *cobra.Command, args []string) error {
		countriesCSV, _ := cmd.Flags().GetString("countries")
		indicatorsCSV, _ := cmd.Flags().GetString("indicators")
		allowlist, _ := cmd.Flags().GetString("allowlist")
		start, _ := cmd.Flags().GetInt("start")
		end, _ := cmd.Flags().GetInt("end")
		limit, _ := cmd.Flags().GetInt("limit")
		verbose, _ := cmd.Flags().GetBool("verbose")

		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		return runCollect(cmd.Context(), a, collectOptions{
			countries:  parseList(countriesCSV),
			indicators: parseList(indicatorsCSV),
			allowlist:  allowlist,
			start:      start,
			end:        end,
			limit:      limit,
			verbose:    verbose,
		})
	},
}

func init() {
	collectCmd.Flags().String("countries", "", "comma-separated ISO3 list (default: every catalog country)")
	collectCmd.Flags().String("indicators", "NY.GDP.MKTP.CD", "comma-separated indicator codes")
	collectCmd.Flags().String("allowlist", "", "path to a country allowlist file (empty = no filter)")
	collectCmd.Flags().Int("start", 2000, "first year")
	collectCmd.Flags().Int("end", 2022, "last year")
	collectCmd.Flags().Int("limit", 0, "limit number of countries (0 = all)")
	collectCmd.Flags().Bool("verbose", false, "print each skipped or failed series")
	rootCmd.AddCommand(collectCmd)
}

type collectOptions struct {
	countries  []string
	indicators []string
	allowlist  string
	start      int
	end        int
	limit      int
	verbose    bool
}

func runCollect(ctx context.Context, a *app, opts collectOptions) error {
	allowed := map[string]struct{}{}
	if strings.TrimSpace(opts.allowlist) != "" {
		loaded, err := loadAllowlist(opts.allowlist)
		if err != nil {
			return err
		}
		allowed = loaded
	}

	countries := opts.countries
	if len(countries) == 0 {
		resolved, err := resolveCountries(ctx, a)
		if err != nil {
			if len(allowed) == 0 {
				return err
			}
			fmt.Fprintf(os.Stderr, "warning: %v (using allowlist only)\n", err)
			resolved = setToList(allowed)
		}
		countries = resolved
	}
	countries = filterCountries(countries, allowed)
	if opts.limit > 0 && len(countries) > opts.limit {
		countries = countries[:opts.limit]
	}
	if len(countries) == 0 {
		return errors.New("no countries after filtering")
	}
	if len(opts.indicators) == 0 {
		return errors.New("no indicators provided")
	}

	requests, success, failed, skipped, rows := 0, 0, 0, 0, 0
	for _, country := range countries {
		for _, indicator := range opts.indicators {
			requests++
			series, err := a.service.GetSeries(ctx, query.Request{
				Country:   country,
				Indicator: indicator,
				Start:     opts.start,
				End:       opts.end,
			})
			if err != nil {
				if errors.Is(err, query.ErrNoData) {
					skipped++
					if opts.verbose {
						fmt.Fprintf(os.Stderr, "skip no-data country=%s indicator=%s\n", country, indicator)
					}
					continue
				}
				var rangeErr *query.InvalidRangeError
				if errors.As(err, &rangeErr) {
					return err
				}
				failed++
				fmt.Fprintf(os.Stderr, "fetch failed country=%s indicator=%s: %v\n", country, indicator, err)
				continue
			}
			success++
			rows += len(series)
		}
	}

	fmt.Printf("collect complete (countries=%s requests=%s success=%s failed=%s rows=%s)\n",
		humanize.Comma(int64(len(countries))),
		humanize.Comma(int64(requests)),
		humanize.Comma(int64(success)),
		humanize.Comma(int64(failed)),
		humanize.Comma(int64(rows)),
	)
	if skipped > 0 {
		fmt.Printf("collect skipped=%s\n", humanize.Comma(int64(skipped)))
	}
	return nil
}

// resolveCountries lists catalog countries, leaving out aggregates such as
// regions and income groups.
func resolveCountries(ctx context.Context, a *app) ([]string, error) {
	countries, err := a.service.ListCountries(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(countries))
	for _, country := range countries {
		if country.Region == "" || strings.EqualFold(country.Region, "Aggregates") {
			continue
		}
		ids = append(ids, country.ID)
	}
	return ids, nil
}

func loadAllowlist(path string) (map[string]struct{}, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	allowed := make(map[string]struct{})
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if idx := strings.Index(line, "#"); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}
		if line == "" {
			continue
		}
		for _, token := range splitTokens(line) {
			iso3 := strings.ToUpper(token)
			if iso3 == "ISO3" {
				continue
			}
			allowed[iso3] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(allowed) == 0 {
		return nil, errors.New("allowlist is empty")
	}
	return allowed, nil
}

func splitTokens(line string) []string {
	replacer := strings.NewReplacer(";", ",", "\t", ",")
	parts := strings.Split(replacer.Replace(line), ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

func filterCountries(countries []string, allowed map[string]struct{}) []string {
	if len(allowed) == 0 {
		return countries
	}
	filtered := make([]string, 0, len(countries))
	for _, country := range countries {
		if _, ok := allowed[strings.ToUpper(country)]; ok {
			filtered = append(filtered, country)
		}
	}
	return filtered
}

func setToList(set map[string]struct{}) []string {
	items := make([]string, 0, len(set))
	for item := range set {
		items = append(items, item)
	}
	sort.Strings(items)
	return items
}

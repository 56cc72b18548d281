package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/docchat/internal/config"
	"github.com/zulandar/docchat/internal/filings"
	"golang.org/x/term"
)

func newFilingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "filings",
		Short: "Search public company filings",
	}

	cmd.AddCommand(newFilingsSearchCmd())
	return cmd
}

func newFilingsSearchCmd() *cobra.Command {
	var (
		configPath string
		category   string
		limit      int
		start      int
	)

	cmd := &cobra.Command{
		Use:   "search <company-number>",
		Short: "List the filing history of a company",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			fc, err := a.filings(cmd)
			if err != nil {
				return err
			}
			resp, err := fc.FilingHistory(cmd.Context(), args[0], filings.Query{
				Category:     category,
				ItemsPerPage: limit,
				StartIndex:   start,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(resp.Items) == 0 {
				fmt.Fprintln(out, "No filings found.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "DATE\tCATEGORY\tTYPE\tPAGES\tTRANSACTION\tDESCRIPTION")
			for _, it := range resp.Items {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
					it.Date, it.Category, it.Type, it.Pages, it.TransactionID, it.Description)
			}
			w.Flush()
			fmt.Fprintf(out, "Showing %d of %d filings. Upload one with 'docchat upload filing --company-number %s --transaction <id>'.\n",
				len(resp.Items), resp.TotalCount, strings.TrimSpace(args[0]))
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&category, "category", "", "filing category, e.g. accounts")
	cmd.Flags().IntVar(&limit, "limit", 25, "filings per page")
	cmd.Flags().IntVar(&start, "start", 0, "index of the first filing")
	return cmd
}

// filings builds the filing-history client. Without a configured key it
// prompts for one when stdin is a terminal.
func (a *app) filings(cmd *cobra.Command) (*filings.Client, error) {
	key := a.cfg.Filings.APIKey
	if key == "" {
		if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			fmt.Fprint(cmd.ErrOrStderr(), "Filings API key: ")
			b, err := term.ReadPassword(int(f.Fd()))
			fmt.Fprintln(cmd.ErrOrStderr())
			if err != nil {
				return nil, fmt.Errorf("read api key: %w", err)
			}
			key = strings.TrimSpace(string(b))
		}
	}
	if key == "" {
		return nil, fmt.Errorf("%w: set filings.api_key or %s", filings.ErrNoAPIKey, config.FilingsAPIKeyEnv)
	}
	return filings.New(filings.Opts{
		BaseURL: a.cfg.Filings.BaseURL,
		APIKey:  key,
		Timeout: a.cfg.Backend.Timeout,
		Logger:  a.log,
	})
}

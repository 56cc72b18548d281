package main

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/docchat/internal/models"
	"github.com/zulandar/docchat/internal/selection"
)

func newSelectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "select",
		Short: "Manage the documents selected for a conversation",
	}

	cmd.AddCommand(newSelectAddCmd())
	cmd.AddCommand(newSelectRemoveCmd())
	cmd.AddCommand(newSelectListCmd())
	cmd.AddCommand(newSelectClearCmd())
	return cmd
}

func newSelectAddCmd() *cobra.Command {
	var (
		configPath string
		company    string
		docType    string
		year       string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a document by company, document type and year",
		Long: "Adds the catalog document matching company, document type and year to the " +
			"selection. At most 10 documents can be selected; adding one twice is a no-op.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			sel, err := a.selector()
			if err != nil {
				return err
			}
			if err := sel.Init(cmd.Context()); err != nil {
				return err
			}
			if err := sel.SelectCompany(company); err != nil {
				return withOptions(err, "companies", sel.AvailableCompanies())
			}
			if err := sel.SelectDocumentType(docType); err != nil {
				return withOptions(err, "document types", labels(sel.AvailableDocumentTypes()))
			}
			if err := sel.SelectYear(year); err != nil {
				return withOptions(err, "years", labels(selection.SortYears(sel.AvailableYears())))
			}
			doc, err := sel.AddSelectedDocument()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Selected %s %s %s (%s), %d/%d selected\n",
				doc.Name, doc.DocType, doc.Year, doc.ID, len(sel.SelectedDocuments()), models.MaxSelectedDocuments)
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&company, "company", "", "company name (required)")
	cmd.Flags().StringVar(&docType, "type", "", "document type (required)")
	cmd.Flags().StringVar(&year, "year", "", "document year (required)")
	cmd.MarkFlagRequired("company")
	cmd.MarkFlagRequired("type")
	cmd.MarkFlagRequired("year")
	return cmd
}

func labels(opts []models.SelectOption) []string {
	out := make([]string, 0, len(opts))
	for _, o := range opts {
		out = append(out, o.Label)
	}
	return out
}

func withOptions(err error, what string, options []string) error {
	if len(options) == 0 {
		return err
	}
	return fmt.Errorf("%w (available %s: %s)", err, what, strings.Join(options, ", "))
}

func newSelectRemoveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "remove <index>",
		Short: "Remove the selected document at index (see select list)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid index %q: %w", args[0], err)
			}
			a, err := openApp(cmd, configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			sel, err := a.selector()
			if err != nil {
				return err
			}
			before := len(sel.SelectedDocuments())
			sel.RemoveSelectedDocument(index)
			if len(sel.SelectedDocuments()) == before {
				fmt.Fprintf(cmd.OutOrStdout(), "Nothing selected at index %d\n", index)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed document at index %d\n", index)
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func newSelectListCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List selected documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			sel, err := a.selector()
			if err != nil {
				return err
			}
			docs := sel.SelectedDocuments()
			out := cmd.OutOrStdout()
			if len(docs) == 0 {
				fmt.Fprintln(out, "No documents selected.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "INDEX\tID\tCOMPANY\tTYPE\tYEAR")
			for i, d := range docs {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", i, d.ID, d.Name, d.DocType, d.Year)
			}
			w.Flush()
			fmt.Fprintf(out, "%d/%d selected\n", len(docs), models.MaxSelectedDocuments)
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func newSelectClearCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear the selection",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			sel, err := a.selector()
			if err != nil {
				return err
			}
			sel.ClearSelection()
			fmt.Fprintln(cmd.OutOrStdout(), "Selection cleared.")
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

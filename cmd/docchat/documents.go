package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/docchat/internal/models"
	"github.com/zulandar/docchat/internal/selection"
)

func newDocumentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "documents",
		Aliases: []string{"docs"},
		Short:   "Browse the document catalog",
	}

	cmd.AddCommand(newDocumentsListCmd())
	cmd.AddCommand(newDocumentsTypesCmd())
	cmd.AddCommand(newDocumentsShowCmd())
	cmd.AddCommand(newDocumentsSchemaCmd())
	return cmd
}

func newDocumentsListCmd() *cobra.Command {
	var (
		configPath string
		company    string
		sorted     bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			docs, err := a.client.FetchDocuments(cmd.Context())
			if err != nil {
				return err
			}
			if company != "" {
				filtered := docs[:0]
				for _, d := range docs {
					if d.Name == company {
						filtered = append(filtered, d)
					}
				}
				docs = filtered
			}
			if sorted {
				docs = selection.SortDocuments(docs)
			}
			printDocuments(cmd, docs)
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&company, "company", "", "only show documents of this company")
	cmd.Flags().BoolVar(&sorted, "sort", false, "sort by company name, then year")
	return cmd
}

func printDocuments(cmd *cobra.Command, docs []models.Document) {
	out := cmd.OutOrStdout()
	if len(docs) == 0 {
		fmt.Fprintln(out, "No documents found.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCOMPANY\tTYPE\tYEAR\tURL")
	for _, d := range docs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", d.ID, d.Name, d.DocType, d.Year, d.URL)
	}
	w.Flush()
}

func newDocumentsTypesCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "types",
		Short: "List document types the backend accepts",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			types, err := a.client.ListDocumentTypes(cmd.Context())
			if err != nil {
				return err
			}
			for _, t := range types {
				fmt.Fprintln(cmd.OutOrStdout(), t)
			}
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func newDocumentsShowCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			d, err := a.client.FetchDocument(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ID:       %s\n", d.ID)
			fmt.Fprintf(out, "Company:  %s\n", d.Name)
			fmt.Fprintf(out, "Type:     %s\n", d.DocType)
			fmt.Fprintf(out, "Year:     %s\n", d.Year)
			fmt.Fprintf(out, "URL:      %s\n", d.URL)
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func newDocumentsSchemaCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "schema <document-type>",
		Short: "List the extra upload fields of a document type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			fields, err := a.client.DocumentSchema(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(fields) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%s has no extra fields.\n", args[0])
				return nil
			}
			for _, f := range fields {
				fmt.Fprintln(cmd.OutOrStdout(), f)
			}
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

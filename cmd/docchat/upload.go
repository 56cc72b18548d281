package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zulandar/docchat/internal/backend"
	"github.com/zulandar/docchat/internal/uploadwatch"
)

func newUploadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Send documents to the backend for indexing",
	}

	cmd.AddCommand(newUploadFileCmd())
	cmd.AddCommand(newUploadFilingCmd())
	cmd.AddCommand(newUploadWatchCmd())
	return cmd
}

func newUploadFileCmd() *cobra.Command {
	var (
		configPath string
		company    string
		docType    string
		fields     map[string]string
	)

	cmd := &cobra.Command{
		Use:   "file <path>",
		Short: "Upload a document file",
		Long: "Uploads a file for server-side indexing. Use 'docchat documents schema <type>' " +
			"to see which --field values a document type expects.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open %s: %w", args[0], err)
			}
			defer f.Close()

			if err := a.client.UploadFile(cmd.Context(), backend.UploadRequest{
				FileName:     filepath.Base(args[0]),
				Content:      f,
				CompanyName:  company,
				DocumentType: docType,
				Fields:       fields,
			}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %s; indexing runs on the server.\n", filepath.Base(args[0]))
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&company, "company", "", "company name (required)")
	cmd.Flags().StringVar(&docType, "type", "", "document type (required)")
	cmd.Flags().StringToStringVar(&fields, "field", nil, "extra schema field as key=value (repeatable)")
	cmd.MarkFlagRequired("company")
	cmd.MarkFlagRequired("type")
	return cmd
}

func newUploadFilingCmd() *cobra.Command {
	var (
		configPath    string
		companyNumber string
		transactionID string
	)

	cmd := &cobra.Command{
		Use:   "filing",
		Short: "Ask the backend to ingest a public company filing",
		Long: "Looks up a filing in the company's public filing history and hands its " +
			"descriptor to the backend, which downloads and indexes the document.",
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
			item, err := fc.Find(cmd.Context(), companyNumber, transactionID)
			if err != nil {
				return err
			}
			if err := a.client.UploadFiling(cmd.Context(), item); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Queued %s filing of %s (%s) for ingestion.\n",
				item.Category, item.Date, item.TransactionID)
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&companyNumber, "company-number", "", "registered company number (required)")
	cmd.Flags().StringVar(&transactionID, "transaction", "", "filing transaction id (required)")
	cmd.MarkFlagRequired("company-number")
	cmd.MarkFlagRequired("transaction")
	return cmd
}

func newUploadWatchCmd() *cobra.Command {
	var (
		configPath string
		company    string
		docType    string
		fields     map[string]string
	)

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Upload documents as they are added to a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			w, err := uploadwatch.New(uploadwatch.Opts{
				Dir:          args[0],
				Extensions:   a.cfg.Upload.WatchExtensions,
				Settle:       a.cfg.Upload.Settle,
				Uploader:     a.client,
				CompanyName:  company,
				DocumentType: docType,
				Fields:       fields,
				Logger:       a.log,
				OnResult: func(r uploadwatch.Result) {
					if r.Err != nil {
						fmt.Fprintf(out, "FAILED %s: %v\n", filepath.Base(r.Path), r.Err)
						return
					}
					fmt.Fprintf(out, "uploaded %s\n", filepath.Base(r.Path))
				},
			})
			if err != nil {
				return err
			}
			defer w.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			fmt.Fprintf(out, "Watching %s (Ctrl-C to stop)\n", args[0])
			return w.Run(ctx)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&company, "company", "", "company name for uploaded files")
	cmd.Flags().StringVar(&docType, "type", "", "document type for uploaded files")
	cmd.Flags().StringToStringVar(&fields, "field", nil, "extra schema field as key=value (repeatable)")
	return cmd
}

package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/oyoms/go-officeclient/drive"
	"github.com/oyoms/go-officeclient/excel"
	"github.com/oyoms/go-officeclient/graph"
	"github.com/oyoms/go-officeclient/outlook"
	"github.com/oyoms/go-officeclient/teams"
	"github.com/spf13/cobra"
)

func newUploadCmd(a *app) *cobra.Command {
	var target, glob string

	cmd := &cobra.Command{
		Use:   "upload [file...]",
		Short: "Upload local files, or files matching --glob, to a drive folder",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && glob == "" {
				return fmt.Errorf("no files given")
			}
			ctx := cmd.Context()
			doer, err := a.connect(ctx, drive.Scopes)
			if err != nil {
				return err
			}
			client, err := a.driveClient(doer, "upload")
			if err != nil {
				return err
			}

			for _, p := range args {
				item, err := client.UploadFile(ctx, p, target)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), item.WebURL)
			}
			if glob != "" {
				items, err := client.UploadGlob(ctx, ".", glob, target)
				if err != nil {
					return err
				}
				for _, item := range items {
					fmt.Fprintln(cmd.OutOrStdout(), item.WebURL)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&target, "to", "t", "", "Destination folder, or a full path when uploading one file")
	cmd.Flags().StringVar(&glob, "glob", "", "Upload every file under the working directory matching this pattern, e.g. 'reports/**/*.xlsx'")
	return cmd
}

func newDownloadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "download <remote-path> <destination>",
		Short: "Download a drive file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			doer, err := a.connect(ctx, drive.Scopes)
			if err != nil {
				return err
			}
			client, err := a.driveClient(doer, "download")
			if err != nil {
				return err
			}
			_, err = client.Download(ctx, args[0], args[1])
			return err
		},
	}
}

// workbookFlags locate a workbook and a sheet in it.
type workbookFlags struct {
	shareURL string
	path     string
	sheet    string
}

func (f *workbookFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.shareURL, "share-url", "", "Sharing link of the workbook")
	cmd.Flags().StringVar(&f.path, "path", "", "Drive path of the workbook, used when no sharing link is given")
	cmd.Flags().StringVar(&f.sheet, "sheet", "", "Worksheet name")
	_ = cmd.MarkFlagRequired("sheet")
}

func (f *workbookFlags) open(ctx context.Context, a *app, doer graph.Doer) (*excel.Workbook, error) {
	src := excel.Source{ShareURL: f.shareURL}
	if src.ShareURL == "" {
		if f.path == "" {
			return nil, fmt.Errorf("either --share-url or --path is required")
		}
		client, err := a.driveClient(doer, "workbook")
		if err != nil {
			return nil, err
		}
		item, err := client.GetItem(ctx, f.path)
		if err != nil {
			return nil, err
		}
		src.Item = item
	}

	wb, err := excel.Open(ctx, doer, src, a.logger)
	if err != nil {
		return nil, err
	}
	wb.SetChunkCells(a.config.ReadCells, a.config.WriteCells)
	return wb, nil
}

func newReadRangeCmd(a *app) *cobra.Command {
	var wf workbookFlags
	var rangeAddress, output, saveTo string

	cmd := &cobra.Command{
		Use:   "read-range",
		Short: "Print the text of a worksheet range as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			doer, err := a.connect(ctx, excel.Scopes)
			if err != nil {
				return err
			}
			wb, err := wf.open(ctx, a, doer)
			if err != nil {
				return err
			}
			defer wb.Close(ctx)

			rows, err := wb.ReadRange(ctx, wf.sheet, rangeAddress)
			if err != nil {
				return err
			}

			if saveTo != "" {
				client, err := a.driveClient(doer, "csv")
				if err != nil {
					return err
				}
				item, err := client.UploadCSV(ctx, rows, saveTo)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), item.WebURL)
				return nil
			}

			out := cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close() //nolint:errcheck
				out = f
			}
			return writeCSV(out, rows)
		},
	}

	wf.register(cmd)
	cmd.Flags().StringVar(&rangeAddress, "range", "", "Range to read, e.g. A1:D20 (default: the used range)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file path (default: stdout)")
	cmd.Flags().StringVar(&saveTo, "save-to", "", "Save the range as a CSV file at this drive path instead of printing it")
	return cmd
}

func writeCSV(w io.Writer, rows [][]string) error {
	writer := csv.NewWriter(w)
	if err := writer.WriteAll(rows); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

func newWriteRangeCmd(a *app) *cobra.Command {
	var wf workbookFlags
	var file, localSheet, location string
	var ignoreTimeout bool

	cmd := &cobra.Command{
		Use:   "write-range",
		Short: "Copy a sheet of a local xlsx file into a worksheet",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			doer, err := a.connect(ctx, excel.Scopes)
			if err != nil {
				return err
			}
			wb, err := wf.open(ctx, a, doer)
			if err != nil {
				return err
			}
			defer wb.Close(ctx)

			return wb.ImportXLSX(ctx, file, localSheet, wf.sheet, location, ignoreTimeout)
		},
	}

	wf.register(cmd)
	cmd.Flags().StringVarP(&file, "file", "f", "", "Local xlsx file")
	cmd.Flags().StringVar(&localSheet, "local-sheet", "", "Sheet of the local file (default: the first one)")
	cmd.Flags().StringVar(&location, "at", "A1", "Top left cell of the written range")
	cmd.Flags().BoolVar(&ignoreTimeout, "ignore-timeout", false, "Treat gateway timeouts as success")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newSendMailCmd(a *app) *cobra.Command {
	var m outlook.Mail
	var html bool

	cmd := &cobra.Command{
		Use:   "send-mail",
		Short: "Send a mail with optional attachments",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if html {
				m.BodyType = outlook.BodyHTML
			}
			doer, err := a.connect(ctx, outlook.Scopes)
			if err != nil {
				return err
			}
			return a.mailClient(doer).SendMail(ctx, m)
		},
	}

	cmd.Flags().StringVarP(&m.Subject, "subject", "s", "", "Subject")
	cmd.Flags().StringVarP(&m.Body, "body", "b", "", "Body")
	cmd.Flags().BoolVar(&html, "html", false, "Send the body as HTML")
	cmd.Flags().StringSliceVar(&m.To, "to", nil, "Recipients")
	cmd.Flags().StringSliceVar(&m.CC, "cc", nil, "Carbon copy recipients")
	cmd.Flags().StringSliceVar(&m.BCC, "bcc", nil, "Blind carbon copy recipients")
	cmd.Flags().StringSliceVarP(&m.Attachments, "attach", "a", nil, "Files to attach")
	return cmd
}

func newSendMessageCmd(a *app) *cobra.Command {
	var m teams.Message

	cmd := &cobra.Command{
		Use:   "send-message",
		Short: "Post a message to a chat or a channel",
		Long: `Posts an HTML message. Write $TAG(user@example.com) to mention a user and
$TAG(channel) to mention everyone in a channel.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			scopes := [][]string{teams.Scopes}
			if len(m.Attachments) > 0 {
				scopes = append(scopes, drive.Scopes)
			}
			doer, err := a.connect(ctx, scopes...)
			if err != nil {
				return err
			}
			id, err := a.teamsClient(doer).SendMessage(ctx, m)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}

	cmd.Flags().StringVar(&m.ChatID, "chat", "", "Chat ID")
	cmd.Flags().StringVar(&m.ChannelURL, "channel", "", "Channel link copied from the Teams client")
	cmd.Flags().StringVarP(&m.Content, "content", "c", "", "Message content")
	cmd.Flags().StringSliceVar(&m.Images, "image", nil, "Images to show inline")
	cmd.Flags().StringSliceVarP(&m.Attachments, "attach", "a", nil, "Files to upload and attach")
	return cmd
}

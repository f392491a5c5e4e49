package main

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/forest6511/vaultsync/pkg/attachments"
)

// Attachment command flags
var (
	attachmentName   string
	attachmentType   string
	attachmentOutput string
	attachmentJSON   bool
)

var attachmentCmd = &cobra.Command{
	Use:   "attachment",
	Short: "Encrypted file attachments of entries",
}

var attachmentAddCmd = &cobra.Command{
	Use:   "add <entry> <file>",
	Short: "Attach a file to an entry",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[1], err)
		}
		v, err := ensureUnlocked(cmd)
		if err != nil {
			return err
		}
		e, err := resolveEntry(v, args[0])
		if err != nil {
			return err
		}

		name := attachmentName
		if name == "" {
			name = filepath.Base(args[1])
		}
		mimeType := attachmentType
		if mimeType == "" {
			mimeType = detectMimeType(name, data)
		}

		id := attachments.NewAttachmentID()
		err = attachmentManager().Set(cmd.Context(), v, e.ID(), id, data, name, mimeType)
		var capErr *attachments.CapacityError
		if errors.As(err, &capErr) {
			return fmt.Errorf("attachment quota exceeded: %d bytes needed, %d available", capErr.Needed, capErr.Available)
		}
		if err != nil {
			return fmt.Errorf("failed to store attachment: %w", err)
		}
		if err := save(cmd); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Attached %s to '%s' (%s)\n", name, entryTitle(e), id)
		return nil
	},
}

var attachmentGetCmd = &cobra.Command{
	Use:   "get <entry> <attachment-id>",
	Short: "Decrypt an attachment",
	Long: `Decrypt an attachment to a file (--output) or to standard output.

Files are written with 0600 permissions.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := ensureUnlocked(cmd)
		if err != nil {
			return err
		}
		e, err := resolveEntryIn(v, args[0], true)
		if err != nil {
			return err
		}
		data, err := attachmentManager().Get(cmd.Context(), v, e.ID(), args[1])
		if err != nil {
			return err
		}
		if attachmentOutput == "" {
			_, err = cmd.OutOrStdout().Write(data)
			return err
		}
		if err := os.WriteFile(attachmentOutput, data, 0o600); err != nil {
			return fmt.Errorf("failed to write %s: %w", attachmentOutput, err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d bytes to %s\n", len(data), attachmentOutput)
		return nil
	},
}

var attachmentListCmd = &cobra.Command{
	Use:   "list <entry>",
	Short: "List the attachments of an entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := ensureUnlocked(cmd)
		if err != nil {
			return err
		}
		e, err := resolveEntryIn(v, args[0], true)
		if err != nil {
			return err
		}
		list, err := attachmentManager().List(v, e.ID())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if attachmentJSON {
			return writeJSON(out, list)
		}
		if len(list) == 0 {
			fmt.Fprintln(out, "No attachments")
			return nil
		}
		for _, a := range list {
			fmt.Fprintf(out, "%s  %s  %s  %d bytes  %s\n", a.ID, a.Name, a.Type, a.SizeOriginal, a.Updated.Format("2006-01-02 15:04"))
		}
		return nil
	},
}

var attachmentRemoveCmd = &cobra.Command{
	Use:   "remove <entry> <attachment-id>",
	Short: "Remove an attachment",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := ensureUnlocked(cmd)
		if err != nil {
			return err
		}
		e, err := resolveEntryIn(v, args[0], true)
		if err != nil {
			return err
		}
		if err := attachmentManager().Remove(cmd.Context(), v, e.ID(), args[1]); err != nil {
			return err
		}
		if err := save(cmd); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed attachment %s from '%s'\n", args[1], entryTitle(e))
		return nil
	},
}

// attachmentManager stores blobs next to the vault in the same store.
func attachmentManager() *attachments.Manager {
	ds := attachments.NewStorageDatasource(app.store, app.cfg.AttachmentQuota)
	return attachments.NewManager(ds, app.provider, attachments.WithLogger(app.logger))
}

func detectMimeType(name string, data []byte) string {
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return http.DetectContentType(data)
}

func init() {
	rootCmd.AddCommand(attachmentCmd)
	attachmentCmd.AddCommand(attachmentAddCmd, attachmentGetCmd, attachmentListCmd, attachmentRemoveCmd)

	attachmentAddCmd.Flags().StringVar(&attachmentName, "name", "", "attachment name (default: file name)")
	attachmentAddCmd.Flags().StringVar(&attachmentType, "type", "", "MIME type (default: detected)")
	attachmentGetCmd.Flags().StringVarP(&attachmentOutput, "output", "o", "", "write to this file instead of standard output")
	attachmentListCmd.Flags().BoolVar(&attachmentJSON, "json", false, "output in JSON format")
}

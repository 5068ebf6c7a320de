package main

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type importOutput struct {
	Command    string `json:"command"`
	DurationMS int64  `json:"duration_ms"`
	Result     any    `json:"result"`
}

func newImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import a CSV file synchronously and print the final task record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src := args[0]
			if !strings.EqualFold(filepath.Ext(src), ".csv") {
				return errors.Errorf("%s: only CSV files are allowed", src)
			}

			a, err := bootstrap(cmd.Context(), 0)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			id := uuid.NewString()
			staged, err := stage(src, a.Config.UploadDir, id)
			if err != nil {
				return err
			}
			if _, err := a.Store.CreateTask(ctx, id, filepath.Base(src)); err != nil {
				_ = os.Remove(staged)
				return err
			}

			start := time.Now()
			runErr := a.InlineImporter().Run(ctx, id, staged, filepath.Base(src))

			task, err := a.Store.GetTask(ctx, id)
			if err != nil {
				return err
			}
			if err := writeJSON(importOutput{
				Command:    "import",
				DurationMS: time.Since(start).Milliseconds(),
				Result:     task,
			}); err != nil {
				return err
			}
			return runErr
		},
	}
	return cmd
}

// stage copies src into dir so the importer can remove it when done.
func stage(src, dir, id string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "create upload dir")
	}
	in, err := os.Open(src)
	if err != nil {
		return "", errors.Wrap(err, "open source file")
	}
	defer in.Close()

	dst := filepath.Join(dir, id+".csv")
	out, err := os.Create(dst)
	if err != nil {
		return "", errors.Wrap(err, "create staged file")
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		_ = os.Remove(dst)
		return "", errors.Wrap(err, "copy source file")
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return "", errors.Wrap(err, "close staged file")
	}
	return dst, nil
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

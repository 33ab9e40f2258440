// cmd/formdoc/main.go
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"inspection-gateway/internal/pathupdate"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type docFlags struct {
	file string
	path string
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "formdoc",
		Short:        "Read and update form documents by path",
		Long:         `Reads a JSON form document and reads or replaces the value at a path such as inspectionTypes[0].name.`,
		SilenceUsage: true,
	}
	root.AddCommand(newGetCmd(), newSetCmd())
	return root
}

func newGetCmd() *cobra.Command {
	var flags docFlags
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Print the value at a path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, path, err := load(cmd.InOrStdin(), flags)
			if err != nil {
				return err
			}
			v, err := pathupdate.Get(doc, path)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), v)
		},
	}
	bindDocFlags(cmd, &flags)
	return cmd
}

func newSetCmd() *cobra.Command {
	var (
		flags docFlags
		value string
		out   string
		leaf  bool
	)
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Replace the value at a path and print the new document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, path, err := load(cmd.InOrStdin(), flags)
			if err != nil {
				return err
			}
			var v interface{}
			if err := json.Unmarshal([]byte(value), &v); err != nil {
				return fmt.Errorf("--value must be JSON: %w", err)
			}

			update := pathupdate.Update
			if leaf {
				update = pathupdate.UpdateLeaf
			}
			updated, err := update(doc, path, v)
			if err != nil {
				return err
			}

			if out == "" {
				return writeJSON(cmd.OutOrStdout(), updated)
			}
			var buf bytes.Buffer
			if err := writeJSON(&buf, updated); err != nil {
				return err
			}
			return os.WriteFile(out, buf.Bytes(), 0644)
		},
	}
	bindDocFlags(cmd, &flags)
	cmd.Flags().StringVar(&value, "value", "null", "new value as JSON")
	cmd.Flags().StringVar(&out, "out", "", "write the document here instead of stdout")
	cmd.Flags().BoolVar(&leaf, "leaf", false, "only replace existing scalar values")
	return cmd
}

func bindDocFlags(cmd *cobra.Command, flags *docFlags) {
	cmd.Flags().StringVarP(&flags.file, "file", "f", "-", "JSON document, - for stdin")
	cmd.Flags().StringVarP(&flags.path, "path", "p", "", "path, e.g. inspectionTypes[0].name")
	_ = cmd.MarkFlagRequired("path")
}

func load(stdin io.Reader, flags docFlags) (interface{}, pathupdate.Path, error) {
	path, err := pathupdate.ParsePath(flags.path)
	if err != nil {
		return nil, nil, err
	}

	var data []byte
	if flags.file == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(flags.file)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read document: %w", err)
	}

	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, path, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// avro - container file and schema CLI tool
//
// Usage:
//
//	avro getschema FILE               Print the schema of a container file
//	avro getmeta FILE [--key K]       Print container file metadata
//	avro tojson FILE                  Print the values of a container file as JSON
//	avro fromjson --schema S [FILE]   Build a container file from JSON values
//	avro canonical SCHEMA             Print a schema's canonical form and fingerprint
//
// Where a FILE argument is omitted, stdin is read.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/auroma/avro/avro"
	"github.com/auroma/avro/datum"
	"github.com/auroma/avro/file"
)

func main() {
	root := &cobra.Command{
		Use:           "avro",
		Short:         "Work with Avro schemas and container files",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
	root.AddCommand(getSchemaCmd(), getMetaCmd(), toJSONCmd(), fromJSONCmd(), canonicalCmd())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "avro:", err)
		os.Exit(1)
	}
}

// openArg returns the named file, or stdin when args is empty.
func openArg(args []string) (io.ReadCloser, error) {
	if len(args) == 0 {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(args[0])
}

func getSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "getschema [FILE]",
		Short: "Print the schema of a container file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := openArg(args)
			if err != nil {
				return err
			}
			defer in.Close()
			r, err := file.NewReader(in)
			if err != nil {
				return err
			}
			fmt.Println(r.Schema().String())
			return nil
		},
	}
}

func getMetaCmd() *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "getmeta [FILE]",
		Short: "Print container file metadata",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := openArg(args)
			if err != nil {
				return err
			}
			defer in.Close()
			r, err := file.NewReader(in)
			if err != nil {
				return err
			}
			if key != "" {
				v := r.Meta(key)
				if v == nil {
					return fmt.Errorf("no metadata key %q", key)
				}
				fmt.Printf("%s\n", v)
				return nil
			}
			for _, k := range []string{"avro.schema", "avro.codec"} {
				fmt.Printf("%s\t%s\n", k, r.Meta(k))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "print only this metadata key")
	return cmd
}

func toJSONCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tojson [FILE]",
		Short: "Print the values of a container file as JSON, one per line",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := openArg(args)
			if err != nil {
				return err
			}
			defer in.Close()
			r, err := file.NewReader(in)
			if err != nil {
				return err
			}
			enc := datum.NewJSONEncoder(r.Schema(), os.Stdout)
			for {
				v, err := r.Next()
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					return err
				}
				if err := enc.Write(v); err != nil {
					return err
				}
			}
			return enc.Flush()
		},
	}
}

func fromJSONCmd() *cobra.Command {
	var (
		schemaFile string
		codecName  string
		outFile    string
	)
	cmd := &cobra.Command{
		Use:   "fromjson --schema SCHEMA [FILE]",
		Short: "Build a container file from JSON values, one per line",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(schemaFile)
			if err != nil {
				return err
			}
			sc, err := avro.Parse(raw)
			if err != nil {
				return err
			}
			codec, err := file.CodecByName(codecName)
			if err != nil {
				return err
			}
			in, err := openArg(args)
			if err != nil {
				return err
			}
			defer in.Close()
			var out io.Writer = os.Stdout
			if outFile != "" {
				f, err := os.Create(outFile)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			w, err := file.NewWriter(sc, out, file.WithCodec(codec))
			if err != nil {
				return err
			}
			dec := datum.NewJSONDecoder(sc, in)
			for {
				v, err := dec.Read()
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					return err
				}
				if err := w.Append(v); err != nil {
					return err
				}
			}
			return w.Close()
		},
	}
	cmd.Flags().StringVar(&schemaFile, "schema", "", "schema file (required)")
	cmd.Flags().StringVar(&codecName, "codec", "null", "block codec: null, deflate, snappy or zstandard")
	cmd.Flags().StringVarP(&outFile, "output", "o", "", "output file (default stdout)")
	cmd.MarkFlagRequired("schema")
	return cmd
}

func canonicalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "canonical [SCHEMA]",
		Short: "Print a schema's parsing canonical form and its fingerprint",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := openArg(args)
			if err != nil {
				return err
			}
			defer in.Close()
			raw, err := io.ReadAll(in)
			if err != nil {
				return err
			}
			sc, err := avro.Parse(raw)
			if err != nil {
				return err
			}
			fmt.Println(sc.Canonical())
			fmt.Println(sc.Fingerprint())
			return nil
		},
	}
}

// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package commands

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"go.e43.eu/xdr2json"
	"go.e43.eu/xdr2json/internal/logger"
)

// inputEncoding is how an input file holds its XDR bytes
type inputEncoding string

const (
	encodingRaw    inputEncoding = "raw"
	encodingBase64 inputEncoding = "base64"
	encodingHex    inputEncoding = "hex"
)

var _ pflag.Value = (*inputEncoding)(nil)

func (e *inputEncoding) String() string { return string(*e) }
func (e *inputEncoding) Type() string   { return "encoding" }

func (e *inputEncoding) Set(s string) error {
	switch v := inputEncoding(s); v {
	case encodingRaw, encodingBase64, encodingHex:
		*e = v
		return nil
	default:
		return fmt.Errorf("must be one of raw, base64 or hex")
	}
}

// decode turns the contents of an input into XDR bytes. Text encodings
// ignore surrounding whitespace.
func (e inputEncoding) decode(in []byte) ([]byte, error) {
	switch e {
	case encodingBase64:
		return base64.StdEncoding.DecodeString(string(bytes.TrimSpace(in)))
	case encodingHex:
		return hex.DecodeString(string(bytes.TrimSpace(in)))
	default:
		return in, nil
	}
}

type decodeOptions struct {
	typeName string
	encoding inputEncoding
}

func newDecodeCommand(g *globals) *cobra.Command {
	o := &decodeOptions{encoding: encodingRaw}

	cmd := &cobra.Command{
		Use:   "decode --type T [files...|-]",
		Short: "Convert XDR values to JSON",
		Long: `Decode each input as the named type and print its JSON projection, one
line per input. With no files (or "-") the value is read from standard input.

Inputs are converted concurrently (bounded by decode.parallelism); results are
printed in input order. Inputs which fail to convert are reported on standard
error and make the command exit with a non-zero status.`,
		Example: `  xdr2json decode --schema stellar.yaml --type TransactionEnvelope tx.xdr
  echo AAAAAwAAAAU= | xdr2json decode -s point.yaml -t Point --encoding base64`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecode(cmd, g, o, args)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&o.typeName, "type", "t", "", "name of the XDR type of the inputs")
	flags.VarP(&o.encoding, "encoding", "e", "input encoding (raw, base64, hex)")
	flags.Bool("strict-padding", false, "reject non-zero padding bytes")
	flags.Bool("reject-trailing", false, "reject bytes after the value")
	flags.Int("max-depth", 0, "maximum nesting depth")
	flags.Int("max-input-len", 0, "largest accepted input in bytes (negative for no limit)")
	flags.Int("parallelism", 0, "maximum concurrent conversions")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

// applyFlags overrides the configured decode options with any flag given
func applyFlags(flags *pflag.FlagSet, opts *xdr2json.Options) error {
	var err error
	if flags.Changed("strict-padding") {
		if opts.StrictPadding, err = flags.GetBool("strict-padding"); err != nil {
			return err
		}
	}
	if flags.Changed("reject-trailing") {
		if opts.RejectTrailing, err = flags.GetBool("reject-trailing"); err != nil {
			return err
		}
	}
	if flags.Changed("max-depth") {
		if opts.MaxDepth, err = flags.GetInt("max-depth"); err != nil {
			return err
		}
	}
	if flags.Changed("max-input-len") {
		if opts.MaxInputLen, err = flags.GetInt("max-input-len"); err != nil {
			return err
		}
	}
	if flags.Changed("parallelism") {
		if opts.Parallelism, err = flags.GetInt("parallelism"); err != nil {
			return err
		}
	}
	return nil
}

// inputReader reads the named inputs. Standard input ("-") is read once,
// however often it is named.
type inputReader struct {
	stdin io.Reader
	data  []byte
	done  bool
}

func (r *inputReader) read(name string) ([]byte, error) {
	if name != "-" {
		return os.ReadFile(name)
	}
	if !r.done {
		data, err := io.ReadAll(r.stdin)
		if err != nil {
			return nil, err
		}
		r.data, r.done = data, true
	}
	return r.data, nil
}

func runDecode(cmd *cobra.Command, g *globals, o *decodeOptions, args []string) error {
	reg, err := g.registry()
	if err != nil {
		return err
	}

	opts := g.cfg.Options()
	if err := applyFlags(cmd.Flags(), &opts); err != nil {
		return err
	}

	if len(args) == 0 {
		args = []string{"-"}
	}

	inputs := &inputReader{stdin: cmd.InOrStdin()}
	reqs := make([]xdr2json.Request, len(args))
	for i, name := range args {
		in, err := inputs.read(name)
		if err != nil {
			return fmt.Errorf("reading %s: %w", name, err)
		}
		data, err := o.encoding.decode(in)
		if err != nil {
			return fmt.Errorf("decoding %s as %s: %w", name, o.encoding, err)
		}
		reqs[i] = xdr2json.Request{Type: o.typeName, Data: data}
	}

	log := logger.Logger()
	log.Debug("converting inputs",
		zap.String("type", o.typeName),
		zap.Int("inputs", len(reqs)),
		zap.Int("parallelism", opts.Parallelism))

	conv := xdr2json.New(reg, opts)
	resps, err := conv.ConvertAll(cmd.Context(), reqs)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	failed := 0
	for i, r := range resps {
		if r.Err != nil {
			failed++
			log.Debug("conversion failed", zap.String("input", args[i]), zap.Error(r.Err))
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", args[i], r.Err)
			continue
		}
		if _, err := fmt.Fprintf(out, "%s\n", r.JSON); err != nil {
			return err
		}
	}

	if failed != 0 {
		return fmt.Errorf("%d of %d inputs failed to convert", failed, len(resps))
	}
	return nil
}

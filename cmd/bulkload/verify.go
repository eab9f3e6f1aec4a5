package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/hugolhafner/go-bulkload/codec"
	"github.com/hugolhafner/go-bulkload/internal/config"
	"github.com/hugolhafner/go-bulkload/record"
	"github.com/spf13/cobra"
)

func newVerifyCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	cfg := config.Default()
	var (
		dump     bool
		expected int
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Count the keys in a bolt or etcd store after a load.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cfg, stderr)
			if err != nil {
				return err
			}
			defer rt.Close()

			var count int
			switch cfg.Store {
			case config.StoreBolt:
				s, err := rt.openBolt(true)
				if err != nil {
					return err
				}
				defer s.Close()

				if dump {
					keys, err := codec.ByName(cfg.Input.KeyCodec)
					if err != nil {
						return err
					}
					values, err := codec.ByName(cfg.Input.ValueCodec)
					if err != nil {
						return err
					}
					err = s.Scan(
						cmd.Context(), func(r record.Record) error {
							_, err := fmt.Fprintf(stdout, "%s\t%s\n", keys.Decode(r.Key), values.Decode(r.Value))
							return err
						},
					)
					if err != nil {
						return err
					}
				}

				if count, err = s.Count(); err != nil {
					return err
				}

			case config.StoreEtcd:
				if dump {
					return errors.New("--dump is only supported for the bolt store")
				}
				s, err := rt.dialEtcd()
				if err != nil {
					return err
				}
				defer s.Close()

				n, err := s.Count(cmd.Context())
				if err != nil {
					return err
				}
				count = int(n)

			default:
				return fmt.Errorf("verify is not supported for store %q", cfg.Store)
			}

			fmt.Fprintf(stdout, "keys: %d\n", count)

			if expected >= 0 && count != expected {
				return fmt.Errorf("expected %d keys, found %d", expected, count)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dump, "dump", false, "Print every key and value using the input codecs.")
	cmd.Flags().IntVar(&expected, "expect", -1, "Fail unless the store holds exactly this many keys.")
	bindConfig(cmd, &cfg)
	return cmd
}

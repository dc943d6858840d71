package main

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tidalforge/radixdb"
)

func openDB() (*radixdb.DB, error) {
	if err := requireDBPath(); err != nil {
		return nil, err
	}
	return radixdb.Open(dbPath, radixdb.DefaultParams())
}

func newPutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <key> <value>",
		Short: "Insert or overwrite a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			tr := db.NewTx(0, true)
			if err := tr.Begin(); err != nil {
				return err
			}
			if err := tr.Put([]byte(args[0]), []byte(args[1])); err != nil {
				tr.Rollback()
				return err
			}
			return tr.Commit()
		},
	}
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Look up a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			tr := db.NewTx(0, true)
			if err := tr.Begin(); err != nil {
				return err
			}
			defer tr.Rollback()

			val, err := tr.Get([]byte(args[0]))
			if err != nil {
				return err
			}
			fmt.Println(string(val))
			return nil
		},
	}
}

func newDelCmd() *cobra.Command {
	var prefix bool
	cmd := &cobra.Command{
		Use:   "del <key>",
		Short: "Delete a key, or a whole subtree with --prefix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			tr := db.NewTx(0, true)
			if err := tr.Begin(); err != nil {
				return err
			}
			if err := tr.Del([]byte(args[0]), prefix); err != nil {
				tr.Rollback()
				return err
			}
			return tr.Commit()
		},
	}
	cmd.Flags().BoolVar(&prefix, "prefix", false, "delete every key under this prefix")
	return cmd
}

func newScanCmd() *cobra.Command {
	var from string
	var reverse bool
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Print every key/value pair in order",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			tr := db.NewTx(0, true)
			if err := tr.Begin(); err != nil {
				return err
			}
			defer tr.Rollback()

			cur, err := tr.NewCursor()
			if err != nil {
				return err
			}

			var step func() error
			if reverse {
				if from != "" {
					step = func() error { return cur.Seek([]byte(from), radixdb.SeekLE) }
				} else {
					step = cur.Last
				}
			} else {
				if from != "" {
					step = func() error { return cur.Seek([]byte(from), radixdb.SeekGE) }
				} else {
					step = cur.First
				}
			}

			for err := step(); err == nil; {
				fmt.Printf("%s\t%s\n", cur.Key(), cur.Val())
				if reverse {
					err = cur.Prev()
				} else {
					err = cur.Next()
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "start key (default: first/last)")
	cmd.Flags().BoolVar(&reverse, "reverse", false, "walk in descending order")
	return cmd
}

func newDBInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dbinfo",
		Short: "Print the current footer as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			info, err := db.Info()
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(info)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}
}

func newVacuumCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "vacuum",
		Short: "Reclaim the oldest historical transaction's dead space",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			report, err := db.Vacuum(0, true)
			if err != nil {
				return err
			}
			if all {
				total := report
				for report.BytesReclaimed > 0 {
					report, err = db.Vacuum(0, true)
					if err != nil {
						return err
					}
					total.KeysMigrated += report.KeysMigrated
					total.BytesReclaimed += report.BytesReclaimed
					total.Elapsed += report.Elapsed
				}
				report = total
			}
			out, err := yaml.Marshal(report)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "repeat until every historical transaction is reclaimed")
	return cmd
}

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Walk every key and print an xxhash fingerprint (diagnostic only, never stored)",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			tr := db.NewTx(0, true)
			if err := tr.Begin(); err != nil {
				return err
			}
			defer tr.Rollback()

			cur, err := tr.NewCursor()
			if err != nil {
				return err
			}

			h := xxhash.New()
			count := 0
			werr := cur.First()
			for werr == nil {
				h.Write(cur.Key())
				h.Write([]byte{0})
				h.Write(cur.Val())
				h.Write([]byte{0})
				count++
				werr = cur.Next()
			}
			fmt.Printf("keys=%d fingerprint=%016x\n", count, h.Sum64())
			return nil
		},
	}
}

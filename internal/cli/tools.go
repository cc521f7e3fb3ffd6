package cli

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var toolsCatalog bool

// toolsCmd 列出工具注册表中的操作；只读取元数据，不连接数据库
var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "列出可用的数据库操作",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := newRegistry(nil, nil, cfg.Agent.Collections)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if toolsCatalog {
			// 与传给模型的清单一致
			fmt.Fprint(out, reg.Catalog())
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "NAME\tWRITE\tPARAMS\tDESCRIPTION")
		for _, op := range reg.Operations() {
			params := make([]string, 0, len(op.Params))
			for name, p := range op.Params {
				if p.Required {
					name += "*"
				}
				params = append(params, name)
			}
			sort.Strings(params)
			write := ""
			if op.Mutating {
				write = "yes"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", op.Name, write, strings.Join(params, ","), op.Desc)
		}
		if len(cfg.Agent.Collections) > 0 {
			fmt.Fprintf(w, "\ncollections: %s\n", strings.Join(cfg.Agent.Collections, ", "))
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(toolsCmd)
	toolsCmd.Flags().BoolVar(&toolsCatalog, "catalog", false, "输出提供给模型的操作清单原文")
}

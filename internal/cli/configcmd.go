package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configValidate bool

// configCmd 输出合并后的有效配置，密钥会被隐藏
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "显示当前生效的配置",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if configValidate {
			if err := cfg.Validate(); err != nil {
				return err
			}
			fmt.Fprintln(out, "config ok")
			return nil
		}

		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(cfg.Redacted())
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.Flags().BoolVar(&configValidate, "validate", false, "只校验配置，不输出")
}

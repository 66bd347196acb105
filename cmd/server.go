package cmd

import (
	"Videoflix/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动Videoflix服务器",
	Long:  `启动Videoflix的HTTP服务器，提供账号、视频管理和HLS播放接口，并内嵌转码工作池。`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

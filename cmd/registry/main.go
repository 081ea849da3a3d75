package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	_ "github.com/aerugo/aerugo/registry/auth/htpasswd"
	_ "github.com/aerugo/aerugo/registry/auth/none"
	_ "github.com/aerugo/aerugo/registry/storage/driver/filesystem"
	_ "github.com/aerugo/aerugo/registry/storage/driver/inmemory"
)

var rootCmd = &cobra.Command{
	Use:   "registry",
	Short: "aerugo container image registry",
	Long:  "aerugo is a content-addressable container image registry speaking the Docker Registry V2 API.",
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

package commands

import (
	"github.com/spf13/cobra"
)

var (
	_config = NewDefaultCLIConfig()
)

//RootCmd is the root command for homenode
var RootCmd = &cobra.Command{
	Use:              "homenode",
	Short:            "Profile hosting node",
	TraverseChildren: true,
}

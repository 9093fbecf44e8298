package cli

import "ipdrexporter/internal/global"

func DefineOptions() (cmdOpts *global.CommandSet) {
	// Root level
	root := &global.CommandSet{
		Description:     "IPDR Record Exporter",
		FullDescription: "  Streams usage records to redundant collectors with acknowledged delivery",
		CommandName:     RootCLICommand,
		ChildCommands:   make(map[string]*global.CommandSet),
	}

	// Exporting
	root.ChildCommands["export"] = &global.CommandSet{
		CommandName:     "export",
		Description:     "Export Records",
		FullDescription: "Reads JSON line records, encodes them with the configured templates and streams them to the active collector of each session",
		ChildCommands:   nil,
	}

	// Key generation
	root.ChildCommands["keygen"] = &global.CommandSet{
		CommandName:     "keygen",
		Description:     "Generate Key Pair",
		FullDescription: "Creates an x25519 key pair for sealed collector links (prints to stdout)",
		ChildCommands:   nil,
	}

	// Version Info
	root.ChildCommands["version"] = &global.CommandSet{
		CommandName:     "version",
		Description:     "Show Version Information",
		FullDescription: "Display meta information about program",
	}

	cmdOpts = root
	return
}

package cli

import (
	"flag"
	"fmt"
	"ipdrexporter/internal/global"
	"os"
	"slices"
	"strings"
)

const (
	RootCLICommand  string = "root"
	helpMenuTrailer string = `
Configuration is read from a JSON file (see --config).
Send SIGHUP to reload parameters and binding priorities.
`
)

const baseIndentSpaces int = 2

// Full standardized help menu (wraps option printer as well)
func PrintHelpMenu(fs *flag.FlagSet, command string, rootCmd *global.CommandSet) {
	curCmdSet, parents := findCommand(rootCmd, command)
	if curCmdSet == nil {
		fmt.Printf("Unknown command: %s\n", command)
		return
	}

	// Usage line, root name left out
	usageParts := []string{os.Args[0]}
	for _, parent := range parents {
		if parent != rootCmd {
			usageParts = append(usageParts, parent.CommandName)
		}
	}
	if curCmdSet != rootCmd {
		usageParts = append(usageParts, curCmdSet.CommandName)
	}
	switch len(curCmdSet.ChildCommands) {
	case 0:
	case 1:
		for name := range curCmdSet.ChildCommands {
			usageParts = append(usageParts, name)
		}
	default:
		usageParts = append(usageParts, "[subcommand]")
	}
	if curCmdSet.UsageOption != "" {
		usageParts = append(usageParts, curCmdSet.UsageOption)
	}
	fmt.Printf("Usage: %s\n\n", strings.Join(usageParts, " "))

	if curCmdSet == rootCmd {
		fmt.Println(curCmdSet.Description)
		fmt.Println(curCmdSet.FullDescription)
		fmt.Println()
	} else if curCmdSet.FullDescription != "" {
		fmt.Println("  Description:")
		fmt.Printf("    %s\n\n", curCmdSet.FullDescription)
	}

	if len(curCmdSet.ChildCommands) > 0 {
		printSubcommands(curCmdSet)
	}

	printFlagOptions(fs)

	if curCmdSet == rootCmd {
		fmt.Print(helpMenuTrailer)
	}
}

// Finds command at the root, one or two levels down. Returns the chain of parents.
func findCommand(rootCmd *global.CommandSet, command string) (found *global.CommandSet, parents []*global.CommandSet) {
	if command == "" || command == RootCLICommand {
		found = rootCmd
		return
	}
	if cmd, ok := rootCmd.ChildCommands[command]; ok {
		found = cmd
		parents = []*global.CommandSet{rootCmd}
		return
	}
	for _, topCmd := range rootCmd.ChildCommands {
		if sub, ok := topCmd.ChildCommands[command]; ok {
			found = sub
			parents = []*global.CommandSet{rootCmd, topCmd}
			return
		}
	}
	return
}

func printSubcommands(cmdSet *global.CommandSet) {
	names := make([]string, 0, len(cmdSet.ChildCommands))
	maxLen := 0
	for name := range cmdSet.ChildCommands {
		names = append(names, name)
		maxLen = max(maxLen, len(name))
	}
	slices.Sort(names)

	fmt.Printf("%sSubcommands:\n", strings.Repeat(" ", baseIndentSpaces))
	cmdIndent := strings.Repeat(" ", baseIndentSpaces+2)
	for _, name := range names {
		padding := strings.Repeat(" ", maxLen-len(name)+2)
		fmt.Printf("%s%s%s - %s\n", cmdIndent, name, padding, cmdSet.ChildCommands[name].Description)
	}
	fmt.Println()
}

// One printed option line: short and long names sharing a usage text
type optionLine struct {
	names      []string
	usage      string
	defaultVal string
	hasShort   bool
}

// Prints options with short/long aliases merged onto one line.
// Aliases are detected by identical usage text.
func printFlagOptions(fs *flag.FlagSet) {
	const joiner string = ", "
	const usageGap int = 2
	longOffset := len(joiner) + len("-") + 1 // room for a missing "-x, "

	byUsage := make(map[string]*optionLine)
	var lines []*optionLine
	fs.VisitAll(func(arg *flag.Flag) {
		line, seen := byUsage[arg.Usage]
		if !seen {
			line = &optionLine{usage: arg.Usage, defaultVal: arg.DefValue}
			byUsage[arg.Usage] = line
			lines = append(lines, line)
		}
		if len(arg.Name) == 1 {
			line.names = append(line.names, "-"+arg.Name)
			line.hasShort = true
		} else {
			line.names = append(line.names, "--"+arg.Name)
		}
	})

	for _, line := range lines {
		slices.SortFunc(line.names, func(a, b string) int { return len(a) - len(b) })
	}
	slices.SortFunc(lines, func(a, b *optionLine) int {
		return strings.Compare(strings.ToLower(a.names[0]), strings.ToLower(b.names[0]))
	})

	width := func(line *optionLine) (w int) {
		w = len(strings.Join(line.names, joiner))
		if !line.hasShort {
			w += longOffset
		}
		return
	}
	maxLen := 0
	for _, line := range lines {
		maxLen = max(maxLen, width(line))
	}

	fmt.Printf("%sOptions:\n", strings.Repeat(" ", baseIndentSpaces))
	for _, line := range lines {
		indent := baseIndentSpaces
		if !line.hasShort {
			indent += longOffset
		}
		padding := max(maxLen-width(line)+usageGap, usageGap)

		// Skip printing any "empty" defaults
		desc := line.usage
		if line.defaultVal != "" && line.defaultVal != "false" && line.defaultVal != "0" {
			desc += fmt.Sprintf(" [default: %s]", line.defaultVal)
		}
		fmt.Printf("%s%s%s%s\n", strings.Repeat(" ", indent), strings.Join(line.names, joiner), strings.Repeat(" ", padding), desc)
	}
}

package cli

// SplitArgsForTesting exposes the shell's argument splitter.
func SplitArgsForTesting(line string) ([]string, error) {
	return splitArgs(line)
}

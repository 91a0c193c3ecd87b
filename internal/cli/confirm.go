package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
)

// confirmDelete asks before a delete. On a terminal it prompts with a
// default of no. Piped input declines only on an explicit "n" or "no", so
// `yes | fileman delete` keeps working.
func confirmDelete(streams Streams, target string) (bool, error) {
	if f, ok := streams.In.(*os.File); ok && isTerminal(f) {
		var confirmed bool
		prompt := &survey.Confirm{
			Message: fmt.Sprintf("Delete %s?", target),
			Default: false,
		}
		err := survey.AskOne(prompt, &confirmed, survey.WithStdio(f, os.Stdout, os.Stderr))
		if errors.Is(err, terminal.InterruptErr) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return confirmed, nil
	}

	_, _ = fmt.Fprintf(streams.Out, "%s: This command will remove %s\nAre you sure you want to continue (y/n)? ",
		warningColor.Sprint("WARNING"), target)
	line, err := bufio.NewReader(streams.In).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	_, _ = fmt.Fprintln(streams.Out)

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "n", "no":
		return false, nil
	}
	return true, nil
}

package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
)

// errPromptAborted is returned when the user presses Ctrl+C at a prompt.
var errPromptAborted = errors.New("aborted")

// promptPath asks for a file path, completing on Tab and accepting only
// existing files with one of the given extensions.
func promptPath(message, def string, exts ...string) (string, error) {
	var out string
	prompt := &survey.Input{
		Message: message,
		Default: def,
		Suggest: func(partial string) []string {
			matches, _ := filepath.Glob(partial + "*")
			return matches
		},
	}
	if err := survey.AskOne(prompt, &out, survey.WithValidator(fileValidator(exts...))); err != nil {
		return "", translateSurveyErr(err)
	}
	return strings.TrimSpace(out), nil
}

// promptText asks for free text.
func promptText(message, def string) (string, error) {
	var out string
	prompt := &survey.Input{Message: message, Default: def}
	if err := survey.AskOne(prompt, &out); err != nil {
		return "", translateSurveyErr(err)
	}
	return out, nil
}

func fileValidator(exts ...string) survey.Validator {
	return func(ans interface{}) error {
		path, _ := ans.(string)
		path = strings.TrimSpace(path)
		if path == "" {
			return errors.New("a path is required")
		}
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("cannot open %s", path)
		}
		if info.IsDir() {
			return fmt.Errorf("%s is a directory", path)
		}
		if len(exts) == 0 {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		for _, e := range exts {
			if ext == e {
				return nil
			}
		}
		return fmt.Errorf("expected a %s file", strings.Join(exts, " or "))
	}
}

func translateSurveyErr(err error) error {
	if errors.Is(err, terminal.InterruptErr) {
		return errPromptAborted
	}
	return err
}

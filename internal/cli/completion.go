package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Command describes one subcommand for help text and shell completion.
type Command struct {
	Name        string
	Description string
	Flags       []string
	Subcommands []Command
}

// Shells lists the shells completion can be generated for.
var Shells = []string{"bash", "zsh", "fish"}

// GenerateCompletion writes the completion script for program to w.
func GenerateCompletion(w io.Writer, shell, program string, commands []Command) error {
	var script string
	switch shell {
	case "bash":
		script = bashCompletion(program, commands)
	case "zsh":
		script = zshCompletion(program, commands)
	case "fish":
		script = fishCompletion(program, commands)
	default:
		return fmt.Errorf("unsupported shell: %s (supported: %s)", shell, strings.Join(Shells, ", "))
	}
	_, err := io.WriteString(w, script)
	return err
}

// CompletionPath returns where InstallCompletion writes the script for shell.
func CompletionPath(home, shell, program string) (string, error) {
	switch shell {
	case "bash":
		return filepath.Join(home, ".bash_completion.d", program), nil
	case "zsh":
		return filepath.Join(home, ".zsh", "completion", "_"+program), nil
	case "fish":
		return filepath.Join(home, ".config", "fish", "completions", program+".fish"), nil
	default:
		return "", fmt.Errorf("unsupported shell: %s", shell)
	}
}

// InstallCompletion installs the completion script under the user's home
// directory and returns its path.
func InstallCompletion(shell, program string, commands []Command) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	path, err := CompletionPath(home, shell, program)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create completion directory: %w", err)
	}

	var b strings.Builder
	if err := GenerateCompletion(&b, shell, program, commands); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("failed to write completion script: %w", err)
	}
	return path, nil
}

func funcName(program string) string {
	return "_" + strings.NewReplacer("-", "_", ".", "_").Replace(program)
}

func names(commands []Command) []string {
	out := make([]string, 0, len(commands))
	for _, c := range commands {
		out = append(out, c.Name)
	}
	return out
}

func bashCompletion(program string, commands []Command) string {
	fn := funcName(program) + "_completion"
	var b strings.Builder
	fmt.Fprintf(&b, "#!/bin/bash\n# Bash completion for %s\n\n", program)
	fmt.Fprintf(&b, "%s() {\n", fn)
	b.WriteString("    local cur prev\n    COMPREPLY=()\n")
	b.WriteString("    cur=\"${COMP_WORDS[COMP_CWORD]}\"\n    prev=\"${COMP_WORDS[COMP_CWORD-1]}\"\n\n")
	b.WriteString("    case \"${prev}\" in\n")
	for _, c := range commands {
		words := append(names(c.Subcommands), c.Flags...)
		if c.Name == "completion" {
			words = append(words, Shells...)
		}
		if len(words) == 0 {
			continue
		}
		fmt.Fprintf(&b, "        %s)\n            COMPREPLY=( $(compgen -W \"%s\" -- ${cur}) )\n            return 0\n            ;;\n",
			c.Name, strings.Join(words, " "))
	}
	b.WriteString("    esac\n\n")
	fmt.Fprintf(&b, "    COMPREPLY=( $(compgen -W \"%s\" -- ${cur}) )\n    return 0\n}\n\n", strings.Join(names(commands), " "))
	fmt.Fprintf(&b, "complete -F %s %s\n", fn, program)
	return b.String()
}

func zshCompletion(program string, commands []Command) string {
	fn := funcName(program)
	var b strings.Builder
	fmt.Fprintf(&b, "#compdef %s\n\n%s() {\n    local -a commands\n    commands=(\n", program, fn)
	for _, c := range commands {
		fmt.Fprintf(&b, "        '%s:%s'\n", c.Name, c.Description)
	}
	b.WriteString("    )\n\n    _arguments -C '1: :->command' '*:: :->args'\n\n")
	b.WriteString("    case $state in\n        command)\n            _describe 'command' commands\n            ;;\n        args)\n            case $words[1] in\n")
	for _, c := range commands {
		switch {
		case c.Name == "completion":
			fmt.Fprintf(&b, "                completion)\n                    _values 'shell' %s\n                    ;;\n", strings.Join(Shells, " "))
		case len(c.Subcommands) > 0:
			fmt.Fprintf(&b, "                %s)\n                    _values '%s command' %s\n                    ;;\n", c.Name, c.Name, strings.Join(names(c.Subcommands), " "))
		case len(c.Flags) > 0:
			fmt.Fprintf(&b, "                %s)\n                    _values '%s flag' %s\n                    ;;\n", c.Name, c.Name, strings.Join(c.Flags, " "))
		}
	}
	b.WriteString("            esac\n            ;;\n    esac\n}\n\n")
	fmt.Fprintf(&b, "%s \"$@\"\n", fn)
	return b.String()
}

func fishCompletion(program string, commands []Command) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Fish completion for %s\n\n", program)
	for _, c := range commands {
		fmt.Fprintf(&b, "complete -c %s -f -n \"__fish_use_subcommand\" -a \"%s\" -d \"%s\"\n", program, c.Name, c.Description)
	}
	for _, c := range commands {
		for _, sub := range c.Subcommands {
			fmt.Fprintf(&b, "complete -c %s -f -n \"__fish_seen_subcommand_from %s\" -a \"%s\" -d \"%s\"\n", program, c.Name, sub.Name, sub.Description)
		}
		for _, flag := range c.Flags {
			fmt.Fprintf(&b, "complete -c %s -n \"__fish_seen_subcommand_from %s\" -l %s\n", program, c.Name, strings.TrimLeft(flag, "-"))
		}
		if c.Name == "completion" {
			for _, sh := range Shells {
				fmt.Fprintf(&b, "complete -c %s -f -n \"__fish_seen_subcommand_from completion\" -a \"%s\" -d \"Generate %s completion\"\n", program, sh, sh)
			}
		}
	}
	return b.String()
}

// cmd/inkvm/main.go
package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"inkvm/internal/debugger"
	"inkvm/internal/extfn"
	"inkvm/internal/globals"
	"inkvm/internal/runner"
	"inkvm/internal/snapshot"
	"inkvm/internal/storyimage"
)

const version = "1.0.0"

var buildDate = time.Now().Format("2006-01-02")

var commandAliases = map[string]string{
	"p": "play",
	"r": "run",
	"d": "debug",
	"i": "info",
	"s": "snapshot",
}

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		showUsage()
		return
	}

	cmd := args[0]
	if alias, ok := commandAliases[cmd]; ok {
		cmd = alias
	}

	switch cmd {
	case "--help", "-h", "help":
		if len(args) > 1 {
			showCommandHelp(args[1])
		} else {
			showUsage()
		}
	case "--version", "-v", "version":
		showVersion()
	case "completion":
		if len(args) < 2 {
			fmt.Println("Usage: inkvm completion <bash|zsh|fish>")
			os.Exit(1)
		}
		generateCompletion(args[1])
	case "info":
		if len(args) < 2 {
			log.Fatal("info requires a story image path")
		}
		infoCommand(args[1])
	case "run":
		if len(args) < 2 {
			log.Fatal("run requires a story image path")
		}
		runCommand(args[1:])
	case "play":
		if len(args) < 2 {
			log.Fatal("play requires a story image path")
		}
		playCommand(args[1:])
	case "debug":
		if len(args) < 2 {
			log.Fatal("debug requires a story image path")
		}
		debugCommand(args[1])
	case "snapshot":
		if len(args) < 2 {
			log.Fatal("Usage: inkvm snapshot <save|load> <story> [snapshot-path]")
		}
		snapshotCommand(args[1:])
	default:
		suggestCommand(cmd)
	}
}

func loadImage(path string) *storyimage.Image {
	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("could not open story image: %v", err)
	}
	defer f.Close()
	img, stats, err := storyimage.Load(f)
	if err != nil {
		log.Fatalf("could not load story image: %v", err)
	}
	_ = stats
	return img
}

func infoCommand(path string) {
	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("could not open story image: %v", err)
	}
	defer f.Close()
	img, stats, err := storyimage.Load(f)
	if err != nil {
		log.Fatalf("could not load story image: %v", err)
	}
	fmt.Printf("%s\n", path)
	fmt.Printf("  version:      %d\n", img.Version)
	fmt.Printf("  containers:   %d\n", stats.Containers)
	fmt.Printf("  constants:    %d\n", stats.Constants)
	fmt.Printf("  lists:        %d\n", stats.Lists)
	fmt.Printf("  instructions: %d bytes\n", stats.InstrBytes)
	fmt.Printf("  total size:   %s\n", stats.HumanizedSize)
}

// newStoryRunner builds a globals store and a single runner for img, wiring
// the demo external functions every command shares.
func newStoryRunner(img *storyimage.Image, seed uint64) (*globals.Store, *runner.Runner) {
	store := globals.New(img, 256)
	rn := runner.New(img, store, seed)
	extfn.BindDefaults(rn)
	return store, rn
}

func runCommand(args []string) {
	img := loadImage(args[0])
	_, rn := newStoryRunner(img, uint64(time.Now().UnixNano()))

	for rn.CanContinue() {
		line, err := rn.GetLine()
		if err != nil {
			log.Fatalf("runtime error: %v", err)
		}
		if line != "" {
			fmt.Print(line)
		}
		if rn.NumChoices() > 0 {
			// Non-interactive run: always take the first choice.
			fmt.Println()
			for i := 0; i < rn.NumChoices(); i++ {
				c, _ := rn.GetChoice(i)
				fmt.Printf("  %d) %s\n", i+1, c.Text)
			}
			if err := rn.Choose(0); err != nil {
				log.Fatalf("runtime error: %v", err)
			}
		}
	}
	if rn.State() == runner.StateErrored {
		log.Fatalf("story ended in error: %v", rn.LastError())
	}
}

func playCommand(args []string) {
	img := loadImage(args[0])
	_, rn := newStoryRunner(img, uint64(time.Now().UnixNano()))

	interactive := isatty.IsTerminal(os.Stdin.Fd())
	stdin := bufio.NewReader(os.Stdin)

	for rn.CanContinue() {
		line, err := rn.GetLine()
		if err != nil {
			log.Fatalf("runtime error: %v", err)
		}
		fmt.Print(line)

		if rn.NumChoices() == 0 {
			continue
		}

		fmt.Println()
		for i := 0; i < rn.NumChoices(); i++ {
			c, _ := rn.GetChoice(i)
			fmt.Printf("  %d) %s\n", i+1, c.Text)
		}
		choice := promptChoice(stdin, rn.NumChoices(), interactive)
		if err := rn.Choose(choice); err != nil {
			log.Fatalf("runtime error: %v", err)
		}
	}
	if rn.State() == runner.StateErrored {
		log.Fatalf("story ended in error: %v", rn.LastError())
	}
	fmt.Println("\n-- the end --")
}

func promptChoice(stdin *bufio.Reader, n int, interactive bool) int {
	for {
		if interactive {
			fmt.Print("> ")
		}
		text, err := stdin.ReadString('\n')
		if err != nil {
			os.Exit(0)
		}
		text = strings.TrimSpace(text)
		idx, err := strconv.Atoi(text)
		if err != nil || idx < 1 || idx > n {
			fmt.Printf("enter a number from 1 to %d\n", n)
			continue
		}
		return idx - 1
	}
}

func debugCommand(path string) {
	img := loadImage(path)
	_, rn := newStoryRunner(img, 1)

	d := debugger.New()
	rn.SetDebugHook(debugger.NewHook(d))

	fmt.Printf("debugging %s; execution starts paused\n", path)
	d.Run()

	for rn.CanContinue() {
		line, err := rn.GetLine()
		if err != nil {
			log.Fatalf("runtime error: %v", err)
		}
		fmt.Print(line)
		if rn.NumChoices() > 0 {
			fmt.Println()
			for i := 0; i < rn.NumChoices(); i++ {
				c, _ := rn.GetChoice(i)
				fmt.Printf("  %d) %s\n", i+1, c.Text)
			}
			if err := rn.Choose(0); err != nil {
				log.Fatalf("runtime error: %v", err)
			}
		}
	}
}

func snapshotCommand(args []string) {
	if len(args) < 2 {
		log.Fatal("Usage: inkvm snapshot <save|load> <story> [snapshot-path]")
	}
	action := args[0]
	storyPath := args[1]
	snapPath := storyPath + ".snap"
	if len(args) > 2 {
		snapPath = args[2]
	}

	switch action {
	case "save":
		img := loadImage(storyPath)
		store, rn := newStoryRunner(img, 1)
		// Run to the first line (one GetLine call) so there is something
		// meaningful to capture.
		if rn.CanContinue() {
			if _, err := rn.GetLine(); err != nil {
				log.Fatalf("runtime error: %v", err)
			}
		}
		data, err := snapshot.Save(store, []*runner.Runner{rn})
		if err != nil {
			log.Fatalf("could not save snapshot: %v", err)
		}
		if err := os.WriteFile(snapPath, data, 0644); err != nil {
			log.Fatalf("could not write snapshot: %v", err)
		}
		fmt.Printf("wrote snapshot to %s\n", snapPath)
	case "load":
		img := loadImage(storyPath)
		data, err := os.ReadFile(snapPath)
		if err != nil {
			log.Fatalf("could not read snapshot: %v", err)
		}
		_, runners, err := snapshot.Load(data, img)
		if err != nil {
			log.Fatalf("could not load snapshot: %v", err)
		}
		fmt.Printf("loaded %d runner(s) from %s\n", len(runners), snapPath)
		for _, rn := range runners {
			fmt.Printf("  runner %s: state %v\n", rn.ID, rn.State())
		}
	default:
		log.Fatalf("unknown snapshot action: %s (want save or load)", action)
	}
}

func showUsage() {
	fmt.Println("inkvm - embeddable interactive fiction runtime")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  inkvm run <story.ink.bin>       Run a compiled story to completion  (alias: r)")
	fmt.Println("  inkvm play <story.ink.bin>      Play a story interactively          (alias: p)")
	fmt.Println("  inkvm debug <story.ink.bin>     Run a story under the debugger      (alias: d)")
	fmt.Println("  inkvm info <story.ink.bin>      Show story image metadata           (alias: i)")
	fmt.Println("  inkvm snapshot save <story>      Save a mid-story snapshot           (alias: s)")
	fmt.Println("  inkvm snapshot load <story>      Load a previously saved snapshot")
	fmt.Println()
	fmt.Println("Shell Integration:")
	fmt.Println("  inkvm completion bash            Generate bash completion")
	fmt.Println("  inkvm completion zsh             Generate zsh completion")
	fmt.Println("  inkvm completion fish            Generate fish completion")
	fmt.Println()
	fmt.Println("Help:")
	fmt.Println("  inkvm help <command>             Show detailed help for a command")
	fmt.Println("  inkvm --version                  Show version information")
}

func showVersion() {
	fmt.Printf("inkvm %s (built %s)\n", version, buildDate)
}

func suggestCommand(cmd string) {
	allCommands := []string{"run", "play", "debug", "info", "snapshot", "help", "version", "completion"}
	fmt.Fprintf(os.Stderr, "Error: unknown command %q\n", cmd)

	var suggestions []string
	for _, c := range allCommands {
		if levenshteinDistance(cmd, c) <= 2 {
			suggestions = append(suggestions, c)
		}
	}
	if len(suggestions) > 0 {
		fmt.Fprintln(os.Stderr, "\nDid you mean one of these?")
		for _, s := range suggestions {
			fmt.Fprintf(os.Stderr, "  inkvm %s\n", s)
		}
	}
	fmt.Fprintln(os.Stderr, "\nRun 'inkvm help' to see all available commands")
	os.Exit(1)
}

func levenshteinDistance(s1, s2 string) int {
	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}
	matrix := make([][]int, len(s1)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(s2)+1)
		matrix[i][0] = i
	}
	for j := range matrix[0] {
		matrix[0][j] = j
	}
	for i := 1; i <= len(s1); i++ {
		for j := 1; j <= len(s2); j++ {
			cost := 0
			if s1[i-1] != s2[j-1] {
				cost = 1
			}
			matrix[i][j] = minOf3(matrix[i-1][j]+1, matrix[i][j-1]+1, matrix[i-1][j-1]+cost)
		}
	}
	return matrix[len(s1)][len(s2)]
}

func minOf3(a, b, c int) int {
	if a < b {
		if a < c {
			return a
		}
		return c
	}
	if b < c {
		return b
	}
	return c
}

func showCommandHelp(command string) {
	if alias, ok := commandAliases[command]; ok {
		command = alias
	}
	help := map[string]string{
		"run": `inkvm run - run a compiled story to completion

USAGE:
  inkvm run <story.ink.bin>
  inkvm r <story.ink.bin>

DESCRIPTION:
  Executes a compiled story non-interactively, always taking the first
  listed choice at every choice point, and prints all output to stdout.`,

		"play": `inkvm play - play a story interactively

USAGE:
  inkvm play <story.ink.bin>
  inkvm p <story.ink.bin>

DESCRIPTION:
  Runs a compiled story, prompting on stdin for a choice number whenever
  the story reaches a choice point. Falls back to non-interactive reads
  when stdin is not a terminal.`,

		"debug": `inkvm debug - run a story under the interactive debugger

USAGE:
  inkvm debug <story.ink.bin>
  inkvm d <story.ink.bin>

DESCRIPTION:
  Attaches an instruction-level debugger supporting container:offset
  breakpoints, single-stepping, and call-stack inspection.`,

		"info": `inkvm info - show compiled story metadata

USAGE:
  inkvm info <story.ink.bin>
  inkvm i <story.ink.bin>

DESCRIPTION:
  Prints the container, constant, and list counts along with the
  instruction stream size.`,

		"snapshot": `inkvm snapshot - save or load mid-story state

USAGE:
  inkvm snapshot save <story.ink.bin> [path]
  inkvm snapshot load <story.ink.bin> [path]

DESCRIPTION:
  save runs the story to its first line and writes a binary snapshot of
  shared globals plus the runner's callstack, eval stack, and output
  stream. load reconstructs both from a previously saved snapshot.`,
	}
	if text, ok := help[command]; ok {
		fmt.Println(text)
		return
	}
	fmt.Printf("no detailed help available for %q\n", command)
}

func generateCompletion(shell string) {
	switch shell {
	case "bash":
		fmt.Println(bashCompletion)
	case "zsh":
		fmt.Println(zshCompletion)
	case "fish":
		fmt.Println(fishCompletion)
	default:
		fmt.Fprintf(os.Stderr, "unknown shell: %s (want bash, zsh, or fish)\n", shell)
		os.Exit(1)
	}
}

const bashCompletion = `# Bash completion for inkvm
_inkvm() {
    local cur prev
    COMPREPLY=()
    cur="${COMP_WORDS[COMP_CWORD]}"
    prev="${COMP_WORDS[COMP_CWORD-1]}"
    case "${prev}" in
        inkvm)
            COMPREPLY=( $(compgen -W "run play debug info snapshot help version completion" -- ${cur}) )
            return 0
            ;;
        run|r|play|p|debug|d|info|i)
            COMPREPLY=( $(compgen -f -- ${cur}) )
            return 0
            ;;
        snapshot|s)
            COMPREPLY=( $(compgen -W "save load" -- ${cur}) )
            return 0
            ;;
        completion)
            COMPREPLY=( $(compgen -W "bash zsh fish" -- ${cur}) )
            return 0
            ;;
    esac
}
complete -F _inkvm inkvm`

const zshCompletion = `#compdef inkvm
_inkvm() {
    local -a commands
    commands=(
        'run:Run a story to completion'
        'play:Play a story interactively'
        'debug:Run a story under the debugger'
        'info:Show story image metadata'
        'snapshot:Save or load story state'
        'help:Show help'
        'version:Show version'
        'completion:Generate shell completion'
    )
    case $words[2] in
        run|play|debug|info)
            _files
            ;;
        snapshot)
            _arguments '1: :(save load)'
            ;;
        completion)
            _arguments '1: :(bash zsh fish)'
            ;;
        *)
            _describe 'command' commands
            ;;
    esac
}
_inkvm`

const fishCompletion = `# Fish completion for inkvm
complete -c inkvm -f -n "__fish_use_subcommand" -a "run" -d "Run a story to completion"
complete -c inkvm -f -n "__fish_use_subcommand" -a "play" -d "Play a story interactively"
complete -c inkvm -f -n "__fish_use_subcommand" -a "debug" -d "Run a story under the debugger"
complete -c inkvm -f -n "__fish_use_subcommand" -a "info" -d "Show story image metadata"
complete -c inkvm -f -n "__fish_use_subcommand" -a "snapshot" -d "Save or load story state"
complete -c inkvm -f -n "__fish_use_subcommand" -a "help" -d "Show help"
complete -c inkvm -f -n "__fish_use_subcommand" -a "version" -d "Show version"
complete -c inkvm -f -n "__fish_use_subcommand" -a "completion" -d "Generate shell completion"
complete -c inkvm -f -n "__fish_seen_subcommand_from snapshot" -a "save load"
complete -c inkvm -f -n "__fish_seen_subcommand_from completion" -a "bash zsh fish"
`
